package tts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/videovoice/videovoice/internal/config"
	"github.com/videovoice/videovoice/internal/media"
)

// openAISpeechEngine synthesizes through the OpenAI speech endpoint. It has
// no cloning support; the speaker sample is ignored.
type openAISpeechEngine struct {
	client oai.Client
	model  string
	voice  string
	media  *media.Ops
	logger *slog.Logger
}

func newOpenAISpeechEngine(cfg config.OpenAIConfig, mediaOps *media.Ops, logger *slog.Logger) *openAISpeechEngine {
	return &openAISpeechEngine{
		client: oai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  cfg.TTSModel,
		voice:  cfg.TTSVoice,
		media:  mediaOps,
		logger: logger,
	}
}

func (e *openAISpeechEngine) Name() string { return "openai" }

func (e *openAISpeechEngine) Generate(ctx context.Context, text, _ /* speakerRef */, outWav, _ string) error {
	resp, err := e.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Input:          text,
		Model:          oai.SpeechModel(e.model),
		Voice:          oai.AudioSpeechNewParamsVoice(e.voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return fmt.Errorf("openai: speech: %w", err)
	}
	defer resp.Body.Close()

	tmpDir, err := os.MkdirTemp("", "openai-tts-*")
	if err != nil {
		return fmt.Errorf("openai: temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)
	mp3Path := filepath.Join(tmpDir, "speech.mp3")

	if err := writeAudioFile(mp3Path, resp.Body); err != nil {
		return fmt.Errorf("openai: %w", err)
	}
	if err := e.media.ToWav(ctx, mp3Path, outWav); err != nil {
		return fmt.Errorf("openai: converting to wav: %w", err)
	}
	return nil
}
