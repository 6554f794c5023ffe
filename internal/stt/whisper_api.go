package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/videovoice/videovoice/internal/config"
	"github.com/videovoice/videovoice/internal/media"
	"github.com/videovoice/videovoice/internal/models"
)

// groqUploadLimit is the documented request body cap for the Groq audio
// endpoint. Larger inputs are re-encoded to a compact MP3 first.
const groqUploadLimit = 25 * 1024 * 1024

// whisperAPIBackend transcribes through an OpenAI-compatible audio endpoint.
// It serves both the OpenAI API and Groq's hosted Whisper.
type whisperAPIBackend struct {
	name        string
	client      oai.Client
	model       string
	uploadLimit int64
	media       *media.Ops
	logger      *slog.Logger
}

func newOpenAIBackend(cfg config.OpenAIConfig, logger *slog.Logger) *whisperAPIBackend {
	return &whisperAPIBackend{
		name:   "openai",
		client: oai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  cfg.WhisperModel,
		logger: logger,
	}
}

func newGroqBackend(cfg config.GroqConfig, mediaOps *media.Ops, logger *slog.Logger) *whisperAPIBackend {
	return &whisperAPIBackend{
		name: "groq",
		client: oai.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(cfg.BaseURL),
		),
		model:       cfg.WhisperModel,
		uploadLimit: groqUploadLimit,
		media:       mediaOps,
		logger:      logger,
	}
}

func (b *whisperAPIBackend) Name() string { return b.name }

// verboseTranscription is the part of the verbose_json response shape we
// consume.
type verboseTranscription struct {
	Text     string `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (b *whisperAPIBackend) Transcribe(ctx context.Context, audioPath, language string, withSegments bool) (*Result, error) {
	uploadPath, cleanup, err := b.prepareUpload(ctx, audioPath)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	f, err := os.Open(uploadPath)
	if err != nil {
		return nil, fmt.Errorf("%s: opening audio: %w", b.name, err)
	}
	defer f.Close()

	params := oai.AudioTranscriptionNewParams{
		File:           f,
		Model:          oai.AudioModel(b.model),
		ResponseFormat: oai.AudioResponseFormatVerboseJSON,
	}
	if lang := whisperLanguage(language); lang != "" {
		params.Language = oai.String(lang)
	}
	if withSegments {
		params.TimestampGranularities = []string{"segment"}
	}

	resp, err := b.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%s: transcription: %w", b.name, err)
	}

	result := &Result{Text: resp.Text}
	if withSegments {
		var verbose verboseTranscription
		if err := json.Unmarshal([]byte(resp.RawJSON()), &verbose); err != nil {
			return nil, fmt.Errorf("%s: decoding verbose response: %w", b.name, err)
		}
		segments := make([]models.Segment, 0, len(verbose.Segments))
		for _, s := range verbose.Segments {
			segments = append(segments, models.Segment{Start: s.Start, End: s.End, Text: s.Text})
		}
		result.Segments = normalizeSegments(segments)
	}
	return result, nil
}

// prepareUpload re-encodes the audio to 64kbps mono MP3 when it exceeds the
// backend's upload limit. The returned cleanup removes any temporary file.
func (b *whisperAPIBackend) prepareUpload(ctx context.Context, audioPath string) (string, func(), error) {
	noop := func() {}
	if b.uploadLimit <= 0 || b.media == nil {
		return audioPath, noop, nil
	}

	info, err := os.Stat(audioPath)
	if err != nil {
		return "", noop, fmt.Errorf("%s: stat audio: %w", b.name, err)
	}
	if info.Size() <= b.uploadLimit {
		return audioPath, noop, nil
	}

	b.logger.Info("audio exceeds upload limit, re-encoding",
		slog.String("backend", b.name),
		slog.Int64("size", info.Size()))

	tmpDir, err := os.MkdirTemp("", "stt-upload-*")
	if err != nil {
		return "", noop, fmt.Errorf("%s: temp dir: %w", b.name, err)
	}
	compact := filepath.Join(tmpDir, "audio.mp3")
	if err := b.media.EncodeMP3(ctx, audioPath, compact); err != nil {
		os.RemoveAll(tmpDir)
		return "", noop, fmt.Errorf("%s: re-encoding audio: %w", b.name, err)
	}
	return compact, func() { os.RemoveAll(tmpDir) }, nil
}
