package tts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/videovoice/videovoice/internal/config"
	"github.com/videovoice/videovoice/internal/media"
)

// edgeBinary is the network neural synthesis CLI, resolved from PATH.
const edgeBinary = "edge-tts"

// defaultEdgeVoice is used when the config has no voice for the language.
const defaultEdgeVoice = "en-US-AriaNeural"

// edgeEngine shells out to the edge-tts CLI, which produces MP3; the result
// is converted to WAV for the rest of the pipeline. It requires no
// credentials, making it the default engine.
type edgeEngine struct {
	voices map[string]string
	media  *media.Ops
	logger *slog.Logger
}

func newEdgeEngine(cfg config.EdgeConfig, mediaOps *media.Ops, logger *slog.Logger) *edgeEngine {
	return &edgeEngine{
		voices: cfg.Voices,
		media:  mediaOps,
		logger: logger,
	}
}

func (e *edgeEngine) Name() string { return "edge" }

func (e *edgeEngine) voiceFor(language string) string {
	if voice, ok := e.voices[language]; ok {
		return voice
	}
	return defaultEdgeVoice
}

func (e *edgeEngine) Generate(ctx context.Context, text, _ /* speakerRef */, outWav, language string) error {
	tmpDir, err := os.MkdirTemp("", "edge-tts-*")
	if err != nil {
		return fmt.Errorf("edge: temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)
	mp3Path := filepath.Join(tmpDir, "speech.mp3")

	voice := e.voiceFor(language)
	cmd := exec.CommandContext(ctx, edgeBinary,
		"--voice", voice,
		"--text", text,
		"--write-media", mp3Path,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		excerpt := strings.TrimSpace(string(out))
		if len(excerpt) > 500 {
			excerpt = excerpt[len(excerpt)-500:]
		}
		return fmt.Errorf("edge: synthesis failed: %w: %s", err, excerpt)
	}

	if err := e.media.ToWav(ctx, mp3Path, outWav); err != nil {
		return fmt.Errorf("edge: converting to wav: %w", err)
	}
	return nil
}
