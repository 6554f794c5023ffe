package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/videovoice/videovoice/internal/config"
	"github.com/videovoice/videovoice/internal/models"
)

// localBackend shells out to the whisper.cpp CLI. It is the last entry in
// the fallback order and works without any network access.
type localBackend struct {
	binaryPath string
	modelPath  string
	logger     *slog.Logger
}

func newLocalBackend(cfg config.WhisperConfig, logger *slog.Logger) *localBackend {
	return &localBackend{
		binaryPath: cfg.BinaryPath,
		modelPath:  cfg.ModelPath,
		logger:     logger,
	}
}

func (b *localBackend) Name() string { return "local" }

// whisperOutput mirrors the JSON the CLI writes with -oj. Offsets are in
// milliseconds.
type whisperOutput struct {
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func (b *localBackend) Transcribe(ctx context.Context, audioPath, language string, withSegments bool) (*Result, error) {
	outDir, err := os.MkdirTemp("", "whisper-*")
	if err != nil {
		return nil, fmt.Errorf("local: creating output dir: %w", err)
	}
	defer os.RemoveAll(outDir)
	outPrefix := filepath.Join(outDir, "transcript")

	args := []string{
		"-m", b.modelPath,
		"-f", audioPath,
		"-oj",
		"-of", outPrefix,
	}
	if lang := whisperLanguage(language); lang != "" {
		args = append(args, "-l", lang)
	} else {
		args = append(args, "-l", "auto")
	}

	cmd := exec.CommandContext(ctx, b.binaryPath, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		excerpt := strings.TrimSpace(string(out))
		if len(excerpt) > 500 {
			excerpt = excerpt[len(excerpt)-500:]
		}
		return nil, fmt.Errorf("local: whisper failed: %w: %s", err, excerpt)
	}

	data, err := os.ReadFile(outPrefix + ".json")
	if err != nil {
		return nil, fmt.Errorf("local: reading whisper output: %w", err)
	}

	var parsed whisperOutput
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("local: decoding whisper output: %w", err)
	}

	segments := make([]models.Segment, 0, len(parsed.Transcription))
	var text strings.Builder
	for _, entry := range parsed.Transcription {
		chunk := strings.TrimSpace(entry.Text)
		if chunk == "" {
			continue
		}
		if text.Len() > 0 {
			text.WriteString(" ")
		}
		text.WriteString(chunk)
		segments = append(segments, models.Segment{
			Start: float64(entry.Offsets.From) / 1000,
			End:   float64(entry.Offsets.To) / 1000,
			Text:  chunk,
		})
	}

	result := &Result{Text: text.String()}
	if withSegments {
		result.Segments = normalizeSegments(segments)
	}
	return result, nil
}
