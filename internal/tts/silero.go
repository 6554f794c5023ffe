package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/videovoice/videovoice/internal/config"
	"github.com/videovoice/videovoice/internal/media"
	"github.com/videovoice/videovoice/internal/version"
)

// sileroEngine talks to the lightweight local synthesis server, used mainly
// for Russian. When no server is configured or a request fails, synthesis
// falls through to the Edge engine so the job still completes.
type sileroEngine struct {
	baseURL    string
	httpClient *http.Client
	fallback   Engine
	media      *media.Ops
	logger     *slog.Logger
}

func newSileroEngine(cfg config.SileroConfig, fallback Engine, mediaOps *media.Ops, logger *slog.Logger) *sileroEngine {
	return &sileroEngine{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{},
		fallback:   fallback,
		media:      mediaOps,
		logger:     logger,
	}
}

func (e *sileroEngine) Name() string { return "silero" }

type sileroRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

func (e *sileroEngine) Generate(ctx context.Context, text, speakerRef, outWav, language string) error {
	if e.baseURL == "" {
		e.logger.Debug("silero server not configured, using edge")
		return e.fallback.Generate(ctx, text, speakerRef, outWav, language)
	}

	if err := e.synthesize(ctx, text, outWav, language); err != nil {
		e.logger.Warn("silero synthesis failed, falling back to edge",
			slog.String("error", err.Error()))
		return e.fallback.Generate(ctx, text, speakerRef, outWav, language)
	}
	return nil
}

func (e *sileroEngine) synthesize(ctx context.Context, text, outWav, language string) error {
	payload, err := json.Marshal(sileroRequest{Text: text, Language: language})
	if err != nil {
		return fmt.Errorf("silero: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/tts", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("silero: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("silero: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("silero: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	return writeAudioFile(outWav, resp.Body)
}
