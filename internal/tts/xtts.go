package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/videovoice/videovoice/internal/config"
	"github.com/videovoice/videovoice/internal/version"
)

// xttsEngine talks to the local clone-capable synthesis server. The server
// accepts a multipart form with the text, language and an optional speaker
// sample, and replies with WAV audio.
type xttsEngine struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func newXTTSEngine(cfg config.XTTSConfig, logger *slog.Logger) *xttsEngine {
	return &xttsEngine{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{},
		logger:     logger,
	}
}

func (e *xttsEngine) Name() string { return "xtts" }

func (e *xttsEngine) Generate(ctx context.Context, text, speakerRef, outWav, language string) error {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	if err := form.WriteField("text", text); err != nil {
		return fmt.Errorf("xtts: building form: %w", err)
	}
	if err := form.WriteField("language", language); err != nil {
		return fmt.Errorf("xtts: building form: %w", err)
	}
	if speakerRef != "" {
		f, err := os.Open(speakerRef)
		if err != nil {
			return fmt.Errorf("xtts: opening speaker sample: %w", err)
		}
		part, err := form.CreateFormFile("speaker", filepath.Base(speakerRef))
		if err != nil {
			f.Close()
			return fmt.Errorf("xtts: building form: %w", err)
		}
		if _, err := io.Copy(part, f); err != nil {
			f.Close()
			return fmt.Errorf("xtts: copying speaker sample: %w", err)
		}
		f.Close()
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("xtts: building form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/tts", &body)
	if err != nil {
		return fmt.Errorf("xtts: building request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("xtts: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("xtts: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	return writeAudioFile(outWav, resp.Body)
}

// writeAudioFile streams a response body to disk.
func writeAudioFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating audio file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("writing audio file: %w", err)
	}
	return nil
}
