package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/videovoice/videovoice/internal/config"
	"github.com/videovoice/videovoice/internal/media"
)

const elevenLabsBaseURL = "https://api.elevenlabs.io"

// elevenLabsEngine synthesizes through the ElevenLabs REST API. When a
// speaker sample is supplied it creates an instant voice clone, synthesizes
// with it, and deletes the clone again so the account's voice slots are not
// exhausted.
type elevenLabsEngine struct {
	apiKey     string
	modelID    string
	voiceID    string
	baseURL    string
	httpClient *http.Client
	media      *media.Ops
	logger     *slog.Logger
}

func newElevenLabsEngine(cfg config.ElevenLabsConfig, mediaOps *media.Ops, logger *slog.Logger) *elevenLabsEngine {
	return &elevenLabsEngine{
		apiKey:     cfg.APIKey,
		modelID:    cfg.ModelID,
		voiceID:    cfg.VoiceID,
		baseURL:    elevenLabsBaseURL,
		httpClient: &http.Client{},
		media:      mediaOps,
		logger:     logger,
	}
}

func (e *elevenLabsEngine) Name() string { return "elevenlabs" }

func (e *elevenLabsEngine) Generate(ctx context.Context, text, speakerRef, outWav, language string) error {
	voiceID := e.voiceID

	if speakerRef != "" {
		cloneID, err := e.cloneVoice(ctx, speakerRef)
		if err != nil {
			return err
		}
		defer func() {
			if err := e.deleteVoice(context.WithoutCancel(ctx), cloneID); err != nil {
				e.logger.Warn("deleting cloned voice failed",
					slog.String("voice_id", cloneID),
					slog.String("error", err.Error()))
			}
		}()
		voiceID = cloneID
	}
	if voiceID == "" {
		return fmt.Errorf("elevenlabs: no voice configured and no speaker sample supplied")
	}

	return e.synthesize(ctx, text, voiceID, outWav)
}

type synthesisRequest struct {
	Text         string `json:"text"`
	ModelID      string `json:"model_id,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

func (e *elevenLabsEngine) synthesize(ctx context.Context, text, voiceID, outWav string) error {
	payload, err := json.Marshal(synthesisRequest{Text: text, ModelID: e.modelID})
	if err != nil {
		return fmt.Errorf("elevenlabs: encoding request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", e.baseURL, voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("elevenlabs: building request: %w", err)
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("elevenlabs: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("elevenlabs: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	tmpDir, err := os.MkdirTemp("", "elevenlabs-*")
	if err != nil {
		return fmt.Errorf("elevenlabs: temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)
	mp3Path := filepath.Join(tmpDir, "speech.mp3")

	if err := writeAudioFile(mp3Path, resp.Body); err != nil {
		return fmt.Errorf("elevenlabs: %w", err)
	}
	if err := e.media.ToWav(ctx, mp3Path, outWav); err != nil {
		return fmt.Errorf("elevenlabs: converting to wav: %w", err)
	}
	return nil
}

type addVoiceResponse struct {
	VoiceID string `json:"voice_id"`
}

// cloneVoice creates an instant voice clone from the speaker sample and
// returns its voice ID.
func (e *elevenLabsEngine) cloneVoice(ctx context.Context, speakerRef string) (string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	name := fmt.Sprintf("videovoice-clone-%d", time.Now().UnixNano())
	if err := form.WriteField("name", name); err != nil {
		return "", fmt.Errorf("elevenlabs: building clone form: %w", err)
	}

	f, err := os.Open(speakerRef)
	if err != nil {
		return "", fmt.Errorf("elevenlabs: opening speaker sample: %w", err)
	}
	defer f.Close()
	part, err := form.CreateFormFile("files", filepath.Base(speakerRef))
	if err != nil {
		return "", fmt.Errorf("elevenlabs: building clone form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("elevenlabs: copying speaker sample: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("elevenlabs: building clone form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/voices/add", &body)
	if err != nil {
		return "", fmt.Errorf("elevenlabs: building clone request: %w", err)
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("elevenlabs: clone request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("elevenlabs: clone status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var parsed addVoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("elevenlabs: decoding clone response: %w", err)
	}
	if parsed.VoiceID == "" {
		return "", fmt.Errorf("elevenlabs: clone response missing voice_id")
	}
	return parsed.VoiceID, nil
}

func (e *elevenLabsEngine) deleteVoice(ctx context.Context, voiceID string) error {
	url := fmt.Sprintf("%s/v1/voices/%s", e.baseURL, voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("building delete request: %w", err)
	}
	req.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("delete status %d", resp.StatusCode)
	}
	return nil
}
