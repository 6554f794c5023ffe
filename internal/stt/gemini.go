package stt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/videovoice/videovoice/internal/config"
	"github.com/videovoice/videovoice/internal/llm"
	"github.com/videovoice/videovoice/internal/media"
	"github.com/videovoice/videovoice/internal/models"
)

const (
	geminiEndpointFmt = "%s/v1beta/models/%s:generateContent"
	geminiBaseURL     = "https://generativelanguage.googleapis.com"

	// geminiInlineLimit bounds the base64 audio payload; larger inputs are
	// re-encoded to a compact MP3 first.
	geminiInlineLimit = 15 * 1024 * 1024
)

var jsonArrayRe = regexp.MustCompile(`(?s)\[.*\]`)

// geminiBackend transcribes by sending the audio inline to the Gemini
// generateContent endpoint.
type geminiBackend struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	media      *media.Ops
	logger     *slog.Logger
}

func newGeminiBackend(cfg config.GeminiConfig, mediaOps *media.Ops, logger *slog.Logger) *geminiBackend {
	return &geminiBackend{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    geminiBaseURL,
		httpClient: &http.Client{},
		media:      mediaOps,
		logger:     logger,
	}
}

func (b *geminiBackend) Name() string { return "gemini" }

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (b *geminiBackend) Transcribe(ctx context.Context, audioPath, language string, withSegments bool) (*Result, error) {
	audioData, mimeType, cleanup, err := b.loadAudio(ctx, audioPath)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	prompt := transcriptPrompt(language)
	if withSegments {
		prompt = segmentPrompt(language)
	}

	reply, err := b.generate(ctx, prompt, audioData, mimeType)
	if err != nil {
		return nil, err
	}
	reply = llm.StripReasoning(reply)

	if !withSegments {
		return &Result{Text: strings.TrimSpace(reply)}, nil
	}

	segments, err := parseSegmentReply(reply)
	if err != nil {
		// Fall back to a plain transcript so the caller still gets text.
		b.logger.Warn("segment parse failed, returning plain transcript",
			slog.String("error", err.Error()))
		return &Result{Text: strings.TrimSpace(llm.StripCodeFences(reply))}, nil
	}

	var text strings.Builder
	for _, seg := range segments {
		if text.Len() > 0 {
			text.WriteString(" ")
		}
		text.WriteString(seg.Text)
	}
	return &Result{Text: text.String(), Segments: segments}, nil
}

func (b *geminiBackend) generate(ctx context.Context, prompt string, audio []byte, mimeType string) (string, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: prompt},
				{InlineData: &geminiInlineData{
					MIMEType: mimeType,
					Data:     base64.StdEncoding.EncodeToString(audio),
				}},
			},
		}},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("gemini: encoding request: %w", err)
	}

	url := fmt.Sprintf(geminiEndpointFmt, b.baseURL, b.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("gemini: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", b.apiKey)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("gemini: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("gemini: decoding response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini: empty response")
	}

	var text strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	return text.String(), nil
}

// loadAudio reads the file, re-encoding to MP3 when the inline payload would
// exceed the endpoint's request size limit.
func (b *geminiBackend) loadAudio(ctx context.Context, audioPath string) ([]byte, string, func(), error) {
	noop := func() {}

	info, err := os.Stat(audioPath)
	if err != nil {
		return nil, "", noop, fmt.Errorf("gemini: stat audio: %w", err)
	}

	path, mimeType, cleanup := audioPath, mimeForAudio(audioPath), noop
	if info.Size() > geminiInlineLimit && b.media != nil {
		tmpDir, err := os.MkdirTemp("", "gemini-audio-*")
		if err != nil {
			return nil, "", noop, fmt.Errorf("gemini: temp dir: %w", err)
		}
		compact := filepath.Join(tmpDir, "audio.mp3")
		if err := b.media.EncodeMP3(ctx, audioPath, compact); err != nil {
			os.RemoveAll(tmpDir)
			return nil, "", noop, fmt.Errorf("gemini: re-encoding audio: %w", err)
		}
		path, mimeType, cleanup = compact, "audio/mpeg", func() { os.RemoveAll(tmpDir) }
	}

	data, err := os.ReadFile(path)
	if err != nil {
		cleanup()
		return nil, "", noop, fmt.Errorf("gemini: reading audio: %w", err)
	}
	return data, mimeType, cleanup, nil
}

func mimeForAudio(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".ogg":
		return "audio/ogg"
	default:
		return "audio/wav"
	}
}

func transcriptPrompt(language string) string {
	var sb strings.Builder
	sb.WriteString("Transcribe the speech in this audio file exactly as spoken. ")
	sb.WriteString("Return only the transcript text with no commentary, labels or timestamps.")
	if lang := whisperLanguage(language); lang != "" {
		fmt.Fprintf(&sb, " The audio is in %q.", lang)
	}
	return sb.String()
}

func segmentPrompt(language string) string {
	var sb strings.Builder
	sb.WriteString("Transcribe the speech in this audio file as timestamped segments. ")
	sb.WriteString(`Return only a JSON array, one object per utterance: [{"start": 0.0, "end": 2.5, "text": "..."}]. `)
	sb.WriteString("Times are seconds from the start of the audio. No commentary, no markdown.")
	if lang := whisperLanguage(language); lang != "" {
		fmt.Fprintf(&sb, " The audio is in %q.", lang)
	}
	return sb.String()
}

// parseSegmentReply extracts the JSON segment array from a model reply,
// tolerating code fences and surrounding prose.
func parseSegmentReply(reply string) ([]models.Segment, error) {
	cleaned := llm.StripCodeFences(reply)

	var segments []models.Segment
	if err := json.Unmarshal([]byte(cleaned), &segments); err != nil {
		match := jsonArrayRe.FindString(cleaned)
		if match == "" {
			return nil, fmt.Errorf("no JSON array in reply")
		}
		if err := json.Unmarshal([]byte(match), &segments); err != nil {
			return nil, fmt.Errorf("decoding segments: %w", err)
		}
	}

	segments = normalizeSegments(segments)
	if len(segments) == 0 {
		return nil, fmt.Errorf("no usable segments in reply")
	}
	return segments, nil
}
