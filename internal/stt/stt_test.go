package stt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/videovoice/videovoice/internal/config"
	"github.com/videovoice/videovoice/internal/models"
	"github.com/videovoice/videovoice/internal/resilience"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type stubBackend struct {
	name   string
	result *Result
	err    error
	calls  int
}

func (s *stubBackend) Name() string { return s.name }

func (s *stubBackend) Transcribe(context.Context, string, string, bool) (*Result, error) {
	s.calls++
	return s.result, s.err
}

func TestServiceAvailableOrder(t *testing.T) {
	s := &Service{
		backends: map[string]Backend{
			"local":  &stubBackend{name: "local"},
			"gemini": &stubBackend{name: "gemini"},
			"openai": &stubBackend{name: "openai"},
		},
		logger: testLogger(),
	}
	assert.Equal(t, []string{"gemini", "openai", "local"}, s.Available())
}

func TestServicePinnedEngine(t *testing.T) {
	pinned := &stubBackend{name: "openai", result: &Result{Text: "hello"}}
	other := &stubBackend{name: "gemini", result: &Result{Text: "nope"}}
	s := &Service{
		backends: map[string]Backend{"openai": pinned, "gemini": other},
		logger:   testLogger(),
	}

	result, name, err := s.Transcribe(context.Background(), "a.wav", "en", "openai", false)
	require.NoError(t, err)
	assert.Equal(t, "hello", result.Text)
	assert.Equal(t, "openai", name)
	assert.Equal(t, 0, other.calls)
}

func TestServicePinnedEngineMissing(t *testing.T) {
	s := &Service{backends: map[string]Backend{}, logger: testLogger()}
	_, _, err := s.Transcribe(context.Background(), "a.wav", "en", "local", false)
	assert.ErrorIs(t, err, resilience.ErrMissingCredential)
}

func TestServiceAutoFallsBackOnQuota(t *testing.T) {
	exhausted := &stubBackend{name: "gemini", err: errors.New("429 quota exceeded")}
	healthy := &stubBackend{name: "groq", result: &Result{Text: "done"}}
	s := &Service{
		backends: map[string]Backend{"gemini": exhausted, "groq": healthy},
		logger:   testLogger(),
	}

	result, name, err := s.Transcribe(context.Background(), "a.wav", "auto", models.EngineAuto, false)
	require.NoError(t, err)
	assert.Equal(t, "done", result.Text)
	assert.Equal(t, "groq", name)
	assert.Equal(t, 1, exhausted.calls)
}

func TestServiceAutoNoBackends(t *testing.T) {
	s := &Service{backends: map[string]Backend{}, logger: testLogger()}
	_, _, err := s.Transcribe(context.Background(), "a.wav", "auto", models.EngineAuto, false)
	assert.ErrorIs(t, err, resilience.ErrMissingCredential)
}

func TestNormalizeSegments(t *testing.T) {
	in := []models.Segment{
		{Start: 0, End: 1, Text: "  hello "},
		{Start: 1, End: 2, Text: "   "},
		{Start: 2, End: 3, Text: "world"},
	}
	out := normalizeSegments(in)
	require.Len(t, out, 2)
	assert.Equal(t, "hello", out[0].Text)
	assert.Equal(t, "world", out[1].Text)
}

func TestWhisperLanguage(t *testing.T) {
	assert.Equal(t, "", whisperLanguage("auto"))
	assert.Equal(t, "", whisperLanguage(""))
	assert.Equal(t, "ko", whisperLanguage("ko"))
}

func TestParseSegmentReply(t *testing.T) {
	t.Run("plain array", func(t *testing.T) {
		segs, err := parseSegmentReply(`[{"start":0,"end":1.5,"text":"hi"}]`)
		require.NoError(t, err)
		require.Len(t, segs, 1)
		assert.Equal(t, 1.5, segs[0].End)
	})

	t.Run("fenced array", func(t *testing.T) {
		segs, err := parseSegmentReply("```json\n[{\"start\":0,\"end\":1,\"text\":\"hi\"}]\n```")
		require.NoError(t, err)
		assert.Len(t, segs, 1)
	})

	t.Run("array embedded in prose", func(t *testing.T) {
		segs, err := parseSegmentReply(`Here you go: [{"start":0,"end":1,"text":"hi"}] hope that helps`)
		require.NoError(t, err)
		assert.Len(t, segs, 1)
	})

	t.Run("no array", func(t *testing.T) {
		_, err := parseSegmentReply("sorry, I cannot do that")
		assert.Error(t, err)
	})

	t.Run("only blank segments", func(t *testing.T) {
		_, err := parseSegmentReply(`[{"start":0,"end":1,"text":"  "}]`)
		assert.Error(t, err)
	})
}

func TestWhisperOutputParsing(t *testing.T) {
	raw := `{"transcription":[
		{"offsets":{"from":0,"to":2500},"text":" Hello there."},
		{"offsets":{"from":2500,"to":4000},"text":"   "},
		{"offsets":{"from":4000,"to":6000},"text":" General."}
	]}`
	var parsed whisperOutput
	require.NoError(t, json.Unmarshal([]byte(raw), &parsed))
	require.Len(t, parsed.Transcription, 3)
	assert.Equal(t, int64(2500), parsed.Transcription[0].Offsets.To)
}

func TestGeminiTranscribe(t *testing.T) {
	audioPath := filepath.Join(t.TempDir(), "audio.wav")
	require.NoError(t, os.WriteFile(audioPath, []byte("RIFFdata"), 0o644))

	var gotPath string
	var gotBody geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]any{{"text": "  transcribed speech  "}},
				},
			}},
		})
	}))
	defer srv.Close()

	b := newGeminiBackend(config.GeminiConfig{APIKey: "test-key", Model: "gemini-2.0-flash"}, nil, testLogger())
	b.baseURL = srv.URL

	result, err := b.Transcribe(context.Background(), audioPath, "en", false)
	require.NoError(t, err)
	assert.Equal(t, "transcribed speech", result.Text)
	assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", gotPath)

	require.Len(t, gotBody.Contents, 1)
	require.Len(t, gotBody.Contents[0].Parts, 2)
	require.NotNil(t, gotBody.Contents[0].Parts[1].InlineData)
	assert.Equal(t, "audio/wav", gotBody.Contents[0].Parts[1].InlineData.MIMEType)
	decoded, err := base64.StdEncoding.DecodeString(gotBody.Contents[0].Parts[1].InlineData.Data)
	require.NoError(t, err)
	assert.Equal(t, "RIFFdata", string(decoded))
}

func TestGeminiTranscribeSegments(t *testing.T) {
	audioPath := filepath.Join(t.TempDir(), "audio.wav")
	require.NoError(t, os.WriteFile(audioPath, []byte("RIFFdata"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]any{
						{"text": "```json\n[{\"start\":0,\"end\":2,\"text\":\"first\"},{\"start\":2,\"end\":4,\"text\":\"second\"}]\n```"},
					},
				},
			}},
		})
	}))
	defer srv.Close()

	b := newGeminiBackend(config.GeminiConfig{APIKey: "k", Model: "m"}, nil, testLogger())
	b.baseURL = srv.URL

	result, err := b.Transcribe(context.Background(), audioPath, "auto", true)
	require.NoError(t, err)
	require.Len(t, result.Segments, 2)
	assert.Equal(t, "first second", result.Text)
	assert.Equal(t, 4.0, result.Segments[1].End)
}

func TestGeminiQuotaErrorSurfacesStatus(t *testing.T) {
	audioPath := filepath.Join(t.TempDir(), "audio.wav")
	require.NoError(t, os.WriteFile(audioPath, []byte("x"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"status":"RESOURCE_EXHAUSTED"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	b := newGeminiBackend(config.GeminiConfig{APIKey: "k", Model: "m"}, nil, testLogger())
	b.baseURL = srv.URL

	_, err := b.Transcribe(context.Background(), audioPath, "en", false)
	require.Error(t, err)
	assert.True(t, resilience.IsQuota(err))
}
