package tts

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
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

type stubEngine struct {
	name  string
	calls int
	err   error
}

func (s *stubEngine) Name() string { return s.name }

func (s *stubEngine) Generate(_ context.Context, _, _, outWav, _ string) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	return os.WriteFile(outWav, []byte("RIFFfake"), 0o644)
}

func TestResolveEngine(t *testing.T) {
	edge := &stubEngine{name: "edge"}
	xtts := &stubEngine{name: "xtts"}
	silero := &stubEngine{name: "silero"}
	eleven := &stubEngine{name: "elevenlabs"}

	t.Run("pinned engine", func(t *testing.T) {
		s := &Service{engines: map[string]Engine{"edge": edge, "xtts": xtts}, logger: testLogger()}
		e, err := s.resolveEngine("xtts", "", "ko")
		require.NoError(t, err)
		assert.Equal(t, "xtts", e.Name())
	})

	t.Run("pinned engine unavailable", func(t *testing.T) {
		s := &Service{engines: map[string]Engine{"edge": edge}, logger: testLogger()}
		_, err := s.resolveEngine("elevenlabs", "", "ko")
		assert.ErrorIs(t, err, resilience.ErrMissingCredential)
	})

	t.Run("auto prefers elevenlabs", func(t *testing.T) {
		s := &Service{engines: map[string]Engine{"edge": edge, "xtts": xtts, "elevenlabs": eleven}, logger: testLogger()}
		e, err := s.resolveEngine(models.EngineAuto, "sample.wav", "ko")
		require.NoError(t, err)
		assert.Equal(t, "elevenlabs", e.Name())
	})

	t.Run("auto uses clone server for speaker sample", func(t *testing.T) {
		s := &Service{engines: map[string]Engine{"edge": edge, "xtts": xtts}, logger: testLogger()}
		e, err := s.resolveEngine(models.EngineAuto, "sample.wav", "ko")
		require.NoError(t, err)
		assert.Equal(t, "xtts", e.Name())
	})

	t.Run("auto uses silero for russian", func(t *testing.T) {
		s := &Service{engines: map[string]Engine{"edge": edge, "silero": silero}, logger: testLogger()}
		e, err := s.resolveEngine(models.EngineAuto, "", "ru")
		require.NoError(t, err)
		assert.Equal(t, "silero", e.Name())
	})

	t.Run("auto defaults to edge", func(t *testing.T) {
		s := &Service{engines: map[string]Engine{"edge": edge, "silero": silero}, logger: testLogger()}
		e, err := s.resolveEngine(models.EngineAuto, "", "ko")
		require.NoError(t, err)
		assert.Equal(t, "edge", e.Name())
	})
}

func TestValidateSpeakerRef(t *testing.T) {
	dir := t.TempDir()

	tiny := filepath.Join(dir, "tiny.wav")
	require.NoError(t, os.WriteFile(tiny, []byte("tiny"), 0o644))
	assert.ErrorContains(t, validateSpeakerRef(tiny), "too small")

	ok := filepath.Join(dir, "ok.wav")
	require.NoError(t, os.WriteFile(ok, make([]byte, 20*1024), 0o644))
	assert.NoError(t, validateSpeakerRef(ok))

	assert.Error(t, validateSpeakerRef(filepath.Join(dir, "missing.wav")))
}

func TestSynthesizeSingleChunk(t *testing.T) {
	edge := &stubEngine{name: "edge"}
	s := &Service{engines: map[string]Engine{"edge": edge}, logger: testLogger()}

	out := filepath.Join(t.TempDir(), "out.wav")
	name, err := s.Synthesize(context.Background(), "짧은 텍스트입니다.", "ko", models.EngineAuto, "", out)
	require.NoError(t, err)
	assert.Equal(t, "edge", name)
	assert.Equal(t, 1, edge.calls)
	assert.FileExists(t, out)
}

func TestSplitForSynthesis(t *testing.T) {
	t.Run("short passthrough", func(t *testing.T) {
		assert.Equal(t, []string{"hello."}, splitForSynthesis("hello.", 100))
	})

	t.Run("splits on sentences", func(t *testing.T) {
		text := strings.Repeat("One full sentence right here. ", 20)
		chunks := splitForSynthesis(text, 100)
		require.Greater(t, len(chunks), 1)
		for _, c := range chunks {
			assert.LessOrEqual(t, len(c), 100)
			assert.True(t, strings.HasSuffix(c, "."))
		}
	})

	t.Run("hard splits oversized sentence on rune boundary", func(t *testing.T) {
		text := strings.Repeat("가", 50) // 150 bytes, no sentence enders
		chunks := splitForSynthesis(text, 100)
		require.Greater(t, len(chunks), 1)
		for _, c := range chunks {
			assert.True(t, len(c) <= 100)
			for _, r := range c {
				assert.Equal(t, '가', r)
			}
		}
	})
}

func TestXTTSGenerate(t *testing.T) {
	dir := t.TempDir()
	speaker := filepath.Join(dir, "speaker.wav")
	require.NoError(t, os.WriteFile(speaker, make([]byte, 16*1024), 0o644))

	var gotText, gotLang, gotFile string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(64<<20))
		gotText = r.FormValue("text")
		gotLang = r.FormValue("language")
		if f, header, err := r.FormFile("speaker"); err == nil {
			gotFile = header.Filename
			f.Close()
		}
		w.Write([]byte("RIFFaudio"))
	}))
	defer srv.Close()

	e := newXTTSEngine(config.XTTSConfig{BaseURL: srv.URL}, testLogger())
	out := filepath.Join(dir, "out.wav")
	require.NoError(t, e.Generate(context.Background(), "안녕하세요", speaker, out, "ko"))

	assert.Equal(t, "안녕하세요", gotText)
	assert.Equal(t, "ko", gotLang)
	assert.Equal(t, "speaker.wav", gotFile)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "RIFFaudio", string(data))
}

func TestXTTSGenerateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := newXTTSEngine(config.XTTSConfig{BaseURL: srv.URL}, testLogger())
	err := e.Generate(context.Background(), "text", "", filepath.Join(t.TempDir(), "out.wav"), "ko")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestSileroFallsBackToEdge(t *testing.T) {
	fallback := &stubEngine{name: "edge"}

	t.Run("no server configured", func(t *testing.T) {
		e := newSileroEngine(config.SileroConfig{}, fallback, nil, testLogger())
		out := filepath.Join(t.TempDir(), "out.wav")
		require.NoError(t, e.Generate(context.Background(), "текст", "", out, "ru"))
		assert.Equal(t, 1, fallback.calls)
	})

	t.Run("server failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		}))
		defer srv.Close()

		before := fallback.calls
		e := newSileroEngine(config.SileroConfig{BaseURL: srv.URL}, fallback, nil, testLogger())
		out := filepath.Join(t.TempDir(), "out.wav")
		require.NoError(t, e.Generate(context.Background(), "текст", "", out, "ru"))
		assert.Equal(t, before+1, fallback.calls)
	})

	t.Run("server success", func(t *testing.T) {
		var gotReq sileroRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
			w.Write([]byte("RIFFsilero"))
		}))
		defer srv.Close()

		before := fallback.calls
		e := newSileroEngine(config.SileroConfig{BaseURL: srv.URL}, fallback, nil, testLogger())
		out := filepath.Join(t.TempDir(), "out.wav")
		require.NoError(t, e.Generate(context.Background(), "привет", "", out, "ru"))
		assert.Equal(t, before, fallback.calls)
		assert.Equal(t, "привет", gotReq.Text)
		assert.Equal(t, "ru", gotReq.Language)
	})
}

func TestElevenLabsCloneLifecycle(t *testing.T) {
	dir := t.TempDir()
	speaker := filepath.Join(dir, "speaker.wav")
	require.NoError(t, os.WriteFile(speaker, make([]byte, 16*1024), 0o644))

	var deleted string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret-key", r.Header.Get("xi-api-key"))
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/voices/add":
			require.NoError(t, r.ParseMultipartForm(64<<20))
			assert.NotEmpty(t, r.FormValue("name"))
			_, _, err := r.FormFile("files")
			require.NoError(t, err)
			json.NewEncoder(w).Encode(addVoiceResponse{VoiceID: "clone-123"})
		case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/v1/voices/"):
			deleted = strings.TrimPrefix(r.URL.Path, "/v1/voices/")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	e := newElevenLabsEngine(config.ElevenLabsConfig{APIKey: "secret-key", ModelID: "eleven_multilingual_v2"}, nil, testLogger())
	e.baseURL = srv.URL

	cloneID, err := e.cloneVoice(context.Background(), speaker)
	require.NoError(t, err)
	assert.Equal(t, "clone-123", cloneID)

	require.NoError(t, e.deleteVoice(context.Background(), cloneID))
	assert.Equal(t, "clone-123", deleted)
}

func TestElevenLabsGenerateRequiresVoice(t *testing.T) {
	e := newElevenLabsEngine(config.ElevenLabsConfig{APIKey: "k"}, nil, testLogger())
	err := e.Generate(context.Background(), "text", "", "out.wav", "ko")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no voice configured")
}

func TestServiceAvailable(t *testing.T) {
	s := NewService(config.ProvidersConfig{
		XTTS:       config.XTTSConfig{BaseURL: "http://localhost:8020"},
		ElevenLabs: config.ElevenLabsConfig{APIKey: "k"},
		Edge:       config.EdgeConfig{Voices: map[string]string{"ko": "ko-KR-SunHiNeural"}},
	}, nil, testLogger())

	assert.Equal(t, []string{"xtts", "edge", "silero", "elevenlabs"}, s.Available())
}
