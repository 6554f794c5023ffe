package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/videovoice/videovoice/internal/config"
	"github.com/videovoice/videovoice/internal/jobs"
	"github.com/videovoice/videovoice/internal/models"
	"github.com/videovoice/videovoice/internal/system"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeRunner struct {
	launched []string
	speakers []string
}

func (f *fakeRunner) Launch(job *models.Job, speakerRef string) {
	f.launched = append(f.launched, job.ID)
	f.speakers = append(f.speakers, speakerRef)
}

type fakeLister struct{ engines []string }

func (f fakeLister) Available() []string { return f.engines }

type testEnv struct {
	cfg     config.Config
	manager *jobs.Manager
	runner  *fakeRunner
	server  *Server
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Config{}
	cfg.Storage.StaticDir = t.TempDir()
	cfg.Storage.MaxFileSize = config.ByteSize(10 << 20)
	cfg.Jobs = config.JobsConfig{
		MaxJobs:       20,
		MaxConcurrent: 3,
		MaxLogsPerJob: 100,
		Expiration:    config.Duration(24 * time.Hour),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	require.NoError(t, cfg.Storage.EnsureDirs())

	manager, err := jobs.New(cfg.Jobs, cfg.Storage, testLogger())
	require.NoError(t, err)

	runner := &fakeRunner{}
	collector := system.NewCollector(cfg.Storage.StaticDir, manager,
		fakeLister{engines: []string{"gemini", "local"}},
		fakeLister{engines: []string{"gemini", "ollama"}},
		fakeLister{engines: []string{"edge"}},
		testLogger())

	handlers := NewHandlers(cfg, manager, runner, collector,
		fakeLister{engines: []string{"gemini", "local"}},
		fakeLister{engines: []string{"gemini", "ollama"}},
		fakeLister{engines: []string{"edge"}},
		"test", testLogger())

	return &testEnv{
		cfg:     cfg,
		manager: manager,
		runner:  runner,
		server:  NewServer(cfg, handlers, testLogger()),
	}
}

func multipartBody(t *testing.T, fields map[string]string, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		fw, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func postJob(t *testing.T, env *testEnv, fields map[string]string, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, fields, filename, content)
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	return rec
}

func decodeJob(t *testing.T, rec *httptest.ResponseRecorder) *models.Job {
	t.Helper()
	var job models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	return &job
}

func TestCreateJobAccepted(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := postJob(t, env, map[string]string{
		"target_lang": "ko",
		"mode":        "dubbing",
	}, "movie.mp4", []byte("fake video bytes"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	job := decodeJob(t, rec)
	assert.Equal(t, models.JobStatusQueued, job.Status)
	assert.Equal(t, "movie.mp4", job.InputFilename)
	assert.Equal(t, models.InputTypeVideo, job.InputType)
	require.Len(t, env.runner.launched, 1)
	assert.Equal(t, job.ID, env.runner.launched[0])

	// The upload landed under the upload root with a uuid prefix.
	assert.True(t, strings.HasPrefix(job.InputFile, env.cfg.Storage.UploadDir()))
	assert.True(t, strings.HasSuffix(job.InputFile, "_movie.mp4"))
	data, err := os.ReadFile(job.InputFile)
	require.NoError(t, err)
	assert.Equal(t, "fake video bytes", string(data))
}

func TestCreateJobSanitizesFilename(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := postJob(t, env, nil, "my movie (final)!.mp4", []byte("x"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	job := decodeJob(t, rec)
	base := filepath.Base(job.InputFile)
	assert.NotContains(t, base, " ")
	assert.NotContains(t, base, "(")
	assert.True(t, strings.HasSuffix(base, ".mp4"))
}

func TestCreateJobLowercasesExtension(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := postJob(t, env, nil, "Movie.MP4", []byte("x"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	job := decodeJob(t, rec)
	assert.Equal(t, models.InputTypeVideo, job.InputType)
	assert.True(t, strings.HasSuffix(job.InputFile, "_Movie.mp4"), job.InputFile)
}

func TestCreateJobRejectsUnsupportedExtension(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := postJob(t, env, nil, "payload.exe", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported file extension")
	assert.Empty(t, env.runner.launched)

	entries, err := os.ReadDir(env.cfg.Storage.UploadDir())
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected upload must be removed")
}

func TestCreateJobRejectsBadSettings(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := postJob(t, env, map[string]string{"target_lang": "xx"}, "a.mp4", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported language")

	rec = postJob(t, env, map[string]string{"sync_mode": "bogus"}, "a.mp4", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJob(t, env, map[string]string{"clone_voice": "maybe"}, "a.mp4", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "clone_voice")
}

func TestCreateJobRejectsAudioForSubtitle(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := postJob(t, env, map[string]string{"mode": "subtitle"}, "a.mp3", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "subtitle mode requires a video input")
}

func TestCreateJobCredentialPrecheck(t *testing.T) {
	env := newTestEnv(t, nil)

	// openai is not among the available STT engines.
	rec := postJob(t, env, map[string]string{"stt_engine": "openai"}, "a.mp4", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "providers.openai.api_key")
	assert.Empty(t, env.runner.launched)
}

func TestCreateJobTooLarge(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Storage.MaxFileSize = config.ByteSize(64)
	})

	rec := postJob(t, env, nil, "big.mp4", bytes.Repeat([]byte("a"), 256))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	entries, err := os.ReadDir(env.cfg.Storage.UploadDir())
	require.NoError(t, err)
	assert.Empty(t, entries, "partial upload must be removed")
}

func TestCreateJobConcurrencyCap(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Jobs.MaxConcurrent = 1
	})

	rec := postJob(t, env, nil, "first.mp4", []byte("x"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postJob(t, env, nil, "second.mp4", []byte("x"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "too many active jobs")
}

func TestGetJob(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := postJob(t, env, nil, "a.mp4", []byte("x"))
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeJob(t, rec)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+created.ID, nil)
	got := httptest.NewRecorder()
	env.server.Router().ServeHTTP(got, req)
	require.Equal(t, http.StatusOK, got.Code)
	assert.Equal(t, created.ID, decodeJob(t, got).ID)

	req = httptest.NewRequest(http.MethodGet, "/api/jobs/nope", nil)
	got = httptest.NewRecorder()
	env.server.Router().ServeHTTP(got, req)
	assert.Equal(t, http.StatusNotFound, got.Code)
}

func TestCancelJob(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := postJob(t, env, nil, "a.mp4", []byte("x"))
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeJob(t, rec)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/"+created.ID+"/cancel", nil)
	got := httptest.NewRecorder()
	env.server.Router().ServeHTTP(got, req)
	require.Equal(t, http.StatusOK, got.Code)

	// A second cancel hits a terminal job.
	got = httptest.NewRecorder()
	env.server.Router().ServeHTTP(got, httptest.NewRequest(http.MethodPost, "/api/jobs/"+created.ID+"/cancel", nil))
	assert.Equal(t, http.StatusBadRequest, got.Code)
}

func completeJob(t *testing.T, env *testEnv, jobID, outputFile, captionFile string) {
	t.Helper()
	done := make(chan struct{})
	env.manager.Start(context.Background(), jobID, func(context.Context) error {
		defer close(done)
		return nil
	})
	<-done
	require.Eventually(t, func() bool {
		job, err := env.manager.Get(jobID)
		return err == nil && job.Status == models.JobStatusCompleted
	}, time.Second, 10*time.Millisecond)
	env.manager.SetResult(jobID, outputFile, captionFile)
}

func TestDownloadOutput(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := postJob(t, env, nil, "a.mp4", []byte("x"))
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeJob(t, rec)

	// Not finished yet.
	got := httptest.NewRecorder()
	env.server.Router().ServeHTTP(got, httptest.NewRequest(http.MethodGet, "/api/jobs/"+created.ID+"/download", nil))
	assert.Equal(t, http.StatusBadRequest, got.Code)

	output := filepath.Join(env.cfg.Storage.OutputDir(), "dubbed_"+created.ID+".mp4")
	require.NoError(t, os.WriteFile(output, []byte("dubbed bytes"), 0o644))
	completeJob(t, env, created.ID, output, "")

	got = httptest.NewRecorder()
	env.server.Router().ServeHTTP(got, httptest.NewRequest(http.MethodGet, "/api/jobs/"+created.ID+"/download", nil))
	require.Equal(t, http.StatusOK, got.Code)

	disposition := got.Header().Get("Content-Disposition")
	assert.Contains(t, disposition, "videovoice_")
	assert.Contains(t, disposition, ".mp4")

	body, err := io.ReadAll(got.Body)
	require.NoError(t, err)
	assert.Equal(t, "dubbed bytes", string(body))
}

func TestCompletedJobReportsOutputURL(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := postJob(t, env, nil, "a.mp4", []byte("x"))
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeJob(t, rec)

	output := filepath.Join(env.cfg.Storage.OutputDir(), "dubbed_"+created.ID+".mp4")
	require.NoError(t, os.WriteFile(output, []byte("dubbed bytes"), 0o644))
	completeJob(t, env, created.ID, output, "")

	// The API reports a URL path, not the filesystem location.
	got := httptest.NewRecorder()
	env.server.Router().ServeHTTP(got, httptest.NewRequest(http.MethodGet, "/api/jobs/"+created.ID, nil))
	require.Equal(t, http.StatusOK, got.Code)
	job := decodeJob(t, got)
	assert.Equal(t, "/static/outputs/dubbed_"+created.ID+".mp4", job.OutputFile)

	// And that URL is directly fetchable.
	got = httptest.NewRecorder()
	env.server.Router().ServeHTTP(got, httptest.NewRequest(http.MethodGet, job.OutputFile, nil))
	require.Equal(t, http.StatusOK, got.Code)
	assert.Equal(t, "dubbed bytes", got.Body.String())
}

func TestStaticRouteHidesUploads(t *testing.T) {
	env := newTestEnv(t, nil)

	upload := filepath.Join(env.cfg.Storage.UploadDir(), "secret.mp4")
	require.NoError(t, os.WriteFile(upload, []byte("private"), 0o644))

	got := httptest.NewRecorder()
	env.server.Router().ServeHTTP(got, httptest.NewRequest(http.MethodGet, "/static/uploads/secret.mp4", nil))
	assert.Equal(t, http.StatusNotFound, got.Code)
}

func TestDownloadCaptions(t *testing.T) {
	env := newTestEnv(t, nil)

	// Dubbing job: no captions endpoint.
	rec := postJob(t, env, nil, "a.mp4", []byte("x"))
	require.Equal(t, http.StatusCreated, rec.Code)
	dubbing := decodeJob(t, rec)

	got := httptest.NewRecorder()
	env.server.Router().ServeHTTP(got, httptest.NewRequest(http.MethodGet, "/api/jobs/"+dubbing.ID+"/srt", nil))
	assert.Equal(t, http.StatusBadRequest, got.Code)

	rec = postJob(t, env, map[string]string{"mode": "subtitle"}, "b.mp4", []byte("x"))
	require.Equal(t, http.StatusCreated, rec.Code)
	subtitle := decodeJob(t, rec)

	captions := filepath.Join(env.cfg.Storage.OutputDir(), "subtitle_"+subtitle.ID+".srt")
	require.NoError(t, os.WriteFile(captions, []byte("1\n00:00:00,000 --> 00:00:01,000\nhello\n"), 0o644))
	output := filepath.Join(env.cfg.Storage.OutputDir(), "subtitle_"+subtitle.ID+".mp4")
	require.NoError(t, os.WriteFile(output, []byte("video"), 0o644))
	completeJob(t, env, subtitle.ID, output, captions)

	got = httptest.NewRecorder()
	env.server.Router().ServeHTTP(got, httptest.NewRequest(http.MethodGet, "/api/jobs/"+subtitle.ID+"/srt", nil))
	require.Equal(t, http.StatusOK, got.Code)
	assert.Contains(t, got.Header().Get("Content-Disposition"), ".srt")
	assert.Contains(t, got.Body.String(), "hello")
}

func TestSystemStatusEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	got := httptest.NewRecorder()
	env.server.Router().ServeHTTP(got, httptest.NewRequest(http.MethodGet, "/api/system/status", nil))
	require.Equal(t, http.StatusOK, got.Code)

	var snap system.Snapshot
	require.NoError(t, json.Unmarshal(got.Body.Bytes(), &snap))
	assert.Equal(t, []string{"gemini", "local"}, snap.Engines.STT)
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	got := httptest.NewRecorder()
	env.server.Router().ServeHTTP(got, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, got.Code)
	assert.Contains(t, got.Body.String(), `"status":"ok"`)
}

func TestAPIKeyGate(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Server.APIKey = "sekrit"
	})

	got := httptest.NewRecorder()
	env.server.Router().ServeHTTP(got, httptest.NewRequest(http.MethodGet, "/api/system/status", nil))
	assert.Equal(t, http.StatusUnauthorized, got.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/system/status", nil)
	req.Header.Set("X-API-Key", "sekrit")
	got = httptest.NewRecorder()
	env.server.Router().ServeHTTP(got, req)
	assert.Equal(t, http.StatusOK, got.Code)

	// Health stays open for probes.
	got = httptest.NewRecorder()
	env.server.Router().ServeHTTP(got, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, got.Code)
}

func TestDownloadNameIsStable(t *testing.T) {
	a := downloadName("01ARZ3NDEKTSV4RRFFQ69G5FAV", ".mp4")
	b := downloadName("01ARZ3NDEKTSV4RRFFQ69G5FAV", ".mp4")
	c := downloadName("01BX5ZZKBKACTAV9WEVGEMMVS0", ".mp4")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Regexp(t, `^videovoice_[0-9a-f]{8}\.mp4$`, a)
}
