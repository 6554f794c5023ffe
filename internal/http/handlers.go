package http

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/videovoice/videovoice/internal/config"
	"github.com/videovoice/videovoice/internal/jobs"
	"github.com/videovoice/videovoice/internal/models"
	"github.com/videovoice/videovoice/internal/observability"
	"github.com/videovoice/videovoice/internal/system"
	"github.com/videovoice/videovoice/pkg/format"
)

// uploadChunkSize is the copy buffer for streaming uploads to disk.
const uploadChunkSize = 1 << 20

// maxFieldLen bounds a single multipart form value.
const maxFieldLen = 4 << 10

// unsafeFilenameChars is everything stripped from client filenames.
var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// Runner launches the processing pipeline for an accepted job.
type Runner interface {
	Launch(job *models.Job, speakerRef string)
}

// Handlers implements the API endpoints.
type Handlers struct {
	cfg       config.Config
	jobs      *jobs.Manager
	runner    Runner
	collector *system.Collector

	sttEngines       system.EngineLister
	translateEngines system.EngineLister
	ttsEngines       system.EngineLister

	version string
	logger  *slog.Logger
}

// NewHandlers wires the endpoint implementations.
func NewHandlers(cfg config.Config, manager *jobs.Manager, runner Runner, collector *system.Collector,
	stt, translate, tts system.EngineLister, version string, logger *slog.Logger) *Handlers {
	return &Handlers{
		cfg:              cfg,
		jobs:             manager,
		runner:           runner,
		collector:        collector,
		sttEngines:       stt,
		translateEngines: translate,
		ttsEngines:       tts,
		version:          version,
		logger:           observability.WithComponent(logger, "http"),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, format string, args ...any) {
	respondJSON(w, status, errorResponse{Error: fmt.Sprintf(format, args...)})
}

// Health answers liveness probes.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": h.version})
}

// SystemStatus serves the host and capability snapshot.
func (h *Handlers) SystemStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.collector.Snapshot(r.Context()))
}

// CreateJob admits an upload: capacity, settings, extension and credential
// checks, then a streamed save and pipeline launch. Any rejection after
// bytes hit disk removes the partial files.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	queued, processing := h.jobs.Counts()
	if queued+processing >= h.cfg.Jobs.MaxConcurrent {
		respondError(w, http.StatusTooManyRequests,
			"too many active jobs (%d running, limit %d)", queued+processing, h.cfg.Jobs.MaxConcurrent)
		return
	}

	form, err := h.readUploadForm(r)
	if form != nil {
		defer form.cleanupOnFailure()
	}
	if err != nil {
		var tooLarge *uploadTooLargeError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "%s", tooLarge.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "%s", err.Error())
		return
	}

	settings, err := form.settings()
	if err != nil {
		respondError(w, http.StatusBadRequest, "%s", err.Error())
		return
	}
	inputType, ok := models.InputTypeForFilename(form.inputFilename)
	if !ok {
		respondError(w, http.StatusBadRequest, "%s: %q", models.ErrUnsupportedExtension, filepath.Ext(form.inputFilename))
		return
	}
	if settings.Mode == models.ModeSubtitle && inputType == models.InputTypeAudio {
		respondError(w, http.StatusBadRequest, "%s", models.ErrAudioInputForSubtitle)
		return
	}
	if missing := h.missingCredentials(settings); len(missing) > 0 {
		respondError(w, http.StatusBadRequest, "missing provider credentials: %s", strings.Join(missing, ", "))
		return
	}

	job, err := h.jobs.Create(settings, form.inputPath, form.inputFilename, inputType)
	if err != nil {
		if errors.Is(err, jobs.ErrRegistryFull) {
			respondError(w, http.StatusTooManyRequests, "%s", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "creating job: %s", err.Error())
		return
	}

	form.keep()
	size := int64(0)
	if fi, err := os.Stat(form.inputPath); err == nil {
		size = fi.Size()
	}
	h.logger.Info("job accepted",
		slog.String("job_id", job.ID),
		slog.String("mode", string(settings.Mode)),
		slog.String("filename", form.inputFilename),
		slog.String("size", format.Bytes(size)))

	h.runner.Launch(job, form.speakerPath)
	respondJSON(w, http.StatusCreated, job)
}

// GetJob serves the full job state.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookupJob(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// CancelJob requests cooperative cancellation.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	switch err := h.jobs.Cancel(id); {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]string{"status": string(models.JobStatusCancelled)})
	case errors.Is(err, models.ErrJobNotFound):
		respondError(w, http.StatusNotFound, "%s", err.Error())
	case errors.Is(err, models.ErrJobTerminal):
		respondError(w, http.StatusBadRequest, "%s", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "%s", err.Error())
	}
}

// DownloadOutput serves the finished artifact with an anonymized download
// name.
func (h *Handlers) DownloadOutput(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookupJob(w, r)
	if !ok {
		return
	}
	if job.Status != models.JobStatusCompleted || job.OutputFile == "" {
		respondError(w, http.StatusBadRequest, "job has no output yet")
		return
	}
	path := h.cfg.Storage.FilePath(job.OutputFile)
	if !underDir(path, h.cfg.Storage.OutputDir()) {
		respondError(w, http.StatusInternalServerError, "output path outside storage root")
		return
	}

	name := downloadName(job.ID, filepath.Ext(path))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, path)
}

// DownloadCaptions serves the SRT file of a subtitle job.
func (h *Handlers) DownloadCaptions(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookupJob(w, r)
	if !ok {
		return
	}
	if job.Settings.Mode != models.ModeSubtitle {
		respondError(w, http.StatusBadRequest, "captions are only produced in subtitle mode")
		return
	}
	if job.CaptionFile == "" {
		respondError(w, http.StatusBadRequest, "job has no captions yet")
		return
	}
	path := h.cfg.Storage.FilePath(job.CaptionFile)
	if !underDir(path, h.cfg.Storage.OutputDir()) {
		respondError(w, http.StatusInternalServerError, "caption path outside storage root")
		return
	}

	name := downloadName(job.ID, ".srt")
	w.Header().Set("Content-Type", "text/srt; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, path)
}

func (h *Handlers) lookupJob(w http.ResponseWriter, r *http.Request) (*models.Job, bool) {
	job, err := h.jobs.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "%s", err.Error())
		return nil, false
	}
	return job, true
}

// downloadName derives a stable anonymized filename from the job id.
func downloadName(jobID, ext string) string {
	sum := sha256.Sum256([]byte(jobID))
	return "videovoice_" + hex.EncodeToString(sum[:4]) + ext
}

// uploadForm is the parsed multipart payload. Saved files are removed on
// cleanup unless keep was called.
type uploadForm struct {
	values        map[string]string
	inputPath     string
	inputFilename string
	speakerPath   string
	kept          bool
}

func (f *uploadForm) keep() { f.kept = true }

func (f *uploadForm) cleanupOnFailure() {
	if f.kept {
		return
	}
	for _, p := range []string{f.inputPath, f.speakerPath} {
		if p != "" {
			_ = os.Remove(p)
		}
	}
}

type uploadTooLargeError struct {
	limit config.ByteSize
}

func (e *uploadTooLargeError) Error() string {
	return fmt.Sprintf("file exceeds the %s upload limit", e.limit)
}

// readUploadForm streams the multipart body, saving the media and optional
// speaker sample under the upload root with uuid-prefixed sanitized names.
func (h *Handlers) readUploadForm(r *http.Request) (*uploadForm, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("expected multipart form: %w", err)
	}

	form := &uploadForm{values: make(map[string]string)}
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return form, fmt.Errorf("reading form: %w", err)
		}

		switch part.FormName() {
		case "file":
			form.inputFilename = filepath.Base(part.FileName())
			form.inputPath, err = h.savePart(part, form.inputFilename)
		case "speaker_ref":
			form.speakerPath, err = h.savePart(part, filepath.Base(part.FileName()))
		default:
			var value []byte
			value, err = io.ReadAll(io.LimitReader(part, maxFieldLen))
			form.values[part.FormName()] = strings.TrimSpace(string(value))
		}
		part.Close()
		if err != nil {
			return form, err
		}
	}

	if form.inputPath == "" {
		return form, fmt.Errorf("missing file field")
	}
	return form, nil
}

// savePart streams one file part to the upload root in 1 MB chunks,
// enforcing the configured size cap.
func (h *Handlers) savePart(part *multipart.Part, filename string) (string, error) {
	if filename == "" || filename == "." {
		return "", fmt.Errorf("missing filename")
	}
	safe := unsafeFilenameChars.ReplaceAllString(filename, "_")
	if ext := filepath.Ext(safe); ext != "" {
		safe = strings.TrimSuffix(safe, ext) + strings.ToLower(ext)
	}
	path := filepath.Join(h.cfg.Storage.UploadDir(), uuid.New().String()+"_"+safe)

	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating upload file: %w", err)
	}

	limit := int64(h.cfg.Storage.MaxFileSize)
	written, err := io.CopyBuffer(dst, io.LimitReader(part, limit+1), make([]byte, uploadChunkSize))
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("saving upload: %w", err)
	}
	if written > limit {
		os.Remove(path)
		return "", &uploadTooLargeError{limit: h.cfg.Storage.MaxFileSize}
	}
	return path, nil
}

// settings builds and validates the job settings from the form values.
func (f *uploadForm) settings() (models.Settings, error) {
	s := models.DefaultSettings()

	if v, ok := f.values["source_lang"]; ok && v != "" {
		s.SourceLang = v
	}
	if v, ok := f.values["target_lang"]; ok && v != "" {
		s.TargetLang = v
	}
	if v, ok := f.values["mode"]; ok && v != "" {
		s.Mode = models.Mode(v)
	}
	if v, ok := f.values["sync_mode"]; ok && v != "" {
		s.SyncMode = models.SyncMode(v)
	}
	if v, ok := f.values["translation_engine"]; ok && v != "" {
		s.TranslationEngine = v
	}
	if v, ok := f.values["stt_engine"]; ok && v != "" {
		s.STTEngine = v
	}
	if v, ok := f.values["tts_engine"]; ok && v != "" {
		s.TTSEngine = v
	}
	for field, target := range map[string]*bool{
		"clone_voice":        &s.CloneVoice,
		"verify_translation": &s.VerifyTranslation,
	} {
		if v, ok := f.values[field]; ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return s, fmt.Errorf("invalid %s value %q", field, v)
			}
			*target = b
		}
	}

	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// credentialKeys maps engine names to the config keys that enable them.
var credentialKeys = map[string]string{
	"gemini":     "providers.gemini.api_key",
	"groq":       "providers.groq.api_key",
	"openai":     "providers.openai.api_key",
	"elevenlabs": "providers.elevenlabs.api_key",
	"local":      "providers.whisper.binary_path",
	"xtts":       "providers.xtts.base_url",
	"silero":     "providers.silero.base_url",
}

// missingCredentials pre-checks that every pinned engine is actually
// configured, and that auto selections have at least one candidate. The
// returned list names the config keys that would unlock the request.
func (h *Handlers) missingCredentials(settings models.Settings) []string {
	var missing []string

	check := func(engine string, lister system.EngineLister, fallbackKeys ...string) {
		available := lister.Available()
		if engine != models.EngineAuto {
			for _, name := range available {
				if name == engine {
					return
				}
			}
			if key, ok := credentialKeys[engine]; ok {
				missing = append(missing, key)
			} else {
				missing = append(missing, engine)
			}
			return
		}
		if len(available) == 0 {
			missing = append(missing, fallbackKeys...)
		}
	}

	check(settings.STTEngine, h.sttEngines,
		"providers.gemini.api_key", "providers.groq.api_key", "providers.openai.api_key", "providers.whisper.binary_path")
	check(settings.TranslationEngine, h.translateEngines,
		"providers.gemini.api_key", "providers.groq.api_key", "providers.ollama.base_url")
	if settings.Mode == models.ModeDubbing {
		check(settings.TTSEngine, h.ttsEngines, "providers.edge.voices")
	}
	return missing
}

func underDir(path, dir string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
