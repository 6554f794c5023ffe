// Package jobs owns the job registry: creation, state transitions, the
// concurrency gate for running pipelines, and retention of finished jobs
// and their files.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/videovoice/videovoice/internal/config"
	"github.com/videovoice/videovoice/internal/models"
	"github.com/videovoice/videovoice/internal/observability"
)

// ErrRegistryFull indicates the registry is at capacity with no evictable
// finished job.
var ErrRegistryFull = errors.New("job registry is full")

// orphanGrace protects files younger than this from the orphan sweep, so an
// upload still being written is never collected.
const orphanGrace = time.Hour

// restartFailureMessage marks jobs that were in flight when the server went
// down. Korean first for the UI, English in parentheses for the logs.
const restartFailureMessage = "서버가 재시작되어 작업이 중단되었습니다. (server restart interrupted job)"

// Manager is the job registry. It implements pipeline.Reporter so running
// pipelines feed their progress straight into it.
type Manager struct {
	mu        sync.Mutex
	jobs      map[string]*models.Job
	cancelled map[string]struct{}

	sem     *semaphore.Weighted
	cfg     config.JobsConfig
	storage config.StorageConfig
	logger  *slog.Logger
}

// New builds a manager, loading any persisted registry. Jobs that were
// queued or processing at the previous shutdown are marked failed.
func New(cfg config.JobsConfig, storage config.StorageConfig, logger *slog.Logger) (*Manager, error) {
	m := &Manager{
		jobs:      make(map[string]*models.Job),
		cancelled: make(map[string]struct{}),
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		cfg:       cfg,
		storage:   storage,
		logger:    observability.WithComponent(logger, "jobs"),
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

// Create registers a new queued job. At capacity it first drops expired
// jobs, then evicts the oldest finished one; with every slot occupied by an
// active job it refuses with ErrRegistryFull.
func (m *Manager) Create(settings models.Settings, inputFile, inputFilename string, inputType models.InputType) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.jobs) >= m.cfg.MaxJobs {
		m.removeExpiredLocked(time.Now().UTC())
	}
	if len(m.jobs) >= m.cfg.MaxJobs {
		if !m.evictOldestTerminalLocked() {
			return nil, ErrRegistryFull
		}
	}

	job := models.NewJob(settings, inputFile, inputFilename, inputType)
	m.jobs[job.ID] = job
	m.persistLocked()

	m.logger.Info("job created",
		slog.String("job_id", job.ID),
		slog.String("mode", string(settings.Mode)),
		slog.String("input", inputFilename))
	return snapshot(job), nil
}

// Get returns a copy of the job, safe to serialize without the lock.
func (m *Manager) Get(id string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, models.ErrJobNotFound
	}
	return snapshot(job), nil
}

// List returns copies of all jobs, newest first.
func (m *Manager) List() []*models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, snapshot(job))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Start runs the job body under the concurrency gate on its own goroutine.
// The body's error decides the terminal state.
func (m *Manager) Start(ctx context.Context, jobID string, run func(ctx context.Context) error) {
	go func() {
		if err := m.sem.Acquire(ctx, 1); err != nil {
			m.finish(jobID, err)
			return
		}
		defer m.sem.Release(1)

		if m.Cancelled(jobID) {
			m.finish(jobID, models.ErrJobCancelled)
			return
		}

		m.mu.Lock()
		if job, ok := m.jobs[jobID]; ok {
			job.MarkProcessing()
		}
		m.mu.Unlock()

		m.finish(jobID, run(ctx))
	}()
}

func (m *Manager) finish(jobID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return
	}
	switch {
	case err == nil:
		if job.CurrentStep != "" && job.Steps[job.CurrentStep] == models.StepProcessing {
			job.Steps[job.CurrentStep] = models.StepDone
		}
		job.MarkCompleted()
	case errors.Is(err, models.ErrJobCancelled) || errors.Is(err, context.Canceled):
		m.failCurrentStepLocked(job)
		job.MarkCancelled()
	default:
		m.failCurrentStepLocked(job)
		job.MarkFailed(err)
	}
	delete(m.cancelled, jobID)
	m.persistLocked()

	m.logger.Info("job finished",
		slog.String("job_id", jobID),
		slog.String("status", string(job.Status)))
}

// Cancel flips the job to cancelled and flags the cancel set. A running
// pipeline observes the flag cooperatively at its next stage boundary;
// in-flight external calls are not killed.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return models.ErrJobNotFound
	}
	if job.IsTerminal() {
		return models.ErrJobTerminal
	}
	m.cancelled[id] = struct{}{}
	job.AppendLog("cancellation requested", m.cfg.MaxLogsPerJob)
	m.failCurrentStepLocked(job)
	job.MarkCancelled()
	m.persistLocked()
	return nil
}

func (m *Manager) failCurrentStepLocked(job *models.Job) {
	if job.CurrentStep != "" && job.Steps[job.CurrentStep] == models.StepProcessing {
		job.Steps[job.CurrentStep] = models.StepFailed
	}
}

// SetResult records the deliverables produced by a pipeline run. The job
// carries them as URL paths; anything touching the files resolves back
// through StorageConfig.FilePath.
func (m *Manager) SetResult(jobID, outputFile, captionFile string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, ok := m.jobs[jobID]; ok {
		job.OutputFile = m.storage.URLPath(outputFile)
		job.CaptionFile = m.storage.URLPath(captionFile)
	}
}

// Counts returns the number of queued and processing jobs.
func (m *Manager) Counts() (queued, processing int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, job := range m.jobs {
		switch job.Status {
		case models.JobStatusQueued:
			queued++
		case models.JobStatusProcessing:
			processing++
		}
	}
	return queued, processing
}

// Progress implements pipeline.Reporter.
func (m *Manager) Progress(jobID string, percent int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, ok := m.jobs[jobID]; ok {
		job.SetProgress(percent)
	}
}

// Step implements pipeline.Reporter. The previous step is closed out as
// done before the new one starts.
func (m *Manager) Step(jobID string, step models.Step) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return
	}
	if job.CurrentStep != "" && job.Steps[job.CurrentStep] == models.StepProcessing {
		job.Steps[job.CurrentStep] = models.StepDone
	}
	job.SetStep(step, models.StepProcessing)
}

// Log implements pipeline.Reporter.
func (m *Manager) Log(jobID string, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, ok := m.jobs[jobID]; ok {
		job.AppendLog(message, m.cfg.MaxLogsPerJob)
	}
}

// SetQualityResult implements pipeline.Reporter.
func (m *Manager) SetQualityResult(jobID string, result *models.QualityResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, ok := m.jobs[jobID]; ok {
		job.QualityResult = result
	}
}

// Cancelled implements pipeline.Reporter.
func (m *Manager) Cancelled(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.cancelled[jobID]
	return ok
}

// CleanupExpired drops finished jobs past their retention, along with their
// files, and returns how many were removed.
func (m *Manager) CleanupExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := m.removeExpiredLocked(time.Now().UTC())
	if removed > 0 {
		m.persistLocked()
	}
	return removed
}

// CleanupOrphans deletes files in the upload and output roots that no
// registered job references. Files younger than orphanGrace are spared.
func (m *Manager) CleanupOrphans() int {
	m.mu.Lock()
	referenced := make(map[string]struct{}, len(m.jobs)*3)
	for _, job := range m.jobs {
		for _, p := range []string{job.InputFile, job.OutputFile, job.CaptionFile} {
			if p != "" {
				referenced[filepath.Clean(m.storage.FilePath(p))] = struct{}{}
			}
		}
	}
	m.mu.Unlock()

	cutoff := time.Now().Add(-orphanGrace)
	removed := 0
	for _, root := range []string{m.storage.UploadDir(), m.storage.OutputDir()} {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			path := filepath.Join(root, entry.Name())
			if _, ok := referenced[path]; ok {
				continue
			}
			info, err := entry.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
			if err := os.Remove(path); err != nil {
				m.logger.Warn("removing orphan failed",
					slog.String("path", path),
					slog.String("error", err.Error()))
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("orphan sweep removed files", slog.Int("count", removed))
	}
	return removed
}

// Close persists the registry one last time.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persistLocked()
}

func (m *Manager) removeExpiredLocked(now time.Time) int {
	expiration := m.cfg.Expiration.Duration()
	removed := 0
	for id, job := range m.jobs {
		if !job.IsTerminal() || job.CompletedAt == nil {
			continue
		}
		if now.Sub(*job.CompletedAt) < expiration {
			continue
		}
		m.removeJobFilesLocked(job)
		delete(m.jobs, id)
		delete(m.cancelled, id)
		removed++
	}
	if removed > 0 {
		m.logger.Info("expired jobs removed", slog.Int("count", removed))
	}
	return removed
}

func (m *Manager) evictOldestTerminalLocked() bool {
	var oldest *models.Job
	for _, job := range m.jobs {
		if !job.IsTerminal() {
			continue
		}
		if oldest == nil || job.CreatedAt.Before(oldest.CreatedAt) {
			oldest = job
		}
	}
	if oldest == nil {
		return false
	}
	m.removeJobFilesLocked(oldest)
	delete(m.jobs, oldest.ID)
	delete(m.cancelled, oldest.ID)
	m.logger.Info("evicted oldest finished job", slog.String("job_id", oldest.ID))
	return true
}

// removeJobFilesLocked deletes the job's files, but only ones that actually
// live under the storage roots. A registry entry with a path outside them,
// however it got there, must never cause a delete elsewhere.
func (m *Manager) removeJobFilesLocked(job *models.Job) {
	targets := []struct {
		path string
		root string
	}{
		{job.InputFile, m.storage.UploadDir()},
		{job.OutputFile, m.storage.OutputDir()},
		{job.CaptionFile, m.storage.OutputDir()},
	}
	for _, t := range targets {
		path := m.storage.FilePath(t.path)
		if path == "" || !underDir(path, t.root) {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("removing job file failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
	}
}

func underDir(path, dir string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// snapshot deep-copies the mutable parts of a job.
func snapshot(job *models.Job) *models.Job {
	cp := *job
	cp.Steps = make(map[models.Step]models.StepStatus, len(job.Steps))
	for k, v := range job.Steps {
		cp.Steps[k] = v
	}
	cp.StepOrder = append([]models.Step(nil), job.StepOrder...)
	cp.Logs = append([]models.LogEntry(nil), job.Logs...)
	if job.QualityResult != nil {
		qr := *job.QualityResult
		qr.Issues = append([]string(nil), job.QualityResult.Issues...)
		cp.QualityResult = &qr
	}
	if job.CompletedAt != nil {
		at := *job.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}
