package jobs

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/renameio/v2"

	"github.com/videovoice/videovoice/internal/models"
)

// persistedLogTail caps how many log lines survive a restart per job.
const persistedLogTail = 20

type registryFile struct {
	SavedAt time.Time     `json:"saved_at"`
	Jobs    []*models.Job `json:"jobs"`
}

// load reads the persisted registry. A missing file is a fresh start; a
// corrupt one is logged and ignored rather than blocking startup. Jobs that
// were still running are marked failed, their pipelines did not survive the
// restart.
func (m *Manager) load() error {
	data, err := os.ReadFile(m.storage.RegistryPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading job registry: %w", err)
	}

	var file registryFile
	if err := json.Unmarshal(data, &file); err != nil {
		m.logger.Warn("job registry corrupt, starting empty",
			slog.String("path", m.storage.RegistryPath()),
			slog.String("error", err.Error()))
		return nil
	}

	interrupted := 0
	for _, job := range file.Jobs {
		if job == nil || job.ID == "" {
			continue
		}
		if !job.IsTerminal() {
			job.MarkFailed(fmt.Errorf("%s", restartFailureMessage))
			interrupted++
		}
		m.jobs[job.ID] = job
	}

	m.logger.Info("job registry loaded",
		slog.Int("jobs", len(m.jobs)),
		slog.Int("interrupted", interrupted))
	return nil
}

// persistLocked writes the registry atomically. Callers hold m.mu. Failures
// are logged, not returned; an unwritable registry should not take down a
// running job.
func (m *Manager) persistLocked() {
	file := registryFile{SavedAt: time.Now().UTC(), Jobs: make([]*models.Job, 0, len(m.jobs))}
	for _, job := range m.jobs {
		cp := snapshot(job)
		cp.Logs = job.LogTail(persistedLogTail)
		file.Jobs = append(file.Jobs, cp)
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		m.logger.Error("encoding job registry failed", slog.String("error", err.Error()))
		return
	}
	if err := renameio.WriteFile(m.storage.RegistryPath(), data, 0o644); err != nil {
		m.logger.Warn("persisting job registry failed",
			slog.String("path", m.storage.RegistryPath()),
			slog.String("error", err.Error()))
	}
}
