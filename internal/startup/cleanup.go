package startup

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TempDirPrefix matches the per-job scratch directories the pipeline
// creates. A crash leaves them behind; boot sweeps them up.
const TempDirPrefix = "videovoice-"

// DefaultCleanupAge spares directories younger than this, they may belong
// to another live instance.
const DefaultCleanupAge = 1 * time.Hour

// CleanupOrphanedTempDirs removes stale pipeline scratch directories under
// baseDir (the system temp directory when empty) and returns how many were
// removed.
func CleanupOrphanedTempDirs(logger *slog.Logger, baseDir string, maxAge time.Duration) (int, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	entries, err := os.ReadDir(baseDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), TempDirPrefix) {
			continue
		}
		path := filepath.Join(baseDir, entry.Name())

		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			logger.Warn("removing stale temp directory failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			continue
		}
		removed++
	}
	return removed, nil
}
