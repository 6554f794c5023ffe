package startup

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestCleanupOrphanedTempDirs(t *testing.T) {
	base := t.TempDir()
	old := time.Now().Add(-2 * time.Hour)

	stale := filepath.Join(base, TempDirPrefix+"01ABC-123")
	require.NoError(t, os.Mkdir(stale, 0o755))
	require.NoError(t, os.Chtimes(stale, old, old))

	fresh := filepath.Join(base, TempDirPrefix+"01DEF-456")
	require.NoError(t, os.Mkdir(fresh, 0o755))

	unrelated := filepath.Join(base, "someone-elses-dir")
	require.NoError(t, os.Mkdir(unrelated, 0o755))
	require.NoError(t, os.Chtimes(unrelated, old, old))

	removed, err := CleanupOrphanedTempDirs(testLogger(), base, DefaultCleanupAge)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.NoDirExists(t, stale)
	assert.DirExists(t, fresh)
	assert.DirExists(t, unrelated)
}

func TestCleanupOrphanedTempDirsMissingBase(t *testing.T) {
	removed, err := CleanupOrphanedTempDirs(testLogger(), filepath.Join(t.TempDir(), "nope"), DefaultCleanupAge)
	require.NoError(t, err)
	assert.Zero(t, removed)
}
