package cache

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/videovoice/videovoice/internal/models"
)

func newTestCache(t *testing.T, expirationDays, floor int) *TranslationCache {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	c, err := New(t.TempDir(), expirationDays, floor, logger)
	require.NoError(t, err)
	return c
}

func TestKey(t *testing.T) {
	k := Key("hello world", "en", "ko", models.SyncOptimize)
	assert.Len(t, k, 24)

	// Key is stable and sensitive to every input.
	assert.Equal(t, k, Key("hello world", "en", "ko", models.SyncOptimize))
	assert.NotEqual(t, k, Key("hello world!", "en", "ko", models.SyncOptimize))
	assert.NotEqual(t, k, Key("hello world", "ja", "ko", models.SyncOptimize))
	assert.NotEqual(t, k, Key("hello world", "en", "ru", models.SyncOptimize))
	assert.NotEqual(t, k, Key("hello world", "en", "ko", models.SyncStretch))
}

func TestPutGetRoundTrip(t *testing.T) {
	c := newTestCache(t, 30, 60)

	quality := &models.QualityResult{
		OverallScore:   92,
		Recommendation: models.RecommendationApproved,
	}
	require.NoError(t, c.Put("source text", "en", "ko", models.SyncOptimize, "번역", quality))

	entry := c.Get("source text", "en", "ko", models.SyncOptimize)
	require.NotNil(t, entry)
	assert.Equal(t, "번역", entry.TranslatedText)
	assert.Equal(t, "en", entry.SourceLang)
	assert.Equal(t, "ko", entry.TargetLang)
	require.NotNil(t, entry.QualityResult)
	assert.Equal(t, 92, entry.QualityResult.OverallScore)
}

func TestGetMiss(t *testing.T) {
	c := newTestCache(t, 30, 60)
	assert.Nil(t, c.Get("never stored", "en", "ko", models.SyncOptimize))
}

func TestGetDeletesCorruptEntry(t *testing.T) {
	c := newTestCache(t, 30, 60)
	key := Key("text", "en", "ko", models.SyncOptimize)
	path := filepath.Join(c.dir, key+".json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	assert.Nil(t, c.Get("text", "en", "ko", models.SyncOptimize))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestGetDeletesExpiredEntry(t *testing.T) {
	c := newTestCache(t, 30, 60)
	writeEntryAged(t, c, "old text", 31*24*time.Hour)

	assert.Nil(t, c.Get("old text", "en", "ko", models.SyncOptimize))
}

func TestGetInvalidatesLowQualityEntry(t *testing.T) {
	c := newTestCache(t, 30, 60)
	require.NoError(t, c.Put("weak", "en", "ko", models.SyncOptimize, "bad", &models.QualityResult{
		OverallScore:   45,
		Recommendation: models.RecommendationReject,
	}))

	assert.Nil(t, c.Get("weak", "en", "ko", models.SyncOptimize))

	// Entry without a quality result is served as-is.
	require.NoError(t, c.Put("unscored", "en", "ko", models.SyncOptimize, "text", nil))
	assert.NotNil(t, c.Get("unscored", "en", "ko", models.SyncOptimize))
}

func TestInvalidate(t *testing.T) {
	c := newTestCache(t, 30, 60)
	require.NoError(t, c.Put("gone", "en", "ko", models.SyncOptimize, "x", nil))
	c.Invalidate("gone", "en", "ko", models.SyncOptimize)
	assert.Nil(t, c.Get("gone", "en", "ko", models.SyncOptimize))
}

func TestSweep(t *testing.T) {
	c := newTestCache(t, 30, 60)

	require.NoError(t, c.Put("fresh", "en", "ko", models.SyncOptimize, "keep", nil))
	writeEntryAged(t, c, "stale one", 31*24*time.Hour)
	writeEntryAged(t, c, "stale two", 90*24*time.Hour)
	require.NoError(t, os.WriteFile(filepath.Join(c.dir, "broken.json"), []byte("garbage"), 0o644))

	removed, err := c.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	assert.NotNil(t, c.Get("fresh", "en", "ko", models.SyncOptimize))
}

func writeEntryAged(t *testing.T, c *TranslationCache, text string, age time.Duration) {
	t.Helper()
	entry := Entry{
		Timestamp:      time.Now().UTC().Add(-age),
		SourceLang:     "en",
		TargetLang:     "ko",
		SyncMode:       models.SyncOptimize,
		TranslatedText: "stale",
	}
	data, err := json.Marshal(entry)
	require.NoError(t, err)
	key := Key(text, "en", "ko", models.SyncOptimize)
	require.NoError(t, os.WriteFile(filepath.Join(c.dir, key+".json"), data, 0o644))
}
