// Package cache implements the content-addressed on-disk translation cache.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"github.com/videovoice/videovoice/internal/models"
	"github.com/videovoice/videovoice/internal/observability"
)

// keyLen is the truncated hex length of the cache key.
const keyLen = 24

// Entry is one cached translation.
type Entry struct {
	Timestamp      time.Time             `json:"timestamp"`
	SourceLang     string                `json:"source_lang"`
	TargetLang     string                `json:"target_lang"`
	SyncMode       models.SyncMode       `json:"sync_mode"`
	TranslatedText string                `json:"translated_text"`
	QualityResult  *models.QualityResult `json:"quality_result,omitempty"`
}

// TranslationCache stores translations keyed by a hash of the request.
// Entries below the quality floor are invalidated on read; writes are atomic.
type TranslationCache struct {
	dir          string
	expiration   time.Duration
	qualityFloor int
	logger       *slog.Logger
}

// New creates a cache rooted at dir. expirationDays bounds entry age and
// qualityFloor is the minimum admitted overall score.
func New(dir string, expirationDays, qualityFloor int, logger *slog.Logger) (*TranslationCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	return &TranslationCache{
		dir:          dir,
		expiration:   time.Duration(expirationDays) * 24 * time.Hour,
		qualityFloor: qualityFloor,
		logger:       observability.WithComponent(logger, "translation-cache"),
	}, nil
}

// Key derives the content address: sha256(text|src|tgt|mode) truncated to 24
// hex characters.
func Key(text, sourceLang, targetLang string, syncMode models.SyncMode) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		text, sourceLang, targetLang, string(syncMode),
	}, "|")))
	return hex.EncodeToString(sum[:])[:keyLen]
}

func (c *TranslationCache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}

// Get returns the cached entry, or nil on a miss. Corrupt, expired and
// below-floor entries are deleted and reported as misses.
func (c *TranslationCache) Get(text, sourceLang, targetLang string, syncMode models.SyncMode) *Entry {
	key := Key(text, sourceLang, targetLang, syncMode)
	path := c.path(key)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Warn("deleting corrupt cache entry", slog.String("key", key))
		_ = os.Remove(path)
		return nil
	}

	if time.Since(entry.Timestamp) > c.expiration {
		c.logger.Debug("cache entry expired", slog.String("key", key))
		_ = os.Remove(path)
		return nil
	}

	if entry.QualityResult != nil && entry.QualityResult.OverallScore < c.qualityFloor {
		c.logger.Info("invalidating low-quality cache entry",
			slog.String("key", key),
			slog.Int("score", entry.QualityResult.OverallScore))
		_ = os.Remove(path)
		return nil
	}

	return &entry
}

// Put stores a translation atomically via temp-file-then-rename.
func (c *TranslationCache) Put(text, sourceLang, targetLang string, syncMode models.SyncMode, translated string, quality *models.QualityResult) error {
	key := Key(text, sourceLang, targetLang, syncMode)
	entry := Entry{
		Timestamp:      time.Now().UTC(),
		SourceLang:     sourceLang,
		TargetLang:     targetLang,
		SyncMode:       syncMode,
		TranslatedText: translated,
		QualityResult:  quality,
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	if err := renameio.WriteFile(c.path(key), data, 0o644); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// Invalidate removes the entry for the given request, if any.
func (c *TranslationCache) Invalidate(text, sourceLang, targetLang string, syncMode models.SyncMode) {
	_ = os.Remove(c.path(Key(text, sourceLang, targetLang, syncMode)))
}

// Sweep deletes expired and unreadable entries, returning the removed count.
func (c *TranslationCache) Sweep() (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, fmt.Errorf("listing cache dir: %w", err)
	}

	removed := 0
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		path := filepath.Join(c.dir, de.Name())

		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil || time.Since(entry.Timestamp) > c.expiration {
			if os.Remove(path) == nil {
				removed++
			}
		}
	}
	if removed > 0 {
		c.logger.Info("swept translation cache", slog.Int("removed", removed))
	}
	return removed, nil
}
