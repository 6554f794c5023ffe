package media

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubtitleCodecForContainer(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"out.mp4", "mov_text"},
		{"out.MKV", "srt"},
		{"out.webm", "webvtt"},
		{"out.mov", "mov_text"},
		{"noext", "mov_text"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SubtitleCodecForContainer(tt.path), tt.path)
	}
}

func TestISO639Tags(t *testing.T) {
	assert.Equal(t, "kor", iso639_2("ko"))
	assert.Equal(t, "eng", iso639_2("en"))
	assert.Equal(t, "xx", iso639_2("xx"))
}

func TestCopyToFilterSafePath(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "자막 파일.srt")
	require.NoError(t, os.WriteFile(src, []byte("1\n00:00:00,000 --> 00:00:01,000\nhi\n"), 0o644))

	sanitized, cleanup, err := copyToFilterSafePath(src)
	require.NoError(t, err)
	defer cleanup()

	content, err := os.ReadFile(sanitized)
	require.NoError(t, err)
	assert.Contains(t, string(content), "00:00:00,000")

	cleanup()
	_, err = os.Stat(sanitized)
	assert.True(t, os.IsNotExist(err))
}
