package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"0", 0},
		{"5242880", 5242880},
		{"512B", 512},
		{"500KB", 500 * 1024},
		{"5MB", 5 * 1024 * 1024},
		{"1.5 GB", 1610612736},
		{"2g", 2 << 30},
		{"1TiB", 1 << 40},
		{"  10 mb  ", 10 * 1024 * 1024},
	}
	for _, tt := range tests {
		size, err := ParseByteSize(tt.input)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, size.Bytes(), tt.input)
	}
}

func TestParseByteSizeRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "MB", "-5MB", "5XB", "lots"} {
		_, err := ParseByteSize(input)
		assert.Error(t, err, input)
	}
}

func TestByteSizeString(t *testing.T) {
	assert.Equal(t, "0B", ByteSize(0).String())
	assert.Equal(t, "512B", ByteSize(512).String())
	assert.Equal(t, "500KB", ByteSize(500*1024).String())
	assert.Equal(t, "2GB", ByteSize(2<<30).String())
	assert.Equal(t, "1.5GB", ByteSize(1610612736).String())
}

func TestByteSizeStringRoundTrips(t *testing.T) {
	for _, b := range []ByteSize{0, 512, 500 * 1024, 2 << 30, 1610612736} {
		parsed, err := ParseByteSize(b.String())
		require.NoError(t, err, b.String())
		assert.Equal(t, b, parsed)
	}
}

func TestByteSizeJSON(t *testing.T) {
	var b ByteSize
	require.NoError(t, json.Unmarshal([]byte(`"500MB"`), &b))
	assert.Equal(t, int64(500*1024*1024), b.Bytes())

	require.NoError(t, json.Unmarshal([]byte(`1048576`), &b))
	assert.Equal(t, int64(1<<20), b.Bytes())

	out, err := json.Marshal(ByteSize(2 << 30))
	require.NoError(t, err)
	assert.Equal(t, `"2GB"`, string(out))
}
