package subtitle

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/videovoice/videovoice/internal/models"
)

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00,000"},
		{1.5, "00:00:01,500"},
		{1.9996, "00:00:02,000"},
		{59.9994, "00:00:59,999"},
		{3661.25, "01:01:01,250"},
		{-3, "00:00:00,000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatTimestamp(tt.seconds))
	}
}

func TestGenerate(t *testing.T) {
	segments := []models.Segment{
		{Start: 0, End: 1.5, Text: "Hello"},
		{Start: 1.5, End: 2.0, Text: "   "},
		{Start: 2.0, End: 3.25, Text: "안녕하세요"},
	}

	out := Generate(segments)

	// Empty segment skipped, indices remain 1..N without gaps.
	assert.Contains(t, out, "1\n00:00:00,000 --> 00:00:01,500\nHello\n\n")
	assert.Contains(t, out, "2\n00:00:02,000 --> 00:00:03,250\n안녕하세요\n\n")
	assert.NotContains(t, out, "\n3\n")
}

func TestGenerate_Empty(t *testing.T) {
	assert.Empty(t, Generate(nil))
	assert.Empty(t, Generate([]models.Segment{{Text: ""}}))
}

func TestParse_RoundTrip(t *testing.T) {
	segments := []models.Segment{
		{Start: 0, End: 1.5, Text: "First line"},
		{Start: 2.25, End: 4, Text: "두 번째"},
		{Start: 5, End: 6.001, Text: "multi\nline"},
	}

	parsed, err := Parse(strings.NewReader(Generate(segments)))
	require.NoError(t, err)
	require.Len(t, parsed, len(segments))

	for i, seg := range segments {
		assert.InDelta(t, seg.Start, parsed[i].Start, 0.001)
		assert.InDelta(t, seg.End, parsed[i].End, 0.001)
		assert.Equal(t, seg.Text, parsed[i].Text)
	}
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse(strings.NewReader("1\nnot a time line\ntext\n"))
	assert.Error(t, err)

	_, err = Parse(strings.NewReader("1\n"))
	assert.Error(t, err)
}

func TestParse_CRLF(t *testing.T) {
	doc := "1\r\n00:00:00,000 --> 00:00:01,000\r\nwindows line\r\n\r\n"
	parsed, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.Equal(t, "windows line", parsed[0].Text)
}
