package ffmpeg

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandBuilder_Build(t *testing.T) {
	bin, args := NewCommandBuilder("/usr/bin/ffmpeg").
		HideBanner().
		Overwrite().
		Input("in.mp4").
		NoVideo().
		AudioCodec("pcm_s16le").
		SampleRate(16000).
		AudioChannels(1).
		Output("out.wav").
		Build()

	assert.Equal(t, "/usr/bin/ffmpeg", bin)
	assert.Equal(t, []string{
		"-loglevel", "error", "-hide_banner", "-y",
		"-i", "in.mp4",
		"-vn", "-c:a", "pcm_s16le", "-ar", "16000", "-ac", "1",
		"out.wav",
	}, args)
}

func TestCommandBuilder_MultipleInputs(t *testing.T) {
	_, args := NewCommandBuilder("ffmpeg").
		Input("video.mp4").
		InputWithArgs("list.txt", "-f", "concat", "-safe", "0").
		Map("0:v:0").
		Map("1:a:0").
		Output("out.mp4").
		Build()

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-i video.mp4")
	assert.Contains(t, joined, "-f concat -safe 0 -i list.txt")
	assert.Less(t, strings.Index(joined, "video.mp4"), strings.Index(joined, "list.txt"))
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name string
		path string
		ok   bool
	}{
		{"plain", "/static/uploads/clip.mp4", true},
		{"relative", "uploads/clip.mp4", true},
		{"spaces allowed", "/static/uploads/my clip.mp4", true},
		{"empty", "", false},
		{"null byte", "clip\x00.mp4", false},
		{"parent traversal", "/static/../etc/passwd", false},
		{"semicolon", "clip;rm.mp4", false},
		{"pipe", "a|b.mp4", false},
		{"backtick", "a`id`.mp4", false},
		{"dollar", "a$HOME.mp4", false},
		{"redirect", "a>b.mp4", false},
		{"leading dash basename", "/uploads/-clip.mp4", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.path)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrUnsafePath)
			}
		})
	}
}

func TestFilterSafe(t *testing.T) {
	assert.True(t, FilterSafe("/tmp/captions.srt"))
	assert.False(t, FilterSafe("/tmp/자막.srt"))
	assert.False(t, FilterSafe("/tmp/cap'tions.srt"))
	assert.False(t, FilterSafe("C:/subs.srt"))
}

func TestEscapeFilterPath(t *testing.T) {
	assert.Equal(t, `/tmp/a\:b`, EscapeFilterPath("/tmp/a:b"))
	assert.Equal(t, `\\server\\share`, EscapeFilterPath(`\server\share`))
}

func TestAtempoChain(t *testing.T) {
	tests := []float64{0.3, 0.5, 0.9807, 1.0, 1.2, 2.0, 50, 100, 250, 12345}

	for _, factor := range tests {
		t.Run(fmt.Sprintf("factor_%g", factor), func(t *testing.T) {
			stages, err := AtempoChain(factor)
			require.NoError(t, err)
			require.NotEmpty(t, stages)

			product := 1.0
			for _, s := range stages {
				assert.GreaterOrEqual(t, s, 0.5)
				assert.LessOrEqual(t, s, 100.0)
				product *= s
			}
			assert.InDelta(t, factor, product, 1e-6)
		})
	}
}

func TestAtempoChain_Invalid(t *testing.T) {
	_, err := AtempoChain(0)
	assert.Error(t, err)
	_, err = AtempoChain(-1.5)
	assert.Error(t, err)
}

func TestAtempoFilter(t *testing.T) {
	filter, err := AtempoFilter(1.2)
	require.NoError(t, err)
	assert.Equal(t, "atempo=1.200000", filter)

	filter, err = AtempoFilter(250)
	require.NoError(t, err)
	assert.Equal(t, "atempo=100.000000,atempo=2.500000", filter)
}

func TestStderrExcerpt(t *testing.T) {
	assert.Equal(t, "no diagnostic output", stderrExcerpt(""))
	assert.Equal(t, "line one; line two", stderrExcerpt("line one\nline two\n"))

	long := strings.Repeat("x", 600) + "TAIL"
	got := stderrExcerpt(long)
	assert.Len(t, got, 500)
	assert.True(t, strings.HasSuffix(got, "TAIL"))
}
