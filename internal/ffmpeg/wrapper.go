// Package ffmpeg wraps the external ffmpeg and ffprobe binaries: command
// construction, bounded execution, path safety and probing.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// maxStderrExcerpt bounds the stderr tail included in error messages.
const maxStderrExcerpt = 500

// input is one ffmpeg input with its preceding arguments.
type input struct {
	args []string
	path string
}

// CommandBuilder builds ffmpeg argument lists with a fluent API.
type CommandBuilder struct {
	binary     string
	globalArgs []string
	inputs     []input
	outputArgs []string
	output     string
	logLevel   string
	overwrite  bool
}

// NewCommandBuilder creates a new ffmpeg command builder.
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	return &CommandBuilder{
		binary:   ffmpegPath,
		logLevel: "error",
	}
}

// LogLevel sets the ffmpeg log level.
func (b *CommandBuilder) LogLevel(level string) *CommandBuilder {
	b.logLevel = level
	return b
}

// HideBanner hides the ffmpeg banner.
func (b *CommandBuilder) HideBanner() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-hide_banner")
	return b
}

// Overwrite enables output file overwriting.
func (b *CommandBuilder) Overwrite() *CommandBuilder {
	b.overwrite = true
	return b
}

// Input adds an input source.
func (b *CommandBuilder) Input(path string) *CommandBuilder {
	b.inputs = append(b.inputs, input{path: path})
	return b
}

// InputWithArgs adds an input source preceded by input arguments.
func (b *CommandBuilder) InputWithArgs(path string, args ...string) *CommandBuilder {
	b.inputs = append(b.inputs, input{args: args, path: path})
	return b
}

// VideoCodec sets the video codec.
func (b *CommandBuilder) VideoCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:v", codec)
	return b
}

// AudioCodec sets the audio codec.
func (b *CommandBuilder) AudioCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:a", codec)
	return b
}

// SubtitleCodec sets the subtitle codec.
func (b *CommandBuilder) SubtitleCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:s", codec)
	return b
}

// AudioBitrate sets the audio bitrate.
func (b *CommandBuilder) AudioBitrate(bitrate string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-b:a", bitrate)
	return b
}

// AudioChannels sets the audio channel count.
func (b *CommandBuilder) AudioChannels(n int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-ac", fmt.Sprintf("%d", n))
	return b
}

// SampleRate sets the audio sample rate.
func (b *CommandBuilder) SampleRate(hz int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-ar", fmt.Sprintf("%d", hz))
	return b
}

// NoVideo drops all video streams.
func (b *CommandBuilder) NoVideo() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-vn")
	return b
}

// VideoFilter sets the video filter graph.
func (b *CommandBuilder) VideoFilter(filter string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-vf", filter)
	return b
}

// AudioFilter sets the audio filter graph.
func (b *CommandBuilder) AudioFilter(filter string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-af", filter)
	return b
}

// Map selects a stream for the output.
func (b *CommandBuilder) Map(spec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-map", spec)
	return b
}

// Metadata sets a metadata key on a stream specifier.
func (b *CommandBuilder) Metadata(streamSpec, key, value string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs,
		fmt.Sprintf("-metadata:%s", streamSpec), fmt.Sprintf("%s=%s", key, value))
	return b
}

// Shortest stops the output at the shortest stream.
func (b *CommandBuilder) Shortest() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-shortest")
	return b
}

// Duration caps the output duration in seconds.
func (b *CommandBuilder) Duration(seconds float64) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-t", fmt.Sprintf("%.3f", seconds))
	return b
}

// Format forces the output container format.
func (b *CommandBuilder) Format(format string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-f", format)
	return b
}

// OutputArgs adds arbitrary output arguments.
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// Output sets the output destination.
func (b *CommandBuilder) Output(path string) *CommandBuilder {
	b.output = path
	return b
}

// Build assembles the binary path and the full argument list.
func (b *CommandBuilder) Build() (string, []string) {
	args := []string{}
	if b.logLevel != "" {
		args = append(args, "-loglevel", b.logLevel)
	}
	args = append(args, b.globalArgs...)
	if b.overwrite {
		args = append(args, "-y")
	}
	for _, in := range b.inputs {
		args = append(args, in.args...)
		args = append(args, "-i", in.path)
	}
	args = append(args, b.outputArgs...)
	if b.output != "" {
		args = append(args, b.output)
	}
	return b.binary, args
}

// Runner executes ffmpeg/ffprobe commands under a deadline and converts
// failures into single-line diagnostics with a bounded stderr excerpt.
type Runner struct {
	logger *slog.Logger

	mu       sync.Mutex
	encoders map[string]bool
}

// NewRunner creates a command runner.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger}
}

// Run executes the command and waits for completion.
func (r *Runner) Run(ctx context.Context, timeout time.Duration, bin string, args []string) error {
	_, err := r.run(ctx, timeout, bin, args, false)
	return err
}

// RunOutput executes the command and returns its stdout.
func (r *Runner) RunOutput(ctx context.Context, timeout time.Duration, bin string, args []string) ([]byte, error) {
	return r.run(ctx, timeout, bin, args, true)
}

func (r *Runner) run(ctx context.Context, timeout time.Duration, bin string, args []string, wantOutput bool) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	if wantOutput {
		cmd.Stdout = &stdout
	}
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	r.logger.Debug("transcoder command finished",
		slog.String("binary", bin),
		slog.Duration("elapsed", elapsed),
		slog.Bool("success", err == nil))

	if err != nil {
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s timed out after %s: %s", bin, timeout, stderrExcerpt(stderr.String()))
		}
		return nil, fmt.Errorf("%s failed: %s: %w", bin, stderrExcerpt(stderr.String()), err)
	}
	return stdout.Bytes(), nil
}

// EncoderAvailable reports whether the named encoder is compiled into the
// ffmpeg binary. Results are cached per runner.
func (r *Runner) EncoderAvailable(ctx context.Context, ffmpegPath, encoder string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.encoders == nil {
		r.encoders = make(map[string]bool)
		out, err := r.RunOutput(ctx, 10*time.Second, ffmpegPath, []string{"-hide_banner", "-encoders"})
		if err != nil {
			r.logger.Warn("encoder probe failed", slog.String("error", err.Error()))
			return false
		}
		for _, line := range strings.Split(string(out), "\n") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				r.encoders[fields[1]] = true
			}
		}
	}
	return r.encoders[encoder]
}

// stderrExcerpt flattens stderr into one line of at most maxStderrExcerpt
// characters, keeping the tail where ffmpeg prints the actual error.
func stderrExcerpt(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "; ")
	if len(s) > maxStderrExcerpt {
		s = s[len(s)-maxStderrExcerpt:]
	}
	if s == "" {
		s = "no diagnostic output"
	}
	return s
}
