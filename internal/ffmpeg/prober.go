package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// ProbeResult is the subset of ffprobe output the pipeline uses.
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeFormat holds container-level information.
type ProbeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

// ProbeStream holds per-stream information.
type ProbeStream struct {
	Index     int    `json:"index"`
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
}

// Prober answers media questions via ffprobe.
type Prober struct {
	ffprobePath string
	timeout     time.Duration
	runner      *Runner
	logger      *slog.Logger
}

// NewProber creates a prober with the given binary path and per-call timeout.
func NewProber(ffprobePath string, timeout time.Duration, runner *Runner, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		ffprobePath: ffprobePath,
		timeout:     timeout,
		runner:      runner,
		logger:      logger,
	}
}

// Probe runs ffprobe and decodes the format and stream description.
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}
	out, err := p.runner.RunOutput(ctx, p.timeout, p.ffprobePath, args)
	if err != nil {
		return nil, fmt.Errorf("probing %s: %w", path, err)
	}
	var result ProbeResult
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, fmt.Errorf("decoding probe output: %w", err)
	}
	return &result, nil
}

// Duration returns the media duration in seconds, or 0 when probing fails.
func (p *Prober) Duration(ctx context.Context, path string) float64 {
	result, err := p.Probe(ctx, path)
	if err != nil {
		p.logger.Warn("duration probe failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return 0
	}
	seconds, err := strconv.ParseFloat(result.Format.Duration, 64)
	if err != nil || seconds < 0 {
		return 0
	}
	return seconds
}

// HasStream reports whether the media contains a stream of the given codec
// type ("video", "audio", "subtitle").
func (p *Prober) HasStream(ctx context.Context, path, codecType string) (bool, error) {
	result, err := p.Probe(ctx, path)
	if err != nil {
		return false, err
	}
	for _, s := range result.Streams {
		if s.CodecType == codecType {
			return true, nil
		}
	}
	return false, nil
}
