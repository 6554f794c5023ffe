// Package media implements the transcoder-backed media operations used by
// the pipeline: probing, audio extraction, merge reconciliation modes and
// subtitle embedding.
package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/videovoice/videovoice/internal/config"
	"github.com/videovoice/videovoice/internal/ffmpeg"
	"github.com/videovoice/videovoice/internal/observability"
)

// speedTolerance below which a tempo adjustment is treated as a plain merge.
const speedTolerance = 0.02

// Ops wraps the external transcoder binaries.
type Ops struct {
	cfg    config.MediaConfig
	runner *ffmpeg.Runner
	prober *ffmpeg.Prober
	logger *slog.Logger
}

// NewOps creates the media operations facade.
func NewOps(cfg config.MediaConfig, logger *slog.Logger) *Ops {
	logger = observability.WithComponent(logger, "media")
	runner := ffmpeg.NewRunner(logger)
	return &Ops{
		cfg:    cfg,
		runner: runner,
		prober: ffmpeg.NewProber(cfg.FFprobePath, time.Duration(cfg.ProbeTimeout), runner, logger),
		logger: logger,
	}
}

// ProbeDuration returns the media duration in seconds, 0 on failure.
func (o *Ops) ProbeDuration(ctx context.Context, path string) float64 {
	return o.prober.Duration(ctx, path)
}

// HasAudioStream reports whether the file carries an audio stream.
func (o *Ops) HasAudioStream(ctx context.Context, path string) (bool, error) {
	return o.prober.HasStream(ctx, path, "audio")
}

func (o *Ops) timeout() time.Duration {
	return time.Duration(o.cfg.Timeout)
}

func validatePaths(paths ...string) error {
	for _, p := range paths {
		if err := ffmpeg.ValidatePath(p); err != nil {
			return err
		}
	}
	return nil
}

// ExtractAudio produces 16 kHz mono PCM from the input media.
func (o *Ops) ExtractAudio(ctx context.Context, input, outWav string) error {
	if err := validatePaths(input, outWav); err != nil {
		return err
	}
	bin, args := ffmpeg.NewCommandBuilder(o.cfg.FFmpegPath).
		HideBanner().
		Overwrite().
		Input(input).
		NoVideo().
		AudioCodec("pcm_s16le").
		SampleRate(16000).
		AudioChannels(1).
		Output(outWav).
		Build()
	if err := o.runner.Run(ctx, o.timeout(), bin, args); err != nil {
		return fmt.Errorf("extracting audio: %w", err)
	}
	return nil
}

// Merge muxes the dubbed audio over the original video. The video stream is
// copied; the audio is padded with silence when shorter and trimmed to the
// video duration. Output length equals the video length.
func (o *Ops) Merge(ctx context.Context, video, audio, out string) error {
	if err := validatePaths(video, audio, out); err != nil {
		return err
	}
	videoDur := o.ProbeDuration(ctx, video)
	b := ffmpeg.NewCommandBuilder(o.cfg.FFmpegPath).
		HideBanner().
		Overwrite().
		Input(video).
		Input(audio).
		Map("0:v:0").
		Map("1:a:0").
		VideoCodec("copy").
		AudioCodec("aac").
		AudioFilter("apad")
	if videoDur > 0 {
		b.Duration(videoDur)
	} else {
		b.Shortest()
	}
	bin, args := b.Output(out).Build()
	if err := o.runner.Run(ctx, o.timeout(), bin, args); err != nil {
		return fmt.Errorf("merging audio: %w", err)
	}
	return nil
}

// ExtendVideoToAudio slows the video down so it spans the longer dubbed
// audio. When the audio is not longer than the video it falls back to Merge.
func (o *Ops) ExtendVideoToAudio(ctx context.Context, video, audio, out string) error {
	if err := validatePaths(video, audio, out); err != nil {
		return err
	}
	videoDur := o.ProbeDuration(ctx, video)
	audioDur := o.ProbeDuration(ctx, audio)
	if videoDur <= 0 || audioDur <= videoDur {
		return o.Merge(ctx, video, audio, out)
	}

	ratio := audioDur / videoDur
	o.logger.Info("stretching video to audio length",
		slog.Float64("video_seconds", videoDur),
		slog.Float64("audio_seconds", audioDur),
		slog.Float64("ratio", ratio))

	bin, args := ffmpeg.NewCommandBuilder(o.cfg.FFmpegPath).
		HideBanner().
		Overwrite().
		Input(video).
		Input(audio).
		Map("0:v:0").
		Map("1:a:0").
		VideoFilter(fmt.Sprintf("setpts=%.6f*PTS", ratio)).
		AudioCodec("aac").
		Output(out).
		Build()
	if err := o.runner.Run(ctx, o.timeout(), bin, args); err != nil {
		return fmt.Errorf("stretching video: %w", err)
	}
	return nil
}

// SpeedAudioToVideo tempo-adjusts the dubbed audio to the video duration.
// The adjustment is factorised into atempo stages within [0.5, 100]; a
// factor within the tolerance of 1.0 degrades to a plain merge.
func (o *Ops) SpeedAudioToVideo(ctx context.Context, video, audio, out string) error {
	if err := validatePaths(video, audio, out); err != nil {
		return err
	}
	videoDur := o.ProbeDuration(ctx, video)
	audioDur := o.ProbeDuration(ctx, audio)
	if videoDur <= 0 || audioDur <= 0 {
		return o.Merge(ctx, video, audio, out)
	}

	factor := audioDur / videoDur
	if math.Abs(factor-1.0) < speedTolerance {
		return o.Merge(ctx, video, audio, out)
	}

	filter, err := ffmpeg.AtempoFilter(factor)
	if err != nil {
		return fmt.Errorf("building tempo chain: %w", err)
	}
	o.logger.Info("speed matching audio to video",
		slog.Float64("factor", factor),
		slog.String("filter", filter))

	bin, args := ffmpeg.NewCommandBuilder(o.cfg.FFmpegPath).
		HideBanner().
		Overwrite().
		Input(video).
		Input(audio).
		Map("0:v:0").
		Map("1:a:0").
		VideoCodec("copy").
		AudioCodec("aac").
		AudioFilter(filter).
		Duration(videoDur).
		Output(out).
		Build()
	if err := o.runner.Run(ctx, o.timeout(), bin, args); err != nil {
		return fmt.Errorf("speed matching audio: %w", err)
	}
	return nil
}

// BurnSubtitles re-encodes the video with the captions rendered in. A GPU
// encoder is preferred when the binary carries one.
func (o *Ops) BurnSubtitles(ctx context.Context, video, captions, out string) error {
	if err := validatePaths(video, captions, out); err != nil {
		return err
	}

	filterPath := captions
	if !ffmpeg.FilterSafe(captions) {
		sanitized, cleanup, err := copyToFilterSafePath(captions)
		if err != nil {
			return fmt.Errorf("preparing captions for filter: %w", err)
		}
		defer cleanup()
		filterPath = sanitized
	}

	encoder := "libx264"
	if o.runner.EncoderAvailable(ctx, o.cfg.FFmpegPath, "h264_nvenc") {
		encoder = "h264_nvenc"
	}

	bin, args := ffmpeg.NewCommandBuilder(o.cfg.FFmpegPath).
		HideBanner().
		Overwrite().
		Input(video).
		VideoFilter(fmt.Sprintf("subtitles=%s", ffmpeg.EscapeFilterPath(filterPath))).
		VideoCodec(encoder).
		AudioCodec("copy").
		Output(out).
		Build()
	err := o.runner.Run(ctx, o.timeout(), bin, args)
	if err != nil && encoder != "libx264" {
		o.logger.Warn("gpu encoder failed, retrying on cpu", slog.String("error", err.Error()))
		bin, args = ffmpeg.NewCommandBuilder(o.cfg.FFmpegPath).
			HideBanner().
			Overwrite().
			Input(video).
			VideoFilter(fmt.Sprintf("subtitles=%s", ffmpeg.EscapeFilterPath(filterPath))).
			VideoCodec("libx264").
			AudioCodec("copy").
			Output(out).
			Build()
		err = o.runner.Run(ctx, o.timeout(), bin, args)
	}
	if err != nil {
		return fmt.Errorf("burning subtitles: %w", err)
	}
	return nil
}

// EmbedSoftSubtitles stream-copies the media and adds the captions as a
// selectable subtitle track. The codec follows the output container.
func (o *Ops) EmbedSoftSubtitles(ctx context.Context, video, captions, out, languageTag string) error {
	if err := validatePaths(video, captions, out); err != nil {
		return err
	}
	bin, args := ffmpeg.NewCommandBuilder(o.cfg.FFmpegPath).
		HideBanner().
		Overwrite().
		Input(video).
		Input(captions).
		Map("0").
		Map("1:0").
		VideoCodec("copy").
		AudioCodec("copy").
		SubtitleCodec(SubtitleCodecForContainer(out)).
		Metadata("s:s:0", "language", iso639_2(languageTag)).
		Output(out).
		Build()
	if err := o.runner.Run(ctx, time.Duration(o.cfg.EmbedTimeout), bin, args); err != nil {
		return fmt.Errorf("embedding soft subtitles: %w", err)
	}
	return nil
}

// EncodeMP3 re-encodes audio to 64 kbps mono MP3 at 16 kHz. Used to shrink
// inputs under hosted transcription size caps.
func (o *Ops) EncodeMP3(ctx context.Context, input, out string) error {
	if err := validatePaths(input, out); err != nil {
		return err
	}
	bin, args := ffmpeg.NewCommandBuilder(o.cfg.FFmpegPath).
		HideBanner().
		Overwrite().
		Input(input).
		NoVideo().
		AudioCodec("libmp3lame").
		AudioBitrate("64k").
		SampleRate(16000).
		AudioChannels(1).
		Output(out).
		Build()
	if err := o.runner.Run(ctx, o.timeout(), bin, args); err != nil {
		return fmt.Errorf("encoding mp3: %w", err)
	}
	return nil
}

// ToWav converts any audio file to 24 kHz mono PCM WAV.
func (o *Ops) ToWav(ctx context.Context, input, out string) error {
	if err := validatePaths(input, out); err != nil {
		return err
	}
	bin, args := ffmpeg.NewCommandBuilder(o.cfg.FFmpegPath).
		HideBanner().
		Overwrite().
		Input(input).
		NoVideo().
		AudioCodec("pcm_s16le").
		SampleRate(24000).
		AudioChannels(1).
		Output(out).
		Build()
	if err := o.runner.Run(ctx, o.timeout(), bin, args); err != nil {
		return fmt.Errorf("converting to wav: %w", err)
	}
	return nil
}

// ConcatWavs joins part files into one WAV via the concat demuxer.
// A failure here is fatal to the caller; chunks must never be dropped.
func (o *Ops) ConcatWavs(ctx context.Context, parts []string, out string) error {
	if len(parts) == 0 {
		return fmt.Errorf("no audio parts to concatenate")
	}
	if err := validatePaths(append(append([]string{}, parts...), out)...); err != nil {
		return err
	}

	list, err := os.CreateTemp(filepath.Dir(out), "concat-*.txt")
	if err != nil {
		return fmt.Errorf("creating concat list: %w", err)
	}
	defer os.Remove(list.Name())

	for _, p := range parts {
		abs, err := filepath.Abs(p)
		if err != nil {
			list.Close()
			return fmt.Errorf("resolving part %s: %w", p, err)
		}
		escaped := strings.ReplaceAll(abs, "'", `'\''`)
		if _, err := fmt.Fprintf(list, "file '%s'\n", escaped); err != nil {
			list.Close()
			return fmt.Errorf("writing concat list: %w", err)
		}
	}
	if err := list.Close(); err != nil {
		return fmt.Errorf("closing concat list: %w", err)
	}

	bin, args := ffmpeg.NewCommandBuilder(o.cfg.FFmpegPath).
		HideBanner().
		Overwrite().
		InputWithArgs(list.Name(), "-f", "concat", "-safe", "0").
		AudioCodec("pcm_s16le").
		Output(out).
		Build()
	if err := o.runner.Run(ctx, o.timeout(), bin, args); err != nil {
		return fmt.Errorf("concatenating audio parts: %w", err)
	}
	return nil
}

// SubtitleCodecForContainer maps an output container to its subtitle codec.
func SubtitleCodecForContainer(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mkv":
		return "srt"
	case ".webm":
		return "webvtt"
	default:
		return "mov_text"
	}
}

// iso639_2 maps the two-letter codes used by job settings to the
// three-letter tags containers expect. Unknown codes pass through.
func iso639_2(code string) string {
	tags := map[string]string{
		"en": "eng", "ko": "kor", "ja": "jpn", "zh": "chi", "ru": "rus",
		"es": "spa", "fr": "fre", "de": "ger", "it": "ita", "pt": "por",
		"nl": "dut", "pl": "pol", "tr": "tur", "vi": "vie", "th": "tha",
		"ar": "ara", "hi": "hin",
	}
	if tag, ok := tags[code]; ok {
		return tag
	}
	return code
}

// copyToFilterSafePath copies a captions file to an ASCII-safe temporary
// path so it can be passed as a filter argument.
func copyToFilterSafePath(path string) (string, func(), error) {
	src, err := os.Open(path)
	if err != nil {
		return "", nil, err
	}
	defer src.Close()

	dst, err := os.CreateTemp("", "captions-*"+filepath.Ext(path))
	if err != nil {
		return "", nil, err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", nil, err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", nil, err
	}
	return dst.Name(), func() { os.Remove(dst.Name()) }, nil
}
