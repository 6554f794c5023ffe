package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/videovoice/videovoice/internal/models"
	"github.com/videovoice/videovoice/internal/subtitle"
	"github.com/videovoice/videovoice/pkg/format"
)

// Per-stage deadlines. These bound a single external tool or provider
// conversation, not the whole job.
const (
	transcribeTimeout = 15 * time.Minute
	synthesisTimeout  = 30 * time.Minute
)

// extractStage pulls a 16kHz mono WAV out of a video input.
type extractStage struct {
	deps Deps
}

func (s *extractStage) ID() string        { return "extract_audio" }
func (s *extractStage) Step() models.Step { return models.StepExtract }
func (s *extractStage) Milestone() int    { return 20 }

func (s *extractStage) Run(ctx context.Context, st *State) error {
	hasAudio, err := s.deps.Media.HasAudioStream(ctx, st.InputPath)
	if err != nil {
		return fmt.Errorf("probing input: %w", err)
	}
	if !hasAudio {
		return fmt.Errorf("input has no audio stream")
	}

	st.AudioPath = filepath.Join(st.TempDir, "audio.wav")
	return s.deps.Media.ExtractAudio(ctx, st.InputPath, st.AudioPath)
}

// transcribeStage produces the transcript, with timestamped segments in
// subtitle mode. Audio-only inputs are normalized to WAV here since they
// skip the extract stage.
type transcribeStage struct {
	deps         Deps
	withSegments bool
}

func (s *transcribeStage) ID() string        { return "transcribe" }
func (s *transcribeStage) Step() models.Step { return models.StepTranscribe }
func (s *transcribeStage) Milestone() int    { return 40 }

func (s *transcribeStage) Run(ctx context.Context, st *State) error {
	if st.AudioPath == "" {
		st.AudioPath = filepath.Join(st.TempDir, "audio.wav")
		if err := s.deps.Media.ToWav(ctx, st.InputPath, st.AudioPath); err != nil {
			return fmt.Errorf("normalizing audio input: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, transcribeTimeout)
	defer cancel()

	result, provider, err := s.deps.STT.Transcribe(ctx, st.AudioPath, st.Settings.SourceLang, st.Settings.STTEngine, s.withSegments)
	if err != nil {
		return fmt.Errorf("transcribing: %w", err)
	}
	if strings.TrimSpace(result.Text) == "" {
		return fmt.Errorf("transcription produced no text")
	}

	st.Transcript = result.Text
	st.Segments = result.Segments
	st.TranscribeProvider = provider

	s.deps.Logger.Info("transcription complete",
		slog.String("provider", provider),
		slog.String("chars", format.Number(int64(len(result.Text)))),
		slog.Int("segments", len(result.Segments)))
	return nil
}

// translateStage translates the full transcript for dubbing. The cache is
// consulted first; a hit carries its stored quality verdict with it.
type translateStage struct {
	deps Deps
}

func (s *translateStage) ID() string        { return "translate" }
func (s *translateStage) Step() models.Step { return models.StepTranslate }
func (s *translateStage) Milestone() int    { return 55 }

func (s *translateStage) Run(ctx context.Context, st *State) error {
	if s.deps.Cache != nil {
		if entry := s.deps.Cache.Get(st.Transcript, st.Settings.SourceLang, st.Settings.TargetLang, st.Settings.SyncMode); entry != nil {
			st.Translation = entry.TranslatedText
			st.Quality = entry.QualityResult
			s.deps.Logger.Info("translation served from cache")
			return nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.deps.Translation.Timeout.Duration())
	defer cancel()

	translated, provider, err := s.deps.Translator.Translate(ctx, st.Transcript, st.Settings.SourceLang, st.Settings.TargetLang, st.Settings.SyncMode, st.Settings.TranslationEngine)
	if err != nil {
		return fmt.Errorf("translating: %w", err)
	}
	st.Translation = translated
	st.TranslateProvider = provider

	// Without a verification pass this translation is final; store it with no
	// verdict so a rerun of the same text skips the provider call.
	if s.deps.Cache != nil && !st.Settings.VerifyTranslation {
		if err := s.deps.Cache.Put(st.Transcript, st.Settings.SourceLang, st.Settings.TargetLang, st.Settings.SyncMode, translated, nil); err != nil {
			s.deps.Logger.Warn("caching translation failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// translateSegmentsStage translates subtitle segments batch-wise, reporting
// fractional progress between its own milestone and the previous one.
type translateSegmentsStage struct {
	deps     Deps
	reporter Reporter
}

func (s *translateSegmentsStage) ID() string        { return "translate_segments" }
func (s *translateSegmentsStage) Step() models.Step { return models.StepTranslate }
func (s *translateSegmentsStage) Milestone() int    { return 60 }

func (s *translateSegmentsStage) Run(ctx context.Context, st *State) error {
	if len(st.Segments) == 0 {
		return fmt.Errorf("no segments to translate")
	}

	ctx, cancel := context.WithTimeout(ctx, s.deps.Translation.Timeout.Duration())
	defer cancel()

	const from, to = 40, 60
	translated, successRate, err := s.deps.Translator.TranslateSegments(ctx, st.Segments, st.Settings.SourceLang, st.Settings.TargetLang, st.Settings.TranslationEngine,
		func(done, total int) {
			if total > 0 {
				s.reporter.Progress(st.JobID, from+(to-from)*done/total)
			}
		})
	if err != nil {
		return fmt.Errorf("translating segments: %w", err)
	}

	st.TranslatedSegments = translated
	st.Translation = joinSegmentText(translated)
	s.reporter.Log(st.JobID, fmt.Sprintf("translated %d segments, batch success rate %s",
		len(translated), format.Percentage(float64(successRate), 0)))
	return nil
}

func joinSegmentText(segments []models.Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if strings.TrimSpace(seg.Text) != "" {
			parts = append(parts, seg.Text)
		}
	}
	return strings.Join(parts, " ")
}

// synthesizeStage renders the translated text to a voice track.
type synthesizeStage struct {
	deps Deps
}

func (s *synthesizeStage) ID() string        { return "synthesize" }
func (s *synthesizeStage) Step() models.Step { return models.StepTTS }
func (s *synthesizeStage) Milestone() int    { return 80 }

func (s *synthesizeStage) Run(ctx context.Context, st *State) error {
	ctx, cancel := context.WithTimeout(ctx, synthesisTimeout)
	defer cancel()

	speakerRef := ""
	if st.Settings.CloneVoice {
		speakerRef = st.SpeakerRef
		if speakerRef == "" {
			// Clone from the source speaker when no sample was uploaded.
			speakerRef = st.AudioPath
		}
	}

	st.VoicePath = filepath.Join(st.TempDir, "voice.wav")
	engine, err := s.deps.TTS.Synthesize(ctx, st.Translation, st.Settings.TargetLang, st.Settings.TTSEngine, speakerRef, st.VoicePath)
	if err != nil {
		return fmt.Errorf("synthesizing speech: %w", err)
	}
	s.deps.Logger.Info("synthesis complete", slog.String("engine", engine))
	return nil
}

// mergeStage combines the original video with the new voice track according
// to the sync mode.
type mergeStage struct {
	deps Deps
}

func (s *mergeStage) ID() string        { return "merge" }
func (s *mergeStage) Step() models.Step { return models.StepMerge }
func (s *mergeStage) Milestone() int    { return 90 }

func (s *mergeStage) Run(ctx context.Context, st *State) error {
	st.OutputPath = filepath.Join(st.OutputDir, "dubbed_"+st.JobID+filepath.Ext(st.InputPath))

	switch st.Settings.SyncMode {
	case models.SyncStretch:
		return s.deps.Media.ExtendVideoToAudio(ctx, st.InputPath, st.VoicePath, st.OutputPath)
	case models.SyncSpeedAudio:
		return s.deps.Media.SpeedAudioToVideo(ctx, st.InputPath, st.VoicePath, st.OutputPath)
	default:
		return s.deps.Media.Merge(ctx, st.InputPath, st.VoicePath, st.OutputPath)
	}
}

// encodeAudioStage finalizes an audio-only dubbing job as a WAV deliverable.
type encodeAudioStage struct {
	deps Deps
}

func (s *encodeAudioStage) ID() string        { return "encode_audio" }
func (s *encodeAudioStage) Step() models.Step { return models.StepMerge }
func (s *encodeAudioStage) Milestone() int    { return 90 }

func (s *encodeAudioStage) Run(ctx context.Context, st *State) error {
	st.OutputPath = filepath.Join(st.OutputDir, "dubbed_"+st.JobID+".wav")
	return s.deps.Media.ToWav(ctx, st.VoicePath, st.OutputPath)
}

// writeCaptionsStage renders the translated segments as an SRT file next to
// the final video.
type writeCaptionsStage struct {
	deps Deps
}

func (s *writeCaptionsStage) ID() string        { return "write_captions" }
func (s *writeCaptionsStage) Step() models.Step { return models.StepSubtitle }
func (s *writeCaptionsStage) Milestone() int    { return 65 }

func (s *writeCaptionsStage) Run(_ context.Context, st *State) error {
	st.CaptionsPath = filepath.Join(st.OutputDir, "subtitle_"+st.JobID+".srt")
	if err := subtitle.WriteFile(st.CaptionsPath, st.TranslatedSegments); err != nil {
		return fmt.Errorf("writing captions: %w", err)
	}
	return nil
}

// embedStage muxes the captions into the video as a soft subtitle track,
// burning them into the picture when the container rejects the track.
type embedStage struct {
	deps Deps
}

func (s *embedStage) ID() string        { return "embed_captions" }
func (s *embedStage) Step() models.Step { return models.StepEmbed }
func (s *embedStage) Milestone() int    { return 70 }

func (s *embedStage) Run(ctx context.Context, st *State) error {
	st.OutputPath = filepath.Join(st.OutputDir, "subtitle_"+st.JobID+filepath.Ext(st.InputPath))

	err := s.deps.Media.EmbedSoftSubtitles(ctx, st.InputPath, st.CaptionsPath, st.OutputPath, st.Settings.TargetLang)
	if err == nil {
		return nil
	}
	s.deps.Logger.Warn("soft subtitle embed failed, burning captions",
		slog.String("error", err.Error()))

	if err := s.deps.Media.BurnSubtitles(ctx, st.InputPath, st.CaptionsPath, st.OutputPath); err != nil {
		return fmt.Errorf("burning captions: %w", err)
	}
	return nil
}
