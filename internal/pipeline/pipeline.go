// Package pipeline orchestrates the processing stages that turn an uploaded
// media file into a dubbed or subtitled deliverable.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/videovoice/videovoice/internal/cache"
	"github.com/videovoice/videovoice/internal/config"
	"github.com/videovoice/videovoice/internal/media"
	"github.com/videovoice/videovoice/internal/models"
	"github.com/videovoice/videovoice/internal/observability"
	"github.com/videovoice/videovoice/internal/quality"
	"github.com/videovoice/videovoice/internal/stt"
	"github.com/videovoice/videovoice/internal/tts"
)

// Stage is one step of a processing graph. Milestone is the job progress
// percentage reported once the stage completes.
type Stage interface {
	ID() string
	Step() models.Step
	Milestone() int
	Run(ctx context.Context, st *State) error
}

// Reporter receives job state updates from a running pipeline and answers
// cancellation polls. The job manager implements it.
type Reporter interface {
	Progress(jobID string, percent int)
	Step(jobID string, step models.Step)
	Log(jobID string, message string)
	SetQualityResult(jobID string, result *models.QualityResult)
	Cancelled(jobID string) bool
}

// State carries data between stages of one job.
type State struct {
	JobID    string
	Settings models.Settings

	// InputPath is the uploaded file; IsVideo is derived from its extension.
	InputPath string
	IsVideo   bool
	// SpeakerRef optionally points at a voice sample for cloning.
	SpeakerRef string

	// TempDir holds intermediate files and is removed after the run.
	TempDir string
	// OutputDir receives the deliverables.
	OutputDir string

	AudioPath          string
	Transcript         string
	Segments           []models.Segment
	Translation        string
	TranslatedSegments []models.Segment
	Quality            *models.QualityResult

	// VoicePath is the synthesized voice track.
	VoicePath string
	// CaptionsPath is the generated SRT file, subtitle mode only.
	CaptionsPath string
	// OutputPath is the final deliverable.
	OutputPath string

	// TranscribeProvider and TranslateProvider record which backends served
	// the job, for the job log.
	TranscribeProvider string
	TranslateProvider  string
}

// Translator produces and refines translations. *translate.Translator is the
// production implementation.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string, syncMode models.SyncMode, engine string) (string, string, error)
	TranslateSegments(ctx context.Context, segments []models.Segment, sourceLang, targetLang, engine string, progress func(done, total int)) ([]models.Segment, int, error)
	Refine(ctx context.Context, source, translation string, issues []string, sourceLang, targetLang string, syncMode models.SyncMode, engine string) (string, error)
}

// TranslationCache stores finished translations keyed by source text and
// language pair. A nil Cache in Deps disables caching.
type TranslationCache interface {
	Get(text, sourceLang, targetLang string, syncMode models.SyncMode) *cache.Entry
	Put(text, sourceLang, targetLang string, syncMode models.SyncMode, translated string, quality *models.QualityResult) error
}

// Deps bundles the services the stages run on.
type Deps struct {
	Media      *media.Ops
	STT        *stt.Service
	Translator Translator
	Evaluator  *quality.Evaluator
	TTS        *tts.Service
	Cache      TranslationCache

	Quality     config.QualityConfig
	Translation config.TranslationConfig

	Logger *slog.Logger
}

// Orchestrator runs a stage sequence for one job.
type Orchestrator struct {
	stages   []Stage
	reporter Reporter
	logger   *slog.Logger
}

// NewOrchestrator builds an orchestrator over the given stages.
func NewOrchestrator(stages []Stage, reporter Reporter, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		stages:   stages,
		reporter: reporter,
		logger:   observability.WithComponent(logger, "pipeline"),
	}
}

// Run executes every stage in order. Cancellation is polled at stage
// boundaries; intermediate files are removed regardless of outcome. The
// uploaded input is left in place, its retention is the job manager's
// concern.
func (o *Orchestrator) Run(ctx context.Context, st *State) error {
	tempDir, err := os.MkdirTemp("", fmt.Sprintf("videovoice-%s-*", st.JobID))
	if err != nil {
		return fmt.Errorf("creating temp directory: %w", err)
	}
	st.TempDir = tempDir
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			o.logger.Warn("removing temp directory failed",
				slog.String("path", tempDir),
				slog.String("error", err.Error()))
		}
	}()

	logger := observability.WithJobID(o.logger, st.JobID)
	logger.Info("starting pipeline",
		slog.String("mode", string(st.Settings.Mode)),
		slog.Int("stages", len(o.stages)))
	start := time.Now()

	// Audio inputs skip extraction, so the first milestone lands immediately.
	if !st.IsVideo {
		o.reporter.Progress(st.JobID, 10)
	}

	for i, stage := range o.stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if o.reporter.Cancelled(st.JobID) {
			return models.ErrJobCancelled
		}

		o.reporter.Step(st.JobID, stage.Step())
		logger.Info("stage starting",
			slog.Int("stage_num", i+1),
			slog.String("stage", stage.ID()))
		stageStart := time.Now()

		if err := stage.Run(ctx, st); err != nil {
			logger.Error("stage failed",
				slog.String("stage", stage.ID()),
				slog.Duration("duration", time.Since(stageStart)),
				slog.String("error", err.Error()))
			return fmt.Errorf("stage %s: %w", stage.ID(), err)
		}

		logger.Info("stage completed",
			slog.String("stage", stage.ID()),
			slog.Duration("duration", time.Since(stageStart)))
		o.reporter.Progress(st.JobID, stage.Milestone())
	}

	o.reporter.Progress(st.JobID, 100)
	logger.Info("pipeline completed",
		slog.Duration("duration", time.Since(start)),
		slog.String("output", st.OutputPath))
	return nil
}

// BuildStages assembles the stage graph for the job settings. Dubbing runs
// transcription, translation with quality refinement, synthesis and a merge
// back into the original container; subtitle mode translates timestamped
// segments and embeds them as captions.
func BuildStages(deps Deps, settings models.Settings, isVideo bool, reporter Reporter) []Stage {
	var stages []Stage

	if isVideo {
		stages = append(stages, &extractStage{deps: deps})
	}

	switch settings.Mode {
	case models.ModeSubtitle:
		stages = append(stages,
			&transcribeStage{deps: deps, withSegments: true},
			&translateSegmentsStage{deps: deps, reporter: reporter},
		)
		if settings.VerifyTranslation {
			stages = append(stages, &evaluateStage{deps: deps, reporter: reporter})
		}
		stages = append(stages,
			&writeCaptionsStage{deps: deps},
			&embedStage{deps: deps},
		)
	default:
		stages = append(stages,
			&transcribeStage{deps: deps},
			&translateStage{deps: deps},
		)
		if settings.VerifyTranslation {
			stages = append(stages, &evaluateStage{deps: deps, reporter: reporter})
		}
		stages = append(stages, &synthesizeStage{deps: deps})
		if isVideo {
			stages = append(stages, &mergeStage{deps: deps})
		} else {
			stages = append(stages, &encodeAudioStage{deps: deps})
		}
	}

	return stages
}
