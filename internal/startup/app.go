// Package startup wires the application together: services, job manager,
// scheduler and HTTP server, plus the boot-time housekeeping.
package startup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/videovoice/videovoice/internal/cache"
	"github.com/videovoice/videovoice/internal/config"
	internalhttp "github.com/videovoice/videovoice/internal/http"
	"github.com/videovoice/videovoice/internal/jobs"
	"github.com/videovoice/videovoice/internal/media"
	"github.com/videovoice/videovoice/internal/models"
	"github.com/videovoice/videovoice/internal/observability"
	"github.com/videovoice/videovoice/internal/pipeline"
	"github.com/videovoice/videovoice/internal/quality"
	"github.com/videovoice/videovoice/internal/scheduler"
	"github.com/videovoice/videovoice/internal/stt"
	"github.com/videovoice/videovoice/internal/system"
	"github.com/videovoice/videovoice/internal/translate"
	"github.com/videovoice/videovoice/internal/tts"
	"github.com/videovoice/videovoice/internal/util"
)

// App holds the assembled application.
type App struct {
	cfg       *config.Config
	jobs      *jobs.Manager
	cache     *cache.TranslationCache
	scheduler *scheduler.Scheduler
	server    *internalhttp.Server
	logger    *slog.Logger
}

// NewApp builds every component from the configuration.
func NewApp(cfg *config.Config, version string, logger *slog.Logger) (*App, error) {
	if err := cfg.Storage.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("preparing storage: %w", err)
	}

	resolveTranscoderPaths(cfg, logger)
	mediaOps := media.NewOps(cfg.Media, logger)
	sttService := stt.NewService(cfg.Providers, mediaOps, logger)
	translator := translate.New(cfg.Providers, cfg.Translation, logger)
	evaluator := quality.New(cfg.Providers, logger)
	ttsService := tts.NewService(cfg.Providers, mediaOps, logger)

	var translationCache *cache.TranslationCache
	if cfg.Cache.Enabled {
		var err error
		translationCache, err = cache.New(cfg.Storage.TranslationCacheDir(), cfg.Cache.ExpirationDays, cfg.Quality.CacheFloor, logger)
		if err != nil {
			return nil, fmt.Errorf("opening translation cache: %w", err)
		}
	}

	manager, err := jobs.New(cfg.Jobs, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("loading job registry: %w", err)
	}

	deps := pipeline.Deps{
		Media:       mediaOps,
		STT:         sttService,
		Translator:  translator,
		Evaluator:   evaluator,
		TTS:         ttsService,
		Quality:     cfg.Quality,
		Translation: cfg.Translation,
		Logger:      logger,
	}
	// Assign only a live cache so the nil check in the stages stays honest.
	if translationCache != nil {
		deps.Cache = translationCache
	}
	runner := &pipelineRunner{
		deps:      deps,
		jobs:      manager,
		outputDir: cfg.Storage.OutputDir(),
		logger:    logger,
	}

	collector := system.NewCollector(cfg.Storage.StaticDir, manager, sttService, translator, ttsService, logger)
	handlers := internalhttp.NewHandlers(*cfg, manager, runner, collector, sttService, translator, ttsService, version, logger)
	server := internalhttp.NewServer(*cfg, handlers, logger)

	var sweeper *scheduler.Scheduler
	var sweepCache scheduler.Cache
	if translationCache != nil {
		sweepCache = translationCache
	}
	sweeper, err = scheduler.New(cfg.Jobs.SweepSchedule, manager, sweepCache, logger)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:       cfg,
		jobs:      manager,
		cache:     translationCache,
		scheduler: sweeper,
		server:    server,
		logger:    logger,
	}, nil
}

// resolveTranscoderPaths turns bare binary names into concrete paths,
// honoring FFMPEG_PATH and FFPROBE_PATH overrides. A missing binary is a
// warning at boot; jobs that need it fail with a clearer error later.
func resolveTranscoderPaths(cfg *config.Config, logger *slog.Logger) {
	if path, err := util.FindBinary(cfg.Media.FFmpegPath, "FFMPEG_PATH"); err != nil {
		logger.Warn("ffmpeg not found", slog.String("error", err.Error()))
	} else {
		cfg.Media.FFmpegPath = path
	}
	if path, err := util.FindBinary(cfg.Media.FFprobePath, "FFPROBE_PATH"); err != nil {
		logger.Warn("ffprobe not found", slog.String("error", err.Error()))
	} else {
		cfg.Media.FFprobePath = path
	}
}

// Run serves until the context is cancelled, then shuts down in order:
// listener, scheduler, registry.
func (a *App) Run(ctx context.Context) error {
	if removed, err := CleanupOrphanedTempDirs(a.logger, "", DefaultCleanupAge); err != nil {
		a.logger.Warn("temp directory cleanup failed", slog.String("error", err.Error()))
	} else if removed > 0 {
		a.logger.Info("removed stale temp directories", slog.Int("count", removed))
	}

	a.scheduler.Start()
	err := a.server.ListenAndServe(ctx)
	a.scheduler.Stop()
	a.jobs.Close()
	return err
}

// pipelineRunner executes accepted jobs on the manager's concurrency gate.
type pipelineRunner struct {
	deps      pipeline.Deps
	jobs      *jobs.Manager
	outputDir string
	logger    *slog.Logger
}

// Launch implements http.Runner.
func (r *pipelineRunner) Launch(job *models.Job, speakerRef string) {
	st := &pipeline.State{
		JobID:      job.ID,
		Settings:   job.Settings,
		InputPath:  job.InputFile,
		IsVideo:    job.InputType == models.InputTypeVideo,
		SpeakerRef: speakerRef,
		OutputDir:  r.outputDir,
	}

	r.jobs.Start(context.Background(), job.ID, func(ctx context.Context) error {
		stages := pipeline.BuildStages(r.deps, job.Settings, st.IsVideo, r.jobs)
		orchestrator := pipeline.NewOrchestrator(stages, r.jobs, r.logger)
		if err := orchestrator.Run(ctx, st); err != nil {
			return err
		}
		r.jobs.SetResult(job.ID, st.OutputPath, st.CaptionsPath)

		logger := observability.WithJobID(r.logger, job.ID)
		logger.Info("job deliverable ready", slog.String("output", st.OutputPath))
		return nil
	})
}
