package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/voxsub/voxsub/internal/config"
	"github.com/voxsub/voxsub/internal/database"
	internalhttp "github.com/voxsub/voxsub/internal/http"
	"github.com/voxsub/voxsub/internal/http/handlers"
	"github.com/voxsub/voxsub/internal/media"
	"github.com/voxsub/voxsub/internal/models"
	"github.com/voxsub/voxsub/internal/observability"
	"github.com/voxsub/voxsub/internal/pipeline"
	"github.com/voxsub/voxsub/internal/pipeline/core"
	"github.com/voxsub/voxsub/internal/repository"
	"github.com/voxsub/voxsub/internal/scheduler"
	"github.com/voxsub/voxsub/internal/service"
	"github.com/voxsub/voxsub/internal/storage"
	"github.com/voxsub/voxsub/internal/transcribe"
	"github.com/voxsub/voxsub/internal/translate"
	"github.com/voxsub/voxsub/internal/util"
	"github.com/voxsub/voxsub/internal/version"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the voxsub server",
	Long: `Start the HTTP API server together with the pipeline workers and the
retention scheduler. Submissions are accepted over HTTP, queued in the
database, and processed asynchronously by the worker pool in this process.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "host address to bind to")
	serveCmd.Flags().Int("port", 0, "port to listen on")
	serveCmd.Flags().String("database-dsn", "", "database connection string")
	serveCmd.Flags().String("data-dir", "", "base directory for stored files")

	// Flag values override config file and environment.
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("database.dsn", serveCmd.Flags().Lookup("database-dsn"))
	_ = viper.BindPFlag("storage.base_dir", serveCmd.Flags().Lookup("data-dir"))
}

func runServe(cmd *cobra.Command, args []string) error {
	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	logger := slog.Default()
	logger.Info("starting voxsub",
		slog.String("version", version.Version),
		slog.String("commit", version.Commit),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database and repositories.
	db, err := database.New(cfg.Database, observability.WithComponent(logger, "database"), nil)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("closing database", slog.String("error", err.Error()))
		}
	}()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	taskRepo := repository.NewTaskRepository(db.DB, cfg.Storage.RecordRetention, cfg.Storage.ArtifactRetention)
	queueRepo := repository.NewQueueRepository(db.DB)
	assetRepo := repository.NewAssetRepository(db.DB)
	tokenRepo := repository.NewTokenRepository(db.DB)

	// Storage layout under the base dir.
	intake, err := storage.NewIntakeStore(cfg.Storage.IntakePath())
	if err != nil {
		return fmt.Errorf("creating intake store: %w", err)
	}
	artifacts, err := storage.NewArtifactStore(cfg.Storage.ArtifactPath())
	if err != nil {
		return fmt.Errorf("creating artifact store: %w", err)
	}
	assetStore, err := storage.NewAssetStore(cfg.Storage.AssetPath())
	if err != nil {
		return fmt.Errorf("creating asset store: %w", err)
	}
	workspaces, err := storage.NewWorkspaces(
		cfg.Storage.ScratchDir,
		uint64(cfg.Storage.ScratchMinFree.Bytes()),
		cfg.Storage.WorkspacePath(),
		observability.WithComponent(logger, "storage"),
	)
	if err != nil {
		return fmt.Errorf("creating workspaces: %w", err)
	}
	events, err := storage.NewEventLog(cfg.Storage.StatsPath())
	if err != nil {
		return fmt.Errorf("creating event log: %w", err)
	}

	// External tools. A missing tool is not fatal at startup; the stages
	// that need it fail their tasks and /health/deps reports it.
	tools := map[string]string{
		"ffmpeg":      resolveTool(cfg.Media.FFmpegPath, "ffmpeg", "VOXSUB_FFMPEG_BINARY", logger),
		"ffprobe":     resolveTool(cfg.Media.FFprobePath, "ffprobe", "VOXSUB_FFPROBE_BINARY", logger),
		"yt-dlp":      resolveTool(cfg.Download.BinaryPath, "yt-dlp", "VOXSUB_YTDLP_BINARY", logger),
		"whisper-cli": resolveTool(cfg.Transcribe.BinaryPath, "whisper-cli", "VOXSUB_WHISPER_BINARY", logger),
	}

	// Media tooling.
	runner := media.NewRunner(observability.WithComponent(logger, "media"))
	prober := media.NewProber(runner, tools["ffprobe"], logger)
	ffmpeg := media.NewFFmpeg(runner, media.FFmpegOptions{
		BinaryPath:   tools["ffmpeg"],
		FontDir:      cfg.Media.FontDir,
		SubtitleFont: cfg.Media.SubtitleFont,
		RTLFont:      cfg.Media.RTLFont,
	}, logger)
	downloader := media.NewDownloader(runner, tools["yt-dlp"], logger)

	// Transcription.
	modelCache := transcribe.NewModelCache(
		cfg.Transcribe.ModelDir,
		cfg.Transcribe.AllowDowngrade,
		observability.WithComponent(logger, "transcribe"),
	)
	local := transcribe.NewLocalBackend(runner, tools["whisper-cli"], modelCache, cfg.Transcribe.Threads, logger)
	var remote transcribe.Backend
	if cfg.Transcribe.RemoteAPIURL != "" {
		remote = transcribe.NewRemoteBackend(nil, cfg.Transcribe.RemoteAPIURL, cfg.Transcribe.RemoteAPIKey, logger)
	}
	transcriber := transcribe.NewEngine(local, remote)

	// Translation. The free engine serves tasks that chose the free
	// service; the paid-first engine exists only when a paid key is
	// configured and always falls back to free.
	translateOpts := translate.EngineOptions{
		BatchSize:     cfg.Translate.BatchSize,
		Parallelism:   cfg.Translate.Parallelism,
		RetryAttempts: cfg.Translate.RetryAttempts,
		RetryBase:     cfg.Translate.RetryBase,
		RetryCap:      cfg.Translate.RetryCap,
	}
	translateLogger := observability.WithComponent(logger, "translate")
	free := translate.NewFreeService(nil, cfg.Translate.FreeEndpoint)
	var freeFallback translate.Backend
	var paidTranslator *translate.Engine
	if cfg.Translate.PaidAPIKey != "" {
		paid := translate.NewPaidService(nil, cfg.Translate.PaidEndpoint, cfg.Translate.PaidAPIKey)
		paidTranslator = translate.NewEngine(paid, free, translateOpts, translateLogger)
		if cfg.Translate.FallbackService == "paid" {
			freeFallback = paid
		}
	}
	translator := translate.NewEngine(free, freeFallback, translateOpts, translateLogger)

	// Pipeline.
	deps := &core.Dependencies{
		Tasks:          taskRepo,
		Assets:         assetRepo,
		Intake:         intake,
		Artifacts:      artifacts,
		AssetDir:       assetStore,
		Downloader:     downloader,
		Prober:         prober,
		FFmpeg:         ffmpeg,
		Transcriber:    transcriber,
		Translator:     translator,
		PaidTranslator: paidTranslator,
		Logger:         observability.WithComponent(logger, "pipeline"),
	}
	processor := pipeline.NewProcessor(deps, workspaces, events, cfg.Worker.SoftTimeLimit, deps.Logger)

	// Services.
	taskSvc := service.NewTaskService(&cfg, taskRepo, queueRepo, assetRepo, intake, artifacts, prober, events,
		observability.WithComponent(logger, "tasks"))
	tokenSvc, err := service.NewTokenService(cfg.Tokens.SigningKey, cfg.Tokens.TTL, tokenRepo,
		observability.WithComponent(logger, "tokens"))
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	assetSvc := service.NewAssetService(assetRepo, assetStore, cfg.Storage.MaxLogoSize.Bytes(),
		observability.WithComponent(logger, "assets"))
	editSvc := service.NewEditService(ffmpeg, prober, workspaces,
		observability.WithComponent(logger, "edits"))

	// Worker pool and retention scheduler.
	schedLogger := observability.WithComponent(logger, "scheduler")
	executor := scheduler.NewExecutor(queueRepo).WithLogger(schedLogger)

	processHandler := scheduler.NewProcessTaskHandler(taskRepo, processor).
		WithChainer(taskSvc).
		WithLogger(schedLogger)
	executor.RegisterHandler(models.JobTypeProcessTask, processHandler)
	executor.RegisterHandler(models.JobTypeDownloadOnly, processHandler)
	executor.RegisterHandler(models.JobTypeArtifactSweep,
		scheduler.NewArtifactSweepHandler(taskRepo, artifacts, events).WithLogger(schedLogger))
	executor.RegisterHandler(models.JobTypeAssetSweep,
		scheduler.NewAssetSweepHandler(assetSvc, cfg.Storage.AssetRetention).WithLogger(schedLogger))
	executor.RegisterHandler(models.JobTypeRecordSweep,
		scheduler.NewRecordSweepHandler(taskRepo, tokenRepo).WithLogger(schedLogger))
	executor.RegisterHandler(models.JobTypeWorkspaceSweep,
		scheduler.NewWorkspaceSweepHandler(taskRepo, workspaces, intake).WithLogger(schedLogger))

	workers := scheduler.NewRunner(queueRepo, executor).
		WithTaskRepository(taskRepo).
		WithLogger(schedLogger).
		WithConfig(scheduler.RunnerConfig{
			WorkerCount:   cfg.Worker.Concurrency,
			PollInterval:  cfg.Worker.PollInterval,
			LockTimeout:   cfg.Worker.LockTimeout,
			HardTimeLimit: cfg.Worker.HardTimeLimit,
		})
	sweeper := scheduler.NewScheduler(queueRepo, cfg.Storage.SweepInterval).WithLogger(schedLogger)

	// HTTP server and handlers.
	server := internalhttp.NewServer(internalhttp.ServerConfigFrom(cfg.Server),
		observability.WithComponent(logger, "http"), version.Version)

	handlers.NewSubmitHandler(taskSvc, assetSvc, cfg.Storage.MaxFileSize.Bytes()).Register(server.API())
	handlers.NewStatusHandler(taskSvc, tokenSvc).Register(server.API())
	handlers.NewMetaHandler(
		cfg.Server.EnableRemoteDownload,
		models.TranscribeModel(cfg.Transcribe.DefaultModel),
		cfg.Transcribe.RemoteAPIURL != "",
		cfg.Translate.PaidAPIKey != "",
	).Register(server.API())
	handlers.NewHealthHandler(version.Version).
		WithDB(db.DB).
		WithRepositories(queueRepo, taskRepo).
		WithTools(tools).
		WithStorageDirs(map[string]string{
			"artifacts": cfg.Storage.ArtifactPath(),
			"intake":    cfg.Storage.IntakePath(),
			"workspace": cfg.Storage.WorkspacePath(),
		}).
		Register(server.API())

	handlers.NewDownloadHandler(tokenSvc, artifacts, events, cfg.Server.AccelRedirectPrefix,
		observability.WithComponent(logger, "download")).Register(server.Router())
	handlers.NewEditHandler(editSvc, assetSvc, cfg.Storage.MaxFileSize.Bytes(),
		observability.WithComponent(logger, "edits")).Register(server.Router())

	if err := workers.Start(ctx); err != nil {
		return fmt.Errorf("starting workers: %w", err)
	}
	if err := sweeper.Start(ctx); err != nil {
		workers.Stop()
		return fmt.Errorf("starting sweep scheduler: %w", err)
	}

	logger.Info("voxsub ready",
		slog.String("address", cfg.Server.Address()),
		slog.Int("workers", cfg.Worker.Concurrency),
	)

	err = server.ListenAndServe(ctx)

	// Drain in reverse order: stop scheduling new sweeps, then wait for
	// in-flight jobs to settle.
	sweeper.Stop()
	workers.Stop()

	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("voxsub stopped")
	return nil
}

// resolveTool returns the path for an external tool, preferring the
// configured path, then the env var, then PATH. Empty means not found.
func resolveTool(configured, name, envVar string, logger *slog.Logger) string {
	if configured != "" {
		return configured
	}
	path, err := util.FindBinary(name, envVar)
	if err != nil {
		logger.Warn("external tool not found, dependent operations will fail",
			slog.String("tool", name),
			slog.String("env_var", envVar),
		)
		return ""
	}
	return path
}
