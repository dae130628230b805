package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/hashicorp/go-multierror"
	"github.com/phrazzld/mediaforge-api/internal/config"
	"github.com/phrazzld/mediaforge-api/internal/events"
	"github.com/phrazzld/mediaforge-api/internal/platform/gemini"
	"github.com/phrazzld/mediaforge-api/internal/platform/inference"
	"github.com/phrazzld/mediaforge-api/internal/platform/objectstore"
	"github.com/phrazzld/mediaforge-api/internal/platform/postgres"
	"github.com/phrazzld/mediaforge-api/internal/relocation"
	"github.com/phrazzld/mediaforge-api/internal/service/auth"
	"github.com/phrazzld/mediaforge-api/internal/task"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	db   *sql.DB
	repo task.Repository

	jwtService   auth.JWTService
	eventEmitter events.EventEmitter
	engine       *task.Engine

	closers []io.Closer
}

// newApplication wires the repository, provider clients, artifact storage
// and the task engine from configuration. The engine is not started.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	if err := app.setupRepository(ctx); err != nil {
		app.cleanup()
		return nil, err
	}

	kinds, err := app.setupKinds(ctx)
	if err != nil {
		app.cleanup()
		return nil, err
	}

	relocator, err := app.setupRelocator(ctx)
	if err != nil {
		app.cleanup()
		return nil, err
	}

	emitter := events.NewInMemoryEventEmitter(logger)
	emitter.RegisterHandler(events.NewUsageLogHandler(logger))
	app.eventEmitter = emitter

	app.engine, err = task.NewEngine(
		app.repo,
		kinds,
		relocator,
		buildTaskConfig(cfg.Engine),
		logger,
		task.WithEventEmitter(app.eventEmitter),
	)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create task engine: %w", err)
	}

	logger.Info("application initialized",
		"database_driver", cfg.Database.Driver,
		"storage_backend", cfg.Storage.Backend,
		"kinds", kinds.Names())
	return app, nil
}

func (app *application) setupRepository(ctx context.Context) error {
	if app.config.Database.Driver == "memory" {
		app.logger.Warn("using in-memory task repository; task records do not survive restarts")
		app.repo = task.NewMemoryRepository()
		return nil
	}

	db, err := postgres.Open(ctx, app.config.Database.URL, app.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.db = db
	app.closers = append(app.closers, db)

	if app.config.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, db, "up", app.logger); err != nil {
			return err
		}
	}

	app.repo = postgres.NewPostgresTaskStore(db, app.logger)
	return nil
}

func (app *application) setupKinds(ctx context.Context) (*task.KindRegistry, error) {
	provider := app.config.Provider
	client, err := inference.NewClient(inference.Config{
		BaseURL:           provider.BaseURL,
		APIKey:            provider.APIKey,
		RequestsPerSecond: provider.RequestsPerSecond,
		Burst:             provider.Burst,
		Timeout:           provider.Timeout,
	}, nil, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize inference client: %w", err)
	}

	kinds := []task.Kind{
		task.NewImageUpscaleKind(client, provider.UpscaleModel),
		task.NewVideoEnhanceKind(client, provider.EnhanceModel),
	}

	if app.config.Gemini.APIKey != "" {
		video, err := gemini.NewVideoClient(ctx, gemini.Config{
			APIKey: app.config.Gemini.APIKey,
			Model:  app.config.Gemini.VideoModel,
		}, app.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize gemini video client: %w", err)
		}
		kinds = append(kinds, task.NewVideoGenerateKind(video, app.config.Gemini.VideoModel))
	} else {
		app.logger.Info("gemini api key not set; video generation disabled")
	}

	registry, err := task.NewKindRegistry(kinds...)
	if err != nil {
		return nil, fmt.Errorf("failed to register task kinds: %w", err)
	}
	return registry, nil
}

func (app *application) setupRelocator(ctx context.Context) (relocation.Relocator, error) {
	storage := app.config.Storage

	var uploader objectstore.Uploader
	switch storage.Backend {
	case "gcs":
		gcs, err := objectstore.NewGCSUploader(ctx, storage.Bucket, storage.PublicBaseURL, storage.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize gcs uploader: %w", err)
		}
		app.closers = append(app.closers, gcs)
		uploader = gcs
	case "s3":
		s3, err := objectstore.NewS3Uploader(storage.Bucket, storage.Region, storage.PublicBaseURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize s3 uploader: %w", err)
		}
		uploader = s3
	default:
		app.logger.Warn("artifact storage disabled; provider references are stored as-is")
		return relocation.Passthrough, nil
	}

	return objectstore.NewRelocator(uploader, nil, objectstore.Config{
		Attempts:        storage.UploadAttempts,
		DownloadTimeout: storage.DownloadTimeout,
	}, app.logger), nil
}

// buildTaskConfig translates engine settings into the engine's own config.
func buildTaskConfig(c config.EngineConfig) task.Config {
	return task.Config{
		MaxConcurrency:    c.MaxConcurrency,
		ReservedSlots:     c.ReservedSlots,
		RetryDelay:        c.RetryDelay,
		MaxRetries:        c.MaxRetries,
		PollInterval:      c.PollInterval,
		WatchTimeout:      c.WatchTimeout,
		ResultTimeout:     c.ResultTimeout,
		RelocationTimeout: c.RelocationTimeout,
		SweepSchedule:     c.SweepSchedule,
		StaleAfter:        c.StaleAfter,
		WebhookDedupSize:  c.WebhookDedupSize,
		WebhookURL:        c.WebhookURL,
	}
}

// cleanup releases resources held by the application.
func (app *application) cleanup() {
	var result *multierror.Error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i].Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	app.closers = nil

	if err := result.ErrorOrNil(); err != nil {
		app.logger.Error("failed to release resources", "error", err)
	}
}
