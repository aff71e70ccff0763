package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"NewsDigest/internal/api"
	"NewsDigest/internal/config"
	"NewsDigest/internal/infrastructure/email"
	"NewsDigest/internal/infrastructure/enrich"
	"NewsDigest/internal/infrastructure/llm"
	"NewsDigest/internal/infrastructure/parser"
	"NewsDigest/internal/infrastructure/scheduler"
	"NewsDigest/internal/infrastructure/storage"
	"NewsDigest/internal/infrastructure/telegram"
	"NewsDigest/internal/logging"
	"NewsDigest/internal/metrics"
	"NewsDigest/internal/notification"
	"NewsDigest/internal/ports"
	"NewsDigest/internal/scanner"
	"NewsDigest/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	db        *sql.DB
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
	server    *http.Server
	logger    *slog.Logger
}

// New validates cfg and builds every component. The database is opened but
// not touched until Run.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	dialect := storage.Dialect(cfg.Database.Driver)
	db, err := storage.Open(dialect, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	store := storage.NewSQLStore(db, dialect, cfg.Database.DSN, baseLogger.With("component", "store"))

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	factory := scanner.NewFactory()
	parser.RegisterAll(factory, parser.Deps{
		Client:   &http.Client{Timeout: 30 * time.Second},
		Location: cfg.Scheduler.Location(),
		Logger:   baseLogger.With("component", "parser"),
	})
	sources := scanner.BuildRegistry(cfg.Sources, factory, baseLogger.With("component", "sources"),
		scanner.WithFailureRecorder(collector))

	backend, err := llm.New(ctx, cfg.LLM, baseLogger.With("component", "llm"))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("build llm backend: %w", err)
	}
	summarizer := usecase.NewSummarizer(backend, ports.ChatParams{
		MaxTokens:       cfg.LLM.MaxTokens,
		Temperature:     cfg.LLM.Temperature,
		PresencePenalty: cfg.LLM.PresencePenalty,
		TopP:            cfg.LLM.TopP,
	}, cfg.LLM.Concurrency, baseLogger)

	router := notification.BuildRouter(cfg.Notifications, buildChannels,
		baseLogger.With("component", "notification"), notification.WithDeliveryRecorder(collector))

	var extractor ports.ContentExtractor
	if cfg.Enrichment.Enabled {
		extractor = enrich.NewReadability(cfg.Enrichment.Timeout)
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Sources:    sources,
		Store:      store,
		Summarizer: summarizer,
		Notifier:   router,
		Extractor:  extractor,
		Metrics:    collector,
		Config: usecase.PipelineConfig{
			Model:             cfg.LLM.Model,
			APIKey:            cfg.LLM.APIKey,
			DefaultLimit:      cfg.Sources.DefaultLimit,
			RetentionDays:     cfg.Retention.Days,
			EnrichTimeout:     cfg.Enrichment.Timeout,
			EnrichConcurrency: cfg.Enrichment.Concurrency,
		},
		Logger: baseLogger,
	})

	var driver ports.Scheduler
	if cfg.Scheduler.Enabled {
		cron, err := scheduler.NewCronScheduler(cfg.Scheduler.CronExpression, cfg.Scheduler.Location(),
			baseLogger.With("component", "cron"))
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		driver = cron
	}

	var server *http.Server
	if cfg.HTTP.Addr != "" {
		server = &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           api.NewRouter(pipeline, metrics.Handler(registry), baseLogger),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return &Application{
		cfg:       cfg,
		db:        db,
		pipeline:  pipeline,
		scheduler: usecase.NewScheduler(driver, pipeline, cfg.Scheduler.Enabled, baseLogger),
		server:    server,
		logger:    baseLogger.With("component", "app"),
	}, nil
}

// buildChannels instantiates the channels of one notification group.
func buildChannels(cfg config.DeliveryConfig) []ports.Channel {
	var channels []ports.Channel
	if cfg.Telegram != nil {
		channels = append(channels, telegram.NewChannel(*cfg.Telegram))
	}
	if cfg.Email != nil {
		channels = append(channels, email.NewChannel(*cfg.Email))
	}
	return channels
}

// RunOnce initializes the pipeline, which performs one bootstrap run per
// enabled source group, and releases resources.
func (a *Application) RunOnce(ctx context.Context) error {
	defer a.close()
	return a.pipeline.Initialize(ctx)
}

// Run initializes the pipeline, starts the scheduler and the HTTP surface,
// and blocks until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	defer a.close()

	if err := a.pipeline.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize pipeline: %w", err)
	}
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	serverErr := make(chan error, 1)
	if a.server != nil {
		go func() {
			a.logger.Info("http server listening", "addr", a.server.Addr)
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case err := <-serverErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		a.logger.Error("stop scheduler", "error", err)
	}
	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("stop http server", "error", err)
		}
	}
	return runErr
}

func (a *Application) close() {
	if err := a.db.Close(); err != nil {
		a.logger.Error("close store", "error", err)
	}
}
