// Package server builds the daemon's dependency graph and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/jobcore/internal/api"
	"github.com/JakeFAU/jobcore/internal/catalog"
	"github.com/JakeFAU/jobcore/internal/clock/system"
	"github.com/JakeFAU/jobcore/internal/config"
	"github.com/JakeFAU/jobcore/internal/id/uuid"
	"github.com/JakeFAU/jobcore/internal/jobs"
	"github.com/JakeFAU/jobcore/internal/logging"
	"github.com/JakeFAU/jobcore/internal/metrics"
	"github.com/JakeFAU/jobcore/internal/policy/ratelimit"
	"github.com/JakeFAU/jobcore/internal/progress"
	progresssinks "github.com/JakeFAU/jobcore/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/jobcore/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/jobcore/internal/publisher/pubsub"
	redispublisher "github.com/JakeFAU/jobcore/internal/publisher/redis"
	"github.com/JakeFAU/jobcore/internal/resolve"
	gcsresolve "github.com/JakeFAU/jobcore/internal/resolve/gcs"
	localresolve "github.com/JakeFAU/jobcore/internal/resolve/local"
	"github.com/JakeFAU/jobcore/internal/scheduler"
	memorystore "github.com/JakeFAU/jobcore/internal/storage/memory"
	pgstore "github.com/JakeFAU/jobcore/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/jobcore/internal/storage/sqlite"
	"github.com/JakeFAU/jobcore/internal/telemetry"
	"github.com/JakeFAU/jobcore/internal/uiecho"
	"github.com/JakeFAU/jobcore/internal/worker"
)

// runStore is what the daemon needs from a run store backend.
type runStore interface {
	jobs.RunStore
	jobs.ProgressWriter
}

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	apiServer *api.Server
	sched     *scheduler.Scheduler
	loop      *uiecho.Loop
	hub       *progress.Hub
	store     runStore

	gcsClient      *storage.Client
	pubsub         *gcppublisher.Publisher
	redisClient    *goredis.Client
	closeStore     func() error
	tracerProvider *sdktrace.TracerProvider
}

// Build creates the application's dependencies. On error everything built
// so far is closed.
func Build(ctx context.Context, cfg config.Config) (app *App, err error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	logger.Info("building application",
		zap.Int("port", cfg.Server.Port),
		zap.String("store", cfg.Store.Backend),
		zap.String("publisher", cfg.Publisher.Backend),
		zap.Int("workers", cfg.Scheduler.Workers),
	)

	app = &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.closeInfrastructure(context.Background())
		}
	}()

	app.tracerProvider, err = telemetry.InitTracerProvider(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	metrics.Init()

	if err = app.setupStore(ctx); err != nil {
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}
	resolver, err := app.setupResolver(ctx)
	if err != nil {
		return nil, err
	}
	if err = app.setupProgress(); err != nil {
		return nil, err
	}

	cat := catalog.New()
	if err = cat.Register(catalog.Builtin()...); err != nil {
		return nil, fmt.Errorf("catalog init failed: %w", err)
	}
	for name, meta := range cfg.UI.Operations {
		cat.Override(name, meta)
	}

	clock := system.New()
	kept := uiecho.NewMemoryJobList()
	app.loop = uiecho.NewLoop(logger.Named("ui"))
	echo := uiecho.New(app.loop, kept, cat, uiecho.Config{
		DefaultSilentAfter: cfg.UI.DefaultSilentAfter,
		DefaultMessage:     cfg.UI.DefaultMessage,
	}, logger.Named("uiecho"))

	var emitter progress.Emitter = progress.NopEmitter{}
	if app.hub != nil {
		emitter = app.hub
	}
	recorder := worker.NewRecorder(app.store, publisher, emitter, cfg.Publisher.Topic, logger.Named("recorder"))

	app.sched, err = scheduler.New(scheduler.Config{
		Workers:          cfg.Scheduler.Workers,
		QueueDepth:       cfg.Scheduler.QueueDepth,
		ProgressInterval: cfg.Scheduler.ProgressInterval,
		Namespace:        cfg.Scheduler.Namespace,
		Retain:           cfg.Scheduler.Retain,
		RetainFor:        cfg.Scheduler.RetainFor,
	}, scheduler.Deps{
		Store:    app.store,
		Recorder: recorder,
		Resolver: resolver,
		Failures: logging.NewFailureReporter(logger.Named("failures")),
		Echo:     echo,
		Clock:    clock,
		IDs:      uuid.New(),
	}, logger.Named("scheduler"))
	if err != nil {
		return nil, fmt.Errorf("scheduler init failed: %w", err)
	}

	app.apiServer = api.NewServer(api.Deps{
		Scheduler: app.sched,
		Catalog:   cat,
		Kept:      kept,
		Inbox:     api.NewInbox(clock, 0),
		Runs:      app.store,
		Limiter:   ratelimit.New(cfg.Admission),
		Logger:    logger,
	}, cfg)
	return app, nil
}

func (a *App) setupStore(ctx context.Context) error {
	switch a.cfg.Store.Backend {
	case "postgres":
		store, err := pgstore.NewRunStore(ctx, pgstore.Config{
			DSN:             a.cfg.DB.DSN,
			Table:           a.cfg.DB.Table,
			MaxConns:        a.cfg.DB.MaxConns,
			MinConns:        a.cfg.DB.MinConns,
			MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("postgres run store init failed: %w", err)
		}
		a.store = store
		a.closeStore = func() error { store.Close(); return nil }
		if a.cfg.DB.EnsureSchema {
			if err := store.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("postgres schema init failed: %w", err)
			}
		}
		a.logger.Info("using postgres run store", zap.String("table", a.cfg.DB.Table))
	case "sqlite":
		store, err := sqlitestore.Open(a.cfg.SQLite.Path)
		if err != nil {
			return fmt.Errorf("sqlite run store init failed: %w", err)
		}
		a.store = store
		a.closeStore = store.Close
		a.logger.Info("using sqlite run store", zap.String("path", a.cfg.SQLite.Path))
	default:
		a.store = memorystore.NewRunStore(nil)
		a.logger.Info("using in-memory run store")
	}
	return nil
}

func (a *App) setupPublisher(ctx context.Context) (jobs.Publisher, error) {
	switch a.cfg.Publisher.Backend {
	case "memory":
		a.logger.Info("using in-memory publisher", zap.String("topic", a.cfg.Publisher.Topic))
		return memorypublisher.New(1000), nil
	case "pubsub":
		pub, err := gcppublisher.Dial(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsub = pub
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.PubSub.ProjectID),
			zap.String("topic", a.cfg.Publisher.Topic),
		)
		return pub, nil
	case "redis":
		client, err := redispublisher.Connect(ctx, a.cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis publisher init failed: %w", err)
		}
		a.redisClient = client
		a.logger.Info("redis stream publisher initialized", zap.String("stream", a.cfg.Publisher.Topic))
		return redispublisher.New(client, a.cfg.Redis.MaxLen), nil
	default:
		a.logger.Info("completion publishing disabled")
		return nil, nil
	}
}

func (a *App) setupResolver(ctx context.Context) (jobs.PathResolver, error) {
	local, err := localresolve.New(a.cfg.Resolve)
	if err != nil {
		return nil, fmt.Errorf("local resolver init failed: %w", err)
	}
	mux := resolve.NewMux(local)
	if a.cfg.GCS.Enabled {
		a.gcsClient, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		gcs, err := gcsresolve.New(a.gcsClient, a.cfg.GCS.Config)
		if err != nil {
			return nil, fmt.Errorf("gcs resolver init failed: %w", err)
		}
		mux.Handle("gs", gcs)
		a.logger.Info("gs:// paths enabled", zap.String("bucket", a.cfg.GCS.Bucket))
	}
	return mux, nil
}

func (a *App) setupProgress() error {
	var sinkList []progress.Sink
	if a.cfg.Progress.StoreSink {
		sinkList = append(sinkList, progresssinks.NewStoreSink(a.store, a.logger.Named("progress_store")))
	}
	if a.cfg.Progress.LogSink {
		sinkList = append(sinkList, progresssinks.NewLogSink(a.logger.Named("progress_log")))
	}
	if a.cfg.Progress.PrometheusSink {
		sink, err := progresssinks.NewPrometheusSink(prometheus.DefaultRegisterer)
		if err != nil {
			return fmt.Errorf("prometheus progress sink init failed: %w", err)
		}
		sinkList = append(sinkList, sink)
	}
	if len(sinkList) == 0 {
		a.logger.Info("no progress sinks configured")
		return nil
	}
	hubCfg := progress.HubConfig{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   a.cfg.Progress.MaxBatchWait,
		SinkTimeout:    a.cfg.Progress.SinkTimeout,
		Logger:         a.logger.Named("progress_hub"),
	}
	a.hub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler { return a.apiServer.Handler() }

// Run serves HTTP, runs the scheduler and the UI loop, and blocks until ctx
// is cancelled or SIGINT/SIGTERM arrives. It then drains and closes
// everything.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.sched.Run(gctx)
		return nil
	})
	g.Go(func() error {
		if err := a.loop.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("ui loop: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})
	runErr := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	a.Close(closeCtx)
	return runErr
}

// Close releases infrastructure and flushes observability.
func (a *App) Close(ctx context.Context) {
	a.closeInfrastructure(ctx)
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
		a.hub = nil
	}
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
		a.pubsub = nil
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("redis client close failed", zap.Error(err))
		}
		a.redisClient = nil
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.gcsClient = nil
	}
	if a.closeStore != nil {
		if err := a.closeStore(); err != nil {
			a.logger.Warn("run store close failed", zap.Error(err))
		}
		a.closeStore = nil
	}
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
		a.tracerProvider = nil
	}
}
