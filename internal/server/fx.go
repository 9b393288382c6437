// Package server provides the core application server and dependency injection.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-overlay/internal/api"
	"github.com/JakeFAU/progress-overlay/internal/appearance"
	"github.com/JakeFAU/progress-overlay/internal/arbiter"
	"github.com/JakeFAU/progress-overlay/internal/clock/system"
	"github.com/JakeFAU/progress-overlay/internal/config"
	"github.com/JakeFAU/progress-overlay/internal/id/uuid"
	"github.com/JakeFAU/progress-overlay/internal/logging"
	"github.com/JakeFAU/progress-overlay/internal/metrics"
	"github.com/JakeFAU/progress-overlay/internal/policy/ratelimit"
	"github.com/JakeFAU/progress-overlay/internal/progress"
	progresssinks "github.com/JakeFAU/progress-overlay/internal/progress/sinks"
	gcsstorage "github.com/JakeFAU/progress-overlay/internal/storage/gcs"
	localstorage "github.com/JakeFAU/progress-overlay/internal/storage/local"
	memoryStorage "github.com/JakeFAU/progress-overlay/internal/storage/memory"
	pgstore "github.com/JakeFAU/progress-overlay/internal/storage/postgres"
	"github.com/JakeFAU/progress-overlay/internal/storage/rediscache"
	"github.com/JakeFAU/progress-overlay/internal/store"
	"github.com/JakeFAU/progress-overlay/internal/tracker"
)

// App contains the application's dependencies.
type App struct {
	cfg          *config.Config
	logger       *zap.Logger
	apiServer    *api.Server
	loop         *tracker.Loop
	progressHub  *progress.Hub
	stream       *progresssinks.WebSocketSink
	apps         store.AppConfigStore
	icons        store.IconStore
	resolver     *appearance.Resolver
	pubsubClient *pubsub.Client
	storage      *storage.Client
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	// Define a struct for logging only non-sensitive config fields
	type SanitizedConfig struct {
		ServerPort int    `json:"server_port"`
		Store      string `json:"store"`
		Icons      string `json:"icons"`
		Policy     string `json:"policy"`
	}
	safeCfg := SanitizedConfig{
		ServerPort: cfg.Server.Port,
		Store:      cfg.Store.Backend,
		Icons:      cfg.Icons.Backend,
		Policy:     cfg.Arbitration.Policy,
	}
	logger.Info("Creating application", zap.Any("config", safeCfg))
	return &App{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.loop.Start(ctx)
	a.logger.Info("tracker loop started")

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       a.cfg.Server.ReadTimeout,
		WriteTimeout:      a.cfg.Server.WriteTimeout,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	return a.Close(shutdownCtx)
}

// Handler exposes the HTTP router, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Close gracefully shuts down the application. The tracker stops first so
// no displays are emitted into a closed hub.
func (a *App) Close(ctx context.Context) error {
	if a.loop != nil {
		if err := a.loop.Close(ctx); err != nil {
			a.logger.Warn("tracker loop close failed", zap.Error(err))
		}
	}
	a.closeInfrastructure(ctx)
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("display hub close failed", zap.Error(err))
		}
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.apps != nil {
		if err := a.apps.Close(); err != nil {
			a.logger.Warn("app config store close failed", zap.Error(err))
		}
	}
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
		File:        cfg.Logging.File,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
		MaxAgeDays:  cfg.Logging.MaxAgeDays,
		Compress:    cfg.Logging.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger is Build with a caller-supplied logger.
func BuildWithLogger(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}
	metrics.Init()

	app.logger.Info("building application dependencies")
	if err := setupAppStore(ctx, app); err != nil {
		return nil, err
	}
	if err := setupIcons(ctx, app); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	if err := setupAppearance(app); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	if err := setupProgress(ctx, app); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	if err := setupTracker(app); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}

	deps := api.Deps{
		Tracker: app.loop,
		Apps:    app.apps,
		Icons:   app.icons,
		Colors:  app.resolver,
		IDs:     uuid.New(),
		Logger:  logger.Named("api"),
		Ready: func(ctx context.Context) error {
			return app.loop.Do(ctx, func(context.Context, *tracker.Engine) {})
		},
	}
	if app.stream != nil {
		deps.Stream = app.stream
	}
	if cfg.RateLimit.EventsPerSecond > 0 {
		deps.Limiter = ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.RateLimit.EventsPerSecond,
			DefaultBurst: cfg.RateLimit.Burst,
		})
		app.logger.Info("rate limiter enabled",
			zap.Float64("events_per_second", cfg.RateLimit.EventsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
	}
	app.apiServer = api.NewServer(*cfg, deps)
	return app, nil
}

func setupAppStore(ctx context.Context, app *App) error {
	apps, err := OpenAppStore(ctx, app.cfg, app.logger)
	if err != nil {
		return err
	}
	app.apps = apps
	return nil
}

// OpenAppStore opens the configured AppConfig backend, wrapped in the Redis
// cache when enabled.
func OpenAppStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.AppConfigStore, error) {
	var backing store.AppConfigStore
	switch cfg.Store.Backend {
	case "postgres":
		pg, err := pgstore.NewAppConfigStore(ctx, pgstore.AppConfigStoreConfig{
			DSN:             cfg.DB.DSN,
			Table:           cfg.DB.Table,
			MaxConns:        cfg.DB.MaxConns,
			MinConns:        cfg.DB.MinConns,
			MaxConnLifetime: cfg.DB.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("app config store init failed: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("app config schema init failed: %w", err)
		}
		logger.Info("using postgres app config store", zap.String("table", cfg.DB.Table))
		backing = pg
	default:
		logger.Info("using in-memory app config store")
		backing = memoryStorage.NewAppConfigStore()
	}

	if !cfg.Redis.Enabled {
		return backing, nil
	}
	client, err := rediscache.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		_ = backing.Close()
		return nil, fmt.Errorf("redis init failed: %w", err)
	}
	cached, err := rediscache.NewAppConfigStore(backing, client, rediscache.Config{
		TTL:    cfg.Redis.TTL,
		Prefix: cfg.Redis.Prefix,
	}, logger.Named("app_cache"))
	if err != nil {
		_ = client.Close()
		_ = backing.Close()
		return nil, fmt.Errorf("redis cache init failed: %w", err)
	}
	logger.Info("app config cache enabled", zap.String("addr", cfg.Redis.Addr))
	return cached, nil
}

func setupIcons(ctx context.Context, app *App) error {
	var err error
	switch app.cfg.Icons.Backend {
	case "gcs":
		app.storage, err = storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		app.icons, err = gcsstorage.New(app.storage, gcsstorage.Config{
			Bucket: app.cfg.Icons.Bucket,
			Prefix: app.cfg.Icons.Prefix,
		})
		if err != nil {
			return fmt.Errorf("gcs icon store init failed: %w", err)
		}
		app.logger.Info("using GCS icon store", zap.String("bucket", app.cfg.Icons.Bucket))
	case "local":
		app.icons, err = localstorage.New(localstorage.Config{BaseDir: app.cfg.Icons.Dir})
		if err != nil {
			return fmt.Errorf("local icon store init failed: %w", err)
		}
		app.logger.Info("using local icon store", zap.String("path", app.cfg.Icons.Dir))
	case "memory":
		app.icons = memoryStorage.NewIconStore()
		app.logger.Info("using in-memory icon store")
	default:
		app.logger.Info("icon store disabled")
	}
	return nil
}

func setupAppearance(app *App) error {
	accent, err := app.cfg.AccentColor()
	if err != nil {
		return fmt.Errorf("appearance init failed: %w", err)
	}
	def, err := app.cfg.DefaultColor()
	if err != nil {
		return fmt.Errorf("appearance init failed: %w", err)
	}
	app.resolver = appearance.NewResolver(appearance.Settings{
		UseNotificationColor: app.cfg.Appearance.UseNotificationColor,
		UseSystemAccent:      app.cfg.Appearance.UseSystemAccent,
		Accent:               accent,
		Default:              def,
	}, app.apps, app.icons, app.logger.Named("appearance"))
	return nil
}

func setupProgress(ctx context.Context, app *App) error {
	var sinkList []progress.Sink
	if app.cfg.Sinks.Log {
		sinkList = append(sinkList, progresssinks.NewLogSink(app.logger.Named("display_log")))
		app.logger.Debug("Added display log sink")
	}
	if app.cfg.Sinks.Prometheus {
		promSink, err := progresssinks.NewPrometheusSink(prometheus.DefaultRegisterer)
		if err != nil {
			return fmt.Errorf("prometheus sink init failed: %w", err)
		}
		sinkList = append(sinkList, promSink)
		app.logger.Debug("Added display prometheus sink")
	}
	if app.cfg.Sinks.WebSocket {
		app.stream = progresssinks.NewWebSocketSink(progresssinks.WebSocketConfig{
			Backlog: app.cfg.Sinks.WebSocketBacklog,
			Logger:  app.logger.Named("display_stream"),
		})
		sinkList = append(sinkList, app.stream)
		app.logger.Debug("Added display websocket sink")
	}
	if app.cfg.Sinks.PubSub {
		var err error
		app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("pubsub client init failed: %w", err)
		}
		psSink, err := progresssinks.NewPubSubSink(app.pubsubClient.Topic(app.cfg.PubSub.TopicName), progresssinks.PubSubConfig{
			OrderingKey: app.cfg.PubSub.OrderingKey,
		})
		if err != nil {
			return fmt.Errorf("pubsub sink init failed: %w", err)
		}
		sinkList = append(sinkList, psSink)
		app.logger.Info(
			"Pub/Sub display sink initialized",
			zap.String("project", app.cfg.PubSub.ProjectID),
			zap.String("topic", app.cfg.PubSub.TopicName),
		)
	}
	if len(sinkList) == 0 {
		app.logger.Warn("no display sinks configured; displays are only visible via /v1/display")
	}
	hubCfg := progress.Config{
		BufferSize:     app.cfg.Hub.BufferSize,
		MaxBatchEvents: app.cfg.Hub.MaxBatchEvents,
		MaxBatchWait:   app.cfg.Hub.MaxBatchWait,
		SinkTimeout:    app.cfg.Hub.SinkTimeout,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         app.logger.Named("display_hub"),
	}
	app.progressHub = progress.NewHub(hubCfg, sinkList...)
	app.logger.Info("display hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Duration("sink_timeout", hubCfg.SinkTimeout),
	)
	return nil
}

func setupTracker(app *App) error {
	policy, err := arbiter.PolicyByName(app.cfg.Arbitration.Policy)
	if err != nil {
		return fmt.Errorf("arbitration policy: %w", err)
	}
	tc := app.cfg.Tracker
	engine, err := tracker.New(tracker.Config{
		Scale:         tc.Scale,
		Freshness:     tc.Freshness,
		Tick:          tc.Tick,
		RemovalGrace:  tc.RemovalGrace,
		ClockPackage:  tc.ClockPackage,
		SelfPackage:   tc.SelfPackage,
		User:          tc.User,
		ShowDownloads: app.cfg.Filters.ShowForDownloads,
		ShowMedia:     app.cfg.Filters.ShowForMedia,
	}, tracker.Deps{
		Clock:     system.New(),
		Apps:      app.apps,
		Colors:    app.resolver,
		Publisher: app.progressHub,
		Observer:  metrics.NewTrackerObserver(),
		Logger:    app.logger.Named("tracker"),
		Policy:    policy,
	})
	if err != nil {
		return fmt.Errorf("tracker init failed: %w", err)
	}
	app.loop = tracker.NewLoop(engine, tracker.LoopConfig{
		InboxSize: tc.InboxSize,
		Logger:    app.logger.Named("tracker_loop"),
	})
	app.logger.Info("tracker initialized",
		zap.String("policy", policy.Name()),
		zap.Int("scale", tc.Scale),
		zap.Duration("freshness", tc.Freshness),
		zap.Duration("tick", tc.Tick),
		zap.Duration("removal_grace", tc.RemovalGrace),
	)
	return nil
}
