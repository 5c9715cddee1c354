package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"golang.org/x/sync/errgroup"

	"licensehub/internal/config"
	apierrors "licensehub/internal/errors"
	"licensehub/internal/events"
	"licensehub/internal/infrastructure"
	"licensehub/internal/license"
	"licensehub/internal/middleware"
	"licensehub/internal/security"
	"licensehub/internal/services"
	"licensehub/internal/store"
	transport "licensehub/internal/transport/http"
	ws "licensehub/internal/websocket"
)

const AppName = "licensehub"

// Version is set at build time with -ldflags "-X licensehub/internal/app.Version=...".
var Version = "dev"

const eventQueueSize = 256

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Store         store.Store
	Engine        *license.Engine
	Hub           *ws.Hub
	Events        *events.Async
	Router        http.Handler
	Server        *http.Server

	kafka *events.KafkaPublisher
}

// Option adjusts NewApplication.
type Option func(*options)

type options struct {
	logger *slog.Logger
	store  store.Store
	clock  license.Clock
}

// WithLogger replaces the logger built from the logging configuration.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithStore uses s instead of opening the configured store. The application
// takes ownership and closes it on shutdown.
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// WithClock replaces the system clock.
func WithClock(c license.Clock) Option {
	return func(o *options) { o.clock = c }
}

// NewApplication creates a new application instance with dependency injection
func NewApplication(ctx context.Context, cfg *config.Config, opts ...Option) (*Application, error) {
	o := options{clock: license.SystemClock{}}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = infrastructure.InitializeLogger(cfg.Logging)
	}
	logger.InfoContext(ctx, "application starting",
		slog.String("name", AppName),
		slog.String("version", Version),
		slog.String("store", cfg.Store.Driver))

	if cfg.Telemetry.ServiceVersion == "" || cfg.Telemetry.ServiceVersion == "dev" {
		cfg.Telemetry.ServiceVersion = Version
	}
	providers, err := infrastructure.InitializeOTel(ctx, cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: providers,
		Store:         o.store,
	}

	if app.Store == nil {
		if app.Store, err = OpenStore(ctx, cfg.Store, logger); err != nil {
			_ = providers.Shutdown(ctx)
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
	}

	if err := app.initializeServices(ctx, o.clock); err != nil {
		_ = app.Close(ctx)
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	return app, nil
}

// initializeServices builds the engine, the event pipeline and the HTTP surface
func (a *Application) initializeServices(ctx context.Context, clock license.Clock) error {
	cfg := a.Config

	metrics, err := license.InitializeMetrics(a.OTelProviders.Meter)
	if err != nil {
		return err
	}
	telemetry := license.NewTelemetry(metrics)

	a.Engine = license.NewEngine(a.Store, clock,
		license.WithMaxAttempts(cfg.Engine.MaxAttempts),
		license.WithBackoff(cfg.Engine.Backoff),
		license.WithFreeTrialSpan(cfg.Engine.FreeTrialSpan),
		license.WithLogger(a.Logger),
		license.WithConflictObserver(telemetry.RecordConflict),
	)

	sinks := []events.Publisher{events.NewLogPublisher(a.Logger)}
	if len(cfg.Events.KafkaBrokers) > 0 {
		if a.kafka, err = events.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic); err != nil {
			return err
		}
		sinks = append(sinks, a.kafka)
		a.Logger.InfoContext(ctx, "kafka event sink enabled",
			slog.Any("brokers", cfg.Events.KafkaBrokers),
			slog.String("topic", cfg.Events.KafkaTopic))
	}
	var clients services.ClientCounter
	if cfg.Events.WebSocketEnabled {
		wsMetrics, err := ws.NewMetrics(a.OTelProviders.Meter)
		if err != nil {
			return err
		}
		a.Hub = ws.NewHub(a.Logger, ws.WithMetrics(wsMetrics))
		sinks = append(sinks, a.Hub)
		clients = a.Hub
	}
	a.Events = events.NewAsync(events.NewFanout(a.Logger, sinks...), eventQueueSize, a.Logger)

	issuer, err := security.NewTokenIssuer(cfg.Security.SecretKey, cfg.Security.TokenIssuer, cfg.Security.TokenTTL)
	if err != nil {
		return err
	}
	if cfg.Security.AdminPasswordHash == "" {
		a.Logger.WarnContext(ctx, "no admin password hash configured, admin login is disabled")
	}

	errorHandler := apierrors.NewErrorHandler(a.Logger, cfg.Logging.Development)
	otelMiddleware, err := middleware.NewOTelMiddleware(a.OTelProviders)
	if err != nil {
		return err
	}

	routerCfg := transport.RouterConfig{
		Logger:       a.Logger,
		ErrorHandler: errorHandler,
		Validator:    middleware.NewValidator(),

		Licenses: services.NewLicenseService(a.Engine, telemetry, a.Events, clock, a.Logger),
		Auth:     services.NewAuthService(cfg.Security.AdminPasswordHash, issuer, a.Logger),
		Health:   services.NewHealthService(Version, a.Store, clients, a.Logger),
		Verifier: issuer,

		Hub:               a.Hub,
		WSReadBufferSize:  cfg.Events.ReadBufferSize,
		WSWriteBufferSize: cfg.Events.WriteBufferSize,
		OTel:              otelMiddleware,
		MetricsHandler:    a.OTelProviders.PrometheusHTTP,
		CORS: middleware.CORSConfig{
			AllowedOrigins:   cfg.Server.AllowedOrigins,
			AllowCredentials: true,
			MaxAge:           300,
		},
		RequestTimeout: cfg.Server.RequestTimeout,
	}
	if rl := cfg.Security.RateLimit; rl.Enabled {
		routerCfg.APIRateLimiter = middleware.NewRateLimiter(rl.RPS, rl.Burst, errorHandler, a.Logger)
	}
	if rl := cfg.Security.CheckRateLimit; rl.Enabled {
		routerCfg.PublicRateLimiter = middleware.NewRateLimiter(rl.RPS, rl.Burst, errorHandler, a.Logger)
	}

	a.Router = transport.NewRouter(routerCfg)
	a.Server = &http.Server{
		Addr:           cfg.Addr(),
		Handler:        a.Router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}
	return nil
}

// Run listens on the configured address and serves until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		_ = a.Close(ctx)
		return fmt.Errorf("listen on %s: %w", a.Server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln together with the event pipeline and the
// websocket hub. When ctx is cancelled the server drains first, then the
// background workers stop and every resource is closed.
func (a *Application) Serve(ctx context.Context, ln net.Listener) error {
	background, stopBackground := context.WithCancel(context.WithoutCancel(ctx))
	defer stopBackground()

	var workers errgroup.Group
	workers.Go(func() error { return a.Events.Run(background) })
	if a.Hub != nil {
		workers.Go(func() error { return a.Hub.Run(background) })
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.InfoContext(ctx, "http server listening", slog.String("address", ln.Addr().String()))
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.Logger.InfoContext(ctx, "shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.Server.ShutdownTimeout)
		defer cancel()
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	stopBackground()
	err = errors.Join(err, workers.Wait(), a.Close(context.WithoutCancel(ctx)))
	a.Logger.InfoContext(ctx, "application shutdown complete")
	return err
}

// Close releases the event sinks, the store and the telemetry providers.
func (a *Application) Close(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close kafka writer: %w", err))
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
		}
	}
	return errors.Join(errs...)
}
