package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"ineqmx/internal/config"
	apperrors "ineqmx/internal/errors"
	"ineqmx/internal/exporter"
	"ineqmx/internal/infrastructure"
	customMiddleware "ineqmx/internal/middleware"
	"ineqmx/internal/operations"
	"ineqmx/internal/services"
	handlers "ineqmx/internal/transport/http"
	ws "ineqmx/internal/websocket"
)

const AppName = "ineqmx"

var (
	// Version is set at build time with -ldflags "-X ineqmx/internal/app.Version=..."
	Version = "dev"
	// BuildTime is set at build time
	BuildTime = time.Now().Format(time.RFC3339)
)

const jobQueueStopTimeout = 30 * time.Second

// Application represents the main application container
type Application struct {
	Config            *config.Config
	Paths             *config.Paths
	Router            *chi.Mux
	Server            *http.Server
	WebSocketHub      *ws.Hub
	Pipeline          *Pipeline
	JobQueue          *operations.JobQueue
	OperationService  *services.OperationService
	InequalityService *services.InequalityService
	HealthService     *services.HealthService
	Metrics           *infrastructure.Metrics
	OTelProviders     *infrastructure.OTelProviders
	Logger            *slog.Logger

	errorHandler *apperrors.ErrorHandler
}

// NewApplication creates a new application instance with dependency injection.
// A nil cfg loads the configuration from file and environment.
func NewApplication(ctx context.Context, cfg *config.Config) (*Application, error) {
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.InfoContext(ctx, "Application starting",
		slog.String("name", AppName),
		slog.String("version", Version))

	paths, err := cfg.ResolvePaths()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	metrics, err := infrastructure.NewMetrics(otelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Paths:         paths,
		Metrics:       metrics,
		OTelProviders: otelProviders,
		Logger:        logger,
		errorHandler:  apperrors.NewErrorHandler(logger, cfg.Logging.Development),
	}

	if err := app.initializeServices(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices initializes all application services
func (a *Application) initializeServices(ctx context.Context) error {
	hub := ws.NewHub(a.Logger, a.Metrics)
	a.WebSocketHub = hub

	pipeline, err := NewPipeline(ctx, a.Config, a.Paths, hub, a.Metrics, a.Logger)
	if err != nil {
		return err
	}
	a.Pipeline = pipeline

	a.InequalityService = services.NewInequalityService(
		pipeline.Enigh,
		a.Config.Pipeline,
		a.Config.Server.ResultCacheTTL,
		a.Metrics,
		a.Logger,
	)

	a.JobQueue = operations.NewJobQueue(a.Config.Server.QueueWorkers, operations.NewMemoryJobStore(), pipeline.Manager, a.Logger)
	// Finished runs may have rewritten the tidy files behind cached tables.
	a.JobQueue.OnFinish(func(job operations.Job) {
		a.InequalityService.Invalidate()
		a.Logger.DebugContext(ctx, "result cache invalidated",
			slog.String("job_id", job.ID),
			slog.String("status", string(job.Status)))
	})

	a.OperationService = services.NewOperationService(a.JobQueue, pipeline.Manager, a.Logger)
	a.HealthService = services.NewHealthService(
		Version,
		BuildTime,
		a.Paths,
		pipeline.Manager,
		hub,
		a.InequalityService,
		a.Logger,
	)
	return nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// Middleware that does not wrap the ResponseWriter, so /ws can hijack
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	r.Handle("/ws", ws.Handler(a.WebSocketHub, a.Config.Server.AllowedOrigins, a.Logger))

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(customMiddleware.Observability(a.Metrics))
		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(a.errorHandler.Recoverer)
		r.Use(customMiddleware.SecurityHeaders)
		r.Use(customMiddleware.CORS(a.Config.Server.AllowedOrigins, a.Logger))
		if a.Config.Server.RateLimitRPS > 0 {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Server.RateLimitRPS,
				a.Config.Server.RateLimitBurst,
				a.Logger,
			).Handler)
		}
		r.Use(customMiddleware.Timeout(a.Config.Server.WriteTimeout))

		a.setupAPIRoutes(r)
	})

	r.NotFound(a.errorHandler.NotFound)
	r.MethodNotAllowed(a.errorHandler.MethodNotAllowed)

	a.Router = r
}

// setupAPIRoutes configures API endpoints
func (a *Application) setupAPIRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		healthHandler := handlers.NewHealthHandler(a.HealthService, a.errorHandler, a.Logger)
		r.Mount("/health", healthHandler.Routes())
		r.Get("/version", healthHandler.Version)

		layout := exporter.NewInequalityExporter(a.Paths,
			append(exporter.FromPipelineConfig(a.Config.Pipeline), exporter.WithExportLogger(a.Logger))...)
		inequalityHandler := handlers.NewInequalityHandler(a.InequalityService, layout, a.errorHandler, a.Logger)
		r.Mount("/inequality", inequalityHandler.Routes())

		operationsHandler := handlers.NewOperationsHandler(a.OperationService, a.WebSocketHub, a.errorHandler, a.Logger)
		r.Mount("/operations", operationsHandler.Routes())
	})
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Start launches the background workers and the HTTP server. cancel is called
// when the server stops unexpectedly.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("version", Version),
		slog.Int("port", a.Config.Server.Port),
		slog.String("data_dir", a.Paths.DataDir),
		slog.String("logs_dir", a.Paths.LogsDir))

	a.WebSocketHub.Start()
	a.JobQueue.Start(ctx)

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	if status := a.HealthService.ReadinessCheck(ctx); status.Status != "ready" {
		a.Logger.WarnContext(ctx, "Application started but not ready", slog.String("status", status.Status))
	}

	a.Logger.InfoContext(ctx, "Application started successfully",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))
	return nil
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
	}

	if err := a.JobQueue.Stop(jobQueueStopTimeout); err != nil {
		a.Logger.ErrorContext(ctx, "Failed to stop job queue gracefully", slog.String("error", err.Error()))
	}
	a.WebSocketHub.Stop()

	if err := a.Pipeline.Close(); err != nil {
		errs = append(errs, fmt.Errorf("pipeline close error: %w", err))
	}

	if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	if err := infrastructure.CloseLogFile(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Run runs the application until interrupted or ctx is cancelled
func (a *Application) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	<-ctx.Done()
	a.Logger.InfoContext(ctx, "Received shutdown signal")
	return a.Stop(ctx)
}
