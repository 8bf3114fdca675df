package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smartclean/internal/core/ports"
	"smartclean/internal/core/services"
	httphandlers "smartclean/internal/handlers/http"
	"smartclean/internal/infrastructure/coordination"
	"smartclean/internal/infrastructure/distributed"
	"smartclean/internal/infrastructure/middleware"
	"smartclean/internal/infrastructure/monitoring"
	"smartclean/internal/infrastructure/observer"
	"smartclean/pkg/config"
	"smartclean/pkg/logger"
	"smartclean/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var configPaths = []string{
	"configs/config.yaml",
	"./config.yaml",
}

// loadConfig uses the first config file that exists, or defaults plus
// environment overrides when there is none.
func loadConfig() (*config.Config, string, error) {
	for _, path := range configPaths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		cfg, err := config.Load(path)
		return cfg, path, err
	}
	cfg, err := config.Load("")
	return cfg, "", err
}

func main() {
	cfg, cfgPath, err := loadConfig()
	if err != nil {
		// Logger is not configured yet.
		zap.NewExample().Sugar().Fatalw("failed to load config", "path", cfgPath, "error", err)
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()
	if cfgPath != "" {
		log.Infow("Loaded config", "path", cfgPath)
	} else {
		log.Info("No config file found, using defaults")
	}

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialise tracing", "error", err)
	}

	var metrics ports.MetricsRecorder = ports.NopMetrics{}
	if cfg.Monitoring.PrometheusEnabled {
		metrics = monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	factory := coordination.NewFactory(cfg, log)
	defer factory.Close()

	health := monitoring.NewHealthChecker()

	// With Redis on, only one process may arbitrate the robot.
	var lost <-chan struct{}
	lock := factory.ControllerLock()
	if lock != nil {
		if err := lock.Acquire(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("Shutdown requested while waiting for controller lock")
				return
			}
			log.Fatalw("failed to acquire controller lock", "error", err)
		}
		lost = lock.Lost()
		health.AddLockCheck(lock.Held)
	}
	if client := factory.Client(); client != nil {
		health.AddRedisCheck(client, 2*time.Second)
	}

	scheduler := services.NewScheduler(services.Options{
		TurnDuration:  cfg.Queue.TurnDuration,
		Cooldown:      cfg.Queue.Cooldown,
		RebootDelay:   cfg.Queue.RebootDelay,
		SessionTTL:    cfg.Queue.SessionTTL,
		AdminSecret:   cfg.Admin.Secret,
		StatusPreview: cfg.Queue.StatusPreview,
		StreamPreview: cfg.Queue.StreamPreview,
		Logger:        log.Named("scheduler"),
		Metrics:       metrics,
	})

	relay := factory.SnapshotRelay()
	if relay != nil {
		scheduler.Subscribe(distributed.NewRelaySink(relay, cfg.Observers.Buffer, time.Second))
		log.Infow("Relaying snapshots", "channel", cfg.Redis.Channel)
	}

	maintenance := services.NewMaintenance(scheduler, services.MaintenanceConfig{
		ExpiryInterval:  cfg.Queue.ExpiryCheckInterval,
		SessionInterval: cfg.Queue.SessionSweepInterval,
	}, log.Named("maintenance"), metrics)
	maintenance.Start(ctx)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.TracingMiddleware(),
		middleware.RequestLoggerMiddleware(logger.NewContextLogger(zapLogger)),
		middleware.CORSMiddleware(cfg.Observers.AllowedOrigins),
		middleware.NewHTTPRateLimitMiddleware(cfg),
		middleware.ErrorHandlerMiddleware(log),
	)

	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "SmartClean Live Backend API")
	})

	router.GET("/ready", func(c *gin.Context) {
		status := health.CheckAll(c.Request.Context())
		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	api := router.Group("/api")
	for _, h := range []ports.HTTPHandler{
		httphandlers.NewQueueHandler(scheduler),
		httphandlers.NewDeviceHandler(scheduler),
		httphandlers.NewAdminHandler(scheduler, log.Named("admin")),
		httphandlers.NewHealthHandler(scheduler, scheduler.Uptime),
		observer.NewHandler(scheduler, observer.Config{
			Buffer:         cfg.Observers.Buffer,
			PingInterval:   cfg.Observers.PingInterval,
			WriteTimeout:   cfg.Observers.WriteTimeout,
			AllowedOrigins: cfg.Observers.AllowedOrigins,
		}, log.Named("observer")),
	} {
		h.RegisterRoutes(api)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("Starting SmartClean server", "address", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		log.Errorw("Server failed", "error", err)
	case <-lost:
		log.Errorw("Controller lock lost, shutting down", "instance_id", factory.InstanceID())
	case <-ctx.Done():
		log.Info("Received shutdown signal")
	}

	log.Info("Shutting down SmartClean server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Closing the scheduler first ends the long-lived observer streams so
	// Shutdown does not wait on them.
	maintenance.Stop()
	scheduler.Close()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	if relay != nil {
		if err := relay.Close(); err != nil {
			log.Errorw("Error closing snapshot relay", "error", err)
		}
	}
	if lock != nil {
		if err := lock.Release(shutdownCtx); err != nil && !errors.Is(err, distributed.ErrLockNotHeld) {
			log.Errorw("Error releasing controller lock", "error", err)
		}
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracer provider", "error", err)
	}

	log.Info("SmartClean server stopped")
}
