package main

import (
	"context"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"pairlink/internal/core/domain"
	"pairlink/internal/core/ports"
	"pairlink/internal/core/services"
	httphandlers "pairlink/internal/handlers/http"
	"pairlink/internal/infrastructure/distributed"
	"pairlink/internal/infrastructure/middleware"
	"pairlink/internal/infrastructure/monitoring"
	"pairlink/internal/infrastructure/reliability"
	"pairlink/internal/infrastructure/repositories/memory"
	"pairlink/internal/infrastructure/signal"
	"pairlink/internal/infrastructure/sweep"
	"pairlink/pkg/circuitbreaker"
	"pairlink/pkg/config"
	"pairlink/pkg/logger"
	"pairlink/pkg/retry"
	"pairlink/pkg/tracing"
	"pairlink/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/pairlink/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	zapLogger := logger.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Initialize tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "pairlink",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Initialize monitoring
	var metrics ports.MetricsRecorder
	if cfg.Monitoring.PrometheusEnabled {
		metrics = monitoring.NewPrometheusCollector()
	}

	// Initialize repositories
	table := memory.NewConnectionTable()
	presence := memory.NewPresenceTracker(cfg.Broker.ActivityTimeout)

	// The expiry hook needs the broker, which needs the registry; the hook
	// reads the broker variable assigned below.
	var broker ports.BrokerService
	registry := memory.NewSessionRegistry(cfg.Broker.SessionTTL, log, func(code domain.SessionCode, creator domain.Identity) {
		log.Infow("session code expired", "code", code, "creator", creator)
		if metrics != nil {
			metrics.RecordCodeExpired()
		}
		if broker != nil {
			broker.ExpireSession(context.Background(), creator)
		}
	})
	defer registry.Close()

	// Initialize services
	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	wsServer := signal.NewWebSocketServer(authService, signal.Config{
		PingInterval:      cfg.Signal.PingInterval,
		PongTimeout:       cfg.Signal.PongTimeout,
		WriteTimeout:      cfg.Signal.WriteTimeout,
		MessagesPerSecond: signalRate(cfg),
		Burst:             cfg.RateLimiting.Signal.Burst,
		MaxMessageBytes:   cfg.RateLimiting.Signal.MaxMessageBytes,
		AllowedOrigins:    cfg.Auth.AllowedOrigins,
	}, log)

	// The signal server is the primary notifier; redis adds an optional
	// best-effort mirror for external consumers.
	var notifier ports.Notifier = wsServer
	var eventBus *distributed.EventBus
	if cfg.Redis.Enabled {
		redisClient, err := distributed.NewRedisClient(
			cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, log,
		)
		if err != nil {
			log.Fatalw("failed to connect to redis", "error", err)
		}
		defer redisClient.Close()

		eventBus = distributed.NewEventBus(redisClient, utils.GenerateInstanceID(), log)
		notifier = reliability.NewMirroringNotifier(
			wsServer, eventBus, retry.DefaultConfig(), circuitbreaker.DefaultConfig(), log,
		)
	}

	broker = services.NewBrokerService(registry, table, presence, notifier, metrics, log)
	wsServer.AttachBroker(broker)

	// Health checks
	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddCheck("broker", func(ctx context.Context) error {
		_, err := broker.PairingSnapshot(ctx)
		return err
	}, 2*time.Second)
	if eventBus != nil {
		healthChecker.AddCheck("redis", eventBus.Ping, 2*time.Second)
	}

	// Initialize HTTP handlers
	authHandler := httphandlers.NewAuthHandler(authService, cfg.Auth.ProvisionKey, cfg.Auth.TokenTTL)
	brokerHandler := httphandlers.NewBrokerHandler(broker, healthChecker)

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.RequestLoggingMiddleware(logger.NewContextLogger(zapLogger)))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}

	authHandler.SetupRoutes(router)
	brokerHandler.SetupRoutes(router, middleware.AuthMiddleware(authService))

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	// Signal server on its own listener
	signalMux := http.NewServeMux()
	signalMux.HandleFunc("/ws", wsServer.HandleWebSocket)
	signalSrv := &http.Server{
		Addr:    cfg.Signal.Address,
		Handler: signalMux,
	}

	apiSrv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Liveness sweep
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	sweeper := sweep.NewScheduler(broker, cfg.Broker.SweepPeriod, log)
	go sweeper.Start(sweepCtx)

	serverErr := make(chan error, 2)
	go func() {
		log.Infof("Starting pairlink signal server on %s", cfg.Signal.Address)
		if err := signalSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()
	go func() {
		log.Infof("Starting pairlink API server on %s", cfg.Server.Address)
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for shutdown signals or server error
	sigChan := make(chan os.Signal, 1)
	ossignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down pairlink broker...")

	sweeper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := signalSrv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during signal server shutdown", "error", err)
	}
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during API server shutdown", "error", err)
	}

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracer", "error", err)
	}

	log.Info("pairlink broker stopped")
}

// signalRate returns the per-connection message rate, zero when rate
// limiting is disabled.
func signalRate(cfg *config.Config) float64 {
	if !cfg.RateLimiting.Enabled {
		return 0
	}
	return cfg.RateLimiting.Signal.MessagesPerSecond
}
