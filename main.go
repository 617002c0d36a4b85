package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/SAP-F-2025/learning-platform-service/internal/cache"
	"github.com/SAP-F-2025/learning-platform-service/internal/config"
	"github.com/SAP-F-2025/learning-platform-service/internal/events"
	"github.com/SAP-F-2025/learning-platform-service/internal/handlers"
	"github.com/SAP-F-2025/learning-platform-service/internal/repositories/casdoor"
	"github.com/SAP-F-2025/learning-platform-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/learning-platform-service/internal/services"
	"github.com/SAP-F-2025/learning-platform-service/internal/utils"
	"github.com/SAP-F-2025/learning-platform-service/internal/validator"
	"github.com/SAP-F-2025/learning-platform-service/pkg"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	slogLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(slogLogger)
	logger := utils.NewSlogLogger(slogLogger)

	// Initialize database
	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Initialize Redis (if configured)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = pkg.NewRedisClient(cfg)
		if err != nil {
			logger.Warn("Redis unavailable, running without cache", "error", err)
			redisClient = nil
		}
	}
	cacheManager := cache.NewCacheManager(redisClient)

	// Identity provider
	var verifier handlers.TokenVerifier
	repoConfig := postgres.RepositoryConfig{
		DB:           db,
		RedisClient:  redisClient,
		CacheManager: cacheManager,
	}
	if cfg.Casdoor.Enabled() {
		identity := casdoor.NewIdentityCasdoor(cfg.Casdoor, slogLogger)
		repoConfig.Identity = identity
		verifier = identity
	} else {
		if cfg.IsProduction() {
			log.Fatalf("CASDOOR_ENDPOINT is required in production")
		}
		logger.Warn("Casdoor not configured, accepting development tokens")
		verifier = handlers.DevTokenVerifier{}
	}

	// Initialize repositories
	repoManager := postgres.NewRepositoryManager(repoConfig)
	if err := repoManager.Initialize(); err != nil {
		log.Fatalf("Failed to initialize repositories: %v", err)
	}

	// Course change events
	transport, err := events.NewTransport(cfg.Events, slogLogger)
	if err != nil {
		log.Fatalf("Failed to initialize event transport: %v", err)
	}

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()

	messages, err := transport.Subscriber.Subscribe(runCtx, transport.Topic)
	if err != nil {
		log.Fatalf("Failed to subscribe to %s: %v", transport.Topic, err)
	}
	hub := events.NewHub(slogLogger)
	go hub.Run(runCtx, messages)

	publisher := events.NewWatermillEventPublisher(transport.Publisher, transport.Topic, slogLogger)

	// Initialize validator
	validator := validator.New()

	// Initialize services
	serviceManager := services.NewServiceManager(services.ServiceManagerConfig{
		DB:                  db,
		Repository:          repoManager.GetRepository(),
		Cache:               cacheManager,
		Publisher:           publisher,
		Hub:                 hub,
		Mailer:              services.NewMailer(cfg.Mail, slogLogger),
		Logger:              slogLogger,
		Validator:           validator,
		Retry:               services.RetryPolicyFromConfig(cfg.Retry),
		EnableNotifications: true,
	})
	if err := serviceManager.Initialize(runCtx); err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}

	// Initialize handlers
	handlerManager := handlers.NewHandlerManager(serviceManager, validator, logger, verifier)

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handlers.SetupMiddleware(router, logger, cfg.CORSAllowedOrigins)
	handlerManager.SetupRoutes(router)

	// WriteTimeout stays unset so course watch streams are not cut off
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.RequestTimeout,
	}
	// ends open watch streams once the listener stops accepting
	server.RegisterOnShutdown(hub.Close)

	// Start server in a goroutine
	go func() {
		logger.Info("Starting server", "port", cfg.Port, "environment", cfg.Environment, "events", transport.Kind)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	stopRun()

	// closes the hub, the publisher and the repository connections
	if err := serviceManager.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown services", "error", err)
	}

	if err := transport.Close(); err != nil {
		logger.Error("Failed to close event transport", "error", err)
	}

	logger.Info("Server exited")
}
