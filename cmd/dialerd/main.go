package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/voxline/outdial/internal/ami"
	"github.com/voxline/outdial/internal/api/handler"
	"github.com/voxline/outdial/internal/api/router"
	"github.com/voxline/outdial/internal/config"
	"github.com/voxline/outdial/internal/dialer"
	"github.com/voxline/outdial/internal/dialer/store"
	"github.com/voxline/outdial/internal/retell"
	"github.com/voxline/outdial/internal/transfer"
	"github.com/voxline/outdial/shared/logger"
	"github.com/voxline/outdial/shared/postgresql"
	sharedredis "github.com/voxline/outdial/shared/redis"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("DIALERD_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting dialer service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("strategy", cfg.Dialer.Strategy),
	)

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	// Initialize Redis client
	redisClient, err := initRedis(&cfg.Redis, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}

	appLogger.Info("Redis connection established")

	// Stores
	ephemeral := store.NewEphemeral(redisClient, cfg.Dialer.JobTTL, appLogger.Logger)
	durable := store.NewDurable(dbClient.GetDB(), appLogger.Logger)

	// Voice-AI client
	voiceAI := retell.NewClient(cfg.VoiceAI.BaseURL, cfg.VoiceAI.APIKey, cfg.VoiceAI.RequestTimeout, appLogger.Logger)

	// AMI session factory, shared by the dialer and the transfer
	// orchestrator. Sessions are short-lived: one per origination or
	// discovery flow.
	amiCfg := ami.Config{
		Host:           cfg.AMI.Host,
		Port:           cfg.AMI.Port,
		Username:       cfg.AMI.Username,
		Secret:         cfg.AMI.Secret,
		ConnectTimeout: cfg.AMI.ConnectTimeout,
		ActionTimeout:  cfg.AMI.ActionTimeout,
	}
	dialDialer := dialer.SessionDialer(func(ctx context.Context) (dialer.AMISession, error) {
		return ami.Dial(ctx, &amiCfg, appLogger.Logger)
	})
	dialTransfer := transfer.SessionDialer(func(ctx context.Context) (transfer.AMISession, error) {
		return ami.Dial(ctx, &amiCfg, appLogger.Logger)
	})

	// Origination strategy
	var strategy dialer.OutcomeStrategy
	switch cfg.Dialer.Strategy {
	case "webhook":
		strategy = dialer.NewWebhookStrategy(dialDialer, cfg.AMI, appLogger.Logger)
	default:
		strategy = dialer.NewSyncStrategy(dialDialer, cfg.AMI, cfg.Dialer, appLogger.Logger)
	}

	// Dispatch manager and worker pool
	manager := dialer.NewManager(cfg.Dialer, ephemeral, durable, voiceAI, strategy, appLogger.Logger)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	manager.Start(workerCtx)

	// Transfer orchestrator
	transfers := transfer.NewOrchestrator(dialTransfer, durable, cfg.AMI, cfg.Transfer, appLogger.Logger)

	// Initialize router
	r := initRouter(cfg, appLogger.Logger, manager, transfers, durable, dbClient, redisClient)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("Dialer service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout. Intake stops first so no new jobs
	// enter while in-flight calls drain.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)

	cleanup := func() {
		cancel()
		manager.Stop()
		if dbClient != nil {
			dbClient.Close()
		}
		if redisClient != nil {
			redisClient.Close()
		}
	}
	defer cleanup()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRedis initializes the Redis client
func initRedis(cfg *config.RedisConfig, logger *slog.Logger) (*sharedredis.Client, error) {
	redisConfig := &sharedredis.Config{
		Host:         cfg.Host,
		Port:         cfg.Port,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	}

	return sharedredis.NewClient(redisConfig, logger)
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, logger *slog.Logger, manager *dialer.Manager, transfers *transfer.Orchestrator, durable *store.Durable, dbClient *postgresql.Client, redisClient *sharedredis.Client) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize handler dependencies
	handlerDeps := &handler.Dependencies{
		Logger:     logger,
		Config:     cfg,
		Queue:      manager,
		Notifier:   manager,
		Transfers:  transfers,
		Classifier: durable,
		Database:   dbClient,
		Redis:      redisClient,
	}

	// Setup router
	return router.SetupRouter(handlerDeps)
}
