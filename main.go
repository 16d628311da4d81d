package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/dispatchcore/bulk-dispatch-service/environments"
	"github.com/dispatchcore/bulk-dispatch-service/handlers"
	"github.com/dispatchcore/bulk-dispatch-service/internal/dispatch"
	"github.com/dispatchcore/bulk-dispatch-service/internal/domain"
	"github.com/dispatchcore/bulk-dispatch-service/internal/governor"
	"github.com/dispatchcore/bulk-dispatch-service/internal/repository"
	"github.com/dispatchcore/bulk-dispatch-service/internal/service"
	"github.com/dispatchcore/bulk-dispatch-service/internal/workstore"
	"github.com/dispatchcore/bulk-dispatch-service/pkg/channel"
	"github.com/dispatchcore/bulk-dispatch-service/pkg/database"
	"github.com/dispatchcore/bulk-dispatch-service/pkg/logger"
	"github.com/dispatchcore/bulk-dispatch-service/pkg/redis"
	"github.com/dispatchcore/bulk-dispatch-service/pkg/validator"
	"github.com/dispatchcore/bulk-dispatch-service/routes"

	_ "github.com/dispatchcore/bulk-dispatch-service/docs" // swagger docs
)

// @title Bulk Dispatch Service API
// @version 1.0
// @description Bulk-send campaign engine with governed per-channel delivery

// @contact.name API Support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

// @schemes http https
func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger.Init()

	cfg := environments.Load()

	// Hard-fail if required secrets are missing
	if cfg.Gateway.AuthKey == "" {
		logger.Fatalf("GATEWAY_AUTH_KEY is required but not set")
	}
	if cfg.Auth.ContractsAPIKey == "" {
		logger.Fatalf("CONTRACTS_API_KEY is required but not set")
	}
	if cfg.Auth.QueuesAPIKey == "" {
		logger.Fatalf("QUEUES_API_KEY is required but not set")
	}

	logger.Infof("Starting Bulk Dispatch Service...")

	// Init DB
	db, err := database.NewMySQLDB(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.RunMigrations(db); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	// Seed data
	if os.Getenv("SEED_DATA") == "true" {
		if err := database.SeedTestData(db); err != nil {
			logger.Warnf("Failed to seed test data: %v", err)
		}
	}

	// Init redis (delivery cache + lane counters); optional
	var redisClient *redis.Client
	redisClient, err = redis.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Warnf("Redis not available, caching disabled: %v", err)
		redisClient = nil
	}

	var counters workstore.Counters
	var cache dispatch.DeliveryCache
	if redisClient != nil {
		counters = redisClient
		cache = redisClient
	}

	// Connect the work store (RabbitMQ lanes)
	store, err := workstore.NewStore(cfg.Broker, counters)
	if err != nil {
		logger.Fatalf("Failed to connect to broker: %v", err)
	}

	// Channel gateway client
	gatewayClient := channel.NewClient(cfg.Gateway)
	logger.Infof("Channel gateway configured: %s", gatewayClient.BaseURL())

	// Repositories
	contractRepo := repository.NewContractRepository(db)
	recipientRepo := repository.NewRecipientRepository(db)

	// Governor with daily counters reseeded from today's rows
	gov := governor.NewGovernor(cfg.Governor)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	sentToday, err := contractRepo.CountSentTodayByChannel(startupCtx)
	if err != nil {
		logger.Warnf("Failed to reseed daily counters: %v", err)
	}
	for channelID, sent := range sentToday {
		gov.SeedDaily(channelID, sent)
		logger.Infof("Channel %s already sent %d message(s) today", channelID, sent)
	}

	// Crash recovery: release claims stuck mid-flight, then re-dispatch
	// every contract that was running when the process died.
	swept, err := recipientRepo.SweepStuck(startupCtx)
	if err != nil {
		logger.Fatalf("Failed to sweep stuck recipients: %v", err)
	}
	if swept > 0 {
		logger.Infof("Startup sweep released %d stuck recipient(s)", swept)
	}

	inProgress, err := contractRepo.ListInProgressIDs(startupCtx)
	if err != nil {
		logger.Fatalf("Failed to list in-progress contracts: %v", err)
	}
	for _, id := range inProgress {
		job := domain.ContractJob{JobID: workstore.NewJobID(), ContractID: id}
		if err := store.Enqueue(startupCtx, cfg.Broker.ContractsLane, job, domain.PriorityBulk); err != nil {
			logger.Errorf("Failed to re-dispatch contract %d: %v", id, err)
		} else {
			logger.Infof("Re-dispatched contract %d after restart", id)
		}
	}
	startupCancel()

	// Dispatchers consuming the two lanes
	contractDispatcher := dispatch.NewContractDispatcher(
		contractRepo, recipientRepo, store, gatewayClient, gov, cfg.Broker.MessagesLane)
	messageDispatcher := dispatch.NewMessageDispatcher(
		contractRepo, recipientRepo, gatewayClient, gov, cache, cfg.Governor.ErrorMaxLength)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	contractLimiter := rate.NewLimiter(rate.Limit(cfg.Broker.ContractsPerSec), 1)
	if err := store.Consume(ctx, cfg.Broker.ContractsLane, cfg.Broker.ContractWorkers, contractLimiter, contractDispatcher.Handle); err != nil {
		logger.Fatalf("Failed to start contracts lane consumer: %v", err)
	}

	messageLimiter := rate.NewLimiter(rate.Limit(float64(cfg.Broker.MessagesPerMin)/60.0), 1)
	if err := store.Consume(ctx, cfg.Broker.MessagesLane, cfg.Broker.MessageWorkers, messageLimiter, messageDispatcher.Handle); err != nil {
		logger.Fatalf("Failed to start messages lane consumer: %v", err)
	}

	// API service and handlers
	contractService := service.NewContractService(
		contractRepo, recipientRepo, store, gatewayClient, gov, cfg.Broker)

	healthHandler := handlers.NewHealthHandler(db, redisClient, store)
	contractHandler := handlers.NewContractHandler(contractService)
	messageHandler := handlers.NewMessageHandler(contractService)
	queueHandler := handlers.NewQueueHandler(contractService)

	e := echo.New()
	e.HideBanner = true
	e.Validator = validator.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			"x-dsp-auth-key",
		},
	}))

	// Setup routes
	routes.RegisterRoutes(e, healthHandler, contractHandler, messageHandler, queueHandler, cfg)

	// Start server in goroutine
	go func() {
		addr := ":" + cfg.Server.Port
		logger.Infof("Server starting on http://localhost%s", addr)
		logger.Infof("Swagger docs available at http://localhost%s/swagger/index.html", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof("Shutting down gracefully...")

	// Stop the lane workers first so no send is cut off mid-flight.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Infof("Shutting down HTTP server...")
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	} else {
		logger.Infof("HTTP server stopped successfully")
	}

	if err := store.Close(); err != nil {
		logger.Errorf("Error closing broker connection: %v", err)
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Errorf("Error closing redis connection: %v", err)
		}
	}

	if err := db.Close(); err != nil {
		logger.Errorf("Error closing database connection: %v", err)
	}

	logger.Infof("Shutdown complete")
}
