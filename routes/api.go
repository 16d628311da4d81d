package routes

import (
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/dispatchcore/bulk-dispatch-service/environments"
	"github.com/dispatchcore/bulk-dispatch-service/handlers"
	"github.com/dispatchcore/bulk-dispatch-service/internal/middlewares"
)

// RegisterRoutes registers all API routes with middleware
func RegisterRoutes(
	e *echo.Echo,
	healthHandler *handlers.HealthHandler,
	contractHandler *handlers.ContractHandler,
	messageHandler *handlers.MessageHandler,
	queueHandler *handlers.QueueHandler,
	cfg *environments.Config,
) {
	e.GET("/health", healthHandler.Health)
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// API v1 base group
	v1 := e.Group("/api/v1")

	// Contract lifecycle and the one-off send share an API key
	contracts := v1.Group("/contracts", middlewares.APIKeyAuth(cfg.Auth.ContractsAPIKey))

	contracts.POST("", contractHandler.CreateContract)
	contracts.GET("", contractHandler.GetAllContracts)
	contracts.GET("/:id", contractHandler.GetContract)
	contracts.DELETE("/:id", contractHandler.DeleteContract)
	contracts.POST("/:id/start", contractHandler.StartContract)
	contracts.POST("/:id/pause", contractHandler.PauseContract)
	contracts.GET("/:id/stats", contractHandler.GetContractStats)

	messages := v1.Group("/messages", middlewares.APIKeyAuth(cfg.Auth.ContractsAPIKey))

	messages.POST("/send", messageHandler.SendMessage)

	// Operator view of the work store with its own key
	queues := v1.Group("/queues", middlewares.APIKeyAuth(cfg.Auth.QueuesAPIKey))

	queues.GET("/status", queueHandler.GetQueueStatus)
}
