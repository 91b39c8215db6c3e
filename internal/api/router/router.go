package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voxline/outdial/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		db, redis := "ok", "ok"
		if deps.Database != nil {
			if err := deps.Database.HealthCheck(c.Request.Context()); err != nil {
				db = err.Error()
				status = http.StatusServiceUnavailable
			}
		}
		if deps.Redis != nil {
			if err := deps.Redis.HealthCheck(c.Request.Context()); err != nil {
				redis = err.Error()
				status = http.StatusServiceUnavailable
			}
		}
		c.JSON(status, gin.H{
			"status":   "healthy",
			"service":  "outdial",
			"database": db,
			"redis":    redis,
		})
	})

	callHandler := handler.NewCallHandler(deps)
	transferHandler := handler.NewTransferHandler(deps)
	webhookHandler := handler.NewWebhookHandler(deps)

	// API v1 routes, token-protected
	v1 := r.Group("/api/v1")
	if deps.Config != nil && deps.Config.Server.AuthToken != "" {
		v1.Use(AuthMiddleware(deps.Config.Server.AuthToken))
	}
	{
		calls := v1.Group("/calls")
		{
			// POST /api/v1/calls - Place a single call with a bounded wait
			calls.POST("", callHandler.MakeCall)

			// POST /api/v1/calls/batch - Enqueue up to 100 calls
			calls.POST("/batch", callHandler.BatchCall)

			// GET /api/v1/calls/:job_id - Get live call status
			calls.GET("/:job_id", callHandler.GetCall)
		}

		// GET /api/v1/queue - Queue snapshot
		v1.GET("/queue", callHandler.QueueStatus)

		transfers := v1.Group("/transfers")
		{
			// POST /api/v1/transfers/prepare - Resolve and register a transfer
			transfers.POST("/prepare", transferHandler.Prepare)

			// POST /api/v1/transfers/:transfer_id/execute - Bridge the agent leg
			transfers.POST("/:transfer_id/execute", transferHandler.Execute)

			// POST /api/v1/transfers/:transfer_id/complete - Close the session
			transfers.POST("/:transfer_id/complete", transferHandler.Complete)
		}
	}

	// Inbound push endpoints, unauthenticated
	r.POST("/webhooks/voice", webhookHandler.VoiceWebhook)
	r.POST("/callbacks/amd", webhookHandler.AMDCallback)
	r.POST("/callbacks/classification", webhookHandler.Classification)

	return r
}
