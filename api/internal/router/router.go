package router

import (
	"net/http"
	"time"

	"commentary/api/internal/database"
	"commentary/api/internal/handlers"
	"commentary/api/internal/orchestrator"
	"commentary/api/internal/queue"
	"commentary/api/internal/service"
	"commentary/api/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// New creates a new router with all routes configured.
func New(db *database.DB, store *storage.Service, publisher *queue.Publisher, maxUploadBytes int64, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// Middleware
	r.Use(ginLogger(logger))
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())
	r.Use(bodyLimit(maxUploadBytes))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		taskRepo := orchestrator.NewDBTaskRepository(db)
		taskOrchestrator := orchestrator.NewTaskOrchestrator(publisher, taskRepo)
		taskService := service.NewTaskService(db, store, taskOrchestrator)
		taskHandler := handlers.NewTaskHandler(taskService, logger)

		settingsService := service.NewSettingsService(db, store)
		settingsHandler := handlers.NewSettingsHandler(settingsService, logger)

		tasks := v1.Group("/tasks")
		{
			tasks.POST("", taskHandler.CreateTask)
			tasks.GET("", taskHandler.ListTasks)
			tasks.GET("/:task_id", taskHandler.GetTask)
			tasks.GET("/:task_id/result", taskHandler.GetTaskResult)
			tasks.GET("/:task_id/download", taskHandler.GetTaskDownload)
			tasks.POST("/:task_id/cancel", taskHandler.CancelTask)
			tasks.DELETE("/:task_id", taskHandler.DeleteTask)
		}

		settings := v1.Group("/settings")
		{
			settings.GET("", settingsHandler.GetSettings)
			settings.PUT("", settingsHandler.UpdateSettings)
			settings.POST("/test", settingsHandler.TestConnection)
		}
	}

	return r
}

// bodyLimit caps request body size so oversized uploads fail early.
func bodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// ginLogger is a custom logger middleware.
func ginLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		clientIP := c.ClientIP()
		method := c.Request.Method
		statusCode := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", statusCode),
			zap.Duration("latency", latency),
			zap.String("client_ip", clientIP),
		)
	}
}

// corsMiddleware adds CORS headers.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
