// Package main provides the entry point for the learning platform worker service.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"learnapp/internal/config"
	"learnapp/internal/database"
	"learnapp/internal/handlers"
	"learnapp/internal/middleware"
	"learnapp/internal/observability"
	"learnapp/internal/services"
	"learnapp/internal/version"
	"learnapp/internal/worker"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

// fatalIfErr logs the error with context and panics with a consistent message
func fatalIfErr(ctx context.Context, logger *observability.Logger, msg string, err error, fields map[string]interface{}) {
	logger.Error(ctx, msg, err, fields)
	panic(msg + ": " + err.Error())
}

func main() {
	ctx := context.Background()

	cfg, err := config.NewConfig()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	tp, mp, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, "learnapp-worker")
	if err != nil {
		panic("Failed to initialize observability: " + err.Error())
	}
	defer func() {
		if err := observability.ShutdownTracerProvider(context.TODO(), tp); err != nil {
			logger.Warn(ctx, "Error shutting down tracer provider", map[string]interface{}{"error": err.Error(), "provider": "tracer"})
		}
		if mp != nil {
			if err := mp.Shutdown(context.TODO()); err != nil {
				logger.Warn(ctx, "Error shutting down meter provider", map[string]interface{}{"error": err.Error(), "provider": "meter"})
			}
		}
	}()

	logger.Info(ctx, "Starting learnapp worker service", map[string]interface{}{
		"port":     cfg.Server.WorkerPort,
		"logLevel": cfg.Server.LogLevel,
		"debug":    cfg.Server.Debug,
	})

	dbManager := database.NewManager(logger)

	// Migrations are managed by the API server process.
	db, err := dbManager.InitDBWithoutMigrations(cfg.Database)
	if err != nil {
		fatalIfErr(ctx, logger, "Failed to initialize database", err, map[string]interface{}{"db_url": cfg.Database.URL})
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn(ctx, "Warning: failed to close database", map[string]interface{}{"error": err.Error(), "db_url": cfg.Database.URL})
		}
	}()

	// Initialize services
	userService := services.NewUserService(db, logger)
	geminiService, err := services.NewGeminiService(ctx, cfg, logger)
	if err != nil {
		fatalIfErr(ctx, logger, "Failed to initialize gemini service", err, nil)
	}
	wolframCache := services.NewWolframCacheRepository(db, logger)
	wolframService := services.NewWolframService(cfg, wolframCache, logger)
	homeworkService := services.NewHomeworkService(db, geminiService, wolframService, logger)
	workerService := services.NewWorkerServiceWithLogger(db, logger)
	notificationService := services.NewNotificationService(db, logger)
	cleanupService := services.NewCleanupService(db, wolframCache, logger)
	emailService := services.CreateEmailServiceWithDB(cfg, logger, db)

	var index services.VectorIndex
	if pineconeIndex, err := services.NewPineconeIndex(&cfg.Embedding, logger); err != nil {
		logger.Warn(ctx, "Vector index unavailable, indexing runs will be skipped", map[string]interface{}{"error": err.Error()})
	} else {
		index = pineconeIndex
	}
	contentService := services.NewContentService(db, geminiService, index, &cfg.Embedding, logger)

	instance := os.Getenv("WORKER_INSTANCE")
	workerInstance := worker.NewWorker(contentService, homeworkService, workerService, notificationService, cleanupService, emailService, instance, cfg, logger)
	go workerInstance.Start(ctx)

	adminHandler := handlers.NewWorkerAdminHandler(userService, workerService, workerInstance, cfg, logger)

	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	// HTTP request logging through the observability logger
	router.Use(func(c *gin.Context) {
		start := time.Now()

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		fields := map[string]interface{}{
			"http.method":      c.Request.Method,
			"http.path":        c.Request.URL.Path,
			"http.status_code": statusCode,
			"http.latency_ms":  latency.Milliseconds(),
			"http.client_ip":   c.ClientIP(),
			"http.user_agent":  c.Request.UserAgent(),
		}

		if len(c.Errors) > 0 {
			fields["http.error"] = c.Errors.String()
		}

		if statusCode >= 500 {
			logger.Error(c.Request.Context(), "HTTP request failed", nil, fields)
		} else if statusCode >= 400 {
			logger.Warn(c.Request.Context(), "HTTP request warning", fields)
		} else {
			logger.Info(c.Request.Context(), "HTTP request", fields)
		}
	})

	router.Use(observability.GinMiddlewareWithErrorHandling("learnapp-worker"))

	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	store := cookie.NewStore([]byte(cfg.Server.SessionSecret))
	router.Use(sessions.Sessions(config.SessionName, store))

	v1 := router.Group("/v1")
	{
		v1.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		v1.GET("/version", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"service":   "worker",
				"version":   version.Version,
				"commit":    version.Commit,
				"buildTime": version.BuildTime,
			})
		})
	}

	// Config dump endpoint
	router.GET("/configz", adminHandler.GetConfigz)

	api := router.Group("/v1")
	{
		adminWorker := api.Group("/admin/worker")
		adminWorker.Use(middleware.RequireAuth())
		adminWorker.Use(middleware.RequireAdmin(userService))
		{
			adminWorker.GET("/details", adminHandler.GetWorkerDetails)
			adminWorker.GET("/status", adminHandler.GetWorkerStatus)
			adminWorker.GET("/logs", adminHandler.GetActivityLogs)
			adminWorker.POST("/pause", adminHandler.PauseWorker)
			adminWorker.POST("/resume", adminHandler.ResumeWorker)
			adminWorker.POST("/trigger", adminHandler.TriggerWorkerRun)
			adminWorker.GET("/backlog", adminHandler.GetIndexingBacklog)
		}

		workerUsers := api.Group("/admin/worker/users")
		workerUsers.Use(middleware.RequireAuth())
		workerUsers.Use(middleware.RequireAdmin(userService))
		{
			workerUsers.GET("/", adminHandler.GetWorkerUsers)
			workerUsers.POST("/pause", adminHandler.PauseWorkerUser)
			workerUsers.POST("/resume", adminHandler.ResumeWorkerUser)
		}

		system := api.Group("/system")
		{
			system.GET("/health", adminHandler.GetSystemHealth)
		}

		adminNotifications := api.Group("/admin/worker/notifications")
		adminNotifications.Use(middleware.RequireAuth())
		adminNotifications.Use(middleware.RequireAdmin(userService))
		{
			adminNotifications.GET("/stats", adminHandler.GetNotificationStats)
			adminNotifications.GET("/sent", adminHandler.GetSentNotifications)
		}
	}

	// Automatic route listing at root path
	routeListing := handlers.NewRouteListingHandler("Worker")
	routeListing.CollectRoutes(router)

	router.GET("/", func(c *gin.Context) {
		if c.Query("json") == "true" {
			routeListing.GetRouteListingJSON(c)
		} else {
			routeListing.GetRouteListingPage(c)
		}
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.WorkerPort,
		Handler: router,
	}

	go func() {
		logger.Info(ctx, "Worker server starting", map[string]interface{}{"port": cfg.Server.WorkerPort})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatalIfErr(ctx, logger, "Failed to start worker server", err, map[string]interface{}{"port": cfg.Server.WorkerPort})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info(ctx, "Worker server shutting down", map[string]interface{}{"service": "worker"})

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, config.WorkerShutdownTimeout)
	defer shutdownCancel()

	workerInstance.Shutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		fatalIfErr(ctx, logger, "Worker server forced to shutdown", err, map[string]interface{}{"service": "worker"})
	}

	logger.Info(ctx, "Worker server exited", map[string]interface{}{"service": "worker"})
}
