package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"learnapp/internal/config"
	"learnapp/internal/middleware"
	"learnapp/internal/observability"
	"learnapp/internal/services"
	"learnapp/internal/version"
	"learnapp/internal/worker"
)

// RouterServices bundles the services the router wires into handlers
type RouterServices struct {
	User         services.UserServiceInterface
	Admin        services.AdminServiceInterface
	Doubt        services.DoubtServiceInterface
	Homework     services.HomeworkServiceInterface
	Quiz         services.QuizServiceInterface
	YouTube      services.YouTubeServiceInterface
	Messages     services.MessagesServiceInterface
	Notification services.NotificationServiceInterface
	Teacher      services.TeacherServiceInterface
	Progress     services.ProgressServiceInterface
	Content      services.ContentServiceInterface
	Gemini       services.GeminiServiceInterface
	Worker       services.WorkerServiceInterface
}

// NewRouter creates the API router with all middleware and routes. The
// worker instance is nil in the API server process.
func NewRouter(
	cfg *config.Config,
	svc RouterServices,
	w *worker.Worker,
	logger *observability.Logger,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(middleware.ErrorRecoveryMiddleware(logger, nil))
	router.Use(requestLogger(logger))

	// Health check endpoint (defined before any middleware)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "backend"})
	})

	router.Use(observability.GinMiddlewareWithErrorHandling("learnapp-backend"))

	router.StaticFile("/swagger.yaml", "./swagger.yaml")

	// Automatic redirects on trailing slashes get in the way of an API
	router.RedirectTrailingSlash = false

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Requested-With"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	store := cookie.NewStore([]byte(cfg.Server.SessionSecret))
	sessionOpts := sessions.Options{
		Path:     config.SessionPath,
		MaxAge:   int(config.SessionMaxAge.Seconds()),
		HttpOnly: config.SessionHTTPOnly,
		Secure:   config.SessionSecure,
	}
	if cfg.Server.Debug {
		sessionOpts.SameSite = http.SameSiteDefaultMode
	} else {
		sessionOpts.SameSite = http.SameSiteLaxMode
		sessionOpts.Secure = true
	}
	store.Options(sessionOpts)
	router.Use(sessions.Sessions(config.SessionName, store))

	secureConfig := secure.DefaultConfig()
	secureConfig.SSLRedirect = false
	secureConfig.ContentSecurityPolicy = config.DefaultCSP
	router.Use(secure.New(secureConfig))

	// Spec conformance checks for debug builds. AutoLoadSchemas no-ops when
	// SWAGGER_FILE_PATH is unset.
	if cfg.Server.Debug {
		router.Use(middleware.RequestValidationMiddleware(logger))
		router.Use(middleware.ResponseValidationMiddleware(logger))
	}

	// Per-user token buckets. Generation routes hit paid AI APIs so they
	// get the tightest budget.
	generateLimit := middleware.RateLimit(20, 5)
	readLimit := middleware.RateLimit(100, 20)
	teacherLimit := middleware.RateLimit(50, 10)

	authHandler := NewAuthHandler(svc.User, cfg, logger)
	doubtHandler := NewDoubtHandler(svc.Doubt, logger)
	homeworkHandler := NewHomeworkHandler(svc.Homework, svc.Progress, logger)
	quizHandler := NewQuizHandler(svc.Quiz, svc.Progress, logger)
	videoHandler := NewVideoHandler(svc.YouTube, logger)
	messagesHandler := NewMessagesHandler(svc.Messages, logger)
	notificationHandler := NewNotificationHandler(svc.Notification, logger)
	teacherHandler := NewTeacherHandler(svc.Teacher, logger)
	progressHandler := NewProgressHandler(svc.Progress, logger)
	contentHandler := NewContentHandler(svc.Content, logger)
	adminHandler := NewAdminHandler(svc.Admin, svc.User, svc.Worker, svc.Gemini, svc.YouTube, logger)
	workerAdminHandler := NewWorkerAdminHandler(svc.User, svc.Worker, w, cfg, logger)

	v1 := router.Group("/v1")
	{
		v1.GET("/version", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"service":   "backend",
				"version":   version.Version,
				"commit":    version.Commit,
				"buildTime": version.BuildTime,
			})
		})

		auth := v1.Group("/auth")
		{
			auth.POST("/signup", authHandler.Signup)
			auth.POST("/login", authHandler.Login)
			auth.POST("/logout", authHandler.Logout)
			auth.GET("/me", middleware.RequireAuth(), authHandler.Me)
			auth.PUT("/profile", middleware.RequireAuth(), authHandler.UpdateProfile)
			auth.PUT("/password", middleware.RequireAuth(), authHandler.ChangePassword)
		}

		doubt := v1.Group("/doubt")
		doubt.Use(middleware.RequireAuth())
		{
			doubt.POST("/text", generateLimit, doubtHandler.AskText)
			doubt.POST("/image", generateLimit, doubtHandler.AskImage)
			doubt.POST("/voice", generateLimit, doubtHandler.AskVoice)
			doubt.GET("/history", readLimit, doubtHandler.History)
			doubt.POST("/wolfram/chat", generateLimit, doubtHandler.WolframChat)
		}

		homework := v1.Group("/homework")
		homework.Use(middleware.RequireAuth())
		{
			homework.POST("/start", generateLimit, homeworkHandler.Start)
			homework.POST("/hint", readLimit, homeworkHandler.Hint)
			homework.POST("/attempt", readLimit, homeworkHandler.Attempt)
			homework.GET("/session/:id", readLimit, homeworkHandler.GetSession)
			homework.GET("/sessions", readLimit, homeworkHandler.ListSessions)
		}

		quiz := v1.Group("/quiz")
		quiz.Use(middleware.RequireAuth())
		{
			quiz.POST("/start", readLimit, quizHandler.StartSession)
			quiz.PUT("/answer", readLimit, quizHandler.SaveAnswer)
			quiz.POST("/submit", readLimit, quizHandler.Submit)
			quiz.GET("/session/:id", readLimit, quizHandler.GetSession)
			quiz.GET("/templates", readLimit, quizHandler.ListTemplates)
			quiz.GET("/templates/:id", readLimit, quizHandler.GetTemplate)

			teacherOnly := quiz.Group("")
			teacherOnly.Use(middleware.RequireTeacher(svc.User))
			{
				teacherOnly.POST("/templates", teacherLimit, quizHandler.CreateTemplate)
				teacherOnly.POST("/templates/generate", generateLimit, quizHandler.GenerateTemplate)
				teacherOnly.GET("/templates/:id/sessions", teacherLimit, quizHandler.ListTemplateSessions)
			}
		}

		videos := v1.Group("/videos")
		videos.Use(middleware.RequireAuth())
		{
			videos.GET("/search", readLimit, videoHandler.Search)
			videos.POST("/search", readLimit, videoHandler.Search)
			videos.GET("/quota", readLimit, videoHandler.Quota)
		}

		messages := v1.Group("/messages")
		messages.Use(middleware.RequireAuth())
		{
			messages.POST("/conversations", readLimit, messagesHandler.GetOrCreateConversation)
			messages.GET("/conversations", readLimit, messagesHandler.ListConversations)
			messages.GET("/conversations/:id", readLimit, messagesHandler.ListMessages)
			messages.POST("/conversations/:id/read", readLimit, messagesHandler.MarkRead)
			messages.POST("/send", readLimit, messagesHandler.SendMessage)
			messages.POST("/improve", generateLimit, messagesHandler.Improve)
			messages.POST("/suggestions", generateLimit, messagesHandler.Suggestions)
		}

		notifications := v1.Group("/notifications")
		notifications.Use(middleware.RequireAuth())
		{
			notifications.GET("", readLimit, notificationHandler.List)
			notifications.GET("/unread-count", readLimit, notificationHandler.UnreadCount)
			notifications.POST("/:id/read", readLimit, notificationHandler.MarkRead)
			notifications.POST("/read-all", readLimit, notificationHandler.MarkAllRead)
			notifications.DELETE("/:id", readLimit, notificationHandler.Dismiss)

			teacherOnly := notifications.Group("")
			teacherOnly.Use(middleware.RequireTeacher(svc.User))
			{
				teacherOnly.POST("", teacherLimit, notificationHandler.Create)
				teacherOnly.POST("/broadcast", teacherLimit, notificationHandler.Broadcast)
				teacherOnly.GET("/created", teacherLimit, notificationHandler.ListCreated)
			}
		}

		teacher := v1.Group("/teacher")
		teacher.Use(middleware.RequireAuth())
		teacher.Use(middleware.RequireTeacher(svc.User))
		{
			teacher.POST("/lesson-plan", generateLimit, teacherHandler.GenerateLessonPlan)
			teacher.POST("/assessment", generateLimit, teacherHandler.GenerateAssessment)
			teacher.POST("/parent-message", generateLimit, teacherHandler.GenerateParentMessage)
			teacher.GET("/artifacts", teacherLimit, teacherHandler.ListArtifacts)
			teacher.GET("/students", teacherLimit, teacherHandler.StudentRoster)
		}

		progress := v1.Group("/progress")
		progress.Use(middleware.RequireAuth())
		{
			progress.GET("", readLimit, progressHandler.List)
			progress.GET("/topic", readLimit, progressHandler.GetTopic)
			progress.GET("/summary", readLimit, progressHandler.Summary)
			progress.GET("/achievements", readLimit, progressHandler.ListAchievements)
		}

		content := v1.Group("/content")
		content.Use(middleware.RequireAuth())
		{
			content.GET("", readLimit, contentHandler.List)
			content.GET("/folders", readLimit, contentHandler.ListFolders)
			content.GET("/:id", readLimit, contentHandler.Get)
			content.POST("/query", generateLimit, contentHandler.Query)

			teacherOnly := content.Group("")
			teacherOnly.Use(middleware.RequireTeacher(svc.User))
			{
				teacherOnly.POST("", teacherLimit, contentHandler.Upload)
				teacherOnly.PUT("/:id", teacherLimit, contentHandler.Update)
				teacherOnly.DELETE("/:id", teacherLimit, contentHandler.Delete)
				teacherOnly.POST("/:id/reindex", teacherLimit, contentHandler.Reindex)
			}
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.RequireAdmin(svc.User))
		{
			admin.GET("/dashboard", adminHandler.Dashboard)
			admin.GET("/students", adminHandler.ListStudents)
			admin.GET("/students/:id", adminHandler.StudentDetail)
			admin.PUT("/students/:id/school", adminHandler.AssignSchool)
			admin.GET("/export", adminHandler.ListExportEntities)
			admin.GET("/export/:entity", adminHandler.Export)

			admin.POST("/schools", adminHandler.CreateSchool)
			admin.GET("/schools", adminHandler.ListSchools)
			admin.PUT("/schools/:id", adminHandler.UpdateSchool)
			admin.DELETE("/schools/:id", adminHandler.DeleteSchool)

			workerGroup := admin.Group("/worker")
			{
				workerGroup.GET("/details", workerAdminHandler.GetWorkerDetails)
				workerGroup.GET("/logs", workerAdminHandler.GetActivityLogs)
				workerGroup.GET("/status", workerAdminHandler.GetWorkerStatus)
				workerGroup.GET("/health", workerAdminHandler.GetSystemHealth)
				workerGroup.POST("/pause", workerAdminHandler.PauseWorker)
				workerGroup.POST("/resume", workerAdminHandler.ResumeWorker)
				workerGroup.POST("/trigger", workerAdminHandler.TriggerWorkerRun)
				workerGroup.GET("/users", workerAdminHandler.GetWorkerUsers)
				workerGroup.POST("/users/pause", workerAdminHandler.PauseWorkerUser)
				workerGroup.POST("/users/resume", workerAdminHandler.ResumeWorkerUser)
				workerGroup.GET("/indexing-backlog", workerAdminHandler.GetIndexingBacklog)
				workerGroup.GET("/notification-stats", workerAdminHandler.GetNotificationStats)
				workerGroup.GET("/sent-notifications", workerAdminHandler.GetSentNotifications)
			}
		}
	}

	router.GET("/configz", middleware.RequireAdmin(svc.User), workerAdminHandler.GetConfigz)

	routeListing := NewRouteListingHandler("Backend")
	routeListing.CollectRoutes(router)
	router.GET("/", func(c *gin.Context) {
		if c.Query("json") == "true" {
			routeListing.GetRouteListingJSON(c)
		} else {
			routeListing.GetRouteListingPage(c)
		}
	})

	return router
}

// requestLogger logs every request through the observability logger
func requestLogger(logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
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
		if statusCode >= 400 && c.Writer.Size() > 0 {
			fields["http.response_size"] = c.Writer.Size()
		}

		switch {
		case statusCode >= 500:
			logger.Error(c.Request.Context(), "HTTP request failed", nil, fields)
		case statusCode >= 400:
			logger.Warn(c.Request.Context(), "HTTP request warning", fields)
		default:
			logger.Info(c.Request.Context(), "HTTP request", fields)
		}
	}
}
