// Package di provides dependency injection container for managing service lifecycle and dependencies.
package di

import (
	"context"
	"database/sql"
	"sync"

	"learnapp/internal/config"
	"learnapp/internal/database"
	"learnapp/internal/handlers"
	"learnapp/internal/observability"
	"learnapp/internal/services"
	"learnapp/internal/services/mailer"
	contextutils "learnapp/internal/utils"
)

// ServiceContainerInterface defines the interface for service containers
type ServiceContainerInterface interface {
	GetService(name string) (interface{}, error)
	GetUserService() (services.UserServiceInterface, error)
	GetGeminiService() (services.GeminiServiceInterface, error)
	GetWolframService() (services.WolframServiceInterface, error)
	GetDoubtService() (services.DoubtServiceInterface, error)
	GetHomeworkService() (services.HomeworkServiceInterface, error)
	GetQuizService() (services.QuizServiceInterface, error)
	GetProgressService() (services.ProgressServiceInterface, error)
	GetMessagesService() (services.MessagesServiceInterface, error)
	GetNotificationService() (services.NotificationServiceInterface, error)
	GetTeacherService() (services.TeacherServiceInterface, error)
	GetContentService() (services.ContentServiceInterface, error)
	GetYouTubeService() (services.YouTubeServiceInterface, error)
	GetAdminService() (services.AdminServiceInterface, error)
	GetWorkerService() (services.WorkerServiceInterface, error)
	GetCleanupService() (*services.CleanupService, error)
	GetEmailService() (mailer.Mailer, error)
	RouterServices() (handlers.RouterServices, error)
	GetDatabase() *sql.DB
	GetConfig() *config.Config
	GetLogger() *observability.Logger
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
	EnsureAdminUser(ctx context.Context) error
}

// ServiceContainer manages all service dependencies and lifecycle
type ServiceContainer struct {
	cfg           *config.Config
	logger        *observability.Logger
	dbManager     *database.Manager
	db            *sql.DB
	services      map[string]interface{}
	mu            sync.RWMutex
	shutdownFuncs []func(context.Context) error
}

// NewServiceContainer creates a new dependency injection container
func NewServiceContainer(cfg *config.Config, logger *observability.Logger) *ServiceContainer {
	return &ServiceContainer{
		cfg:      cfg,
		logger:   logger,
		services: make(map[string]interface{}),
	}
}

// Initialize sets up all services and their dependencies
func (sc *ServiceContainer) Initialize(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.dbManager = database.NewManager(sc.logger)
	db, err := sc.dbManager.InitDBWithConfig(sc.cfg.Database)
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to initialize database")
	}
	sc.db = db
	sc.shutdownFuncs = append(sc.shutdownFuncs, func(_ context.Context) error {
		return db.Close()
	})

	if err := sc.initializeServices(ctx); err != nil {
		_ = sc.cleanup(ctx)
		return contextutils.WrapErrorf(err, "failed to initialize services")
	}

	return nil
}

// GetService retrieves a service by name with type assertion
func (sc *ServiceContainer) GetService(name string) (interface{}, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	service, exists := sc.services[name]
	if !exists {
		return nil, contextutils.ErrorWithContextf("service %s not found", name)
	}
	return service, nil
}

// GetServiceAs performs type-safe service retrieval
func GetServiceAs[T any](sc *ServiceContainer, name string) (T, error) {
	var zero T
	service, err := sc.GetService(name)
	if err != nil {
		return zero, err
	}

	typed, ok := service.(T)
	if !ok {
		return zero, contextutils.ErrorWithContextf("service %s is not of expected type %T", name, zero)
	}
	return typed, nil
}

// GetUserService returns the user service
func (sc *ServiceContainer) GetUserService() (services.UserServiceInterface, error) {
	return GetServiceAs[services.UserServiceInterface](sc, "user")
}

// GetGeminiService returns the Gemini AI service
func (sc *ServiceContainer) GetGeminiService() (services.GeminiServiceInterface, error) {
	return GetServiceAs[services.GeminiServiceInterface](sc, "gemini")
}

// GetWolframService returns the Wolfram Alpha service
func (sc *ServiceContainer) GetWolframService() (services.WolframServiceInterface, error) {
	return GetServiceAs[services.WolframServiceInterface](sc, "wolfram")
}

// GetDoubtService returns the doubt service
func (sc *ServiceContainer) GetDoubtService() (services.DoubtServiceInterface, error) {
	return GetServiceAs[services.DoubtServiceInterface](sc, "doubt")
}

// GetHomeworkService returns the homework service
func (sc *ServiceContainer) GetHomeworkService() (services.HomeworkServiceInterface, error) {
	return GetServiceAs[services.HomeworkServiceInterface](sc, "homework")
}

// GetQuizService returns the quiz service
func (sc *ServiceContainer) GetQuizService() (services.QuizServiceInterface, error) {
	return GetServiceAs[services.QuizServiceInterface](sc, "quiz")
}

// GetProgressService returns the progress service
func (sc *ServiceContainer) GetProgressService() (services.ProgressServiceInterface, error) {
	return GetServiceAs[services.ProgressServiceInterface](sc, "progress")
}

// GetMessagesService returns the messages service
func (sc *ServiceContainer) GetMessagesService() (services.MessagesServiceInterface, error) {
	return GetServiceAs[services.MessagesServiceInterface](sc, "messages")
}

// GetNotificationService returns the notification service
func (sc *ServiceContainer) GetNotificationService() (services.NotificationServiceInterface, error) {
	return GetServiceAs[services.NotificationServiceInterface](sc, "notification")
}

// GetTeacherService returns the teacher tooling service
func (sc *ServiceContainer) GetTeacherService() (services.TeacherServiceInterface, error) {
	return GetServiceAs[services.TeacherServiceInterface](sc, "teacher")
}

// GetContentService returns the content service
func (sc *ServiceContainer) GetContentService() (services.ContentServiceInterface, error) {
	return GetServiceAs[services.ContentServiceInterface](sc, "content")
}

// GetYouTubeService returns the YouTube search service
func (sc *ServiceContainer) GetYouTubeService() (services.YouTubeServiceInterface, error) {
	return GetServiceAs[services.YouTubeServiceInterface](sc, "youtube")
}

// GetAdminService returns the admin service
func (sc *ServiceContainer) GetAdminService() (services.AdminServiceInterface, error) {
	return GetServiceAs[services.AdminServiceInterface](sc, "admin")
}

// GetWorkerService returns the worker service
func (sc *ServiceContainer) GetWorkerService() (services.WorkerServiceInterface, error) {
	return GetServiceAs[services.WorkerServiceInterface](sc, "worker")
}

// GetCleanupService returns the cleanup service
func (sc *ServiceContainer) GetCleanupService() (*services.CleanupService, error) {
	return GetServiceAs[*services.CleanupService](sc, "cleanup")
}

// GetEmailService returns the email service
func (sc *ServiceContainer) GetEmailService() (mailer.Mailer, error) {
	return GetServiceAs[mailer.Mailer](sc, "email")
}

// RouterServices bundles the services the HTTP router needs
func (sc *ServiceContainer) RouterServices() (handlers.RouterServices, error) {
	var svc handlers.RouterServices
	var err error

	if svc.User, err = sc.GetUserService(); err != nil {
		return svc, err
	}
	if svc.Admin, err = sc.GetAdminService(); err != nil {
		return svc, err
	}
	if svc.Doubt, err = sc.GetDoubtService(); err != nil {
		return svc, err
	}
	if svc.Homework, err = sc.GetHomeworkService(); err != nil {
		return svc, err
	}
	if svc.Quiz, err = sc.GetQuizService(); err != nil {
		return svc, err
	}
	if svc.YouTube, err = sc.GetYouTubeService(); err != nil {
		return svc, err
	}
	if svc.Messages, err = sc.GetMessagesService(); err != nil {
		return svc, err
	}
	if svc.Notification, err = sc.GetNotificationService(); err != nil {
		return svc, err
	}
	if svc.Teacher, err = sc.GetTeacherService(); err != nil {
		return svc, err
	}
	if svc.Progress, err = sc.GetProgressService(); err != nil {
		return svc, err
	}
	if svc.Content, err = sc.GetContentService(); err != nil {
		return svc, err
	}
	if svc.Gemini, err = sc.GetGeminiService(); err != nil {
		return svc, err
	}
	if svc.Worker, err = sc.GetWorkerService(); err != nil {
		return svc, err
	}
	return svc, nil
}

// GetDatabase returns the database instance
func (sc *ServiceContainer) GetDatabase() *sql.DB {
	return sc.db
}

// GetConfig returns the configuration
func (sc *ServiceContainer) GetConfig() *config.Config {
	return sc.cfg
}

// GetLogger returns the logger
func (sc *ServiceContainer) GetLogger() *observability.Logger {
	return sc.logger
}

// Shutdown gracefully shuts down all services
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	return sc.cleanup(ctx)
}

// cleanup handles shutdown of all services
func (sc *ServiceContainer) cleanup(ctx context.Context) error {
	var errs []error

	for name := range sc.services {
		if lifecycleService, ok := sc.services[name].(interface{ Shutdown(context.Context) error }); ok {
			sc.logger.Info(ctx, "Shutting down service", map[string]interface{}{"service": name})
			if err := lifecycleService.Shutdown(ctx); err != nil {
				sc.logger.Error(ctx, "Failed to shutdown service", err, map[string]interface{}{"service": name})
				errs = append(errs, contextutils.WrapErrorf(err, "service %s shutdown failed", name))
			}
		}
	}

	for i := len(sc.shutdownFuncs) - 1; i >= 0; i-- {
		if err := sc.shutdownFuncs[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return contextutils.ErrorWithContextf("shutdown errors: %v", errs)
	}
	return nil
}

// initializeServices sets up all service dependencies
func (sc *ServiceContainer) initializeServices(ctx context.Context) error {
	userService := services.NewUserService(sc.db, sc.logger)
	sc.services["user"] = userService

	geminiService, err := services.NewGeminiService(ctx, sc.cfg, sc.logger)
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to create gemini service")
	}
	sc.services["gemini"] = geminiService

	wolframCache := services.NewWolframCacheRepository(sc.db, sc.logger)
	sc.services["wolfram_cache"] = wolframCache

	wolframService := services.NewWolframService(sc.cfg, wolframCache, sc.logger)
	sc.services["wolfram"] = wolframService

	sc.services["doubt"] = services.NewDoubtService(sc.db, geminiService, wolframService, sc.logger)
	sc.services["homework"] = services.NewHomeworkService(sc.db, geminiService, wolframService, sc.logger)
	sc.services["quiz"] = services.NewQuizService(sc.db, geminiService, &sc.cfg.Quiz, sc.logger)
	sc.services["progress"] = services.NewProgressService(sc.db, sc.logger)
	sc.services["messages"] = services.NewMessagesService(sc.db, geminiService, sc.logger)
	sc.services["notification"] = services.NewNotificationService(sc.db, sc.logger)

	emailService := services.CreateEmailServiceWithDB(sc.cfg, sc.logger, sc.db)
	sc.services["email"] = emailService

	sc.services["teacher"] = services.NewTeacherService(sc.db, geminiService, emailService, sc.logger)

	// The vector index is optional; without it content queries fall back
	// to text search.
	var index services.VectorIndex
	if pineconeIndex, err := services.NewPineconeIndex(&sc.cfg.Embedding, sc.logger); err != nil {
		sc.logger.Warn(ctx, "Vector index unavailable, content queries degrade to text search", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		index = pineconeIndex
	}
	sc.services["content"] = services.NewContentService(sc.db, geminiService, index, &sc.cfg.Embedding, sc.logger)

	sc.services["youtube"] = services.NewYouTubeService(sc.cfg, sc.db, sc.logger)
	sc.services["admin"] = services.NewAdminService(sc.db, sc.logger)
	sc.services["worker"] = services.NewWorkerServiceWithLogger(sc.db, sc.logger)
	sc.services["cleanup"] = services.NewCleanupService(sc.db, wolframCache, sc.logger)

	return nil
}

// EnsureAdminUser creates the admin user if it doesn't exist
func (sc *ServiceContainer) EnsureAdminUser(ctx context.Context) error {
	userService, err := sc.GetUserService()
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to get user service")
	}

	return userService.EnsureAdminUserExists(ctx, sc.cfg.Server.AdminUsername, sc.cfg.Server.AdminPassword)
}
