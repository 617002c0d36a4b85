package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/learning-platform-service/internal/cache"
	"github.com/SAP-F-2025/learning-platform-service/internal/events"
	"github.com/SAP-F-2025/learning-platform-service/internal/repositories"
	"github.com/SAP-F-2025/learning-platform-service/internal/validator"
)

// ServiceManagerConfig holds the dependencies shared by every service
type ServiceManagerConfig struct {
	DB         *gorm.DB
	Repository repositories.Repository
	Cache      *cache.CacheManager
	Publisher  events.EventPublisher
	Hub        *events.Hub
	Mailer     Mailer
	Logger     *slog.Logger
	Validator  *validator.Validator
	Retry      RetryPolicy

	// EnableNotifications starts the lecturer mail consumer on Initialize
	EnableNotifications bool
}

// serviceManager implements ServiceManager interface
type serviceManager struct {
	config ServiceManagerConfig
	logger *slog.Logger

	// Service instances
	courseService       CourseService
	approvalService     ApprovalService
	enrollmentService   EnrollmentService
	userService         UserService
	dashboardService    DashboardService
	subscriptionService SubscriptionService
	notificationService NotificationService

	stopNotifications context.CancelFunc

	// Lifecycle management
	initialized bool
	shutdown    bool
	mu          sync.RWMutex
}

// NewServiceManager creates a new service manager with all dependencies
func NewServiceManager(config ServiceManagerConfig) ServiceManager {
	if config.Cache == nil {
		config.Cache = cache.NewCacheManager(nil)
	}
	if config.Mailer == nil {
		config.Mailer = NewLogMailer(config.Logger)
	}
	if config.Retry.Attempts < 1 {
		config.Retry = DefaultRetryPolicy()
	}

	return &serviceManager{
		config: config,
		logger: config.Logger,
	}
}

// Initialize sets up all services and their dependencies
func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}
	if sm.config.Repository == nil || sm.config.Hub == nil {
		return fmt.Errorf("service manager requires a repository and an event hub")
	}

	sm.logger.Info("Initializing service manager")

	cfg := sm.config
	sm.courseService = NewCourseService(cfg.Repository, cfg.Publisher, cfg.Logger, cfg.Validator)
	sm.approvalService = NewApprovalService(cfg.Repository, cfg.Publisher, cfg.Logger, cfg.Validator)
	sm.enrollmentService = NewEnrollmentService(cfg.Repository, cfg.Publisher, cfg.Logger)
	sm.userService = NewUserService(cfg.Repository, cfg.DB, sm.courseService, sm.enrollmentService, cfg.Logger, cfg.Validator)
	sm.dashboardService = NewDashboardService(cfg.Repository, cfg.Cache, cfg.Logger)
	sm.subscriptionService = NewSubscriptionService(cfg.Hub, cfg.Logger)
	sm.notificationService = NewNotificationService(cfg.Hub, cfg.Repository, cfg.Mailer, cfg.Retry, cfg.Logger)

	if cfg.EnableNotifications {
		// outlives the init context; stopped on Shutdown
		notifyCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		sm.stopNotifications = cancel
		sm.notificationService.Start(notifyCtx)
		sm.logger.Info("Notification consumer started")
	}

	sm.initialized = true
	sm.logger.Info("Service manager initialized successfully")

	return nil
}

// Service getters

func (sm *serviceManager) Course() CourseService {
	sm.mustBeInitialized()
	return sm.courseService
}

func (sm *serviceManager) Approval() ApprovalService {
	sm.mustBeInitialized()
	return sm.approvalService
}

func (sm *serviceManager) Enrollment() EnrollmentService {
	sm.mustBeInitialized()
	return sm.enrollmentService
}

func (sm *serviceManager) User() UserService {
	sm.mustBeInitialized()
	return sm.userService
}

func (sm *serviceManager) Dashboard() DashboardService {
	sm.mustBeInitialized()
	return sm.dashboardService
}

func (sm *serviceManager) Subscription() SubscriptionService {
	sm.mustBeInitialized()
	return sm.subscriptionService
}

func (sm *serviceManager) Notification() NotificationService {
	sm.mustBeInitialized()
	return sm.notificationService
}

func (sm *serviceManager) mustBeInitialized() {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
}

// Health and lifecycle
func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}
	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}

	if err := sm.config.Repository.Ping(ctx); err != nil {
		return fmt.Errorf("repository health check failed: %w", err)
	}
	return nil
}

// Shutdown stops the consumers, disconnects watchers and closes the publisher and store
func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}

	sm.logger.Info("Shutting down service manager")

	if sm.stopNotifications != nil {
		sm.stopNotifications()
	}
	sm.config.Hub.Close()

	if sm.config.Publisher != nil {
		if err := sm.config.Publisher.Close(); err != nil {
			sm.logger.Error("Failed to close event publisher", "error", err)
		}
	}

	if err := sm.config.Repository.Close(); err != nil {
		sm.logger.Error("Failed to close repository", "error", err)
	}

	sm.shutdown = true
	sm.logger.Info("Service manager shut down completed")

	return nil
}

// IsInitialized returns whether the service manager has been initialized
func (sm *serviceManager) IsInitialized() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return sm.initialized
}
