package main

import (
	"github.com/machines3d/authority/internal/config"
	"github.com/machines3d/authority/internal/middleware"
	"github.com/machines3d/authority/internal/models"
	"github.com/machines3d/authority/internal/repository"
	"github.com/machines3d/authority/internal/services"
	"github.com/machines3d/authority/internal/utils"
	"github.com/machines3d/authority/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// appServices holds all initialized services needed by the application.
type appServices struct {
	db          *gorm.DB // nil with the memory driver
	store       repository.AccountStore
	authService *services.AuthService
	hub         *services.NotificationHub
	systemLogs  *services.SystemLogService
	taskQueue   services.TaskQueue
	worker      *services.Worker
	redis       *redis.Client
	maintenance *services.MaintenanceScheduler
	authLimiter *middleware.RateLimiter
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	if err := utils.SetJWTSecret(cfg.JWT.Secret); err != nil {
		logger.Fatalf("Invalid JWT secret: %v", err)
	}
	if cfg.Auth.BcryptCost > 0 {
		utils.SetBcryptCost(cfg.Auth.BcryptCost)
	}

	app := &appServices{hub: services.NewNotificationHub()}

	if cfg.Database.Driver == "memory" {
		logger.Warn().Msg("Using in-memory account store; data is lost on restart")
		app.store = repository.NewMemoryAccountStore()
	} else {
		if err := models.InitDB(&cfg.Database); err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		app.db = models.GetDB()
		if err := models.AutoMigrate(app.db); err != nil {
			logger.Fatalf("Failed to migrate database: %v", err)
		}
		if sqlDB, err := app.db.DB(); err == nil {
			prometheus.MustRegister(collectors.NewDBStatsCollector(sqlDB, cfg.Database.Driver))
		}
		app.store = repository.NewGormAccountStore(app.db)
		app.systemLogs = services.NewSystemLogService(app.db)
		services.InitSystemLogger(app.db)
	}

	// Mail goes through Redis when enabled, otherwise it is sent inline.
	emailService := services.NewEmailService(&cfg.SMTP)
	app.taskQueue = services.InitTaskQueue(cfg)
	if syncQueue, ok := app.taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(emailService.Deliver)
	} else if app.worker = services.NewWorker(&cfg.Redis); app.worker != nil {
		app.worker.SetProcessor(emailService.Deliver)
		if err := app.worker.Start(); err != nil {
			logger.Error().Err(err).Msg("Failed to start mail worker")
		}
	}

	opts := []services.AuthOption{
		services.WithNotifier(services.NewMailNotifier(app.taskQueue, app.hub, &cfg.App, &cfg.SMTP)),
	}
	if cfg.Redis.Enabled {
		app.redis = services.NewRedisClient(&cfg.Redis)
		opts = append(opts, services.WithLoginGuard(services.NewRedisLoginGuard(app.redis, &cfg.Auth)))
	}
	app.authService = services.NewAuthService(app.store, &cfg.JWT, &cfg.Auth, opts...)

	app.maintenance = services.NewMaintenanceScheduler(app.store, app.systemLogs, &cfg.Maintenance)
	if err := app.maintenance.Start(); err != nil {
		logger.Error().Err(err).Msg("Failed to start maintenance scheduler")
	}

	return app
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	if s.authLimiter != nil {
		s.authLimiter.Stop()
	}
	s.maintenance.Stop()
	logger.Info().Msg("Maintenance scheduler stopped")

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		if err := s.taskQueue.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close task queue")
		}
	}
	if s.redis != nil {
		s.redis.Close()
	}
	if s.db != nil {
		if sqlDB, err := s.db.DB(); err == nil {
			sqlDB.Close()
		}
	}
}
