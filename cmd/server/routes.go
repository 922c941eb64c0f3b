package main

import (
	"github.com/gin-gonic/gin"
	"github.com/machines3d/authority/internal/config"
	"github.com/machines3d/authority/internal/handlers"
	"github.com/machines3d/authority/internal/middleware"
	"github.com/machines3d/authority/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, cfg *config.Config, svc *appServices) {
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.Use(middleware.CORS(cfg.App.AllowedOrigins))

	svc.authLimiter = middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	r.GET("/health", handlers.NewHealthHandler(svc.db, svc.taskQueue, svc.hub).CheckHealth)
	r.GET("/metrics", handlers.Metrics())

	authHandler := handlers.NewAuthHandler(svc.authService, svc.hub)
	userHandler := handlers.NewUserHandler(svc.authService)
	notificationHandler := handlers.NewNotificationHandler(svc.hub)

	api := r.Group("/api")
	{
		// Public auth routes (rate limited per client IP)
		auth := api.Group("/auth", svc.authLimiter.Middleware())
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh-token", authHandler.RefreshToken)
			auth.POST("/revoke-token", authHandler.RevokeToken)
			auth.GET("/verify-email", authHandler.VerifyEmail)
			auth.POST("/resend-verification", authHandler.ResendVerification)
			auth.POST("/forgot-password", authHandler.ForgotPassword)
			auth.POST("/reset-password", authHandler.ResetPassword)
		}

		// Stream validates its own token (query or header)
		api.GET("/notifications/stream", notificationHandler.Stream)

		protected := api.Group("")
		protected.Use(middleware.AuthRequired(), middleware.AuditLog())
		{
			protected.GET("/auth/me", authHandler.Me)
			protected.POST("/auth/logout", authHandler.Logout)

			protected.GET("/user/profile", userHandler.GetProfile)
			protected.PUT("/user/profile", userHandler.UpdateProfile)
			protected.PUT("/user/change-password", userHandler.ChangePassword)
		}

		if svc.systemLogs != nil {
			admin := api.Group("/admin")
			admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
			{
				systemLogHandler := handlers.NewSystemLogHandler(svc.systemLogs)
				admin.GET("/audit-logs", systemLogHandler.List)
			}
		}
	}
}
