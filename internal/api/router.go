// Package api provides HTTP routing and server configuration for the visa
// tracker. It wires together handlers, middleware, and services to create the
// application's API endpoints.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/visatrack/visatrack/internal/api/handlers"
	"github.com/visatrack/visatrack/internal/api/middleware"
	"github.com/visatrack/visatrack/internal/config"
	"github.com/visatrack/visatrack/internal/csrf"
	"github.com/visatrack/visatrack/internal/database"
	"github.com/visatrack/visatrack/internal/notify"
	"github.com/visatrack/visatrack/internal/service"
	"go.uber.org/zap"
)

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, db *database.Database, csrfStore *csrf.Store, notifier notify.Notifier, logger *zap.Logger) *gin.Engine {
	// Set Gin mode
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.CORSMiddleware(cfg))

	// Initialize services
	identityService := service.NewIdentityService(db, cfg)
	applicationService := service.NewApplicationService(db, cfg, notifier)

	// Initialize handlers
	setupHandler := handlers.NewSetupHandler(identityService, csrfStore, cfg, logger)
	authHandler := handlers.NewAuthHandler(identityService, csrfStore, cfg, logger)
	applicationHandler := handlers.NewApplicationHandler(applicationService, logger)

	// Public routes
	public := router.Group("/api/v1")
	{
		// Setup routes (no auth required)
		public.GET("/setup/status", setupHandler.GetStatus)
		public.POST("/setup", setupHandler.PerformSetup)

		// Auth routes
		public.POST("/auth/login", authHandler.ApplicantLogin)
		public.POST("/auth/admin/login", authHandler.AdminLogin)

		// Submitting an application is public; it is how applicants
		// first get an account
		public.POST("/applications", applicationHandler.Submit)
	}

	// Protected routes (require authentication + CSRF token on mutations)
	protected := router.Group("/api/v1")
	protected.Use(middleware.AuthMiddleware(cfg))
	protected.Use(middleware.CSRFMiddleware(csrfStore))
	{
		// Auth
		protected.GET("/auth/me", authHandler.GetCurrentIdentity)
		protected.POST("/auth/logout", authHandler.Logout)

		// Applicant views of their own applications
		protected.GET("/applications", applicationHandler.ListMine)
		protected.GET("/applications/:id", applicationHandler.Get)
	}

	// Admin routes
	admin := router.Group("/api/v1/admin")
	admin.Use(middleware.AuthMiddleware(cfg))
	admin.Use(middleware.CSRFMiddleware(csrfStore))
	admin.Use(middleware.RequireRole("admin"))
	{
		admin.GET("/applications", applicationHandler.AdminList)
		admin.GET("/applications/:id", applicationHandler.Get)
		admin.PUT("/applications/:id/status", applicationHandler.UpdateStatus)
	}

	// Serve static frontend files
	router.Static("/assets", "./static/assets")

	// SPA fallback - serve index.html for all other routes
	router.NoRoute(func(c *gin.Context) {
		c.File("./static/index.html")
	})

	return router
}
