// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/homecare/careops-backend/internal/config"
	"github.com/homecare/careops-backend/internal/handlers"
	"github.com/homecare/careops-backend/internal/middleware"
	"github.com/homecare/careops-backend/internal/models"
	"github.com/homecare/careops-backend/internal/services"
)

const Version = "1.0.0"

func Initialize(cfg *config.Config, container *services.Container, limits *middleware.RateLimits) *gin.Engine {
	if limits == nil {
		limits = middleware.DefaultRateLimits()
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(container.Auth)
	userHandler := handlers.NewUserHandler(container.Users)
	applicationHandler := handlers.NewApplicationHandler(container.Applications, container.Documents)
	documentHandler := handlers.NewDocumentHandler(container.Documents, cfg.Storage.MaxUpload)
	surveyHandler := handlers.NewSurveyHandler(container.Surveys)
	providerHandler := handlers.NewProviderHandler(container.Providers, container.Patients)
	subscriptionHandler := handlers.NewSubscriptionHandler(container.Subscriptions, container.Exports)
	adminHandler := handlers.NewAdminHandler(container, nil)
	verificationHandler := handlers.NewVerificationHandler(container.Providers)

	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.Frontend.AllowedOrigins))
	r.Use(middleware.I18nMiddleware())
	r.Use(limits.General.Middleware())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": Version,
		})
	})

	v1 := r.Group("/v1")
	{
		// Self-service intake. A signed-in operator may also submit on
		// someone's behalf, so the token is read when present.
		public := v1.Group("")
		public.Use(middleware.OptionalAuth(), limits.Public.Middleware())
		{
			public.POST("/applications", applicationHandler.Submit)
			public.POST("/applications/:id/documents", documentHandler.Submit)
			public.POST("/applications/:id/documents/upload", limits.Upload.Middleware(), documentHandler.Upload)
			public.POST("/surveys", surveyHandler.Submit)
			public.GET("/verify/providers/:id", verificationHandler.VerifyProvider)
		}

		// Authentication routes
		auth := v1.Group("/auth")
		{
			auth.POST("/login", limits.Auth.Middleware(), authHandler.Login)
			auth.GET("/me", middleware.AuthRequired(), authHandler.GetProfile)
			auth.PUT("/password", middleware.AuthRequired(), authHandler.ChangePassword)
		}

		// Operator console
		console := v1.Group("")
		console.Use(middleware.AuthRequired(), middleware.RoleRequired(string(models.UserRoleAdmin), string(models.UserRoleSuperAdmin)))
		{
			applications := console.Group("/applications")
			{
				applications.GET("", applicationHandler.List)
				applications.GET("/:id", applicationHandler.Get)
				applications.GET("/:id/readiness", applicationHandler.Readiness)
				applications.GET("/:id/documents", documentHandler.ListForApplication)
				applications.POST("/:id/claim", applicationHandler.Claim)
				applications.POST("/:id/request-info", applicationHandler.RequestInfo)
				applications.POST("/:id/approve", applicationHandler.Approve)
				applications.POST("/:id/reject", applicationHandler.Reject)
			}

			documents := console.Group("/documents")
			{
				documents.GET("/:id", documentHandler.Get)
				documents.GET("/:id/content", documentHandler.Content)
				documents.POST("/:id/review", documentHandler.Review)
			}

			surveys := console.Group("/surveys")
			{
				surveys.GET("", surveyHandler.List)
				surveys.GET("/:id", surveyHandler.Get)
				surveys.POST("/:id/approve", surveyHandler.Approve)
				surveys.POST("/:id/reject", surveyHandler.Reject)
			}

			providers := console.Group("/providers")
			{
				providers.GET("", providerHandler.ListProviders)
				providers.GET("/:id", providerHandler.GetProvider)
				providers.POST("/:id/suspend", providerHandler.Suspend)
				providers.POST("/:id/reinstate", providerHandler.Reinstate)
			}

			patients := console.Group("/patients")
			{
				patients.GET("", providerHandler.ListPatients)
				patients.GET("/:id", providerHandler.GetPatient)
				patients.POST("/:id/deactivate", providerHandler.DeactivatePatient)
			}

			subscriptions := console.Group("/subscriptions")
			{
				subscriptions.POST("", subscriptionHandler.Create)
				subscriptions.GET("", subscriptionHandler.List)
				subscriptions.GET("/export", subscriptionHandler.Export)
				subscriptions.GET("/:id", subscriptionHandler.Get)
				subscriptions.POST("/:id/visits", subscriptionHandler.RecordVisit)
				subscriptions.POST("/:id/pause", subscriptionHandler.Pause)
				subscriptions.POST("/:id/resume", subscriptionHandler.Resume)
				subscriptions.POST("/:id/cancel", subscriptionHandler.Cancel)
				subscriptions.PUT("/:id/provider", subscriptionHandler.AssignProvider)
			}

			communications := console.Group("/communications")
			{
				communications.GET("", adminHandler.ListCommunications)
				communications.GET("/:id", adminHandler.GetCommunication)
			}

			admin := console.Group("/admin")
			{
				admin.GET("/dashboard", adminHandler.GetDashboardStats)
				admin.GET("/audit-logs", adminHandler.GetAuditLogs)
				admin.POST("/jobs/rollover", adminHandler.RunRollover)
				admin.POST("/jobs/retry-communications", adminHandler.RunRetryCommunications)
				admin.POST("/jobs/reconcile-approvals", adminHandler.RunReconcileApprovals)
			}

			users := console.Group("/users")
			{
				users.GET("", userHandler.List)
				users.POST("", userHandler.Create)
				users.PUT("/:id/active", userHandler.SetActive)
			}
		}
	}

	return r
}
