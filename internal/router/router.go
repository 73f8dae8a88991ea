// Package router sets up all HTTP routes for the API.
package router

import (
	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/video-insights-api/internal/handlers"
	"github.com/Shimizu-Technology/video-insights-api/internal/middleware"
)

// Options carries the settings the route table needs.
type Options struct {
	JWTSecret        string
	AdminAPIKey      string
	AllowedOrigins   []string
	DefaultRateLimit int
}

// Setup creates and configures the Gin router with all routes.
func Setup(h *handlers.Handler, opts Options) *gin.Engine {
	r := gin.Default()
	r.Use(middleware.CORS(opts.AllowedOrigins))

	rateLimiter := middleware.NewRateLimiter(opts.DefaultRateLimit)

	// --- Public Routes ---
	r.GET("/api/v1/health", h.HealthCheck)
	r.GET("/api/docs", h.ServeSwaggerUI)
	r.GET("/api/docs/openapi.yaml", h.ServeOpenAPISpec)
	r.POST("/api/v1/auth/register", h.Register)
	r.POST("/api/v1/auth/login", h.Login)

	// Bootstrap: the first keys are created with the admin key.
	r.POST("/api/v1/keys", middleware.AdminKey(opts.AdminAPIKey), h.CreateAPIKey)

	// --- JWT-only routes ---
	jwtProtected := r.Group("/api/v1/auth")
	jwtProtected.Use(middleware.JWTAuth(h.DB, opts.JWTSecret))
	{
		jwtProtected.GET("/me", h.GetMe)
		jwtProtected.POST("/refresh", h.RefreshToken)
	}

	// --- Analysis routes (API key OR JWT); 401s are AnalysisResponses ---
	analyses := r.Group("/api/v1")
	analyses.Use(middleware.DualAuth(h.DB, opts.JWTSecret, h.DenyAnalysis))
	analyses.Use(rateLimiter.RateLimit())
	{
		analyses.POST("/analyze", h.Analyze)
		analyses.POST("/analyses", h.CreateAnalysis)
	}

	// --- Other protected routes (API key OR JWT) ---
	protected := r.Group("/api/v1")
	protected.Use(middleware.DualAuth(h.DB, opts.JWTSecret, nil))
	protected.Use(rateLimiter.RateLimit())
	{
		protected.GET("/analyses", h.ListAnalyses)
		protected.GET("/analyses/:id", h.GetAnalysis)
		protected.GET("/usage/today", h.UsageToday)
		protected.GET("/usage", h.ListUsage)

		protected.GET("/keys", h.ListAPIKeys)
		protected.DELETE("/keys/:id", h.RevokeAPIKey)
	}

	return r
}
