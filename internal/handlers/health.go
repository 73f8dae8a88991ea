// Package handlers contains HTTP handler functions for the API.
//
// Go Pattern: Handlers in Gin receive a *gin.Context which provides request
// data, response methods and middleware values (c.Get/c.Set). Related
// handlers hang off one Handler struct that holds shared dependencies.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/video-insights-api/internal/database"
	"github.com/Shimizu-Technology/video-insights-api/internal/models"
	"github.com/Shimizu-Technology/video-insights-api/internal/services/analysis"
	"github.com/Shimizu-Technology/video-insights-api/internal/services/budget"
	"github.com/Shimizu-Technology/video-insights-api/internal/services/worker"
)

// Version is reported by the health check.
var Version = "dev"

// Handler holds shared dependencies for all HTTP handlers.
// Go Pattern: Dependency injection via struct fields instead of globals.
type Handler struct {
	DB        *database.DB
	Analysis  *analysis.Service
	Budget    *budget.Controller
	Worker    *worker.Pool
	JWTSecret string

	// DefaultRateLimit is given to new API keys that do not set one.
	DefaultRateLimit int
}

// NewHandler creates a new handler with all dependencies.
func NewHandler(db *database.DB, svc *analysis.Service, ctrl *budget.Controller, wp *worker.Pool, jwtSecret string, defaultRateLimit int) *Handler {
	return &Handler{
		DB:               db,
		Analysis:         svc,
		Budget:           ctrl,
		Worker:           wp,
		JWTSecret:        jwtSecret,
		DefaultRateLimit: defaultRateLimit,
	}
}

// HealthCheck returns the API health status.
// GET /api/v1/health
func (h *Handler) HealthCheck(c *gin.Context) {
	dbStatus := "healthy"
	if err := h.DB.HealthCheck(c.Request.Context()); err != nil {
		dbStatus = "unhealthy: " + err.Error()
	}

	resp := models.HealthResponse{
		Status:   "ok",
		Version:  Version,
		Database: dbStatus,
		Model:    h.Analysis.Model(),
	}
	if h.Worker != nil {
		resp.Workers = h.Worker.WorkerCount()
		resp.Queued = h.Worker.QueueSize()
	}
	c.JSON(http.StatusOK, resp)
}

// errorJSON writes the standard error body for non-analysis endpoints.
func errorJSON(c *gin.Context, status int, code, message string) {
	c.JSON(status, models.ErrorResponse{
		Error:   code,
		Message: message,
		Code:    status,
	})
}
