// analyze.go handles the analysis endpoints: synchronous analyze, async
// analysis jobs, and the daily usage snapshot.
package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/video-insights-api/internal/database"
	"github.com/Shimizu-Technology/video-insights-api/internal/middleware"
	"github.com/Shimizu-Technology/video-insights-api/internal/models"
	"github.com/Shimizu-Technology/video-insights-api/internal/services/analysis"
	"github.com/Shimizu-Technology/video-insights-api/internal/services/budget"
	"github.com/Shimizu-Technology/video-insights-api/internal/services/worker"
)

// Analyze runs an analysis and waits for the result.
// POST /api/v1/analyze
//
// Request body:
//
//	{"youtubeUrl": "https://youtu.be/dQw4w9WgXcQ", "prompt": "List the key moments", "enableChunking": true}
//
// Every outcome, including failures, is an AnalysisResponse; callers check
// the error field first.
func (h *Handler) Analyze(c *gin.Context) {
	requester, _ := middleware.GetRequester(c)

	var body models.AnalyzeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, h.Analysis.ErrorResponse("invalid request: "+err.Error()))
		return
	}

	resp, err := h.Analysis.Analyze(c.Request.Context(), requester, body)
	if err != nil {
		c.JSON(analysisStatus(err), resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// DenyAnalysis is the 401 responder for the analysis routes, so that
// unauthenticated callers also receive an AnalysisResponse.
func (h *Handler) DenyAnalysis(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, h.Analysis.ErrorResponse("authentication required: "+message))
}

// CreateAnalysis admits an analysis and queues it for a worker.
// POST /api/v1/analyses
//
// Budget denials are reported immediately (402/503). An admitted request
// returns 202 with a job to poll via GET /api/v1/analyses/:id.
func (h *Handler) CreateAnalysis(c *gin.Context) {
	ctx := c.Request.Context()
	requester, _ := middleware.GetRequester(c)

	var body models.AnalyzeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, h.Analysis.ErrorResponse("invalid request: "+err.Error()))
		return
	}

	req, err := h.Analysis.NewRequest(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, h.Analysis.ErrorResponse(err.Error()))
		return
	}

	adm, err := h.Analysis.Admit(ctx, requester, req)
	if err != nil {
		c.JSON(analysisStatus(err), h.Analysis.ErrorResponse(err.Error()))
		return
	}

	reqJSON, err := json.Marshal(req)
	if err != nil {
		h.Analysis.Release(adm)
		errorJSON(c, http.StatusInternalServerError, "server_error", "Failed to encode request")
		return
	}

	job := &models.AnalysisJob{
		UserID:    requester.UserID,
		SessionID: requester.SessionID,
		Status:    models.JobPending,
		Request:   string(reqJSON),
	}
	if err := h.DB.CreateAnalysisJob(ctx, job); err != nil {
		h.Analysis.Release(adm)
		log.Printf("❌ Failed to create analysis job: %v", err)
		errorJSON(c, http.StatusInternalServerError, "database_error", "Failed to create analysis job")
		return
	}

	err = h.Worker.Submit(worker.Job{
		ID:        job.ID,
		Requester: requester,
		Request:   req,
		Admission: adm,
		CreatedAt: job.CreatedAt,
	})
	if err != nil {
		h.Analysis.Release(adm)
		job.Status = models.JobFailed
		job.ErrorMessage = err.Error()
		if uerr := h.DB.UpdateAnalysisJob(ctx, job); uerr != nil {
			log.Printf("⚠️  Failed to mark job %s as failed: %v", job.ID, uerr)
		}
		errorJSON(c, http.StatusServiceUnavailable, "queue_full", err.Error())
		return
	}

	log.Printf("📥 Analysis job %s queued", job.ID)
	c.JSON(http.StatusAccepted, models.AnalysisJobResponse{AnalysisJob: *job, Request: &req})
}

// GetAnalysis returns an analysis job and, once finished, its result.
// GET /api/v1/analyses/:id
func (h *Handler) GetAnalysis(c *gin.Context) {
	requester, _ := middleware.GetRequester(c)

	job, err := h.DB.GetAnalysisJob(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrNotFound) || (err == nil && !ownsJob(requester, job)) {
		// Someone else's job looks the same as a missing one.
		errorJSON(c, http.StatusNotFound, "not_found", "Analysis not found")
		return
	}
	if err != nil {
		log.Printf("❌ Failed to get analysis job: %v", err)
		errorJSON(c, http.StatusInternalServerError, "database_error", "Failed to get analysis")
		return
	}

	c.JSON(http.StatusOK, jobResponse(job))
}

// ListAnalyses returns the caller's recent analysis jobs.
// GET /api/v1/analyses?limit=20
func (h *Handler) ListAnalyses(c *gin.Context) {
	requester, _ := middleware.GetRequester(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	jobs, err := h.DB.ListAnalysisJobs(c.Request.Context(), requester, limit)
	if err != nil {
		log.Printf("❌ Failed to list analysis jobs: %v", err)
		errorJSON(c, http.StatusInternalServerError, "database_error", "Failed to list analyses")
		return
	}

	out := make([]models.AnalysisJobResponse, 0, len(jobs))
	for i := range jobs {
		resp := jobResponse(&jobs[i])
		resp.Result = nil // listings stay small; fetch one job for its result
		out = append(out, resp)
	}
	c.JSON(http.StatusOK, out)
}

// UsageToday reports today's spend against the daily limits.
// GET /api/v1/usage/today
func (h *Handler) UsageToday(c *gin.Context) {
	requester, _ := middleware.GetRequester(c)

	snap, err := h.Budget.Snapshot(c.Request.Context(), requester)
	if err != nil {
		log.Printf("❌ Failed to read spend: %v", err)
		errorJSON(c, http.StatusInternalServerError, "ledger_error", "Failed to read today's spend")
		return
	}
	c.JSON(http.StatusOK, snap)
}

// ListUsage returns the caller's most recent billed analyses.
// GET /api/v1/usage?limit=50
func (h *Handler) ListUsage(c *gin.Context) {
	requester, _ := middleware.GetRequester(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	entries, err := h.DB.ListLedgerEntries(c.Request.Context(), requester, limit)
	if err != nil {
		log.Printf("❌ Failed to list usage: %v", err)
		errorJSON(c, http.StatusInternalServerError, "ledger_error", "Failed to list usage")
		return
	}
	c.JSON(http.StatusOK, entries)
}

// analysisStatus maps an analysis error to its HTTP status.
func analysisStatus(err error) int {
	var denied *budget.DeniedError
	switch {
	case errors.Is(err, analysis.ErrValidation):
		return http.StatusBadRequest
	case errors.As(err, &denied):
		if denied.Scope == budget.ScopeUser {
			return http.StatusPaymentRequired
		}
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ownsJob reports whether requester may see job: the same user, or for
// jobs without a user, the same session.
func ownsJob(requester models.Requester, job *models.AnalysisJob) bool {
	if job.UserID != nil {
		return requester.UserID != nil && *requester.UserID == *job.UserID
	}
	return requester.UserID == nil && requester.SessionID != nil &&
		job.SessionID != nil && *requester.SessionID == *job.SessionID
}

func jobResponse(job *models.AnalysisJob) models.AnalysisJobResponse {
	resp := models.AnalysisJobResponse{AnalysisJob: *job}

	var req models.AnalysisRequest
	if err := json.Unmarshal([]byte(job.Request), &req); err == nil {
		resp.Request = &req
	}
	if job.Response != "" {
		var result models.AnalysisResponse
		if err := json.Unmarshal([]byte(job.Response), &result); err == nil {
			resp.Result = &result
		}
	}
	return resp
}
