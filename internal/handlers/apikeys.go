// apikeys.go handles API key management endpoints.
package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/video-insights-api/internal/database"
	"github.com/Shimizu-Technology/video-insights-api/internal/middleware"
	"github.com/Shimizu-Technology/video-insights-api/internal/models"
)

// CreateAPIKey generates a new API key.
// POST /api/v1/keys (guarded by middleware.AdminKey)
//
// Request body:
//
//	{"name": "CI", "user_id": "<uuid>", "rate_limit": 200}
//
// A key linked to a user spends that user's daily budget; an unlinked key
// is limited by the global budget only. The raw key is returned once.
func (h *Handler) CreateAPIKey(c *gin.Context) {
	ctx := c.Request.Context()

	var req models.CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}

	if req.UserID != nil {
		if _, err := h.DB.GetUserByID(ctx, *req.UserID); err != nil {
			errorJSON(c, http.StatusBadRequest, "invalid_request", "user_id does not match a user")
			return
		}
	}

	// Go Pattern: crypto/rand is the cryptographically secure random source.
	rawKey, err := generateAPIKey()
	if err != nil {
		log.Printf("❌ Failed to generate API key: %v", err)
		errorJSON(c, http.StatusInternalServerError, "generation_error", "Failed to generate API key")
		return
	}

	rateLimit := req.RateLimit
	if rateLimit <= 0 {
		rateLimit = h.DefaultRateLimit
	}

	key := &models.APIKey{
		UserID:    req.UserID,
		KeyHash:   middleware.HashAPIKey(rawKey),
		KeyPrefix: rawKey[:8] + "...",
		Name:      req.Name,
		Active:    true,
		RateLimit: rateLimit,
	}

	if err := h.DB.CreateAPIKey(ctx, key); err != nil {
		log.Printf("❌ Failed to create API key: %v", err)
		errorJSON(c, http.StatusInternalServerError, "database_error", "Failed to create API key")
		return
	}

	c.JSON(http.StatusCreated, models.CreateAPIKeyResponse{
		APIKey: *key,
		RawKey: rawKey,
	})
}

// ListAPIKeys returns API keys without their raw values.
// GET /api/v1/keys
//
// Users see their own keys. An unlinked (operator) key sees every key.
func (h *Handler) ListAPIKeys(c *gin.Context) {
	requester, _ := middleware.GetRequester(c)

	keys, err := h.DB.ListAPIKeys(c.Request.Context(), requester.UserID)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, "database_error", "Failed to list API keys")
		return
	}
	c.JSON(http.StatusOK, keys)
}

// RevokeAPIKey deactivates an API key.
// DELETE /api/v1/keys/:id
func (h *Handler) RevokeAPIKey(c *gin.Context) {
	requester, _ := middleware.GetRequester(c)

	err := h.DB.RevokeAPIKey(c.Request.Context(), c.Param("id"), requester.UserID)
	if errors.Is(err, database.ErrNotFound) {
		errorJSON(c, http.StatusNotFound, "not_found", "API key not found")
		return
	}
	if err != nil {
		log.Printf("❌ Failed to revoke API key: %v", err)
		errorJSON(c, http.StatusInternalServerError, "database_error", "Failed to revoke API key")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "API key revoked"})
}

// generateAPIKey creates a cryptographically secure random API key:
// "vi_" followed by 32 hex characters.
func generateAPIKey() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return "vi_" + hex.EncodeToString(bytes), nil
}
