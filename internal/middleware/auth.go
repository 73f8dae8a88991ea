// Package middleware provides HTTP middleware for the API.
//
// Go Pattern: Middleware in Gin is a gin.HandlerFunc that calls c.Next() to
// continue the chain, or c.Abort() to stop processing.
package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/video-insights-api/internal/models"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	apiKeyContextKey  contextKey = "api_key"
	userContextKey    contextKey = "user"
	sessionContextKey contextKey = "session_id"
)

// Store is the subset of the database the auth middleware needs.
type Store interface {
	GetAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id string) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// DenyFunc writes the response for a request that failed authentication.
// The middleware aborts the chain after calling it.
type DenyFunc func(c *gin.Context, message string)

// DenyJSON is the default DenyFunc: a 401 ErrorResponse.
func DenyJSON(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, models.ErrorResponse{
		Error:   "unauthorized",
		Message: message,
		Code:    http.StatusUnauthorized,
	})
}

// AdminKey guards bootstrap endpoints with the X-Admin-Key header.
// When no admin key is configured (local development) the route is open.
func AdminKey(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.Next()
			return
		}

		provided := c.GetHeader("X-Admin-Key")
		if provided == "" {
			DenyJSON(c, "X-Admin-Key header is required")
			c.Abort()
			return
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(adminKey)) != 1 {
			c.JSON(http.StatusForbidden, models.ErrorResponse{
				Error:   "forbidden",
				Message: "Invalid admin key",
				Code:    http.StatusForbidden,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetAPIKey retrieves the authenticated API key from the request context.
func GetAPIKey(c *gin.Context) *models.APIKey {
	val, exists := c.Get(string(apiKeyContextKey))
	if !exists {
		return nil
	}
	key, ok := val.(*models.APIKey)
	if !ok {
		return nil
	}
	return key
}

// GetUser retrieves the authenticated user from the request context.
func GetUser(c *gin.Context) *models.User {
	val, exists := c.Get(string(userContextKey))
	if !exists {
		return nil
	}
	user, ok := val.(*models.User)
	if !ok {
		return nil
	}
	return user
}

// GetRequester returns who is spending budget on this request.
//
// A JWT session bills to its user, with the token ID as the session.
// An API key bills to its linked user, if any, with "apikey:<id>" as the
// session. The bool is false when the request is not authenticated.
func GetRequester(c *gin.Context) (models.Requester, bool) {
	var r models.Requester
	if sid := c.GetString(string(sessionContextKey)); sid != "" {
		r.SessionID = &sid
	}

	if user := GetUser(c); user != nil {
		id := user.ID
		r.UserID = &id
		return r, true
	}
	if key := GetAPIKey(c); key != nil {
		r.UserID = key.UserID
		return r, true
	}
	return models.Requester{}, false
}

// HashAPIKey creates a SHA-256 hash of an API key.
// We store hashes, not raw keys.
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", hash)
}

func setAPIKey(c *gin.Context, store Store, key *models.APIKey) {
	c.Set(string(apiKeyContextKey), key)
	c.Set(string(sessionContextKey), "apikey:"+key.ID)

	// Fire and forget; the request context is cancelled when the handler returns.
	go func(id string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.UpdateAPIKeyLastUsed(ctx, id); err != nil {
			log.Printf("⚠️  Failed to update last_used_at for key %s: %v", id, err)
		}
	}(key.ID)
}
