// auth.go handles account and session endpoints.
//
// A JWT identifies both the user (whose daily budget is charged) and the
// session (its jti, recorded on every ledger row). Register, login and
// refresh each open a new session; spend always stays on the user.
package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/Shimizu-Technology/video-insights-api/internal/database"
	"github.com/Shimizu-Technology/video-insights-api/internal/middleware"
	"github.com/Shimizu-Technology/video-insights-api/internal/models"
)

// normalizeEmail makes address lookups case-insensitive.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a new user account and signs it in.
// POST /api/v1/auth/register
func (h *Handler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_request", "Email, password (min 8 chars), and name are required")
		return
	}
	email := normalizeEmail(req.Email)

	existing, err := h.DB.GetUserByEmail(c.Request.Context(), email)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		log.Printf("❌ Failed to look up user: %v", err)
		errorJSON(c, http.StatusInternalServerError, "database_error", "Failed to create account")
		return
	}
	if existing != nil {
		errorJSON(c, http.StatusConflict, "email_taken", "An account with this email already exists")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("❌ Failed to hash password: %v", err)
		errorJSON(c, http.StatusInternalServerError, "server_error", "Failed to create account")
		return
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		Name:         strings.TrimSpace(req.Name),
	}
	if err := h.DB.CreateUser(c.Request.Context(), user); err != nil {
		log.Printf("❌ Failed to create user: %v", err)
		errorJSON(c, http.StatusInternalServerError, "database_error", "Failed to create account")
		return
	}
	log.Printf("👤 Registered user %s", user.ID)

	h.openSession(c, http.StatusCreated, user)
}

// Login checks a password and opens a new session.
// POST /api/v1/auth/login
func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_request", "Email and password are required")
		return
	}

	user, err := h.DB.GetUserByEmail(c.Request.Context(), normalizeEmail(req.Email))
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			log.Printf("❌ Failed to look up user: %v", err)
		}
		errorJSON(c, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		errorJSON(c, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
		return
	}

	h.openSession(c, http.StatusOK, user)
}

// GetMe returns the signed-in user, the current session and today's spend.
// GET /api/v1/auth/me
func (h *Handler) GetMe(c *gin.Context) {
	user := middleware.GetUser(c)
	requester, ok := middleware.GetRequester(c)
	if user == nil || !ok {
		errorJSON(c, http.StatusUnauthorized, "unauthorized", "Not authenticated")
		return
	}

	resp := models.MeResponse{User: *user}
	if requester.SessionID != nil {
		resp.SessionID = *requester.SessionID
	}
	if h.Budget != nil {
		snap, err := h.Budget.Snapshot(c.Request.Context(), requester)
		if err != nil {
			// The profile is still useful without spend figures.
			log.Printf("⚠️  Failed to read spend for user %s: %v", user.ID, err)
		} else {
			resp.Usage = snap
		}
	}
	c.JSON(http.StatusOK, resp)
}

// RefreshToken replaces the caller's token with one for a new session.
// POST /api/v1/auth/refresh
func (h *Handler) RefreshToken(c *gin.Context) {
	user := middleware.GetUser(c)
	if user == nil {
		errorJSON(c, http.StatusUnauthorized, "unauthorized", "Not authenticated")
		return
	}
	if requester, ok := middleware.GetRequester(c); ok && requester.SessionID != nil {
		log.Printf("🔄 Refreshing session %s for user %s", *requester.SessionID, user.ID)
	}

	h.openSession(c, http.StatusOK, user)
}

// openSession issues a JWT for user and writes it as an AuthResponse.
func (h *Handler) openSession(c *gin.Context, status int, user *models.User) {
	token, claims, err := middleware.GenerateJWT(user, h.JWTSecret)
	if err != nil {
		log.Printf("❌ Failed to generate token: %v", err)
		errorJSON(c, http.StatusInternalServerError, "token_error", "Failed to generate token")
		return
	}

	c.JSON(status, models.AuthResponse{
		Token:     token,
		SessionID: claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
		User:      *user,
	})
}
