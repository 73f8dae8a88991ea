// jwt.go provides JWT authentication middleware.
// It works alongside API key auth: DualAuth accepts either.
package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Shimizu-Technology/video-insights-api/internal/models"
)

// JWTClaims extends standard JWT claims with user info.
// RegisteredClaims.ID (jti) identifies the session for budget accounting.
type JWTClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// SessionTTL is how long an issued token stays valid.
const SessionTTL = 72 * time.Hour

// GenerateJWT creates a new JWT token for a user. Each token opens a fresh
// session whose ID is the returned claims' jti.
func GenerateJWT(user *models.User, secret string) (string, *JWTClaims, error) {
	now := time.Now()
	claims := JWTClaims{
		UserID: user.ID,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(SessionTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   user.ID,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", nil, err
	}
	return signed, &claims, nil
}

// ParseJWT validates and parses a JWT token string.
func ParseJWT(tokenString, secret string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	return strings.TrimPrefix(header, "Bearer "), true
}

// authenticateJWT resolves a bearer token to its user and stores both in
// the context.
func authenticateJWT(c *gin.Context, store Store, jwtSecret string) (string, bool) {
	tokenString, ok := bearerToken(c)
	if !ok {
		return "Missing or invalid Authorization header. Use 'Bearer <token>'", false
	}

	claims, err := ParseJWT(tokenString, jwtSecret)
	if err != nil {
		return "Invalid or expired token", false
	}

	user, err := store.GetUserByID(c.Request.Context(), claims.UserID)
	if err != nil {
		return "User not found", false
	}

	c.Set(string(userContextKey), user)
	if claims.ID != "" {
		c.Set(string(sessionContextKey), claims.ID)
	}
	return "", true
}

// JWTAuth returns middleware that accepts only JWT Bearer tokens.
func JWTAuth(store Store, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if msg, ok := authenticateJWT(c, store, jwtSecret); !ok {
			DenyJSON(c, msg)
			c.Abort()
			return
		}
		c.Next()
	}
}

// DualAuth returns middleware that accepts EITHER an API key OR a JWT token.
// deny writes the 401 response; nil means DenyJSON.
func DualAuth(store Store, jwtSecret string, deny DenyFunc) gin.HandlerFunc {
	if deny == nil {
		deny = DenyJSON
	}
	return func(c *gin.Context) {
		// Try API key first
		if rawKey := c.GetHeader("X-API-Key"); rawKey != "" {
			apiKey, err := store.GetAPIKeyByHash(c.Request.Context(), HashAPIKey(rawKey))
			if err == nil {
				setAPIKey(c, store, apiKey)
				c.Next()
				return
			}
		}

		// Then a JWT token
		if _, ok := authenticateJWT(c, store, jwtSecret); ok {
			c.Next()
			return
		}

		deny(c, "Provide a valid X-API-Key header or Authorization: Bearer <token>")
		c.Abort()
	}
}
