// Package middleware provides Gin HTTP middleware for authentication, authorization,
// rate limiting, security headers, and activity logging.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Recovery → RequestID → Metrics → Logger → Security → RateLimit → Auth → Role → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before auth to block brute-force attacks before any DB work.
// Auth populates the user identity; RequireRole reads from that context and
// records an access_denied event when the role check fails.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/radiowave/station-backend/internal/auth"
	"github.com/radiowave/station-backend/internal/db/models"
)

// UserLookup loads the account behind a session token
type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// AuthMiddleware validates the session token and loads the user. Browsers cannot
// set headers on websocket upgrades, so upgrade requests may pass the token as
// the "token" query parameter instead.
func AuthMiddleware(users UserLookup, revoker auth.Revoker) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, msg := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		if revoker != nil && claims.ID != "" {
			revoked, err := revoker.IsRevoked(c.Request.Context(), claims.ID)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Authentication failed"})
				return
			}
			if revoked {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Session has been logged out"})
				return
			}
		}

		user, err := users.GetUserByID(c.Request.Context(), claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
			return
		}
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
			return
		}

		c.Set(UserKey, user)
		c.Set(UserIDKey, user.ID)
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// bearerToken extracts the session token, or returns "" and the reason it is missing
func bearerToken(c *gin.Context) (string, string) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if websocket.IsWebSocketUpgrade(c.Request) {
			if t := strings.TrimSpace(c.Query(streamTokenName)); t != "" {
				return t, ""
			}
		}
		return "", "Missing authorization header"
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "Authorization header must start with 'Bearer '"
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", "Authorization token is empty"
	}
	return token, ""
}
