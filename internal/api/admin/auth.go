// auth.go implements HTTP handlers for password login, logout and the current session.
package admin

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/radiowave/station-backend/internal/audit"
	"github.com/radiowave/station-backend/internal/auth"
	"github.com/radiowave/station-backend/internal/config"
	"github.com/radiowave/station-backend/internal/db/models"
	"github.com/radiowave/station-backend/internal/db/repositories"
	"github.com/radiowave/station-backend/internal/middleware"
)

const userEntityType = "user"

// AuthHandlers handles authentication-related endpoints
type AuthHandlers struct {
	cfg      *config.AuthConfig
	userRepo *repositories.UserRepository
	recorder *audit.Recorder
	revoker  auth.Revoker
}

// NewAuthHandlers creates a new AuthHandlers instance
func NewAuthHandlers(cfg *config.AuthConfig, db *sqlx.DB, recorder *audit.Recorder, revoker auth.Revoker) *AuthHandlers {
	return &AuthHandlers{
		cfg:      cfg,
		userRepo: repositories.NewUserRepository(db),
		recorder: recorder,
		revoker:  revoker,
	}
}

// LoginRequest is the body of a login call
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// @Summary      Login
// @Description  Exchange email and password for a bearer token. Successful and failed attempts are recorded in the activity log.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  LoginRequest  true  "Credentials"
// @Success      200  {object}  map[string]interface{}  "token, expires_at, user"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      401  {object}  map[string]interface{}  "Invalid email or password"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/auth/login [post]
// LoginHandler authenticates a user
// POST /api/v1/auth/login
func (h *AuthHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		middleware.MarkAudited(c)

		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}
		email := strings.ToLower(strings.TrimSpace(req.Email))

		user, err := h.userRepo.GetUserByEmail(c.Request.Context(), email)
		if err != nil {
			slog.Error("login lookup failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to authenticate"})
			return
		}

		if user == nil || !auth.CheckPassword(req.Password, user.PasswordHash) {
			reason := "invalid password"
			var userID *int64
			if user == nil {
				reason = "unknown email"
			} else {
				userID = &user.ID
			}
			h.recordAs(c, userID, models.ActionLoginFailed, userID, map[string]any{
				"email":  email,
				"reason": reason,
			})
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}

		ttl := h.cfg.TokenTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		token, err := auth.GenerateJWT(user.ID, user.Email, user.Role, ttl)
		if err != nil {
			slog.Error("failed to issue token", "user_id", user.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
			return
		}

		h.recordAs(c, &user.ID, models.ActionLogin, &user.ID, map[string]any{
			"email": user.Email,
			"name":  user.FullName(),
		})

		c.JSON(http.StatusOK, gin.H{
			"token":      token,
			"expires_at": time.Now().Add(ttl).UTC().Format(time.RFC3339),
			"user":       user,
		})
	}
}

// recordAs records an auth event for a request that carries no session yet
func (h *AuthHandlers) recordAs(c *gin.Context, actor *int64, action models.Action, entityID *int64, metadata map[string]any) {
	e := middleware.AuditEntry(c, action, userEntityType, entityID, metadata)
	e.UserID = actor
	h.recorder.Record(c.Request.Context(), e)
}

// LogoutHandler revokes the current token
// POST /api/v1/auth/logout
func (h *AuthHandlers) LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		middleware.MarkAudited(c)

		claims := middleware.CurrentClaims(c)
		if claims == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}

		if h.revoker != nil && claims.ID != "" && claims.ExpiresAt != nil {
			if err := h.revoker.Revoke(c.Request.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
				slog.Error("failed to revoke token", "user_id", claims.UserID, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log out"})
				return
			}
		}

		h.recorder.Record(c.Request.Context(), middleware.AuditEntry(c, models.ActionLogout, userEntityType, &claims.UserID, map[string]any{
			"email": claims.Email,
		}))

		c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
	}
}

// MeHandler returns the current user
// GET /api/v1/auth/me
func (h *AuthHandlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user})
	}
}
