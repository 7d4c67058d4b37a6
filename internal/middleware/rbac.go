// Package middleware (rbac.go) implements role-based authorization.
//
// Roles are read from the freshly loaded user row, not from the token, so a
// demoted account loses access on its next request.

package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/radiowave/station-backend/internal/audit"
	"github.com/radiowave/station-backend/internal/db/models"
)

// RequireRole allows the request only when the authenticated user holds one of
// roles. Denials are recorded as access_denied events.
func RequireRole(recorder *audit.Recorder, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user != nil && slices.Contains(roles, user.Role) {
			c.Next()
			return
		}

		reason := "authentication required"
		if user != nil {
			reason = "role " + user.Role + " is not permitted"
		}
		recorder.Record(c.Request.Context(), AuditEntry(c, models.ActionAccessDenied, "", nil, map[string]any{
			"reason":   reason,
			"method":   c.Request.Method,
			"required": roles,
		}))

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "Insufficient permissions",
		})
	}
}

// RequireAdmin is RequireRole for the admin role
func RequireAdmin(recorder *audit.Recorder) gin.HandlerFunc {
	return RequireRole(recorder, models.RoleAdmin)
}
