package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/radiowave/station-backend/internal/audit"
	"github.com/radiowave/station-backend/internal/auth"
	"github.com/radiowave/station-backend/internal/db/models"
)

// gin.Context keys populated by this package
const (
	UserKey         = "user"
	UserIDKey       = "user_id"
	ClaimsKey       = "claims"
	AuditedKey      = "audit_recorded"
	streamTokenName = "token"
)

// CurrentUser returns the authenticated user, or nil
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(UserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

// CurrentUserID returns the authenticated user's id, or nil
func CurrentUserID(c *gin.Context) *int64 {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return nil
	}
	id, ok := v.(int64)
	if !ok {
		return nil
	}
	return &id
}

// CurrentClaims returns the validated session claims, or nil
func CurrentClaims(c *gin.Context) *auth.Claims {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}

// AuditEntry builds an activity entry attributed to the current request: actor,
// client IP, user agent and request path are filled in from c. Keys already in
// metadata win over the request path.
func AuditEntry(c *gin.Context, action models.Action, entityType string, entityID *int64, metadata map[string]any) audit.Entry {
	md := map[string]any{"path": c.Request.URL.Path}
	for k, v := range metadata {
		md[k] = v
	}

	e := audit.Entry{
		UserID:    CurrentUserID(c),
		Action:    action,
		EntityID:  entityID,
		IPAddress: c.ClientIP(),
		Metadata:  md,
	}
	if entityType != "" {
		e.EntityType = &entityType
	}
	if ua := c.Request.UserAgent(); ua != "" {
		e.UserAgent = &ua
	}
	return e
}

// MarkAudited tells HTTPAuditMiddleware that the handler recorded its own event
func MarkAudited(c *gin.Context) {
	c.Set(AuditedKey, true)
}
