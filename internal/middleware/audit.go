// audit.go provides Gin middleware that records successful write requests whose
// handlers did not record an activity event of their own.
package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/radiowave/station-backend/internal/audit"
	"github.com/radiowave/station-backend/internal/db/models"
)

// HTTPAuditMiddleware records a create/update/delete event for successful
// mutating requests. Handlers that call MarkAudited are skipped so an event is
// never recorded twice.
func HTTPAuditMiddleware(recorder *audit.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		action, ok := actionForMethod(c.Request.Method)
		if !ok || c.Writer.Status() >= http.StatusBadRequest || c.GetBool(AuditedKey) {
			return
		}

		entityType, entityID := entityFromPath(c.FullPath(), c.Params)
		recorder.Record(c.Request.Context(), AuditEntry(c, action, entityType, entityID, map[string]any{
			"method":      c.Request.Method,
			"status_code": c.Writer.Status(),
		}))
	}
}

func actionForMethod(method string) (models.Action, bool) {
	switch method {
	case http.MethodPost:
		return models.ActionCreate, true
	case http.MethodPut, http.MethodPatch:
		return models.ActionUpdate, true
	case http.MethodDelete:
		return models.ActionDelete, true
	}
	return "", false
}

// entityFromPath derives the entity type from the last static route segment and
// the entity id from the :id parameter, e.g. /api/v1/categories/:id → ("categories", id).
func entityFromPath(route string, params gin.Params) (string, *int64) {
	var entityType string
	for _, seg := range strings.Split(strings.Trim(route, "/"), "/") {
		if seg == "" || strings.HasPrefix(seg, ":") || strings.HasPrefix(seg, "*") {
			continue
		}
		entityType = strings.ReplaceAll(seg, "-", "_")
	}

	var entityID *int64
	if raw, ok := params.Get("id"); ok {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			entityID = &id
		}
	}
	return entityType, entityID
}
