package middleware

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/radiowave/station-backend/internal/audit"
	"github.com/radiowave/station-backend/internal/db/models"
)

// RecoveryMiddleware converts handler panics into 500 responses, logs them and
// records a system_error event.
func RecoveryMiddleware(recorder *audit.Recorder) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		msg := fmt.Sprint(recovered)
		slog.Error("panic in request handler",
			"panic", msg,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"request_id", RequestID(c),
		)

		recorder.Record(c.Request.Context(), AuditEntry(c, models.ActionSystemError, "", nil, map[string]any{
			"error":      msg,
			"method":     c.Request.Method,
			"request_id": RequestID(c),
		}))

		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "Internal server error",
		})
	})
}
