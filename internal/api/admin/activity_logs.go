// activity_logs.go implements the admin activity log endpoints: the filtered,
// paginated listing, single record detail, the action enumeration and the
// websocket live feed of new records.
package admin

import (
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jmoiron/sqlx"

	"github.com/radiowave/station-backend/internal/audit"
	"github.com/radiowave/station-backend/internal/config"
	"github.com/radiowave/station-backend/internal/db/models"
	"github.com/radiowave/station-backend/internal/db/repositories"
	"github.com/radiowave/station-backend/internal/middleware"
	"github.com/radiowave/station-backend/internal/safego"
)

const (
	activityLogsEntityType = "activity_logs"

	streamPingInterval = 30 * time.Second
	streamWriteWait    = 10 * time.Second
	streamPongWait     = 60 * time.Second
)

// ActivityLogHandlers serves the activity log to administrators
type ActivityLogHandlers struct {
	cfg      *config.AuditConfig
	repo     *repositories.AuditRepository
	recorder *audit.Recorder
	hub      *audit.Hub
	upgrader websocket.Upgrader
}

// NewActivityLogHandlers creates a new ActivityLogHandlers instance. hub may be
// nil, in which case the live feed is unavailable. allowedOrigins restricts
// which browser origins may open the feed; "*" allows any.
func NewActivityLogHandlers(cfg *config.AuditConfig, db *sqlx.DB, recorder *audit.Recorder, hub *audit.Hub, allowedOrigins []string) *ActivityLogHandlers {
	return &ActivityLogHandlers{
		cfg:      cfg,
		repo:     repositories.NewAuditRepository(db),
		recorder: recorder,
		hub:      hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// activityLogItem is one record as returned to the admin UI
type activityLogItem struct {
	*models.AuditLogView
	Description string `json:"description"`
	UserInfo    string `json:"user_info"`
}

func (h *ActivityLogHandlers) present(v *models.AuditLogView) activityLogItem {
	r := h.recorder.Renderer()
	return activityLogItem{
		AuditLogView: v,
		Description:  r.Describe(v.Action, v.EntityType, v.EntityID, v.Metadata),
		UserInfo:     r.FormatUserInfo(audit.UserInfoFromView(v)),
	}
}

// activityLogQuery is the parsed query string of a listing request
type activityLogQuery struct {
	filters     repositories.AuditFilters
	page        int
	limit       int
	limitCapped bool
	// applied echoes the filters that were understood, keyed by query parameter
	applied map[string]any
}

// parseActivityLogQuery reads filters and pagination from the query string.
// Malformed values never fail the request: a bad page or limit falls back to
// the default and an unparseable filter is ignored.
func parseActivityLogQuery(c *gin.Context, defaultLimit, maxLimit int) activityLogQuery {
	page, _ := strconv.Atoi(c.Query("page"))
	requested, _ := strconv.Atoi(c.Query("limit"))
	page, limit := repositories.NormalizePagination(page, requested, defaultLimit, maxLimit)

	q := activityLogQuery{page: page, limit: limit, limitCapped: requested > limit, applied: map[string]any{}}

	if raw := strings.TrimSpace(c.Query("action")); raw != "" {
		action := models.Action(raw)
		if action.Valid() {
			q.filters.Action = &action
			q.applied["action"] = raw
		}
	}
	if entityType := strings.TrimSpace(c.Query("entityType")); entityType != "" {
		q.filters.EntityType = &entityType
		q.applied["entityType"] = entityType
	}
	if raw := strings.TrimSpace(c.Query("userId")); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			q.filters.UserID = &id
			q.applied["userId"] = id
		}
	}
	if start, ok := repositories.ParseFilterDate(c.Query("startDate"), false); ok {
		q.filters.StartDate = &start
		q.applied["startDate"] = c.Query("startDate")
	}
	if end, ok := repositories.ParseFilterDate(c.Query("endDate"), true); ok {
		q.filters.EndDate = &end
		q.applied["endDate"] = c.Query("endDate")
	}
	return q
}

func errorResponse(c *gin.Context, status int, errMsg, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error":   errMsg,
		"message": message,
	})
}

// @Summary      List activity logs
// @Description  Filtered, paginated activity log, newest first. Each record carries a rendered description and the acting user. Admin only.
// @Tags         ActivityLogs
// @Security     Bearer
// @Produce      json
// @Param        action      query  string  false  "Action filter"
// @Param        entityType  query  string  false  "Entity type filter"
// @Param        userId      query  int     false  "Acting user filter"
// @Param        startDate   query  string  false  "YYYY-MM-DD or RFC3339, inclusive"
// @Param        endDate     query  string  false  "YYYY-MM-DD (whole day) or RFC3339, inclusive"
// @Param        page        query  int     false  "Page number (default 1)"
// @Param        limit       query  int     false  "Items per page (default 20, capped at max_page_size)"
// @Success      200  {object}  map[string]interface{}  "success, data: {logs, pagination}, message"
// @Failure      500  {object}  map[string]interface{}  "success: false, error, message"
// @Router       /api/v1/admin/activity-logs [get]
// ListActivityLogsHandler lists activity records
// GET /api/v1/admin/activity-logs?action=&entityType=&userId=&startDate=&endDate=&page=&limit=
func (h *ActivityLogHandlers) ListActivityLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		middleware.SetNoCacheHeaders(c)

		q := parseActivityLogQuery(c, h.cfg.DefaultPageSize, h.cfg.MaxPageSize)

		result, err := h.repo.ListAuditLogs(c.Request.Context(), q.filters, q.page, q.limit)
		if err != nil {
			slog.Error("failed to list activity logs", "error", err, "request_id", middleware.RequestID(c))
			errorResponse(c, http.StatusInternalServerError, err.Error(), "Failed to retrieve activity logs")
			return
		}

		logs := make([]activityLogItem, 0, len(result.Logs))
		for _, v := range result.Logs {
			logs = append(logs, h.present(v))
		}

		h.recorder.Record(c.Request.Context(), middleware.AuditEntry(c, models.ActionRead, activityLogsEntityType, nil, map[string]any{
			"filters": q.applied,
			"page":    q.page,
			"limit":   q.limit,
			"results": len(logs),
		}))

		message := "Activity logs retrieved successfully"
		if q.limitCapped {
			message = fmt.Sprintf("%s (limit capped at %d)", message, q.limit)
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data": gin.H{
				"logs": logs,
				"pagination": gin.H{
					"page":       result.Page,
					"limit":      result.Limit,
					"total":      result.Total,
					"totalPages": result.TotalPages,
				},
			},
			"message": message,
		})
	}
}

// GetActivityLogHandler returns a single activity record
// GET /api/v1/admin/activity-logs/:id
func (h *ActivityLogHandlers) GetActivityLogHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		middleware.SetNoCacheHeaders(c)

		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id < 1 {
			errorResponse(c, http.StatusBadRequest, "invalid log id", "Invalid activity log id")
			return
		}

		v, err := h.repo.GetAuditLog(c.Request.Context(), id)
		if err != nil {
			slog.Error("failed to get activity log", "log_id", id, "error", err)
			errorResponse(c, http.StatusInternalServerError, err.Error(), "Failed to retrieve activity log")
			return
		}
		if v == nil {
			errorResponse(c, http.StatusNotFound, "not found", "Activity log not found")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    h.present(v),
			"message": "Activity log retrieved successfully",
		})
	}
}

// ListActionsHandler returns the allowed actions, for filter dropdowns
// GET /api/v1/admin/activity-logs/actions
func (h *ActivityLogHandlers) ListActionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    models.AllActions(),
			"message": "Actions retrieved successfully",
		})
	}
}

// StreamActivityLogsHandler upgrades to a websocket and pushes every newly
// stored record, with its description, until the client disconnects.
// GET /api/v1/admin/activity-logs/stream
func (h *ActivityLogHandlers) StreamActivityLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.hub == nil {
			errorResponse(c, http.StatusNotFound, "stream disabled", "Live activity feed is not enabled")
			return
		}

		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade has already written an error response
			slog.Warn("activity stream upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		h.recorder.Record(c.Request.Context(), middleware.AuditEntry(c, models.ActionRead, activityLogsEntityType, nil, map[string]any{
			"stream": true,
		}))

		entries, unsubscribe := h.hub.Subscribe()
		defer unsubscribe()

		// The read pump only services control frames and notices the client leaving
		closed := make(chan struct{})
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		safego.Go(func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		})

		ticker := time.NewTicker(streamPingInterval)
		defer ticker.Stop()

		for {
			select {
			case entry, ok := <-entries:
				conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
				if !ok {
					conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
					return
				}
				if err := conn.WriteJSON(entry); err != nil {
					return
				}
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-closed:
				return
			case <-c.Request.Context().Done():
				return
			}
		}
	}
}

// originChecker allows same-host requests, requests without an Origin header
// and the configured origins.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowed, "*") || slices.Contains(allowed, origin) {
			return true
		}
		return strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://") == r.Host
	}
}
