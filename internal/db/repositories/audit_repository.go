// audit_repository.go implements AuditRepository: the append-only writer and the
// filtered, paginated reader for activity_logs.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/radiowave/station-backend/internal/db/models"
	"github.com/radiowave/station-backend/internal/telemetry"
)

// AuditRepository handles activity log database operations
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// AuditFilters contains filters for querying activity logs. Nil fields impose no constraint.
type AuditFilters struct {
	Action     *models.Action
	EntityType *string
	UserID     *int64
	StartDate  *time.Time
	EndDate    *time.Time
}

// AuditLogPage is one page of a filtered activity log listing
type AuditLogPage struct {
	Logs       []*models.AuditLogView
	Total      int
	Page       int
	Limit      int
	TotalPages int
}

const auditLogColumns = `log_id, user_id, action, entity_type, entity_id, ip_address, user_agent, metadata, created_at, updated_at`

const auditLogViewSelect = `
	SELECT l.log_id, l.user_id, l.action, l.entity_type, l.entity_id, l.ip_address,
	       l.user_agent, l.metadata, l.created_at, l.updated_at,
	       u.name AS user_name, u.last_name AS user_last_name, u.email AS user_email
	FROM activity_logs l
	LEFT JOIN users u ON u.user_id = l.user_id`

// CreateAuditLog inserts one activity record and returns the stored row with its
// generated id and timestamps. No validation happens here; an action outside the
// allowed set is rejected by the table's check constraint.
func (r *AuditRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error) {
	query := `
		INSERT INTO activity_logs (user_id, action, entity_type, entity_id, ip_address, user_agent, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + auditLogColumns

	stored := &models.AuditLog{}
	err := r.db.QueryRowxContext(ctx, query,
		log.UserID,
		log.Action,
		log.EntityType,
		log.EntityID,
		log.IPAddress,
		log.UserAgent,
		log.Metadata,
	).StructScan(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit log: %w", err)
	}

	return stored, nil
}

func buildAuditPredicate(filters AuditFilters) *predicate {
	p := &predicate{}
	if filters.Action != nil {
		p.add("l.action = $%d", string(*filters.Action))
	}
	if filters.EntityType != nil {
		p.add("l.entity_type = $%d", *filters.EntityType)
	}
	if filters.UserID != nil {
		p.add("l.user_id = $%d", *filters.UserID)
	}
	if filters.StartDate != nil {
		p.add("l.created_at >= $%d", *filters.StartDate)
	}
	if filters.EndDate != nil {
		p.add("l.created_at <= $%d", *filters.EndDate)
	}
	return p
}

// ListAuditLogs returns one page of activity records matching filters, newest first,
// with the acting user's identity joined in. page and limit must already be
// normalized (see NormalizePagination). The COUNT and the page query run concurrently.
func (r *AuditRepository) ListAuditLogs(ctx context.Context, filters AuditFilters, page, limit int) (*AuditLogPage, error) {
	start := time.Now()
	defer func() { telemetry.AuditLogQueryDuration.Observe(time.Since(start).Seconds()) }()

	p := buildAuditPredicate(filters)
	where := p.where()

	countQuery := `SELECT COUNT(*) FROM activity_logs l` + where
	pageQuery := auditLogViewSelect + where +
		fmt.Sprintf(` ORDER BY l.created_at DESC, l.log_id DESC LIMIT $%d OFFSET $%d`, p.next(), p.next()+1)
	pageArgs := append(append([]interface{}{}, p.args...), limit, Offset(page, limit))

	var total int
	logs := make([]*models.AuditLogView, 0)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := r.db.GetContext(gctx, &total, countQuery, p.args...); err != nil {
			return fmt.Errorf("failed to count audit logs: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := r.db.SelectContext(gctx, &logs, pageQuery, pageArgs...); err != nil {
			return fmt.Errorf("failed to list audit logs: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &AuditLogPage{
		Logs:       logs,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: TotalPages(total, limit),
	}, nil
}

// GetAuditLog retrieves a single activity record by id, or nil when absent
func (r *AuditRepository) GetAuditLog(ctx context.Context, logID int64) (*models.AuditLogView, error) {
	log := &models.AuditLogView{}
	err := r.db.GetContext(ctx, log, auditLogViewSelect+` WHERE l.log_id = $1`, logID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit log: %w", err)
	}
	return log, nil
}
