package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/radiowave/station-backend/internal/db/models"
)

const (
	// ActionConstraintName is the CHECK constraint restricting activity_logs.action
	ActionConstraintName = "activity_logs_action_check"

	// ActionConstraintVersion must be bumped whenever models.AllActions changes.
	// EnsureSchema re-creates the constraint when the recorded version is older.
	ActionConstraintVersion = 1

	actionConstraintComponent = "action_constraint"

	// schemaLockKey is the pg_advisory_xact_lock key serialising constraint changes
	// across processes sharing the database.
	schemaLockKey int64 = 0x72616469_6f617564
)

// PostgreSQL error codes raised when two processes create the same object at once
const (
	pqDuplicateTable  = "42P07"
	pqUniqueViolation = "23505"
	pqDuplicateObject = "42710"
)

// activityIndexes are created after the table; failures are logged only
var activityIndexes = []struct {
	name string
	ddl  string
}{
	{"idx_activity_logs_user_id", `CREATE INDEX IF NOT EXISTS idx_activity_logs_user_id ON activity_logs (user_id)`},
	{"idx_activity_logs_action", `CREATE INDEX IF NOT EXISTS idx_activity_logs_action ON activity_logs (action)`},
	{"idx_activity_logs_created_at", `CREATE INDEX IF NOT EXISTS idx_activity_logs_created_at ON activity_logs (created_at DESC)`},
	{"idx_activity_logs_entity", `CREATE INDEX IF NOT EXISTS idx_activity_logs_entity ON activity_logs (entity_type, entity_id)`},
}

// SchemaManager owns the activity_logs table. The table is created at runtime,
// after the ordered migrations, because it references users.
type SchemaManager struct {
	db *sqlx.DB
}

// NewSchemaManager creates a new schema manager
func NewSchemaManager(db *sqlx.DB) *SchemaManager {
	return &SchemaManager{db: db}
}

// EnsureSchema creates the activity log table, brings its action constraint up to
// the current version and creates its indexes. It is idempotent and safe to run
// from several processes at once. Index failures are logged and do not fail the call.
func (m *SchemaManager) EnsureSchema(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, createActivityLogsSQL()); err != nil && !isCreateRace(err) {
		return fmt.Errorf("failed to create activity_logs table: %w", err)
	}

	if _, err := m.db.ExecContext(ctx, createSchemaVersionsSQL); err != nil && !isCreateRace(err) {
		return fmt.Errorf("failed to create audit_schema_versions table: %w", err)
	}

	if err := m.ensureActionConstraint(ctx); err != nil {
		return err
	}

	m.ensureIndexes(ctx)
	return nil
}

// ConstraintVersion returns the recorded action constraint version, or 0 when none is recorded
func (m *SchemaManager) ConstraintVersion(ctx context.Context) (int, error) {
	return constraintVersion(ctx, m.db)
}

func (m *SchemaManager) ensureActionConstraint(ctx context.Context) error {
	current, err := m.ConstraintVersion(ctx)
	if err != nil {
		return err
	}
	if current >= ActionConstraintVersion {
		return nil
	}

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin constraint transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("failed to acquire schema lock: %w", err)
	}

	// Another process may have upgraded while we waited for the lock
	current, err = constraintVersion(ctx, tx)
	if err != nil {
		return err
	}
	if current >= ActionConstraintVersion {
		return tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE activity_logs DROP CONSTRAINT IF EXISTS %s`, ActionConstraintName)); err != nil {
		return fmt.Errorf("failed to drop action constraint: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE activity_logs ADD CONSTRAINT %s %s`, ActionConstraintName, actionCheckSQL())); err != nil && !isPQCode(err, pqDuplicateObject) {
		return fmt.Errorf("failed to add action constraint: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO audit_schema_versions (component, version, applied_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (component) DO UPDATE SET version = EXCLUDED.version, applied_at = NOW()`,
		actionConstraintComponent, ActionConstraintVersion,
	); err != nil {
		return fmt.Errorf("failed to record action constraint version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit action constraint: %w", err)
	}

	slog.Info("activity log action constraint updated",
		"from_version", current, "to_version", ActionConstraintVersion, "actions", len(models.AllActions()))
	return nil
}

func (m *SchemaManager) ensureIndexes(ctx context.Context) {
	for _, idx := range activityIndexes {
		if _, err := m.db.ExecContext(ctx, idx.ddl); err != nil && !isCreateRace(err) {
			slog.Warn("failed to create activity log index", "index", idx.name, "error", err)
		}
	}
}

func constraintVersion(ctx context.Context, q sqlx.QueryerContext) (int, error) {
	var version int
	err := sqlx.GetContext(ctx, q, &version,
		`SELECT version FROM audit_schema_versions WHERE component = $1`, actionConstraintComponent)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read action constraint version: %w", err)
	}
	return version, nil
}

func createActivityLogsSQL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS activity_logs (
	log_id      BIGSERIAL PRIMARY KEY,
	user_id     BIGINT REFERENCES users(user_id) ON DELETE SET NULL,
	action      VARCHAR(32) NOT NULL,
	entity_type VARCHAR(64),
	entity_id   BIGINT,
	ip_address  VARCHAR(64) NOT NULL,
	user_agent  TEXT,
	metadata    JSON,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT %s %s
)`, ActionConstraintName, actionCheckSQL())
}

const createSchemaVersionsSQL = `CREATE TABLE IF NOT EXISTS audit_schema_versions (
	component  VARCHAR(64) PRIMARY KEY,
	version    INTEGER NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// actionCheckSQL renders CHECK (action IN (...)) from the allowed action set
func actionCheckSQL() string {
	actions := models.AllActions()
	quoted := make([]string, len(actions))
	for i, a := range actions {
		quoted[i] = pq.QuoteLiteral(string(a))
	}
	return "CHECK (action IN (" + strings.Join(quoted, ", ") + "))"
}

func isCreateRace(err error) bool {
	return isPQCode(err, pqDuplicateTable) || isPQCode(err, pqUniqueViolation) || isPQCode(err, pqDuplicateObject)
}

func isPQCode(err error, code string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == code
	}
	return false
}
