// Package models - audit_log.go defines the activity log record: who did what to which
// entity, from where, with an optional free-form JSON metadata document.
package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Action is the kind of event recorded in the activity log. The set is closed and
// mirrored by the activity_logs_action_check constraint in the store.
type Action string

const (
	ActionLogin        Action = "login"
	ActionLogout       Action = "logout"
	ActionLoginFailed  Action = "login_failed"
	ActionAccessDenied Action = "access_denied"
	ActionCreate       Action = "create"
	ActionRead         Action = "read"
	ActionUpdate       Action = "update"
	ActionDelete       Action = "delete"
	ActionEdit         Action = "edit"
	ActionSystemStart  Action = "system_start"
	ActionSystemStop   Action = "system_stop"
	ActionSystemError  Action = "system_error"
)

// SystemIPAddress is stored in place of a client address for events not caused by a request.
const SystemIPAddress = "system"

var allActions = []Action{
	ActionLogin,
	ActionLogout,
	ActionLoginFailed,
	ActionAccessDenied,
	ActionCreate,
	ActionRead,
	ActionUpdate,
	ActionDelete,
	ActionEdit,
	ActionSystemStart,
	ActionSystemStop,
	ActionSystemError,
}

// AllActions returns every allowed action in declaration order.
func AllActions() []Action {
	out := make([]Action, len(allActions))
	copy(out, allActions)
	return out
}

// Valid reports whether a is one of the allowed actions.
func (a Action) Valid() bool {
	for _, known := range allActions {
		if a == known {
			return true
		}
	}
	return false
}

// Metadata is a raw JSON document stored in the metadata column. Key order is
// preserved exactly as written, which the description renderer depends on.
type Metadata []byte

// NewMetadata marshals v into a Metadata document. A nil v yields nil metadata.
func NewMetadata(v any) (Metadata, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if bytes.Equal(b, []byte("null")) {
		return nil, nil
	}
	return Metadata(b), nil
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = nil
	case []byte:
		*m = append((*m)[:0], v...)
	case string:
		*m = Metadata(v)
	default:
		return fmt.Errorf("cannot scan %T into Metadata", src)
	}
	return nil
}

// Value implements driver.Valuer. Empty metadata is stored as SQL NULL.
func (m Metadata) Value() (driver.Value, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return string(m), nil
}

// MarshalJSON emits the stored document verbatim, or null when empty.
func (m Metadata) MarshalJSON() ([]byte, error) {
	if len(m) == 0 {
		return []byte("null"), nil
	}
	return []byte(m), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = nil
		return nil
	}
	*m = append((*m)[:0], data...)
	return nil
}

// Fields decodes an object document into its raw fields. Any other document,
// including an empty one, yields nil.
func (m Metadata) Fields() map[string]json.RawMessage {
	if len(m) == 0 {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(m, &obj); err != nil {
		return nil
	}
	return obj
}

// Field returns the raw JSON value under key when the document is an object.
func (m Metadata) Field(key string) (json.RawMessage, bool) {
	v, ok := m.Fields()[key]
	return v, ok
}

// AuditLog is one immutable row of activity_logs.
type AuditLog struct {
	ID         int64     `json:"log_id" db:"log_id"`
	UserID     *int64    `json:"user_id" db:"user_id"` // nil for anonymous and system events
	Action     Action    `json:"action" db:"action"`
	EntityType *string   `json:"entity_type" db:"entity_type"` // "user", "news", "podcast", ...
	EntityID   *int64    `json:"entity_id" db:"entity_id"`
	IPAddress  string    `json:"ip_address" db:"ip_address"` // SystemIPAddress for system events
	UserAgent  *string   `json:"user_agent" db:"user_agent"`
	Metadata   Metadata  `json:"metadata" db:"metadata"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// AuditLogView is an AuditLog with the acting user's identity joined in.
// The identity fields are nil when the record has no user or the user was deleted.
type AuditLogView struct {
	AuditLog
	UserName     *string `json:"user_name" db:"user_name"`
	UserLastName *string `json:"user_last_name" db:"user_last_name"`
	UserEmail    *string `json:"user_email" db:"user_email"`
}
