// Package audit implements the station's activity log: the runtime-managed
// activity_logs schema and its background bootstrap, the recorder every
// handler uses to write events, human-readable descriptions of stored records,
// the live feed and external shippers.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/radiowave/station-backend/internal/config"
	"github.com/radiowave/station-backend/internal/db/models"
	"github.com/radiowave/station-backend/internal/safego"
	"github.com/radiowave/station-backend/internal/telemetry"
)

// Entry is one event to record. An empty IPAddress marks a system event.
type Entry struct {
	UserID     *int64
	Action     models.Action
	EntityType *string
	EntityID   *int64
	IPAddress  string
	UserAgent  *string
	Metadata   map[string]any
}

// Writer persists activity records; satisfied by *repositories.AuditRepository
type Writer interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error)
}

// Recorder writes activity records and fans them out to the live feed and shippers
type Recorder struct {
	writer   Writer
	renderer Renderer
	enabled  bool
	hub      *Hub
	shipper  Shipper
}

// NewRecorder creates a recorder configured from the audit config
func NewRecorder(writer Writer, cfg *config.AuditConfig) *Recorder {
	return &Recorder{
		writer:   writer,
		renderer: NewRenderer(ParseLocale(cfg.Locale)),
		enabled:  cfg.Enabled,
	}
}

// WithHub publishes stored records to h
func (r *Recorder) WithHub(h *Hub) *Recorder {
	r.hub = h
	return r
}

// WithShipper forwards stored records to s
func (r *Recorder) WithShipper(s Shipper) *Recorder {
	r.shipper = s
	return r
}

// Renderer returns the renderer used for published and shipped descriptions
func (r *Recorder) Renderer() Renderer {
	return r.renderer
}

// Enabled reports whether events are recorded
func (r *Recorder) Enabled() bool {
	return r != nil && r.enabled
}

// Log stores e and returns the stored record. When recording is disabled it
// stores nothing and returns nil, nil.
func (r *Recorder) Log(ctx context.Context, e Entry) (*models.AuditLog, error) {
	if !r.Enabled() {
		return nil, nil
	}

	metadata, err := models.NewMetadata(e.Metadata)
	if err != nil {
		return nil, err
	}
	ip := e.IPAddress
	if ip == "" {
		ip = models.SystemIPAddress
	}

	stored, err := r.writer.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     e.UserID,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		IPAddress:  ip,
		UserAgent:  e.UserAgent,
		Metadata:   metadata,
	})
	if err != nil {
		return nil, err
	}

	r.fanOut(ctx, stored)
	return stored, nil
}

// Record stores e as a non-fatal side effect: failures are logged and counted,
// never returned. Handlers call Record after their primary work has succeeded.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if !r.Enabled() {
		return
	}
	ok := safego.BestEffort("audit.record", func() error {
		_, err := r.Log(ctx, e)
		return err
	}, "action", string(e.Action))

	result := "success"
	if !ok {
		result = "failure"
	}
	telemetry.AuditLogWritesTotal.WithLabelValues(string(e.Action), result).Inc()
}

func (r *Recorder) fanOut(ctx context.Context, stored *models.AuditLog) {
	if r.hub == nil && r.shipper == nil {
		return
	}
	entry := NewLogEntry(stored, r.renderer.Describe(stored.Action, stored.EntityType, stored.EntityID, stored.Metadata))
	if r.hub != nil {
		r.hub.Publish(entry)
	}
	if r.shipper != nil {
		safego.BestEffort("audit.ship", func() error {
			return r.shipper.Ship(context.WithoutCancel(ctx), entry)
		}, "log_id", entry.LogID)
	}
}

// Change is one field of an update diff
type Change struct {
	Field string
	Value any
}

// Changes is an ordered set of field changes. It marshals as a JSON object whose
// keys keep insertion order, so descriptions list fields in the order they were set.
type Changes []Change

// Set appends or replaces a field
func (c Changes) Set(field string, value any) Changes {
	for i := range c {
		if c[i].Field == field {
			c[i].Value = value
			return c
		}
	}
	return append(c, Change{Field: field, Value: value})
}

// MarshalJSON implements json.Marshaler
func (c Changes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, ch := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(ch.Field)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(ch.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal change %q: %w", ch.Field, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// DiffChanges compares two flat field sets and returns the new values of fields
// that differ, in the order of fields. Fields missing from after are skipped.
func DiffChanges(fields []string, before, after map[string]any) Changes {
	var out Changes
	for _, f := range fields {
		newVal, ok := after[f]
		if !ok {
			continue
		}
		if oldVal, had := before[f]; had && reflect.DeepEqual(oldVal, newVal) {
			continue
		}
		out = append(out, Change{Field: f, Value: newVal})
	}
	return out
}
