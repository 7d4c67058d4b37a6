package audit_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiowave/station-backend/internal/audit"
	"github.com/radiowave/station-backend/internal/config"
	"github.com/radiowave/station-backend/internal/db/models"
)

type fakeWriter struct {
	mu      sync.Mutex
	written []*models.AuditLog
	err     error
	panics  bool
}

func (w *fakeWriter) CreateAuditLog(_ context.Context, log *models.AuditLog) (*models.AuditLog, error) {
	if w.panics {
		panic("writer exploded")
	}
	if w.err != nil {
		return nil, w.err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	stored := *log
	stored.ID = int64(len(w.written) + 1)
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	w.written = append(w.written, &stored)
	return &stored, nil
}

type fakeShipper struct {
	mu      sync.Mutex
	shipped []*audit.LogEntry
}

func (s *fakeShipper) Ship(_ context.Context, e *audit.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shipped = append(s.shipped, e)
	return nil
}

func (s *fakeShipper) Close() error { return nil }

func enabledAudit() *config.AuditConfig {
	return &config.AuditConfig{Enabled: true, Locale: "en"}
}

func TestRecorder_LogStoresRecord(t *testing.T) {
	w := &fakeWriter{}
	r := audit.NewRecorder(w, enabledAudit())

	stored, err := r.Log(context.Background(), audit.Entry{
		UserID:     i64Ptr(3),
		Action:     models.ActionCreate,
		EntityType: strPtr("podcast"),
		EntityID:   i64Ptr(7),
		IPAddress:  "10.0.0.5",
		Metadata:   map[string]any{"path": "/x"},
	})
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, int64(1), stored.ID)
	assert.Equal(t, "10.0.0.5", stored.IPAddress)
	assert.JSONEq(t, `{"path":"/x"}`, string(stored.Metadata))
}

func TestRecorder_SystemEventUsesSentinelIP(t *testing.T) {
	w := &fakeWriter{}
	r := audit.NewRecorder(w, enabledAudit())

	stored, err := r.Log(context.Background(), audit.Entry{Action: models.ActionSystemStart})
	require.NoError(t, err)
	assert.Equal(t, models.SystemIPAddress, stored.IPAddress)
	assert.Nil(t, stored.UserID)
	assert.Nil(t, stored.Metadata)
}

func TestRecorder_LogReturnsWriterError(t *testing.T) {
	r := audit.NewRecorder(&fakeWriter{err: errors.New("violates check constraint")}, enabledAudit())

	_, err := r.Log(context.Background(), audit.Entry{Action: "purge"})
	assert.Error(t, err)
}

func TestRecorder_RecordSwallowsErrors(t *testing.T) {
	r := audit.NewRecorder(&fakeWriter{err: errors.New("db down")}, enabledAudit())
	assert.NotPanics(t, func() {
		r.Record(context.Background(), audit.Entry{Action: models.ActionRead})
	})
}

func TestRecorder_RecordSwallowsPanics(t *testing.T) {
	r := audit.NewRecorder(&fakeWriter{panics: true}, enabledAudit())
	assert.NotPanics(t, func() {
		r.Record(context.Background(), audit.Entry{Action: models.ActionRead})
	})
}

func TestRecorder_Disabled(t *testing.T) {
	w := &fakeWriter{}
	r := audit.NewRecorder(w, &config.AuditConfig{Enabled: false})

	stored, err := r.Log(context.Background(), audit.Entry{Action: models.ActionLogin})
	assert.NoError(t, err)
	assert.Nil(t, stored)
	r.Record(context.Background(), audit.Entry{Action: models.ActionLogin})
	assert.Empty(t, w.written)
}

func TestRecorder_NilIsSafe(t *testing.T) {
	var r *audit.Recorder
	assert.False(t, r.Enabled())
	assert.NotPanics(t, func() {
		r.Record(context.Background(), audit.Entry{Action: models.ActionLogin})
	})
}

func TestRecorder_PublishesAndShips(t *testing.T) {
	hub := audit.NewHub(4)
	feed, unsubscribe := hub.Subscribe()
	defer unsubscribe()
	shipper := &fakeShipper{}

	r := audit.NewRecorder(&fakeWriter{}, &config.AuditConfig{Enabled: true, Locale: "es"}).
		WithHub(hub).
		WithShipper(shipper)

	r.Record(context.Background(), audit.Entry{
		Action:     models.ActionDelete,
		EntityType: strPtr("news"),
		EntityID:   i64Ptr(2),
		IPAddress:  "1.2.3.4",
	})

	select {
	case e := <-feed:
		assert.Equal(t, "delete", e.Action)
		assert.Equal(t, "Eliminó noticia #2", e.Description)
	case <-time.After(time.Second):
		t.Fatal("no entry published to hub")
	}
	require.Len(t, shipper.shipped, 1)
	assert.Equal(t, int64(1), shipper.shipped[0].LogID)
}

func TestRecorder_UpdateDiffRendersInInsertionOrder(t *testing.T) {
	w := &fakeWriter{}
	r := audit.NewRecorder(w, enabledAudit())

	changes := audit.Changes{}.Set("title", "New title").Set("slug", "new-title").Set("active", false).Set("order", 4)
	stored, err := r.Log(context.Background(), audit.Entry{
		Action:     models.ActionUpdate,
		EntityType: strPtr("program"),
		EntityID:   i64Ptr(11),
		Metadata:   map[string]any{"changes": changes},
	})
	require.NoError(t, err)

	got := audit.Describe(stored.Action, stored.EntityType, stored.EntityID, stored.Metadata)
	assert.Equal(t, "Updated program #11 - changes: title: New title, slug: new-title, active: false and 1 more", got)
}

func TestChanges_MarshalJSON(t *testing.T) {
	c := audit.Changes{}.Set("z", 1).Set("a", "x").Set("z", 2)
	b, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Equal(t, `{"z":2,"a":"x"}`, string(b))

	empty, err := json.Marshal(audit.Changes(nil))
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(empty))
}

func TestDiffChanges(t *testing.T) {
	before := map[string]any{"name": "Jazz", "slug": "jazz", "description": nil}
	after := map[string]any{"name": "Jazz Nights", "slug": "jazz", "description": "Late shows"}

	got := audit.DiffChanges([]string{"name", "slug", "description", "missing"}, before, after)
	require.Len(t, got, 2)
	assert.Equal(t, "name", got[0].Field)
	assert.Equal(t, "Jazz Nights", got[0].Value)
	assert.Equal(t, "description", got[1].Field)

	assert.Empty(t, audit.DiffChanges([]string{"slug"}, before, after))
}
