package middleware

import (
	"context"
	"sync"

	"github.com/radiowave/station-backend/internal/audit"
	"github.com/radiowave/station-backend/internal/config"
	"github.com/radiowave/station-backend/internal/db/models"
)

// recordingWriter captures activity records in memory
type recordingWriter struct {
	mu   sync.Mutex
	logs []*models.AuditLog
}

func (w *recordingWriter) CreateAuditLog(_ context.Context, log *models.AuditLog) (*models.AuditLog, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	stored := *log
	stored.ID = int64(len(w.logs) + 1)
	w.logs = append(w.logs, &stored)
	return &stored, nil
}

func (w *recordingWriter) actions() []models.Action {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]models.Action, len(w.logs))
	for i, l := range w.logs {
		out[i] = l.Action
	}
	return out
}

func (w *recordingWriter) last() *models.AuditLog {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.logs) == 0 {
		return nil
	}
	return w.logs[len(w.logs)-1]
}

func newTestRecorder() (*audit.Recorder, *recordingWriter) {
	w := &recordingWriter{}
	return audit.NewRecorder(w, &config.AuditConfig{Enabled: true, Locale: "en"}), w
}

// fakeUsers is an in-memory UserLookup
type fakeUsers struct {
	users map[int64]*models.User
	err   error
}

func (f *fakeUsers) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.users[id], nil
}

func testUsers() *fakeUsers {
	return &fakeUsers{users: map[int64]*models.User{
		1: {ID: 1, Name: "Ana", Email: "ana@radio.test", Role: models.RoleAdmin},
		2: {ID: 2, Name: "Luis", Email: "luis@radio.test", Role: models.RoleEditor},
	}}
}
