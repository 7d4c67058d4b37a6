package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/radiowave/station-backend/internal/audit"
	"github.com/radiowave/station-backend/internal/auth"
	"github.com/radiowave/station-backend/internal/config"
	"github.com/radiowave/station-backend/internal/db/models"
	"github.com/radiowave/station-backend/internal/middleware"
)

func TestMain(m *testing.M) {
	// GenerateJWT in the login tests reads the secret once
	os.Setenv(auth.JWTSecretEnv, "test-admin-jwt-secret-that-is-32chars!!")
	gin.SetMode(gin.TestMode)
	if err := RegisterValidators(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// ---------------------------------------------------------------------------
// Test setup helpers
// ---------------------------------------------------------------------------

// memoryWriter stores activity records in memory so tests can assert on what
// handlers recorded without interleaving INSERT expectations into sqlmock.
type memoryWriter struct {
	mu   sync.Mutex
	logs []*models.AuditLog
}

func (w *memoryWriter) CreateAuditLog(_ context.Context, log *models.AuditLog) (*models.AuditLog, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	stored := *log
	stored.ID = int64(len(w.logs) + 1)
	w.logs = append(w.logs, &stored)
	return &stored, nil
}

func (w *memoryWriter) recorded() []*models.AuditLog {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*models.AuditLog(nil), w.logs...)
}

func newTestRecorder() (*audit.Recorder, *memoryWriter) {
	w := &memoryWriter{}
	return audit.NewRecorder(w, &config.AuditConfig{Enabled: true, Locale: "en"}), w
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

// asUser injects an authenticated user the way AuthMiddleware does
func asUser(user *models.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		if user != nil {
			c.Set(middleware.UserKey, user)
			c.Set(middleware.UserIDKey, user.ID)
		}
		c.Next()
	}
}

var testAdmin = &models.User{ID: 1, Name: "Ana", Email: "ana@radio.test", Role: models.RoleAdmin}

func jsonBody(v interface{}) *bytes.Buffer {
	b, _ := json.Marshal(v)
	return bytes.NewBuffer(b)
}

func getJSON(resp *httptest.ResponseRecorder) map[string]interface{} {
	var m map[string]interface{}
	json.Unmarshal(resp.Body.Bytes(), &m)
	return m
}

func metadataString(t *testing.T, log *models.AuditLog, key string) string {
	t.Helper()
	raw, ok := log.Metadata.Field(key)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return string(raw)
	}
	return s
}
