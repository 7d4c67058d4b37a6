package admin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiowave/station-backend/internal/auth"
	"github.com/radiowave/station-backend/internal/config"
	"github.com/radiowave/station-backend/internal/db/models"
	"github.com/radiowave/station-backend/internal/middleware"
)

var userSQLCols = []string{"user_id", "name", "last_name", "email", "password_hash", "role", "created_at", "updated_at"}

const testPassword = "on-air-since-1994"

var testPasswordHash = func() string {
	h, err := auth.HashPassword(testPassword)
	if err != nil {
		panic(err)
	}
	return h
}()

func sampleUserRow() *sqlmock.Rows {
	return sqlmock.NewRows(userSQLCols).
		AddRow(int64(3), "Luis", "Pérez", "luis@radio.test", testPasswordHash, models.RoleEditor, time.Now(), time.Now())
}

func newAuthRouter(t *testing.T, revoker auth.Revoker, claims *auth.Claims) (sqlmock.Sqlmock, *gin.Engine, *memoryWriter) {
	t.Helper()
	db, mock := newMockDB(t)
	recorder, writer := newTestRecorder()
	h := NewAuthHandlers(&config.AuthConfig{TokenTTL: time.Hour}, db, recorder, revoker)

	r := gin.New()
	r.POST("/auth/login", h.LoginHandler())

	authed := r.Group("/auth")
	authed.Use(func(c *gin.Context) {
		if claims != nil {
			c.Set(middleware.ClaimsKey, claims)
			c.Set(middleware.UserIDKey, claims.UserID)
			c.Set(middleware.UserKey, &models.User{ID: claims.UserID, Email: claims.Email, Role: claims.Role})
		}
		c.Next()
	})
	authed.POST("/logout", h.LogoutHandler())
	authed.GET("/me", h.MeHandler())
	return mock, r, writer
}

// ---------------------------------------------------------------------------
// LoginHandler
// ---------------------------------------------------------------------------

func TestLoginHandler_Success(t *testing.T) {
	mock, r, writer := newAuthRouter(t, nil, nil)
	mock.ExpectQuery(`FROM users WHERE LOWER\(email\) = LOWER\(\$1\)`).
		WithArgs("luis@radio.test").
		WillReturnRows(sampleUserRow())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		jsonBody(map[string]string{"email": " Luis@Radio.test ", "password": testPassword}))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "studio-app/2.1")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := getJSON(w)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)

	claims, err := auth.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, int64(3), claims.UserID)
	assert.Equal(t, models.RoleEditor, claims.Role)

	user := body["user"].(map[string]interface{})
	assert.NotContains(t, user, "password_hash")

	recorded := writer.recorded()
	require.Len(t, recorded, 1)
	assert.Equal(t, models.ActionLogin, recorded[0].Action)
	require.NotNil(t, recorded[0].UserID)
	assert.Equal(t, int64(3), *recorded[0].UserID)
	assert.Equal(t, "Luis Pérez", metadataString(t, recorded[0], "name"))
	require.NotNil(t, recorded[0].UserAgent)
	assert.Equal(t, "studio-app/2.1", *recorded[0].UserAgent)
}

func TestLoginHandler_WrongPassword(t *testing.T) {
	mock, r, writer := newAuthRouter(t, nil, nil)
	mock.ExpectQuery("FROM users").WillReturnRows(sampleUserRow())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		jsonBody(map[string]string{"email": "luis@radio.test", "password": "wrong-password"}))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	recorded := writer.recorded()
	require.Len(t, recorded, 1)
	assert.Equal(t, models.ActionLoginFailed, recorded[0].Action)
	assert.Equal(t, "invalid password", metadataString(t, recorded[0], "reason"))
	require.NotNil(t, recorded[0].EntityID)
	assert.Equal(t, int64(3), *recorded[0].EntityID)
}

func TestLoginHandler_UnknownEmail(t *testing.T) {
	mock, r, writer := newAuthRouter(t, nil, nil)
	mock.ExpectQuery("FROM users").WillReturnRows(sqlmock.NewRows(userSQLCols))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		jsonBody(map[string]string{"email": "ghost@radio.test", "password": "whatever-it-is"}))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	recorded := writer.recorded()
	require.Len(t, recorded, 1)
	assert.Equal(t, models.ActionLoginFailed, recorded[0].Action)
	assert.Nil(t, recorded[0].UserID)
	assert.Equal(t, "ghost@radio.test", metadataString(t, recorded[0], "email"))
}

func TestLoginHandler_BadRequest(t *testing.T) {
	_, r, writer := newAuthRouter(t, nil, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", jsonBody(map[string]string{"email": "not-an-email"}))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, writer.recorded())
}

func TestLoginHandler_DBError(t *testing.T) {
	mock, r, _ := newAuthRouter(t, nil, nil)
	mock.ExpectQuery("FROM users").WillReturnError(errors.New("db down"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		jsonBody(map[string]string{"email": "luis@radio.test", "password": testPassword}))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// ---------------------------------------------------------------------------
// LogoutHandler / MeHandler
// ---------------------------------------------------------------------------

func TestLogoutHandler_RevokesToken(t *testing.T) {
	token, err := auth.GenerateJWT(3, "luis@radio.test", models.RoleEditor, time.Hour)
	require.NoError(t, err)
	claims, err := auth.ValidateJWT(token)
	require.NoError(t, err)

	revoker := auth.NewMemoryRevoker()
	_, r, writer := newAuthRouter(t, revoker, claims)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	require.Equal(t, http.StatusOK, w.Code)
	revoked, err := revoker.IsRevoked(context.Background(), claims.ID)
	require.NoError(t, err)
	assert.True(t, revoked)

	recorded := writer.recorded()
	require.Len(t, recorded, 1)
	assert.Equal(t, models.ActionLogout, recorded[0].Action)
	require.NotNil(t, recorded[0].UserID)
	assert.Equal(t, int64(3), *recorded[0].UserID)
}

type failingRevoker struct{}

func (failingRevoker) Revoke(context.Context, string, time.Time) error { return errors.New("redis down") }
func (failingRevoker) IsRevoked(context.Context, string) (bool, error) { return false, nil }

func TestLogoutHandler_RevokeError(t *testing.T) {
	token, _ := auth.GenerateJWT(3, "luis@radio.test", models.RoleEditor, time.Hour)
	claims, _ := auth.ValidateJWT(token)
	_, r, writer := newAuthRouter(t, failingRevoker{}, claims)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, writer.recorded())
}

func TestLogoutHandler_NoSession(t *testing.T) {
	_, r, _ := newAuthRouter(t, auth.NewMemoryRevoker(), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMeHandler(t *testing.T) {
	_, r, _ := newAuthRouter(t, nil, &auth.Claims{UserID: 3, Email: "luis@radio.test", Role: models.RoleEditor})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/me", nil))

	require.Equal(t, http.StatusOK, w.Code)
	user := getJSON(w)["user"].(map[string]interface{})
	assert.Equal(t, float64(3), user["user_id"])
}
