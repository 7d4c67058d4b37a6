package admin

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiowave/station-backend/internal/db/models"
)

var categorySQLCols = []string{"category_id", "kind", "name", "slug", "description", "created_at", "updated_at"}

func sampleCategoryRow() *sqlmock.Rows {
	return sqlmock.NewRows(categorySQLCols).
		AddRow(int64(4), "news", "Local News", "local-news", nil, time.Now(), time.Now())
}

func newCategoryRouter(t *testing.T) (sqlmock.Sqlmock, *gin.Engine, *memoryWriter) {
	t.Helper()
	db, mock := newMockDB(t)
	recorder, writer := newTestRecorder()
	h := NewCategoryHandlers(db, recorder)

	r := gin.New()
	r.Use(asUser(testAdmin))
	r.GET("/categories", h.ListCategoriesHandler())
	r.GET("/categories/:id", h.GetCategoryHandler())
	r.POST("/categories", h.CreateCategoryHandler())
	r.PUT("/categories/:id", h.UpdateCategoryHandler())
	r.DELETE("/categories/:id", h.DeleteCategoryHandler())
	return mock, r, writer
}

func TestListCategoriesHandler(t *testing.T) {
	mock, r, _ := newCategoryRouter(t)
	mock.ExpectQuery(`FROM categories WHERE kind = \$1 ORDER BY name`).
		WithArgs("news").
		WillReturnRows(sampleCategoryRow())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/categories?kind=news", nil))

	require.Equal(t, http.StatusOK, w.Code)
	categories := getJSON(w)["categories"].([]interface{})
	assert.Len(t, categories, 1)
}

func TestListCategoriesHandler_BadKind(t *testing.T) {
	_, r, _ := newCategoryRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/categories?kind=sports", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetCategoryHandler_NotFound(t *testing.T) {
	mock, r, _ := newCategoryRouter(t)
	mock.ExpectQuery("FROM categories WHERE category_id").
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows(categorySQLCols))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/categories/9", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateCategoryHandler(t *testing.T) {
	mock, r, writer := newCategoryRouter(t)
	mock.ExpectQuery("INSERT INTO categories").
		WithArgs("news", "Local News", "local-news", nil).
		WillReturnRows(sampleCategoryRow())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/categories",
		jsonBody(map[string]string{"kind": "news", "name": "  Local News "}))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	recorded := writer.recorded()
	require.Len(t, recorded, 1)
	got := recorded[0]
	assert.Equal(t, models.ActionCreate, got.Action)
	require.NotNil(t, got.EntityType)
	assert.Equal(t, "news_category", *got.EntityType)
	require.NotNil(t, got.EntityID)
	assert.Equal(t, int64(4), *got.EntityID)
	assert.Equal(t, "/categories", metadataString(t, got, "path"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCategoryHandler_InvalidKind(t *testing.T) {
	_, r, writer := newCategoryRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/categories",
		jsonBody(map[string]string{"kind": "sports", "name": "Football"}))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, getJSON(w)["error"], "category_kind")
	assert.Empty(t, writer.recorded())
}

func TestCreateCategoryHandler_DBError(t *testing.T) {
	mock, r, writer := newCategoryRouter(t)
	mock.ExpectQuery("INSERT INTO categories").WillReturnError(errors.New("duplicate key"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/categories",
		jsonBody(map[string]string{"kind": "podcast", "name": "Jazz Hour"}))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, writer.recorded(), "a failed mutation is not recorded")
}

func TestUpdateCategoryHandler_RecordsOrderedDiff(t *testing.T) {
	mock, r, writer := newCategoryRouter(t)
	mock.ExpectQuery("FROM categories WHERE category_id").
		WithArgs(int64(4)).
		WillReturnRows(sampleCategoryRow())
	mock.ExpectQuery("UPDATE categories").
		WithArgs(int64(4), "Regional News", "local-news", "Around the county").
		WillReturnRows(sqlmock.NewRows(categorySQLCols).
			AddRow(int64(4), "news", "Regional News", "local-news", "Around the county", time.Now(), time.Now()))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/categories/4", jsonBody(map[string]string{
		"description": "Around the county",
		"name":        "Regional News",
	}))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	recorded := writer.recorded()
	require.Len(t, recorded, 1)
	got := recorded[0]
	assert.Equal(t, models.ActionUpdate, got.Action)
	changes, ok := got.Metadata.Field("changes")
	require.True(t, ok)
	// slug did not change, and field order follows the diff, not the request body
	assert.Equal(t, `{"name":"Regional News","description":"Around the county"}`, string(changes))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCategoryHandler_NotFound(t *testing.T) {
	mock, r, writer := newCategoryRouter(t)
	mock.ExpectQuery("FROM categories WHERE category_id").
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows(categorySQLCols))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/categories/4", jsonBody(map[string]string{"name": "X"}))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, writer.recorded())
}

func TestDeleteCategoryHandler(t *testing.T) {
	mock, r, writer := newCategoryRouter(t)
	mock.ExpectQuery("FROM categories WHERE category_id").
		WithArgs(int64(4)).
		WillReturnRows(sampleCategoryRow())
	mock.ExpectExec("DELETE FROM categories").
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/categories/4", nil))

	require.Equal(t, http.StatusOK, w.Code)
	recorded := writer.recorded()
	require.Len(t, recorded, 1)
	assert.Equal(t, models.ActionDelete, recorded[0].Action)
	assert.Equal(t, "Local News", metadataString(t, recorded[0], "name"))
}

func TestDeleteCategoryHandler_BadID(t *testing.T) {
	_, r, _ := newCategoryRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/categories/zero", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Local News":        "local-news",
		"  Jazz & Blues!! ": "jazz-blues",
		"Música en Vivo":    "música-en-vivo",
		"---":               "",
		"Top 40 -- Weekly":  "top-40-weekly",
	}
	for in, want := range tests {
		assert.Equal(t, want, slugify(in), in)
	}
}
