package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/residencyreview/eras-review-api/internal/auth"
	"github.com/residencyreview/eras-review-api/internal/models"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "mysql"), mock
}

func whoAmI(c *gin.Context) {
	userID, _ := c.Get("userID")
	role, _ := c.Get("userRole")
	c.JSON(http.StatusOK, gin.H{"userID": userID, "role": role})
}

func serve(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	db, mock := newMockDB(t)
	tokens := auth.NewManager("test-secret", time.Hour)
	token, err := tokens.GenerateToken(7, models.RoleApplicant)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", AuthMiddleware(db, tokens), whoAmI)

	assert.Equal(t, http.StatusUnauthorized, serve(r, "GET", "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "GET", "/me", "Token "+token).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "GET", "/me", "Bearer not-a-jwt").Code)

	mock.ExpectQuery("SELECT status FROM users WHERE id = \\?").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(models.UserStatusActive))
	w := serve(r, "GET", "/me", "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"userID":7,"role":"applicant"}`, w.Body.String())

	mock.ExpectQuery("SELECT status FROM users").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(models.UserStatusSuspended))
	assert.Equal(t, http.StatusForbidden, serve(r, "GET", "/me", "Bearer "+token).Code)

	mock.ExpectQuery("SELECT status FROM users").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"status"}))
	assert.Equal(t, http.StatusUnauthorized, serve(r, "GET", "/me", "Bearer "+token).Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOptionalAuth(t *testing.T) {
	tokens := auth.NewManager("test-secret", time.Hour)
	token, err := tokens.GenerateToken(3, models.RoleApplicant)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/x", OptionalAuth(tokens), whoAmI)

	assert.JSONEq(t, `{"userID":null,"role":null}`, serve(r, "GET", "/x", "").Body.String())
	assert.JSONEq(t, `{"userID":null,"role":null}`, serve(r, "GET", "/x", "Bearer junk").Body.String())
	assert.JSONEq(t, `{"userID":3,"role":"applicant"}`, serve(r, "GET", "/x", "Bearer "+token).Body.String())
}

func TestAdminMiddleware(t *testing.T) {
	db, mock := newMockDB(t)

	r := gin.New()
	r.GET("/admin", func(c *gin.Context) {
		c.Set("userID", int64(9))
		c.Next()
	}, AdminMiddleware(db), whoAmI)
	r.GET("/no-auth", AdminMiddleware(db), whoAmI)

	assert.Equal(t, http.StatusUnauthorized, serve(r, "GET", "/no-auth", "").Code)

	mock.ExpectQuery("SELECT role FROM users WHERE id = \\?").
		WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow(models.RoleApplicant))
	assert.Equal(t, http.StatusForbidden, serve(r, "GET", "/admin", "").Code)

	mock.ExpectQuery("SELECT role FROM users").
		WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow(models.RoleAdmin))
	w := serve(r, "GET", "/admin", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"userID":9,"role":"admin"}`, w.Body.String())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCORSMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware("https://erasreview.test"))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	w := serve(r, http.MethodOptions, "/ping", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://erasreview.test", w.Header().Get("Access-Control-Allow-Origin"))

	w = serve(r, http.MethodGet, "/ping", "")
	assert.Equal(t, "pong", w.Body.String())
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	r := gin.New()
	r.POST("/login", rl.Handler(), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, "POST", "/login", "").Code)
	assert.Equal(t, http.StatusOK, serve(r, "POST", "/login", "").Code)
	w := serve(r, "POST", "/login", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	assert.True(t, rl.Allow("10.0.0.2"), "other clients have their own bucket")
	assert.Equal(t, 0, rl.Cleanup(time.Hour))
	assert.Equal(t, 2, rl.Cleanup(-time.Second))
}

func TestRequestLoggerAndMetrics(t *testing.T) {
	log, hook := test.NewNullLogger()
	r := gin.New()
	r.Use(RequestLogger(log), Metrics())
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	serve(r, "GET", "/items/4", "")

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "request rejected", entry.Message)
	assert.Equal(t, 404, entry.Data["status"])
	assert.Equal(t, "/items/4", entry.Data["path"])
}
