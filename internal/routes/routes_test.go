package routes

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/residencyreview/eras-review-api/internal/auth"
	"github.com/residencyreview/eras-review-api/internal/cache"
	"github.com/residencyreview/eras-review-api/internal/handlers"
	"github.com/residencyreview/eras-review-api/internal/middleware"
	"github.com/residencyreview/eras-review-api/internal/seo"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(t *testing.T, limiter *middleware.RateLimiter) *gin.Engine {
	t.Helper()
	return newRouterWithOptions(t, Options{Limiter: limiter})
}

func newRouterWithOptions(t *testing.T, opts Options) *gin.Engine {
	t.Helper()
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	log, _ := test.NewNullLogger()

	h := &handlers.Handlers{
		DB:     sqlx.NewDb(db, "mysql"),
		Tokens: auth.NewManager("test-secret", time.Hour),
		Cache:  cache.Noop{},
		Site:   seo.Site{Name: "ERAS Review", URL: "https://erasreview.test"},
		Log:    log,
	}
	opts.AllowedOrigin = "https://erasreview.test"
	opts.Log = log
	return SetupRouter(h, opts)
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	return doFrom(r, method, path, body, "")
}

// doFrom sends the request through a proxy claiming forwardedFor as the client.
// httptest requests always come from 192.0.2.1.
func doFrom(r *gin.Engine, method, path, body, forwardedFor string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPublicRoutes(t *testing.T) {
	r := newRouter(t, nil)

	w := do(r, "GET", "/v1/ping", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong!"}`, w.Body.String())

	w = do(r, "GET", "/robots.txt", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Sitemap: https://erasreview.test/sitemap.xml")

	w = do(r, "GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	r := newRouter(t, nil)
	for _, path := range []string{"/v1/me", "/v1/applications", "/v1/dashboard", "/v1/admin/stats", "/v1/admin/applications"} {
		w := do(r, "GET", path, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestAuthRoutesAreRateLimited(t *testing.T) {
	r := newRouter(t, middleware.NewRateLimiter(0.001, 1))

	first := do(r, "POST", "/v1/auth/login", `{}`)
	assert.Equal(t, http.StatusBadRequest, first.Code)

	second := do(r, "POST", "/v1/auth/login", `{}`)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))
}

func TestVerifyEmailIsRateLimited(t *testing.T) {
	r := newRouter(t, middleware.NewRateLimiter(0.001, 1))

	codes := map[int]int{}
	for i := 0; i < 20; i++ {
		codes[do(r, "POST", "/v1/auth/verify-email", `{}`).Code]++
	}
	assert.Equal(t, map[int]int{http.StatusBadRequest: 1, http.StatusTooManyRequests: 19}, codes)
}

func TestRotatingForwardedForSharesOneBucket(t *testing.T) {
	r := newRouter(t, middleware.NewRateLimiter(0.001, 1))

	first := doFrom(r, "POST", "/v1/auth/login", `{}`, "203.0.113.1")
	assert.Equal(t, http.StatusBadRequest, first.Code)

	second := doFrom(r, "POST", "/v1/auth/login", `{}`, "203.0.113.2")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestTrustedProxyForwardsClientIP(t *testing.T) {
	r := newRouterWithOptions(t, Options{
		Limiter:        middleware.NewRateLimiter(0.001, 1),
		TrustedProxies: []string{"192.0.2.1"},
	})

	assert.Equal(t, http.StatusBadRequest, doFrom(r, "POST", "/v1/auth/login", `{}`, "203.0.113.1").Code)
	assert.Equal(t, http.StatusBadRequest, doFrom(r, "POST", "/v1/auth/login", `{}`, "203.0.113.2").Code)
	assert.Equal(t, http.StatusTooManyRequests, doFrom(r, "POST", "/v1/auth/login", `{}`, "203.0.113.1").Code)
}

func TestInvalidTrustedProxyTrustsNone(t *testing.T) {
	r := newRouterWithOptions(t, Options{
		Limiter:        middleware.NewRateLimiter(0.001, 1),
		TrustedProxies: []string{"not-an-ip"},
	})

	assert.Equal(t, http.StatusBadRequest, doFrom(r, "POST", "/v1/auth/login", `{}`, "203.0.113.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, doFrom(r, "POST", "/v1/auth/login", `{}`, "203.0.113.2").Code)
}

func TestCORSPreflight(t *testing.T) {
	r := newRouter(t, nil)
	req := httptest.NewRequest("OPTIONS", "/v1/applications", nil)
	req.Header.Set("Origin", "https://erasreview.test")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "https://erasreview.test", w.Header().Get("Access-Control-Allow-Origin"))
}
