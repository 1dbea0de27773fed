package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/residencyreview/eras-review-api/internal/auth"
	"github.com/residencyreview/eras-review-api/internal/blog"
	"github.com/residencyreview/eras-review-api/internal/cache"
	"github.com/residencyreview/eras-review-api/internal/email"
	"github.com/residencyreview/eras-review-api/internal/models"
	"github.com/residencyreview/eras-review-api/internal/payments"
	"github.com/residencyreview/eras-review-api/internal/seo"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var fixedNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

type recordingSender struct {
	mu   sync.Mutex
	sent []email.Message
}

func (r *recordingSender) Send(_ context.Context, msg email.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingSender) messages() []email.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]email.Message(nil), r.sent...)
}

type testEnv struct {
	h    *Handlers
	mock sqlmock.Sqlmock
	mail *recordingSender
	logs *test.Hook
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	db := sqlx.NewDb(sqlDB, "mysql")

	sender := &recordingSender{}
	mailer, err := email.NewMailer(sender, "ERAS Review", "https://erasreview.test", "admin@erasreview.test")
	require.NoError(t, err)

	log, hook := test.NewNullLogger()
	now := func() time.Time { return fixedNow }

	h := &Handlers{
		DB:         db,
		Tokens:     auth.NewManager("test-secret", time.Hour),
		Mailer:     mailer,
		Reconciler: &payments.Reconciler{DB: db, Log: log, Now: now},
		Posts:      &blog.Store{DB: db},
		Cache:      cache.Noop{},
		Site:       seo.Site{Name: "ERAS Review", URL: "https://erasreview.test"},
		Log:        log,

		FrontendURL:   "https://erasreview.test",
		BaseURL:       "https://api.erasreview.test",
		UploadDir:     t.TempDir(),
		WebhookSecret: "whsec_test",

		Now: now,
	}
	return &testEnv{h: h, mock: mock, mail: sender, logs: hook}
}

// request is one call against a single mounted handler.
type request struct {
	method  string
	route   string
	path    string
	body    interface{}
	userID  int64
	role    string
	headers map[string]string
}

func (e *testEnv) serve(handler gin.HandlerFunc, req request) *httptest.ResponseRecorder {
	r := gin.New()
	r.Handle(req.method, req.route, func(c *gin.Context) {
		if req.userID != 0 {
			c.Set("userID", req.userID)
			role := req.role
			if role == "" {
				role = models.RoleApplicant
			}
			c.Set("userRole", role)
		}
		c.Next()
	}, handler)

	var body *bytes.Reader
	switch b := req.body.(type) {
	case nil:
		body = bytes.NewReader(nil)
	case string:
		body = bytes.NewReader([]byte(b))
	case []byte:
		body = bytes.NewReader(b)
	default:
		raw, _ := json.Marshal(b)
		body = bytes.NewReader(raw)
	}

	path := req.path
	if path == "" {
		path = req.route
	}
	httpReq := httptest.NewRequest(req.method, path, body)
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httpReq)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func subjects(msgs []email.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Subject)
	}
	return out
}

func hasSubject(msgs []email.Message, fragment string) bool {
	for _, m := range msgs {
		if strings.Contains(m.Subject, fragment) {
			return true
		}
	}
	return false
}

// --- Row builders ---

var userCols = []string{"id", "role", "status", "email", "password_hash", "full_name", "phone_number",
	"medical_school", "graduation_year", "specialty", "stripe_customer_id", "verification_code",
	"verification_expiry", "created_at", "updated_at"}

func userRows(id int64, status, hash string, code interface{}, expiry interface{}) *sqlmock.Rows {
	return sqlmock.NewRows(userCols).AddRow(id, models.RoleApplicant, status, "ana@example.com", hash,
		"Ana Diaz", nil, nil, nil, nil, nil, code, expiry, fixedNow, fixedNow)
}

var applicationCols = []string{"id", "user_id", "title", "specialty", "cycle_year", "status", "service_tier",
	"notes", "submitted_at", "credit_source", "reviewed_at", "completed_at", "created_at", "updated_at"}

// addApplicationRow charges submitted applications to a purchase.
func addApplicationRow(rows *sqlmock.Rows, id, userID int64, status models.ApplicationStatus, submittedAt interface{}) *sqlmock.Rows {
	var source interface{}
	if submittedAt != nil {
		source = models.CreditSourcePurchase
	}
	return rows.AddRow(id, userID, "Internal Medicine 2027", "Internal Medicine", 2027, string(status), nil,
		nil, submittedAt, source, nil, nil, fixedNow, fixedNow)
}

func applicationRows(id, userID int64, status models.ApplicationStatus, submittedAt interface{}) *sqlmock.Rows {
	return addApplicationRow(sqlmock.NewRows(applicationCols), id, userID, status, submittedAt)
}
