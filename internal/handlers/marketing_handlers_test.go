package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitContactEmailsAdmin(t *testing.T) {
	env := newTestEnv(t)
	w := env.serve(env.h.SubmitContact, request{method: "POST", route: "/contact", body: map[string]string{
		"name":    "Ana Diaz",
		"email":   "ana@example.com",
		"subject": "Turnaround time",
		"message": "How fast is the full review?",
	}})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sent := env.mail.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"admin@erasreview.test"}, sent[0].To)
	assert.Equal(t, "[ERAS Review] Contact form message", sent[0].Subject)
	assert.Contains(t, sent[0].HTML, "How fast is the full review?")
}

func TestCreateInterviewRequestAnonymous(t *testing.T) {
	env := newTestEnv(t)
	env.mock.ExpectExec("INSERT INTO interview_requests").
		WithArgs(nil, "Sam Lee", "sam@example.com", "Pediatrics", "Weekends", nil, "PENDING", fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(21, 1))

	w := env.serve(env.h.CreateInterviewRequest, request{method: "POST", route: "/interview-requests", body: map[string]string{
		"name":           "Sam Lee",
		"email":          "Sam@Example.com",
		"specialty":      "Pediatrics",
		"preferredDates": "Weekends",
	}})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	req := decodeBody(t, w)["interviewRequest"].(map[string]interface{})
	assert.Equal(t, float64(21), req["id"])
	assert.Nil(t, req["userId"])

	sent := env.mail.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, []string{"sam@example.com"}, sent[0].To)
	assert.Equal(t, []string{"admin@erasreview.test"}, sent[1].To)
	assert.ElementsMatch(t, []string{
		"We received your ERAS Review interview request",
		"[ERAS Review] New mock interview request",
	}, subjects(sent))
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestCreateInterviewRequestSignedIn(t *testing.T) {
	env := newTestEnv(t)
	env.mock.ExpectExec("INSERT INTO interview_requests").
		WithArgs(int64(7), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(22, 1))

	w := env.serve(env.h.CreateInterviewRequest, request{method: "POST", route: "/interview-requests", userID: 7,
		body: map[string]string{"name": "Ana Diaz", "email": "ana@example.com", "specialty": "Internal Medicine"}})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	req := decodeBody(t, w)["interviewRequest"].(map[string]interface{})
	assert.Equal(t, float64(7), req["userId"])
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestMarkNotificationAsReadOfAnotherUser(t *testing.T) {
	env := newTestEnv(t)
	env.mock.ExpectExec("UPDATE notifications SET is_read = 1 WHERE id = \\? AND user_id = \\?").
		WithArgs(int64(3), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	w := env.serve(env.h.MarkNotificationAsRead, request{method: "PATCH", route: "/notifications/:id/read",
		path: "/notifications/3/read", userID: 7})

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func multipartFile(t *testing.T, name, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadFile(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartFile(t, "statement.exe", "MZ")
	w := env.serve(env.h.UploadFile, request{method: "POST", route: "/uploads", userID: 7, body: body.Bytes(),
		headers: map[string]string{"Content-Type": contentType}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body, contentType = multipartFile(t, "Statement.PDF", "%PDF-1.4")
	w = env.serve(env.h.UploadFile, request{method: "POST", route: "/uploads", userID: 7, body: body.Bytes(),
		headers: map[string]string{"Content-Type": contentType}})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	out := decodeBody(t, w)
	url := out["url"].(string)
	assert.True(t, strings.HasPrefix(url, "https://api.erasreview.test/uploads/"), url)
	assert.True(t, strings.HasSuffix(url, ".pdf"), url)
	assert.Equal(t, "Statement.PDF", out["fileName"])

	saved, err := os.ReadFile(filepath.Join(env.h.UploadDir, filepath.Base(url)))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(saved))
}
