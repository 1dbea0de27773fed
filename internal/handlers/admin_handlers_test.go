package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/residencyreview/eras-review-api/internal/ai"
	"github.com/residencyreview/eras-review-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lockAdminApplication = "FROM applications a\\s+JOIN users u ON u.id = a.user_id WHERE a.id = \\? FOR UPDATE"

var adminApplicationCols = append(append([]string{}, applicationCols...), "applicant_name", "applicant_email")

func adminApplicationRows(id, userID int64, status models.ApplicationStatus) *sqlmock.Rows {
	return sqlmock.NewRows(adminApplicationCols).AddRow(id, userID, "Internal Medicine 2027", "Internal Medicine", 2027,
		string(status), nil, nil, fixedNow, models.CreditSourcePurchase, nil, nil, fixedNow, fixedNow, "Ana Diaz", "ana@example.com")
}

func TestGetAdminStats(t *testing.T) {
	env := newTestEnv(t)
	env.mock.ExpectQuery("FROM users WHERE role = \\?").
		WithArgs(models.UserStatusActive, fixedNow.AddDate(0, 0, -30), models.RoleApplicant).
		WillReturnRows(sqlmock.NewRows([]string{"total", "active", "recent"}).AddRow(12, 10, 4))
	env.mock.ExpectQuery("SELECT status, COUNT\\(\\*\\) AS n FROM applications GROUP BY status").
		WillReturnRows(sqlmock.NewRows([]string{"status", "n"}).
			AddRow("DRAFT", 5).
			AddRow("SUBMITTED", 3).
			AddRow("COMPLETED", 2))
	env.mock.ExpectQuery("FROM subscriptions WHERE status IN").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	env.mock.ExpectQuery("FROM payments WHERE status IN").
		WithArgs(models.PaymentRefunded, models.PaymentSucceeded, models.PaymentRefunded).
		WillReturnRows(sqlmock.NewRows([]string{"gross", "refunded"}).AddRow(int64(89700), int64(29900)))
	env.mock.ExpectQuery("FROM blog_posts WHERE status = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(8))
	env.mock.ExpectQuery("FROM interview_requests WHERE status = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	w := env.serve(env.h.GetAdminStats, request{method: "GET", route: "/admin/stats", userID: 1, role: models.RoleAdmin})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, float64(12), body["totalUsers"])
	assert.Equal(t, float64(3), body["pendingReviews"])
	assert.Equal(t, float64(89700), body["grossCents"])
	assert.Equal(t, float64(29900), body["refundedCents"])
	assert.Equal(t, float64(59800), body["revenueCents"])
	byStatus := body["applicationsByStatus"].(map[string]interface{})
	assert.Equal(t, float64(0), byStatus["IN_REVIEW"])
	assert.Equal(t, float64(5), byStatus["DRAFT"])
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestAdminMarkReviewedEmailsApplicant(t *testing.T) {
	env := newTestEnv(t)
	env.mock.ExpectBegin()
	env.mock.ExpectQuery(lockAdminApplication).
		WithArgs(int64(5)).
		WillReturnRows(adminApplicationRows(5, 7, models.StatusSubmitted))
	env.mock.ExpectExec("UPDATE applications SET status = \\?, reviewed_at = \\?, completed_at = \\?, updated_at = \\? WHERE id = \\?").
		WithArgs(string(models.StatusReviewed), fixedNow, nil, fixedNow, int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectExec("INSERT INTO notifications").
		WithArgs(int64(7), sqlmock.AnyArg(), "/dashboard/applications/5", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	env.mock.ExpectCommit()

	w := env.serve(env.h.AdminChangeApplicationStatus, request{method: "PATCH", route: "/admin/applications/:id/status",
		path: "/admin/applications/5/status", userID: 1, role: models.RoleAdmin, body: map[string]string{"status": "REVIEWED"}})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	app := decodeBody(t, w)["application"].(map[string]interface{})
	assert.Equal(t, "REVIEWED", app["status"])
	assert.Equal(t, "Ana Diaz", app["applicantName"])

	sent := env.mail.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"ana@example.com"}, sent[0].To)
	assert.Equal(t, "Your ERAS Review feedback is ready", sent[0].Subject)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestAdminReturnForRevisionsSendsNoEmail(t *testing.T) {
	env := newTestEnv(t)
	env.mock.ExpectBegin()
	env.mock.ExpectQuery(lockAdminApplication).
		WillReturnRows(adminApplicationRows(5, 7, models.StatusSubmitted))
	env.mock.ExpectExec("UPDATE applications SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectExec("INSERT INTO notifications").
		WillReturnResult(sqlmock.NewResult(1, 1))
	env.mock.ExpectCommit()

	w := env.serve(env.h.AdminChangeApplicationStatus, request{method: "PATCH", route: "/admin/applications/:id/status",
		path: "/admin/applications/5/status", userID: 1, role: models.RoleAdmin, body: map[string]string{"status": "IN_REVIEW"}})

	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Empty(t, env.mail.messages())
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestAdminCannotReviewDraft(t *testing.T) {
	env := newTestEnv(t)
	env.mock.ExpectBegin()
	env.mock.ExpectQuery(lockAdminApplication).
		WillReturnRows(adminApplicationRows(5, 7, models.StatusDraft))
	env.mock.ExpectRollback()

	w := env.serve(env.h.AdminChangeApplicationStatus, request{method: "PATCH", route: "/admin/applications/:id/status",
		path: "/admin/applications/5/status", userID: 1, role: models.RoleAdmin, body: map[string]string{"status": "REVIEWED"}})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestAdminCreateReviewRejectsForeignDocument(t *testing.T) {
	env := newTestEnv(t)
	env.mock.ExpectQuery("SELECT user_id, title FROM applications WHERE id = \\?").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "title"}).AddRow(7, "IM 2027"))
	env.mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM documents WHERE id = \\? AND application_id = \\?").
		WithArgs(int64(40), int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	w := env.serve(env.h.AdminCreateReview, request{method: "POST", route: "/admin/applications/:id/reviews",
		path: "/admin/applications/5/reviews", userID: 1, role: models.RoleAdmin, body: map[string]interface{}{
			"documentId": 40,
			"summary":    "Strong narrative",
			"feedback":   "Tighten the opening paragraph.",
		}})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestAdminCreatePublishedReviewNotifies(t *testing.T) {
	env := newTestEnv(t)
	env.mock.ExpectQuery("SELECT user_id, title FROM applications WHERE id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "title"}).AddRow(7, "IM 2027"))
	env.mock.ExpectBegin()
	env.mock.ExpectExec("INSERT INTO reviews").
		WillReturnResult(sqlmock.NewResult(12, 1))
	env.mock.ExpectExec("INSERT INTO notifications").
		WithArgs(int64(7), sqlmock.AnyArg(), "/dashboard/applications/5", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	env.mock.ExpectCommit()

	w := env.serve(env.h.AdminCreateReview, request{method: "POST", route: "/admin/applications/:id/reviews",
		path: "/admin/applications/5/reviews", userID: 1, role: models.RoleAdmin, body: map[string]interface{}{
			"summary":  "Strong narrative",
			"feedback": "Tighten the opening paragraph.",
			"score":    8,
			"publish":  true,
		}})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	review := decodeBody(t, w)["review"].(map[string]interface{})
	assert.Equal(t, models.ReviewStatusPublished, review["status"])
	assert.Equal(t, float64(1), review["reviewerId"])
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestAdminUpdateUser(t *testing.T) {
	t.Run("self", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.serve(env.h.AdminUpdateUser, request{method: "PATCH", route: "/admin/users/:id", path: "/admin/users/1",
			userID: 1, role: models.RoleAdmin, body: map[string]string{"status": "suspended"}})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		env := newTestEnv(t)
		env.mock.ExpectExec("UPDATE users SET status = \\?, updated_at = \\? WHERE id = \\?").
			WithArgs("suspended", fixedNow, int64(99)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		w := env.serve(env.h.AdminUpdateUser, request{method: "PATCH", route: "/admin/users/:id", path: "/admin/users/99",
			userID: 1, role: models.RoleAdmin, body: map[string]string{"status": "suspended"}})
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("bad role", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.serve(env.h.AdminUpdateUser, request{method: "PATCH", route: "/admin/users/:id", path: "/admin/users/9",
			userID: 1, role: models.RoleAdmin, body: map[string]string{"role": "owner"}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAdminScheduleInterviewNeedsTime(t *testing.T) {
	env := newTestEnv(t)
	w := env.serve(env.h.AdminUpdateInterviewRequest, request{method: "PATCH", route: "/admin/interview-requests/:id",
		path: "/admin/interview-requests/3", userID: 1, role: models.RoleAdmin, body: map[string]string{"status": "SCHEDULED"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type fakeInsights struct {
	answer string
	tokens int
	err    error
	asked  []string
}

func (f *fakeInsights) Ask(_ context.Context, question string) (string, int, error) {
	f.asked = append(f.asked, question)
	return f.answer, f.tokens, f.err
}

func TestAdminInsights(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.serve(env.h.AdminInsights, request{method: "POST", route: "/admin/insights", userID: 1,
			role: models.RoleAdmin, body: map[string]string{"question": "How many users?"}})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("disabled", func(t *testing.T) {
		env := newTestEnv(t)
		env.h.Insights = &fakeInsights{err: ai.ErrInsightsDisabled}
		w := env.serve(env.h.AdminInsights, request{method: "POST", route: "/admin/insights", userID: 1,
			role: models.RoleAdmin, body: map[string]string{"question": "How many users?"}})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("assistant error", func(t *testing.T) {
		env := newTestEnv(t)
		env.h.Insights = &fakeInsights{err: errors.New("quota")}
		w := env.serve(env.h.AdminInsights, request{method: "POST", route: "/admin/insights", userID: 1,
			role: models.RoleAdmin, body: map[string]string{"question": "How many users?"}})
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("answers and records history", func(t *testing.T) {
		env := newTestEnv(t)
		fake := &fakeInsights{answer: "There are 12 applicants.", tokens: 120}
		env.h.Insights = fake
		env.mock.ExpectExec("INSERT INTO ai_insight_history").
			WithArgs(int64(1), "How many users?", "There are 12 applicants.", 120, fixedNow).
			WillReturnResult(sqlmock.NewResult(1, 1))

		w := env.serve(env.h.AdminInsights, request{method: "POST", route: "/admin/insights", userID: 1,
			role: models.RoleAdmin, body: map[string]string{"question": "How many users?"}})

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		body := decodeBody(t, w)
		assert.Equal(t, "There are 12 applicants.", body["answer"])
		assert.Equal(t, float64(120), body["tokensUsed"])
		assert.Equal(t, []string{"How many users?"}, fake.asked)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("history failure still answers", func(t *testing.T) {
		env := newTestEnv(t)
		env.h.Insights = &fakeInsights{answer: "ok", tokens: 5}
		env.mock.ExpectExec("INSERT INTO ai_insight_history").
			WillReturnError(errors.New("disk full"))

		w := env.serve(env.h.AdminInsights, request{method: "POST", route: "/admin/insights", userID: 1,
			role: models.RoleAdmin, body: map[string]string{"question": "How many users?"}})

		assert.Equal(t, http.StatusOK, w.Code)
		require.NotEmpty(t, env.logs.AllEntries())
		assert.Equal(t, "failed to save insight history", env.logs.LastEntry().Message)
	})
}

func TestAdminUpdateReviewPublishNotifies(t *testing.T) {
	env := newTestEnv(t)
	env.mock.ExpectBegin()
	env.mock.ExpectQuery("FROM reviews WHERE id = \\? FOR UPDATE").
		WithArgs(int64(12)).
		WillReturnRows(addReviewRow(sqlmock.NewRows(reviewCols), 12, 5, models.ReviewStatusDraft))
	env.mock.ExpectExec("UPDATE reviews SET summary = \\?, feedback = \\?, score = \\?, status = \\?, updated_at = \\? WHERE id = \\?").
		WithArgs("Strong narrative", "Tighten the opening paragraph.", 8, models.ReviewStatusPublished, fixedNow, int64(12)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectQuery("SELECT user_id, title FROM applications WHERE id = \\?").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "title"}).AddRow(7, "IM 2027"))
	env.mock.ExpectExec("INSERT INTO notifications").
		WithArgs(int64(7), sqlmock.AnyArg(), "/dashboard/applications/5", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	env.mock.ExpectCommit()

	w := env.serve(env.h.AdminUpdateReview, request{method: "PATCH", route: "/admin/reviews/:id",
		path: "/admin/reviews/12", userID: 1, role: models.RoleAdmin,
		body: map[string]string{"status": models.ReviewStatusPublished}})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	review := decodeBody(t, w)["review"].(map[string]interface{})
	assert.Equal(t, models.ReviewStatusPublished, review["status"])
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestAdminUpdatePublishedReviewDoesNotRenotify(t *testing.T) {
	env := newTestEnv(t)
	env.mock.ExpectBegin()
	env.mock.ExpectQuery("FROM reviews WHERE id = \\? FOR UPDATE").
		WithArgs(int64(12)).
		WillReturnRows(addReviewRow(sqlmock.NewRows(reviewCols), 12, 5, models.ReviewStatusPublished))
	env.mock.ExpectExec("UPDATE reviews").
		WithArgs("Strong narrative", "Lead with the research year.", 8, models.ReviewStatusPublished, fixedNow, int64(12)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectCommit()

	w := env.serve(env.h.AdminUpdateReview, request{method: "PATCH", route: "/admin/reviews/:id",
		path: "/admin/reviews/12", userID: 1, role: models.RoleAdmin,
		body: map[string]string{"status": models.ReviewStatusPublished, "feedback": "Lead with the research year."}})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestAdminUpdateReviewMissing(t *testing.T) {
	env := newTestEnv(t)
	env.mock.ExpectBegin()
	env.mock.ExpectQuery("FROM reviews WHERE id = \\? FOR UPDATE").
		WillReturnRows(sqlmock.NewRows(reviewCols))
	env.mock.ExpectRollback()

	w := env.serve(env.h.AdminUpdateReview, request{method: "PATCH", route: "/admin/reviews/:id",
		path: "/admin/reviews/12", userID: 1, role: models.RoleAdmin,
		body: map[string]string{"status": models.ReviewStatusPublished}})

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestAdminListApplications(t *testing.T) {
	addRow := func(rows *sqlmock.Rows, id int64, status models.ApplicationStatus, submittedAt interface{}) *sqlmock.Rows {
		return rows.AddRow(id, 7, "Internal Medicine 2027", "Internal Medicine", 2027, string(status), nil, nil,
			submittedAt, models.CreditSourcePurchase, nil, nil, fixedNow, fixedNow, "Ana Diaz", "ana@example.com")
	}

	t.Run("submitted queue is oldest first", func(t *testing.T) {
		env := newTestEnv(t)
		env.mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM applications a WHERE a.status = \\?").
			WithArgs(string(models.StatusSubmitted)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		rows := sqlmock.NewRows(adminApplicationCols)
		addRow(rows, 3, models.StatusSubmitted, fixedNow.Add(-48*time.Hour))
		addRow(rows, 8, models.StatusSubmitted, fixedNow.Add(-time.Hour))
		env.mock.ExpectQuery("WHERE a.status = \\? ORDER BY a.submitted_at ASC LIMIT \\? OFFSET \\?").
			WithArgs(string(models.StatusSubmitted), 20, 0).
			WillReturnRows(rows)

		w := env.serve(env.h.AdminListApplications, request{method: "GET", route: "/admin/applications",
			path: "/admin/applications?status=submitted", userID: 1, role: models.RoleAdmin})

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		body := decodeBody(t, w)
		assert.Equal(t, float64(2), body["total"])
		apps := body["applications"].([]interface{})
		require.Len(t, apps, 2)
		assert.Equal(t, float64(3), apps[0].(map[string]interface{})["id"])
		assert.Equal(t, float64(8), apps[1].(map[string]interface{})["id"])
		assert.Equal(t, "Ana Diaz", apps[0].(map[string]interface{})["applicantName"])
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("other filters are most recently updated first", func(t *testing.T) {
		env := newTestEnv(t)
		env.mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM applications a WHERE a.status = \\?").
			WithArgs(string(models.StatusInReview)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		env.mock.ExpectQuery("WHERE a.status = \\? ORDER BY a.updated_at DESC LIMIT \\? OFFSET \\?").
			WithArgs(string(models.StatusInReview), 20, 0).
			WillReturnRows(sqlmock.NewRows(adminApplicationCols))

		w := env.serve(env.h.AdminListApplications, request{method: "GET", route: "/admin/applications",
			path: "/admin/applications?status=in_review", userID: 1, role: models.RoleAdmin})

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, []interface{}{}, decodeBody(t, w)["applications"])
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("unknown status", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.serve(env.h.AdminListApplications, request{method: "GET", route: "/admin/applications",
			path: "/admin/applications?status=archived", userID: 1, role: models.RoleAdmin})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Unknown status", decodeBody(t, w)["error"])
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})
}

func TestAdminListPaymentsByStatus(t *testing.T) {
	env := newTestEnv(t)
	env.mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM payments WHERE status = \\?").
		WithArgs(models.PaymentFailed).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	env.mock.ExpectQuery("FROM payments WHERE status = \\? ORDER BY created_at DESC LIMIT \\? OFFSET \\?").
		WithArgs(models.PaymentFailed, 20, 0).
		WillReturnRows(addPaymentRow(sqlmock.NewRows(paymentCols), 8, 7, models.PaymentFailed))

	w := env.serve(env.h.AdminListPayments, request{method: "GET", route: "/admin/payments",
		path: "/admin/payments?status=failed", userID: 1, role: models.RoleAdmin})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, float64(1), body["total"])
	list := body["payments"].([]interface{})
	require.Len(t, list, 1)
	payment := list[0].(map[string]interface{})
	assert.Equal(t, models.PaymentFailed, payment["status"])
	assert.Equal(t, float64(29900), payment["amountCents"])
	assert.NotContains(t, payment, "stripe_checkout_session_id")
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestAdminListSubscriptionsJoinsPlanName(t *testing.T) {
	env := newTestEnv(t)
	cols := append(append([]string{}, subscriptionCols...), "plan_name")
	env.mock.ExpectQuery("FROM subscriptions s LEFT JOIN plans p ON p.id = s.plan_id ORDER BY s.created_at DESC LIMIT \\? OFFSET \\?").
		WithArgs(10, 10).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(4, 7, 2, "sub_123", "cus_123", models.SubscriptionActive, fixedNow.AddDate(0, 1, 0), false,
				fixedNow, fixedNow, "Unlimited").
			AddRow(5, 9, nil, "sub_456", "cus_456", models.SubscriptionCanceled, nil, false,
				fixedNow, fixedNow, nil))

	w := env.serve(env.h.AdminListSubscriptions, request{method: "GET", route: "/admin/subscriptions",
		path: "/admin/subscriptions?page=2&pageSize=10", userID: 1, role: models.RoleAdmin})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, float64(2), body["page"])
	subs := body["subscriptions"].([]interface{})
	require.Len(t, subs, 2)
	assert.Equal(t, "Unlimited", subs[0].(map[string]interface{})["planName"])
	assert.NotContains(t, subs[1].(map[string]interface{}), "planName")
	assert.NotContains(t, subs[0].(map[string]interface{}), "stripeSubscriptionId")
	assert.NoError(t, env.mock.ExpectationsWereMet())
}
