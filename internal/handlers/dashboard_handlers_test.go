package handlers

import (
	"errors"
	"net/http"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/residencyreview/eras-review-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reviewCols = []string{"id", "application_id", "reviewer_id", "document_id", "summary", "feedback", "score",
	"status", "created_at", "updated_at"}

var paymentCols = []string{"id", "user_id", "plan_id", "stripe_checkout_session_id", "stripe_payment_intent_id",
	"stripe_invoice_id", "amount_cents", "currency", "status", "description", "created_at", "updated_at"}

func addReviewRow(rows *sqlmock.Rows, id, applicationID int64, status string) *sqlmock.Rows {
	return rows.AddRow(id, applicationID, 1, nil, "Strong narrative", "Tighten the opening paragraph.", 8,
		status, fixedNow, fixedNow)
}

func addPaymentRow(rows *sqlmock.Rows, id, userID int64, status string) *sqlmock.Rows {
	return rows.AddRow(id, userID, 2, "cs_test_1", nil, nil, int64(29900), "usd", status, "Full Review",
		fixedNow, fixedNow)
}

func TestGetDashboard(t *testing.T) {
	env := newTestEnv(t)
	env.mock.ExpectQuery("SELECT status, COUNT\\(\\*\\) AS n FROM applications WHERE user_id = \\? GROUP BY status").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"status", "n"}).
			AddRow("DRAFT", 2).
			AddRow("SUBMITTED", 1).
			AddRow("COMPLETED", 3))
	env.mock.ExpectQuery("FROM reviews r JOIN applications a ON a.id = r.application_id WHERE a.user_id = \\? AND r.status = \\?").
		WithArgs(int64(7), models.ReviewStatusPublished).
		WillReturnRows(addReviewRow(sqlmock.NewRows(reviewCols), 12, 5, models.ReviewStatusPublished))
	env.mock.ExpectQuery("FROM subscriptions WHERE user_id = \\? ORDER BY created_at DESC LIMIT 1").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(subscriptionCols))
	expectCredits(env.mock, 0, 3, 1)
	env.mock.ExpectQuery("FROM payments WHERE user_id = \\? ORDER BY created_at DESC LIMIT 5").
		WithArgs(int64(7)).
		WillReturnRows(addPaymentRow(addPaymentRow(sqlmock.NewRows(paymentCols),
			9, 7, models.PaymentSucceeded), 8, 7, models.PaymentFailed))

	w := env.serve(env.h.GetDashboard, request{method: "GET", route: "/dashboard", userID: 7})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, float64(6), body["totalApplications"])
	byStatus := body["applicationsByStatus"].(map[string]interface{})
	assert.Equal(t, float64(2), byStatus["DRAFT"])
	assert.Equal(t, float64(1), byStatus["SUBMITTED"])
	assert.Equal(t, float64(0), byStatus["IN_REVIEW"])

	review := body["latestReview"].(map[string]interface{})
	assert.Equal(t, float64(12), review["id"])
	assert.Equal(t, models.ReviewStatusPublished, review["status"])

	assert.Nil(t, body["subscription"])
	credits := body["credits"].(map[string]interface{})
	assert.Equal(t, false, credits["unlimited"])
	assert.Equal(t, float64(3), credits["purchased"])
	assert.Equal(t, float64(1), credits["used"])
	assert.Equal(t, float64(2), credits["remaining"])

	recent := body["recentPayments"].([]interface{})
	require.Len(t, recent, 2)
	assert.Equal(t, models.PaymentSucceeded, recent[0].(map[string]interface{})["status"])
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestGetDashboardForNewApplicant(t *testing.T) {
	env := newTestEnv(t)
	env.mock.ExpectQuery("FROM applications WHERE user_id = \\? GROUP BY status").
		WillReturnRows(sqlmock.NewRows([]string{"status", "n"}))
	env.mock.ExpectQuery("FROM reviews r JOIN applications a").
		WillReturnRows(sqlmock.NewRows(reviewCols))
	env.mock.ExpectQuery("FROM subscriptions WHERE user_id = \\? ORDER BY").
		WillReturnRows(sqlmock.NewRows(subscriptionCols))
	expectCredits(env.mock, 0, 0, 0)
	env.mock.ExpectQuery("FROM payments WHERE user_id = \\?").
		WillReturnRows(sqlmock.NewRows(paymentCols))

	w := env.serve(env.h.GetDashboard, request{method: "GET", route: "/dashboard", userID: 7})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, float64(0), body["totalApplications"])
	assert.Nil(t, body["latestReview"])
	assert.Equal(t, []interface{}{}, body["recentPayments"])
	assert.Equal(t, float64(0), body["credits"].(map[string]interface{})["remaining"])
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestGetDashboardCountFailure(t *testing.T) {
	env := newTestEnv(t)
	env.mock.ExpectQuery("FROM applications WHERE user_id = \\? GROUP BY status").
		WillReturnError(errors.New("connection refused"))

	w := env.serve(env.h.GetDashboard, request{method: "GET", route: "/dashboard", userID: 7})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to count applications", decodeBody(t, w)["error"])
}

func TestListApplicationReviewsOnlyPublished(t *testing.T) {
	env := newTestEnv(t)
	env.mock.ExpectQuery(selectOwnedApplication).
		WithArgs(int64(5), int64(7)).
		WillReturnRows(applicationRows(5, 7, models.StatusReviewed, fixedNow))
	env.mock.ExpectQuery("FROM reviews WHERE application_id = \\? AND status = \\? ORDER BY created_at DESC").
		WithArgs(int64(5), models.ReviewStatusPublished).
		WillReturnRows(addReviewRow(sqlmock.NewRows(reviewCols), 12, 5, models.ReviewStatusPublished))

	w := env.serve(env.h.ListApplicationReviews, request{method: "GET", route: "/applications/:id/reviews",
		path: "/applications/5/reviews", userID: 7})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	reviews := decodeBody(t, w)["reviews"].([]interface{})
	require.Len(t, reviews, 1)
	assert.Equal(t, models.ReviewStatusPublished, reviews[0].(map[string]interface{})["status"])
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestListApplicationReviewsOfAnotherUser(t *testing.T) {
	env := newTestEnv(t)
	env.mock.ExpectQuery(selectOwnedApplication).
		WithArgs(int64(5), int64(7)).
		WillReturnRows(sqlmock.NewRows(applicationCols))

	w := env.serve(env.h.ListApplicationReviews, request{method: "GET", route: "/applications/:id/reviews",
		path: "/applications/5/reviews", userID: 7})

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}
