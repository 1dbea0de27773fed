package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/residencyreview/eras-review-api/internal/models"
	"github.com/residencyreview/eras-review-api/internal/payments"
)

//
// --- Applicant Dashboard ---
//

type ApplicantDashboard struct {
	ApplicationsByStatus map[models.ApplicationStatus]int `json:"applicationsByStatus"`
	TotalApplications    int                              `json:"totalApplications"`
	LatestReview         *models.Review                   `json:"latestReview"`
	Subscription         *models.Subscription             `json:"subscription"`
	Credits              payments.Credits                 `json:"credits"`
	RecentPayments       []models.Payment                 `json:"recentPayments"`
}

// GetDashboard returns KPI data for the applicant dashboard
// GET /v1/dashboard
func (h *Handlers) GetDashboard(c *gin.Context) {
	userID := currentUserID(c)
	ctx := c.Request.Context()

	stats := ApplicantDashboard{
		ApplicationsByStatus: map[models.ApplicationStatus]int{},
		RecentPayments:       []models.Payment{},
	}
	for _, s := range models.AllApplicationStatuses {
		stats.ApplicationsByStatus[s] = 0
	}

	// 1. Applications per status
	var counts []struct {
		Status models.ApplicationStatus `db:"status"`
		Count  int                      `db:"n"`
	}
	err := h.DB.SelectContext(ctx, &counts,
		"SELECT status, COUNT(*) AS n FROM applications WHERE user_id = ? GROUP BY status", userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count applications"})
		return
	}
	for _, row := range counts {
		stats.ApplicationsByStatus[row.Status] = row.Count
		stats.TotalApplications += row.Count
	}

	// 2. Latest published review
	var review models.Review
	err = h.DB.GetContext(ctx, &review, `
		SELECT r.id, r.application_id, r.reviewer_id, r.document_id, r.summary, r.feedback, r.score, r.status,
		       r.created_at, r.updated_at
		FROM reviews r
		JOIN applications a ON a.id = r.application_id
		WHERE a.user_id = ? AND r.status = ?
		ORDER BY r.updated_at DESC
		LIMIT 1`, userID, models.ReviewStatusPublished)
	switch {
	case err == nil:
		stats.LatestReview = &review
	case !errors.Is(err, sql.ErrNoRows):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load latest review"})
		return
	}

	// 3. Current subscription
	sub, err := h.currentSubscription(c, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load subscription"})
		return
	}
	stats.Subscription = sub

	// 4. Remaining review credits
	stats.Credits, err = payments.ReviewCredits(ctx, h.DB, userID, h.now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute review credits"})
		return
	}

	// 5. Recent payments
	err = h.DB.SelectContext(ctx, &stats.RecentPayments,
		"SELECT "+paymentColumns+" FROM payments WHERE user_id = ? ORDER BY created_at DESC LIMIT 5", userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load payments"})
		return
	}

	c.JSON(http.StatusOK, stats)
}
