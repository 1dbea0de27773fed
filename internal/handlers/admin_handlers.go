package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/residencyreview/eras-review-api/internal/database"
	"github.com/residencyreview/eras-review-api/internal/email"
	"github.com/residencyreview/eras-review-api/internal/models"
)

const reviewColumns = `id, application_id, reviewer_id, document_id, summary, feedback, score, status, created_at, updated_at`

const interviewColumns = `id, user_id, name, email, specialty, preferred_dates, notes, status, scheduled_at, created_at, updated_at`

//
// --- Admin: Stats ---
//

type AdminStats struct {
	TotalUsers               int                              `json:"totalUsers"`
	ActiveUsers              int                              `json:"activeUsers"`
	NewUsersLast30Days       int                              `json:"newUsersLast30Days"`
	ApplicationsByStatus     map[models.ApplicationStatus]int `json:"applicationsByStatus"`
	PendingReviews           int                              `json:"pendingReviews"`
	ActiveSubscriptions      int                              `json:"activeSubscriptions"`
	GrossCents               int64                            `json:"grossCents"`
	RefundedCents            int64                            `json:"refundedCents"`
	RevenueCents             int64                            `json:"revenueCents"`
	PublishedPosts           int                              `json:"publishedPosts"`
	PendingInterviewRequests int                              `json:"pendingInterviewRequests"`
}

// GetAdminStats is the handler for GET /v1/admin/stats
func (h *Handlers) GetAdminStats(c *gin.Context) {
	ctx := c.Request.Context()
	now := h.now()
	stats := AdminStats{ApplicationsByStatus: map[models.ApplicationStatus]int{}}
	for _, s := range models.AllApplicationStatuses {
		stats.ApplicationsByStatus[s] = 0
	}

	// 1. Users
	var users struct {
		Total  int `db:"total"`
		Active int `db:"active"`
		New    int `db:"recent"`
	}
	err := h.DB.GetContext(ctx, &users, `
		SELECT COUNT(*) AS total,
		       COALESCE(SUM(status = ?), 0) AS active,
		       COALESCE(SUM(created_at >= ?), 0) AS recent
		FROM users WHERE role = ?`,
		models.UserStatusActive, now.AddDate(0, 0, -30), models.RoleApplicant)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count users"})
		return
	}
	stats.TotalUsers, stats.ActiveUsers, stats.NewUsersLast30Days = users.Total, users.Active, users.New

	// 2. Applications per status
	var counts []struct {
		Status models.ApplicationStatus `db:"status"`
		Count  int                      `db:"n"`
	}
	if err := h.DB.SelectContext(ctx, &counts,
		"SELECT status, COUNT(*) AS n FROM applications GROUP BY status"); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count applications"})
		return
	}
	for _, row := range counts {
		stats.ApplicationsByStatus[row.Status] = row.Count
	}
	stats.PendingReviews = stats.ApplicationsByStatus[models.StatusSubmitted]

	// 3. Active subscriptions
	if err := h.DB.GetContext(ctx, &stats.ActiveSubscriptions,
		"SELECT COUNT(*) FROM subscriptions WHERE status IN (?, ?)",
		models.SubscriptionActive, models.SubscriptionTrialing); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count subscriptions"})
		return
	}

	// 4. Revenue
	// Refunded payments were collected first, so gross includes them.
	var revenue struct {
		Gross    int64 `db:"gross"`
		Refunded int64 `db:"refunded"`
	}
	err = h.DB.GetContext(ctx, &revenue, `
		SELECT COALESCE(SUM(amount_cents), 0) AS gross,
		       COALESCE(SUM(CASE WHEN status = ? THEN amount_cents ELSE 0 END), 0) AS refunded
		FROM payments WHERE status IN (?, ?)`,
		models.PaymentRefunded, models.PaymentSucceeded, models.PaymentRefunded)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sum revenue"})
		return
	}
	stats.GrossCents, stats.RefundedCents = revenue.Gross, revenue.Refunded
	stats.RevenueCents = revenue.Gross - revenue.Refunded

	// 5. Blog & interviews
	if err := h.DB.GetContext(ctx, &stats.PublishedPosts,
		"SELECT COUNT(*) FROM blog_posts WHERE status = ?", models.PostStatusPublished); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count posts"})
		return
	}
	if err := h.DB.GetContext(ctx, &stats.PendingInterviewRequests,
		"SELECT COUNT(*) FROM interview_requests WHERE status = ?", models.InterviewPending); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count interview requests"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

//
// --- Admin: Applications ---
//

// applicationRow adds the applicant columns joined in for admin views.
type applicationRow struct {
	models.Application
	Name  string `db:"applicant_name"`
	Email string `db:"applicant_email"`
}

func (r applicationRow) withApplicant() models.Application {
	app := r.Application
	app.ApplicantName = r.Name
	app.ApplicantEmail = r.Email
	return app
}

const adminApplicationSelect = `
	SELECT a.id, a.user_id, a.title, a.specialty, a.cycle_year, a.status, a.service_tier, a.notes,
	       a.submitted_at, a.credit_source, a.reviewed_at, a.completed_at, a.created_at, a.updated_at,
	       u.full_name AS applicant_name, u.email AS applicant_email
	FROM applications a
	JOIN users u ON u.id = a.user_id`

// AdminListApplications is the handler for GET /v1/admin/applications
// Optional ?status= filter; SUBMITTED applications come oldest first so the queue is FIFO.
func (h *Handlers) AdminListApplications(c *gin.Context) {
	// 1. --- Build Query ---
	page, pageSize, offset := pagination(c)
	where := ""
	args := []interface{}{}
	order := "a.updated_at DESC"
	if status := models.ApplicationStatus(strings.ToUpper(c.Query("status"))); status != "" {
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown status"})
			return
		}
		where = " WHERE a.status = ?"
		args = append(args, status)
		if status == models.StatusSubmitted {
			order = "a.submitted_at ASC"
		}
	}

	// 2. --- Count & Fetch ---
	var total int
	if err := h.DB.GetContext(c.Request.Context(), &total,
		"SELECT COUNT(*) FROM applications a"+where, args...); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database query failed"})
		return
	}
	var rows []applicationRow
	err := h.DB.SelectContext(c.Request.Context(), &rows,
		adminApplicationSelect+where+" ORDER BY "+order+" LIMIT ? OFFSET ?",
		append(args, pageSize, offset)...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database query failed"})
		return
	}

	apps := make([]models.Application, 0, len(rows))
	for _, row := range rows {
		apps = append(apps, row.withApplicant())
	}

	// 3. --- Send Success Response ---
	c.JSON(http.StatusOK, gin.H{
		"applications": apps,
		"total":        total,
		"page":         page,
		"pageSize":     pageSize,
	})
}

// AdminGetApplication is the handler for GET /v1/admin/applications/:id
// It returns the application with its documents, experiences and every review.
func (h *Handlers) AdminGetApplication(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var row applicationRow
	err := h.DB.GetContext(ctx, &row, adminApplicationSelect+" WHERE a.id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Application not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	documents := []models.Document{}
	experiences := []models.Experience{}
	reviews := []models.Review{}
	if err := h.DB.SelectContext(ctx, &documents,
		"SELECT "+documentColumns+" FROM documents WHERE application_id = ? ORDER BY created_at", id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve documents"})
		return
	}
	if err := h.DB.SelectContext(ctx, &experiences,
		"SELECT "+experienceColumns+" FROM experiences WHERE application_id = ? ORDER BY start_date DESC", id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve experiences"})
		return
	}
	if err := h.DB.SelectContext(ctx, &reviews,
		"SELECT "+reviewColumns+" FROM reviews WHERE application_id = ? ORDER BY created_at DESC", id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve reviews"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"application": row.withApplicant(),
		"documents":   documents,
		"experiences": experiences,
		"reviews":     reviews,
	})
}

// AdminChangeApplicationStatus is the handler for PATCH /v1/admin/applications/:id/status
// The applicant is notified in-app; REVIEWED also sends the feedback email.
func (h *Handlers) AdminChangeApplicationStatus(c *gin.Context) {
	// 1. --- Get ID & Bind JSON ---
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var input StatusInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !input.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown status"})
		return
	}
	ctx := c.Request.Context()

	// 2. --- Start Transaction ---
	tx, err := h.DB.BeginTxx(ctx, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction"})
		return
	}
	defer tx.Rollback()

	// 3. --- Lock Row & Check Transition ---
	var row applicationRow
	err = tx.GetContext(ctx, &row, adminApplicationSelect+" WHERE a.id = ? FOR UPDATE", id)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Application not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	app := row.withApplicant()
	if err := models.CheckTransition(models.RoleAdmin, app.Status, input.Status); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("Cannot move application from %s to %s", app.Status, input.Status)})
		return
	}

	// 4. --- Update Status & Stamps ---
	now := h.now()
	app.Status = input.Status
	app.UpdatedAt = now
	switch input.Status {
	case models.StatusReviewed:
		app.ReviewedAt = &now
	case models.StatusCompleted:
		app.CompletedAt = &now
	}
	_, err = tx.ExecContext(ctx,
		"UPDATE applications SET status = ?, reviewed_at = ?, completed_at = ?, updated_at = ? WHERE id = ?",
		app.Status, app.ReviewedAt, app.CompletedAt, app.UpdatedAt, app.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update status"})
		return
	}

	// 5. --- Notify Applicant (same transaction) ---
	message := statusMessage(app.Title, app.Status)
	link := fmt.Sprintf("/dashboard/applications/%d", app.ID)
	if err := database.AddNotification(ctx, tx, app.UserID, message, link); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create notification"})
		return
	}

	// 6. --- Commit Transaction ---
	if err := tx.Commit(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit transaction"})
		return
	}

	if app.Status == models.StatusReviewed {
		h.sendEmail(ctx, email.TemplateReviewReady, map[string]any{
			"Name":          app.ApplicantName,
			"Title":         app.Title,
			"ApplicationID": app.ID,
		}, app.ApplicantEmail)
	}

	c.JSON(http.StatusOK, gin.H{"application": app})
}

func statusMessage(title string, status models.ApplicationStatus) string {
	switch status {
	case models.StatusReviewed:
		return fmt.Sprintf("Your application %q has been reviewed. Your feedback is ready.", title)
	case models.StatusCompleted:
		return fmt.Sprintf("Your application %q review is complete.", title)
	case models.StatusInReview:
		return fmt.Sprintf("Your application %q was returned for revisions.", title)
	default:
		return fmt.Sprintf("Your application %q is now %s.", title, status)
	}
}

//
// --- Admin: Reviews ---
//

type ReviewInput struct {
	DocumentID *int64 `json:"documentId" binding:"omitempty,min=1"`
	Summary    string `json:"summary" binding:"required,max=500"`
	Feedback   string `json:"feedback" binding:"required"`
	Score      *int   `json:"score" binding:"omitempty,min=1,max=10"`
	Publish    bool   `json:"publish"`
}

// AdminCreateReview is the handler for POST /v1/admin/applications/:id/reviews
func (h *Handlers) AdminCreateReview(c *gin.Context) {
	// 1. --- Get ID & Bind JSON ---
	appID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var input ReviewInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	// 2. --- Check Application (and Document) ---
	var owner struct {
		UserID int64  `db:"user_id"`
		Title  string `db:"title"`
	}
	err := h.DB.GetContext(ctx, &owner, "SELECT user_id, title FROM applications WHERE id = ?", appID)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Application not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if input.DocumentID != nil {
		var n int
		if err := h.DB.GetContext(ctx, &n,
			"SELECT COUNT(*) FROM documents WHERE id = ? AND application_id = ?", *input.DocumentID, appID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		if n == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Document does not belong to this application"})
			return
		}
	}

	// 3. --- Insert Review (+ notification) ---
	now := h.now()
	review := models.Review{
		ApplicationID: appID,
		ReviewerID:    currentUserID(c),
		DocumentID:    input.DocumentID,
		Summary:       input.Summary,
		Feedback:      input.Feedback,
		Score:         input.Score,
		Status:        models.ReviewStatusDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if input.Publish {
		review.Status = models.ReviewStatusPublished
	}

	tx, err := h.DB.BeginTxx(ctx, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction"})
		return
	}
	defer tx.Rollback()

	result, err := tx.NamedExecContext(ctx, `
		INSERT INTO reviews
		(application_id, reviewer_id, document_id, summary, feedback, score, status, created_at, updated_at)
		VALUES
		(:application_id, :reviewer_id, :document_id, :summary, :feedback, :score, :status, :created_at, :updated_at)`,
		review)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create review"})
		return
	}
	review.ID, _ = result.LastInsertId()

	if review.Status == models.ReviewStatusPublished {
		if err := database.AddNotification(ctx, tx, owner.UserID,
			fmt.Sprintf("New feedback was posted on %q.", owner.Title),
			fmt.Sprintf("/dashboard/applications/%d", appID)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create notification"})
			return
		}
	}
	if err := tx.Commit(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit transaction"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"review": review})
}

type UpdateReviewInput struct {
	Summary  *string `json:"summary" binding:"omitempty,min=1,max=500"`
	Feedback *string `json:"feedback" binding:"omitempty,min=1"`
	Score    *int    `json:"score" binding:"omitempty,min=1,max=10"`
	Status   *string `json:"status" binding:"omitempty,oneof=DRAFT PUBLISHED"`
}

// AdminUpdateReview is the handler for PATCH /v1/admin/reviews/:id
// Publishing a draft notifies the applicant.
func (h *Handlers) AdminUpdateReview(c *gin.Context) {
	// 1. --- Get ID & Bind JSON ---
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var input UpdateReviewInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	// 2. --- Start Transaction & Load ---
	tx, err := h.DB.BeginTxx(ctx, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction"})
		return
	}
	defer tx.Rollback()

	var review models.Review
	err = tx.GetContext(ctx, &review, "SELECT "+reviewColumns+" FROM reviews WHERE id = ? FOR UPDATE", id)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Review not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	// 3. --- Apply Changes ---
	publishing := input.Status != nil && *input.Status == models.ReviewStatusPublished &&
		review.Status != models.ReviewStatusPublished
	if input.Summary != nil {
		review.Summary = *input.Summary
	}
	if input.Feedback != nil {
		review.Feedback = *input.Feedback
	}
	if input.Score != nil {
		review.Score = input.Score
	}
	if input.Status != nil {
		review.Status = *input.Status
	}
	review.UpdatedAt = h.now()

	_, err = tx.NamedExecContext(ctx, `
		UPDATE reviews
		SET summary = :summary, feedback = :feedback, score = :score, status = :status, updated_at = :updated_at
		WHERE id = :id`, review)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update review"})
		return
	}

	// 4. --- Notify on Publish ---
	if publishing {
		var owner struct {
			UserID int64  `db:"user_id"`
			Title  string `db:"title"`
		}
		if err := tx.GetContext(ctx, &owner,
			"SELECT user_id, title FROM applications WHERE id = ?", review.ApplicationID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		if err := database.AddNotification(ctx, tx, owner.UserID,
			fmt.Sprintf("New feedback was posted on %q.", owner.Title),
			fmt.Sprintf("/dashboard/applications/%d", review.ApplicationID)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create notification"})
			return
		}
	}

	if err := tx.Commit(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit transaction"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"review": review})
}

//
// --- Admin: Users ---
//

// AdminListUsers is the handler for GET /v1/admin/users?q=&page=
func (h *Handlers) AdminListUsers(c *gin.Context) {
	page, pageSize, offset := pagination(c)
	where := ""
	args := []interface{}{}
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		like := "%" + q + "%"
		where = " WHERE email LIKE ? OR full_name LIKE ?"
		args = append(args, like, like)
	}

	var total int
	if err := h.DB.GetContext(c.Request.Context(), &total, "SELECT COUNT(*) FROM users"+where, args...); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database query failed"})
		return
	}
	users := []models.User{}
	err := h.DB.SelectContext(c.Request.Context(), &users,
		"SELECT "+userColumns+" FROM users"+where+" ORDER BY created_at DESC LIMIT ? OFFSET ?",
		append(args, pageSize, offset)...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database query failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"users":    users,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

type AdminUpdateUserInput struct {
	Role   *string `json:"role" binding:"omitempty,oneof=applicant admin"`
	Status *string `json:"status" binding:"omitempty,oneof=unverified active suspended"`
}

// AdminUpdateUser is the handler for PATCH /v1/admin/users/:id
func (h *Handlers) AdminUpdateUser(c *gin.Context) {
	// 1. --- Get ID & Bind JSON ---
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var input AdminUpdateUserInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if input.Role == nil && input.Status == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No fields to update"})
		return
	}
	if id == currentUserID(c) {
		c.JSON(http.StatusConflict, gin.H{"error": "You cannot change your own role or status"})
		return
	}

	// 2. --- Execute Update ---
	sets := []string{}
	args := []interface{}{}
	if input.Role != nil {
		sets = append(sets, "role = ?")
		args = append(args, *input.Role)
	}
	if input.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *input.Status)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, h.now(), id)

	result, err := h.DB.ExecContext(c.Request.Context(),
		"UPDATE users SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "User updated"})
}

//
// --- Admin: Billing ---
//

// AdminListPayments is the handler for GET /v1/admin/payments?status=
func (h *Handlers) AdminListPayments(c *gin.Context) {
	page, pageSize, offset := pagination(c)
	where := ""
	args := []interface{}{}
	if status := strings.ToUpper(c.Query("status")); status != "" {
		where = " WHERE status = ?"
		args = append(args, status)
	}

	var total int
	if err := h.DB.GetContext(c.Request.Context(), &total, "SELECT COUNT(*) FROM payments"+where, args...); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database query failed"})
		return
	}
	list := []models.Payment{}
	err := h.DB.SelectContext(c.Request.Context(), &list,
		"SELECT "+paymentColumns+" FROM payments"+where+" ORDER BY created_at DESC LIMIT ? OFFSET ?",
		append(args, pageSize, offset)...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database query failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payments": list,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

// subscriptionRow adds the plan name joined in for the admin list.
type subscriptionRow struct {
	models.Subscription
	Plan sql.NullString `db:"plan_name"`
}

// AdminListSubscriptions is the handler for GET /v1/admin/subscriptions
func (h *Handlers) AdminListSubscriptions(c *gin.Context) {
	page, pageSize, offset := pagination(c)
	var rows []subscriptionRow
	err := h.DB.SelectContext(c.Request.Context(), &rows, `
		SELECT s.id, s.user_id, s.plan_id, s.stripe_subscription_id, s.stripe_customer_id, s.status,
		       s.current_period_end, s.cancel_at_period_end, s.created_at, s.updated_at,
		       p.name AS plan_name
		FROM subscriptions s
		LEFT JOIN plans p ON p.id = s.plan_id
		ORDER BY s.created_at DESC
		LIMIT ? OFFSET ?`, pageSize, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database query failed"})
		return
	}

	subs := make([]models.Subscription, 0, len(rows))
	for _, row := range rows {
		sub := row.Subscription
		sub.PlanName = row.Plan.String
		subs = append(subs, sub)
	}
	c.JSON(http.StatusOK, gin.H{
		"subscriptions": subs,
		"page":          page,
		"pageSize":      pageSize,
	})
}

//
// --- Admin: Interview Requests ---
//

// AdminListInterviewRequests is the handler for GET /v1/admin/interview-requests?status=
func (h *Handlers) AdminListInterviewRequests(c *gin.Context) {
	page, pageSize, offset := pagination(c)
	where := ""
	args := []interface{}{}
	if status := strings.ToUpper(c.Query("status")); status != "" {
		where = " WHERE status = ?"
		args = append(args, status)
	}

	list := []models.InterviewRequest{}
	err := h.DB.SelectContext(c.Request.Context(), &list,
		"SELECT "+interviewColumns+" FROM interview_requests"+where+" ORDER BY created_at DESC LIMIT ? OFFSET ?",
		append(args, pageSize, offset)...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"interviewRequests": list,
		"page":              page,
		"pageSize":          pageSize,
	})
}

type UpdateInterviewInput struct {
	Status      string     `json:"status" binding:"required,oneof=PENDING SCHEDULED COMPLETED CANCELLED"`
	ScheduledAt *time.Time `json:"scheduledAt"`
}

// AdminUpdateInterviewRequest is the handler for PATCH /v1/admin/interview-requests/:id
func (h *Handlers) AdminUpdateInterviewRequest(c *gin.Context) {
	// 1. --- Get ID & Bind JSON ---
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var input UpdateInterviewInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if input.Status == models.InterviewScheduled && input.ScheduledAt == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scheduledAt is required when scheduling"})
		return
	}
	ctx := c.Request.Context()

	// 2. --- Load Request ---
	var req models.InterviewRequest
	err := h.DB.GetContext(ctx, &req, "SELECT "+interviewColumns+" FROM interview_requests WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Interview request not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	// 3. --- Update & Notify ---
	req.Status = input.Status
	if input.ScheduledAt != nil {
		req.ScheduledAt = input.ScheduledAt
	}
	req.UpdatedAt = h.now()

	tx, err := h.DB.BeginTxx(ctx, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction"})
		return
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"UPDATE interview_requests SET status = ?, scheduled_at = ?, updated_at = ? WHERE id = ?",
		req.Status, req.ScheduledAt, req.UpdatedAt, req.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update interview request"})
		return
	}
	if req.UserID != nil && req.Status == models.InterviewScheduled {
		msg := fmt.Sprintf("Your mock interview is scheduled for %s.", req.ScheduledAt.UTC().Format("Jan 2, 2006 15:04 MST"))
		if err := database.AddNotification(ctx, tx, *req.UserID, msg, "/dashboard/interviews"); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create notification"})
			return
		}
	}
	if err := tx.Commit(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit transaction"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"interviewRequest": req})
}
