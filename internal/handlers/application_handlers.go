package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/residencyreview/eras-review-api/internal/email"
	"github.com/residencyreview/eras-review-api/internal/models"
	"github.com/residencyreview/eras-review-api/internal/payments"
)

const applicationColumns = `id, user_id, title, specialty, cycle_year, status, service_tier, notes,
	submitted_at, credit_source, reviewed_at, completed_at, created_at, updated_at`

var errNotOwned = errors.New("application not found")

// ownedApplication loads an application only if it belongs to userID.
// Other users' applications are reported as missing.
func (h *Handlers) ownedApplication(ctx context.Context, id, userID int64) (*models.Application, error) {
	var app models.Application
	err := h.DB.GetContext(ctx, &app,
		"SELECT "+applicationColumns+" FROM applications WHERE id = ? AND user_id = ?", id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotOwned
	}
	if err != nil {
		return nil, err
	}
	return &app, nil
}

// applicationFor writes the 404/500 response itself when the lookup fails.
func (h *Handlers) applicationFor(c *gin.Context, id int64) (*models.Application, bool) {
	app, err := h.ownedApplication(c.Request.Context(), id, currentUserID(c))
	if errors.Is(err, errNotOwned) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Application not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return nil, false
	}
	return app, true
}

type ApplicationInput struct {
	Title       string  `json:"title" binding:"required,max=255"`
	Specialty   string  `json:"specialty" binding:"required,max=120"`
	CycleYear   int     `json:"cycleYear" binding:"required,min=2000,max=2100"`
	ServiceTier *string `json:"serviceTier"`
	Notes       *string `json:"notes"`
}

// CreateApplication is the handler for POST /v1/applications.
// New applications always start as DRAFT.
func (h *Handlers) CreateApplication(c *gin.Context) {
	// 1. --- Bind & Validate JSON ---
	var input ApplicationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 2. --- Save to Database ---
	now := h.now()
	app := models.Application{
		UserID:      currentUserID(c),
		Title:       strings.TrimSpace(input.Title),
		Specialty:   strings.TrimSpace(input.Specialty),
		CycleYear:   input.CycleYear,
		Status:      models.StatusDraft,
		ServiceTier: input.ServiceTier,
		Notes:       input.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	result, err := h.DB.NamedExecContext(c.Request.Context(), `
		INSERT INTO applications
		(user_id, title, specialty, cycle_year, status, service_tier, notes, created_at, updated_at)
		VALUES
		(:user_id, :title, :specialty, :cycle_year, :status, :service_tier, :notes, :created_at, :updated_at)`, app)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create application"})
		return
	}
	app.ID, _ = result.LastInsertId()

	// 3. --- Send Success Response ---
	c.JSON(http.StatusCreated, gin.H{"application": app})
}

// ListMyApplications is the handler for GET /v1/applications.
func (h *Handlers) ListMyApplications(c *gin.Context) {
	apps := []models.Application{}
	err := h.DB.SelectContext(c.Request.Context(), &apps,
		"SELECT "+applicationColumns+" FROM applications WHERE user_id = ? ORDER BY updated_at DESC",
		currentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve applications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"applications": apps})
}

// GetApplication is the handler for GET /v1/applications/:id.
func (h *Handlers) GetApplication(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	app, ok := h.applicationFor(c, id)
	if !ok {
		return
	}

	documents := []models.Document{}
	if err := h.DB.SelectContext(c.Request.Context(), &documents,
		"SELECT "+documentColumns+" FROM documents WHERE application_id = ? ORDER BY created_at", app.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve documents"})
		return
	}
	experiences := []models.Experience{}
	if err := h.DB.SelectContext(c.Request.Context(), &experiences,
		"SELECT "+experienceColumns+" FROM experiences WHERE application_id = ? ORDER BY start_date DESC", app.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve experiences"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"application": app,
		"documents":   documents,
		"experiences": experiences,
	})
}

type UpdateApplicationInput struct {
	Title       *string `json:"title" binding:"omitempty,min=1,max=255"`
	Specialty   *string `json:"specialty" binding:"omitempty,min=1,max=120"`
	CycleYear   *int    `json:"cycleYear" binding:"omitempty,min=2000,max=2100"`
	ServiceTier *string `json:"serviceTier"`
	Notes       *string `json:"notes"`
}

// UpdateApplication is the handler for PATCH /v1/applications/:id.
// Content can only change while the application is DRAFT or IN_REVIEW.
func (h *Handlers) UpdateApplication(c *gin.Context) {
	// 1. --- Get ID & Bind JSON ---
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var input UpdateApplicationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 2. --- Load & Check State ---
	app, ok := h.applicationFor(c, id)
	if !ok {
		return
	}
	if !app.Status.Editable() {
		c.JSON(http.StatusConflict, gin.H{"error": "Application can no longer be edited"})
		return
	}

	// 3. --- Apply Changes ---
	if input.Title != nil {
		app.Title = strings.TrimSpace(*input.Title)
	}
	if input.Specialty != nil {
		app.Specialty = strings.TrimSpace(*input.Specialty)
	}
	if input.CycleYear != nil {
		app.CycleYear = *input.CycleYear
	}
	if input.ServiceTier != nil {
		app.ServiceTier = input.ServiceTier
	}
	if input.Notes != nil {
		app.Notes = input.Notes
	}
	app.UpdatedAt = h.now()

	_, err := h.DB.NamedExecContext(c.Request.Context(), `
		UPDATE applications
		SET title = :title, specialty = :specialty, cycle_year = :cycle_year,
		    service_tier = :service_tier, notes = :notes, updated_at = :updated_at
		WHERE id = :id AND user_id = :user_id`, app)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update application"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"application": app})
}

// DeleteApplication is the handler for DELETE /v1/applications/:id.
func (h *Handlers) DeleteApplication(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	app, ok := h.applicationFor(c, id)
	if !ok {
		return
	}
	if app.Status != models.StatusDraft {
		c.JSON(http.StatusConflict, gin.H{"error": "Only draft applications can be deleted"})
		return
	}
	// A returned application keeps the credit it was charged, so it stays.
	if app.SubmittedAt != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Applications that were submitted for review cannot be deleted"})
		return
	}

	if _, err := h.DB.ExecContext(c.Request.Context(),
		"DELETE FROM applications WHERE id = ? AND user_id = ?", app.ID, app.UserID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete application"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Application deleted"})
}

type StatusInput struct {
	Status models.ApplicationStatus `json:"status" binding:"required"`
}

// ChangeApplicationStatus is the handler for POST /v1/applications/:id/status.
// Moving to SUBMITTED the first time spends a review credit.
func (h *Handlers) ChangeApplicationStatus(c *gin.Context) {
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
	userID := currentUserID(c)
	ctx := c.Request.Context()

	// 2. --- Start Transaction ---
	tx, err := h.DB.BeginTxx(ctx, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction"})
		return
	}
	defer tx.Rollback()

	// 3. --- Lock Row & Check Transition ---
	var app models.Application
	err = tx.GetContext(ctx, &app,
		"SELECT "+applicationColumns+" FROM applications WHERE id = ? AND user_id = ? FOR UPDATE", id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Application not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if err := models.CheckTransition(models.RoleApplicant, app.Status, input.Status); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("Cannot move application from %s to %s", app.Status, input.Status)})
		return
	}

	// 4. --- Spend a Review Credit on First Submit ---
	now := h.now()
	firstSubmit := input.Status == models.StatusSubmitted && app.SubmittedAt == nil
	if firstSubmit {
		if err := payments.LockUser(ctx, tx, userID); err != nil {
			h.Log.WithError(err).WithField("user_id", userID).Error("failed to lock user for credit check")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check review credits"})
			return
		}
		credits, err := payments.ReviewCredits(ctx, tx, userID, now)
		if err != nil {
			h.Log.WithError(err).WithField("user_id", userID).Error("failed to compute review credits")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check review credits"})
			return
		}
		if !credits.CanSubmit() {
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "No review credits left. Please purchase a plan to submit."})
			return
		}
		source := credits.Source()
		app.SubmittedAt = &now
		app.CreditSource = &source
	}

	// 5. --- Update Status ---
	app.Status = input.Status
	app.UpdatedAt = now
	_, err = tx.ExecContext(ctx,
		"UPDATE applications SET status = ?, submitted_at = ?, credit_source = ?, updated_at = ? WHERE id = ?",
		app.Status, app.SubmittedAt, app.CreditSource, app.UpdatedAt, app.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update status"})
		return
	}

	// 6. --- Commit Transaction ---
	if err := tx.Commit(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit transaction"})
		return
	}

	// 7. --- Notify Admin ---
	if app.Status == models.StatusSubmitted {
		h.notifySubmitted(ctx, &app)
	}

	c.JSON(http.StatusOK, gin.H{"application": app})
}

func (h *Handlers) notifySubmitted(ctx context.Context, app *models.Application) {
	var applicant struct {
		FullName string `db:"full_name"`
		Email    string `db:"email"`
	}
	if err := h.DB.GetContext(ctx, &applicant,
		"SELECT full_name, email FROM users WHERE id = ?", app.UserID); err != nil {
		h.Log.WithError(err).WithField("application_id", app.ID).Warn("failed to load applicant for notice")
		return
	}
	h.sendEmail(ctx, email.TemplateApplicationAdmin, map[string]any{
		"ApplicationID":  app.ID,
		"Title":          app.Title,
		"Specialty":      app.Specialty,
		"CycleYear":      app.CycleYear,
		"ApplicantName":  applicant.FullName,
		"ApplicantEmail": applicant.Email,
	}, "")
}

// ListApplicationReviews is the handler for GET /v1/applications/:id/reviews.
// Applicants only see published reviews.
func (h *Handlers) ListApplicationReviews(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	app, ok := h.applicationFor(c, id)
	if !ok {
		return
	}

	reviews := []models.Review{}
	err := h.DB.SelectContext(c.Request.Context(), &reviews,
		"SELECT "+reviewColumns+" FROM reviews WHERE application_id = ? AND status = ? ORDER BY created_at DESC",
		app.ID, models.ReviewStatusPublished)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve reviews"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviews": reviews})
}
