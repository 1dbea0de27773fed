package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/residencyreview/eras-review-api/internal/models"
)

const experienceColumns = `id, application_id, kind, organization, position, city, country, start_date, end_date,
	hours_per_week, description, is_most_meaningful, created_at, updated_at`

type ExperienceInput struct {
	Kind             string  `json:"kind" binding:"required,oneof=WORK VOLUNTEER RESEARCH EDUCATION LEADERSHIP TEACHING OTHER"`
	Organization     string  `json:"organization" binding:"required,max=255"`
	Position         string  `json:"position" binding:"required,max=255"`
	City             *string `json:"city"`
	Country          *string `json:"country"`
	StartDate        string  `json:"startDate" binding:"required,datetime=2006-01-02"`
	EndDate          *string `json:"endDate" binding:"omitempty,datetime=2006-01-02"`
	HoursPerWeek     *int    `json:"hoursPerWeek" binding:"omitempty,min=0,max=168"`
	Description      string  `json:"description" binding:"required"`
	IsMostMeaningful bool    `json:"isMostMeaningful"`
}

// dates parses the date strings and checks their order.
func (in ExperienceInput) dates() (time.Time, *time.Time, error) {
	start, err := time.Parse(time.DateOnly, in.StartDate)
	if err != nil {
		return time.Time{}, nil, err
	}
	if in.EndDate == nil {
		return start, nil, nil
	}
	end, err := time.Parse(time.DateOnly, *in.EndDate)
	if err != nil {
		return time.Time{}, nil, err
	}
	if end.Before(start) {
		return time.Time{}, nil, errors.New("endDate must not be before startDate")
	}
	return start, &end, nil
}

// mostMeaningfulCount counts flagged experiences, ignoring excludeID.
func (h *Handlers) mostMeaningfulCount(ctx context.Context, appID, excludeID int64) (int, error) {
	var n int
	err := h.DB.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM experiences WHERE application_id = ? AND is_most_meaningful = 1 AND id <> ?",
		appID, excludeID)
	return n, err
}

// CreateExperience is the handler for POST /v1/applications/:id/experiences.
func (h *Handlers) CreateExperience(c *gin.Context) {
	// 1. --- Get ID & Bind JSON ---
	appID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var input ExperienceInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, end, err := input.dates()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 2. --- Check Ownership & State ---
	app, ok := h.applicationFor(c, appID)
	if !ok {
		return
	}
	if !app.Status.Editable() {
		c.JSON(http.StatusConflict, gin.H{"error": "Application can no longer be edited"})
		return
	}

	// 3. --- Enforce Most-Meaningful Cap ---
	if input.IsMostMeaningful {
		n, err := h.mostMeaningfulCount(c.Request.Context(), app.ID, 0)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		if n >= models.MaxMostMeaningful {
			c.JSON(http.StatusConflict, gin.H{"error": "At most 3 experiences can be marked most meaningful"})
			return
		}
	}

	// 4. --- Save to Database ---
	now := h.now()
	exp := models.Experience{
		ApplicationID:    app.ID,
		Kind:             input.Kind,
		Organization:     strings.TrimSpace(input.Organization),
		Position:         strings.TrimSpace(input.Position),
		City:             input.City,
		Country:          input.Country,
		StartDate:        start,
		EndDate:          end,
		HoursPerWeek:     input.HoursPerWeek,
		Description:      input.Description,
		IsMostMeaningful: input.IsMostMeaningful,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	result, err := h.DB.NamedExecContext(c.Request.Context(), `
		INSERT INTO experiences
		(application_id, kind, organization, position, city, country, start_date, end_date,
		 hours_per_week, description, is_most_meaningful, created_at, updated_at)
		VALUES
		(:application_id, :kind, :organization, :position, :city, :country, :start_date, :end_date,
		 :hours_per_week, :description, :is_most_meaningful, :created_at, :updated_at)`, exp)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create experience"})
		return
	}
	exp.ID, _ = result.LastInsertId()

	c.JSON(http.StatusCreated, gin.H{"experience": exp})
}

// ListExperiences is the handler for GET /v1/applications/:id/experiences.
func (h *Handlers) ListExperiences(c *gin.Context) {
	appID, ok := paramID(c, "id")
	if !ok {
		return
	}
	app, ok := h.applicationFor(c, appID)
	if !ok {
		return
	}

	experiences := []models.Experience{}
	if err := h.DB.SelectContext(c.Request.Context(), &experiences,
		"SELECT "+experienceColumns+" FROM experiences WHERE application_id = ? ORDER BY start_date DESC", app.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve experiences"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"experiences": experiences})
}

func (h *Handlers) ownedExperience(c *gin.Context) (*models.Experience, *models.Application, bool) {
	id, ok := paramID(c, "id")
	if !ok {
		return nil, nil, false
	}
	var exp models.Experience
	err := h.DB.GetContext(c.Request.Context(), &exp, `
		SELECT e.id, e.application_id, e.kind, e.organization, e.position, e.city, e.country, e.start_date,
		       e.end_date, e.hours_per_week, e.description, e.is_most_meaningful, e.created_at, e.updated_at
		FROM experiences e
		JOIN applications a ON a.id = e.application_id
		WHERE e.id = ? AND a.user_id = ?`, id, currentUserID(c))
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Experience not found"})
		return nil, nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return nil, nil, false
	}
	app, ok := h.applicationFor(c, exp.ApplicationID)
	if !ok {
		return nil, nil, false
	}
	return &exp, app, true
}

type UpdateExperienceInput struct {
	Kind             *string `json:"kind" binding:"omitempty,oneof=WORK VOLUNTEER RESEARCH EDUCATION LEADERSHIP TEACHING OTHER"`
	Organization     *string `json:"organization" binding:"omitempty,min=1,max=255"`
	Position         *string `json:"position" binding:"omitempty,min=1,max=255"`
	City             *string `json:"city"`
	Country          *string `json:"country"`
	StartDate        *string `json:"startDate" binding:"omitempty,datetime=2006-01-02"`
	EndDate          *string `json:"endDate" binding:"omitempty,datetime=2006-01-02"`
	HoursPerWeek     *int    `json:"hoursPerWeek" binding:"omitempty,min=0,max=168"`
	Description      *string `json:"description" binding:"omitempty,min=1"`
	IsMostMeaningful *bool   `json:"isMostMeaningful"`
}

// UpdateExperience is the handler for PATCH /v1/experiences/:id.
func (h *Handlers) UpdateExperience(c *gin.Context) {
	// 1. --- Bind JSON ---
	var input UpdateExperienceInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 2. --- Load & Check State ---
	exp, app, ok := h.ownedExperience(c)
	if !ok {
		return
	}
	if !app.Status.Editable() {
		c.JSON(http.StatusConflict, gin.H{"error": "Application can no longer be edited"})
		return
	}

	// 3. --- Apply Changes ---
	if input.Kind != nil {
		exp.Kind = *input.Kind
	}
	if input.Organization != nil {
		exp.Organization = strings.TrimSpace(*input.Organization)
	}
	if input.Position != nil {
		exp.Position = strings.TrimSpace(*input.Position)
	}
	if input.City != nil {
		exp.City = input.City
	}
	if input.Country != nil {
		exp.Country = input.Country
	}
	if input.StartDate != nil {
		exp.StartDate, _ = time.Parse(time.DateOnly, *input.StartDate)
	}
	if input.EndDate != nil {
		end, _ := time.Parse(time.DateOnly, *input.EndDate)
		exp.EndDate = &end
	}
	if exp.EndDate != nil && exp.EndDate.Before(exp.StartDate) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endDate must not be before startDate"})
		return
	}
	if input.HoursPerWeek != nil {
		exp.HoursPerWeek = input.HoursPerWeek
	}
	if input.Description != nil {
		exp.Description = *input.Description
	}

	// 4. --- Enforce Most-Meaningful Cap ---
	if input.IsMostMeaningful != nil && *input.IsMostMeaningful && !exp.IsMostMeaningful {
		n, err := h.mostMeaningfulCount(c.Request.Context(), app.ID, exp.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		if n >= models.MaxMostMeaningful {
			c.JSON(http.StatusConflict, gin.H{"error": "At most 3 experiences can be marked most meaningful"})
			return
		}
	}
	if input.IsMostMeaningful != nil {
		exp.IsMostMeaningful = *input.IsMostMeaningful
	}
	exp.UpdatedAt = h.now()

	// 5. --- Execute Update ---
	_, err := h.DB.NamedExecContext(c.Request.Context(), `
		UPDATE experiences
		SET kind = :kind, organization = :organization, position = :position, city = :city, country = :country,
		    start_date = :start_date, end_date = :end_date, hours_per_week = :hours_per_week,
		    description = :description, is_most_meaningful = :is_most_meaningful, updated_at = :updated_at
		WHERE id = :id`, exp)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update experience"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"experience": exp})
}

// DeleteExperience is the handler for DELETE /v1/experiences/:id.
func (h *Handlers) DeleteExperience(c *gin.Context) {
	exp, app, ok := h.ownedExperience(c)
	if !ok {
		return
	}
	if !app.Status.Editable() {
		c.JSON(http.StatusConflict, gin.H{"error": "Application can no longer be edited"})
		return
	}
	if _, err := h.DB.ExecContext(c.Request.Context(), "DELETE FROM experiences WHERE id = ?", exp.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete experience"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Experience deleted"})
}
