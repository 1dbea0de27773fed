package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/residencyreview/eras-review-api/internal/email"
	"github.com/residencyreview/eras-review-api/internal/models"
)

type ContactInput struct {
	Name    string `json:"name" binding:"required,max=255"`
	Email   string `json:"email" binding:"required,email"`
	Subject string `json:"subject" binding:"required,max=255"`
	Message string `json:"message" binding:"required,max=5000"`
}

// SubmitContact is the handler for POST /v1/contact
// The message is only emailed to the admin inbox, nothing is stored.
func (h *Handlers) SubmitContact(c *gin.Context) {
	var input ContactInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.Mailer.SendToAdmin(c.Request.Context(), email.TemplateContact, map[string]any{
		"Name":    strings.TrimSpace(input.Name),
		"Email":   input.Email,
		"Subject": strings.TrimSpace(input.Subject),
		"Message": input.Message,
	})
	if err != nil {
		h.Log.WithError(err).Error("failed to deliver contact message")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message, please try again later"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Thanks! We'll get back to you shortly."})
}

type InterviewRequestInput struct {
	Name           string  `json:"name" binding:"required,max=255"`
	Email          string  `json:"email" binding:"required,email"`
	Specialty      string  `json:"specialty" binding:"required,max=120"`
	PreferredDates string  `json:"preferredDates" binding:"max=500"`
	Notes          *string `json:"notes" binding:"omitempty,max=5000"`
}

// CreateInterviewRequest is the handler for POST /v1/interview-requests
// Works for visitors and signed-in applicants alike (OptionalAuth).
func (h *Handlers) CreateInterviewRequest(c *gin.Context) {
	// 1. --- Bind & Validate JSON ---
	var input InterviewRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 2. --- Save to Database ---
	now := h.now()
	req := models.InterviewRequest{
		Name:           strings.TrimSpace(input.Name),
		Email:          strings.ToLower(strings.TrimSpace(input.Email)),
		Specialty:      strings.TrimSpace(input.Specialty),
		PreferredDates: strings.TrimSpace(input.PreferredDates),
		Notes:          input.Notes,
		Status:         models.InterviewPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if userID := currentUserID(c); userID != 0 {
		req.UserID = &userID
	}
	result, err := h.DB.NamedExecContext(c.Request.Context(), `
		INSERT INTO interview_requests
		(user_id, name, email, specialty, preferred_dates, notes, status, created_at, updated_at)
		VALUES
		(:user_id, :name, :email, :specialty, :preferred_dates, :notes, :status, :created_at, :updated_at)`, req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save interview request"})
		return
	}
	req.ID, _ = result.LastInsertId()

	// 3. --- Confirmation & Admin Notice ---
	h.sendEmail(c.Request.Context(), email.TemplateInterviewConfirmed, map[string]any{
		"Name":      req.Name,
		"Specialty": req.Specialty,
	}, req.Email)
	notes := ""
	if req.Notes != nil {
		notes = *req.Notes
	}
	h.sendEmail(c.Request.Context(), email.TemplateInterviewAdmin, map[string]any{
		"RequestName":    req.Name,
		"RequestEmail":   req.Email,
		"Specialty":      req.Specialty,
		"PreferredDates": req.PreferredDates,
		"Notes":          notes,
	}, "")

	c.JSON(http.StatusCreated, gin.H{"interviewRequest": req})
}

// ListMyInterviewRequests is the handler for GET /v1/interview-requests
func (h *Handlers) ListMyInterviewRequests(c *gin.Context) {
	list := []models.InterviewRequest{}
	err := h.DB.SelectContext(c.Request.Context(), &list,
		"SELECT "+interviewColumns+" FROM interview_requests WHERE user_id = ? ORDER BY created_at DESC",
		currentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve interview requests"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"interviewRequests": list})
}
