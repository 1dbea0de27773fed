package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/residencyreview/eras-review-api/internal/ai"
	"github.com/residencyreview/eras-review-api/internal/models"
)

// InsightsInput defines the structure of the JSON request body.
type InsightsInput struct {
	Question string `json:"question" binding:"required,max=2000"`
}

// AdminInsights handles POST /v1/admin/insights.
// The assistant may only read the database through the read-only pool.
func (h *Handlers) AdminInsights(c *gin.Context) {
	// 1. Check the assistant is configured
	if h.Insights == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Insights assistant is not configured"})
		return
	}

	// 2. Parse Input
	var input InsightsInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 3. Ask the assistant
	answer, tokens, err := h.Insights.Ask(c.Request.Context(), input.Question)
	if errors.Is(err, ai.ErrInsightsDisabled) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Insights assistant is not configured"})
		return
	}
	if err != nil {
		h.Log.WithError(err).Error("insights assistant failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Insights assistant unavailable"})
		return
	}

	// 4. Save to History
	// The admin already has the answer, so a failed insert is only logged.
	insight := models.AIInsight{
		UserID:     currentUserID(c),
		Question:   input.Question,
		Answer:     answer,
		TokensUsed: tokens,
		CreatedAt:  h.now(),
	}
	_, err = h.DB.NamedExecContext(c.Request.Context(), `
		INSERT INTO ai_insight_history (user_id, question, answer, tokens_used, created_at)
		VALUES (:user_id, :question, :answer, :tokens_used, :created_at)`, insight)
	if err != nil {
		h.Log.WithError(err).Warn("failed to save insight history")
	}

	// 5. Return the Answer
	c.JSON(http.StatusOK, gin.H{
		"answer":     answer,
		"tokensUsed": tokens,
	})
}
