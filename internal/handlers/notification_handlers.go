package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/residencyreview/eras-review-api/internal/models"
)

//
// --- Notification Handlers ---
//

// GetMyNotifications is the handler for GET /v1/notifications
// It retrieves the logged-in user's notifications, unread and newest first.
func (h *Handlers) GetMyNotifications(c *gin.Context) {
	// 1. --- Query Database ---
	query := `
		SELECT id, user_id, message, link, is_read, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY is_read ASC, created_at DESC
		LIMIT 50`

	notifications := []models.Notification{}
	if err := h.DB.SelectContext(c.Request.Context(), &notifications, query, currentUserID(c)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database query failed"})
		return
	}

	// 2. --- Count Unread ---
	unread := 0
	for _, n := range notifications {
		if !n.IsRead {
			unread++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": notifications,
		"unread":        unread,
	})
}

// MarkNotificationAsRead is the handler for PATCH /v1/notifications/:id/read
func (h *Handlers) MarkNotificationAsRead(c *gin.Context) {
	// 1. --- Get IDs ---
	notificationID, ok := paramID(c, "id")
	if !ok {
		return
	}

	// 2. --- Execute Update ---
	// Scoped to the owner so nobody can touch another user's notifications.
	result, err := h.DB.ExecContext(c.Request.Context(),
		"UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?",
		notificationID, currentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notification"})
		return
	}

	// 3. --- Check Rows Affected ---
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check affected rows"})
		return
	}
	if rowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}
