package middleware

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/residencyreview/eras-review-api/internal/models"
)

//
// --- Role-Based Middleware ---
//
// Runs AFTER AuthMiddleware. The role in the token may be stale, so the
// role is read from the DB again before admin routes run.
//

func queryUserRole(db *sqlx.DB, c *gin.Context, userID int64) (string, error) {
	var role string
	err := db.GetContext(c.Request.Context(), &role, "SELECT role FROM users WHERE id = ?", userID)
	return role, err
}

// AdminMiddleware lets only administrators through.
func AdminMiddleware(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. Get userID from AuthMiddleware
		userIDRaw, exists := c.Get("userID")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User ID not found in context (AuthMiddleware must run first)"})
			c.Abort()
			return
		}
		userID := userIDRaw.(int64)

		// 2. Query DB for user's role
		role, err := queryUserRole(db, c, userID)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user"})
			c.Abort()
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error checking role"})
			c.Abort()
			return
		}

		// 3. Check permission
		if role != models.RoleAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "Access denied: Admin role required"})
			c.Abort()
			return
		}

		// 4. Success! Add role to context and proceed.
		c.Set("userRole", role)
		c.Next()
	}
}
