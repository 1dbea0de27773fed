package middleware

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/residencyreview/eras-review-api/internal/auth"
	"github.com/residencyreview/eras-review-api/internal/models"
)

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(c *gin.Context) (string, bool) {
	parts := strings.Split(c.GetHeader("Authorization"), " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// AuthMiddleware is the "security guard" for logged-in routes. It validates the
// JWT, then re-reads the account so suspended users are locked out at once.
func AuthMiddleware(db *sqlx.DB, tokens *auth.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. --- Get Authorization Header ---
		if c.GetHeader("Authorization") == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}
		tokenString, ok := bearerToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token format (must be Bearer)"})
			c.Abort()
			return
		}

		// 2. --- Validate Token ---
		claims, err := tokens.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		// 3. --- Check Account Status ---
		var status string
		err = db.QueryRowContext(c.Request.Context(), "SELECT status FROM users WHERE id = ?", claims.UserID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user"})
			c.Abort()
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error checking account"})
			c.Abort()
			return
		}
		if status == models.UserStatusSuspended {
			c.JSON(http.StatusForbidden, gin.H{"error": "Account suspended"})
			c.Abort()
			return
		}

		// 4. --- Success ---
		c.Set("userID", claims.UserID)
		c.Set("userRole", claims.Role)
		c.Next()
	}
}

// OptionalAuth sets userID when a valid token is present and lets anonymous
// requests through untouched.
func OptionalAuth(tokens *auth.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString, ok := bearerToken(c); ok {
			if claims, err := tokens.ValidateToken(tokenString); err == nil {
				c.Set("userID", claims.UserID)
				c.Set("userRole", claims.Role)
			}
		}
		c.Next()
	}
}
