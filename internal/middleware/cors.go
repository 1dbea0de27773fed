package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CORSMiddleware tells the browser that the front-end origin may call us.
func CORSMiddleware(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. Strictly allow ONLY the configured front-end
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Vary", "Origin")

		// 2. Allow standard security credentials
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")

		// 3. Allow the headers we actually use ("Authorization" carries the JWT)
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Accept, Origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		// 4. Preflight requests stop here
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
