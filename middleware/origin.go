package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Origin mirrors the permissive CORS policy of the demo deployment: the UI
// is served from arbitrary origins, so the relay answers everyone.
func Origin() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
