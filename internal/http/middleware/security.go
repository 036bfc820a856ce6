package middleware

import "github.com/gin-gonic/gin"

// NoStore adds baseline hardening headers and disables caching. Progress
// and metrics are live values, so no intermediary may serve a stale copy.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		h.Set("Pragma", "no-cache")
		c.Next()
	}
}
