package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// APIKeyAuthMiddleware returns middleware that checks for a valid API
// key. The health endpoint is exempt. No-op if apiKey is empty.
func APIKeyAuthMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}

		if c.Request.URL.Path == "/api/v1/health" {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") && parts[1] == apiKey {
				c.Next()
				return
			}
		}

		if c.GetHeader("X-API-Key") == apiKey {
			c.Next()
			return
		}

		UnauthorizedError(c, "invalid or missing API key")
		c.Abort()
	}
}

// MaxBodySizeMiddleware returns middleware that rejects and then caps
// request bodies above maxBytes.
func MaxBodySizeMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil && c.Request.ContentLength > maxBytes {
			PayloadTooLargeError(c, fmt.Sprintf("request body too large, maximum %d bytes", maxBytes))
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// MaxIdeaBodyBytes bounds the body of idea-submission and
// recluster-trigger requests; the teacher uses the same bytes-based
// cap on its equivalent write endpoints.
const MaxIdeaBodyBytes = 1 * 1024 * 1024
