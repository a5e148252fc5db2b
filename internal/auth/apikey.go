// Package auth gates the Frame Delivery Endpoint's non-frame routes
// (/status, /people-count, /tracking/stats, /ws/stats) behind a shared API
// key — the core never issues or verifies user accounts (§1 Non-goals); this
// is the one narrow credential the process itself checks.
package auth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

const headerName = "X-API-Key"

// APIKeyMiddleware validates the API key from the X-API-Key header and logs
// rejected attempts with the request id stamped by requestIDMiddleware, so a
// rejected poll from the UI is traceable in the same log stream as the
// request it belongs to. If apiKey is empty, authentication is disabled —
// the default for a single-operator deployment behind its own reverse proxy.
func APIKeyMiddleware(apiKey string, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}

		provided := c.GetHeader(headerName)
		if provided == "" {
			logger.Warn("rejected request: missing api key", "path", c.Request.URL.Path, "request_id", c.GetString("request_id"))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing API key",
			})
			return
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			logger.Warn("rejected request: invalid api key", "path", c.Request.URL.Path, "request_id", c.GetString("request_id"))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "invalid API key",
			})
			return
		}

		c.Next()
	}
}
