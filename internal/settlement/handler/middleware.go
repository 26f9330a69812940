package handler

import (
	"crypto/subtle"
	"net/http"

	"tripdesk_backend/platform/config"

	"github.com/gin-gonic/gin"
)

// WebhookKeyHeader carries the shared secret on payment webhook calls.
const WebhookKeyHeader = "X-Webhook-Key"

// WebhookKeyAuth validates the payment webhook shared secret. The processor is
// a machine caller, so this replaces the JWT middleware on the webhook route.
func WebhookKeyAuth(cfg config.WebhookConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader(WebhookKeyHeader)
		if provided == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing webhook key"})
			return
		}

		expected := cfg.GetPaymentWebhookKey()
		if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook key"})
			return
		}

		c.Next()
	}
}
