package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// WebhookSecret rejects requests whose X-Telegram-Bot-Api-Secret-Token does
// not match secret. Telegram sends the header on every webhook delivery once
// setWebhook was called with secret_token. An empty secret rejects all.
func WebhookSecret(secret string) gin.HandlerFunc {
	want := []byte(secret)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader(HeaderWebhookSecret))
		if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
			webhookRejected.WithLabelValues("bad_secret").Inc()
			LoggerFrom(c).Warn().Bool("header_present", len(got) > 0).Msg("webhook secret mismatch")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       "unauthorized",
				"message":    "invalid webhook secret",
			})
			return
		}
		c.Next()
	}
}
