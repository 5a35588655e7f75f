package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"moysklad_sync/internal/logger"
)

const WebhookSecretHeader = "X-Webhook-Secret"

// WebhookSecret rejects callbacks whose secret header verify refuses.
func WebhookSecret(verify func(header string) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !verify(c.GetHeader(WebhookSecretHeader)) {
			logger.Log.Warn("[Webhook] rejected callback with bad secret", zap.String("ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"message": "invalid webhook secret",
			})
			return
		}
		c.Next()
	}
}
