package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ==================== 同步限流中间件 ====================

// SyncRateLimit rejects a manual trigger of syncType within interval of the
// previous one. interval 0 uses the default of the type.
//
//	api.POST("/sync/products",
//	    middleware.SyncRateLimit(middleware.SyncTypeProducts, cfg.Server.SyncCooldown),
//	    syncCtl.SyncProducts,
//	)
func SyncRateLimit(syncType SyncType, interval time.Duration) gin.HandlerFunc {
	return syncRateLimit(GetLimiter(), syncType, interval)
}

func syncRateLimit(limiter *SyncRateLimiter, syncType SyncType, interval time.Duration) gin.HandlerFunc {
	if interval == 0 {
		interval = GetInterval(syncType)
	}

	return func(c *gin.Context) {
		result := limiter.Check(GlobalSyncKey(syncType), interval)
		if !result.Allowed {
			retryAfter := int(result.RetryAfter.Seconds()) + 1
			c.Header("Retry-After", fmt.Sprint(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    429,
				"message": formatRetryMessage(result.RetryAfter),
				"data": gin.H{
					"retry_after": retryAfter,
					"sync_type":   syncType,
				},
			})
			return
		}
		c.Next()
	}
}

func formatRetryMessage(d time.Duration) string {
	seconds := int(d.Seconds()) + 1
	if seconds < 60 {
		return fmt.Sprintf("sync cooling down, retry in %d s", seconds)
	}
	minutes, rest := seconds/60, seconds%60
	if rest == 0 {
		return fmt.Sprintf("sync cooling down, retry in %d min", minutes)
	}
	return fmt.Sprintf("sync cooling down, retry in %d min %d s", minutes, rest)
}
