package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/azzam1122112-dot/school-display/internal/store"
)

const (
	// Fixed window sized for ~1 req/s steady with room for short bursts
	// (first load fires status + snapshot + a retry back-to-back).
	rateWindow = 10 * time.Second
	rateMax    = 12
)

// RateLimit enforces the per-(token, device) budget shared by the status and
// snapshot endpoints. A store outage fails open: polling must keep working
// when Redis is down.
func RateLimit(st *store.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Param("token")
		deviceID := c.Query("dk")
		if token == "" {
			c.Next()
			return
		}

		key := store.RateLimitKey(hashToken(token), deviceID)
		ctx := c.Request.Context()

		n, err := st.Incr(ctx, key)
		if err != nil {
			log.Printf("⚠️ rate limit incr failed: %v", err)
			c.Next()
			return
		}
		if n == 1 {
			if err := st.Expire(ctx, key, rateWindow); err != nil {
				log.Printf("⚠️ rate limit expire failed: %v", err)
			}
		}

		if n > rateMax {
			// Empty body: the client only acts on the status and
			// Retry-After guidance.
			c.Header("Retry-After", "15")
			c.Header("Cache-Control", "no-store")
			c.AbortWithStatus(http.StatusTooManyRequests)
			return
		}

		c.Next()
	}
}

// hashToken keeps raw screen tokens out of Redis keys.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
