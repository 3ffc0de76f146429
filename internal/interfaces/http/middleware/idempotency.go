package middleware

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"xchain-router.backend/pkg/redis"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	// LockDuration is the time we hold the lock while processing
	LockDuration = 30 * time.Second
	// RetentionDuration is how long we keep the response
	RetentionDuration = 24 * time.Hour
)

var (
	redisGet   = redis.Get
	redisSet   = redis.Set
	redisSetNX = redis.SetNX
	redisDel   = redis.Del
)

type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyMiddleware ensures that the same request is not processed twice
func IdempotencyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. Check if Idempotency-Key header is present
		key := c.GetHeader(IdempotencyHeader)
		if key == "" {
			c.Next()
			return
		}

		// 2. Generate a unique key for storage (Prefix + UserID + Key)
		// Assuming we have UserID from AuthMiddleware
		// If perfectly validating, we should also hash body, but Key is usually enough trust.
		userID := c.GetString("user_id") // Ensure AuthMiddleware sets this
		storageKey := fmt.Sprintf("idempotency:%s:%s", userID, key)

		// 3. Check Redis for existing key
		ctx := c.Request.Context()

		// We use SetNX to acquire a lock.
		// Value "processing" indicates work in progress.
		// If SetNX returns true, we are the first.
		// If false, check if value is "processing" or actual response.

		// Simple approach:
		// Check Get.
		val, err := redisGet(ctx, storageKey)
		if err == nil {
			// Key exists
			if val == "processing" {
				// 409 Conflict - Request in progress
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{
					"error": "Request already in progress",
					"code":  "ERR_IDEMPOTENCY_CONFLICT",
				})
				return
			}

			// Return cached response
			// Note: We need to store status code and body.
			// Simplified: Just body for now, assuming 200/201?
			// No, providing full idempotency is complex.

			// Let's implement full response replay if needed, OR just "Already Processed" message.
			// Most payment APIs return the existing resource.
			// Ideally we fetch the Payment ID from Redis and return redirects or fetch logic.

			// For this MVP:
			// If we find a cached response, we write it back.
			// We need to unmarshal the stored response.

			// The stored value is the handler's response body; it is replayed
			// as-is with status 200.

			c.Header("Content-Type", "application/json")
			c.Header("X-Idempotency-Hit", "true")
			c.String(http.StatusOK, val) // Assuming val is the JSON body
			c.Abort()
			return
		} else if err.Error() != "redis: nil" {
			// Redis error
			// Log and proceed? Or fail? Fail safe.
			c.Next()
			return
		}

		// 4. Set "processing" state
		success, err := redisSetNX(ctx, storageKey, "processing", LockDuration)
		if err != nil || !success {
			// Race condition or locked
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"error": "Request in progress",
			})
			return
		}

		// 5. Wrap ResponseWriter to capture body
		w := &responseWriter{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
		c.Writer = w

		// 6. Process Request
		c.Next()

		// 7. Store Result if Successful (2xx)
		if c.Writer.Status() >= 200 && c.Writer.Status() < 300 {
			// Store the body
			_ = redisSet(ctx, storageKey, w.body.String(), RetentionDuration)
		} else {
			// Remove key so retry is possible
			_ = redisDel(ctx, storageKey)
		}
	}
}
