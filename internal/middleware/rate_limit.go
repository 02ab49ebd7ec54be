package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	// Per-endpoint limits
	LoginMaxAttempts    = 5
	RegisterMaxAttempts = 3
	APIMaxRequests      = 100 // per minute for general endpoints
	CartMaxRequests     = 20
	SearchMaxRequests   = 30
	CheckoutMaxRequests = 10

	// Windows
	LoginCooldown    = 15 * time.Minute
	RegisterCooldown = 30 * time.Minute
	APICooldown      = 1 * time.Minute
)

// Counter is a fixed-window counter; *cache.Cache implements it on Redis.
type Counter interface {
	IncrementRateLimit(ctx context.Context, key string, window time.Duration) (int64, error)
	Delete(ctx context.Context, keys ...string) error
}

// RateLimiter builds the limiting middlewares on one counter.
type RateLimiter struct {
	counter Counter
}

func NewRateLimiter(counter Counter) *RateLimiter {
	return &RateLimiter{counter: counter}
}

// allow counts one hit on key. Redis failures let the request through.
func (r *RateLimiter) allow(c *gin.Context, key string, max int64, window time.Duration) (int64, bool) {
	n, err := r.counter.IncrementRateLimit(c.Request.Context(), key, window)
	if err != nil {
		log.Printf("⚠️ Rate limit counter unavailable for %s: %v", key, err)
		return 0, true
	}
	c.Header("X-RateLimit-Limit", strconv.FormatInt(max, 10))
	if remaining := max - n; remaining >= 0 {
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	}
	return n, n <= max
}

func tooMany(c *gin.Context, message string, retryAfter time.Duration) {
	c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error":       message,
		"retry_after": int(retryAfter.Seconds()),
	})
	c.Abort()
}

// LoginRateLimit limits login attempts per email. A successful login resets the count.
func (r *RateLimiter) LoginRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		bodyBytes, _ := io.ReadAll(c.Request.Body)
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		var input struct {
			Email string `json:"email"`
		}
		if err := json.Unmarshal(bodyBytes, &input); err != nil || input.Email == "" {
			c.Next()
			return
		}

		key := "login_attempts:" + strings.ToLower(strings.TrimSpace(input.Email))
		if _, ok := r.allow(c, key, LoginMaxAttempts, LoginCooldown); !ok {
			tooMany(c, fmt.Sprintf("Too many failed attempts. Try again in %d minutes", int(LoginCooldown.Minutes())), LoginCooldown)
			return
		}

		c.Next()

		if c.Writer.Status() == http.StatusOK {
			if err := r.counter.Delete(c.Request.Context(), key); err != nil {
				log.Printf("⚠️ Login attempts for %s not reset: %v", input.Email, err)
			}
		}
	}
}

// RegisterRateLimit limits sign-ups per IP.
func (r *RateLimiter) RegisterRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := r.allow(c, "register_attempts:"+c.ClientIP(), RegisterMaxAttempts, RegisterCooldown); !ok {
			tooMany(c, fmt.Sprintf("Too many sign-ups. Try again in %d minutes", int(RegisterCooldown.Minutes())), RegisterCooldown)
			return
		}
		c.Next()
	}
}

// APIRateLimit limits requests per IP across the API.
func (r *RateLimiter) APIRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := r.allow(c, "api_requests:"+c.ClientIP(), APIMaxRequests, APICooldown); !ok {
			tooMany(c, "Too many requests. Try again in 1 minute", APICooldown)
			return
		}
		c.Next()
	}
}

// CartRateLimit limits cart writes per user.
func (r *RateLimiter) CartRateLimit() gin.HandlerFunc {
	return r.perUser("cart_writes:", CartMaxRequests, "Too many cart updates. Slow down a little")
}

// CheckoutRateLimit limits checkout starts per user.
func (r *RateLimiter) CheckoutRateLimit() gin.HandlerFunc {
	return r.perUser("checkout_starts:", CheckoutMaxRequests, "Too many checkout attempts. Try again in 1 minute")
}

// SearchRateLimit limits searches per IP.
func (r *RateLimiter) SearchRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := r.allow(c, "search_requests:"+c.ClientIP(), SearchMaxRequests, time.Minute); !ok {
			tooMany(c, "Too many searches. Try again in 1 minute", time.Minute)
			return
		}
		c.Next()
	}
}

func (r *RateLimiter) perUser(prefix string, max int64, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		if userID == "" {
			c.Next()
			return
		}
		if _, ok := r.allow(c, prefix+userID, max, time.Minute); !ok {
			tooMany(c, message, time.Minute)
			return
		}
		c.Next()
	}
}
