package middleware

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	// Global limits (per IP)
	GlobalAPIMax        int
	GlobalAPIExpiration time.Duration

	// Upload limits (per IP) - parsing large files is expensive
	UploadMax        int
	UploadExpiration time.Duration

	// Reconcile limits (per IP) - each run burns LLM quota
	ReconcileMax        int
	ReconcileExpiration time.Duration
}

// DefaultRateLimitConfig returns production-safe defaults
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		// Global: 200/min = ~3.3 req/sec - generous for polling clients
		GlobalAPIMax:        200,
		GlobalAPIExpiration: 1 * time.Minute,

		// Uploads: 10/min
		UploadMax:        10,
		UploadExpiration: 1 * time.Minute,

		// Reconcile runs: 5/min
		ReconcileMax:        5,
		ReconcileExpiration: 1 * time.Minute,
	}
}

// LoadRateLimitConfig loads config from environment variables with defaults
func LoadRateLimitConfig() *RateLimitConfig {
	config := DefaultRateLimitConfig()

	if v := os.Getenv("RATE_LIMIT_GLOBAL_API"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.GlobalAPIMax = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_UPLOAD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.UploadMax = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_RECONCILE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.ReconcileMax = n
		}
	}

	// Development mode: more lenient limits
	if os.Getenv("ENVIRONMENT") == "development" {
		config.GlobalAPIMax = 1000
		config.UploadMax = 100
		config.ReconcileMax = 50
		log.Println("⚠️ [RATE-LIMIT] Development mode: using relaxed rate limits")
	}

	return config
}

// GlobalAPIRateLimiter creates a rate limiter for all API requests
func GlobalAPIRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.GlobalAPIMax,
		Expiration: config.GlobalAPIExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "global:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] Global limit reached for IP: %s", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many requests. Please slow down.",
				"retry_after": int(config.GlobalAPIExpiration.Seconds()),
			})
		},
	})
}

// UploadRateLimiter protects the file upload endpoint
func UploadRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.UploadMax,
		Expiration: config.UploadExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "upload:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("⚠️ [RATE-LIMIT] Upload limit reached for IP: %s", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many uploads. Please wait before uploading more files.",
				"retry_after": int(config.UploadExpiration.Seconds()),
			})
		},
	})
}

// ReconcileRateLimiter protects the reconciliation run endpoint
func ReconcileRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.ReconcileMax,
		Expiration: config.ReconcileExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "reconcile:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("⚠️ [RATE-LIMIT] Reconcile limit reached for IP: %s", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many reconciliation runs. Please wait before starting another.",
				"retry_after": int(config.ReconcileExpiration.Seconds()),
			})
		},
	})
}
