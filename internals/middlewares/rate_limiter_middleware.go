package middlewares

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	helper "storefront_backend/internals/helpers"
)

// Gateway callbacks come from a handful of provider IPs and must never be throttled.
func isWebhook(c *fiber.Ctx) bool {
	return strings.HasPrefix(c.Path(), "/api/payments/webhook")
}

// Global limiter: every route except webhooks
func GlobalRateLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Next:       isWebhook,
		Max:        100,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return helper.JsonError(c, fiber.StatusTooManyRequests, "too many requests, try again later")
		},
	})
}

// Payment creation is stricter: each call opens a gateway payment.
func PaymentRateLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        10,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return helper.JsonError(c, fiber.StatusTooManyRequests, "too many payment attempts, try again in a minute")
		},
	})
}
