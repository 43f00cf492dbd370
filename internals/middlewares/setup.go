package middlewares

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// SetupMiddlewares registers the global chain: recovery, CORS, rate limiting.
func SetupMiddlewares(app *fiber.App, origins []string, logger *zap.Logger) {
	app.Use(RecoveryMiddleware(logger))
	app.Use(CorsMiddleware(origins))
	app.Use(GlobalRateLimiter())
}
