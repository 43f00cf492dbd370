// file: internals/route/index.go
package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	paymentController "storefront_backend/internals/features/payments/controller"
	paymentRoute "storefront_backend/internals/features/payments/route"
	deliveryController "storefront_backend/internals/features/settings/delivery/controller"
	deliveryRoute "storefront_backend/internals/features/settings/delivery/route"
)

var startTime time.Time

// Handlers is everything main wires before mounting routes.
type Handlers struct {
	DB              *gorm.DB
	Env             string
	Payments        *paymentController.PaymentController
	Delivery        *deliveryController.DeliveryController
	RequireCustomer fiber.Handler
}

func SetupRoutes(app *fiber.App, h Handlers, log *zap.Logger) {
	startTime = time.Now()

	BaseRoutes(app, h.DB, h.Env)

	api := app.Group("/api")

	log.Info("mounting payment routes")
	paymentRoute.PaymentRoutes(api, h.Payments, h.RequireCustomer)

	log.Info("mounting settings routes")
	deliveryRoute.DeliveryRoutes(api, h.Delivery)
}
