package route

import (
	"github.com/gofiber/fiber/v2"

	deliveryController "storefront_backend/internals/features/settings/delivery/controller"
)

// Mounted at /api/settings/delivery
func DeliveryRoutes(r fiber.Router, ctl *deliveryController.DeliveryController) {
	r.Get("/settings/delivery", ctl.Get)
}
