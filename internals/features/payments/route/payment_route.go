package route

import (
	"github.com/gofiber/fiber/v2"

	paymentController "storefront_backend/internals/features/payments/controller"
	middlewares "storefront_backend/internals/middlewares"
)

/*
Mounted at /api/payments:
- POST /create
- POST /retry              (customer bearer token)
- GET  /status?paymentId=
- POST /sync-status
- POST /webhook            (HMAC signed)
- POST /webhook/midtrans   (signature_key in body)
*/
func PaymentRoutes(r fiber.Router, ctl *paymentController.PaymentController, requireCustomer fiber.Handler) {
	pay := r.Group("/payments")

	pay.Post("/create", middlewares.PaymentRateLimiter(), ctl.Create)
	pay.Post("/retry", middlewares.PaymentRateLimiter(), requireCustomer, ctl.Retry)
	pay.Get("/status", ctl.Status)
	pay.Post("/sync-status", ctl.SyncStatus)

	pay.Post("/webhook", ctl.Webhook)
	pay.Post("/webhook/midtrans", ctl.MidtransWebhook)
}
