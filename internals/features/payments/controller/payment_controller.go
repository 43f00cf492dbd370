// file: internals/features/payments/controller/payment_controller.go
package controller

import (
	"context"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"storefront_backend/internals/features/payments/dto"
	"storefront_backend/internals/features/payments/model"
	svc "storefront_backend/internals/features/payments/service"
	helper "storefront_backend/internals/helpers"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	LocalUserID          = "user_id"
)

// PaymentService is what the handlers need from the reconciler.
type PaymentService interface {
	CreatePayment(ctx context.Context, in svc.CreatePaymentInput) (*model.Payment, error)
	RetryPayment(ctx context.Context, orderNumber, returnURL, userID, idempotencyKey string) (*model.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*model.Payment, error)
	SyncStatus(ctx context.Context, paymentID, orderNumber string) (svc.SyncResult, error)
	HandleNotification(ctx context.Context, n model.Notification, signature string) error
}

// NotificationParser verifies and decodes a provider's self-signed notification body.
type NotificationParser interface {
	ParseNotification(body []byte) (model.Notification, error)
}

type PaymentController struct {
	Service   PaymentService
	Verifier  *svc.WebhookVerifier
	Midtrans  NotificationParser
	Validator *validator.Validate
	Log       *zap.Logger
}

func NewPaymentController(service PaymentService, verifier *svc.WebhookVerifier, midtrans NotificationParser, logger *zap.Logger) *PaymentController {
	v := validator.New()
	// report json names in field errors
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return &PaymentController{
		Service:   service,
		Verifier:  verifier,
		Midtrans:  midtrans,
		Validator: v,
		Log:       logger.Named("payments"),
	}
}

/* =======================================================================
   POST /api/payments/create
======================================================================= */

func (h *PaymentController) Create(c *fiber.Ctx) error {
	var req dto.CreatePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.Validator.Struct(&req); err != nil {
		return helper.JsonValidationError(c, helper.FieldErrors(err))
	}

	p, err := h.Service.CreatePayment(c.UserContext(), req.ToInput(c.Get(HeaderIdempotencyKey)))
	if err != nil {
		return h.fail(c, "create payment", err)
	}
	return helper.JsonOK(c, dto.FromCreatedPayment(p))
}

/* =======================================================================
   POST /api/payments/retry  (bearer)
======================================================================= */

func (h *PaymentController) Retry(c *fiber.Ctx) error {
	userID, _ := c.Locals(LocalUserID).(string)
	if userID == "" {
		return helper.JsonError(c, fiber.StatusUnauthorized, "authorization required")
	}

	var req dto.RetryPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.Validator.Struct(&req); err != nil {
		return helper.JsonValidationError(c, helper.FieldErrors(err))
	}

	p, err := h.Service.RetryPayment(c.UserContext(), req.OrderNumber, req.ReturnURL, userID, c.Get(HeaderIdempotencyKey))
	if err != nil {
		return h.fail(c, "retry payment", err)
	}
	return helper.JsonOK(c, dto.FromCreatedPayment(p))
}

/* =======================================================================
   GET /api/payments/status?paymentId=
======================================================================= */

func (h *PaymentController) Status(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Query("paymentId"))
	if id == "" {
		return helper.JsonError(c, fiber.StatusBadRequest, "paymentId is required")
	}
	p, err := h.Service.GetPayment(c.UserContext(), id)
	if err != nil {
		return h.fail(c, "payment status", err)
	}
	return helper.JsonOK(c, dto.FromPayment(p))
}

/* =======================================================================
   POST /api/payments/sync-status
======================================================================= */

func (h *PaymentController) SyncStatus(c *fiber.Ctx) error {
	var req dto.SyncStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.Validator.Struct(&req); err != nil {
		return helper.JsonValidationError(c, helper.FieldErrors(err))
	}

	res, err := h.Service.SyncStatus(c.UserContext(), req.PaymentID, req.OrderNumber)
	if err != nil {
		return h.fail(c, "sync status", err)
	}
	return helper.JsonOK(c, dto.FromSyncResult(res))
}

/* =======================================================================
   Webhooks: only a bad signature is an error; everything else is acked
======================================================================= */

func (h *PaymentController) Webhook(c *fiber.Ctx) error {
	// fasthttp reuses the body buffer after the handler returns
	body := append([]byte(nil), c.Body()...)
	sig := c.Get(svc.SignatureHeader)
	if !h.Verifier.Verify(body, sig) {
		h.Log.Warn("webhook signature rejected", zap.String("ip", c.IP()))
		return helper.JsonError(c, fiber.StatusUnauthorized, "invalid signature")
	}

	n, err := svc.ParseYooKassaNotification(body)
	if err != nil {
		h.Log.Warn("webhook payload unreadable", zap.Error(err))
		return helper.JsonSuccess(c)
	}
	h.dispatch(c, n, sig)
	return helper.JsonSuccess(c)
}

func (h *PaymentController) MidtransWebhook(c *fiber.Ctx) error {
	if h.Midtrans == nil {
		return helper.JsonError(c, fiber.StatusNotFound, "midtrans is not configured")
	}
	body := append([]byte(nil), c.Body()...)
	n, err := h.Midtrans.ParseNotification(body)
	switch {
	case errors.Is(err, svc.ErrInvalidSignature):
		h.Log.Warn("midtrans signature rejected", zap.String("ip", c.IP()))
		return helper.JsonError(c, fiber.StatusUnauthorized, "invalid signature")
	case err != nil:
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid payload")
	}
	h.dispatch(c, n, "")
	return helper.JsonSuccess(c)
}

func (h *PaymentController) dispatch(c *fiber.Ctx, n model.Notification, sig string) {
	if err := h.Service.HandleNotification(c.UserContext(), n, sig); err != nil {
		h.Log.Error("webhook processing failed",
			zap.String("event", string(n.Event)),
			zap.String("payment_id", n.Payment.ID),
			zap.Error(err))
	}
}

func (h *PaymentController) fail(c *fiber.Ctx, op string, err error) error {
	if svc.IsKind(err, svc.KindGateway) || svc.IsKind(err, svc.KindStore) {
		h.Log.Error(op+" failed", zap.Error(err))
	} else {
		h.Log.Info(op+" refused", zap.Error(err))
	}
	return helper.JsonFromError(c, err)
}
