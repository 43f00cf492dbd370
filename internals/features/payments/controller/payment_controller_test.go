package controller

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storefront_backend/internals/features/payments/model"
	svc "storefront_backend/internals/features/payments/service"
)

const webhookSecret = "whsec-test"

type mockService struct {
	mock.Mock
}

func (m *mockService) CreatePayment(ctx context.Context, in svc.CreatePaymentInput) (*model.Payment, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Payment), args.Error(1)
}

func (m *mockService) RetryPayment(ctx context.Context, orderNumber, returnURL, userID, key string) (*model.Payment, error) {
	args := m.Called(ctx, orderNumber, returnURL, userID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Payment), args.Error(1)
}

func (m *mockService) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Payment), args.Error(1)
}

func (m *mockService) SyncStatus(ctx context.Context, paymentID, orderNumber string) (svc.SyncResult, error) {
	args := m.Called(ctx, paymentID, orderNumber)
	return args.Get(0).(svc.SyncResult), args.Error(1)
}

func (m *mockService) HandleNotification(ctx context.Context, n model.Notification, signature string) error {
	return m.Called(ctx, n, signature).Error(0)
}

// newTestApp mounts the handlers without rate limits; asUser simulates the
// customer auth middleware.
func newTestApp(s PaymentService, asUser string) *fiber.App {
	ctl := NewPaymentController(s, svc.NewWebhookVerifier(webhookSecret), nil, zap.NewNop())
	app := fiber.New()
	app.Post("/payments/create", ctl.Create)
	app.Post("/payments/retry", func(c *fiber.Ctx) error {
		if asUser != "" {
			c.Locals(LocalUserID, asUser)
		}
		return c.Next()
	}, ctl.Retry)
	app.Get("/payments/status", ctl.Status)
	app.Post("/payments/sync-status", ctl.SyncStatus)
	app.Post("/payments/webhook", ctl.Webhook)
	app.Post("/payments/webhook/midtrans", ctl.MidtransWebhook)
	return app
}

func do(t *testing.T, app *fiber.App, method, target string, body []byte, headers map[string]string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, sonic.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestCreatePayment(t *testing.T) {
	s := &mockService{}
	s.On("CreatePayment", mock.Anything, mock.MatchedBy(func(in svc.CreatePaymentInput) bool {
		return in.OrderRef == "TS-1" && in.Amount.Equal(decimal.RequireFromString("1500")) && in.IdempotencyKey == "k-1"
	})).Return(&model.Payment{
		ID:              "2d5a1f36-000f-5000-8000-1a2b3c4d5e6f",
		Status:          model.GatewayStatusPending,
		ConfirmationURL: "https://yoomoney.ru/checkout/x",
		Amount:          model.Amount{Value: decimal.RequireFromString("1500"), Currency: "RUB"},
	}, nil)

	status, body := do(t, newTestApp(s, ""), fiber.MethodPost, "/payments/create",
		[]byte(`{"amount":1500,"orderId":"TS-1","customerPhone":"+7 999 123-45-67"}`),
		map[string]string{HeaderIdempotencyKey: "k-1"})

	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "https://yoomoney.ru/checkout/x", body["confirmationUrl"])
	assert.Equal(t, "1500.00", body["amount"].(map[string]any)["value"])
	s.AssertExpectations(t)
}

func TestCreatePaymentValidation(t *testing.T) {
	s := &mockService{}
	status, body := do(t, newTestApp(s, ""), fiber.MethodPost, "/payments/create",
		[]byte(`{"amount":10,"customerEmail":"not-an-email"}`), nil)

	assert.Equal(t, fiber.StatusBadRequest, status)
	errs := body["errors"].(map[string]any)
	assert.Contains(t, errs, "orderId")
	assert.Contains(t, errs, "customerPhone")
	assert.Contains(t, errs, "customerEmail")
	s.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything)
}

func TestCreatePaymentGatewayFailure(t *testing.T) {
	s := &mockService{}
	s.On("CreatePayment", mock.Anything, mock.Anything).Return(nil, svc.NewGatewayError("Payment gateway error", nil))

	status, body := do(t, newTestApp(s, ""), fiber.MethodPost, "/payments/create",
		[]byte(`{"amount":10,"orderId":"TS-1","customerPhone":"9991234567"}`), nil)
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, "Payment gateway error", body["error"])
}

func TestRetryRequiresUser(t *testing.T) {
	s := &mockService{}
	status, _ := do(t, newTestApp(s, ""), fiber.MethodPost, "/payments/retry", []byte(`{"orderNumber":"TS-1"}`), nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	s.AssertNotCalled(t, "RetryPayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRetryConflict(t *testing.T) {
	s := &mockService{}
	s.On("RetryPayment", mock.Anything, "TS-1", "", "42", "").Return(nil, svc.NewConflictError("order is already paid"))

	status, body := do(t, newTestApp(s, "42"), fiber.MethodPost, "/payments/retry", []byte(`{"orderNumber":"TS-1"}`), nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "order is already paid", body["error"])
}

func TestRetryNotFound(t *testing.T) {
	s := &mockService{}
	s.On("RetryPayment", mock.Anything, "TS-404", "", "42", "").Return(nil, svc.NewNotFoundError("order not found"))

	status, _ := do(t, newTestApp(s, "42"), fiber.MethodPost, "/payments/retry", []byte(`{"orderNumber":"TS-404"}`), nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestStatusRequiresPaymentID(t *testing.T) {
	s := &mockService{}
	status, _ := do(t, newTestApp(s, ""), fiber.MethodGet, "/payments/status", nil, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestStatusReturnsPayment(t *testing.T) {
	s := &mockService{}
	s.On("GetPayment", mock.Anything, "pay-1").Return(&model.Payment{
		ID:     "pay-1",
		Status: model.GatewayStatusSucceeded,
		Paid:   true,
		Amount: model.Amount{Value: decimal.RequireFromString("99.9"), Currency: "RUB"},
	}, nil)

	status, body := do(t, newTestApp(s, ""), fiber.MethodGet, "/payments/status?paymentId=pay-1", nil, nil)
	assert.Equal(t, fiber.StatusOK, status)
	p := body["payment"].(map[string]any)
	assert.Equal(t, "succeeded", p["status"])
	assert.Equal(t, true, p["paid"])
	assert.Equal(t, "99.90", p["amount"].(map[string]any)["value"])
	assert.Equal(t, map[string]any{}, p["metadata"])
}

func TestSyncStatus(t *testing.T) {
	s := &mockService{}
	s.On("SyncStatus", mock.Anything, "pay-1", "TS-1").Return(svc.SyncResult{
		Payment: &model.Payment{ID: "pay-1", Status: model.GatewayStatusCanceled},
		Updated: true,
	}, nil)

	status, body := do(t, newTestApp(s, ""), fiber.MethodPost, "/payments/sync-status",
		[]byte(`{"paymentId":"pay-1","orderNumber":"TS-1"}`), nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["payment"].(map[string]any)["updated"])
}

func TestSyncStatusValidation(t *testing.T) {
	s := &mockService{}
	status, _ := do(t, newTestApp(s, ""), fiber.MethodPost, "/payments/sync-status", []byte(`{"paymentId":"pay-1"}`), nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

var succeededWebhook = []byte(`{"type":"notification","event":"payment.succeeded","object":{"id":"2d5a1f36-000f-5000-8000-1a2b3c4d5e6f","status":"succeeded","paid":true,"amount":{"value":"1500.00","currency":"RUB"},"metadata":{"order_id":"TS-1"}}}`)

func TestWebhookRejectsBadSignature(t *testing.T) {
	s := &mockService{}
	app := newTestApp(s, "")

	status, _ := do(t, app, fiber.MethodPost, "/payments/webhook", succeededWebhook, map[string]string{svc.SignatureHeader: "deadbeef"})
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = do(t, app, fiber.MethodPost, "/payments/webhook", succeededWebhook, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	s.AssertNotCalled(t, "HandleNotification", mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookDispatchesVerifiedEvent(t *testing.T) {
	s := &mockService{}
	sig := svc.NewWebhookVerifier(webhookSecret).Sign(succeededWebhook)
	s.On("HandleNotification", mock.Anything, mock.MatchedBy(func(n model.Notification) bool {
		return n.Event == model.EventPaymentSucceeded && n.Payment.OrderNumber() == "TS-1" && n.Payment.Settled()
	}), sig).Return(nil).Once()

	status, body := do(t, newTestApp(s, ""), fiber.MethodPost, "/payments/webhook", succeededWebhook, map[string]string{svc.SignatureHeader: sig})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])
	s.AssertExpectations(t)
}

func TestWebhookAcksProcessingFailure(t *testing.T) {
	s := &mockService{}
	sig := svc.NewWebhookVerifier(webhookSecret).Sign(succeededWebhook)
	s.On("HandleNotification", mock.Anything, mock.Anything, sig).Return(svc.NewStoreError("store down", nil))

	status, _ := do(t, newTestApp(s, ""), fiber.MethodPost, "/payments/webhook", succeededWebhook, map[string]string{svc.SignatureHeader: sig})
	assert.Equal(t, fiber.StatusOK, status)
}

func TestWebhookAcksUnreadablePayload(t *testing.T) {
	s := &mockService{}
	body := []byte(`{"event":""}`)
	sig := svc.NewWebhookVerifier(webhookSecret).Sign(body)

	status, _ := do(t, newTestApp(s, ""), fiber.MethodPost, "/payments/webhook", body, map[string]string{svc.SignatureHeader: sig})
	assert.Equal(t, fiber.StatusOK, status)
	s.AssertNotCalled(t, "HandleNotification", mock.Anything, mock.Anything, mock.Anything)
}

func TestMidtransWebhookDisabled(t *testing.T) {
	status, _ := do(t, newTestApp(&mockService{}, ""), fiber.MethodPost, "/payments/webhook/midtrans", []byte(`{}`), nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}
