package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront_backend/internals/features/payments/model"
	helper "storefront_backend/internals/helpers"
)

/* =========================================================
   YooKassa client (REST v3)
========================================================= */

// Fiscal receipt defaults: VAT-exempt goods paid in full.
const (
	ykVatCode        = 1
	ykPaymentMode    = "full_payment"
	ykPaymentSubject = "commodity"
)

type YooKassaGateway struct {
	apiURL    string
	shopID    string
	secretKey string
	timeout   time.Duration
	log       *zap.Logger
}

func NewYooKassaGateway(apiURL, shopID, secretKey string, timeout time.Duration, logger *zap.Logger) *YooKassaGateway {
	return &YooKassaGateway{
		apiURL:    strings.TrimRight(apiURL, "/"),
		shopID:    shopID,
		secretKey: secretKey,
		timeout:   timeout,
		log:       logger.Named("yookassa"),
	}
}

type ykAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type ykConfirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type ykCustomer struct {
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type ykReceiptItem struct {
	Description    string   `json:"description"`
	Quantity       string   `json:"quantity"`
	Amount         ykAmount `json:"amount"`
	VatCode        int      `json:"vat_code"`
	PaymentMode    string   `json:"payment_mode"`
	PaymentSubject string   `json:"payment_subject"`
}

type ykReceipt struct {
	Customer ykCustomer      `json:"customer"`
	Items    []ykReceiptItem `json:"items"`
}

type ykMethodData struct {
	Type string `json:"type"`
}

type ykCreateRequest struct {
	Amount            ykAmount          `json:"amount"`
	Capture           bool              `json:"capture"`
	Confirmation      ykConfirmation    `json:"confirmation"`
	Description       string            `json:"description,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	Receipt           *ykReceipt        `json:"receipt,omitempty"`
	PaymentMethodData *ykMethodData     `json:"payment_method_data,omitempty"`
}

type ykPayment struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	Paid         bool              `json:"paid"`
	Amount       ykAmount          `json:"amount"`
	Description  string            `json:"description"`
	Metadata     map[string]string `json:"metadata"`
	Confirmation *ykConfirmation   `json:"confirmation"`
	CreatedAt    *time.Time        `json:"created_at"`
	CapturedAt   *time.Time        `json:"captured_at"`
}

type ykError struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Parameter   string `json:"parameter"`
}

func (g *YooKassaGateway) Provider() model.GatewayProvider { return model.GatewayProviderYooKassa }

func (g *YooKassaGateway) ValidPaymentID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

func (g *YooKassaGateway) CreatePayment(ctx context.Context, in CreatePaymentInput) (*model.Payment, error) {
	if err := in.Normalize(); err != nil {
		return nil, err
	}

	body := ykCreateRequest{
		Amount:  ykAmount{Value: in.Amount.StringFixed(2), Currency: model.DefaultCurrency},
		Capture: true,
		Confirmation: ykConfirmation{
			Type:      "redirect",
			ReturnURL: in.ReturnURL,
		},
		Description: in.Description,
		Metadata: map[string]string{
			model.MetaOrderID:       in.OrderRef,
			model.MetaOrderNumber:   in.OrderRef,
			model.MetaCustomerPhone: in.CustomerPhone,
		},
		Receipt: &ykReceipt{
			Customer: ykCustomer{Phone: in.CustomerPhone, Email: in.CustomerEmail},
		},
	}
	if in.CustomerEmail != "" {
		body.Metadata[model.MetaCustomerEmail] = in.CustomerEmail
	}
	if t := strings.TrimSpace(in.PaymentMethodType); t != "" {
		body.PaymentMethodData = &ykMethodData{Type: t}
	}
	for _, it := range BuildReceipt(in) {
		body.Receipt.Items = append(body.Receipt.Items, ykReceiptItem{
			Description:    it.Description,
			Quantity:       it.Quantity.StringFixed(2),
			Amount:         ykAmount{Value: it.Price.StringFixed(2), Currency: model.DefaultCurrency},
			VatCode:        ykVatCode,
			PaymentMode:    ykPaymentMode,
			PaymentSubject: ykPaymentSubject,
		})
	}

	key := in.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	resp, err := helper.Send(ctx, g.timeout, helper.Outbound{
		Method:    fiber.MethodPost,
		URL:       g.apiURL + "/payments",
		BasicUser: g.shopID,
		BasicPass: g.secretKey,
		Headers:   map[string]string{"Idempotence-Key": key},
		JSON:      body,
	})
	if err != nil {
		return nil, NewGatewayError("payment gateway unavailable", err)
	}
	if !resp.OK() {
		desc := g.describe(resp)
		g.log.Warn("create payment rejected",
			zap.String("order_ref", in.OrderRef),
			zap.Int("status", resp.Status),
			zap.String("description", desc))
		return nil, NewGatewayError(desc, fmt.Errorf("yookassa status %d", resp.Status))
	}

	p, err := g.decodePayment(resp.Body)
	if err != nil {
		return nil, NewGatewayError("", err)
	}
	g.log.Info("payment created",
		zap.String("payment_id", p.ID),
		zap.String("order_ref", in.OrderRef),
		zap.String("amount", p.Amount.Value.StringFixed(2)))
	return p, nil
}

func (g *YooKassaGateway) GetPayment(ctx context.Context, paymentID string) (*model.Payment, error) {
	if !g.ValidPaymentID(paymentID) {
		return nil, NewValidationError("invalid paymentId format")
	}

	resp, err := helper.Send(ctx, g.timeout, helper.Outbound{
		Method:    fiber.MethodGet,
		URL:       g.apiURL + "/payments/" + url.PathEscape(paymentID),
		BasicUser: g.shopID,
		BasicPass: g.secretKey,
	})
	if err != nil {
		return nil, NewGatewayError("payment gateway unavailable", err)
	}

	switch {
	case resp.Status == fiber.StatusNotFound:
		return nil, NewNotFoundError("payment not found")
	case resp.Status == fiber.StatusUnauthorized:
		return nil, NewAuthError("payment gateway rejected credentials", fmt.Errorf("yookassa status %d", resp.Status))
	case !resp.OK():
		return nil, NewGatewayError(g.describe(resp), fmt.Errorf("yookassa status %d", resp.Status))
	}

	p, err := g.decodePayment(resp.Body)
	if err != nil {
		return nil, NewGatewayError("", err)
	}
	return p, nil
}

// describe returns the gateway's human-readable description when it sent one.
func (g *YooKassaGateway) describe(resp helper.OutboundResponse) string {
	var e ykError
	if err := sonic.Unmarshal(resp.Body, &e); err == nil && strings.TrimSpace(e.Description) != "" {
		return e.Description
	}
	return "payment gateway error"
}

func (g *YooKassaGateway) decodePayment(body []byte) (*model.Payment, error) {
	var yp ykPayment
	if err := sonic.Unmarshal(body, &yp); err != nil {
		return nil, fmt.Errorf("decode yookassa payment: %w", err)
	}
	return convertYKPayment(yp)
}

func convertYKPayment(yp ykPayment) (*model.Payment, error) {
	value := decimal.Zero
	if yp.Amount.Value != "" {
		v, err := decimal.NewFromString(yp.Amount.Value)
		if err != nil {
			return nil, fmt.Errorf("decode yookassa amount %q: %w", yp.Amount.Value, err)
		}
		value = v
	}
	p := &model.Payment{
		ID:          yp.ID,
		Status:      model.GatewayStatus(yp.Status),
		Paid:        yp.Paid,
		Amount:      model.Amount{Value: value, Currency: yp.Amount.Currency},
		Description: yp.Description,
		Metadata:    yp.Metadata,
		CreatedAt:   yp.CreatedAt,
		CapturedAt:  yp.CapturedAt,
	}
	if yp.Confirmation != nil {
		p.ConfirmationURL = yp.Confirmation.ConfirmationURL
	}
	return p, nil
}
