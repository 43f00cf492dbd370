package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"storefront_backend/internals/features/payments/model"
	"storefront_backend/internals/features/payments/service"
)

/* =========================================================
   REQUESTS
========================================================= */

type ReceiptItemRequest struct {
	Description string          `json:"description" validate:"omitempty,max=128"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// CreatePaymentRequest: amount accepts a JSON number or a decimal string.
type CreatePaymentRequest struct {
	Amount            decimal.Decimal      `json:"amount"`
	OrderID           string               `json:"orderId" validate:"required,max=64"`
	CustomerPhone     string               `json:"customerPhone" validate:"required,max=32"`
	CustomerEmail     string               `json:"customerEmail,omitempty" validate:"omitempty,email"`
	Description       string               `json:"description,omitempty" validate:"omitempty,max=512"`
	ReturnURL         string               `json:"returnUrl,omitempty" validate:"omitempty,url"`
	PaymentMethodType string               `json:"paymentMethodType,omitempty" validate:"omitempty,max=32"`
	Items             []ReceiptItemRequest `json:"items,omitempty" validate:"omitempty,dive"`
}

func (r CreatePaymentRequest) ToInput(idempotencyKey string) service.CreatePaymentInput {
	in := service.CreatePaymentInput{
		Amount:            r.Amount,
		OrderRef:          r.OrderID,
		CustomerPhone:     r.CustomerPhone,
		CustomerEmail:     r.CustomerEmail,
		Description:       r.Description,
		ReturnURL:         r.ReturnURL,
		PaymentMethodType: r.PaymentMethodType,
		IdempotencyKey:    idempotencyKey,
	}
	for _, it := range r.Items {
		in.Items = append(in.Items, model.ReceiptItem{
			Description: it.Description,
			Quantity:    it.Quantity,
			Price:       it.Price,
		})
	}
	return in
}

type RetryPaymentRequest struct {
	OrderNumber string `json:"orderNumber" validate:"required,max=64"`
	ReturnURL   string `json:"returnUrl,omitempty" validate:"omitempty,url"`
}

type SyncStatusRequest struct {
	PaymentID   string `json:"paymentId" validate:"required,max=64"`
	OrderNumber string `json:"orderNumber" validate:"required,max=64"`
}

/* =========================================================
   RESPONSES
========================================================= */

type AmountResponse struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

func FromAmount(a model.Amount) AmountResponse {
	return AmountResponse{Value: a.Value.StringFixed(2), Currency: a.Currency}
}

type CreatePaymentResponse struct {
	Success         bool           `json:"success"`
	PaymentID       string         `json:"paymentId"`
	ConfirmationURL string         `json:"confirmationUrl"`
	Status          string         `json:"status"`
	Amount          AmountResponse `json:"amount"`
}

func FromCreatedPayment(p *model.Payment) CreatePaymentResponse {
	return CreatePaymentResponse{
		Success:         true,
		PaymentID:       p.ID,
		ConfirmationURL: p.ConfirmationURL,
		Status:          string(p.Status),
		Amount:          FromAmount(p.Amount),
	}
}

type PaymentView struct {
	ID         string            `json:"id"`
	Status     string            `json:"status"`
	Amount     AmountResponse    `json:"amount"`
	Metadata   map[string]string `json:"metadata"`
	Paid       bool              `json:"paid"`
	CreatedAt  *time.Time        `json:"created_at"`
	CapturedAt *time.Time        `json:"captured_at"`
}

type PaymentStatusResponse struct {
	Success bool        `json:"success"`
	Payment PaymentView `json:"payment"`
}

func FromPayment(p *model.Payment) PaymentStatusResponse {
	md := p.Metadata
	if md == nil {
		md = map[string]string{}
	}
	return PaymentStatusResponse{
		Success: true,
		Payment: PaymentView{
			ID:         p.ID,
			Status:     string(p.Status),
			Amount:     FromAmount(p.Amount),
			Metadata:   md,
			Paid:       p.Paid,
			CreatedAt:  p.CreatedAt,
			CapturedAt: p.CapturedAt,
		},
	}
}

type SyncPaymentView struct {
	ID      string         `json:"id"`
	Status  string         `json:"status"`
	Paid    bool           `json:"paid"`
	Amount  AmountResponse `json:"amount"`
	Updated bool           `json:"updated"`
}

type SyncStatusResponse struct {
	Success bool            `json:"success"`
	Payment SyncPaymentView `json:"payment"`
}

func FromSyncResult(res service.SyncResult) SyncStatusResponse {
	p := res.Payment
	return SyncStatusResponse{
		Success: true,
		Payment: SyncPaymentView{
			ID:      p.ID,
			Status:  string(p.Status),
			Paid:    p.Paid,
			Amount:  FromAmount(p.Amount),
			Updated: res.Updated,
		},
	}
}
