package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type GatewayStatus string
type GatewayProvider string

const (
	GatewayStatusPending           GatewayStatus = "pending"
	GatewayStatusWaitingForCapture GatewayStatus = "waiting_for_capture"
	GatewayStatusSucceeded         GatewayStatus = "succeeded"
	GatewayStatusCanceled          GatewayStatus = "canceled"
)

const (
	GatewayProviderYooKassa GatewayProvider = "yookassa"
	GatewayProviderMidtrans GatewayProvider = "midtrans"
)

const DefaultCurrency = "RUB"

// Metadata keys written on creation; the only link from a payment back to its order.
const (
	MetaOrderID       = "order_id"
	MetaOrderNumber   = "order_number"
	MetaCustomerPhone = "customer_phone"
	MetaCustomerEmail = "customer_email"
)

type Amount struct {
	Value    decimal.Decimal `json:"value"`
	Currency string          `json:"currency"`
}

// Payment is the gateway's view of a payment. Never persisted here.
type Payment struct {
	ID              string            `json:"id"`
	Status          GatewayStatus     `json:"status"`
	Paid            bool              `json:"paid"`
	Amount          Amount            `json:"amount"`
	Description     string            `json:"description,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	ConfirmationURL string            `json:"confirmation_url,omitempty"`
	CreatedAt       *time.Time        `json:"created_at,omitempty"`
	CapturedAt      *time.Time        `json:"captured_at,omitempty"`
}

// OrderNumber reads the correlating order reference from metadata.
func (p Payment) OrderNumber() string {
	if p.Metadata == nil {
		return ""
	}
	if v := p.Metadata[MetaOrderID]; v != "" {
		return v
	}
	return p.Metadata[MetaOrderNumber]
}

// Settled: the gateway confirms money was received.
func (p Payment) Settled() bool {
	return p.Status == GatewayStatusSucceeded && p.Paid
}

/* =========================================================
   Notifications (inbound asynchronous events)
========================================================= */

type NotificationEvent string

const (
	EventPaymentSucceeded         NotificationEvent = "payment.succeeded"
	EventPaymentCanceled          NotificationEvent = "payment.canceled"
	EventPaymentWaitingForCapture NotificationEvent = "payment.waiting_for_capture"
)

// Notification is a verified gateway event, whatever provider delivered it.
type Notification struct {
	Provider GatewayProvider
	Event    NotificationEvent
	Payment  Payment
	Raw      []byte
}

// ReceiptItem is one fiscal receipt line.
type ReceiptItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}
