// file: internals/features/orders/model/order_model.go
package model

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string
type OrderStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	// Present in the store schema; no transition in this service produces it.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// CanTransitionTo reports whether an order may move from s to next.
// Reapplying the same status is allowed and treated as a no-op by callers.
// A settlement arriving after a failure or cancellation still marks the order
// paid: money the gateway confirms as received outranks the earlier outcome.
//
//	pending            -> paid | failed | cancelled
//	failed | cancelled -> pending (new payment attempt) | paid (settlement wins)
//	paid, refunded     -> terminal
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case "", PaymentStatusPending:
		return next == PaymentStatusPaid || next == PaymentStatusFailed ||
			next == PaymentStatusCancelled || next == PaymentStatusPending
	case PaymentStatusFailed, PaymentStatusCancelled:
		return next == PaymentStatusPending || next == PaymentStatusPaid
	default:
		return false
	}
}

// Terminal states accept no further writes from this service.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusPaid || s == PaymentStatusRefunded
}

// Order is the subset of the store's order entry this service reads and writes.
type Order struct {
	ID            int64           `json:"id"`
	DocumentID    string          `json:"documentId,omitempty"`
	OrderNumber   string          `json:"orderNumber"`
	PaymentStatus PaymentStatus   `json:"paymentStatus"`
	OrderStatus   OrderStatus     `json:"orderStatus"`
	PaymentID     *string         `json:"paymentId"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	CustomerPhone string          `json:"customerPhone"`
	CustomerEmail string          `json:"customerEmail"`
	PaidAt        *time.Time      `json:"paidAt,omitempty"`
}

func (o Order) CurrentPaymentID() string {
	if o.PaymentID == nil {
		return ""
	}
	return *o.PaymentID
}

// Ref returns the opaque reference for this order.
func (o Order) Ref() OrderRef {
	return OrderRef{number: o.OrderNumber, id: o.ID, documentID: o.DocumentID}
}

/* =========================================================
   OrderRef: one handle over the two identifier schemes
========================================================= */

// OrderRef identifies an order without callers caring whether the store
// addresses it by documentId or by the legacy numeric id.
type OrderRef struct {
	number     string
	id         int64
	documentID string
}

func RefByNumber(orderNumber string) OrderRef {
	return OrderRef{number: orderNumber}
}

func (r OrderRef) Number() string { return r.number }

// StoreKey is the path segment used to address the entry: documentId when the
// store exposes one, the numeric id otherwise.
func (r OrderRef) StoreKey() (string, bool) {
	if r.documentID != "" {
		return r.documentID, true
	}
	if r.id > 0 {
		return strconv.FormatInt(r.id, 10), true
	}
	return "", false
}

/* =========================================================
   OrderPatch: partial update + transition guard
========================================================= */

type OrderPatch struct {
	PaymentStatus *PaymentStatus
	PaymentID     *string
	PaidAt        *time.Time
	PaymentAmount *decimal.Decimal

	// OnlyForPaymentID skips the write when the order already points at a
	// different payment (an older payment's event arriving after a retry).
	OnlyForPaymentID string
}

// Allows is evaluated against a freshly read order right before writing.
// A paid order is never rewritten, not even with the same status.
func (p OrderPatch) Allows(current Order) bool {
	if current.PaymentStatus.Terminal() {
		return false
	}
	if p.OnlyForPaymentID != "" {
		if cur := current.CurrentPaymentID(); cur != "" && cur != p.OnlyForPaymentID {
			return false
		}
	}
	if p.PaymentStatus != nil && !current.PaymentStatus.CanTransitionTo(*p.PaymentStatus) {
		return false
	}
	return true
}

// Changes reports whether applying the patch would alter the order.
func (p OrderPatch) Changes(current Order) bool {
	if p.PaymentStatus != nil && *p.PaymentStatus != current.PaymentStatus {
		return true
	}
	if p.PaymentID != nil && *p.PaymentID != current.CurrentPaymentID() {
		return true
	}
	return false
}

// WriteOutcome is what the store did with a patch.
type WriteOutcome int

const (
	// WriteApplied: the store accepted the patch.
	WriteApplied WriteOutcome = iota
	// WriteSkipped: order missing, guard refused or nothing to change.
	WriteSkipped
	// WriteRejected: every credential the store was tried with got a non-2xx answer.
	WriteRejected
)

func (o WriteOutcome) String() string {
	switch o {
	case WriteApplied:
		return "applied"
	case WriteSkipped:
		return "skipped"
	default:
		return "rejected"
	}
}

// Fields is the store payload ({"data": Fields()}).
func (p OrderPatch) Fields() map[string]any {
	out := map[string]any{}
	if p.PaymentStatus != nil {
		out["paymentStatus"] = string(*p.PaymentStatus)
	}
	if p.PaymentID != nil {
		out["paymentId"] = *p.PaymentID
	}
	if p.PaidAt != nil {
		out["paidAt"] = p.PaidAt.UTC().Format(time.RFC3339)
	}
	if p.PaymentAmount != nil {
		out["paymentAmount"] = p.PaymentAmount.InexactFloat64()
	}
	return out
}

func StatusPtr(s PaymentStatus) *PaymentStatus { return &s }
func StrPtr(s string) *string                { return &s }
