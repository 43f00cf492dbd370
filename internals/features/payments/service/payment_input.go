package service

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"storefront_backend/internals/features/payments/model"
)

const maxDescriptionLen = 128

// CreatePaymentInput is everything a gateway needs to open a payment.
type CreatePaymentInput struct {
	Amount            decimal.Decimal
	OrderRef          string
	CustomerPhone     string
	CustomerEmail     string
	Description       string
	ReturnURL         string
	PaymentMethodType string
	Items             []model.ReceiptItem
	IdempotencyKey    string
}

// Normalize validates the input and rewrites the phone into gateway form.
func (in *CreatePaymentInput) Normalize() error {
	in.OrderRef = strings.TrimSpace(in.OrderRef)
	in.CustomerEmail = strings.TrimSpace(in.CustomerEmail)
	in.Description = strings.TrimSpace(in.Description)

	if !in.Amount.IsPositive() {
		return NewValidationError("amount must be greater than zero")
	}
	if in.OrderRef == "" {
		return NewValidationError("orderId is required")
	}
	phone := NormalizePhone(in.CustomerPhone)
	if phone == "" {
		return NewValidationError("customerPhone is required")
	}
	in.CustomerPhone = phone
	in.Amount = in.Amount.Round(2)
	if in.Description == "" {
		in.Description = "Order " + in.OrderRef
	}
	in.Description = truncate(in.Description, maxDescriptionLen)
	return nil
}

// NormalizePhone strips formatting and returns a country-code-prefixed digit string:
// 8XXXXXXXXXX becomes 7XXXXXXXXXX, a bare 10-digit number gets a leading 7,
// anything else passes through as digits.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case len(digits) == 11 && digits[0] == '8':
		return "7" + digits[1:]
	case len(digits) == 10:
		return "7" + digits
	}
	return digits
}

// BuildReceipt returns the itemized receipt, or one synthetic line covering the
// whole order when no items were supplied.
func BuildReceipt(in CreatePaymentInput) []model.ReceiptItem {
	if len(in.Items) > 0 {
		out := make([]model.ReceiptItem, 0, len(in.Items))
		for _, it := range in.Items {
			qty := it.Quantity
			if !qty.IsPositive() {
				qty = decimal.NewFromInt(1)
			}
			desc := strings.TrimSpace(it.Description)
			if desc == "" {
				desc = in.Description
			}
			out = append(out, model.ReceiptItem{
				Description: truncate(desc, maxDescriptionLen),
				Quantity:    qty,
				Price:       it.Price.Round(2),
			})
		}
		return out
	}
	return []model.ReceiptItem{{
		Description: truncate(in.Description, maxDescriptionLen),
		Quantity:    decimal.NewFromInt(1),
		Price:       in.Amount,
	}}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n])
}
