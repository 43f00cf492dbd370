package service

import (
	"context"

	"storefront_backend/internals/features/payments/model"
)

// Gateway is the payment provider as seen by the reconciler.
type Gateway interface {
	Provider() model.GatewayProvider
	// ValidPaymentID is a local format check done before any network call.
	ValidPaymentID(id string) bool
	CreatePayment(ctx context.Context, in CreatePaymentInput) (*model.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*model.Payment, error)
}
