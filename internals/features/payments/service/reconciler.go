package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	notif "storefront_backend/internals/features/notifications/service"
	orderModel "storefront_backend/internals/features/orders/model"
	"storefront_backend/internals/features/payments/model"
)

// OrderStore is the part of the order accessor the reconciler needs.
type OrderStore interface {
	FindByOrderNumber(ctx context.Context, orderNumber string) (orderModel.Order, bool, error)
	ApplyPatch(ctx context.Context, ref orderModel.OrderRef, patch orderModel.OrderPatch) (orderModel.WriteOutcome, error)
}

// Event sources recorded on published transitions.
const (
	SourceWebhook = "webhook"
	SourceSync    = "sync"
	SourceRetry   = "retry"
	SourceCreate  = "create"
)

const (
	publishTimeout = 5 * time.Second
	notifyTimeout  = 20 * time.Second
)

type ReconcilerDeps struct {
	Store     OrderStore
	Gateway   Gateway
	Notifier  notif.Notifier
	Publisher notif.Publisher
	Journal   EventJournal
	PublicURL string
	Now       func() time.Time
	Logger    *zap.Logger
}

// Reconciler keeps order payment status in line with the gateway.
type Reconciler struct {
	store     OrderStore
	gateway   Gateway
	notifier  notif.Notifier
	publisher notif.Publisher
	journal   EventJournal
	publicURL string
	now       func() time.Time
	locks     *orderLocks
	pending   sync.WaitGroup
	log       *zap.Logger
}

func NewReconciler(d ReconcilerDeps) *Reconciler {
	r := &Reconciler{
		store:     d.Store,
		gateway:   d.Gateway,
		notifier:  d.Notifier,
		publisher: d.Publisher,
		journal:   d.Journal,
		publicURL: strings.TrimRight(d.PublicURL, "/"),
		now:       d.Now,
		locks:     newOrderLocks(),
		log:       d.Logger,
	}
	if r.notifier == nil {
		r.notifier = notif.Nop{}
	}
	if r.publisher == nil {
		r.publisher = notif.NoopPublisher{}
	}
	if r.journal == nil {
		r.journal = NoopJournal{}
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	r.log = r.log.Named("reconciler")
	return r
}

func (r *Reconciler) Provider() model.GatewayProvider { return r.gateway.Provider() }

// Wait blocks until in-flight paid notices have been handed to the notifier.
func (r *Reconciler) Wait() { r.pending.Wait() }

/* =========================================================
   Create / retry
========================================================= */

// CreatePayment opens a gateway payment and links it to the order when the order
// exists and is still payable. Linking is best effort.
func (r *Reconciler) CreatePayment(ctx context.Context, in CreatePaymentInput) (*model.Payment, error) {
	if strings.TrimSpace(in.ReturnURL) == "" {
		in.ReturnURL = r.defaultReturnURL(in.OrderRef)
	}
	p, err := r.gateway.CreatePayment(ctx, in)
	if err != nil {
		return nil, err
	}

	orderNumber := strings.TrimSpace(in.OrderRef)
	patch := orderModel.OrderPatch{
		PaymentStatus: orderModel.StatusPtr(orderModel.PaymentStatusPending),
		PaymentID:     orderModel.StrPtr(p.ID),
	}
	if _, err := r.apply(ctx, orderNumber, patch, SourceCreate, p); err != nil {
		r.log.Warn("payment created but order link failed",
			zap.String("order_number", orderNumber),
			zap.String("payment_id", p.ID),
			zap.Error(err))
	}
	return p, nil
}

// RetryPayment opens a new payment for an unpaid order. Paid or cancelled orders
// are refused before the gateway is contacted.
func (r *Reconciler) RetryPayment(ctx context.Context, orderNumber, returnURL, userID, idempotencyKey string) (*model.Payment, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return nil, NewValidationError("orderNumber is required")
	}

	order, found, err := r.store.FindByOrderNumber(ctx, orderNumber)
	if err != nil {
		return nil, NewStoreError("failed to load order", err)
	}
	if !found {
		return nil, NewNotFoundError("order not found")
	}
	switch {
	case order.PaymentStatus == orderModel.PaymentStatusPaid:
		return nil, NewConflictError("order is already paid")
	case order.OrderStatus == orderModel.OrderStatusCancelled:
		return nil, NewConflictError("order is cancelled")
	case !order.PaymentStatus.CanTransitionTo(orderModel.PaymentStatusPending):
		return nil, NewConflictError("order cannot be paid in its current state")
	}

	if strings.TrimSpace(returnURL) == "" {
		returnURL = r.defaultReturnURL(orderNumber)
	}
	p, err := r.gateway.CreatePayment(ctx, CreatePaymentInput{
		Amount:         order.TotalAmount,
		OrderRef:       order.OrderNumber,
		CustomerPhone:  order.CustomerPhone,
		CustomerEmail:  order.CustomerEmail,
		ReturnURL:      returnURL,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return nil, err
	}

	r.log.Info("payment retried",
		zap.String("order_number", orderNumber),
		zap.String("payment_id", p.ID),
		zap.String("user_id", userID))

	patch := orderModel.OrderPatch{
		PaymentStatus: orderModel.StatusPtr(orderModel.PaymentStatusPending),
		PaymentID:     orderModel.StrPtr(p.ID),
	}
	if _, err := r.apply(ctx, orderNumber, patch, SourceRetry, p); err != nil {
		// The payment exists at the gateway; its webhook will still settle the order.
		r.log.Warn("retry payment not linked to order",
			zap.String("order_number", orderNumber),
			zap.String("payment_id", p.ID),
			zap.Error(err))
	}
	return p, nil
}

/* =========================================================
   Status
========================================================= */

func (r *Reconciler) GetPayment(ctx context.Context, paymentID string) (*model.Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, NewValidationError("paymentId is required")
	}
	return r.gateway.GetPayment(ctx, paymentID)
}

type SyncResult struct {
	Payment *model.Payment
	Updated bool
}

// SyncStatus pulls the payment from the gateway and applies it to the order.
// Store failures are logged and reported as Updated=false.
func (r *Reconciler) SyncStatus(ctx context.Context, paymentID, orderNumber string) (SyncResult, error) {
	paymentID = strings.TrimSpace(paymentID)
	orderNumber = strings.TrimSpace(orderNumber)
	if paymentID == "" || orderNumber == "" {
		return SyncResult{}, NewValidationError("paymentId and orderNumber are required")
	}

	p, err := r.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		return SyncResult{}, err
	}
	if ref := p.OrderNumber(); ref != "" && ref != orderNumber {
		return SyncResult{}, NewValidationError("payment does not belong to this order")
	}

	var patch orderModel.OrderPatch
	switch {
	case p.Settled():
		patch = r.paidPatch(p)
	case p.Status == model.GatewayStatusCanceled:
		patch = orderModel.OrderPatch{
			PaymentStatus:    orderModel.StatusPtr(orderModel.PaymentStatusFailed),
			PaymentID:        orderModel.StrPtr(p.ID),
			OnlyForPaymentID: p.ID,
		}
	default:
		return SyncResult{Payment: p}, nil
	}

	updated, err := r.apply(ctx, orderNumber, patch, SourceSync, p)
	if err != nil {
		r.log.Warn("sync could not update order",
			zap.String("order_number", orderNumber),
			zap.String("payment_id", p.ID),
			zap.Error(err))
		return SyncResult{Payment: p}, nil
	}
	return SyncResult{Payment: p, Updated: updated}, nil
}

/* =========================================================
   Webhook
========================================================= */

// HandleNotification applies a verified gateway event. The returned error is for
// logging only; callers acknowledge the webhook regardless.
func (r *Reconciler) HandleNotification(ctx context.Context, n model.Notification, signature string) error {
	log := r.log.With(
		zap.String("provider", string(n.Provider)),
		zap.String("event", string(n.Event)),
		zap.String("payment_id", n.Payment.ID))

	entryID, replay, err := r.journal.Begin(ctx, n, signature)
	if err != nil {
		log.Warn("journal unavailable", zap.Error(err))
	}
	if replay {
		log.Info("duplicate notification ignored")
		return nil
	}

	status, cause := r.handle(ctx, n, log)
	if err := r.journal.Finish(ctx, entryID, status, cause); err != nil {
		log.Warn("journal finish failed", zap.Error(err))
	}
	return cause
}

func (r *Reconciler) handle(ctx context.Context, n model.Notification, log *zap.Logger) (model.GatewayEventStatus, error) {
	orderNumber := n.Payment.OrderNumber()
	if orderNumber == "" {
		log.Warn("notification without order reference")
		return model.GatewayEventStatusIgnored, nil
	}

	p := n.Payment
	var patch orderModel.OrderPatch
	switch n.Event {
	case model.EventPaymentSucceeded:
		patch = r.paidPatch(&p)
	case model.EventPaymentCanceled:
		patch = orderModel.OrderPatch{
			PaymentStatus:    orderModel.StatusPtr(orderModel.PaymentStatusCancelled),
			PaymentID:        orderModel.StrPtr(p.ID),
			OnlyForPaymentID: p.ID,
		}
	case model.EventPaymentWaitingForCapture:
		patch = orderModel.OrderPatch{
			PaymentStatus:    orderModel.StatusPtr(orderModel.PaymentStatusPending),
			PaymentID:        orderModel.StrPtr(p.ID),
			OnlyForPaymentID: p.ID,
		}
	default:
		log.Info("unhandled notification event")
		return model.GatewayEventStatusIgnored, nil
	}

	updated, err := r.apply(ctx, orderNumber, patch, SourceWebhook, &p)
	if err != nil {
		log.Error("webhook order update failed", zap.String("order_number", orderNumber), zap.Error(err))
		return model.GatewayEventStatusFailed, err
	}
	log.Info("notification applied", zap.String("order_number", orderNumber), zap.Bool("updated", updated))
	return model.GatewayEventStatusProcessed, nil
}

/* =========================================================
   Shared transition path
========================================================= */

var (
	errOrderNotFound      = errors.New("order not found")
	errStoreRejectedWrite = NewStoreError("order store rejected the update", nil)
)

// apply moves the order and, for a new paid status, sends the paid notice once the
// order lock is released. It reports whether the store accepted a write; a refused
// or redundant transition is (false, nil).
func (r *Reconciler) apply(ctx context.Context, orderNumber string, patch orderModel.OrderPatch, source string, p *model.Payment) (bool, error) {
	moved, err := r.transition(ctx, orderNumber, patch, source, p)
	if err != nil || !moved {
		return false, err
	}
	if *patch.PaymentStatus == orderModel.PaymentStatusPaid {
		r.notifyPaid(ctx, orderNumber, p, source)
	}
	return true, nil
}

// transition runs find, guard, write and publish under the per-order lock.
func (r *Reconciler) transition(ctx context.Context, orderNumber string, patch orderModel.OrderPatch, source string, p *model.Payment) (bool, error) {
	unlock := r.locks.Lock(orderNumber)
	defer unlock()

	current, found, err := r.store.FindByOrderNumber(ctx, orderNumber)
	if err != nil {
		return false, err
	}
	if !found {
		if source == SourceCreate {
			return false, nil
		}
		return false, errOrderNotFound
	}
	if !patch.Allows(current) || !patch.Changes(current) {
		r.log.Debug("transition skipped",
			zap.String("order_number", orderNumber),
			zap.String("current", string(current.PaymentStatus)),
			zap.String("source", source))
		return false, nil
	}

	outcome, err := r.store.ApplyPatch(ctx, current.Ref(), patch)
	switch {
	case err != nil:
		return false, err
	case outcome == orderModel.WriteRejected:
		return false, errStoreRejectedWrite
	case outcome != orderModel.WriteApplied:
		return false, nil
	}

	r.publish(ctx, notif.PaymentEvent{
		EventID:     uuid.NewString(),
		OrderNumber: orderNumber,
		PaymentID:   p.ID,
		From:        string(current.PaymentStatus),
		To:          string(*patch.PaymentStatus),
		Source:      source,
		OccurredAt:  r.now().UTC(),
	})
	return true, nil
}

func (r *Reconciler) paidPatch(p *model.Payment) orderModel.OrderPatch {
	paidAt := r.now().UTC()
	if p.CapturedAt != nil {
		paidAt = p.CapturedAt.UTC()
	}
	amount := p.Amount.Value
	patch := orderModel.OrderPatch{
		PaymentStatus: orderModel.StatusPtr(orderModel.PaymentStatusPaid),
		PaymentID:     orderModel.StrPtr(p.ID),
		PaidAt:        &paidAt,
	}
	if !amount.Equal(decimal.Zero) {
		patch.PaymentAmount = &amount
	}
	return patch
}

func (r *Reconciler) publish(ctx context.Context, ev notif.PaymentEvent) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := r.publisher.Publish(pctx, ev); err != nil {
		r.log.Warn("transition event not published", zap.String("order_number", ev.OrderNumber), zap.Error(err))
	}
}

func (r *Reconciler) notifyPaid(ctx context.Context, orderNumber string, p *model.Payment, source string) {
	n := notif.Notice{Title: "Order paid"}.
		With("Order", orderNumber).
		With("Payment", p.ID).
		With("Amount", p.Amount.Value.StringFixed(2)+" "+p.Amount.Currency).
		With("Source", source)
	if phone := p.Metadata[model.MetaCustomerPhone]; phone != "" {
		n = n.With("Phone", phone)
	}

	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		r.notifier.Notify(nctx, n)
	}()
}

func (r *Reconciler) defaultReturnURL(orderRef string) string {
	if r.publicURL == "" {
		return ""
	}
	return r.publicURL + "/checkout/success?orderNumber=" + url.QueryEscape(strings.TrimSpace(orderRef))
}
