package service

import (
	"context"
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront_backend/internals/features/payments/model"
)

/* =========================================================
   Midtrans client (Snap for checkout, Core API for status)
========================================================= */

const (
	midtransCurrency  = "IDR"
	midtransSuffixLen = 9 // "-" + 8 hex chars
	midtransMaxIDLen  = 50
	midtransMaxRefLen = midtransMaxIDLen - midtransSuffixLen
)

// Midtrans keys transactions by merchant order id, so every attempt gets its own:
// <orderRef>-<8 hex>.
var (
	midtransIDPattern  = regexp.MustCompile(`^[A-Za-z0-9_.~-]+-[0-9a-f]{8}$`)
	midtransRefPattern = regexp.MustCompile(`^[A-Za-z0-9_.~-]+$`)
)

type MidtransGateway struct {
	serverKey string
	snap      snap.Client
	core      coreapi.Client
	log       *zap.Logger
}

func NewMidtransGateway(serverKey string, useProduction bool, logger *zap.Logger) *MidtransGateway {
	env := midtrans.Sandbox
	if useProduction {
		env = midtrans.Production
	}
	g := &MidtransGateway{serverKey: serverKey, log: logger.Named("midtrans")}
	g.snap.New(serverKey, env)
	g.core.New(serverKey, env)
	return g
}

func (g *MidtransGateway) Provider() model.GatewayProvider { return model.GatewayProviderMidtrans }

func (g *MidtransGateway) ValidPaymentID(id string) bool {
	return len(id) <= midtransMaxIDLen && midtransIDPattern.MatchString(id)
}

func (g *MidtransGateway) CreatePayment(ctx context.Context, in CreatePaymentInput) (*model.Payment, error) {
	if err := in.Normalize(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, NewGatewayError("payment gateway unavailable", err)
	}

	if err := validateMidtransRef(in.OrderRef); err != nil {
		return nil, err
	}
	if !wholeAmount(in.Amount) {
		return nil, NewValidationError("amount must be a whole number of " + midtransCurrency)
	}
	items := BuildReceipt(in)
	for _, it := range items {
		if !wholeAmount(it.Price) || !wholeAmount(it.Quantity) {
			return nil, NewValidationError("item price and quantity must be whole numbers for " + midtransCurrency)
		}
	}

	orderID, err := newMidtransOrderID(in.OrderRef)
	if err != nil {
		return nil, NewGatewayError("", err)
	}

	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  orderID,
			GrossAmt: in.Amount.IntPart(),
		},
		CustomerDetail: &midtrans.CustomerDetails{
			Email: in.CustomerEmail,
			Phone: in.CustomerPhone,
		},
		CustomField1: truncate(in.Description, 40),
	}
	if in.ReturnURL != "" {
		req.Callbacks = &snap.Callbacks{Finish: in.ReturnURL}
	}

	details := make([]midtrans.ItemDetails, 0, len(items))
	var sum int64
	for i, it := range items {
		price := it.Price.IntPart()
		qty := int32(it.Quantity.IntPart())
		sum += price * int64(qty)
		details = append(details, midtrans.ItemDetails{
			ID:    fmt.Sprintf("%s-%d", in.OrderRef, i+1),
			Name:  truncate(it.Description, 50),
			Price: price,
			Qty:   qty,
		})
	}
	// Snap rejects item lists that do not add up to the gross amount.
	if sum == req.TransactionDetails.GrossAmt {
		req.Items = &details
	}

	resp, merr := g.snap.CreateTransaction(req)
	if merr != nil {
		g.log.Warn("snap transaction rejected",
			zap.String("order_ref", in.OrderRef),
			zap.Int("status", merr.StatusCode),
			zap.String("message", merr.Message))
		return nil, NewGatewayError(midtransMessage(merr), merr)
	}

	now := time.Now().UTC()
	return &model.Payment{
		ID:     orderID,
		Status: model.GatewayStatusPending,
		Amount: model.Amount{Value: decimal.NewFromInt(req.TransactionDetails.GrossAmt), Currency: midtransCurrency},
		Metadata: map[string]string{
			model.MetaOrderID:       in.OrderRef,
			model.MetaCustomerPhone: in.CustomerPhone,
		},
		Description:     in.Description,
		ConfirmationURL: resp.RedirectURL,
		CreatedAt:       &now,
	}, nil
}

func (g *MidtransGateway) GetPayment(ctx context.Context, paymentID string) (*model.Payment, error) {
	if !g.ValidPaymentID(paymentID) {
		return nil, NewValidationError("invalid paymentId format")
	}
	if err := ctx.Err(); err != nil {
		return nil, NewGatewayError("payment gateway unavailable", err)
	}

	st, merr := g.core.CheckTransaction(paymentID)
	if merr != nil {
		switch merr.StatusCode {
		case http.StatusNotFound:
			return nil, NewNotFoundError("payment not found")
		case http.StatusUnauthorized:
			return nil, NewAuthError("payment gateway rejected credentials", merr)
		}
		return nil, NewGatewayError(midtransMessage(merr), merr)
	}
	// Core API reports "not found" inside a 200 envelope too.
	if st.StatusCode == "404" {
		return nil, NewNotFoundError("payment not found")
	}

	status, paid := mapMidtransStatus(st.TransactionStatus, st.FraudStatus)
	p := &model.Payment{
		ID:       st.OrderID,
		Status:   status,
		Paid:     paid,
		Amount:   model.Amount{Value: parseGross(st.GrossAmount), Currency: midtransCurrency},
		Metadata: map[string]string{model.MetaOrderID: midtransOrderRef(st.OrderID)},
	}
	if t, ok := parseMidtransTime(st.TransactionTime); ok {
		p.CreatedAt = &t
	}
	if t, ok := parseMidtransTime(st.SettlementTime); ok && paid {
		p.CapturedAt = &t
	}
	return p, nil
}

/* =========================================================
   HTTP notification (signature_key = SHA512(order_id+status_code+gross_amount+server_key))
========================================================= */

type midtransNotification struct {
	TransactionStatus string `json:"transaction_status"`
	TransactionID     string `json:"transaction_id"`
	TransactionTime   string `json:"transaction_time"`
	SettlementTime    string `json:"settlement_time"`
	StatusCode        string `json:"status_code"`
	SignatureKey      string `json:"signature_key"`
	OrderID           string `json:"order_id"`
	GrossAmount       string `json:"gross_amount"`
	PaymentType       string `json:"payment_type"`
	FraudStatus       string `json:"fraud_status"`
}

var ErrInvalidSignature = errors.New("invalid signature")

// VerifyMidtransSignature fails closed when either the key or the signature is missing.
func VerifyMidtransSignature(orderID, statusCode, grossAmount, serverKey, signature string) bool {
	if serverKey == "" || signature == "" {
		return false
	}
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	want := hex.EncodeToString(sum[:])
	got := strings.ToLower(strings.TrimSpace(signature))
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

// ParseNotification verifies and converts a Midtrans HTTP notification.
func (g *MidtransGateway) ParseNotification(body []byte) (model.Notification, error) {
	var n midtransNotification
	if err := sonic.Unmarshal(body, &n); err != nil {
		return model.Notification{}, NewValidationError("invalid notification payload")
	}
	if !VerifyMidtransSignature(n.OrderID, n.StatusCode, n.GrossAmount, g.serverKey, n.SignatureKey) {
		return model.Notification{}, ErrInvalidSignature
	}

	status, paid := mapMidtransStatus(n.TransactionStatus, n.FraudStatus)
	p := model.Payment{
		ID:       n.OrderID,
		Status:   status,
		Paid:     paid,
		Amount:   model.Amount{Value: parseGross(n.GrossAmount), Currency: midtransCurrency},
		Metadata: map[string]string{model.MetaOrderID: midtransOrderRef(n.OrderID)},
	}
	if t, ok := parseMidtransTime(n.SettlementTime); ok && paid {
		p.CapturedAt = &t
	}

	return model.Notification{
		Provider: model.GatewayProviderMidtrans,
		Event:    eventForStatus(status),
		Payment:  p,
		Raw:      body,
	}, nil
}

// mapMidtransStatus folds Midtrans transaction states onto gateway statuses.
func mapMidtransStatus(txStatus, fraudStatus string) (model.GatewayStatus, bool) {
	switch strings.ToLower(txStatus) {
	case "capture":
		switch strings.ToLower(fraudStatus) {
		case "", "accept":
			return model.GatewayStatusSucceeded, true
		case "challenge":
			return model.GatewayStatusWaitingForCapture, false
		default:
			return model.GatewayStatusCanceled, false
		}
	case "settlement":
		return model.GatewayStatusSucceeded, true
	case "deny", "cancel", "expire", "failure":
		return model.GatewayStatusCanceled, false
	default:
		// pending, authorize, refunds: nothing this service acts on
		return model.GatewayStatusPending, false
	}
}

func eventForStatus(s model.GatewayStatus) model.NotificationEvent {
	switch s {
	case model.GatewayStatusSucceeded:
		return model.EventPaymentSucceeded
	case model.GatewayStatusCanceled:
		return model.EventPaymentCanceled
	default:
		return model.EventPaymentWaitingForCapture
	}
}

/* =========================================================
   Utils
========================================================= */

// validateMidtransRef keeps order refs that midtransOrderRef can recover from the
// generated order id.
func validateMidtransRef(orderRef string) error {
	if len(orderRef) > midtransMaxRefLen {
		return NewValidationError(fmt.Sprintf("orderId must be at most %d characters for Midtrans", midtransMaxRefLen))
	}
	if !midtransRefPattern.MatchString(orderRef) {
		return NewValidationError("orderId may only contain letters, digits and _.~-")
	}
	return nil
}

func newMidtransOrderID(orderRef string) (string, error) {
	if err := validateMidtransRef(orderRef); err != nil {
		return "", err
	}
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return orderRef + "-" + hex.EncodeToString(b[:]), nil
}

func wholeAmount(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(0))
}

func midtransOrderRef(orderID string) string {
	if len(orderID) <= midtransSuffixLen {
		return orderID
	}
	return orderID[:len(orderID)-midtransSuffixLen]
}

func parseGross(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Midtrans timestamps are WIB without a zone suffix.
var wib = time.FixedZone("WIB", 7*60*60)

func parseMidtransTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation("2006-01-02 15:04:05", s, wib)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func midtransMessage(e *midtrans.Error) string {
	if e == nil || strings.TrimSpace(e.Message) == "" {
		return "payment gateway error"
	}
	return e.Message
}
