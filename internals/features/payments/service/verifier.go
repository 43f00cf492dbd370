package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/bytedance/sonic"

	"storefront_backend/internals/features/payments/model"
)

// SignatureHeader carries the hex HMAC of the raw webhook body.
const SignatureHeader = "Yookassa-Signature"

// WebhookVerifier authenticates inbound webhooks with a pre-shared secret.
type WebhookVerifier struct {
	secret []byte
}

func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: []byte(secret)}
}

// Configured is false when no secret is set; Verify then rejects everything.
func (v *WebhookVerifier) Configured() bool { return len(v.secret) > 0 }

// Sign returns the hex HMAC-SHA256 of body.
func (v *WebhookVerifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify fails closed: a missing secret or signature never authenticates.
func (v *WebhookVerifier) Verify(body []byte, signature string) bool {
	if !v.Configured() {
		return false
	}
	sig := strings.TrimSpace(signature)
	sig = strings.TrimPrefix(strings.ToLower(sig), "sha256=")
	if sig == "" {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), got)
}

type ykNotification struct {
	Type   string    `json:"type"`
	Event  string    `json:"event"`
	Object ykPayment `json:"object"`
}

// ParseYooKassaNotification decodes an already verified webhook body.
func ParseYooKassaNotification(body []byte) (model.Notification, error) {
	var n ykNotification
	if err := sonic.Unmarshal(body, &n); err != nil {
		return model.Notification{}, NewValidationError("invalid notification payload")
	}
	if n.Event == "" || n.Object.ID == "" {
		return model.Notification{}, NewValidationError("notification without event or payment")
	}
	p, err := convertYKPayment(n.Object)
	if err != nil {
		return model.Notification{}, NewValidationError("invalid notification amount")
	}
	return model.Notification{
		Provider: model.GatewayProviderYooKassa,
		Event:    model.NotificationEvent(n.Event),
		Payment:  *p,
		Raw:      body,
	}, nil
}
