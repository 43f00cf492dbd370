// file: internals/features/payments/model/payment_gateway_events_model.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

/*
  payment_gateway_events = journal of inbound gateway notifications
  - one row per (provider, event type, payment id)
  - raw payload + signature kept for debugging / replay
*/

type GatewayEventStatus string

const (
	GatewayEventStatusReceived  GatewayEventStatus = "received"
	GatewayEventStatusProcessed GatewayEventStatus = "processed"
	GatewayEventStatusIgnored   GatewayEventStatus = "ignored"
	GatewayEventStatusFailed    GatewayEventStatus = "failed"
)

type PaymentGatewayEventModel struct {
	GatewayEventID uuid.UUID `gorm:"column:gateway_event_id;type:uuid;primaryKey" json:"gateway_event_id"`

	GatewayEventProvider    GatewayProvider `gorm:"column:gateway_event_provider;size:32;not null;uniqueIndex:uq_gw_event_provider_type_payment" json:"gateway_event_provider"`
	GatewayEventType        string          `gorm:"column:gateway_event_type;size:64;not null;uniqueIndex:uq_gw_event_provider_type_payment" json:"gateway_event_type"`
	GatewayEventPaymentID   string          `gorm:"column:gateway_event_payment_id;size:128;not null;uniqueIndex:uq_gw_event_provider_type_payment" json:"gateway_event_payment_id"`
	GatewayEventOrderNumber *string         `gorm:"column:gateway_event_order_number;size:128;index" json:"gateway_event_order_number"`

	GatewayEventPayload   datatypes.JSON `gorm:"column:gateway_event_payload;type:jsonb" json:"gateway_event_payload"`
	GatewayEventSignature *string        `gorm:"column:gateway_event_signature" json:"gateway_event_signature"`

	GatewayEventStatus   GatewayEventStatus `gorm:"column:gateway_event_status;size:16;not null;default:'received'" json:"gateway_event_status"`
	GatewayEventError    *string            `gorm:"column:gateway_event_error" json:"gateway_event_error"`
	GatewayEventTryCount int                `gorm:"column:gateway_event_try_count;not null;default:0" json:"gateway_event_try_count"`

	GatewayEventReceivedAt  time.Time  `gorm:"column:gateway_event_received_at;not null" json:"gateway_event_received_at"`
	GatewayEventProcessedAt *time.Time `gorm:"column:gateway_event_processed_at;index" json:"gateway_event_processed_at"`
}

func (PaymentGatewayEventModel) TableName() string {
	return "payment_gateway_events"
}
