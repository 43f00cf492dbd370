package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront_backend/internals/features/payments/model"
)

// EventJournal records inbound notifications so replays can be recognised.
type EventJournal interface {
	// Begin reports replay=true when the same (provider, event, payment) was already
	// processed or ignored. A failed or unfinished earlier attempt is not a replay.
	Begin(ctx context.Context, n model.Notification, signature string) (id uuid.UUID, replay bool, err error)
	Finish(ctx context.Context, id uuid.UUID, status model.GatewayEventStatus, cause error) error
}

/* =========================================================
   Postgres journal (payment_gateway_events)
========================================================= */

type GormJournal struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormJournal(db *gorm.DB) *GormJournal {
	return &GormJournal{db: db, now: time.Now}
}

func (j *GormJournal) Migrate() error {
	return j.db.AutoMigrate(&model.PaymentGatewayEventModel{})
}

func (j *GormJournal) Begin(ctx context.Context, n model.Notification, signature string) (uuid.UUID, bool, error) {
	row := model.PaymentGatewayEventModel{
		GatewayEventID:         uuid.New(),
		GatewayEventProvider:   n.Provider,
		GatewayEventType:       string(n.Event),
		GatewayEventPaymentID:  n.Payment.ID,
		GatewayEventStatus:     model.GatewayEventStatusReceived,
		GatewayEventTryCount:   1,
		GatewayEventReceivedAt: j.now().UTC(),
	}
	if on := n.Payment.OrderNumber(); on != "" {
		row.GatewayEventOrderNumber = &on
	}
	if signature != "" {
		row.GatewayEventSignature = &signature
	}
	if len(n.Raw) > 0 {
		row.GatewayEventPayload = datatypes.JSON(n.Raw)
	}

	err := j.db.WithContext(ctx).Create(&row).Error
	if err == nil {
		return row.GatewayEventID, false, nil
	}
	if !isUniqueViolation(err) {
		return uuid.Nil, false, fmt.Errorf("journal insert: %w", err)
	}

	// Seen before: lock the existing row and decide.
	var existing model.PaymentGatewayEventModel
	txErr := j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("gateway_event_provider = ? AND gateway_event_type = ? AND gateway_event_payment_id = ?",
				n.Provider, string(n.Event), n.Payment.ID).
			Take(&existing).Error; err != nil {
			return err
		}
		return tx.Model(&existing).Updates(map[string]any{
			"gateway_event_try_count": gorm.Expr("gateway_event_try_count + 1"),
		}).Error
	})
	if txErr != nil {
		return uuid.Nil, false, fmt.Errorf("journal lookup: %w", txErr)
	}

	switch existing.GatewayEventStatus {
	case model.GatewayEventStatusProcessed, model.GatewayEventStatusIgnored:
		return existing.GatewayEventID, true, nil
	default:
		return existing.GatewayEventID, false, nil
	}
}

func (j *GormJournal) Finish(ctx context.Context, id uuid.UUID, status model.GatewayEventStatus, cause error) error {
	if id == uuid.Nil {
		return nil
	}
	now := j.now().UTC()
	updates := map[string]any{
		"gateway_event_status":       status,
		"gateway_event_processed_at": &now,
		"gateway_event_error":        nil,
	}
	if cause != nil {
		msg := cause.Error()
		updates["gateway_event_error"] = &msg
	}
	return j.db.WithContext(ctx).
		Model(&model.PaymentGatewayEventModel{}).
		Where("gateway_event_id = ?", id).
		Updates(updates).Error
}

// PurgeFinished deletes processed and ignored rows finished before cutoff.
func (j *GormJournal) PurgeFinished(ctx context.Context, cutoff time.Time) (int64, error) {
	res := j.db.WithContext(ctx).
		Where("gateway_event_status IN ? AND gateway_event_processed_at < ?",
			[]model.GatewayEventStatus{model.GatewayEventStatusProcessed, model.GatewayEventStatusIgnored}, cutoff).
		Delete(&model.PaymentGatewayEventModel{})
	return res.RowsAffected, res.Error
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

/* =========================================================
   No database configured
========================================================= */

type NoopJournal struct{}

func (NoopJournal) Begin(context.Context, model.Notification, string) (uuid.UUID, bool, error) {
	return uuid.Nil, false, nil
}

func (NoopJournal) Finish(context.Context, uuid.UUID, model.GatewayEventStatus, error) error {
	return nil
}
