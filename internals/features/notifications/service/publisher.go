package service

import (
	"context"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// PaymentEvent describes one applied order transition.
type PaymentEvent struct {
	EventID     string    `json:"event_id"`
	OrderNumber string    `json:"order_number"`
	PaymentID   string    `json:"payment_id"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Source      string    `json:"source"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev PaymentEvent) error
	Close() error
}

type KafkaPublisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

// NewKafkaPublisher takes a comma separated broker list.
func NewKafkaPublisher(brokers, topic string, logger *zap.Logger) *KafkaPublisher {
	var addrs []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			addrs = append(addrs, b)
		}
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(addrs...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: 10 * time.Second,
		},
		log: logger.Named("kafka"),
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev PaymentEvent) error {
	value, err := sonic.Marshal(ev)
	if err != nil {
		return err
	}
	// keyed by order so one order's events stay on one partition
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.OrderNumber),
		Value: value,
	})
	if err != nil {
		p.log.Warn("publish failed", zap.String("event_id", ev.EventID), zap.Error(err))
		return err
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, PaymentEvent) error { return nil }
func (NoopPublisher) Close() error                                { return nil }
