package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/NineNineAFK/verto/internal/domain"
	"github.com/segmentio/kafka-go"
)

const EventOrderSettled = "order.settled"

// SettlementEvent is the payload published once a settlement transaction has committed.
type SettlementEvent struct {
	OrderID         string             `json:"order_id"`
	MerchantOrderID string             `json:"merchant_order_id"`
	UserID          string             `json:"user_id"`
	Status          string             `json:"status"`
	TransactionID   string             `json:"transaction_id,omitempty"`
	TotalAmount     float64            `json:"total_amount"`
	Items           []domain.OrderItem `json:"items"`
	SettledAt       time.Time          `json:"settled_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(topic string, brokers ...string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}
	return &KafkaPublisher{writer: w}
}

// PublishSettlement writes one event keyed by merchant order id so that events for the same
// order stay ordered within a partition.
func (p *KafkaPublisher) PublishSettlement(ctx context.Context, s *domain.Settlement) error {
	payload, err := json.Marshal(eventFrom(s))
	if err != nil {
		return fmt.Errorf("marshal settlement event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(s.MerchantOrderID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventOrderSettled)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish settlement event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func eventFrom(s *domain.Settlement) SettlementEvent {
	ev := SettlementEvent{
		MerchantOrderID: s.MerchantOrderID,
		Status:          s.Status.String(),
		SettledAt:       time.Now().UTC(),
	}
	if o := s.Order; o != nil {
		ev.OrderID = o.ID.Hex()
		ev.UserID = o.UserID.Hex()
		ev.TransactionID = o.PaymentDetails.TransactionID
		ev.TotalAmount = o.TotalAmount
		ev.Items = o.Items
	}
	return ev
}

// NopPublisher drops events; used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishSettlement(context.Context, *domain.Settlement) error { return nil }

func (NopPublisher) Close() error { return nil }
