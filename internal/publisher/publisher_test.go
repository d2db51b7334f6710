package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/NineNineAFK/verto/internal/domain"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type recordingWriter struct {
	messages []kafkaGo.Message
	err      error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafkaGo.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func testSettlement() *domain.Settlement {
	productID := primitive.NewObjectID()
	return &domain.Settlement{
		MerchantOrderID: "ORDER_abc",
		Status:          domain.PaymentStatusCompleted,
		Applied:         true,
		Order: &domain.Order{
			ID:          primitive.NewObjectID(),
			UserID:      primitive.NewObjectID(),
			TotalAmount: 30,
			Items:       []domain.OrderItem{{ProductID: productID, Name: "X", Quantity: 3, Price: 10}},
			PaymentDetails: domain.PaymentDetails{
				MerchantTransactionID: "ORDER_abc",
				TransactionID:         "T1",
				Status:                domain.PaymentStatusCompleted,
			},
		},
	}
}

func TestPublishSettlement_WritesKeyedMessage(t *testing.T) {
	w := &recordingWriter{}
	p := &KafkaPublisher{writer: w}
	s := testSettlement()

	require.NoError(t, p.PublishSettlement(context.Background(), s))
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, "ORDER_abc", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, EventOrderSettled, string(msg.Headers[0].Value))

	var ev SettlementEvent
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	assert.Equal(t, s.Order.ID.Hex(), ev.OrderID)
	assert.Equal(t, "completed", ev.Status)
	assert.Equal(t, "T1", ev.TransactionID)
	assert.Len(t, ev.Items, 1)
}

func TestPublishSettlement_WrapsWriterError(t *testing.T) {
	p := &KafkaPublisher{writer: &recordingWriter{err: errors.New("broker down")}}

	err := p.PublishSettlement(context.Background(), testSettlement())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func setupKafka(t *testing.T) (string, func()) {
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}

	return brokers[0], cleanup
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestKafkaPublisher_DeliversToBroker(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	brokerAddr, cleanup := setupKafka(t)
	defer cleanup()

	createTopic(t, brokerAddr, EventOrderSettled)

	p := NewKafkaPublisher(EventOrderSettled, brokerAddr)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, p.PublishSettlement(ctx, testSettlement()))

	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers:  []string{brokerAddr},
		Topic:    EventOrderSettled,
		GroupID:  "test-consumer",
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ORDER_abc", string(msg.Key))
}
