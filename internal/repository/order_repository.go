package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NineNineAFK/verto/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type mongoOrderRepository struct {
	collection *mongo.Collection
}

func NewMongoOrderRepository(db *mongo.Database) OrderRepository {
	return &mongoOrderRepository{collection: db.Collection("orders")}
}

func (m *mongoOrderRepository) Insert(ctx context.Context, order *domain.Order) error {
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}

	if _, err := m.collection.InsertOne(ctx, order); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (m *mongoOrderRepository) FindByMerchantID(tx Tx, merchantOrderID string) (*domain.Order, error) {
	var order domain.Order

	filter := bson.M{"payment_details.merchant_transaction_id": merchantOrderID}
	err := m.collection.FindOne(tx.Context(), filter).Decode(&order)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &order, nil
}

// Transition is a compare-and-set on payment_details.status: only a pending order is updated.
func (m *mongoOrderRepository) Transition(tx Tx, merchantOrderID string, status domain.PaymentStatus, gw domain.GatewayStatus, at time.Time) (bool, error) {
	filter := bson.M{
		"payment_details.merchant_transaction_id": merchantOrderID,
		"payment_details.status":                  domain.PaymentStatusPending,
	}

	set := bson.M{
		"payment_details.status": status,
		"updated_at":             at,
	}
	if gw.TransactionID != "" {
		set["payment_details.transaction_id"] = gw.TransactionID
	}
	if gw.Timestamp != nil {
		set["payment_details.payment_timestamp"] = *gw.Timestamp
	}
	if gw.ErrorCode != "" {
		set["payment_details.error_message"] = gw.ErrorCode
	}

	res, err := m.collection.UpdateOne(tx.Context(), filter, bson.M{"$set": set})
	if err != nil {
		return false, fmt.Errorf("failed to transition order: %w", err)
	}
	return res.MatchedCount == 1, nil
}
