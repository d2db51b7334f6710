package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/NineNineAFK/verto/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoCartRepository struct {
	collection *mongo.Collection
}

func NewMongoCartRepository(db *mongo.Database) CartRepository {
	return &mongoCartRepository{collection: db.Collection("carts")}
}

func (m *mongoCartRepository) GetCart(tx Tx, userID primitive.ObjectID) (*domain.Cart, error) {
	var cart domain.Cart

	filter := bson.M{"user_id": userID}
	err := m.collection.FindOne(tx.Context(), filter).Decode(&cart)

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return &cart, nil
}

func (m *mongoCartRepository) UpsertCart(tx Tx, cart *domain.Cart) error {
	now := time.Now().UTC()

	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}

	filter := bson.M{"user_id": cart.UserID}
	update := bson.M{
		"$set": bson.M{
			"items":      cart.Items,
			"updated_at": cart.UpdatedAt,
		},
		"$setOnInsert": bson.M{"created_at": cart.CreatedAt},
	}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(tx.Context(), filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert cart: %w", err)
	}

	return nil
}

// SetItem writes the line for item.ProductID, replacing its quantity if it is already in the
// cart, and creates the cart when the user has none.
func (m *mongoCartRepository) SetItem(tx Tx, userID primitive.ObjectID, item domain.CartItem) error {
	ctx := tx.Context()
	now := time.Now().UTC()
	if item.AddedAt.IsZero() {
		item.AddedAt = now
	}

	// Try the existing line first
	filter := bson.M{"user_id": userID, "items.product_id": item.ProductID}
	update := bson.M{
		"$set": bson.M{
			"items.$[elem].quantity": item.Quantity,
			"items.$[elem].added_at": item.AddedAt,
			"updated_at":             now,
		},
	}
	arrayFilters := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{
			bson.M{"elem.product_id": item.ProductID},
		},
	})

	res, err := m.collection.UpdateOne(ctx, filter, update, arrayFilters)
	if err != nil {
		return fmt.Errorf("failed to update existing item: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	// Add new item, creating the cart if needed
	update = bson.M{
		"$push":        bson.M{"items": item},
		"$set":         bson.M{"updated_at": now},
		"$setOnInsert": bson.M{"created_at": now},
	}
	opts := options.Update().SetUpsert(true)

	if _, err = m.collection.UpdateOne(ctx, bson.M{"user_id": userID}, update, opts); err != nil {
		return fmt.Errorf("failed to add new item: %w", err)
	}

	return nil
}

// RemoveItem is a no-op when the cart or the line does not exist.
func (m *mongoCartRepository) RemoveItem(tx Tx, userID, productID primitive.ObjectID) error {
	filter := bson.M{"user_id": userID}
	update := bson.M{
		"$pull": bson.M{"items": bson.M{"product_id": productID}},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}

	if _, err := m.collection.UpdateOne(tx.Context(), filter, update); err != nil {
		return fmt.Errorf("failed to remove item: %w", err)
	}

	return nil
}

func (m *mongoCartRepository) DeleteCart(tx Tx, userID primitive.ObjectID) error {
	filter := bson.M{"user_id": userID}

	result, err := m.collection.DeleteOne(tx.Context(), filter)
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}

	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}

	return nil
}
