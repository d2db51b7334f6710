package repository

import (
	"errors"
	"fmt"

	"github.com/NineNineAFK/verto/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoUserRepository struct {
	collection *mongo.Collection
}

func NewMongoUserRepository(db *mongo.Database) UserRepository {
	return &mongoUserRepository{collection: db.Collection("users")}
}

// EmbeddedCart returns the legacy cart list, or nil when the user has none.
func (m *mongoUserRepository) EmbeddedCart(tx Tx, userID primitive.ObjectID) ([]domain.EmbeddedCartItem, error) {
	var doc struct {
		Cart []domain.EmbeddedCartItem `bson:"cart"`
	}

	opts := options.FindOne().SetProjection(bson.M{"cart": 1})
	err := m.collection.FindOne(tx.Context(), bson.M{"_id": userID}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get embedded cart: %w", err)
	}

	return doc.Cart, nil
}

func (m *mongoUserRepository) ClearEmbeddedCart(tx Tx, userID primitive.ObjectID) error {
	update := bson.M{"$set": bson.M{"cart": bson.A{}}}

	if _, err := m.collection.UpdateOne(tx.Context(), bson.M{"_id": userID}, update); err != nil {
		return fmt.Errorf("failed to clear embedded cart: %w", err)
	}

	return nil
}
