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

type mongoWarehouseRepository struct {
	collection *mongo.Collection
}

func NewMongoWarehouseRepository(db *mongo.Database) WarehouseRepository {
	return &mongoWarehouseRepository{collection: db.Collection("warehouses")}
}

func (m *mongoWarehouseRepository) Insert(ctx context.Context, warehouse *domain.Warehouse) error {
	now := time.Now().UTC()
	if warehouse.ID.IsZero() {
		warehouse.ID = primitive.NewObjectID()
	}
	warehouse.CreatedAt = now
	warehouse.UpdatedAt = now

	if _, err := m.collection.InsertOne(ctx, warehouse); err != nil {
		return fmt.Errorf("failed to insert warehouse: %w", err)
	}
	return nil
}

func (m *mongoWarehouseRepository) FindByID(tx Tx, id primitive.ObjectID) (*domain.Warehouse, error) {
	var warehouse domain.Warehouse
	err := m.collection.FindOne(tx.Context(), bson.M{"_id": id}).Decode(&warehouse)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrWarehouseNotFound
		}
		return nil, fmt.Errorf("failed to get warehouse: %w", err)
	}
	return &warehouse, nil
}

func (m *mongoWarehouseRepository) ListByOwner(ctx context.Context, ownerID primitive.ObjectID) ([]domain.Warehouse, error) {
	cursor, err := m.collection.Find(ctx, bson.M{"owner": ownerID}, byNewest())
	if err != nil {
		return nil, fmt.Errorf("failed to list warehouses: %w", err)
	}
	defer cursor.Close(ctx)

	warehouses := make([]domain.Warehouse, 0)
	if err := cursor.All(ctx, &warehouses); err != nil {
		return nil, fmt.Errorf("failed to decode warehouses: %w", err)
	}
	return warehouses, nil
}

func (m *mongoWarehouseRepository) Update(ctx context.Context, warehouse *domain.Warehouse) error {
	warehouse.UpdatedAt = time.Now().UTC()
	update := bson.M{"$set": bson.M{
		"location":      warehouse.Location,
		"manager":       warehouse.Manager,
		"manager_email": warehouse.ManagerEmail,
		"updated_at":    warehouse.UpdatedAt,
	}}

	res, err := m.collection.UpdateOne(ctx, bson.M{"_id": warehouse.ID}, update)
	if err != nil {
		return fmt.Errorf("failed to update warehouse: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrWarehouseNotFound
	}
	return nil
}

func (m *mongoWarehouseRepository) MarkDeleted(tx Tx, id primitive.ObjectID, token string, at time.Time) (bool, error) {
	update := bson.M{"$set": bson.M{
		"deleted":       true,
		"deleted_at":    at,
		"deleted_token": token,
		"updated_at":    at,
	}}

	res, err := m.collection.UpdateOne(tx.Context(), bson.M{"_id": id, "deleted": false}, update)
	if err != nil {
		return false, fmt.Errorf("failed to soft delete warehouse: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (m *mongoWarehouseRepository) MarkRestored(tx Tx, id primitive.ObjectID, token string) (bool, error) {
	filter := bson.M{"_id": id, "deleted": true, "deleted_token": token}

	res, err := m.collection.UpdateOne(tx.Context(), filter, restoreUpdate())
	if err != nil {
		return false, fmt.Errorf("failed to restore warehouse: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (m *mongoWarehouseRepository) Delete(tx Tx, id primitive.ObjectID) error {
	res, err := m.collection.DeleteOne(tx.Context(), bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete warehouse: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrWarehouseNotFound
	}
	return nil
}
