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
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoProductRepository struct {
	collection *mongo.Collection
}

func NewMongoProductRepository(db *mongo.Database) ProductRepository {
	return &mongoProductRepository{collection: db.Collection("products")}
}

func (m *mongoProductRepository) Insert(tx Tx, product *domain.Product) error {
	now := time.Now().UTC()
	if product.ID.IsZero() {
		product.ID = primitive.NewObjectID()
	}
	product.CreatedAt = now
	product.UpdatedAt = now

	if _, err := m.collection.InsertOne(tx.Context(), product); err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

func (m *mongoProductRepository) FindByID(tx Tx, id primitive.ObjectID) (*domain.Product, error) {
	return m.findOne(tx.Context(), bson.M{"_id": id})
}

func (m *mongoProductRepository) FindInWarehouse(tx Tx, warehouseID, productID primitive.ObjectID) (*domain.Product, error) {
	return m.findOne(tx.Context(), bson.M{"_id": productID, "warehouse": warehouseID})
}

func (m *mongoProductRepository) findOne(ctx context.Context, filter bson.M) (*domain.Product, error) {
	var product domain.Product
	err := m.collection.FindOne(ctx, filter).Decode(&product)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &product, nil
}

func (m *mongoProductRepository) FindMany(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*domain.Product, error) {
	result := make(map[primitive.ObjectID]*domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	products, err := m.list(ctx, bson.M{"_id": bson.M{"$in": ids}}, nil)
	if err != nil {
		return nil, err
	}
	for i := range products {
		result[products[i].ID] = &products[i]
	}
	return result, nil
}

func (m *mongoProductRepository) AdjustStock(tx Tx, id primitive.ObjectID, delta int) (int, error) {
	filter := bson.M{"_id": id}
	if delta < 0 {
		filter["stock_quantity"] = bson.M{"$gte": -delta}
	}
	update := bson.M{
		"$inc": bson.M{"stock_quantity": delta},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var product domain.Product
	err := m.collection.FindOneAndUpdate(tx.Context(), filter, update, opts).Decode(&product)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrStockGuard
		}
		return 0, fmt.Errorf("failed to adjust stock: %w", err)
	}
	return product.StockQuantity, nil
}

func (m *mongoProductRepository) Update(tx Tx, product *domain.Product) error {
	product.UpdatedAt = time.Now().UTC()
	update := bson.M{"$set": bson.M{
		"name":                product.Name,
		"description":         product.Description,
		"price":               product.Price,
		"stock_quantity":      product.StockQuantity,
		"low_stock_threshold": product.LowStockThreshold,
		"updated_at":          product.UpdatedAt,
	}}

	res, err := m.collection.UpdateOne(tx.Context(), bson.M{"_id": product.ID}, update)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (m *mongoProductRepository) SoftDelete(tx Tx, id primitive.ObjectID, token string, at time.Time) error {
	update := bson.M{"$set": bson.M{
		"deleted":       true,
		"deleted_at":    at,
		"deleted_token": token,
		"updated_at":    at,
	}}

	res, err := m.collection.UpdateOne(tx.Context(), bson.M{"_id": id, "deleted": false}, update)
	if err != nil {
		return fmt.Errorf("failed to soft delete product: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (m *mongoProductRepository) Restore(tx Tx, id primitive.ObjectID) error {
	res, err := m.collection.UpdateOne(tx.Context(), bson.M{"_id": id, "deleted": true}, restoreUpdate())
	if err != nil {
		return fmt.Errorf("failed to restore product: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrProductNotFound
	}
	return nil
}

// StampWarehouseDeleted soft deletes the warehouse's live products with the warehouse token.
// Products already deleted keep their own token.
func (m *mongoProductRepository) StampWarehouseDeleted(tx Tx, warehouseID primitive.ObjectID, token string, at time.Time) (int64, error) {
	update := bson.M{"$set": bson.M{
		"deleted":       true,
		"deleted_at":    at,
		"deleted_token": token,
		"updated_at":    at,
	}}

	res, err := m.collection.UpdateMany(tx.Context(), bson.M{"warehouse": warehouseID, "deleted": false}, update)
	if err != nil {
		return 0, fmt.Errorf("failed to soft delete warehouse products: %w", err)
	}
	return res.ModifiedCount, nil
}

func (m *mongoProductRepository) RestoreByToken(tx Tx, warehouseID primitive.ObjectID, token string) (int64, error) {
	filter := bson.M{"warehouse": warehouseID, "deleted": true, "deleted_token": token}

	res, err := m.collection.UpdateMany(tx.Context(), filter, restoreUpdate())
	if err != nil {
		return 0, fmt.Errorf("failed to restore warehouse products: %w", err)
	}
	return res.ModifiedCount, nil
}

func restoreUpdate() bson.M {
	return bson.M{
		"$set":   bson.M{"deleted": false, "updated_at": time.Now().UTC()},
		"$unset": bson.M{"deleted_at": "", "deleted_token": ""},
	}
}

func (m *mongoProductRepository) DeleteByWarehouse(tx Tx, warehouseID primitive.ObjectID) (int64, error) {
	res, err := m.collection.DeleteMany(tx.Context(), bson.M{"warehouse": warehouseID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete warehouse products: %w", err)
	}
	return res.DeletedCount, nil
}

func (m *mongoProductRepository) ListByWarehouse(ctx context.Context, warehouseID primitive.ObjectID) ([]domain.Product, error) {
	return m.list(ctx, bson.M{"warehouse": warehouseID}, byNewest())
}

func (m *mongoProductRepository) ListLowStock(ctx context.Context, warehouseID primitive.ObjectID) ([]domain.Product, error) {
	filter := bson.M{
		"warehouse": warehouseID,
		"deleted":   false,
		"$expr":     bson.M{"$lte": bson.A{"$stock_quantity", "$low_stock_threshold"}},
	}
	return m.list(ctx, filter, options.Find().SetSort(bson.D{{Key: "stock_quantity", Value: 1}}))
}

// ListStore returns live products outside the given warehouses, used for the storefront.
func (m *mongoProductRepository) ListStore(ctx context.Context, excludeWarehouses []primitive.ObjectID, lowOnly bool) ([]domain.Product, error) {
	filter := bson.M{"deleted": false}
	if len(excludeWarehouses) > 0 {
		filter["warehouse"] = bson.M{"$nin": excludeWarehouses}
	}
	if lowOnly {
		filter["$expr"] = bson.M{"$lte": bson.A{"$stock_quantity", "$low_stock_threshold"}}
	}
	return m.list(ctx, filter, byNewest())
}

func (m *mongoProductRepository) CountActive(ctx context.Context, warehouseIDs []primitive.ObjectID) (map[primitive.ObjectID]int, error) {
	counts := make(map[primitive.ObjectID]int, len(warehouseIDs))
	if len(warehouseIDs) == 0 {
		return counts, nil
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"warehouse": bson.M{"$in": warehouseIDs}, "deleted": false}}},
		{{Key: "$group", Value: bson.M{"_id": "$warehouse", "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := m.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID    primitive.ObjectID `bson:"_id"`
		Count int                `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode product counts: %w", err)
	}
	for _, row := range rows {
		counts[row.ID] = row.Count
	}
	return counts, nil
}

func (m *mongoProductRepository) list(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.Product, error) {
	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer cursor.Close(ctx)

	products := make([]domain.Product, 0)
	if err := cursor.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}
	return products, nil
}

func byNewest() *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
}
