package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/NineNineAFK/verto/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// audits are append-only; the only later write is the archive stamp
type mongoAuditRepository struct {
	collection *mongo.Collection
}

func NewMongoAuditRepository(db *mongo.Database) AuditRepository {
	return &mongoAuditRepository{collection: db.Collection("audits")}
}

func (m *mongoAuditRepository) Append(tx Tx, entry *domain.AuditEntry) error {
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if _, err := m.collection.InsertOne(tx.Context(), entry); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (m *mongoAuditRepository) ListByWarehouse(ctx context.Context, warehouseID primitive.ObjectID, limit int64) ([]domain.AuditEntry, error) {
	opts := newestAudits()
	if limit > 0 {
		opts.SetLimit(limit)
	}
	return m.list(ctx, bson.M{"warehouse": warehouseID}, opts)
}

func (m *mongoAuditRepository) ListByProduct(ctx context.Context, productID primitive.ObjectID) ([]domain.AuditEntry, error) {
	return m.list(ctx, bson.M{"product": productID}, newestAudits())
}

// ArchiveByWarehouse detaches every entry from warehouseID and records where it came from.
func (m *mongoAuditRepository) ArchiveByWarehouse(tx Tx, warehouseID primitive.ObjectID, at time.Time) (int64, error) {
	update := bson.M{"$set": bson.M{
		"warehouse": nil,
		"archived":  true,
		"details.archive": domain.ArchiveMarker{
			OriginalWarehouseID: warehouseID,
			ArchivedAt:          at,
		},
	}}

	res, err := m.collection.UpdateMany(tx.Context(), bson.M{"warehouse": warehouseID}, update)
	if err != nil {
		return 0, fmt.Errorf("failed to archive audit entries: %w", err)
	}
	return res.ModifiedCount, nil
}

func (m *mongoAuditRepository) list(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.AuditEntry, error) {
	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer cursor.Close(ctx)

	entries := make([]domain.AuditEntry, 0)
	for cursor.Next(ctx) {
		var entry domain.AuditEntry
		if err := cursor.Decode(&entry); err != nil {
			return nil, fmt.Errorf("failed to decode audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit entries: %w", err)
	}
	return entries, nil
}

func newestAudits() *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
}
