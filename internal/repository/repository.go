package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NineNineAFK/verto/internal/domain"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Not-found errors wrap domain.ErrNotFound so they survive a transaction boundary unchanged.
var (
	ErrProductNotFound   = fmt.Errorf("product %w", domain.ErrNotFound)
	ErrWarehouseNotFound = fmt.Errorf("warehouse %w", domain.ErrNotFound)
	ErrCartNotFound      = fmt.Errorf("cart %w", domain.ErrNotFound)
	ErrItemNotFound      = fmt.Errorf("item %w in cart", domain.ErrNotFound)
	ErrOrderNotFound     = fmt.Errorf("order %w", domain.ErrNotFound)
	ErrDuplicateOrder    = errors.New("order with this merchant transaction id already exists")
	ErrStockGuard        = errors.New("stock changed concurrently")
)

// ProductRepository defines the interface for product data operations.
// Consumers define this interface, not the MongoDB implementation
type ProductRepository interface {
	Insert(tx Tx, product *domain.Product) error
	FindByID(tx Tx, id primitive.ObjectID) (*domain.Product, error)
	FindInWarehouse(tx Tx, warehouseID, productID primitive.ObjectID) (*domain.Product, error)
	FindMany(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*domain.Product, error)
	// AdjustStock applies delta only if the result stays non-negative and returns the new stock.
	AdjustStock(tx Tx, id primitive.ObjectID, delta int) (int, error)
	Update(tx Tx, product *domain.Product) error
	SoftDelete(tx Tx, id primitive.ObjectID, token string, at time.Time) error
	Restore(tx Tx, id primitive.ObjectID) error
	StampWarehouseDeleted(tx Tx, warehouseID primitive.ObjectID, token string, at time.Time) (int64, error)
	RestoreByToken(tx Tx, warehouseID primitive.ObjectID, token string) (int64, error)
	DeleteByWarehouse(tx Tx, warehouseID primitive.ObjectID) (int64, error)
	ListByWarehouse(ctx context.Context, warehouseID primitive.ObjectID) ([]domain.Product, error)
	ListLowStock(ctx context.Context, warehouseID primitive.ObjectID) ([]domain.Product, error)
	ListStore(ctx context.Context, excludeWarehouses []primitive.ObjectID, lowOnly bool) ([]domain.Product, error)
	CountActive(ctx context.Context, warehouseIDs []primitive.ObjectID) (map[primitive.ObjectID]int, error)
}

type WarehouseRepository interface {
	Insert(ctx context.Context, warehouse *domain.Warehouse) error
	FindByID(tx Tx, id primitive.ObjectID) (*domain.Warehouse, error)
	ListByOwner(ctx context.Context, ownerID primitive.ObjectID) ([]domain.Warehouse, error)
	Update(ctx context.Context, warehouse *domain.Warehouse) error
	// MarkDeleted flags a live warehouse; false means it was already deleted.
	MarkDeleted(tx Tx, id primitive.ObjectID, token string, at time.Time) (bool, error)
	// MarkRestored clears the flag only while the stored token still equals token.
	MarkRestored(tx Tx, id primitive.ObjectID, token string) (bool, error)
	Delete(tx Tx, id primitive.ObjectID) error
}

type AuditRepository interface {
	Append(tx Tx, entry *domain.AuditEntry) error
	ListByWarehouse(ctx context.Context, warehouseID primitive.ObjectID, limit int64) ([]domain.AuditEntry, error)
	ListByProduct(ctx context.Context, productID primitive.ObjectID) ([]domain.AuditEntry, error)
	ArchiveByWarehouse(tx Tx, warehouseID primitive.ObjectID, at time.Time) (int64, error)
}

// CartRepository defines the interface for cart data operations
type CartRepository interface {
	GetCart(tx Tx, userID primitive.ObjectID) (*domain.Cart, error)
	UpsertCart(tx Tx, cart *domain.Cart) error
	SetItem(tx Tx, userID primitive.ObjectID, item domain.CartItem) error
	RemoveItem(tx Tx, userID, productID primitive.ObjectID) error
	DeleteCart(tx Tx, userID primitive.ObjectID) error
}

// UserRepository only touches the legacy cart list embedded on user documents; accounts
// themselves are managed elsewhere.
type UserRepository interface {
	EmbeddedCart(tx Tx, userID primitive.ObjectID) ([]domain.EmbeddedCartItem, error)
	ClearEmbeddedCart(tx Tx, userID primitive.ObjectID) error
}

type OrderRepository interface {
	Insert(ctx context.Context, order *domain.Order) error
	FindByMerchantID(tx Tx, merchantOrderID string) (*domain.Order, error)
	// Transition moves a pending order to status and records gateway metadata. It reports
	// false when the order was no longer pending, so the caller lost the race.
	Transition(tx Tx, merchantOrderID string, status domain.PaymentStatus, gw domain.GatewayStatus, at time.Time) (bool, error)
}
