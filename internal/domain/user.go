package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EmbeddedCartItem is the legacy per-user cart line stored on the user document.
type EmbeddedCartItem struct {
	ProductID primitive.ObjectID `bson:"product"`
	Quantity  int                `bson:"qty"`
	AddedAt   time.Time          `bson:"addedAt"`
}

// CartFromEmbedded converts the legacy list into a cart aggregate, merging duplicate lines.
func CartFromEmbedded(userID primitive.ObjectID, items []EmbeddedCartItem, now time.Time) *Cart {
	cart := &Cart{UserID: userID, CreatedAt: now, UpdatedAt: now}
	for _, it := range items {
		if it.Quantity <= 0 || it.ProductID.IsZero() {
			continue
		}
		if existing := cart.Item(it.ProductID); existing != nil {
			existing.Quantity += it.Quantity
			continue
		}
		addedAt := it.AddedAt
		if addedAt.IsZero() {
			addedAt = now
		}
		cart.Items = append(cart.Items, CartItem{ProductID: it.ProductID, Quantity: it.Quantity, AddedAt: addedAt})
	}
	return cart
}
