package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Cart struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID `bson:"user_id" json:"user_id"`
	Items     []CartItem         `bson:"items" json:"items"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

type CartItem struct {
	ProductID primitive.ObjectID `bson:"product_id" json:"product_id"`
	Quantity  int                `bson:"quantity" json:"quantity"`
	AddedAt   time.Time          `bson:"added_at" json:"added_at"`
}

// Item returns the line for productID, or nil.
func (c *Cart) Item(productID primitive.ObjectID) *CartItem {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return &c.Items[i]
		}
	}
	return nil
}

// ProductIDs lists the products referenced by the cart in line order.
func (c *Cart) ProductIDs() []primitive.ObjectID {
	ids := make([]primitive.ObjectID, 0, len(c.Items))
	for _, item := range c.Items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

// CartLine is a cart item joined with live product state.
type CartLine struct {
	ProductID   primitive.ObjectID `json:"product_id"`
	Name        string             `json:"name"`
	Quantity    int                `json:"quantity"`
	UnitPrice   decimal.Decimal    `json:"unit_price"`
	Subtotal    decimal.Decimal    `json:"subtotal"`
	Available   int                `json:"available"`
	Unavailable bool               `json:"unavailable"`
	AddedAt     time.Time          `json:"added_at"`
}

// CartView is the priced cart. TotalAmount only counts purchasable lines.
type CartView struct {
	UserID      primitive.ObjectID `json:"user_id"`
	Lines       []CartLine         `json:"lines"`
	TotalAmount decimal.Decimal    `json:"total_amount"`
}

// PurchasableLines returns the lines whose product still exists and is not deleted.
func (v *CartView) PurchasableLines() []CartLine {
	lines := make([]CartLine, 0, len(v.Lines))
	for _, l := range v.Lines {
		if !l.Unavailable {
			lines = append(lines, l)
		}
	}
	return lines
}

// PriceCart joins the cart with live products. Lines whose product is missing or
// soft-deleted are kept but flagged unavailable and excluded from the total.
func PriceCart(cart *Cart, products map[primitive.ObjectID]*Product) *CartView {
	view := &CartView{
		UserID:      cart.UserID,
		Lines:       make([]CartLine, 0, len(cart.Items)),
		TotalAmount: decimal.Zero,
	}

	for _, item := range cart.Items {
		line := CartLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			AddedAt:   item.AddedAt,
			UnitPrice: decimal.Zero,
			Subtotal:  decimal.Zero,
		}

		p, ok := products[item.ProductID]
		if !ok || p.Deleted {
			line.Unavailable = true
			if ok {
				line.Name = p.Name
			}
			view.Lines = append(view.Lines, line)
			continue
		}

		line.Name = p.Name
		line.Available = p.StockQuantity
		line.UnitPrice = Money(p.Price)
		line.Subtotal = LineTotal(p.Price, item.Quantity)
		view.TotalAmount = view.TotalAmount.Add(line.Subtotal)
		view.Lines = append(view.Lines, line)
	}

	return view
}
