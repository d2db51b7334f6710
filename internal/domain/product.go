package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Product struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	WarehouseID       primitive.ObjectID `bson:"warehouse" json:"warehouse_id"`
	Name              string             `bson:"name" json:"name"`
	Description       string             `bson:"description" json:"description"`
	Price             float64            `bson:"price" json:"price"`
	StockQuantity     int                `bson:"stock_quantity" json:"stock_quantity"`
	LowStockThreshold int                `bson:"low_stock_threshold" json:"low_stock_threshold"`
	Deleted           bool               `bson:"deleted" json:"deleted"`
	DeletedAt         *time.Time         `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
	DeletedToken      string             `bson:"deleted_token,omitempty" json:"-"`
	CreatedAt         time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt         time.Time          `bson:"updated_at" json:"updated_at"`
}

// IsLowStock reports whether the product sits at or below its restock threshold.
func (p *Product) IsLowStock() bool {
	return p.StockQuantity <= p.LowStockThreshold
}

// Snapshot captures the audited fields of a product at a point in time.
func (p *Product) Snapshot() ProductSnapshot {
	return ProductSnapshot{
		ID:                p.ID,
		Name:              p.Name,
		Description:       p.Description,
		Price:             p.Price,
		StockQuantity:     p.StockQuantity,
		LowStockThreshold: p.LowStockThreshold,
	}
}

type ProductSnapshot struct {
	ID                primitive.ObjectID `bson:"id" json:"id"`
	Name              string             `bson:"name" json:"name"`
	Description       string             `bson:"description" json:"description"`
	Price             float64            `bson:"price" json:"price"`
	StockQuantity     int                `bson:"stock_quantity" json:"stock_quantity"`
	LowStockThreshold int                `bson:"low_stock_threshold" json:"low_stock_threshold"`
}

type NewProduct struct {
	Name              string  `json:"name" validate:"required,max=200"`
	Description       string  `json:"description" validate:"max=2000"`
	Price             float64 `json:"price" validate:"gte=0"`
	StockQuantity     int     `json:"stock_quantity" validate:"gte=0"`
	LowStockThreshold int     `json:"low_stock_threshold" validate:"gte=0"`
}

// ProductEdit carries the fields to change; nil means keep the current value.
type ProductEdit struct {
	Name              *string  `json:"name" validate:"omitempty,min=1,max=200"`
	Description       *string  `json:"description" validate:"omitempty,max=2000"`
	Price             *float64 `json:"price" validate:"omitempty,gte=0"`
	StockQuantity     *int     `json:"stock_quantity" validate:"omitempty,gte=0"`
	LowStockThreshold *int     `json:"low_stock_threshold" validate:"omitempty,gte=0"`
}

// Apply returns a copy of p with the edit applied.
func (e ProductEdit) Apply(p Product) Product {
	if e.Name != nil {
		p.Name = *e.Name
	}
	if e.Description != nil {
		p.Description = *e.Description
	}
	if e.Price != nil {
		p.Price = *e.Price
	}
	if e.StockQuantity != nil {
		p.StockQuantity = *e.StockQuantity
	}
	if e.LowStockThreshold != nil {
		p.LowStockThreshold = *e.LowStockThreshold
	}
	return p
}
