package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Warehouse struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OwnerID      primitive.ObjectID `bson:"owner" json:"owner_id"`
	Location     string             `bson:"location" json:"location"`
	Manager      string             `bson:"manager" json:"manager"`
	ManagerEmail string             `bson:"manager_email" json:"manager_email"`
	Deleted      bool               `bson:"deleted" json:"deleted"`
	DeletedAt    *time.Time         `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
	DeletedToken string             `bson:"deleted_token,omitempty" json:"-"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`

	ProductCount int `bson:"-" json:"product_count"`
}

// OwnedBy reports whether userID may manage the warehouse.
func (w *Warehouse) OwnedBy(userID primitive.ObjectID) bool {
	return w.OwnerID == userID
}

type WarehouseInput struct {
	Location     string `json:"location" validate:"required,max=200"`
	Manager      string `json:"manager" validate:"max=200"`
	ManagerEmail string `json:"manager_email" validate:"required,email"`
}
