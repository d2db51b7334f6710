package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

// String representation (for logging)
func (s PaymentStatus) String() string {
	return string(s)
}

// CanTransitionTo allows pending to move to either terminal state. Terminal states never move.
// Staying pending is allowed so that payment metadata can be refreshed.
func CanTransitionTo(from, to PaymentStatus) bool {
	if from != PaymentStatusPending {
		return false
	}
	switch to {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed:
		return true
	}
	return false
}

// Gateway vocabulary.
const (
	GatewayStateCompleted = "COMPLETED"
	GatewayStateFailed    = "FAILED"
)

// MapGatewayState maps the gateway's order state into the internal model. Anything not
// recognised stays pending; it is never assumed to be a success.
func MapGatewayState(state string) PaymentStatus {
	switch state {
	case GatewayStateCompleted:
		return PaymentStatusCompleted
	case GatewayStateFailed:
		return PaymentStatusFailed
	default:
		return PaymentStatusPending
	}
}

const PaymentMethodPhonePe = "PhonePe"

type OrderItem struct {
	ProductID primitive.ObjectID `bson:"product" json:"product_id"`
	Name      string             `bson:"name" json:"name"`
	Quantity  int                `bson:"qty" json:"quantity"`
	Price     float64            `bson:"price" json:"price"`
}

type PaymentDetails struct {
	MerchantTransactionID string        `bson:"merchant_transaction_id" json:"merchant_transaction_id"`
	TransactionID         string        `bson:"transaction_id,omitempty" json:"transaction_id,omitempty"`
	Status                PaymentStatus `bson:"status" json:"status"`
	PaymentMethod         string        `bson:"payment_method" json:"payment_method"`
	PaymentTimestamp      *time.Time    `bson:"payment_timestamp,omitempty" json:"payment_timestamp,omitempty"`
	ErrorMessage          string        `bson:"error_message,omitempty" json:"error_message,omitempty"`
}

type Order struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID         primitive.ObjectID `bson:"user_id" json:"user_id"`
	Items          []OrderItem        `bson:"items" json:"items"`
	TotalAmount    float64            `bson:"total_amount" json:"total_amount"`
	PaymentDetails PaymentDetails     `bson:"payment_details" json:"payment_details"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updated_at"`
}

func (o *Order) Status() PaymentStatus {
	return o.PaymentDetails.Status
}

// NewPendingOrder snapshots priced cart lines into an order awaiting payment.
func NewPendingOrder(userID primitive.ObjectID, view *CartView, merchantOrderID string, now time.Time) *Order {
	lines := view.PurchasableLines()
	items := make([]OrderItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, OrderItem{
			ProductID: l.ProductID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			Price:     l.UnitPrice.InexactFloat64(),
		})
	}

	return &Order{
		UserID:      userID,
		Items:       items,
		TotalAmount: view.TotalAmount.InexactFloat64(),
		PaymentDetails: PaymentDetails{
			MerchantTransactionID: merchantOrderID,
			Status:                PaymentStatusPending,
			PaymentMethod:         PaymentMethodPhonePe,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// GatewayStatus is the gateway's authoritative view of a payment.
type GatewayStatus struct {
	State         string
	TransactionID string
	Timestamp     *time.Time
	ErrorCode     string
}

// Settlement describes what a reconciliation did.
type Settlement struct {
	MerchantOrderID string
	Order           *Order
	Status          PaymentStatus
	// Applied is true only for the reconciliation that performed the completion side effect.
	Applied bool
}
