package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMapGatewayState(t *testing.T) {
	tests := map[string]PaymentStatus{
		"COMPLETED": PaymentStatusCompleted,
		"FAILED":    PaymentStatusFailed,
		"PENDING":   PaymentStatusPending,
		"completed": PaymentStatusPending,
		"":          PaymentStatusPending,
		"REFUNDED":  PaymentStatusPending,
	}
	for state, want := range tests {
		t.Run(state, func(t *testing.T) {
			assert.Equal(t, want, MapGatewayState(state))
		})
	}
}

func TestCanTransitionTo(t *testing.T) {
	assert.True(t, CanTransitionTo(PaymentStatusPending, PaymentStatusCompleted))
	assert.True(t, CanTransitionTo(PaymentStatusPending, PaymentStatusFailed))
	assert.True(t, CanTransitionTo(PaymentStatusPending, PaymentStatusPending))

	for _, from := range []PaymentStatus{PaymentStatusCompleted, PaymentStatusFailed} {
		for _, to := range []PaymentStatus{PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed} {
			assert.False(t, CanTransitionTo(from, to), "%s -> %s", from, to)
		}
	}
	assert.False(t, CanTransitionTo(PaymentStatusPending, PaymentStatus("refunded")))
}

func TestMinorUnits_Rounds(t *testing.T) {
	tests := []struct {
		amount string
		want   int64
	}{
		{"30", 3000},
		{"10.005", 1001},
		{"0.29", 29},
		{"19.999", 2000},
		{"1.004", 100},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			assert.Equal(t, tt.want, MinorUnits(decimal.RequireFromString(tt.amount)))
		})
	}

	// 0.1 + 0.2 in floats would truncate to 29
	total := LineTotal(0.1, 1).Add(LineTotal(0.2, 1))
	assert.Equal(t, int64(30), MinorUnits(total))
}

func TestPriceCart(t *testing.T) {
	live := &Product{ID: primitive.NewObjectID(), Name: "Live", Price: 10, StockQuantity: 5}
	deleted := &Product{ID: primitive.NewObjectID(), Name: "Deleted", Price: 7, StockQuantity: 5, Deleted: true}
	missing := primitive.NewObjectID()

	cart := &Cart{
		UserID: primitive.NewObjectID(),
		Items: []CartItem{
			{ProductID: live.ID, Quantity: 3},
			{ProductID: deleted.ID, Quantity: 1},
			{ProductID: missing, Quantity: 2},
		},
	}
	view := PriceCart(cart, map[primitive.ObjectID]*Product{live.ID: live, deleted.ID: deleted})

	require.Len(t, view.Lines, 3)
	assert.True(t, decimal.NewFromInt(30).Equal(view.TotalAmount))
	assert.True(t, decimal.NewFromInt(30).Equal(view.Lines[0].Subtotal))
	assert.Equal(t, 5, view.Lines[0].Available)
	assert.True(t, view.Lines[1].Unavailable)
	assert.Equal(t, "Deleted", view.Lines[1].Name)
	assert.True(t, view.Lines[2].Unavailable)
	assert.Len(t, view.PurchasableLines(), 1)
}

func TestNewPendingOrder_SkipsUnavailableLines(t *testing.T) {
	user := primitive.NewObjectID()
	now := time.Now().UTC()
	view := &CartView{
		UserID: user,
		Lines: []CartLine{
			{ProductID: primitive.NewObjectID(), Name: "A", Quantity: 2, UnitPrice: decimal.RequireFromString("2.50"), Subtotal: decimal.NewFromInt(5)},
			{ProductID: primitive.NewObjectID(), Name: "B", Quantity: 1, Unavailable: true},
		},
		TotalAmount: decimal.NewFromInt(5),
	}

	order := NewPendingOrder(user, view, "ORDER_1", now)

	require.Len(t, order.Items, 1)
	assert.Equal(t, 2.5, order.Items[0].Price)
	assert.Equal(t, 5.0, order.TotalAmount)
	assert.Equal(t, PaymentStatusPending, order.Status())
	assert.Equal(t, PaymentMethodPhonePe, order.PaymentDetails.PaymentMethod)
	assert.Equal(t, "ORDER_1", order.PaymentDetails.MerchantTransactionID)
}

func TestCartFromEmbedded_MergesDuplicates(t *testing.T) {
	user := primitive.NewObjectID()
	a, b := primitive.NewObjectID(), primitive.NewObjectID()
	now := time.Now().UTC()
	added := now.Add(-time.Hour)

	cart := CartFromEmbedded(user, []EmbeddedCartItem{
		{ProductID: a, Quantity: 1, AddedAt: added},
		{ProductID: b, Quantity: 0},
		{ProductID: a, Quantity: 2},
		{Quantity: 4},
	}, now)

	require.Len(t, cart.Items, 1)
	assert.Equal(t, 3, cart.Items[0].Quantity)
	assert.Equal(t, added, cart.Items[0].AddedAt)
	assert.Equal(t, user, cart.UserID)
}

func TestAuditEntry_BSONRoundTrip(t *testing.T) {
	wh, product := primitive.NewObjectID(), primitive.NewObjectID()
	details := []AuditDetails{
		CreateDetails{Snapshot: ProductSnapshot{ID: product, Name: "A", StockQuantity: 3}},
		StockDeltaDetails{Direction: ActionDecrease, NewStock: 1},
		DeleteDetails{Token: "tok"},
		RestoreDetails{Token: "tok"},
		SaleDetails{MerchantOrderID: "ORDER_1", Requested: 3, Applied: 2, NewStock: 0},
		WarehouseDeleteDetails{Token: "wtok", Affected: 4},
	}

	for _, d := range details {
		t.Run(string(d.Action()), func(t *testing.T) {
			in := AuditEntry{
				ID:          primitive.NewObjectID(),
				WarehouseID: &wh,
				ProductID:   &product,
				UserID:      primitive.NewObjectID(),
				Delta:       -2,
				Details:     d,
				CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
			}
			data, err := bson.Marshal(in)
			require.NoError(t, err)

			var raw bson.M
			require.NoError(t, bson.Unmarshal(data, &raw))
			assert.Equal(t, string(d.Action()), raw["action"])

			var out AuditEntry
			require.NoError(t, bson.Unmarshal(data, &out))
			assert.Equal(t, in, out)
		})
	}
}

func TestAuditEntry_ArchivedHasNullWarehouse(t *testing.T) {
	original := primitive.NewObjectID()
	in := AuditEntry{
		Details:   RestoreDetails{Token: "t"},
		Archived:  true,
		Archive:   &ArchiveMarker{OriginalWarehouseID: original, ArchivedAt: time.Now().UTC().Truncate(time.Millisecond)},
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	data, err := bson.Marshal(in)
	require.NoError(t, err)

	var raw bson.M
	require.NoError(t, bson.Unmarshal(data, &raw))
	v, ok := raw["warehouse"]
	assert.True(t, ok)
	assert.Nil(t, v)
	assert.Equal(t, true, raw["archived"])
	assert.NotContains(t, raw, "archive")

	// the original warehouse lives in the details payload next to the action fields
	details, ok := raw["details"].(bson.M)
	require.True(t, ok)
	assert.Equal(t, "t", details["token"])
	marker, ok := details["archive"].(bson.M)
	require.True(t, ok)
	assert.Equal(t, original, marker["original_warehouse_id"])

	var out AuditEntry
	require.NoError(t, bson.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestStockError(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewInsufficientStock("p1", 3))

	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.True(t, IsKnown(err))
	var stockErr *StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 3, stockErr.Available)

	assert.ErrorIs(t, Validationf("bad %s", "input"), ErrValidation)
	assert.False(t, IsKnown(errors.New("boom")))
}
