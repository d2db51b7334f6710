package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/NineNineAFK/verto/internal/domain"
	"github.com/NineNineAFK/verto/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type cartFixture struct {
	st    *stores
	svc   *CartService
	buyer primitive.ObjectID
}

func newCartFixture(legacyFallback bool) *cartFixture {
	st := newStores()
	return &cartFixture{
		st:    st,
		svc:   NewCartService(st.db, st.carts, st.users, st.products, legacyFallback),
		buyer: primitive.NewObjectID(),
	}
}

func (f *cartFixture) product(t *testing.T, name string, price float64, stock int) *domain.Product {
	t.Helper()
	p := &domain.Product{WarehouseID: primitive.NewObjectID(), Name: name, Price: price, StockQuantity: stock}
	require.NoError(t, f.st.products.Insert(noTx(), p))
	return p
}

func TestAddItem_ExceedingStockOnFirstAdd(t *testing.T) {
	f := newCartFixture(false)
	p := f.product(t, "X", 10, 5)

	err := f.svc.AddItem(context.Background(), f.buyer, p.ID, 10)

	require.ErrorIs(t, err, domain.ErrStockExceeded)
	var stockErr *domain.StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 5, stockErr.Available)

	view, err := f.svc.GetCart(context.Background(), f.buyer)
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
}

func TestAddItem_MergeClampsToStock(t *testing.T) {
	f := newCartFixture(false)
	p := f.product(t, "X", 10, 5)
	ctx := context.Background()

	require.NoError(t, f.svc.AddItem(ctx, f.buyer, p.ID, 3))
	require.NoError(t, f.svc.AddItem(ctx, f.buyer, p.ID, 4))

	view, err := f.svc.GetCart(ctx, f.buyer)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, 5, view.Lines[0].Quantity)
	assert.True(t, decimal.NewFromInt(50).Equal(view.TotalAmount))
}

func TestAddItem_DefaultsQuantityAndChecksProduct(t *testing.T) {
	f := newCartFixture(false)
	p := f.product(t, "X", 10, 5)
	ctx := context.Background()

	require.NoError(t, f.svc.AddItem(ctx, f.buyer, p.ID, 0))
	view, err := f.svc.GetCart(ctx, f.buyer)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, 1, view.Lines[0].Quantity)

	assert.ErrorIs(t, f.svc.AddItem(ctx, f.buyer, primitive.NewObjectID(), 1), domain.ErrNotFound)

	require.NoError(t, f.st.products.SoftDelete(noTx(), p.ID, "tok", time.Now()))
	assert.ErrorIs(t, f.svc.AddItem(ctx, f.buyer, p.ID, 1), domain.ErrUnavailable)
}

func TestUpdateItem(t *testing.T) {
	f := newCartFixture(false)
	p := f.product(t, "X", 10, 5)
	other := f.product(t, "Y", 1, 5)
	ctx := context.Background()
	require.NoError(t, f.svc.AddItem(ctx, f.buyer, p.ID, 1))

	require.NoError(t, f.svc.UpdateItem(ctx, f.buyer, p.ID, 4))
	view, err := f.svc.GetCart(ctx, f.buyer)
	require.NoError(t, err)
	assert.Equal(t, 4, view.Lines[0].Quantity)

	assert.ErrorIs(t, f.svc.UpdateItem(ctx, f.buyer, p.ID, 6), domain.ErrStockExceeded)
	assert.ErrorIs(t, f.svc.UpdateItem(ctx, f.buyer, other.ID, 1), repository.ErrItemNotFound)

	require.NoError(t, f.svc.UpdateItem(ctx, f.buyer, p.ID, 0))
	view, err = f.svc.GetCart(ctx, f.buyer)
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
}

func TestRemoveItem_Idempotent(t *testing.T) {
	f := newCartFixture(false)
	p := f.product(t, "X", 10, 5)
	ctx := context.Background()
	require.NoError(t, f.svc.AddItem(ctx, f.buyer, p.ID, 2))

	require.NoError(t, f.svc.RemoveItem(ctx, f.buyer, p.ID))
	require.NoError(t, f.svc.RemoveItem(ctx, f.buyer, p.ID))
	require.NoError(t, f.svc.RemoveItem(ctx, primitive.NewObjectID(), p.ID))
}

func TestGetCart_FlagsUnavailableLines(t *testing.T) {
	f := newCartFixture(false)
	live := f.product(t, "Live", 2.5, 5)
	gone := f.product(t, "Gone", 99, 5)
	ctx := context.Background()
	require.NoError(t, f.svc.AddItem(ctx, f.buyer, live.ID, 2))
	require.NoError(t, f.svc.AddItem(ctx, f.buyer, gone.ID, 1))
	require.NoError(t, f.st.products.SoftDelete(noTx(), gone.ID, "tok", time.Now()))

	view, err := f.svc.GetCart(ctx, f.buyer)
	require.NoError(t, err)
	require.Len(t, view.Lines, 2)
	assert.Len(t, view.PurchasableLines(), 1)
	assert.True(t, view.Lines[1].Unavailable)
	assert.True(t, decimal.NewFromInt(5).Equal(view.TotalAmount))
}

func TestGetCart_MigratesEmbeddedCart(t *testing.T) {
	f := newCartFixture(true)
	p := f.product(t, "X", 10, 5)
	f.st.db.embedded[f.buyer] = []domain.EmbeddedCartItem{
		{ProductID: p.ID, Quantity: 1},
		{ProductID: p.ID, Quantity: 2},
	}

	view, err := f.svc.GetCart(context.Background(), f.buyer)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, 3, view.Lines[0].Quantity)

	assert.Empty(t, f.st.db.embedded[f.buyer])
	cart, err := f.st.carts.GetCart(noTx(), f.buyer)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)
}

func TestGetCart_IgnoresEmbeddedWhenFallbackOff(t *testing.T) {
	f := newCartFixture(false)
	p := f.product(t, "X", 10, 5)
	f.st.db.embedded[f.buyer] = []domain.EmbeddedCartItem{{ProductID: p.ID, Quantity: 1}}

	view, err := f.svc.GetCart(context.Background(), f.buyer)
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
	assert.Len(t, f.st.db.embedded[f.buyer], 1)
}
