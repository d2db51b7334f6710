package service

import (
	"context"
	"errors"
	"time"

	"github.com/NineNineAFK/verto/internal/domain"
	"github.com/NineNineAFK/verto/internal/logging"
	"github.com/NineNineAFK/verto/internal/repository"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// CartService keeps one cart aggregate per user. The legacy list embedded on the user
// document is only read to migrate it into the aggregate.
type CartService struct {
	uow            repository.UnitOfWork
	carts          repository.CartRepository
	users          repository.UserRepository
	products       repository.ProductRepository
	legacyFallback bool
	now            func() time.Time
}

func NewCartService(
	uow repository.UnitOfWork,
	carts repository.CartRepository,
	users repository.UserRepository,
	products repository.ProductRepository,
	legacyFallback bool,
) *CartService {
	return &CartService{
		uow:            uow,
		carts:          carts,
		users:          users,
		products:       products,
		legacyFallback: legacyFallback,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// GetCart returns the cart priced against live product state.
func (s *CartService) GetCart(ctx context.Context, userID primitive.ObjectID) (*domain.CartView, error) {
	var cart *domain.Cart
	err := s.uow.Do(ctx, func(tx repository.Tx) error {
		var err error
		cart, err = s.resolve(tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	products, err := s.products.FindMany(ctx, cart.ProductIDs())
	if err != nil {
		return nil, err
	}
	return domain.PriceCart(cart, products), nil
}

// AddItem adds qty (at least 1) of a product. A first add larger than the stock is rejected;
// adding to an existing line caps the sum at the stock.
func (s *CartService) AddItem(ctx context.Context, userID, productID primitive.ObjectID, qty int) error {
	if qty < 1 {
		qty = 1
	}

	return s.uow.Do(ctx, func(tx repository.Tx) error {
		p, err := s.products.FindByID(tx, productID)
		if err != nil {
			return err
		}
		if p.Deleted {
			return domain.ErrUnavailable
		}
		if qty > p.StockQuantity {
			return domain.NewStockExceeded(p.ID.Hex(), p.StockQuantity)
		}

		cart, err := s.resolve(tx, userID)
		if err != nil {
			return err
		}

		newQty := qty
		if existing := cart.Item(productID); existing != nil {
			newQty = min(existing.Quantity+qty, p.StockQuantity)
		}
		return s.carts.SetItem(tx, userID, domain.CartItem{
			ProductID: productID,
			Quantity:  newQty,
			AddedAt:   s.now(),
		})
	})
}

// UpdateItem sets a line to exactly qty. Zero removes the line.
func (s *CartService) UpdateItem(ctx context.Context, userID, productID primitive.ObjectID, qty int) error {
	if qty <= 0 {
		return s.RemoveItem(ctx, userID, productID)
	}

	return s.uow.Do(ctx, func(tx repository.Tx) error {
		p, err := s.products.FindByID(tx, productID)
		if err != nil {
			return err
		}
		if p.Deleted {
			return domain.ErrUnavailable
		}
		if qty > p.StockQuantity {
			return domain.NewStockExceeded(p.ID.Hex(), p.StockQuantity)
		}

		cart, err := s.resolve(tx, userID)
		if err != nil {
			return err
		}
		existing := cart.Item(productID)
		if existing == nil {
			return repository.ErrItemNotFound
		}
		return s.carts.SetItem(tx, userID, domain.CartItem{
			ProductID: productID,
			Quantity:  qty,
			AddedAt:   existing.AddedAt,
		})
	})
}

// RemoveItem succeeds whether or not the line exists.
func (s *CartService) RemoveItem(ctx context.Context, userID, productID primitive.ObjectID) error {
	return s.uow.Do(ctx, func(tx repository.Tx) error {
		if _, err := s.resolve(tx, userID); err != nil {
			return err
		}
		return s.carts.RemoveItem(tx, userID, productID)
	})
}

// resolve returns the user's cart aggregate. When there is none and the legacy fallback is
// on, the embedded list is migrated into a new aggregate and cleared in the same transaction.
func (s *CartService) resolve(tx repository.Tx, userID primitive.ObjectID) (*domain.Cart, error) {
	cart, err := s.carts.GetCart(tx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, repository.ErrCartNotFound) {
		return nil, err
	}

	empty := &domain.Cart{UserID: userID, Items: []domain.CartItem{}}
	if !s.legacyFallback {
		return empty, nil
	}

	legacy, err := s.users.EmbeddedCart(tx, userID)
	if err != nil {
		return nil, err
	}
	if len(legacy) == 0 {
		return empty, nil
	}

	cart = domain.CartFromEmbedded(userID, legacy, s.now())
	if err := s.carts.UpsertCart(tx, cart); err != nil {
		return nil, err
	}
	if err := s.users.ClearEmbeddedCart(tx, userID); err != nil {
		return nil, err
	}

	logging.FromContext(tx.Context()).Info("migrated embedded cart",
		zap.String("user_id", userID.Hex()),
		zap.Int("items", len(cart.Items)))
	return cart, nil
}
