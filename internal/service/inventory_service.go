package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/NineNineAFK/verto/internal/domain"
	"github.com/NineNineAFK/verto/internal/logging"
	"github.com/NineNineAFK/verto/internal/metrics"
	"github.com/NineNineAFK/verto/internal/repository"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// InventoryService is the stock mutation engine. Every stock change commits together with
// exactly one audit entry carrying the same delta.
type InventoryService struct {
	uow        repository.UnitOfWork
	products   repository.ProductRepository
	warehouses repository.WarehouseRepository
	audits     repository.AuditRepository
	metrics    *metrics.Metrics
	pageSize   int64
	now        func() time.Time
}

func NewInventoryService(
	uow repository.UnitOfWork,
	products repository.ProductRepository,
	warehouses repository.WarehouseRepository,
	audits repository.AuditRepository,
	m *metrics.Metrics,
	auditPageSize int,
) *InventoryService {
	if auditPageSize <= 0 {
		auditPageSize = 200
	}
	return &InventoryService{
		uow:        uow,
		products:   products,
		warehouses: warehouses,
		audits:     audits,
		metrics:    m,
		pageSize:   int64(auditPageSize),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ownedWarehouse loads the warehouse and checks that actor owns it. Ownership never changes,
// so this runs before any transaction opens.
func ownedWarehouse(ctx context.Context, warehouses repository.WarehouseRepository, actor, warehouseID primitive.ObjectID) (*domain.Warehouse, error) {
	wh, err := warehouses.FindByID(repository.NoTx(ctx), warehouseID)
	if err != nil {
		return nil, err
	}
	if !wh.OwnedBy(actor) {
		return nil, domain.ErrForbidden
	}
	return wh, nil
}

// activeWarehouse is ownedWarehouse for operations that need the warehouse not deleted.
func (s *InventoryService) activeWarehouse(ctx context.Context, actor, warehouseID primitive.ObjectID) (*domain.Warehouse, error) {
	wh, err := ownedWarehouse(ctx, s.warehouses, actor, warehouseID)
	if err != nil {
		return nil, err
	}
	if wh.Deleted {
		return nil, domain.ErrUnavailable
	}
	return wh, nil
}

func (s *InventoryService) CreateProduct(ctx context.Context, actor, warehouseID primitive.ObjectID, in domain.NewProduct) (*domain.Product, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if _, err := s.activeWarehouse(ctx, actor, warehouseID); err != nil {
		return nil, err
	}

	product := &domain.Product{
		ID:                primitive.NewObjectID(),
		WarehouseID:       warehouseID,
		Name:              in.Name,
		Description:       in.Description,
		Price:             in.Price,
		StockQuantity:     in.StockQuantity,
		LowStockThreshold: in.LowStockThreshold,
	}

	err := s.uow.Do(ctx, func(tx repository.Tx) error {
		if err := s.products.Insert(tx, product); err != nil {
			return err
		}
		return s.audit(tx, actor, product, in.StockQuantity, domain.CreateDetails{Snapshot: product.Snapshot()})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.StockMutation(string(domain.ActionCreate))
	return product, nil
}

func (s *InventoryService) Increase(ctx context.Context, actor, warehouseID, productID primitive.ObjectID, amount int) (*domain.Product, error) {
	return s.adjust(ctx, actor, warehouseID, productID, amount, domain.ActionIncrease)
}

func (s *InventoryService) Decrease(ctx context.Context, actor, warehouseID, productID primitive.ObjectID, amount int) (*domain.Product, error) {
	return s.adjust(ctx, actor, warehouseID, productID, amount, domain.ActionDecrease)
}

func (s *InventoryService) adjust(ctx context.Context, actor, warehouseID, productID primitive.ObjectID, amount int, action domain.AuditAction) (*domain.Product, error) {
	if amount < 1 {
		return nil, domain.Validationf("amount must be at least 1")
	}
	if _, err := s.activeWarehouse(ctx, actor, warehouseID); err != nil {
		return nil, err
	}

	delta := amount
	if action == domain.ActionDecrease {
		delta = -amount
	}

	var product *domain.Product
	err := s.uow.Do(ctx, func(tx repository.Tx) error {
		p, err := s.products.FindInWarehouse(tx, warehouseID, productID)
		if err != nil {
			return err
		}
		if p.Deleted {
			return domain.ErrUnavailable
		}
		if p.StockQuantity+delta < 0 {
			return domain.NewInsufficientStock(p.ID.Hex(), p.StockQuantity)
		}

		newStock, err := s.products.AdjustStock(tx, p.ID, delta)
		if errors.Is(err, repository.ErrStockGuard) {
			return domain.NewInsufficientStock(p.ID.Hex(), p.StockQuantity)
		}
		if err != nil {
			return err
		}
		p.StockQuantity = newStock

		if err := s.audit(tx, actor, p, delta, domain.StockDeltaDetails{Direction: action, NewStock: newStock}); err != nil {
			return err
		}
		product = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.StockMutation(string(action))
	return product, nil
}

// EditProduct changes product fields, stock included. The audit delta is the stock change.
func (s *InventoryService) EditProduct(ctx context.Context, actor, warehouseID, productID primitive.ObjectID, edit domain.ProductEdit) (*domain.Product, error) {
	if edit.Name != nil {
		trimmed := strings.TrimSpace(*edit.Name)
		edit.Name = &trimmed
	}
	if err := validateInput(edit); err != nil {
		return nil, err
	}
	if _, err := s.activeWarehouse(ctx, actor, warehouseID); err != nil {
		return nil, err
	}

	var product *domain.Product
	err := s.uow.Do(ctx, func(tx repository.Tx) error {
		current, err := s.products.FindInWarehouse(tx, warehouseID, productID)
		if err != nil {
			return err
		}
		if current.Deleted {
			return domain.ErrUnavailable
		}

		updated := edit.Apply(*current)
		if err := s.products.Update(tx, &updated); err != nil {
			return err
		}

		delta := updated.StockQuantity - current.StockQuantity
		details := domain.EditDetails{Previous: current.Snapshot(), Current: updated.Snapshot()}
		if err := s.audit(tx, actor, &updated, delta, details); err != nil {
			return err
		}
		product = &updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.StockMutation(string(domain.ActionEdit))
	return product, nil
}

// DeleteProduct soft deletes one product under its own tombstone token. Stock is kept, so
// the audit delta is zero.
func (s *InventoryService) DeleteProduct(ctx context.Context, actor, warehouseID, productID primitive.ObjectID) error {
	if _, err := s.activeWarehouse(ctx, actor, warehouseID); err != nil {
		return err
	}

	err := s.uow.Do(ctx, func(tx repository.Tx) error {
		p, err := s.products.FindInWarehouse(tx, warehouseID, productID)
		if err != nil {
			return err
		}
		if p.Deleted {
			return domain.ErrUnavailable
		}

		token := uuid.NewString()
		if err := s.products.SoftDelete(tx, p.ID, token, s.now()); err != nil {
			return err
		}
		return s.audit(tx, actor, p, 0, domain.DeleteDetails{Snapshot: p.Snapshot(), Token: token})
	})
	if err != nil {
		return err
	}

	s.metrics.StockMutation(string(domain.ActionDelete))
	return nil
}

func (s *InventoryService) RestoreProduct(ctx context.Context, actor, warehouseID, productID primitive.ObjectID) (*domain.Product, error) {
	if _, err := s.activeWarehouse(ctx, actor, warehouseID); err != nil {
		return nil, err
	}

	var product *domain.Product
	err := s.uow.Do(ctx, func(tx repository.Tx) error {
		p, err := s.products.FindInWarehouse(tx, warehouseID, productID)
		if err != nil {
			return err
		}
		if !p.Deleted {
			return domain.Validationf("product is not deleted")
		}

		token := p.DeletedToken
		if err := s.products.Restore(tx, p.ID); err != nil {
			return err
		}
		p.Deleted, p.DeletedAt, p.DeletedToken = false, nil, ""

		if err := s.audit(tx, actor, p, 0, domain.RestoreDetails{Token: token}); err != nil {
			return err
		}
		product = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.StockMutation(string(domain.ActionRestore))
	return product, nil
}

func (s *InventoryService) LowStock(ctx context.Context, actor, warehouseID primitive.ObjectID) ([]domain.Product, error) {
	if _, err := ownedWarehouse(ctx, s.warehouses, actor, warehouseID); err != nil {
		return nil, err
	}
	return s.products.ListLowStock(ctx, warehouseID)
}

// Store lists live products the actor can buy: everything outside the actor's own warehouses
// and outside deleted warehouses.
func (s *InventoryService) Store(ctx context.Context, actor primitive.ObjectID, lowOnly bool) ([]domain.Product, error) {
	own, err := s.warehouses.ListByOwner(ctx, actor)
	if err != nil {
		return nil, err
	}
	exclude := make([]primitive.ObjectID, 0, len(own))
	for _, wh := range own {
		exclude = append(exclude, wh.ID)
	}
	return s.products.ListStore(ctx, exclude, lowOnly)
}

// AuditLog returns the warehouse's audit entries newest first, one page at most.
func (s *InventoryService) AuditLog(ctx context.Context, actor, warehouseID primitive.ObjectID) ([]domain.AuditEntry, error) {
	if _, err := ownedWarehouse(ctx, s.warehouses, actor, warehouseID); err != nil {
		return nil, err
	}
	return s.audits.ListByWarehouse(ctx, warehouseID, s.pageSize)
}

func (s *InventoryService) ProductHistory(ctx context.Context, actor, warehouseID, productID primitive.ObjectID) ([]domain.AuditEntry, error) {
	if _, err := ownedWarehouse(ctx, s.warehouses, actor, warehouseID); err != nil {
		return nil, err
	}
	if _, err := s.products.FindInWarehouse(repository.NoTx(ctx), warehouseID, productID); err != nil {
		return nil, err
	}
	return s.audits.ListByProduct(ctx, productID)
}

func (s *InventoryService) audit(tx repository.Tx, actor primitive.ObjectID, p *domain.Product, delta int, details domain.AuditDetails) error {
	warehouseID, productID := p.WarehouseID, p.ID
	err := s.audits.Append(tx, &domain.AuditEntry{
		WarehouseID: &warehouseID,
		ProductID:   &productID,
		UserID:      actor,
		Delta:       delta,
		Details:     details,
		CreatedAt:   s.now(),
	})
	if err != nil {
		logging.FromContext(tx.Context()).Error("failed to append audit entry",
			zap.String("product_id", productID.Hex()),
			zap.String("action", string(details.Action())),
			zap.Error(err))
	}
	return err
}
