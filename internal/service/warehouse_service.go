package service

import (
	"context"
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

type WarehouseService struct {
	uow        repository.UnitOfWork
	warehouses repository.WarehouseRepository
	products   repository.ProductRepository
	audits     repository.AuditRepository
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewWarehouseService(
	uow repository.UnitOfWork,
	warehouses repository.WarehouseRepository,
	products repository.ProductRepository,
	audits repository.AuditRepository,
	m *metrics.Metrics,
) *WarehouseService {
	return &WarehouseService{
		uow:        uow,
		warehouses: warehouses,
		products:   products,
		audits:     audits,
		metrics:    m,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WarehouseDetail is a warehouse together with all of its products.
type WarehouseDetail struct {
	Warehouse *domain.Warehouse `json:"warehouse"`
	Products  []domain.Product  `json:"products"`
}

func normalizeWarehouseInput(in domain.WarehouseInput) (domain.WarehouseInput, error) {
	in.Location = strings.TrimSpace(in.Location)
	in.Manager = strings.TrimSpace(in.Manager)
	in.ManagerEmail = strings.TrimSpace(in.ManagerEmail)
	return in, validateInput(in)
}

func (s *WarehouseService) Create(ctx context.Context, actor primitive.ObjectID, in domain.WarehouseInput) (*domain.Warehouse, error) {
	in, err := normalizeWarehouseInput(in)
	if err != nil {
		return nil, err
	}

	wh := &domain.Warehouse{
		OwnerID:      actor,
		Location:     in.Location,
		Manager:      in.Manager,
		ManagerEmail: in.ManagerEmail,
	}
	if err := s.warehouses.Insert(ctx, wh); err != nil {
		return nil, err
	}
	return wh, nil
}

func (s *WarehouseService) Update(ctx context.Context, actor, warehouseID primitive.ObjectID, in domain.WarehouseInput) (*domain.Warehouse, error) {
	in, err := normalizeWarehouseInput(in)
	if err != nil {
		return nil, err
	}
	wh, err := ownedWarehouse(ctx, s.warehouses, actor, warehouseID)
	if err != nil {
		return nil, err
	}

	wh.Location = in.Location
	wh.Manager = in.Manager
	wh.ManagerEmail = in.ManagerEmail
	if err := s.warehouses.Update(ctx, wh); err != nil {
		return nil, err
	}
	return wh, nil
}

// List returns the actor's warehouses, deleted ones included, each with its count of live
// products.
func (s *WarehouseService) List(ctx context.Context, actor primitive.ObjectID) ([]domain.Warehouse, error) {
	warehouses, err := s.warehouses.ListByOwner(ctx, actor)
	if err != nil {
		return nil, err
	}

	ids := make([]primitive.ObjectID, 0, len(warehouses))
	for _, wh := range warehouses {
		ids = append(ids, wh.ID)
	}
	counts, err := s.products.CountActive(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range warehouses {
		warehouses[i].ProductCount = counts[warehouses[i].ID]
	}
	return warehouses, nil
}

func (s *WarehouseService) Get(ctx context.Context, actor, warehouseID primitive.ObjectID) (*WarehouseDetail, error) {
	wh, err := ownedWarehouse(ctx, s.warehouses, actor, warehouseID)
	if err != nil {
		return nil, err
	}
	products, err := s.products.ListByWarehouse(ctx, warehouseID)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		if !p.Deleted {
			wh.ProductCount++
		}
	}
	return &WarehouseDetail{Warehouse: wh, Products: products}, nil
}

// SoftDelete marks the warehouse deleted and stamps every live product under it with the
// same fresh tombstone token, so Restore can bring back exactly that set.
func (s *WarehouseService) SoftDelete(ctx context.Context, actor, warehouseID primitive.ObjectID) (string, error) {
	if _, err := ownedWarehouse(ctx, s.warehouses, actor, warehouseID); err != nil {
		return "", err
	}

	token := uuid.NewString()
	err := s.uow.Do(ctx, func(tx repository.Tx) error {
		at := s.now()
		ok, err := s.warehouses.MarkDeleted(tx, warehouseID, token, at)
		if err != nil {
			return err
		}
		if !ok {
			return domain.Validationf("warehouse is already deleted")
		}

		affected, err := s.products.StampWarehouseDeleted(tx, warehouseID, token, at)
		if err != nil {
			return err
		}

		return s.audit(tx, actor, warehouseID, domain.WarehouseDeleteDetails{Token: token, Affected: int(affected)})
	})
	if err != nil {
		return "", err
	}

	logging.FromContext(ctx).Info("warehouse soft deleted",
		zap.String("warehouse_id", warehouseID.Hex()))
	s.metrics.StockMutation(string(domain.ActionWarehouseDelete))
	return token, nil
}

// Restore reverses the last SoftDelete. Only products carrying the warehouse's token come
// back; products deleted on their own stay deleted.
func (s *WarehouseService) Restore(ctx context.Context, actor, warehouseID primitive.ObjectID) (int, error) {
	if _, err := ownedWarehouse(ctx, s.warehouses, actor, warehouseID); err != nil {
		return 0, err
	}

	var restored int
	err := s.uow.Do(ctx, func(tx repository.Tx) error {
		wh, err := s.warehouses.FindByID(tx, warehouseID)
		if err != nil {
			return err
		}
		if !wh.Deleted {
			return domain.Validationf("warehouse is not deleted")
		}

		token := wh.DeletedToken
		ok, err := s.warehouses.MarkRestored(tx, warehouseID, token)
		if err != nil {
			return err
		}
		if !ok {
			return domain.Validationf("warehouse is not deleted")
		}

		n, err := s.products.RestoreByToken(tx, warehouseID, token)
		if err != nil {
			return err
		}
		restored = int(n)

		return s.audit(tx, actor, warehouseID, domain.WarehouseRestoreDetails{Token: token, Restored: restored})
	})
	if err != nil {
		return 0, err
	}

	s.metrics.StockMutation(string(domain.ActionWarehouseRestore))
	return restored, nil
}

// PermanentDelete removes the warehouse and its products. Audit entries are archived, never
// removed.
func (s *WarehouseService) PermanentDelete(ctx context.Context, actor, warehouseID primitive.ObjectID) error {
	if _, err := ownedWarehouse(ctx, s.warehouses, actor, warehouseID); err != nil {
		return err
	}

	var removed, archived int64
	err := s.uow.Do(ctx, func(tx repository.Tx) error {
		var err error
		if removed, err = s.products.DeleteByWarehouse(tx, warehouseID); err != nil {
			return err
		}
		if err = s.warehouses.Delete(tx, warehouseID); err != nil {
			return err
		}
		archived, err = s.audits.ArchiveByWarehouse(tx, warehouseID, s.now())
		return err
	})
	if err != nil {
		return err
	}

	logging.FromContext(ctx).Info("warehouse permanently deleted",
		zap.String("warehouse_id", warehouseID.Hex()),
		zap.Int64("products_removed", removed),
		zap.Int64("audits_archived", archived))
	return nil
}

func (s *WarehouseService) audit(tx repository.Tx, actor, warehouseID primitive.ObjectID, details domain.AuditDetails) error {
	return s.audits.Append(tx, &domain.AuditEntry{
		WarehouseID: &warehouseID,
		UserID:      actor,
		Details:     details,
		CreatedAt:   s.now(),
	})
}
