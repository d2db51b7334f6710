package http

import (
	"context"
	"net/http"
	"time"

	"github.com/NineNineAFK/verto/internal/domain"
	"github.com/NineNineAFK/verto/internal/service"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type WarehouseAPI interface {
	Create(ctx context.Context, actor primitive.ObjectID, in domain.WarehouseInput) (*domain.Warehouse, error)
	Update(ctx context.Context, actor, warehouseID primitive.ObjectID, in domain.WarehouseInput) (*domain.Warehouse, error)
	List(ctx context.Context, actor primitive.ObjectID) ([]domain.Warehouse, error)
	Get(ctx context.Context, actor, warehouseID primitive.ObjectID) (*service.WarehouseDetail, error)
	SoftDelete(ctx context.Context, actor, warehouseID primitive.ObjectID) (string, error)
	Restore(ctx context.Context, actor, warehouseID primitive.ObjectID) (int, error)
	PermanentDelete(ctx context.Context, actor, warehouseID primitive.ObjectID) error
}

type InventoryAPI interface {
	CreateProduct(ctx context.Context, actor, warehouseID primitive.ObjectID, in domain.NewProduct) (*domain.Product, error)
	Increase(ctx context.Context, actor, warehouseID, productID primitive.ObjectID, amount int) (*domain.Product, error)
	Decrease(ctx context.Context, actor, warehouseID, productID primitive.ObjectID, amount int) (*domain.Product, error)
	EditProduct(ctx context.Context, actor, warehouseID, productID primitive.ObjectID, edit domain.ProductEdit) (*domain.Product, error)
	DeleteProduct(ctx context.Context, actor, warehouseID, productID primitive.ObjectID) error
	RestoreProduct(ctx context.Context, actor, warehouseID, productID primitive.ObjectID) (*domain.Product, error)
	LowStock(ctx context.Context, actor, warehouseID primitive.ObjectID) ([]domain.Product, error)
	Store(ctx context.Context, actor primitive.ObjectID, lowOnly bool) ([]domain.Product, error)
	AuditLog(ctx context.Context, actor, warehouseID primitive.ObjectID) ([]domain.AuditEntry, error)
	ProductHistory(ctx context.Context, actor, warehouseID, productID primitive.ObjectID) ([]domain.AuditEntry, error)
}

type InventoryHandler struct {
	warehouses WarehouseAPI
	inventory  InventoryAPI
	timeout    time.Duration
}

func NewInventoryHandler(warehouses WarehouseAPI, inventory InventoryAPI, timeout time.Duration) *InventoryHandler {
	return &InventoryHandler{
		warehouses: warehouses,
		inventory:  inventory,
		timeout:    timeout,
	}
}

type AmountRequestDTO struct {
	Amount int `json:"amount"`
}

type SoftDeleteResponseDTO struct {
	Token string `json:"token"`
}

type RestoreResponseDTO struct {
	Restored int `json:"restored"`
}

// AuditEntryDTO is the JSON view of an audit entry; details are shaped by action.
type AuditEntryDTO struct {
	ID          primitive.ObjectID    `json:"id"`
	Action      domain.AuditAction    `json:"action"`
	WarehouseID *primitive.ObjectID   `json:"warehouse_id"`
	ProductID   *primitive.ObjectID   `json:"product_id,omitempty"`
	UserID      primitive.ObjectID    `json:"user_id"`
	Delta       int                   `json:"delta"`
	Details     domain.AuditDetails   `json:"details"`
	Archived    bool                  `json:"archived"`
	Archive     *domain.ArchiveMarker `json:"archive,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
}

func toAuditDTOs(entries []domain.AuditEntry) []AuditEntryDTO {
	out := make([]AuditEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditEntryDTO{
			ID:          e.ID,
			Action:      e.Action(),
			WarehouseID: e.WarehouseID,
			ProductID:   e.ProductID,
			UserID:      e.UserID,
			Delta:       e.Delta,
			Details:     e.Details,
			Archived:    e.Archived,
			Archive:     e.Archive,
			CreatedAt:   e.CreatedAt,
		})
	}
	return out
}

// actorFromRequest returns the authenticated user, writing a 401 when there is none.
func actorFromRequest(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	userID, ok := getUserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
	}
	return userID, ok
}

func objectIDParam(w http.ResponseWriter, r *http.Request, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, name))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid id")
		return primitive.NilObjectID, false
	}
	return id, true
}

// GET /home/inventory
func (h *InventoryHandler) ListWarehouses(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	warehouses, err := h.warehouses.List(ctx, actor)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, warehouses)
}

// POST /home/inventory/add
func (h *InventoryHandler) CreateWarehouse(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	var req domain.WarehouseInput
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	wh, err := h.warehouses.Create(ctx, actor, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, wh)
}

// GET /home/inventory/{warehouseId}
func (h *InventoryHandler) GetWarehouse(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	warehouseID, ok := objectIDParam(w, r, "warehouseId")
	if !ok {
		return
	}

	detail, err := h.warehouses.Get(ctx, actor, warehouseID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

// POST /home/inventory/{warehouseId}/edit
func (h *InventoryHandler) UpdateWarehouse(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	warehouseID, ok := objectIDParam(w, r, "warehouseId")
	if !ok {
		return
	}
	var req domain.WarehouseInput
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	wh, err := h.warehouses.Update(ctx, actor, warehouseID, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, wh)
}

// POST /home/inventory/{warehouseId}/delete
func (h *InventoryHandler) DeleteWarehouse(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	warehouseID, ok := objectIDParam(w, r, "warehouseId")
	if !ok {
		return
	}

	token, err := h.warehouses.SoftDelete(ctx, actor, warehouseID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, SoftDeleteResponseDTO{Token: token})
}

// POST /home/inventory/{warehouseId}/restore
func (h *InventoryHandler) RestoreWarehouse(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	warehouseID, ok := objectIDParam(w, r, "warehouseId")
	if !ok {
		return
	}

	restored, err := h.warehouses.Restore(ctx, actor, warehouseID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, RestoreResponseDTO{Restored: restored})
}

// POST /home/inventory/{warehouseId}/permanent-delete
func (h *InventoryHandler) PermanentDeleteWarehouse(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	warehouseID, ok := objectIDParam(w, r, "warehouseId")
	if !ok {
		return
	}

	if err := h.warehouses.PermanentDelete(ctx, actor, warehouseID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /home/inventory/{warehouseId}/audit
func (h *InventoryHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	warehouseID, ok := objectIDParam(w, r, "warehouseId")
	if !ok {
		return
	}

	entries, err := h.inventory.AuditLog(ctx, actor, warehouseID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toAuditDTOs(entries))
}

// POST /home/inventory/{warehouseId}/products/add
func (h *InventoryHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	warehouseID, ok := objectIDParam(w, r, "warehouseId")
	if !ok {
		return
	}
	var req domain.NewProduct
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	product, err := h.inventory.CreateProduct(ctx, actor, warehouseID, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, product)
}

// GET /home/inventory/{warehouseId}/products/low
func (h *InventoryHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	warehouseID, ok := objectIDParam(w, r, "warehouseId")
	if !ok {
		return
	}

	products, err := h.inventory.LowStock(ctx, actor, warehouseID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}

// POST /home/inventory/{warehouseId}/products/{productId}/increase
func (h *InventoryHandler) Increase(w http.ResponseWriter, r *http.Request) {
	h.adjust(w, r, h.inventory.Increase)
}

// POST /home/inventory/{warehouseId}/products/{productId}/decrease
func (h *InventoryHandler) Decrease(w http.ResponseWriter, r *http.Request) {
	h.adjust(w, r, h.inventory.Decrease)
}

type adjustFunc func(ctx context.Context, actor, warehouseID, productID primitive.ObjectID, amount int) (*domain.Product, error)

func (h *InventoryHandler) adjust(w http.ResponseWriter, r *http.Request, fn adjustFunc) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, warehouseID, productID, ok := productTarget(w, r)
	if !ok {
		return
	}
	var req AmountRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	product, err := fn(ctx, actor, warehouseID, productID, req.Amount)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

// POST /home/inventory/{warehouseId}/products/{productId}/edit
func (h *InventoryHandler) EditProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, warehouseID, productID, ok := productTarget(w, r)
	if !ok {
		return
	}
	var req domain.ProductEdit
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	product, err := h.inventory.EditProduct(ctx, actor, warehouseID, productID, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

// POST /home/inventory/{warehouseId}/products/{productId}/delete
func (h *InventoryHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, warehouseID, productID, ok := productTarget(w, r)
	if !ok {
		return
	}
	if err := h.inventory.DeleteProduct(ctx, actor, warehouseID, productID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /home/inventory/{warehouseId}/products/{productId}/restore
func (h *InventoryHandler) RestoreProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, warehouseID, productID, ok := productTarget(w, r)
	if !ok {
		return
	}
	product, err := h.inventory.RestoreProduct(ctx, actor, warehouseID, productID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

// GET /home/inventory/{warehouseId}/products/{productId}/history
func (h *InventoryHandler) ProductHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, warehouseID, productID, ok := productTarget(w, r)
	if !ok {
		return
	}
	entries, err := h.inventory.ProductHistory(ctx, actor, warehouseID, productID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toAuditDTOs(entries))
}

// GET /home/store?low=1
func (h *InventoryHandler) Store(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	low := r.URL.Query().Get("low")
	products, err := h.inventory.Store(ctx, actor, low == "1" || low == "true")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}

func productTarget(w http.ResponseWriter, r *http.Request) (actor, warehouseID, productID primitive.ObjectID, ok bool) {
	if actor, ok = actorFromRequest(w, r); !ok {
		return
	}
	if warehouseID, ok = objectIDParam(w, r, "warehouseId"); !ok {
		return
	}
	productID, ok = objectIDParam(w, r, "productId")
	return
}
