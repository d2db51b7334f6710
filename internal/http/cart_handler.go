package http

import (
	"context"
	"net/http"
	"time"

	"github.com/NineNineAFK/verto/internal/domain"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CartAPI interface {
	GetCart(ctx context.Context, userID primitive.ObjectID) (*domain.CartView, error)
	AddItem(ctx context.Context, userID, productID primitive.ObjectID, qty int) error
	UpdateItem(ctx context.Context, userID, productID primitive.ObjectID, qty int) error
	RemoveItem(ctx context.Context, userID, productID primitive.ObjectID) error
}

type CartHandler struct {
	carts   CartAPI
	timeout time.Duration
}

func NewCartHandler(carts CartAPI, timeout time.Duration) *CartHandler {
	return &CartHandler{
		carts:   carts,
		timeout: timeout,
	}
}

type AddItemRequestDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

// GET /home/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	h.respondCart(ctx, w, r, userID, http.StatusOK)
}

// POST /home/cart/add
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	var req AddItemRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	productID, err := primitive.ObjectIDFromHex(req.ProductID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a valid id")
		return
	}

	if err := h.carts.AddItem(ctx, userID, productID, req.Quantity); err != nil {
		handleServiceError(w, r, err)
		return
	}
	h.respondCart(ctx, w, r, userID, http.StatusCreated)
}

// POST /home/cart/{productId}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	productID, ok := objectIDParam(w, r, "productId")
	if !ok {
		return
	}

	var req UpdateQuantityRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if err := h.carts.UpdateItem(ctx, userID, productID, req.Quantity); err != nil {
		handleServiceError(w, r, err)
		return
	}
	h.respondCart(ctx, w, r, userID, http.StatusOK)
}

// DELETE /home/cart/{productId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	productID, ok := objectIDParam(w, r, "productId")
	if !ok {
		return
	}

	if err := h.carts.RemoveItem(ctx, userID, productID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	h.respondCart(ctx, w, r, userID, http.StatusOK)
}

func (h *CartHandler) respondCart(ctx context.Context, w http.ResponseWriter, r *http.Request, userID primitive.ObjectID, status int) {
	view, err := h.carts.GetCart(ctx, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, status, view)
}
