package http

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/NineNineAFK/verto/internal/domain"
	"github.com/NineNineAFK/verto/internal/logging"
	"github.com/NineNineAFK/verto/internal/service"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type PaymentAPI interface {
	Initiate(ctx context.Context, userID primitive.ObjectID, merchantOrderID string) (*service.InitiateResult, error)
	Reconcile(ctx context.Context, merchantOrderID string) (*domain.Settlement, error)
	Order(ctx context.Context, merchantOrderID string) (*domain.Order, error)
	CheckGateway(ctx context.Context) error
}

type PaymentHandler struct {
	payments  PaymentAPI
	clientURL string
	timeout   time.Duration
}

func NewPaymentHandler(payments PaymentAPI, clientURL string, timeout time.Duration) *PaymentHandler {
	return &PaymentHandler{
		payments:  payments,
		clientURL: clientURL,
		timeout:   timeout,
	}
}

type InitiatePaymentRequestDTO struct {
	MerchantOrderID string `json:"merchantOrderId"`
}

type GatewayHealthDTO struct {
	Status string `json:"status"`
}

// POST /payment/initiate
//
// The gateway reply is written as the body unchanged; the order id travels in a header.
func (h *PaymentHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	var req InitiatePaymentRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	res, err := h.payments.Initiate(ctx, userID, req.MerchantOrderID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.Header().Set(HeaderMerchantOrderID, res.MerchantOrderID)
	respondJSON(w, http.StatusOK, res.Gateway)
}

// GET /payment/redirect?merchantOrderId=
//
// The buyer lands here from the gateway. The order is reconciled and the buyer is sent on to
// the client status page; failures only flag that page.
func (h *PaymentHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	merchantOrderID := r.URL.Query().Get("merchantOrderId")
	target := h.clientURL + "/payment/status?merchantOrderId=" + url.QueryEscape(merchantOrderID)

	if _, err := h.payments.Reconcile(ctx, merchantOrderID); err != nil {
		logging.FromContext(ctx).Warn("reconcile on redirect failed",
			zap.String("merchant_order_id", merchantOrderID),
			zap.Error(err))
		target += "&err=1"
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// GET /payment/status?merchantOrderId=
func (h *PaymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	order, err := h.payments.Order(ctx, r.URL.Query().Get("merchantOrderId"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	// other users' orders are not visible
	if order.UserID != userID {
		handleServiceError(w, r, domain.ErrNotFound)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// GET /payment/debug/token reports whether a gateway token can be obtained. The token itself
// is never returned.
func (h *PaymentHandler) DebugToken(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.payments.CheckGateway(ctx); err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, GatewayHealthDTO{Status: "ok"})
}
