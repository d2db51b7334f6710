package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/NineNineAFK/verto/internal/domain"
	"github.com/NineNineAFK/verto/internal/logging"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Details   string `json:"details,omitempty"`
	Available *int   `json:"available,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleServiceError converts a service error into a response. Errors outside the domain
// taxonomy are logged and reported without detail.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var stockErr *domain.StockError
	if errors.As(err, &stockErr) {
		code := "insufficient_stock"
		if errors.Is(err, domain.ErrStockExceeded) {
			code = "stock_exceeded"
		}
		available := stockErr.Available
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:     stockErr.Err.Error(),
			Code:      code,
			Details:   stockErr.Error(),
			Available: &available,
		})
		return
	}

	var httpStatus int
	var code string

	switch {
	case errors.Is(err, domain.ErrValidation):
		httpStatus, code = http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, domain.ErrNotFound):
		httpStatus, code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrForbidden):
		httpStatus, code = http.StatusForbidden, "permission_denied"
	case errors.Is(err, domain.ErrUnavailable):
		httpStatus, code = http.StatusBadRequest, "unavailable"
	case errors.Is(err, domain.ErrEmptyCart):
		httpStatus, code = http.StatusBadRequest, "empty_cart"
	case errors.Is(err, domain.ErrGateway):
		logging.FromContext(r.Context()).Warn("gateway error", zap.Error(err))
		respondError(w, http.StatusBadGateway, "gateway_error", "payment gateway error")
		return
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
		return
	default:
		logging.FromContext(r.Context()).Error("request failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal server error",
			Code:    "internal_error",
			Details: getRequestID(r.Context()),
		})
		return
	}

	respondError(w, httpStatus, code, err.Error())
}

// decodeJSON reads an optional JSON body; an empty body leaves v untouched.
func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
