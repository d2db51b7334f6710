package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrValidation         = errors.New("validation failed")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrStockExceeded      = errors.New("requested quantity exceeds available stock")
	ErrUnavailable        = errors.New("product not available")
	ErrEmptyCart          = errors.New("cart is empty or total amount is invalid")
	ErrGateway            = errors.New("payment gateway error")
	ErrTransactionAborted = errors.New("transaction aborted")
	ErrIllegalTransition  = errors.New("illegal transition of payment status")
)

// StockError reports a stock rule violation together with the quantity that was available
// when the rule was checked.
type StockError struct {
	Err       error
	ProductID string
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("%v: product %s has %d available", e.Err, e.ProductID, e.Available)
}

func (e *StockError) Unwrap() error {
	return e.Err
}

func NewInsufficientStock(productID string, available int) error {
	return &StockError{Err: ErrInsufficientStock, ProductID: productID, Available: available}
}

func NewStockExceeded(productID string, available int) error {
	return &StockError{Err: ErrStockExceeded, ProductID: productID, Available: available}
}

// Validationf wraps ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IsKnown reports whether err belongs to the domain taxonomy and should reach the caller as is.
func IsKnown(err error) bool {
	for _, kind := range []error{
		ErrNotFound,
		ErrForbidden,
		ErrValidation,
		ErrInsufficientStock,
		ErrStockExceeded,
		ErrUnavailable,
		ErrEmptyCart,
		ErrGateway,
		ErrTransactionAborted,
		ErrIllegalTransition,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
