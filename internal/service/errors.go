package service

import (
	"errors"
	"fmt"
)

// Validation errors map to 400, ErrInvalidCredentials to 401. Anything
// else coming out of a service is a persistence failure (500), except
// store.ErrNotFound which read paths surface as 404.
var (
	ErrEmptyOrder         = errors.New("order items required")
	ErrInvalidQuantity    = errors.New("quantity must be at least 1")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ProductNotFoundError reports an order line referencing an unknown product.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

// InsufficientStockError reports a line whose quantity exceeds the
// product's stock, either during validation or at commit time.
type InsufficientStockError struct {
	ProductID int64
	Name      string
}

func (e *InsufficientStockError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("insufficient stock for product %s", e.Name)
	}
	return fmt.Sprintf("insufficient stock for product %d", e.ProductID)
}

// IsValidationError reports whether err belongs to the caller-fault
// class of order placement failures.
func IsValidationError(err error) bool {
	var pnf *ProductNotFoundError
	var ins *InsufficientStockError
	return errors.Is(err, ErrEmptyOrder) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.As(err, &pnf) ||
		errors.As(err, &ins)
}
