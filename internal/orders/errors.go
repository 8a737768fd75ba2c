package orders

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyOrder             = errors.New("order must contain at least one item")
	ErrInvalidQuantity        = errors.New("item quantity must be at least 1")
	ErrOrderPersistenceFailed = errors.New("order could not be saved")
)

type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// PersistenceError means the ledger did not commit the order. Nothing else
// was changed.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", ErrOrderPersistenceFailed, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrOrderPersistenceFailed }
