// Package reconcile records post-commit anomalies of order placement and
// repairs them until they are resolved or handed to an operator.
package reconcile

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("reconciliation item not found")
	ErrConflict = errors.New("reconciliation item changed concurrently")
)

type Kind string

const (
	KindStockDecrement Kind = "STOCK_DECREMENT"
	KindCartClear      Kind = "CART_CLEAR"
)

// Anomaly is a post-commit step that failed for a committed order.
type Anomaly struct {
	// ID, when set, is used as the item id and makes recording it idempotent.
	ID        string
	Kind      Kind
	OrderID   string
	UserID    string
	ProductID string
	Quantity  int
	OrderedAt time.Time
	Cause     error
}

func (a Anomaly) cause() string {
	if a.Cause == nil {
		return ""
	}
	return a.Cause.Error()
}

type Item struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	ProductID string    `json:"product_id,omitempty"`
	Quantity  int       `json:"quantity,omitempty"`
	Status    Status    `json:"status"`
	Reason    string    `json:"reason"`
	Attempts  int       `json:"attempts"`
	OrderedAt time.Time `json:"ordered_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
