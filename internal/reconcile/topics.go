package reconcile

import (
	"errors"
	"time"
)

const (
	TopicReconcile = "order.reconcile"

	EventReconciliationRequired = "ReconciliationRequired"
)

// RequiredPayload carries the whole anomaly, so the worker can record the
// item itself when the reporter could not. ItemID is empty in that case.
type RequiredPayload struct {
	ItemID    string    `json:"item_id,omitempty"`
	Kind      Kind      `json:"kind"`
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	ProductID string    `json:"product_id,omitempty"`
	Quantity  int       `json:"quantity,omitempty"`
	OrderedAt time.Time `json:"ordered_at"`
	Cause     string    `json:"cause,omitempty"`
}

func (p RequiredPayload) anomaly() Anomaly {
	a := Anomaly{
		Kind:      p.Kind,
		OrderID:   p.OrderID,
		UserID:    p.UserID,
		ProductID: p.ProductID,
		Quantity:  p.Quantity,
		OrderedAt: p.OrderedAt,
	}
	if p.Cause != "" {
		a.Cause = errors.New(p.Cause)
	}
	return a
}
