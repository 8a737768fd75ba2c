// Package orders places orders across the ledger and the inventory store.
//
// The ledger commit is the point of no return. Validation before it is
// read-only, and every step after it is best-effort: a failure there is
// handed to the reconciliation log and never undoes the order.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-storefront/internal/catalog"
	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/ledger"
	"github.com/ariefcatur/go-storefront/internal/reconcile"
	"github.com/shopspring/decimal"
)

const defaultPostCommitTimeout = 5 * time.Second

type ItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type Placement struct {
	OrderID   string
	Total     decimal.Decimal
	Items     []ledger.Item
	CreatedAt time.Time
	// Anomalies counts post-commit steps that were handed to reconciliation.
	Anomalies int
}

type Inventory interface {
	GetMany(ctx context.Context, ids []string) (map[string]catalog.Product, error)
	Decrement(ctx context.Context, orderID, productID string, qty int) (int, error)
}

type Ledger interface {
	InsertOrder(ctx context.Context, in ledger.NewOrder) (ledger.Order, error)
}

type Carts interface {
	Clear(ctx context.Context, userID string) error
}

type Reporter interface {
	Report(ctx context.Context, a reconcile.Anomaly)
}

type Publisher interface {
	PublishEnvelope(env kafkax.Envelope) error
}

type Service struct {
	Inventory Inventory
	Ledger    Ledger
	Carts     Carts
	Reporter  Reporter
	Publisher Publisher
	Logger    *slog.Logger

	PostCommitTimeout time.Duration
	ServiceName       string
}

// PlaceOrder validates the request against current stock, commits the order
// with price snapshots, then adjusts stock and clears the cart.
func (s *Service) PlaceOrder(ctx context.Context, userID string, items []ItemRequest) (Placement, error) {
	in, err := s.validate(ctx, userID, items)
	if err != nil {
		return Placement{}, err
	}

	order, err := s.Ledger.InsertOrder(ctx, in)
	if err != nil {
		return Placement{}, &PersistenceError{Err: err}
	}

	timeout := s.PostCommitTimeout
	if timeout <= 0 {
		timeout = defaultPostCommitTimeout
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	anomalies := s.adjustInventory(pctx, order)
	anomalies += s.clearCart(pctx, order)

	s.publish(order, anomalies)
	s.Logger.Info("order placed",
		"order_id", order.ID, "user_id", userID, "total", order.Total.StringFixed(2),
		"lines", len(order.Items), "anomalies", anomalies)

	return Placement{
		OrderID:   order.ID,
		Total:     order.Total,
		Items:     order.Items,
		CreatedAt: order.CreatedAt,
		Anomalies: anomalies,
	}, nil
}

func (s *Service) validate(ctx context.Context, userID string, items []ItemRequest) (ledger.NewOrder, error) {
	if len(items) == 0 {
		return ledger.NewOrder{}, ErrEmptyOrder
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if it.Quantity < 1 {
			return ledger.NewOrder{}, fmt.Errorf("%w: product %s quantity %d", ErrInvalidQuantity, it.ProductID, it.Quantity)
		}
		ids = append(ids, it.ProductID)
	}

	products, err := s.Inventory.GetMany(ctx, ids)
	if err != nil {
		return ledger.NewOrder{}, fmt.Errorf("load products: %w", err)
	}

	in := ledger.NewOrder{UserID: userID, Total: decimal.Zero, Lines: make([]ledger.Line, 0, len(items))}
	requested := make(map[string]int, len(items))
	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok {
			return ledger.NewOrder{}, &ProductNotFoundError{ProductID: it.ProductID}
		}
		requested[p.ID] += it.Quantity
		if requested[p.ID] > p.Stock {
			return ledger.NewOrder{}, &InsufficientStockError{ProductID: p.ID, Requested: requested[p.ID], Available: p.Stock}
		}
		in.Lines = append(in.Lines, ledger.Line{ProductID: p.ID, Quantity: it.Quantity, Price: p.Price})
		in.Total = in.Total.Add(p.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return in, nil
}

// adjustInventory decrements once per product with the summed quantity. The
// applied marker is keyed by (order, product), so a second decrement for a
// repeated line would be taken as a retry.
func (s *Service) adjustInventory(ctx context.Context, o ledger.Order) int {
	qty := make(map[string]int, len(o.Items))
	var order []string
	for _, it := range o.Items {
		if _, seen := qty[it.ProductID]; !seen {
			order = append(order, it.ProductID)
		}
		qty[it.ProductID] += it.Quantity
	}

	anomalies := 0
	for _, pid := range order {
		_, err := s.Inventory.Decrement(ctx, o.ID, pid, qty[pid])
		if err == nil || errors.Is(err, catalog.ErrAlreadyApplied) {
			continue
		}
		anomalies++
		s.Reporter.Report(ctx, reconcile.Anomaly{
			Kind:      reconcile.KindStockDecrement,
			OrderID:   o.ID,
			UserID:    o.UserID,
			ProductID: pid,
			Quantity:  qty[pid],
			OrderedAt: o.CreatedAt,
			Cause:     err,
		})
	}
	return anomalies
}

func (s *Service) clearCart(ctx context.Context, o ledger.Order) int {
	err := s.Carts.Clear(ctx, o.UserID)
	if err == nil {
		return 0
	}
	s.Reporter.Report(ctx, reconcile.Anomaly{
		Kind:      reconcile.KindCartClear,
		OrderID:   o.ID,
		UserID:    o.UserID,
		OrderedAt: o.CreatedAt,
		Cause:     err,
	})
	return 1
}

func (s *Service) publish(o ledger.Order, anomalies int) {
	if s.Publisher == nil {
		return
	}
	env, err := kafkax.NewEnvelope(EventOrderPlaced, s.ServiceName, o.ID, placedPayload(o, anomalies))
	if err == nil {
		err = s.Publisher.PublishEnvelope(env)
	}
	if err != nil {
		s.Logger.Warn("publish order placed", "order_id", o.ID, "err", err)
	}
}
