package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Range bounds a report by order creation time. Nil ends are open.
type Range struct {
	From *time.Time
	To   *time.Time
}

// EndOfDay moves t to the last millisecond of its calendar day, so a date-only
// upper bound includes the whole day.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}

type TopProduct struct {
	ProductID string `json:"product_id"`
	UnitsSold int    `json:"units_sold"`
}

type TopBuyer struct {
	UserID     string          `json:"user_id"`
	Username   string          `json:"username"`
	Orders     int             `json:"orders"`
	TotalSpent decimal.Decimal `json:"total_spent"`
}

type Dashboard struct {
	TotalOrders  int             `json:"total_orders"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	TopProduct   *TopProduct     `json:"top_product"`
	TopBuyer     *TopBuyer       `json:"top_buyer"`
}

const rangeCond = `($1::timestamptz IS NULL OR o.created_at >= $1) AND ($2::timestamptz IS NULL OR o.created_at <= $2)`

func (r *Repo) Dashboard(ctx context.Context, rg Range) (Dashboard, error) {
	var d Dashboard
	var revenue string
	if err := r.db.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(o.total), 0)::text
		FROM orders o WHERE `+rangeCond, rg.From, rg.To,
	).Scan(&d.TotalOrders, &revenue); err != nil {
		return Dashboard{}, fmt.Errorf("order totals: %w", err)
	}
	if err := setDecimal(&d.TotalRevenue, revenue); err != nil {
		return Dashboard{}, err
	}

	var tp TopProduct
	err := r.db.QueryRow(ctx, `
		SELECT i.product_id, SUM(i.quantity)::int AS units
		FROM order_items i JOIN orders o ON o.id = i.order_id
		WHERE `+rangeCond+`
		GROUP BY i.product_id
		ORDER BY units DESC, i.product_id
		LIMIT 1`, rg.From, rg.To,
	).Scan(&tp.ProductID, &tp.UnitsSold)
	switch {
	case err == nil:
		d.TopProduct = &tp
	case !errors.Is(err, pgx.ErrNoRows):
		return Dashboard{}, fmt.Errorf("top product: %w", err)
	}

	var tb TopBuyer
	var spent string
	err = r.db.QueryRow(ctx, `
		SELECT o.user_id::text, u.username, COUNT(*)::int, SUM(o.total)::text
		FROM orders o JOIN users u ON u.id = o.user_id
		WHERE `+rangeCond+`
		GROUP BY o.user_id, u.username
		ORDER BY SUM(o.total) DESC, o.user_id
		LIMIT 1`, rg.From, rg.To,
	).Scan(&tb.UserID, &tb.Username, &tb.Orders, &spent)
	switch {
	case err == nil:
		if err := setDecimal(&tb.TotalSpent, spent); err != nil {
			return Dashboard{}, err
		}
		d.TopBuyer = &tb
	case !errors.Is(err, pgx.ErrNoRows):
		return Dashboard{}, fmt.Errorf("top buyer: %w", err)
	}
	return d, nil
}
