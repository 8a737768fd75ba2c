package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-storefront/internal/paging"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// InsertOrder writes the order row and all of its item rows in one
// transaction. Nothing is visible unless every insert and the commit succeed.
func (r *Repo) InsertOrder(ctx context.Context, in NewOrder) (Order, error) {
	if len(in.Lines) == 0 {
		return Order{}, ErrEmptyOrder
	}
	o := Order{
		ID:        r.newID(),
		UserID:    in.UserID,
		Total:     in.Total,
		CreatedAt: r.now().UTC(),
		Items:     make([]Item, 0, len(in.Lines)),
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return Order{}, fmt.Errorf("begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if _, err := tx.Exec(ctx, `
		INSERT INTO orders(id, user_id, total, created_at)
		VALUES ($1, $2, $3::numeric, $4)`,
		o.ID, o.UserID, o.Total.StringFixed(2), o.CreatedAt,
	); err != nil {
		return Order{}, fmt.Errorf("insert order: %w", err)
	}

	for _, l := range in.Lines {
		it := Item{ID: r.newID(), OrderID: o.ID, ProductID: l.ProductID, Quantity: l.Quantity, Price: l.Price}
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(id, order_id, product_id, quantity, price)
			VALUES ($1, $2, $3, $4, $5::numeric)`,
			it.ID, it.OrderID, it.ProductID, it.Quantity, it.Price.StringFixed(2),
		); err != nil {
			return Order{}, fmt.Errorf("insert order item %s: %w", l.ProductID, err)
		}
		o.Items = append(o.Items, it)
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, fmt.Errorf("commit: %w", err)
	}
	committed = true
	return o, nil
}

// ListByUser returns one page of a user's orders, newest first, with items.
func (r *Repo) ListByUser(ctx context.Context, userID string, page paging.Params) ([]Order, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	const pageSQL = `SELECT o.id FROM orders o WHERE o.user_id = $1 ORDER BY o.created_at DESC, o.id LIMIT $2 OFFSET $3`
	args := []any{userID, page.Limit, page.Offset()}

	rows, err := r.db.Query(ctx, `
		SELECT o.id::text, o.user_id::text, o.total::text, o.created_at
		FROM orders o WHERE o.user_id = $1
		ORDER BY o.created_at DESC, o.id LIMIT $2 OFFSET $3`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, fmt.Errorf("scan orders: %w", err)
	}
	if err := r.attachItems(ctx, orders, pageSQL, args); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

type AdminOrderQuery struct {
	Search    string // buyer username, case-insensitive substring
	SortBy    string
	SortOrder string
	Page      paging.Params
}

var adminSortable = map[string]string{
	"created_at": "o.created_at",
	"total":      "o.total",
}

func (q AdminOrderQuery) orderBy() string {
	col, ok := adminSortable[q.SortBy]
	if !ok {
		col = adminSortable["created_at"]
	}
	dir := "DESC"
	if strings.EqualFold(q.SortOrder, "asc") {
		dir = "ASC"
	}
	return col + " " + dir + ", o.id"
}

// ListAll is the admin view across every buyer.
func (r *Repo) ListAll(ctx context.Context, q AdminOrderQuery) ([]Order, int, error) {
	where := ""
	var args []any
	if s := strings.TrimSpace(q.Search); s != "" {
		where = `WHERE u.username ILIKE $1`
		args = append(args, "%"+escapeLike(s)+"%")
	}
	from := `FROM orders o JOIN users u ON u.id = o.user_id ` + where

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) `+from, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	n := len(args)
	limits := fmt.Sprintf(` ORDER BY %s LIMIT $%d OFFSET $%d`, q.orderBy(), n+1, n+2)
	args = append(args, q.Page.Limit, q.Page.Offset())

	rows, err := r.db.Query(ctx, `
		SELECT o.id::text, o.user_id::text, o.total::text, o.created_at, u.username, u.email `+from+limits, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Order, error) {
		var o Order
		var total string
		b := &Buyer{}
		if err := row.Scan(&o.ID, &o.UserID, &total, &o.CreatedAt, &b.Username, &b.Email); err != nil {
			return Order{}, err
		}
		b.ID = o.UserID
		o.Buyer = b
		return o, setDecimal(&o.Total, total)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("scan orders: %w", err)
	}
	if err := r.attachItems(ctx, orders, `SELECT o.id `+from+limits, args); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// attachItems loads the items of the orders selected by pageSQL, which must
// select exactly the ids of the page already loaded into orders.
func (r *Repo) attachItems(ctx context.Context, orders []Order, pageSQL string, args []any) error {
	if len(orders) == 0 {
		return nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT i.id::text, i.order_id::text, i.product_id, i.quantity, i.price::text
		FROM order_items i
		WHERE i.order_id IN (`+pageSQL+`)
		ORDER BY i.order_id, i.id`, args...)
	if err != nil {
		return fmt.Errorf("list order items: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanItem)
	if err != nil {
		return fmt.Errorf("scan order items: %w", err)
	}

	byOrder := make(map[string][]Item, len(orders))
	for _, it := range items {
		byOrder[it.OrderID] = append(byOrder[it.OrderID], it)
	}
	for i := range orders {
		orders[i].Items = byOrder[orders[i].ID]
		if orders[i].Items == nil {
			orders[i].Items = []Item{}
		}
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (Order, error) {
	var o Order
	var total string
	if err := row.Scan(&o.ID, &o.UserID, &total, &o.CreatedAt); err != nil {
		return Order{}, err
	}
	return o, setDecimal(&o.Total, total)
}

func scanItem(row pgx.CollectableRow) (Item, error) {
	var it Item
	var price string
	if err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &price); err != nil {
		return Item{}, err
	}
	return it, setDecimal(&it.Price, price)
}

func setDecimal(dst *decimal.Decimal, s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("parse numeric %q: %w", s, err)
	}
	*dst = d
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
