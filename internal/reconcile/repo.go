package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-storefront/internal/paging"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repo struct {
	db    DB
	now   func() time.Time
	newID func() string
}

func NewRepo(db DB) *Repo {
	return &Repo{db: db, now: time.Now, newID: uuid.NewString}
}

const itemColumns = `id::text, kind, order_id::text, user_id::text, product_id, quantity,
	status, reason, attempts, ordered_at, created_at, updated_at`

func (r *Repo) Insert(ctx context.Context, a Anomaly) (Item, error) {
	id := a.ID
	if id == "" {
		id = r.newID()
	}
	now := r.now().UTC()
	it := Item{
		ID:        id,
		Kind:      a.Kind,
		OrderID:   a.OrderID,
		UserID:    a.UserID,
		ProductID: a.ProductID,
		Quantity:  a.Quantity,
		Status:    StatusPending,
		Reason:    a.cause(),
		OrderedAt: a.OrderedAt.UTC(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	tag, err := r.db.Exec(ctx, `
		INSERT INTO reconciliation_items(id, kind, order_id, user_id, product_id, quantity,
			status, reason, attempts, ordered_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10, $10)
		ON CONFLICT (id) DO NOTHING`,
		it.ID, string(it.Kind), it.OrderID, it.UserID, it.ProductID, it.Quantity,
		string(it.Status), it.Reason, it.OrderedAt, now)
	if err != nil {
		return Item{}, fmt.Errorf("insert reconciliation item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.Get(ctx, id)
	}
	return it, nil
}

func (r *Repo) Get(ctx context.Context, id string) (Item, error) {
	rows, err := r.db.Query(ctx, `SELECT `+itemColumns+` FROM reconciliation_items WHERE id = $1`, id)
	if err != nil {
		return Item{}, fmt.Errorf("get reconciliation item: %w", err)
	}
	it, err := pgx.CollectExactlyOneRow(rows, scanItem)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("scan reconciliation item: %w", err)
	}
	return it, nil
}

// Transition stores a new status, reason and attempt count. It only applies
// when the row still has the status and attempt count prev was read with, so
// a worker and a sweep racing on one item cannot both record an outcome.
func (r *Repo) Transition(ctx context.Context, prev Item, to Status, reason string, attempts int) (Item, error) {
	if !CanTransition(prev.Status, to) {
		return Item{}, fmt.Errorf("reconciliation item %s: illegal transition %s -> %s", prev.ID, prev.Status, to)
	}
	now := r.now().UTC()
	tag, err := r.db.Exec(ctx, `
		UPDATE reconciliation_items
		SET status = $1, reason = $2, attempts = $3, updated_at = $4
		WHERE id = $5 AND status = $6 AND attempts = $7`,
		string(to), reason, attempts, now, prev.ID, string(prev.Status), prev.Attempts)
	if err != nil {
		return Item{}, fmt.Errorf("update reconciliation item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Item{}, ErrConflict
	}
	next := prev
	next.Status, next.Reason, next.Attempts, next.UpdatedAt = to, reason, attempts, now
	return next, nil
}

// ListPending returns PENDING items not touched since before, oldest first.
func (r *Repo) ListPending(ctx context.Context, before time.Time, limit int) ([]Item, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+itemColumns+`
		FROM reconciliation_items
		WHERE status = $1 AND updated_at <= $2
		ORDER BY updated_at
		LIMIT $3`, string(StatusPending), before, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending reconciliation items: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanItem)
	if err != nil {
		return nil, fmt.Errorf("scan reconciliation items: %w", err)
	}
	return items, nil
}

// List pages through items, newest first. An empty status lists all.
func (r *Repo) List(ctx context.Context, status Status, page paging.Params) ([]Item, int, error) {
	where := ""
	var args []any
	if status != "" {
		where = ` WHERE status = $1`
		args = append(args, string(status))
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM reconciliation_items`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count reconciliation items: %w", err)
	}

	n := len(args)
	args = append(args, page.Limit, page.Offset())
	rows, err := r.db.Query(ctx, `SELECT `+itemColumns+` FROM reconciliation_items`+where+
		fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, n+1, n+2), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list reconciliation items: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanItem)
	if err != nil {
		return nil, 0, fmt.Errorf("scan reconciliation items: %w", err)
	}
	return items, total, nil
}

func scanItem(row pgx.CollectableRow) (Item, error) {
	var it Item
	var kind, status string
	err := row.Scan(&it.ID, &kind, &it.OrderID, &it.UserID, &it.ProductID, &it.Quantity,
		&status, &it.Reason, &it.Attempts, &it.OrderedAt, &it.CreatedAt, &it.UpdatedAt)
	it.Kind, it.Status = Kind(kind), Status(status)
	return it, err
}
