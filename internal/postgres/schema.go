package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the slice of pgxpool.Pool that Migrate needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// order_items.product_id points into the catalog (Redis), so it is a plain
// string and not a foreign key.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            UUID PRIMARY KEY,
		username      VARCHAR(50)  NOT NULL,
		email         VARCHAR(100) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		role          VARCHAR(10)  NOT NULL DEFAULT 'user' CHECK (role IN ('user', 'admin')),
		created_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS orders (
		id         UUID PRIMARY KEY,
		user_id    UUID NOT NULL REFERENCES users(id),
		total      NUMERIC(12,2) NOT NULL CHECK (total >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders(user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_created ON orders(created_at)`,

	`CREATE TABLE IF NOT EXISTS order_items (
		id         UUID PRIMARY KEY,
		order_id   UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id VARCHAR(64) NOT NULL,
		quantity   INTEGER NOT NULL CHECK (quantity > 0),
		price      NUMERIC(12,2) NOT NULL CHECK (price >= 0)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id)`,
	`CREATE INDEX IF NOT EXISTS idx_order_items_product ON order_items(product_id)`,

	`CREATE TABLE IF NOT EXISTS reconciliation_items (
		id         UUID PRIMARY KEY,
		kind       VARCHAR(32) NOT NULL,
		order_id   UUID NOT NULL REFERENCES orders(id),
		user_id    UUID NOT NULL,
		product_id VARCHAR(64) NOT NULL DEFAULT '',
		quantity   INTEGER NOT NULL DEFAULT 0,
		status     VARCHAR(16) NOT NULL DEFAULT 'PENDING',
		reason     TEXT NOT NULL DEFAULT '',
		attempts   INTEGER NOT NULL DEFAULT 0,
		ordered_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reconciliation_status ON reconciliation_items(status, updated_at)`,
}

func Migrate(ctx context.Context, db Execer) error {
	for i, m := range migrations {
		if _, err := db.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
