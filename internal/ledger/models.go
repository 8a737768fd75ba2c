// Package ledger is the relational store of users, orders and order items.
package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrEmailTaken = errors.New("email already registered")
	ErrEmptyOrder = errors.New("order has no lines")
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

type NewUser struct {
	Username     string
	Email        string
	PasswordHash string
	Role         string
}

// Item is a purchased line. Price is the unit price captured when the order
// was placed and is never re-read from the catalog.
type Item struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

func (i Item) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Buyer struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type Order struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"created_at"`
	Items     []Item          `json:"items"`
	Buyer     *Buyer          `json:"buyer,omitempty"`
}

type Line struct {
	ProductID string
	Quantity  int
	Price     decimal.Decimal
}

type NewOrder struct {
	UserID string
	Total  decimal.Decimal
	Lines  []Line
}
