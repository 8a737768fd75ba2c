// Package cart keeps one mutable cart document per user in Redis.
package cart

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("cart not found")
	ErrLineNotFound    = errors.New("product not in cart")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

type Line struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type Cart struct {
	UserID    string    `json:"user_id"`
	Items     []Line    `json:"items"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Cart) add(productID string, qty int) {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity += qty
			return
		}
	}
	c.Items = append(c.Items, Line{ProductID: productID, Quantity: qty})
}

func (c *Cart) set(productID string, qty int) bool {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity = qty
			return true
		}
	}
	return false
}

func (c *Cart) remove(productID string) {
	kept := c.Items[:0]
	for _, l := range c.Items {
		if l.ProductID != productID {
			kept = append(kept, l)
		}
	}
	c.Items = kept
}
