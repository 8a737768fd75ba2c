// Package catalog is the Inventory Store: product documents kept in Redis,
// including the stock counter that order placement decrements.
package catalog

import (
	"errors"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrAlreadyApplied    = errors.New("stock decrement already applied")
	ErrInvalidProduct    = errors.New("invalid product")
)

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category,omitempty"`
	Stock       int             `json:"stock"`
	CreatedAt   time.Time       `json:"created_at"`
}

type ProductInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Stock       int             `json:"stock"`
}

func (in ProductInput) validate() error {
	switch {
	case in.Name == "":
		return errors.Join(ErrInvalidProduct, errors.New("name is required"))
	case in.Price.IsNegative():
		return errors.Join(ErrInvalidProduct, errors.New("price must not be negative"))
	case in.Stock < 0:
		return errors.Join(ErrInvalidProduct, errors.New("stock must not be negative"))
	}
	return nil
}

// ProductPatch is a partial update; nil fields are left untouched.
type ProductPatch struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Category    *string          `json:"category"`
	Stock       *int             `json:"stock"`
}

func (p ProductPatch) fields() (map[string]any, error) {
	f := map[string]any{}
	if p.Name != nil {
		if *p.Name == "" {
			return nil, errors.Join(ErrInvalidProduct, errors.New("name must not be empty"))
		}
		f["name"] = *p.Name
	}
	if p.Description != nil {
		f["description"] = *p.Description
	}
	if p.Price != nil {
		if p.Price.IsNegative() {
			return nil, errors.Join(ErrInvalidProduct, errors.New("price must not be negative"))
		}
		f["price"] = p.Price.Round(2).String()
	}
	if p.Category != nil {
		f["category"] = *p.Category
	}
	if p.Stock != nil {
		if *p.Stock < 0 {
			return nil, errors.Join(ErrInvalidProduct, errors.New("stock must not be negative"))
		}
		f["stock"] = *p.Stock
	}
	return f, nil
}

func toHash(p Product) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"name":        p.Name,
		"description": p.Description,
		"price":       p.Price.String(),
		"category":    p.Category,
		"stock":       p.Stock,
		"created_at":  p.CreatedAt.UnixMilli(),
	}
}

func fromHash(h map[string]string) (Product, error) {
	if len(h) == 0 || h["id"] == "" {
		return Product{}, ErrNotFound
	}
	price, err := decimal.NewFromString(h["price"])
	if err != nil {
		return Product{}, err
	}
	stock, err := strconv.Atoi(h["stock"])
	if err != nil {
		return Product{}, err
	}
	ms, _ := strconv.ParseInt(h["created_at"], 10, 64)
	return Product{
		ID:          h["id"],
		Name:        h["name"],
		Description: h["description"],
		Price:       price,
		Category:    h["category"],
		Stock:       stock,
		CreatedAt:   time.UnixMilli(ms).UTC(),
	}, nil
}
