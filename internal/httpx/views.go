package httpx

import (
	"context"
	"time"

	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/ariefcatur/go-storefront/internal/ledger"
	"github.com/shopspring/decimal"
)

type productRef struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type orderItemView struct {
	ID        string          `json:"id"`
	ProductID string          `json:"productId"`
	Product   *productRef     `json:"product"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type orderView struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Buyer     *ledger.Buyer   `json:"user,omitempty"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"createdAt"`
	Items     []orderItemView `json:"items"`
}

// orderViews attaches current catalog data to order items. Price stays the
// snapshot stored with the item; a deleted product is rendered as null.
func orderViews(ctx context.Context, cat Catalog, list []ledger.Order) ([]orderView, error) {
	var ids []string
	for _, o := range list {
		for _, it := range o.Items {
			ids = append(ids, it.ProductID)
		}
	}
	products, err := cat.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]orderView, 0, len(list))
	for _, o := range list {
		v := orderView{ID: o.ID, UserID: o.UserID, Buyer: o.Buyer, Total: o.Total, CreatedAt: o.CreatedAt,
			Items: make([]orderItemView, 0, len(o.Items))}
		for _, it := range o.Items {
			iv := orderItemView{ID: it.ID, ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price}
			if p, ok := products[it.ProductID]; ok {
				iv.Product = &productRef{ID: p.ID, Name: p.Name, Price: p.Price}
			}
			v.Items = append(v.Items, iv)
		}
		out = append(out, v)
	}
	return out, nil
}

type cartLineView struct {
	ProductID string           `json:"productId"`
	Product   *catalog.Product `json:"product"`
	Quantity  int              `json:"quantity"`
}

type cartView struct {
	UserID    string         `json:"userId"`
	Items     []cartLineView `json:"items"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func cartViewOf(ctx context.Context, cat Catalog, c cart.Cart) (cartView, error) {
	ids := make([]string, 0, len(c.Items))
	for _, l := range c.Items {
		ids = append(ids, l.ProductID)
	}
	products, err := cat.GetMany(ctx, ids)
	if err != nil {
		return cartView{}, err
	}
	v := cartView{UserID: c.UserID, UpdatedAt: c.UpdatedAt, Items: make([]cartLineView, 0, len(c.Items))}
	for _, l := range c.Items {
		lv := cartLineView{ProductID: l.ProductID, Quantity: l.Quantity}
		if p, ok := products[l.ProductID]; ok {
			lv.Product = &p
		}
		v.Items = append(v.Items, lv)
	}
	return v, nil
}

type topProductView struct {
	ProductID string `json:"productId"`
	Name      string `json:"name,omitempty"`
	UnitsSold int    `json:"unitsSold"`
}

type topBuyerView struct {
	UserID     string `json:"userId"`
	Username   string `json:"username"`
	Orders     int    `json:"orders"`
	TotalSpent string `json:"totalSpent"`
}

func topBuyerViewOf(b *ledger.TopBuyer) *topBuyerView {
	if b == nil {
		return nil
	}
	return &topBuyerView{
		UserID:     b.UserID,
		Username:   b.Username,
		Orders:     b.Orders,
		TotalSpent: b.TotalSpent.StringFixed(2),
	}
}
