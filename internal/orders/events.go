package orders

import (
	"github.com/ariefcatur/go-storefront/internal/ledger"
	"github.com/shopspring/decimal"
)

const EventOrderPlaced = "OrderPlaced"

type PlacedItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type OrderPlacedPayload struct {
	OrderID   string          `json:"order_id"`
	UserID    string          `json:"user_id"`
	Total     decimal.Decimal `json:"total"`
	Items     []PlacedItem    `json:"items"`
	Anomalies int             `json:"anomalies"`
}

func placedPayload(o ledger.Order, anomalies int) OrderPlacedPayload {
	items := make([]PlacedItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, PlacedItem{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
	}
	return OrderPlacedPayload{OrderID: o.ID, UserID: o.UserID, Total: o.Total, Items: items, Anomalies: anomalies}
}
