package redisx

import (
	"fmt"
	"time"
)

const (
	// Product document (hash): product:{id} -> id,name,description,price,category,stock,created_at
	KeyProduct = "product:%s"

	// Product ids scored by created_at (unix ms).
	KeyProductIndex = "products:by_created"

	// Cart document (JSON string): cart:{user_id}
	KeyCart = "cart:%s"

	// Marks a stock decrement as applied: stock:applied:{order_id}:{product_id}
	KeyStockApplied = "stock:applied:%s:%s"

	// Dedup event processing: dedup:{service}:{id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStockApplied = 48 * time.Hour
	TTLDedup        = 48 * time.Hour
)

func ProductKey(id string) string { return fmt.Sprintf(KeyProduct, id) }

func CartKey(userID string) string { return fmt.Sprintf(KeyCart, userID) }

func StockAppliedKey(orderID, productID string) string {
	return fmt.Sprintf(KeyStockApplied, orderID, productID)
}

func DedupKey(service, id string) string { return fmt.Sprintf(KeyDedup, service, id) }
