package catalog

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-storefront/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// Result codes returned by decrementScript as {code, value}.
const (
	decOK           = 0
	decApplied      = 1
	decNotFound     = 2
	decInsufficient = 3
)

// KEYS[1] product hash, KEYS[2] applied marker.
// ARGV[1] quantity, ARGV[2] marker ttl in seconds.
var decrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
	return {1, 0}
end
local stock = redis.call('HGET', KEYS[1], 'stock')
if not stock then
	return {2, 0}
end
stock = tonumber(stock)
local qty = tonumber(ARGV[1])
if stock < qty then
	return {3, stock}
end
local left = redis.call('HINCRBY', KEYS[1], 'stock', -qty)
redis.call('SET', KEYS[2], '1', 'EX', ARGV[2])
return {0, left}
`)

// Decrement removes qty from a product's stock on behalf of an order. The
// check and the write happen in one script, so stock never goes below zero,
// and the per (order, product) marker makes retries safe.
func (s *Store) Decrement(ctx context.Context, orderID, productID string, qty int) (int, error) {
	if qty <= 0 {
		return 0, fmt.Errorf("decrement %s: quantity must be positive", productID)
	}
	keys := []string{redisx.ProductKey(productID), redisx.StockAppliedKey(orderID, productID)}
	ttl := int(redisx.TTLStockApplied.Seconds())

	res, err := decrementScript.Run(ctx, s.rdb, keys, qty, ttl).Int64Slice()
	if err != nil {
		return 0, fmt.Errorf("decrement %s: %w", productID, err)
	}
	if len(res) != 2 {
		return 0, fmt.Errorf("decrement %s: unexpected script reply %v", productID, res)
	}

	switch res[0] {
	case decOK:
		return int(res[1]), nil
	case decApplied:
		return 0, ErrAlreadyApplied
	case decNotFound:
		return 0, ErrNotFound
	case decInsufficient:
		return int(res[1]), fmt.Errorf("%w: product %s has %d, need %d", ErrInsufficientStock, productID, res[1], qty)
	default:
		return 0, fmt.Errorf("decrement %s: unknown script code %d", productID, res[0])
	}
}
