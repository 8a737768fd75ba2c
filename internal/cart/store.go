package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-storefront/internal/redisx"
	"github.com/redis/go-redis/v9"
)

const maxWatchRetries = 5

type Store struct {
	rdb *redis.Client
	now func() time.Time
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, now: time.Now}
}

func (s *Store) Get(ctx context.Context, userID string) (Cart, error) {
	c, found, err := load(ctx, s.rdb, userID)
	if err != nil {
		return Cart{}, err
	}
	if !found {
		return Cart{UserID: userID, Items: []Line{}}, nil
	}
	return c, nil
}

func (s *Store) Add(ctx context.Context, userID, productID string, qty int) (Cart, error) {
	if qty < 1 {
		return Cart{}, ErrInvalidQuantity
	}
	return s.mutate(ctx, userID, true, func(c *Cart) error {
		c.add(productID, qty)
		return nil
	})
}

func (s *Store) Update(ctx context.Context, userID, productID string, qty int) (Cart, error) {
	if qty < 1 {
		return Cart{}, ErrInvalidQuantity
	}
	return s.mutate(ctx, userID, false, func(c *Cart) error {
		if !c.set(productID, qty) {
			return ErrLineNotFound
		}
		return nil
	})
}

func (s *Store) Remove(ctx context.Context, userID, productID string) (Cart, error) {
	return s.mutate(ctx, userID, false, func(c *Cart) error {
		c.remove(productID)
		return nil
	})
}

// Clear deletes the whole cart. Deleting an absent cart is not an error.
func (s *Store) Clear(ctx context.Context, userID string) error {
	if err := s.rdb.Del(ctx, redisx.CartKey(userID)).Err(); err != nil {
		return fmt.Errorf("clear cart %s: %w", userID, err)
	}
	return nil
}

// ClearIfUnchangedSince deletes the cart only when it was last modified at or
// before t. It reports whether the cart is gone afterwards; false means the
// user changed it after t and it was kept.
func (s *Store) ClearIfUnchangedSince(ctx context.Context, userID string, t time.Time) (bool, error) {
	key := redisx.CartKey(userID)
	cleared := false
	err := s.watch(ctx, key, func(tx *redis.Tx) error {
		c, found, err := load(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !found {
			cleared = true
			return nil
		}
		if c.UpdatedAt.After(t) {
			cleared = false
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, key)
			return nil
		})
		cleared = err == nil
		return err
	})
	if err != nil {
		return false, fmt.Errorf("clear cart %s: %w", userID, err)
	}
	return cleared, nil
}

func (s *Store) mutate(ctx context.Context, userID string, create bool, fn func(*Cart) error) (Cart, error) {
	key := redisx.CartKey(userID)
	var out Cart
	err := s.watch(ctx, key, func(tx *redis.Tx) error {
		c, found, err := load(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !found {
			if !create {
				return ErrNotFound
			}
			c = Cart{UserID: userID, Items: []Line{}}
		}
		if err := fn(&c); err != nil {
			return err
		}
		c.UpdatedAt = s.now().UTC()
		b, err := json.Marshal(c)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, b, 0)
			return nil
		})
		if err == nil {
			out = c
		}
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrLineNotFound) {
			return Cart{}, err
		}
		return Cart{}, fmt.Errorf("update cart %s: %w", userID, err)
	}
	return out, nil
}

func (s *Store) watch(ctx context.Context, key string, fn func(*redis.Tx) error) error {
	var err error
	for i := 0; i < maxWatchRetries; i++ {
		err = s.rdb.Watch(ctx, fn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func load(ctx context.Context, rdb getter, userID string) (Cart, bool, error) {
	b, err := rdb.Get(ctx, redisx.CartKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Cart{}, false, nil
	}
	if err != nil {
		return Cart{}, false, fmt.Errorf("load cart %s: %w", userID, err)
	}
	var c Cart
	if err := json.Unmarshal(b, &c); err != nil {
		return Cart{}, false, fmt.Errorf("decode cart %s: %w", userID, err)
	}
	if c.Items == nil {
		c.Items = []Line{}
	}
	return c, true, nil
}
