package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-storefront/internal/redisx"
	"github.com/google/uuid"
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

func (s *Store) Get(ctx context.Context, id string) (Product, error) {
	h, err := s.rdb.HGetAll(ctx, redisx.ProductKey(id)).Result()
	if err != nil {
		return Product{}, fmt.Errorf("get product %s: %w", id, err)
	}
	p, err := fromHash(h)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("decode product %s: %w", id, err)
	}
	return p, nil
}

// GetMany loads products by id. Missing ids are absent from the result.
func (s *Store) GetMany(ctx context.Context, ids []string) (map[string]Product, error) {
	out := make(map[string]Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cmds, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, id := range ids {
			p.HGetAll(ctx, redisx.ProductKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	for _, c := range cmds {
		h, err := c.(*redis.MapStringStringCmd).Result()
		if err != nil {
			return nil, fmt.Errorf("get products: %w", err)
		}
		p, err := fromHash(h)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("decode product: %w", err)
		}
		out[p.ID] = p
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, in ProductInput) (Product, error) {
	if err := in.validate(); err != nil {
		return Product{}, err
	}
	p := Product{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price.Round(2),
		Category:    in.Category,
		Stock:       in.Stock,
		CreatedAt:   s.now().UTC().Truncate(time.Millisecond),
	}
	_, err := s.rdb.TxPipelined(ctx, func(tx redis.Pipeliner) error {
		tx.HSet(ctx, redisx.ProductKey(p.ID), toHash(p))
		tx.ZAdd(ctx, redisx.KeyProductIndex, redis.Z{Score: float64(p.CreatedAt.UnixMilli()), Member: p.ID})
		return nil
	})
	if err != nil {
		return Product{}, fmt.Errorf("create product: %w", err)
	}
	return p, nil
}

func (s *Store) Update(ctx context.Context, id string, patch ProductPatch) (Product, error) {
	fields, err := patch.fields()
	if err != nil {
		return Product{}, err
	}
	key := redisx.ProductKey(id)
	err = s.watch(ctx, key, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		if len(fields) == 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key, fields)
			return nil
		})
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("update product %s: %w", id, err)
	}
	return s.Get(ctx, id)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(tx redis.Pipeliner) error {
		del = tx.Del(ctx, redisx.ProductKey(id))
		tx.ZRem(ctx, redisx.KeyProductIndex, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.rdb.ZCard(ctx, redisx.KeyProductIndex).Result()
	if err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return int(n), nil
}

// watch runs fn under WATCH key and retries when another client touched the
// key between the read and the EXEC.
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
