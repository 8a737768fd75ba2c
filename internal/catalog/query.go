package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ariefcatur/go-storefront/internal/paging"
	"github.com/ariefcatur/go-storefront/internal/redisx"
)

type Query struct {
	Search    string
	Category  string
	SortBy    string
	SortOrder string
	Page      paging.Params
}

var sortable = map[string]func(a, b Product) int{
	"created_at": func(a, b Product) int { return a.CreatedAt.Compare(b.CreatedAt) },
	"price":      func(a, b Product) int { return a.Price.Cmp(b.Price) },
	"name":       func(a, b Product) int { return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)) },
}

// normalizeSort falls back to created_at desc for keys outside the allow-list.
func normalizeSort(by, order string) (string, bool) {
	if _, ok := sortable[by]; !ok {
		by = "created_at"
	}
	return by, strings.EqualFold(order, "asc")
}

func (q Query) matches(p Product) bool {
	if q.Category != "" && p.Category != q.Category {
		return false
	}
	term := strings.ToLower(strings.TrimSpace(q.Search))
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(p.Name), term) ||
		strings.Contains(strings.ToLower(p.Category), term)
}

// List filters, sorts and pages the catalog. It returns the requested page
// and the number of products that matched before paging.
func (s *Store) List(ctx context.Context, q Query) ([]Product, int, error) {
	ids, err := s.rdb.ZRevRange(ctx, redisx.KeyProductIndex, 0, -1).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("list product ids: %w", err)
	}
	byID, err := s.GetMany(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	matched := make([]Product, 0, len(byID))
	for _, id := range ids {
		if p, ok := byID[id]; ok && q.matches(p) {
			matched = append(matched, p)
		}
	}

	by, asc := normalizeSort(q.SortBy, q.SortOrder)
	cmp := sortable[by]
	sort.SliceStable(matched, func(i, j int) bool {
		c := cmp(matched[i], matched[j])
		if asc {
			return c < 0
		}
		return c > 0
	})

	lo, hi := q.Page.Window(len(matched))
	return matched[lo:hi], len(matched), nil
}
