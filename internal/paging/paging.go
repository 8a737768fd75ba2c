// Package paging holds the 1-indexed page arithmetic shared by list endpoints.
package paging

import "strconv"

const (
	MaxLimit = 100
	// MaxPage keeps Offset well inside int range.
	MaxPage = 1_000_000
)

type Params struct {
	Page  int
	Limit int
}

// Parse reads raw query values. Anything missing, unparsable or non-positive
// falls back to page 1 and defLimit.
func Parse(page, limit string, defLimit int) Params {
	p := Params{Page: 1, Limit: defLimit}
	if n, err := strconv.Atoi(page); err == nil && n > 0 {
		p.Page = min(n, MaxPage)
	}
	if n, err := strconv.Atoi(limit); err == nil && n > 0 {
		p.Limit = n
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

func (p Params) Offset() int {
	if p.Page < 1 || p.Limit < 1 {
		return 0
	}
	return (min(p.Page, MaxPage) - 1) * min(p.Limit, MaxLimit)
}

// Pages returns ceil(total/limit).
func (p Params) Pages(total int) int {
	if p.Limit <= 0 || total <= 0 {
		return 0
	}
	return (total + p.Limit - 1) / p.Limit
}

// Window clips [Offset, Offset+Limit) to a slice of length n.
func (p Params) Window(n int) (lo, hi int) {
	lo = p.Offset()
	if lo > n {
		lo = n
	}
	hi = n
	if p.Limit > 0 && p.Limit < n-lo {
		hi = lo + p.Limit
	}
	return lo, hi
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

func (p Params) Result(total int) Pagination {
	return Pagination{Page: p.Page, Limit: p.Limit, Total: total, Pages: p.Pages(total)}
}
