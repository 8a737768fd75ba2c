package httpx

import (
	"log/slog"
	"net/http"

	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/ariefcatur/go-storefront/internal/paging"
	"github.com/go-chi/chi/v5"
)

const defaultProductLimit = 10

type ProductsHandler struct {
	Catalog Catalog
	Logger  *slog.Logger
}

func (h *ProductsHandler) Register(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
}

func productQuery(r *http.Request) catalog.Query {
	v := r.URL.Query()
	return catalog.Query{
		Search:    v.Get("search"),
		Category:  v.Get("category"),
		SortBy:    v.Get("sortBy"),
		SortOrder: v.Get("sortOrder"),
		Page:      paging.Parse(v.Get("page"), v.Get("limit"), defaultProductLimit),
	}
}

func (h *ProductsHandler) list(w http.ResponseWriter, r *http.Request) {
	q := productQuery(r)
	products, total, err := h.Catalog.List(r.Context(), q)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products, "pagination": q.Page.Result(total)})
}

func (h *ProductsHandler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.Catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
