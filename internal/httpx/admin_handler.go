package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/go-storefront/internal/auth"
	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/ariefcatur/go-storefront/internal/ledger"
	"github.com/ariefcatur/go-storefront/internal/paging"
	"github.com/ariefcatur/go-storefront/internal/reconcile"
	"github.com/go-chi/chi/v5"
)

const (
	defaultAdminOrderLimit = 10
	defaultReconcileLimit  = 20
)

type AdminHandler struct {
	Catalog        Catalog
	Reports        Reports
	Reconciliation ReconciliationLog
	Reconciler     Reconciler
	Logger         *slog.Logger
}

func (h *AdminHandler) Register(r chi.Router, authz auth.Authorizer) {
	r.With(authz.Require(auth.CapViewReports)).Get("/dashboard", h.dashboard)
	r.With(authz.Require(auth.CapViewAllOrders)).Get("/orders", h.orders)

	r.Route("/products", func(r chi.Router) {
		r.Use(authz.Require(auth.CapManageCatalog))
		r.Get("/", h.listProducts)
		r.Post("/", h.createProduct)
		r.Get("/{id}", h.getProduct)
		r.Put("/{id}", h.updateProduct)
		r.Delete("/{id}", h.deleteProduct)
	})

	r.Route("/reconciliation", func(r chi.Router) {
		r.Use(authz.Require(auth.CapReconcile))
		r.Get("/", h.listReconciliation)
		r.Post("/{id}/retry", h.retryReconciliation)
	})
}

func (h *AdminHandler) dashboard(w http.ResponseWriter, r *http.Request) {
	rg, err := parseRange(r.URL.Query().Get("startDate"), r.URL.Query().Get("endDate"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	d, err := h.Reports.Dashboard(r.Context(), rg)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	products, err := h.Catalog.Count(r.Context())
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	var top *topProductView
	if d.TopProduct != nil {
		top = &topProductView{ProductID: d.TopProduct.ProductID, UnitsSold: d.TopProduct.UnitsSold}
		p, err := h.Catalog.Get(r.Context(), d.TopProduct.ProductID)
		switch {
		case err == nil:
			top.Name = p.Name
		case !errors.Is(err, catalog.ErrNotFound):
			writeError(w, r, h.Logger, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"totalOrders":   d.TotalOrders,
		"totalRevenue":  d.TotalRevenue.StringFixed(2),
		"totalProducts": products,
		"topProduct":    top,
		"topBuyer":      topBuyerViewOf(d.TopBuyer),
	})
}

// parseRange accepts dates (2006-01-02) or RFC 3339 timestamps. A date-only
// end includes the whole day.
func parseRange(start, end string) (ledger.Range, error) {
	var rg ledger.Range
	if start != "" {
		t, _, err := parseTime(start)
		if err != nil {
			return rg, errors.New("invalid startDate")
		}
		rg.From = &t
	}
	if end != "" {
		t, dateOnly, err := parseTime(end)
		if err != nil {
			return rg, errors.New("invalid endDate")
		}
		if dateOnly {
			t = ledger.EndOfDay(t)
		}
		rg.To = &t
	}
	return rg, nil
}

func parseTime(s string) (time.Time, bool, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	return t, false, err
}

func (h *AdminHandler) orders(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	q := ledger.AdminOrderQuery{
		Search:    v.Get("search"),
		SortBy:    v.Get("sortBy"),
		SortOrder: v.Get("sortOrder"),
		Page:      paging.Parse(v.Get("page"), v.Get("limit"), defaultAdminOrderLimit),
	}
	list, total, err := h.Reports.ListAll(r.Context(), q)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	views, err := orderViews(r.Context(), h.Catalog, list)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": views, "pagination": q.Page.Result(total)})
}

func (h *AdminHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	q := productQuery(r)
	products, total, err := h.Catalog.List(r.Context(), q)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products, "pagination": q.Page.Result(total)})
}

func (h *AdminHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *AdminHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.ProductInput
	if err := decode(w, r, &in); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return
	}
	in.Name = strings.TrimSpace(in.Name)
	p, err := h.Catalog.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *AdminHandler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var patch catalog.ProductPatch
	if err := decode(w, r, &patch); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return
	}
	p, err := h.Catalog.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *AdminHandler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "product deleted"})
}

func (h *AdminHandler) listReconciliation(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	var status reconcile.Status
	if s := v.Get("status"); s != "" {
		st, ok := reconcile.ParseStatus(strings.ToUpper(s))
		if !ok {
			writeMessage(w, http.StatusBadRequest, "invalid status")
			return
		}
		status = st
	}
	page := paging.Parse(v.Get("page"), v.Get("limit"), defaultReconcileLimit)
	items, total, err := h.Reconciliation.List(r.Context(), status, page)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "pagination": page.Result(total)})
}

func (h *AdminHandler) retryReconciliation(w http.ResponseWriter, r *http.Request) {
	it, err := h.Reconciler.Retry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	p, _ := auth.PrincipalFrom(r.Context())
	h.Logger.Info("reconciliation retried by operator", "item_id", it.ID, "status", string(it.Status), "user_id", p.UserID)
	writeJSON(w, http.StatusOK, it)
}
