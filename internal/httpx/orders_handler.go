package httpx

import (
	"log/slog"
	"net/http"

	"github.com/ariefcatur/go-storefront/internal/auth"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/paging"
	"github.com/go-chi/chi/v5"
)

const defaultOrderLimit = 5

type OrdersHandler struct {
	Orders  Placer
	History OrderHistory
	Catalog Catalog
	Logger  *slog.Logger
}

func (h *OrdersHandler) Register(r chi.Router, authz auth.Authorizer) {
	r.With(authz.Require(auth.CapPlaceOrder)).Post("/", h.create)
	r.With(authz.Require(auth.CapViewOwnOrders)).Get("/", h.list)
}

type createOrderReq struct {
	Items []orders.ItemRequest `json:"items"`
}

func (h *OrdersHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := decode(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return
	}
	p, _ := auth.PrincipalFrom(r.Context())
	placed, err := h.Orders.PlaceOrder(r.Context(), p.UserID, req.Items)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":   "order placed",
		"orderId":   placed.OrderID,
		"total":     placed.Total.StringFixed(2),
		"createdAt": placed.CreatedAt,
	})
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	page := paging.Parse(r.URL.Query().Get("page"), r.URL.Query().Get("limit"), defaultOrderLimit)
	list, total, err := h.History.ListByUser(r.Context(), p.UserID, page)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	views, err := orderViews(r.Context(), h.Catalog, list)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": views, "pagination": page.Result(total)})
}
