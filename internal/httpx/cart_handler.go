package httpx

import (
	"log/slog"
	"net/http"

	"github.com/ariefcatur/go-storefront/internal/auth"
	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/go-chi/chi/v5"
)

type CartHandler struct {
	Carts   Carts
	Catalog Catalog
	Logger  *slog.Logger
}

func (h *CartHandler) Register(r chi.Router) {
	r.Get("/", h.get)
	r.Post("/add", h.add)
	r.Patch("/update", h.update)
	r.Delete("/remove/{productId}", h.remove)
}

type cartLineReq struct {
	ProductID string `json:"productId"`
	Quantity  *int   `json:"quantity"`
}

func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	c, err := h.Carts.Get(r.Context(), p.UserID)
	h.respond(w, r, c, err)
}

func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) {
	var req cartLineReq
	if err := decode(w, r, &req); err != nil || req.ProductID == "" {
		writeMessage(w, http.StatusBadRequest, "productId is required")
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	if qty < 1 {
		writeError(w, r, h.Logger, cart.ErrInvalidQuantity)
		return
	}
	if _, err := h.Catalog.Get(r.Context(), req.ProductID); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	p, _ := auth.PrincipalFrom(r.Context())
	c, err := h.Carts.Add(r.Context(), p.UserID, req.ProductID, qty)
	h.respond(w, r, c, err)
}

func (h *CartHandler) update(w http.ResponseWriter, r *http.Request) {
	var req cartLineReq
	if err := decode(w, r, &req); err != nil || req.ProductID == "" || req.Quantity == nil {
		writeMessage(w, http.StatusBadRequest, "productId and quantity are required")
		return
	}
	p, _ := auth.PrincipalFrom(r.Context())
	c, err := h.Carts.Update(r.Context(), p.UserID, req.ProductID, *req.Quantity)
	h.respond(w, r, c, err)
}

func (h *CartHandler) remove(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	c, err := h.Carts.Remove(r.Context(), p.UserID, chi.URLParam(r, "productId"))
	h.respond(w, r, c, err)
}

func (h *CartHandler) respond(w http.ResponseWriter, r *http.Request, c cart.Cart, err error) {
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	v, err := cartViewOf(r.Context(), h.Catalog, c)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
