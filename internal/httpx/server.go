package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ariefcatur/go-storefront/internal/auth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Handlers struct {
	Auth     *AuthHandler
	Products *ProductsHandler
	Cart     *CartHandler
	Orders   *OrdersHandler
	Admin    *AdminHandler
	Verifier auth.Verifier
	Logger   *slog.Logger
}

func NewRouter(h Handlers) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	authz := auth.Authorizer{Logger: h.Logger}
	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", h.Auth.Register)
		r.Route("/products", h.Products.Register)

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate(h.Verifier))
			r.Route("/cart", func(r chi.Router) {
				r.Use(authz.Require(auth.CapManageCart))
				h.Cart.Register(r)
			})
			r.Route("/orders", func(r chi.Router) { h.Orders.Register(r, authz) })
			r.Route("/admin", func(r chi.Router) { h.Admin.Register(r, authz) })
		})
	})
	return r
}
