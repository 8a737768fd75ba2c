package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ariefcatur/go-storefront/internal/auth"
	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/ariefcatur/go-storefront/internal/ledger"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/reconcile"
	"github.com/go-chi/chi/v5/middleware"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v)
}

// writeError maps domain errors to a status code. Anything unrecognised is a
// 500 whose cause is logged and not sent to the client.
func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	var (
		notFound *orders.ProductNotFoundError
		noStock  *orders.InsufficientStockError
	)
	switch {
	case errors.As(err, &notFound), errors.As(err, &noStock),
		errors.Is(err, orders.ErrEmptyOrder), errors.Is(err, orders.ErrInvalidQuantity),
		errors.Is(err, cart.ErrInvalidQuantity), errors.Is(err, catalog.ErrInvalidProduct),
		errors.Is(err, auth.ErrMissingFields), errors.Is(err, auth.ErrInvalidEmail):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeMessage(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, ledger.ErrEmailTaken):
		writeMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, cart.ErrNotFound),
		errors.Is(err, cart.ErrLineNotFound), errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, reconcile.ErrNotFound):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, orders.ErrOrderPersistenceFailed):
		log.Error("order persistence failed", "request_id", middleware.GetReqID(r.Context()), "err", err)
		writeMessage(w, http.StatusInternalServerError, orders.ErrOrderPersistenceFailed.Error())
	default:
		log.Error("request failed", "method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "err", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
	}
}
