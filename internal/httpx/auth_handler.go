package httpx

import (
	"log/slog"
	"net/http"

	"github.com/ariefcatur/go-storefront/internal/auth"
	"github.com/go-chi/chi/v5"
)

type AuthHandler struct {
	Accounts Accounts
	Logger   *slog.Logger
}

func (h *AuthHandler) Register(r chi.Router) {
	r.Post("/register", h.register)
	r.Post("/login", h.login)
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if err := decode(w, r, &in); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return
	}
	u, err := h.Accounts.Register(r.Context(), in)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "user registered", "user": u})
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := decode(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return
	}
	token, u, err := h.Accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": u})
}
