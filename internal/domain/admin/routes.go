package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clearmarket/clearmarket-api/internal/middleware"
)

// Routes returns admin router
func (h *CreditHandler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(middleware.RequireAdmin())

	r.Route("/users/{id}/credits", func(r chi.Router) {
		r.Post("/grant", h.GrantCredits)
		r.Get("/", h.GetUserCredits)
	})
	r.Get("/credits/transactions", h.SearchTransactions)

	return r
}
