package settlement_api

import (
	"ms-settlement/internal/auth"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the settlement HTTP surface. Webhooks stay outside the
// auth group: providers authenticate with signatures, not bearer tokens.
func NewRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// --- Public Routes ---
	r.Get("/health", h.Health)
	r.Post("/webhooks/wallet", h.WalletWebhook)
	r.Post("/webhooks/card", h.CardWebhook)

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware())

		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/bookings/preview", h.Preview)

			r.Route("/payments", func(r chi.Router) {
				r.Post("/wallet/create-order", h.CreateWalletOrder)
				r.Post("/wallet/capture-order", h.CaptureOrder)
				r.Post("/refund", h.Refund)
			})
		})
	})

	return r
}
