/**
 * @description
 * This file sets up the HTTP router for the settlement-service. It defines
 * the API endpoints, associates them with their corresponding handlers, and
 * applies middleware for authentication and rate limiting.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS policy for browser clients.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/rentiva/settlement-service/internal/app"
	"github.com/rentiva/settlement-service/internal/config"
)

// SettlementRoutes creates and returns the router for the settlement service.
func SettlementRoutes(h *SettlementHandlers, cfg config.Config, limiter app.RateLimiter) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// The gateway redirects the customer's browser here after a payment
	// attempt. Unauthenticated: the HMAC signature on the query is the auth.
	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(limiter, "gateway_callback", cfg.CallbackRateLimit, time.Minute))
		r.Get("/payments/callback", h.GatewayCallbackHandler)
	})

	// Group routes that require staff authentication.
	r.Group(func(r chi.Router) {
		r.Use(StaffAuthMiddleware(cfg.StaffJWTSecret, cfg.StaffJWTIssuer))

		r.Post("/returns", h.ProcessReturnHandler)

		r.Get("/holds", h.ListHoldsHandler)
		r.Get("/holds/{holdID}", h.GetHoldDetailHandler)
		r.Get("/contracts/{contractID}/hold", h.GetContractHoldHandler)
		r.Get("/holds/{holdID}/refund-preview", h.RefundPreviewHandler)
		r.Post("/holds/{holdID}/violations", h.AddViolationHandler)
		r.Post("/holds/{holdID}/refund", h.ProcessRefundHandler)
		r.Get("/holds/{holdID}/refund", h.GetRefundHandler)

		r.Post("/violations/{violationID}/confirm", h.ConfirmViolationHandler)
		r.Delete("/violations/{violationID}", h.RemoveViolationHandler)

		r.Get("/refunds", h.ListRefundsHandler)

		r.Group(func(r chi.Router) {
			r.Use(RateLimitMiddleware(limiter, "initiate_payment", cfg.PaymentRateLimit, time.Minute))
			r.Post("/payments/initiate", h.InitiatePaymentHandler)
		})
	})

	return r
}
