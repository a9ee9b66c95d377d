/**
 * @description
 * This file sets up the HTTP router for the csr-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies
 * any necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes creates and returns the router for the csr-service.
func Routes(h *Handlers, jwtSecret string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))

		// Ledger endpoints
		r.Post("/ledger/entries", h.AppendEntryHandler)
		r.Get("/ledger/entries", h.ListEntriesHandler)
		r.Post("/ledger/entries/{id}/reverse", h.ReverseEntryHandler)
		r.Get("/ledger/summary", h.SpendSummaryHandler)

		// Campaign funding and workflow
		r.Post("/campaigns/{id}/fund", h.FundCampaignHandler)
		r.Post("/campaigns/{id}/advance", h.AdvanceCampaignHandler)

		// Budget alert endpoints
		r.Post("/alerts/scan", h.ScanThresholdsHandler)
		r.Get("/alerts", h.ListAlertsHandler)
		r.Get("/alerts/{id}", h.GetAlertHandler)
		r.Post("/alerts/{id}/acknowledge", h.AcknowledgeAlertHandler)
		r.Post("/alerts/{id}/resolve", h.ResolveAlertHandler)
		r.Post("/alerts/{id}/dismiss", h.DismissAlertHandler)
		r.Post("/alerts/{id}/escalate", h.EscalateAlertHandler)

		// KPI snapshot endpoint
		r.Get("/kpi/snapshot", h.KPISnapshotHandler)
	})

	return r
}
