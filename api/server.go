/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the field app

ROUTE GROUPS:
  /api/shops/*        Shops, ledgers, payments, deferrals, adjustments
  /api/collection     Collection view
  /api/route/*        Route dashboard
  /api/deliveries/*   Delivery entry, deletion, audit trail
  /api/products/*     Product catalog
  /api/staff/*        Delivery staff
  /api/stock/*        Stock levels
  /api/reset/*        Day close + preview
  /api/reports/*      Daily reports

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Shop routes
		r.Route("/shops", func(r chi.Router) {
			r.Get("/", h.ListShops)
			r.Post("/", h.CreateShop)
			r.Get("/{id}", h.GetShop)
			r.Put("/{id}", h.UpdateShop)
			r.Delete("/{id}", h.DeactivateShop)
			r.Get("/{id}/ledger", h.GetShopLedger)
			r.Get("/{id}/transactions", h.GetShopTransactions)
			r.Post("/{id}/payments", h.ProcessPayment)
			r.Post("/{id}/defer", h.DeferPayment)
			r.Post("/{id}/adjustments", h.CreateAdjustment)
		})

		// Collection routes
		r.Get("/collection", h.GetCollection)
		r.Get("/route/stats", h.GetRouteStats)

		// Delivery routes
		r.Route("/deliveries", func(r chi.Router) {
			r.Get("/", h.ListDeliveries)
			r.Post("/", h.CreateDelivery)
			r.Get("/deleted", h.ListDeletedDeliveries)
			r.Delete("/{id}", h.DeleteDelivery)
		})

		// Reference data routes
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.CreateProduct)
		})
		r.Route("/staff", func(r chi.Router) {
			r.Get("/", h.ListStaff)
			r.Post("/", h.CreateStaff)
		})
		r.Route("/stock", func(r chi.Router) {
			r.Get("/", h.GetStock)
			r.Put("/{productId}", h.SetStock)
		})

		// Day close routes
		r.Route("/reset", func(r chi.Router) {
			r.Post("/", h.ProcessReset)
			r.Get("/preview", h.PreviewReset)
		})

		// Report routes
		r.Get("/reports/summary", h.GetSummary)

		// Demo scenario routes (development only)
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Milk Route Ledger</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Milk Route Ledger API</h1>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/shops">/api/shops</a> - List shops</li>
<li><a href="/api/collection">/api/collection</a> - Today's collection view</li>
<li><a href="/api/route/stats">/api/route/stats</a> - Route dashboard</li>
<li><a href="/api/stock">/api/stock</a> - Stock levels</li>
</ul>
</body>
</html>`))
	})

	return r
}
