package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/middleware"
)

// NewRouter creates a chi router with all storefront cart routes registered.
func NewRouter(
	cartHandler *CartHandler,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cors middleware.CORSConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("storefront"))
	r.Use(middleware.Tracing("storefront"))
	r.Use(middleware.CORS(cors))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	// Cart API endpoints
	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.Session)
		r.Use(middleware.RequestLogger(logger))

		r.Get("/", cartHandler.GetCart)
		r.Put("/", cartHandler.SetCart)
		r.Delete("/", cartHandler.ClearCart)
		r.Get("/totals", cartHandler.GetTotals)

		r.Post("/items", cartHandler.AddItem)
		r.Put("/items/{index}", cartHandler.UpdateItemQuantity)
		r.Delete("/items/{index}", cartHandler.RemoveItem)

		r.With(middleware.BearerToken).Post("/sync", cartHandler.SyncCart)
		r.Post("/checkout", cartHandler.Checkout)
	})

	return r
}
