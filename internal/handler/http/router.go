package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/virtualmercado/shopdrive-sub002/internal/service"
	"github.com/virtualmercado/shopdrive-sub002/pkg/health"
	"github.com/virtualmercado/shopdrive-sub002/pkg/middleware"
)

// requestTimeout bounds regular API requests. The event stream is exempt.
const requestTimeout = 30 * time.Second

// NewRouter creates a chi router with all checkout service routes registered.
func NewRouter(
	checkoutService *service.CheckoutService,
	healthHandler *health.Handler,
	corsCfg middleware.CORSConfig,
	authSecret string,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("checkout"))
	r.Use(middleware.Tracing("checkout"))
	if authSecret != "" {
		r.Use(middleware.BearerAuth(authSecret, logger))
	}
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	h := NewCheckoutHandler(checkoutService, logger)

	r.Route("/api/v1/checkout/sessions", func(r chi.Router) {
		// Streaming must not be buffered by compression or cut by the timeout.
		r.Get("/{id}/events", h.Events)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Compress(5))
			r.Use(chimw.Timeout(requestTimeout))
			r.Use(ContentTypeJSON)

			r.Post("/", h.Start)
			r.Get("/{id}", h.Get)
			r.Delete("/{id}", h.Discard)

			r.Put("/{id}/identification/email", h.SetEmail)
			r.Put("/{id}/identification/contact", h.SetContact)
			r.Post("/{id}/identification/customer", h.AttachCustomer)
			r.Post("/{id}/identification/login", h.Login)
			r.Post("/{id}/identification/magic-link", h.RequestMagicLink)

			r.Put("/{id}/delivery/address", h.SetAddress)
			r.Put("/{id}/delivery/method", h.SelectDelivery)
			r.Post("/{id}/delivery/requote", h.Requote)

			r.Put("/{id}/payment/method", h.SelectPayment)
			r.Put("/{id}/payment/card", h.SetCard)
			r.Put("/{id}/payment/installments", h.SelectInstallments)
			r.Post("/{id}/payment/tokenize", h.Tokenize)

			r.Post("/{id}/submit", h.Submit)
			r.Post("/{id}/retry", h.Retry)
		})
	})

	return r
}
