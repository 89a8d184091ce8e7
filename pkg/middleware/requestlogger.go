package middleware

import (
	"log/slog"
	"net/http"

	"github.com/virtualmercado/shopdrive-sub002/pkg/logger"
)

// Headers set by the storefront edge for the shopper and the storefront.
const (
	HeaderUserID  = "X-User-ID"
	HeaderStoreID = "X-Store-ID"
)

// RequestLogger returns middleware that builds a request-scoped logger enriched
// with correlation_id, user_id, store_id, trace_id, and span_id, then stores it
// in context via logger.NewContext. Downstream handlers retrieve it with
// logger.FromContext(ctx).
//
// Mount it after RequestLogging (which sets correlation_id) and Tracing
// (which sets the OpenTelemetry span context).
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if logger.UserIDFromContext(ctx) == "" {
				if userID := r.Header.Get(HeaderUserID); userID != "" {
					ctx = logger.WithUserID(ctx, userID)
				}
			}
			if logger.StoreIDFromContext(ctx) == "" {
				if storeID := r.Header.Get(HeaderStoreID); storeID != "" {
					ctx = logger.WithStoreID(ctx, storeID)
				}
			}

			enriched := logger.WithContext(ctx, base)
			ctx = logger.NewContext(ctx, enriched)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
