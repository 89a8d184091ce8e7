package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/virtualmercado/shopdrive-sub002/pkg/httputil"
)

// Recovery recovers from panics and answers 500 in the standard error
// envelope, carrying the correlation ID set by RequestLogging. When the
// handler already started its response (an event stream for instance) the
// panic is only logged.
func Recovery(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := newStatusRecorder(w)
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				l.ErrorContext(r.Context(), "panic recovered",
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Bool("response_started", rw.wroteHeader),
				)
				if rw.wroteHeader {
					return
				}
				httputil.WriteJSON(rw, http.StatusInternalServerError, httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:      "INTERNAL_ERROR",
						Message:   "an internal error occurred",
						RequestID: rw.Header().Get(HeaderCorrelationID),
					},
				})
			}()

			next.ServeHTTP(rw, r)
		})
	}
}
