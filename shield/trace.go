package shield

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/domsel/idgen"
	"github.com/hazyhaar/domsel/kit"
)

// RequestHeader carries the request ID in both directions. A client-sent
// value is kept so calls can be correlated across services.
const RequestHeader = "X-Request-ID"

// RequestID tags each request with an ID, the "http" transport and a
// per-request logger, then logs the request once it completes.
func RequestID(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestHeader)
			if id == "" || len(id) > 64 {
				id = "req_" + idgen.New()
			}
			w.Header().Set(RequestHeader, id)

			l := logger.With("request_id", id, "method", r.Method, "path", r.URL.Path)
			ctx := kit.WithRequestID(r.Context(), id)
			ctx = kit.WithTransport(ctx, "http")
			ctx = context.WithValue(ctx, LoggerKey, l)

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(sw, r.WithContext(ctx))
			l.Debug("shield: request", "status", sw.status, "duration_ms", time.Since(start).Milliseconds())
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
