package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Logger returns middleware that writes one structured line per request,
// leveled by status class so sidecar delivery failures stand out in the
// stream of routine webhook posts.
func Logger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			ev := logger.Info()
			switch {
			case ww.Status() >= 500:
				ev = logger.Error()
			case ww.Status() >= 400:
				ev = logger.Warn()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("elapsed", time.Since(start)).
				Str("request_id", requestID(r)).
				Str("remote", r.RemoteAddr).
				Msg("http request")
		})
	}
}

// requestID prefers the id the bridge sidecar stamps on webhook deliveries,
// so a redelivered event correlates across both processes. Other callers get
// the chi-generated id.
func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return chimw.GetReqID(r.Context())
}
