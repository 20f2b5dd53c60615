package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// NewRequestLogger logs each request on arrival and its duration on
// completion. Runs after the metadata middleware so the client IP is
// available.
func NewRequestLogger(logger *slog.Logger) Middleware {
	log := logger.With(slog.String("component", "http"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var ip string
			if reqMeta, ok := ReqMetadataFrom(r.Context()); ok {
				ip = reqMeta.IP
			}

			start := time.Now()
			log.Info("Incoming HTTP request",
				slog.String("method", r.Method),
				slog.String("uri", r.RequestURI),
				slog.String("ip", ip),
			)
			next.ServeHTTP(w, r)
			log.Debug("Request completed",
				slog.String("uri", r.RequestURI),
				slog.Duration("elapsed", time.Since(start)),
			)
		})
	}
}
