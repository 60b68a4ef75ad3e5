package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/mssola/useragent"
	"github.com/sendrec/clipintake/internal/geoip"
	"github.com/sendrec/clipintake/internal/ratelimit"
)

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func browserName(userAgent string) string {
	if userAgent == "" {
		return ""
	}
	ua := useragent.New(userAgent)
	if ua.Bot() {
		return "bot"
	}
	name, _ := ua.Browser()
	return name
}

func slogMiddleware(geo *geoip.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/health" {
				next.ServeHTTP(w, r)
				return
			}

			recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			start := time.Now()

			next.ServeHTTP(recorder, r)

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", recorder.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
				"browser", browserName(r.UserAgent()),
			}
			if geo.Enabled() {
				attrs = append(attrs, "country", geo.Country(ratelimit.ClientIP(r)))
			}
			slog.Info("http request", attrs...)
		})
	}
}
