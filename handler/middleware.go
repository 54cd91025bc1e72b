package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var RequestCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "grocery",
	Subsystem: "http",
	Name:      "requests_total",
}, []string{"method", "route", "status"})

var RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "grocery",
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route"})

var RateLimitedCount = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "grocery",
	Subsystem: "http",
	Name:      "rate_limited_total",
})

// RegisterMetrics registers the HTTP metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(RequestCount, RequestDuration, RateLimitedCount)
}

// CORS wraps an http.Handler with CORS headers.
func CORS(next http.Handler, allowedOrigins []string) http.Handler {
	// Fast path: wildcard allows everything.
	allowAll := len(allowedOrigins) == 1 && allowedOrigins[0] == "*"

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowAll {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			for _, o := range allowedOrigins {
				if strings.TrimSpace(o) == origin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Vary", "Origin")
					break
				}
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// LogRequests logs and counts every request. The route label is the
// matched ServeMux pattern so ids do not end up in label values.
func LogRequests(next http.Handler, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		RequestCount.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		RequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", elapsed,
		)
	})
}

// authenticated rejects requests without a valid session and passes the
// session to next through the request context.
func (h *Handler) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := h.sessions.Load(r.Context(), r)
		if err != nil {
			if !errors.Is(err, ErrNoSession) {
				h.logger.Error("session lookup failed", "error", err)
				writeError(w, http.StatusInternalServerError, UnknownError)
				return
			}
			writeError(w, http.StatusUnauthorized, InvalidCredentials)
			return
		}
		next(w, r.WithContext(withSession(r.Context(), sess)))
	}
}

// limited applies the rate limiter, if one is configured.
func (h *Handler) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.limiter == nil {
			next(w, r)
			return
		}
		ip := clientIP(r)
		ok, err := h.limiter.Allow(r.Context(), ip)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if !ok {
			RateLimitedCount.Inc()
			h.logger.Info("rate limited", "ip", ip)
			writeError(w, http.StatusTooManyRequests, RateLimited)
			return
		}
		next(w, r)
	}
}
