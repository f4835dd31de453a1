// metrics.go — Prometheus HTTP метрики siteadmin.
// Регистрирует метрики: sa_http_requests_total, sa_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sa_http_requests_total",
			Help: "Общее количество HTTP-запросов к siteadmin",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sa_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к siteadmin в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			status := strconv.Itoa(wrapped.statusCode)
			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(time.Since(start).Seconds())
		})
	}
}

// normalizePath заменяет переменные сегменты пути шаблонами, чтобы
// кардинальность лейблов не зависела от имён экранов и ID записей.
// /api/v1/screens/links/records/42/toggle → /api/v1/screens/{screen}/records/{id}/toggle
func normalizePath(path string) string {
	if strings.HasPrefix(path, "/media/") {
		return "/media/{path}"
	}
	if !strings.HasPrefix(path, "/api/v1/") {
		return path
	}

	segs := strings.Split(strings.TrimPrefix(path, "/api/v1/"), "/")
	switch segs[0] {
	case "screens":
		if len(segs) > 1 && segs[1] != "" {
			segs[1] = "{screen}"
		}
		if len(segs) > 3 && segs[2] == "records" && segs[3] != "" {
			segs[3] = "{id}"
		}
	case "users", "blogs":
		if len(segs) > 1 && segs[1] != "" {
			segs[1] = "{id}"
		}
	}
	return "/api/v1/" + strings.Join(segs, "/")
}
