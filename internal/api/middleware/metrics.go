// metrics.go — Prometheus метрики portfolio-server.
// HTTP метрики: pf_http_requests_total, pf_http_request_duration_seconds.
// Бизнес-метрики загрузок экспортируются и обновляются из сервисного слоя.
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
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pf_http_requests_total",
			Help: "Общее количество HTTP-запросов к portfolio-server",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	// Загрузки видео длятся до минут, поэтому бакеты шире DefBuckets.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pf_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к portfolio-server в секундах",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method", "path"},
	)
)

// Бизнес-метрики (экспортируются для обновления из сервисного слоя)
var (
	// UploadsTotal — результаты загрузок по режимам (single, chunked, thumbnail).
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pf_uploads_total",
			Help: "Общее количество загрузок по режиму и результату",
		},
		[]string{"mode", "result"},
	)

	// UploadBytesTotal — объём успешно записанных данных.
	UploadBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pf_upload_bytes_total",
			Help: "Объём успешно записанных на диск данных в байтах",
		},
		[]string{"mode"},
	)

	// ChunkSessionsActive — текущее количество незавершённых chunked-сессий.
	ChunkSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pf_chunk_sessions_active",
			Help: "Текущее количество незавершённых chunked-загрузок",
		},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
// mediaPrefix — URL-префикс загруженных файлов (PF_UPLOAD_URL_PREFIX).
func MetricsMiddleware(mediaPrefix string) func(http.Handler) http.Handler {
	mediaLabel := mediaPrefix + "/{file}"
	mediaPrefix += "/"
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			normalizedPath := normalizePath(r.URL.Path, mediaPrefix, mediaLabel)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// knownPaths — фиксированные endpoints, попадающие в лейбл как есть.
var knownPaths = map[string]struct{}{
	"/health/live":          {},
	"/health/ready":         {},
	"/metrics":              {},
	"/api/auth":             {},
	"/api/data":             {},
	"/api/upload":           {},
	"/api/upload/streaming": {},
	"/api/upload/thumbnail": {},
	"/api/upload/limits":    {},
}

// normalizePath сводит путь к шаблону для предотвращения
// взрывного роста кардинальности метрик.
// /uploads/upload-1760000000000-3f9a1c0b7d2e-a.png → /uploads/{file}
func normalizePath(path, mediaPrefix, mediaLabel string) string {
	if _, ok := knownPaths[path]; ok {
		return path
	}
	switch {
	case strings.HasPrefix(path, mediaPrefix):
		return mediaLabel
	case strings.HasPrefix(path, "/api/"):
		return "/api/{unknown}"
	}
	return "other"
}
