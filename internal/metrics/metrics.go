// Package metrics 汇总服务对外暴露的 prometheus 指标。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dramaapi_http_requests_total",
			Help: "HTTP requests served, labeled by route template and status code.",
		},
		[]string{"route", "code"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dramaapi_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds, labeled by route template.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	FetchAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dramaapi_fetch_attempts_total",
			Help: "Upstream page fetch attempts, labeled by outcome (ok, fetch, size).",
		},
		[]string{"outcome"},
	)
	ExtractItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dramaapi_extract_items_total",
			Help: "Records produced by extractors, labeled by extractor and strategy.",
		},
		[]string{"extractor", "strategy"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequests)
	prometheus.MustRegister(HTTPDuration)
	prometheus.MustRegister(FetchAttempts)
	prometheus.MustRegister(ExtractItems)
}

// Handler 返回 /metrics 的 exposition handler。
func Handler() http.Handler {
	return promhttp.Handler()
}
