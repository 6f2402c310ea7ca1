package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ContractCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contract_calls_total",
			Help: "Total number of contract calls by operation",
		},
		[]string{"operation", "status"},
	)

	ContractCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contract_call_duration_seconds",
			Help:    "Duration of contract calls, inclusion wait included",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"operation"},
	)

	CacheRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregate_cache_refreshes_total",
			Help: "Total number of aggregate cache refresh attempts",
		},
		[]string{"counter", "status"},
	)

	WalletConnections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_connections_total",
			Help: "Total number of wallet connection attempts",
		},
		[]string{"status"},
	)
)

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}

		method := c.Request.Method
		start := time.Now()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		RequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		RequestTotal.WithLabelValues(method, path, status).Inc()
	}
}

func RecordContractCall(operation string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ContractCalls.WithLabelValues(operation, status).Inc()
	ContractCallDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func RecordCacheRefresh(counter string, ok bool) {
	status := "error"
	if ok {
		status = "ok"
	}
	CacheRefreshes.WithLabelValues(counter, status).Inc()
}

func RecordWalletConnection(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	WalletConnections.WithLabelValues(status).Inc()
}
