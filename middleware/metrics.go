package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	ordersPaidTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_paid_total",
			Help: "Total number of orders that reached paid",
		},
	)

	ticketsIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tickets_issued_total",
			Help: "Total number of tickets minted",
		},
	)

	ticketsCheckedInTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_checked_in_total",
			Help: "Total number of check-in attempts",
		},
		[]string{"result"},
	)

	inventoryRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inventory_rejections_total",
			Help: "Total number of checkouts rejected for insufficient inventory",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(ordersPaidTotal)
	prometheus.MustRegister(ticketsIssuedTotal)
	prometheus.MustRegister(ticketsCheckedInTotal)
	prometheus.MustRegister(inventoryRejectionsTotal)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

func RecordOrderPaid(ticketCount int) {
	ordersPaidTotal.Inc()
	ticketsIssuedTotal.Add(float64(ticketCount))
}

func RecordCheckIn(result string) {
	ticketsCheckedInTotal.WithLabelValues(result).Inc()
}

func RecordInventoryRejection() {
	inventoryRejectionsTotal.Inc()
}
