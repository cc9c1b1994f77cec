package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsSubsystem = "http"

// Route labels come from c.FullPath(), so scanners hitting random paths all
// land in "unmatched".
var (
	httpReqs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: metricsSubsystem,
		Name:      "requests_total",
		Help:      "HTTP requests served, by method, route and status.",
	}, []string{"method", "route", "status"})

	httpLat = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Subsystem: metricsSubsystem,
		Name:      "request_duration_seconds",
		Help:      "Time from first middleware to response, in seconds.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"method", "route"})

	// Telegram caps a single update well below this, the buckets only need
	// to tell small text updates from media-heavy ones.
	httpReqSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Subsystem: metricsSubsystem,
		Name:      "request_size_bytes",
		Help:      "Declared request body size in bytes.",
		Buckets:   prometheus.ExponentialBuckets(256, 4, 6),
	}, []string{"route"})

	httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Subsystem: metricsSubsystem,
		Name:      "requests_inflight",
		Help:      "Requests currently being served.",
	})

	webhookRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_rejected_total",
		Help: "Webhook requests refused before reaching the bot, by reason.",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpReqSize, httpInflight, webhookRejected)
}

func routeLabel(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return "unmatched"
}

// Metrics records count, latency and body size per route, plus an
// in-flight gauge.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		httpInflight.Inc()
		start := time.Now()

		c.Next()

		elapsed := time.Since(start)
		httpInflight.Dec()

		route := routeLabel(c)
		method := c.Request.Method
		httpReqs.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, route).Observe(elapsed.Seconds())
		if n := c.Request.ContentLength; n > 0 {
			httpReqSize.WithLabelValues(route).Observe(float64(n))
		}
	}
}
