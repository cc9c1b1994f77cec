// Package httpapi wires the HTTP transport (Gin): the Telegram webhook in
// webhook mode, plus /health and /metrics in every mode.
package httpapi

import (
	"net/http"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-referral-bot/internal/config"
	"github.com/tbourn/go-referral-bot/internal/http/handlers"
	"github.com/tbourn/go-referral-bot/internal/http/middleware"
)

// maxUpdateBytes caps webhook bodies. Real updates are a few KiB.
const maxUpdateBytes = 1 << 20

// RegisterRoutes attaches middleware and routes to r. The webhook route is
// mounted only in webhook mode, and only when h is non-nil.
//
// Middleware order:
//  1. OpenTelemetry (operational routes excluded)
//  2. RequestID
//  3. AccessLog (redacting, request-scoped logger)
//  4. Recovery
//  5. Body size limit
//  6. Metrics
//  7. Security headers
//
// The webhook route adds the per-IP rate limiter and the secret check.
func RegisterRoutes(r *gin.Engine, h handlers.UpdateHandler, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName, otelgin.WithFilter(func(req *http.Request) bool {
		return req.URL.Path != "/health" && req.URL.Path != "/metrics"
	})))
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(middleware.RedactOptions{}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxUpdateBytes))
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
		NoStore:    true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", handlers.Health)
	// promhttp compression is off; gzip middleware owns Content-Encoding.
	r.GET("/metrics",
		gzip.Gzip(gzip.DefaultCompression),
		gin.WrapH(promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{DisableCompression: true})),
	)

	if cfg.Mode == config.ModeWebhook && h != nil {
		rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())
		r.POST(cfg.Webhook.Path,
			rl.Handler(),
			middleware.WebhookSecret(cfg.Webhook.Secret),
			handlers.NewWebhook(h).Receive,
		)
	}
}

// limitBody caps the request body at maxBytes via http.MaxBytesReader;
// reads past the cap fail with *http.MaxBytesError.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
