// Package middleware contains the Gin middleware in front of the webhook
// endpoint and the operational routes (/health, /metrics).
//
// Install RequestID first, then AccessLog, then Recovery, so panics and
// rejections are logged with their correlation id.
package middleware

import (
	"net/http"
	"regexp"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Gin context keys and the correlation header.
const (
	ctxRequestID    = "requestID"
	ctxLogger       = "logger"
	requestIDHeader = "X-Request-ID"

	maxQueryLogLength = 2048
)

// Caller-supplied ids end up in headers and log lines.
var requestIDRE = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// RequestID reuses a well-formed X-Request-ID or mints a UUIDv4, stores it
// in the Gin context and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if !requestIDRE.MatchString(id) {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// RequestIDFrom returns the id stored by RequestID, or "".
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(ctxRequestID)
}

// Recovery turns a handler panic into a logged stack trace and a JSON 500.
// When the body was already partly written only the status is recorded.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if v := recover(); v != nil {
				handlePanic(c, v)
			}
		}()
		c.Next()
	}
}

func handlePanic(c *gin.Context, v any) {
	id := RequestIDFrom(c)
	LoggerFrom(c).Error().
		Str("request_id", id).
		Interface("panic", v).
		Bytes("stack", debug.Stack()).
		Msg("panic recovered")

	if c.Writer.Written() {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Header(requestIDHeader, id)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"code":       "internal_error",
		"message":    "internal server error",
		"request_id": id,
	})
}

// LoggerFrom returns the logger AccessLog attached to c, falling back to the
// global logger.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(ctxLogger); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	lg := log.Logger
	return &lg
}

// truncate cuts s to n bytes plus an ellipsis; n <= 0 keeps s whole.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
