package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-referral-bot/internal/http/middleware"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code"` // one of the ErrCode* constants
	Message   string `json:"message"`
}

// Fail aborts c with status and an ErrorResponse. 5xx replies are also
// logged, since the client side (Telegram) never surfaces them.
func Fail(c *gin.Context, status int, code, msg string) {
	rid := middleware.RequestIDFrom(c)
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Str("request_id", rid).
			Int("status", status).
			Str("code", code).
			Msg(msg)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{RequestID: rid, Code: code, Message: msg})
}

// Health answers liveness checks.
func Health(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) }
