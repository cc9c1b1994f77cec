package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-referral-bot/internal/http/middleware"
	"github.com/tbourn/go-referral-bot/internal/telegram"
)

// UpdateHandler processes one Telegram update. *bot.Bot satisfies it.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u *telegram.Update) error
}

// DefaultUpdateTimeout bounds one webhook update, matching the poller's
// per-update bound.
const DefaultUpdateTimeout = 2 * time.Minute

// Webhook receives updates pushed by Telegram.
type Webhook struct {
	bot UpdateHandler

	// Timeout bounds a single update; zero means DefaultUpdateTimeout.
	Timeout time.Duration
}

// NewWebhook binds the endpoint to h.
func NewWebhook(h UpdateHandler) *Webhook { return &Webhook{bot: h} }

// updateContext detaches the update from the HTTP request. Telegram drops
// the connection after its own timeout, and a paced /send must still reach
// every post channel and report back once.
func (w *Webhook) updateContext(c *gin.Context) (context.Context, context.CancelFunc) {
	d := w.Timeout
	if d <= 0 {
		d = DefaultUpdateTimeout
	}
	return context.WithTimeout(context.WithoutCancel(c.Request.Context()), d)
}

// okBody is what Telegram gets for every accepted delivery.
var okBody = gin.H{"ok": true}

// Receive decodes the update and runs it synchronously.
//
// Anything other than 2xx makes Telegram redeliver, so once an update is
// decoded the answer is always 200: the bot has already recorded the
// update_id, and a redelivery would only be skipped as a duplicate.
// Handler failures are logged instead.
func (w *Webhook) Receive(c *gin.Context) {
	var u telegram.Update
	if err := json.NewDecoder(c.Request.Body).Decode(&u); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			Fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "update too large")
			return
		}
		Fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid update body")
		return
	}
	if u.UpdateID <= 0 {
		Fail(c, http.StatusBadRequest, ErrCodeBadRequest, "missing update_id")
		return
	}
	c.Set("update_id", u.UpdateID)

	ctx, cancel := w.updateContext(c)
	defer cancel()
	if err := w.bot.HandleUpdate(ctx, &u); err != nil {
		middleware.LoggerFrom(c).Error().Err(err).Int64("update_id", u.UpdateID).Msg("update failed")
	}
	c.JSON(http.StatusOK, okBody)
}
