package telegram

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// APIError is a Bot API answer with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
	// RetryAfter is set on 429 answers.
	RetryAfter time.Duration
	// MigrateToChatID is set when a group was upgraded to a supergroup.
	MigrateToChatID int64
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("telegram: %s: %d %s", e.Method, e.Code, e.Description)
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter)
	}
	return msg
}

// IsRateLimited reports whether err is a 429 answer and how long to wait.
func IsRateLimited(err error) (time.Duration, bool) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusTooManyRequests {
		return 0, false
	}
	return apiErr.RetryAfter, true
}

// IsForbidden reports whether err says the bot lacks access to the chat
// (kicked, not a member, or not allowed to post).
func IsForbidden(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusForbidden
}

// IsMessageNotModified reports whether an edit was rejected because the new
// content equals the old one. Telegram reports this as a 400.
func IsMessageNotModified(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(apiErr.Description), "message is not modified")
}
