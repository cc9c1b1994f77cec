package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// HeaderWebhookSecret carries the secret_token registered with setWebhook.
const HeaderWebhookSecret = "X-Telegram-Bot-Api-Secret-Token"

// RedactOptions configures AccessLog.
//
// MaskHeaders lists extra header names whose values are replaced with
// "[REDACTED]". They are merged with the built-in set: Authorization,
// Cookie, Set-Cookie and the Telegram webhook secret header.
type RedactOptions struct {
	MaskHeaders []string
}

var (
	// Bot API tokens look like "<bot id>:<35 char secret>" and end up in
	// paths when a reverse proxy forwards /bot<token>/... style URLs.
	botTokenRE = regexp.MustCompile(`\d{5,}:[A-Za-z0-9_-]{30,}`)
	uuidRE     = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE    = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE    = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// Redact scrubs bot tokens, UUIDs, emails and phone numbers from s.
// Tokens go first since their id part would otherwise match as a phone.
func Redact(s string) string {
	if s == "" {
		return s
	}
	s = botTokenRE.ReplaceAllString(s, "[REDACTED:token]")
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// AccessLog emits one structured line per request with sensitive values
// scrubbed, and attaches a request-scoped logger both to the Gin context
// (see LoggerFrom) and to the request's context.Context so zerolog.Ctx
// works in the bot handlers. Bodies are never logged.
//
// Level follows the outcome: error for 5xx or collected Gin errors, warn
// for 4xx, info otherwise.
func AccessLog(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
		strings.ToLower(HeaderWebhookSecret): {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			maskHeaders[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = Redact(c.Request.URL.Path)
		}

		headers := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				headers[k] = "[REDACTED]"
				continue
			}
			headers[k] = Redact(strings.Join(vv, ", "))
		}

		l := log.With().
			Str("request_id", RequestIDFrom(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("remote_ip", c.ClientIP()).
			Logger()
		c.Set(ctxLogger, &l)
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))

		c.Next()

		status := c.Writer.Status()
		ev := l.Info()
		switch {
		case len(c.Errors) > 0:
			ev = l.Error().Str("errors", c.Errors.String())
		case status >= 500:
			ev = l.Error()
		case status >= 400:
			ev = l.Warn()
		}
		if uid, ok := c.Get("update_id"); ok {
			ev = ev.Interface("update_id", uid)
		}

		ev.
			Str("query", truncate(Redact(c.Request.URL.RawQuery), maxQueryLogLength)).
			Int64("bytes_in", c.Request.ContentLength).
			Int("status", status).
			Int("bytes_out", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", headers).
			Msg("http_request")
	}
}
