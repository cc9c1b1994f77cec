// Package telegram is a small Telegram Bot API client covering the methods
// the referral bot calls: identity, chat and membership lookups, sending and
// editing messages, answering button presses, long polling and webhook
// registration.
//
// Every method is a JSON POST to {base}/bot{token}/{method}. Outbound
// messages are paced by a token bucket so a broadcast stays under the
// platform's flood limits; a 429 answer is surfaced as *APIError with
// RetryAfter set and is not retried here.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// DefaultAPIURL is the public Bot API endpoint.
const DefaultAPIURL = "https://api.telegram.org"

// maxResponseBytes caps the size of a decoded API response.
const maxResponseBytes = 8 << 20

// Config configures a Client.
type Config struct {
	Token   string
	APIURL  string
	Timeout time.Duration
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
	// SendRPS and SendBurst pace sendMessage and editMessageText.
	// SendRPS <= 0 disables pacing.
	SendRPS   float64
	SendBurst int
}

// Client calls the Bot API.
type Client struct {
	base     string
	httpc    *http.Client
	limiter  *rate.Limiter
	scrubber *strings.Replacer
}

// New returns a Client for cfg.Token.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram: token is required")
	}
	api := strings.TrimRight(cfg.APIURL, "/")
	if api == "" {
		api = DefaultAPIURL
	}
	httpc := cfg.HTTPClient
	if httpc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpc = &http.Client{Timeout: timeout}
	}
	c := &Client{
		base:     api + "/bot" + cfg.Token + "/",
		httpc:    httpc,
		scrubber: strings.NewReplacer(cfg.Token, "[EXPUNGED]"),
	}
	if cfg.SendRPS > 0 {
		burst := cfg.SendBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.SendRPS), burst)
	}
	return c, nil
}

// call posts params to method and decodes the result into out (may be nil).
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	ctx, span := otel.Tracer("telegram").Start(ctx, method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("telegram.method", method)),
	)
	defer span.End()

	err := c.do(ctx, method, params, out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Client) do(ctx context.Context, method string, params, out any) error {
	body := []byte("{}")
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("telegram: %s: encode params: %w", method, err)
		}
		body = b
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: %s: %s", method, c.scrub(err))
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpc.Do(req)
	if err != nil {
		// *url.Error embeds the request URL, which contains the token.
		return fmt.Errorf("telegram: %s: %s", method, c.scrub(err))
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("telegram: %s: read response: %w", method, err)
	}

	var env response
	if err := json.Unmarshal(raw, &env); err != nil {
		return &APIError{Method: method, Code: res.StatusCode, Description: http.StatusText(res.StatusCode)}
	}
	if !env.OK {
		e := &APIError{Method: method, Code: env.ErrorCode, Description: env.Description}
		if e.Code == 0 {
			e.Code = res.StatusCode
		}
		if p := env.Parameters; p != nil {
			e.RetryAfter = time.Duration(p.RetryAfter) * time.Second
			e.MigrateToChatID = p.MigrateToChatID
		}
		return e
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("telegram: %s: decode result: %w", method, err)
	}
	return nil
}

func (c *Client) scrub(err error) string {
	return c.scrubber.Replace(err.Error())
}

// pace blocks until the send limiter admits one more message.
func (c *Client) pace(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// GetMe returns the bot's own account.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var u User
	if err := c.call(ctx, "getMe", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetChat returns metadata of a chat by numeric id or @username.
func (c *Client) GetChat(ctx context.Context, chatID string) (*Chat, error) {
	var ch Chat
	err := c.call(ctx, "getChat", map[string]string{"chat_id": chatID}, &ch)
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// GetChatMember returns userID's membership in chatID.
func (c *Client) GetChatMember(ctx context.Context, chatID string, userID int64) (*ChatMember, error) {
	var m ChatMember
	params := map[string]any{"chat_id": chatID, "user_id": userID}
	if err := c.call(ctx, "getChatMember", params, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// SendMessage sends a text message.
func (c *Client) SendMessage(ctx context.Context, p SendMessageParams) (*Message, error) {
	if err := c.pace(ctx); err != nil {
		return nil, err
	}
	var m Message
	if err := c.call(ctx, "sendMessage", p, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// EditMessageText replaces the text (and keyboard) of a sent message.
func (c *Client) EditMessageText(ctx context.Context, p EditMessageTextParams) error {
	if err := c.pace(ctx); err != nil {
		return err
	}
	// The result is the edited Message, or true for inline messages.
	return c.call(ctx, "editMessageText", p, nil)
}

// AnswerCallbackQuery acknowledges a button press, optionally with a toast.
func (c *Client) AnswerCallbackQuery(ctx context.Context, queryID, text string) error {
	params := map[string]any{"callback_query_id": queryID}
	if text != "" {
		params["text"] = text
	}
	return c.call(ctx, "answerCallbackQuery", params, nil)
}

// GetUpdates long-polls for updates.
func (c *Client) GetUpdates(ctx context.Context, p GetUpdatesParams) ([]Update, error) {
	var ups []Update
	if err := c.call(ctx, "getUpdates", p, &ups); err != nil {
		return nil, err
	}
	return ups, nil
}

// SetWebhook registers the webhook URL.
func (c *Client) SetWebhook(ctx context.Context, p SetWebhookParams) error {
	return c.call(ctx, "setWebhook", p, nil)
}

// DeleteWebhook removes the webhook so getUpdates can be used.
func (c *Client) DeleteWebhook(ctx context.Context, dropPending bool) error {
	return c.call(ctx, "deleteWebhook", map[string]bool{"drop_pending_updates": dropPending}, nil)
}
