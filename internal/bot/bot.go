// Package bot turns Telegram updates into registry, link and broadcast
// operations and answers each one with a single reply.
//
// Updates arrive either from the long-polling Poller or from the webhook
// route in internal/http; both call (*Bot).HandleUpdate. Updates are
// de-duplicated by update_id through the processed_updates table so a
// redelivered webhook or a poller restart does not run a command twice.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-referral-bot/internal/repo"
	"github.com/tbourn/go-referral-bot/internal/services"
	"github.com/tbourn/go-referral-bot/internal/telegram"
)

// API is the subset of the Telegram client the handlers reply through.
type API interface {
	SendMessage(ctx context.Context, p telegram.SendMessageParams) (*telegram.Message, error)
	EditMessageText(ctx context.Context, p telegram.EditMessageTextParams) error
	AnswerCallbackQuery(ctx context.Context, queryID, text string) error
}

// Handler processes one update. *Bot implements it.
type Handler interface {
	HandleUpdate(ctx context.Context, u *telegram.Update) error
}

// Defaults for Options.
const (
	DefaultPageSize = 10
	DefaultDedupTTL = 48 * time.Hour
)

// Options tune the bot's behavior.
type Options struct {
	// ClaimSecret enables /setowner <secret>. Empty disables the command.
	ClaimSecret string
	// PageSize is the number of channels per /list page.
	PageSize int
	// DedupTTL is how long a processed update_id is remembered.
	DedupTTL time.Duration
}

// Bot dispatches updates to the services.
type Bot struct {
	API       API
	DB        *gorm.DB // processed_updates; nil disables de-duplication
	Registry  *services.RegistryService
	Links     *services.LinkService
	Broadcast *services.BroadcastService

	opts Options
}

// New wires a Bot. Zero option values fall back to the defaults.
func New(api API, db *gorm.DB, reg *services.RegistryService, links *services.LinkService, bc *services.BroadcastService, opts Options) *Bot {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.DedupTTL <= 0 {
		opts.DedupTTL = DefaultDedupTTL
	}
	return &Bot{API: api, DB: db, Registry: reg, Links: links, Broadcast: bc, opts: opts}
}

// HandleUpdate processes u. Failures are answered to the user where possible;
// the returned error is for logging only and never means "retry".
func (b *Bot) HandleUpdate(ctx context.Context, u *telegram.Update) error {
	start := time.Now()
	kind := u.Kind()
	defer func() { updateLat.WithLabelValues(kind).Observe(time.Since(start).Seconds()) }()

	// Webhook requests arrive with a request-scoped logger; keep its fields.
	base := log.Logger
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		base = *l
	}
	lg := base.With().
		Int64("update_id", u.UpdateID).
		Str("kind", kind).
		Int64("chat_id", u.ChatID()).
		Logger()
	ctx = lg.WithContext(ctx)

	fresh, err := b.markProcessed(ctx, u)
	if err != nil {
		// A broken dedup table must not silence the bot.
		lg.Warn().Err(err).Msg("update dedup failed")
	}
	if !fresh {
		updatesTotal.WithLabelValues(kind, "duplicate").Inc()
		lg.Debug().Msg("duplicate update skipped")
		return nil
	}

	switch {
	case u.Message != nil:
		err = b.handleMessage(ctx, u.Message)
	case u.ChannelPost != nil:
		err = b.handleMessage(ctx, u.ChannelPost)
	case u.CallbackQuery != nil:
		err = b.handleCallback(ctx, u.CallbackQuery)
	default:
		updatesTotal.WithLabelValues(kind, "ignored").Inc()
		return nil
	}

	if err != nil {
		updatesTotal.WithLabelValues(kind, "error").Inc()
		lg.Error().Err(err).Dur("latency", time.Since(start)).Msg("update failed")
		return err
	}
	updatesTotal.WithLabelValues(kind, "ok").Inc()
	lg.Debug().Dur("latency", time.Since(start)).Msg("update handled")
	return nil
}

// markProcessed records u and reports whether it was seen for the first time.
func (b *Bot) markProcessed(ctx context.Context, u *telegram.Update) (bool, error) {
	if b.DB == nil {
		return true, nil
	}
	chatID := ""
	if id := u.ChatID(); id != 0 {
		chatID = strconv.FormatInt(id, 10)
	}
	_, err := repo.MarkUpdateProcessed(ctx, b.DB, u.UpdateID, u.Kind(), chatID, b.opts.DedupTTL)
	if errors.Is(err, repo.ErrDuplicate) {
		return false, nil
	}
	return true, err
}

// reply sends text to chatID. Link previews are disabled so a list of
// referral links stays compact.
func (b *Bot) reply(ctx context.Context, chatID int64, text string, markup *telegram.InlineKeyboardMarkup) error {
	_, err := b.API.SendMessage(ctx, telegram.SendMessageParams{
		ChatID:             strconv.FormatInt(chatID, 10),
		Text:               text,
		ReplyMarkup:        markup,
		LinkPreviewOptions: &telegram.LinkPreviewOptions{IsDisabled: true},
	})
	if err != nil {
		return fmt.Errorf("reply: %w", err)
	}
	return nil
}

// replyErr answers a failed command. Expected failures are counted as
// rejected; anything else is returned for logging.
func (b *Bot) replyErr(ctx context.Context, chatID int64, command string, cause error) error {
	text, internal := errorReply(cause)
	outcome := "rejected"
	if internal {
		outcome = "error"
	}
	commandsTotal.WithLabelValues(command, outcome).Inc()
	zerolog.Ctx(ctx).Info().Str("command", command).Str("outcome", outcome).Err(cause).Msg("command failed")

	if err := b.reply(ctx, chatID, text, nil); err != nil {
		return errors.Join(cause, err)
	}
	if internal {
		return cause
	}
	return nil
}

// replyOK answers a successful command.
func (b *Bot) replyOK(ctx context.Context, chatID int64, command, text string, markup *telegram.InlineKeyboardMarkup) error {
	commandsTotal.WithLabelValues(command, "ok").Inc()
	zerolog.Ctx(ctx).Info().Str("command", command).Str("outcome", "ok").Msg("command handled")
	return b.reply(ctx, chatID, text, markup)
}
