package bot

import (
	"context"
	"crypto/subtle"
	"errors"
	"strconv"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-referral-bot/internal/services"
	"github.com/tbourn/go-referral-bot/internal/telegram"
)

// parseCommand splits "/cmd@bot args" into its parts. ok is false for text
// that is not a command.
func parseCommand(text string) (cmd, mention, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") || len(text) < 2 {
		return "", "", "", false
	}
	head, rest := text, ""
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		head, rest = text[:i], text[i+1:]
	}
	cmd, mention, _ = strings.Cut(head[1:], "@")
	if cmd == "" {
		return "", "", "", false
	}
	return strings.ToLower(cmd), mention, strings.TrimSpace(rest), true
}

// callerID returns the id authorization runs against: the sending chat for
// channel posts and anonymous admins, otherwise the user.
func callerID(msg *telegram.Message) int64 {
	if msg.SenderChat != nil {
		return msg.SenderChat.ID
	}
	if msg.From != nil {
		return msg.From.ID
	}
	return 0
}

// addressedToUs reports whether a "/cmd@name" mention names this bot. If the
// identity cannot be fetched the command is handled anyway.
func (b *Bot) addressedToUs(ctx context.Context, mention string) bool {
	if b.Links == nil || b.Links.Identity == nil {
		return true
	}
	self, err := b.Links.Identity.Get(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("bot identity unavailable")
		return true
	}
	return strings.EqualFold(mention, self.Username)
}

func (b *Bot) handleMessage(ctx context.Context, msg *telegram.Message) error {
	cmd, mention, args, ok := parseCommand(msg.Text)
	if !ok {
		return nil
	}
	if mention != "" && !b.addressedToUs(ctx, mention) {
		return nil
	}
	lg := zerolog.Ctx(ctx).With().Str("command", cmd).Logger()
	ctx = lg.WithContext(ctx)

	chat := msg.Chat.ID
	caller := callerID(msg)

	switch cmd {
	case "start":
		if args != "" {
			return b.cmdStartToken(ctx, chat, args)
		}
		return b.replyOK(ctx, chat, "help", helpText, nil)
	case "help":
		return b.replyOK(ctx, chat, "help", helpText, nil)
	case "add":
		return b.cmdAdd(ctx, chat, caller, args)
	case "list":
		return b.cmdList(ctx, chat, caller)
	case "req":
		return b.cmdReq(ctx, msg, caller)
	case "send":
		return b.cmdSend(ctx, msg, caller, args)
	case "post":
		return b.cmdPost(ctx, msg, caller)
	case "setowner":
		return b.cmdSetOwner(ctx, msg, args)
	case "stats":
		return b.cmdStats(ctx, chat, caller)
	default:
		// In groups and channels the command may belong to another bot.
		if msg.Chat.Type == telegram.ChatPrivate {
			return b.replyOK(ctx, chat, "unknown", replyUnknown, nil)
		}
		return nil
	}
}

// reject answers a command refused before reaching a service.
func (b *Bot) reject(ctx context.Context, chatID int64, command, text string) error {
	commandsTotal.WithLabelValues(command, "rejected").Inc()
	zerolog.Ctx(ctx).Info().Str("command", command).Str("outcome", "rejected").Msg("command rejected")
	return b.reply(ctx, chatID, text, nil)
}

func (b *Bot) cmdAdd(ctx context.Context, chat, caller int64, args string) error {
	channelID := ""
	if f := strings.Fields(args); len(f) > 0 {
		channelID = f[0]
	}
	name, err := b.Registry.AddPostChannel(ctx, caller, channelID)
	if err != nil {
		// The owner check runs first, so strangers never see the usage line.
		if channelID == "" && errors.Is(err, services.ErrInvalidChannelID) {
			return b.reject(ctx, chat, "add", replyAddUsage)
		}
		return b.replyErr(ctx, chat, "add", err)
	}
	return b.replyOK(ctx, chat, "add", addedReply(name), nil)
}

func (b *Bot) cmdList(ctx context.Context, chat, caller int64) error {
	text, markup, err := b.renderList(ctx, caller, 1)
	if err != nil {
		return b.replyErr(ctx, chat, "list", err)
	}
	return b.replyOK(ctx, chat, "list", text, markup)
}

func (b *Bot) cmdReq(ctx context.Context, msg *telegram.Message, caller int64) error {
	chat := msg.Chat.ID
	if msg.Chat.Type == telegram.ChatPrivate {
		return b.reject(ctx, chat, "req", replyChannelOnly)
	}
	rc, err := b.Registry.RegisterRequestChannel(ctx, strconv.FormatInt(chat, 10), msg.Chat.Title, caller)
	if err != nil {
		return b.replyErr(ctx, chat, "req", err)
	}
	n, err := b.Links.GenerateLinks(ctx, rc.ChannelID)
	if err != nil {
		return b.replyErr(ctx, chat, "req", err)
	}
	linksGenerated.Add(float64(n))

	links, err := b.Links.ResolveLinks(ctx, rc.ChannelID)
	if err != nil {
		return b.replyErr(ctx, chat, "req", err)
	}
	zerolog.Ctx(ctx).Info().Int("links", n).Msg("referral links generated")
	return b.replyOK(ctx, chat, "req", linksReply(rc.Name, links), nil)
}

// cmdSend broadcasts to every post channel, or only to the one named in args.
func (b *Bot) cmdSend(ctx context.Context, msg *telegram.Message, caller int64, args string) error {
	chat := msg.Chat.ID
	if msg.Chat.Type == telegram.ChatPrivate {
		return b.reject(ctx, chat, "send", replyChannelOnly)
	}
	target := ""
	if f := strings.Fields(args); len(f) > 0 {
		target = f[0]
	}
	rep, err := b.Broadcast.BroadcastTo(ctx, strconv.FormatInt(chat, 10), caller, target)
	if err != nil {
		return b.replyErr(ctx, chat, "send", err)
	}
	b.recordReport(ctx, rep)
	return b.replyOK(ctx, chat, "send", reportReply(rep), nil)
}

// cmdPost shows the promotional post with a keyboard to send it to all post
// channels or to one of them.
func (b *Bot) cmdPost(ctx context.Context, msg *telegram.Message, caller int64) error {
	chat := msg.Chat.ID
	if msg.Chat.Type == telegram.ChatPrivate {
		return b.reject(ctx, chat, "post", replyChannelOnly)
	}
	p, err := b.Broadcast.Preview(ctx, strconv.FormatInt(chat, 10), caller)
	if err != nil {
		return b.replyErr(ctx, chat, "post", err)
	}
	return b.replyOK(ctx, chat, "post", previewReply(p), previewKeyboard(ctx, p))
}

// recordReport counts and logs the outcome of a broadcast.
func (b *Bot) recordReport(ctx context.Context, rep *services.Report) {
	deliveriesTotal.WithLabelValues("ok").Add(float64(rep.SuccessCount))
	deliveriesTotal.WithLabelValues("failed").Add(float64(len(rep.Failures)))
	lg := zerolog.Ctx(ctx)
	for _, f := range rep.Failures {
		lg.Warn().Str("post_channel_id", f.ChannelID).Str("reason", f.Reason).Msg("broadcast delivery failed")
	}
	lg.Info().Int("delivered", rep.SuccessCount).Int("failed", len(rep.Failures)).Msg("broadcast finished")
}

func (b *Bot) cmdSetOwner(ctx context.Context, msg *telegram.Message, secret string) error {
	chat := msg.Chat.ID
	if msg.Chat.Type != telegram.ChatPrivate || msg.From == nil {
		return b.reject(ctx, chat, "setowner", replyPrivateOnly)
	}
	if b.opts.ClaimSecret == "" {
		return b.reject(ctx, chat, "setowner", replyClaimDisabled)
	}
	if subtle.ConstantTimeCompare([]byte(secret), []byte(b.opts.ClaimSecret)) != 1 {
		zerolog.Ctx(ctx).Warn().Int64("user_id", msg.From.ID).Msg("owner claim with wrong secret")
		return b.reject(ctx, chat, "setowner", replyClaimBad)
	}
	if err := b.Registry.SetOwner(ctx, msg.From.ID); err != nil {
		return b.replyErr(ctx, chat, "setowner", err)
	}
	zerolog.Ctx(ctx).Info().Int64("user_id", msg.From.ID).Msg("owner claimed")
	return b.replyOK(ctx, chat, "setowner", replyClaimOK, nil)
}

func (b *Bot) cmdStats(ctx context.Context, chat, caller int64) error {
	st, err := b.Registry.Stats(ctx, caller)
	if err != nil {
		return b.replyErr(ctx, chat, "stats", err)
	}
	return b.replyOK(ctx, chat, "stats", statsReply(st), nil)
}

func (b *Bot) cmdStartToken(ctx context.Context, chat int64, token string) error {
	l, err := b.Links.ResolveToken(ctx, token)
	if err != nil {
		if errors.Is(err, services.ErrLinkNotFound) {
			referralStarts.WithLabelValues("unknown").Inc()
		} else {
			referralStarts.WithLabelValues("error").Inc()
		}
		return b.replyErr(ctx, chat, "start", err)
	}
	referralStarts.WithLabelValues("ok").Inc()
	zerolog.Ctx(ctx).Info().
		Str("request_channel_id", l.RequestChannelID).
		Str("post_channel_id", l.PostChannelID).
		Msg("referral link opened")
	return b.replyOK(ctx, chat, "start", startReply(l.RequestChannel.Name, l.PostChannel.Name), nil)
}
