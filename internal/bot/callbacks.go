package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-referral-bot/internal/domain"
	"github.com/tbourn/go-referral-bot/internal/services"
	"github.com/tbourn/go-referral-bot/internal/telegram"
	"github.com/tbourn/go-referral-bot/internal/utils"
)

// renderList builds one page of the post channel list: a remove button per
// channel plus prev/next buttons. page is clamped to the last page.
func (b *Bot) renderList(ctx context.Context, caller int64, page int) (string, *telegram.InlineKeyboardMarkup, error) {
	page, size, _ := utils.Page(page, b.opts.PageSize, DefaultPageSize)

	items, total, err := b.Registry.ListPostChannelsPage(ctx, caller, page, size)
	if err != nil {
		return "", nil, err
	}
	if total == 0 {
		return replyNoChannels, nil, nil
	}
	pages := utils.TotalPages(total, size)
	if page > pages {
		// Channels were removed since the page button was rendered.
		page = pages
		if items, _, err = b.Registry.ListPostChannelsPage(ctx, caller, page, size); err != nil {
			return "", nil, err
		}
	}

	rows := make([][]telegram.InlineKeyboardButton, 0, len(items)+1)
	for _, pc := range items {
		data, err := domain.RemovePostChannelAction(pc.ChannelID).Encode()
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("post_channel_id", pc.ChannelID).Msg("remove button skipped")
			continue
		}
		rows = append(rows, []telegram.InlineKeyboardButton{{Text: "❌ " + pc.Name, CallbackData: data}})
	}

	var nav []telegram.InlineKeyboardButton
	if page > 1 {
		data, _ := domain.ListPageAction(page - 1).Encode()
		nav = append(nav, telegram.InlineKeyboardButton{Text: "« Prev", CallbackData: data})
	}
	if page < pages {
		data, _ := domain.ListPageAction(page + 1).Encode()
		nav = append(nav, telegram.InlineKeyboardButton{Text: "Next »", CallbackData: data})
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	return listHeader(page, pages), &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}, nil
}

// previewKeyboard offers "all channels", one button per post channel, and
// cancel.
func previewKeyboard(ctx context.Context, p *services.Preview) *telegram.InlineKeyboardMarkup {
	all, _ := domain.SendAllAction().Encode()
	rows := make([][]telegram.InlineKeyboardButton, 0, len(p.Channels)+2)
	rows = append(rows, []telegram.InlineKeyboardButton{{Text: "🌐 Post to ALL channels", CallbackData: all}})
	for _, pc := range p.Channels {
		data, err := domain.SendOneAction(pc.ChannelID).Encode()
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("post_channel_id", pc.ChannelID).Msg("send button skipped")
			continue
		}
		rows = append(rows, []telegram.InlineKeyboardButton{{Text: "📢 " + pc.Name, CallbackData: data}})
	}
	cancel, _ := domain.CancelAction().Encode()
	rows = append(rows, []telegram.InlineKeyboardButton{{Text: "❌ Cancel", CallbackData: cancel}})
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// handleCallback runs a button action. Results are shown by editing the
// message that carried the button; refusals are shown as a toast so the
// list or preview is left intact.
func (b *Bot) handleCallback(ctx context.Context, q *telegram.CallbackQuery) error {
	act, err := domain.ParseAction(q.Data)
	if err != nil || q.Message == nil {
		zerolog.Ctx(ctx).Debug().Str("data", q.Data).Msg("unsupported callback")
		return b.API.AnswerCallbackQuery(ctx, q.ID, "Unsupported action.")
	}
	lg := zerolog.Ctx(ctx).With().Str("command", "cb_"+act.Kind.String()).Logger()
	ctx = lg.WithContext(ctx)

	var (
		command = "cb_" + act.Kind.String()
		text    string
		markup  *telegram.InlineKeyboardMarkup
	)
	switch act.Kind {
	case domain.ActionRemovePostChannel:
		name, removed, rerr := b.Registry.RemovePostChannel(ctx, q.From.ID, act.ChannelID)
		err = rerr
		switch {
		case err != nil:
		case removed:
			text = removedReply(name)
			lg.Info().Str("post_channel_id", act.ChannelID).Msg("post channel removed")
		default:
			text = replyNotFound
		}
	case domain.ActionListPage:
		text, markup, err = b.renderList(ctx, q.From.ID, act.Page)
	case domain.ActionSendAll, domain.ActionSendOne:
		// The preview lives in the request channel it was asked for.
		var rep *services.Report
		rep, err = b.Broadcast.BroadcastTo(ctx, strconv.FormatInt(q.Message.Chat.ID, 10), q.From.ID, act.ChannelID)
		if err == nil {
			b.recordReport(ctx, rep)
			text = reportReply(rep)
		}
	case domain.ActionCancel:
		if err = b.Broadcast.Authorize(ctx, strconv.FormatInt(q.Message.Chat.ID, 10), q.From.ID); err == nil {
			text = replyPostCancelled
		}
	}

	if err != nil {
		toast, internal := errorReply(err)
		outcome := "rejected"
		if internal {
			outcome = "error"
		}
		commandsTotal.WithLabelValues(command, outcome).Inc()
		lg.Info().Err(err).Str("outcome", outcome).Msg("callback failed")
		if aerr := b.API.AnswerCallbackQuery(ctx, q.ID, toast); aerr != nil {
			return errors.Join(err, aerr)
		}
		if internal {
			return err
		}
		return nil
	}

	commandsTotal.WithLabelValues(command, "ok").Inc()
	err = b.API.EditMessageText(ctx, telegram.EditMessageTextParams{
		ChatID:      strconv.FormatInt(q.Message.Chat.ID, 10),
		MessageID:   q.Message.MessageID,
		Text:        text,
		ReplyMarkup: markup,
	})
	if err != nil && !telegram.IsMessageNotModified(err) {
		_ = b.API.AnswerCallbackQuery(ctx, q.ID, "")
		return fmt.Errorf("edit %s message: %w", act.Kind, err)
	}
	return b.API.AnswerCallbackQuery(ctx, q.ID, "")
}
