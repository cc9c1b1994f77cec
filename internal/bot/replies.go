package bot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tbourn/go-referral-bot/internal/repo"
	"github.com/tbourn/go-referral-bot/internal/services"
)

const helpText = "🤖 Channel Referral Bot\n\n" +
	"Owner commands:\n" +
	"/add <channel_id> - Add a post channel (I must be admin there)\n" +
	"/list - List post channels with remove buttons\n" +
	"/stats - Show registry counts\n\n" +
	"Channel admin commands (send inside your channel):\n" +
	"/req - Register this channel and get one referral link per post channel\n" +
	"/send - Post this channel's promo with its referral link to every post channel\n" +
	"/send <channel_id> - Post it to one post channel only\n" +
	"/post - Preview the promo and choose where to post it\n\n" +
	"/setowner <secret> - Claim the bot (private chat only)\n" +
	"/help - Show this message"

const (
	replyUnauthorized   = "❌ You are not authorized to use this command."
	replyOwnerNotSet    = "❌ No owner is configured yet. Claim the bot with /setowner <secret>."
	replyForbidden      = "❌ Only admins of this channel can do that."
	replyPermission     = "❌ Could not verify your permissions here. Make sure I am an admin of this chat."
	replyBotNotAdmin    = "❌ I must be an admin in that channel!"
	replyResolution     = "❌ Could not find that channel. Use @username for public or -100ID for private channels, and add me as admin."
	replyInvalidID      = "❌ Invalid channel id. Use @username or a numeric id starting with -100."
	replyNotRegistered  = "❌ This channel is not registered. Send /req here first."
	replyNoDestinations = "📭 No post channels configured yet."
	replyLinkNotFound   = "❌ This link is no longer valid."
	replyInternal       = "⚠️ Something went wrong. Please try again later."

	replyAddUsage      = "Usage: /add <channel_id>"
	replyChannelOnly   = "❌ Send this command inside the channel or group it should apply to."
	replyPrivateOnly   = "❌ Send /setowner in a private chat with me."
	replyClaimDisabled = "❌ Owner claim is disabled."
	replyClaimBad      = "❌ Invalid secret."
	replyClaimOK       = "✅ You are now the owner of this bot."
	replyUnknown       = "Unknown command. Send /help for usage."
	replyNoChannels    = "📭 No channels in database. Use /add to add channels."
	replyNotFound      = "❌ Channel not found in database."
	replyPostCancelled = "❌ Post cancelled."
)

// errorReply maps a service error to the text shown to the caller. internal
// reports whether err is unexpected and worth logging as an error.
func errorReply(err error) (text string, internal bool) {
	switch {
	// Wrapping sentinels come before the ones they wrap.
	case errors.Is(err, services.ErrOwnerNotSet):
		return replyOwnerNotSet, false
	case errors.Is(err, services.ErrUnauthorized):
		return replyUnauthorized, false
	case errors.Is(err, services.ErrForbidden):
		return replyForbidden, false
	case errors.Is(err, services.ErrPermissionCheck):
		return replyPermission, false
	case errors.Is(err, services.ErrBotNotAdmin):
		return replyBotNotAdmin, false
	case errors.Is(err, services.ErrChannelResolution):
		return replyResolution, false
	case errors.Is(err, services.ErrInvalidChannelID):
		return replyInvalidID, false
	case errors.Is(err, services.ErrNotRegistered):
		return replyNotRegistered, false
	case errors.Is(err, services.ErrNoDestinations):
		return replyNoDestinations, false
	case errors.Is(err, services.ErrPostChannelNotFound):
		return replyNotFound, false
	case errors.Is(err, services.ErrLinkNotFound):
		return replyLinkNotFound, false
	default:
		return replyInternal, true
	}
}

func addedReply(name string) string {
	return fmt.Sprintf("✅ Channel '%s' added successfully!", name)
}

func removedReply(name string) string {
	return fmt.Sprintf("✅ Channel '%s' removed successfully!\n\nUse /list to see remaining channels.", name)
}

func listHeader(page, pages int) string {
	if pages <= 1 {
		return "📋 Channel List\nClick on a channel to remove it:"
	}
	return fmt.Sprintf("📋 Channel List (page %d/%d)\nClick on a channel to remove it:", page, pages)
}

// linksReply renders the links generated for a request channel.
func linksReply(channelName string, links []services.ResolvedLink) string {
	if len(links) == 0 {
		return fmt.Sprintf("✅ '%s' registered, but there are no post channels yet.", channelName)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🔗 Referral links for '%s':\n", channelName)
	for _, l := range links {
		fmt.Fprintf(&b, "\n• %s\n%s\n", l.PostChannelName, l.URL)
	}
	return strings.TrimRight(b.String(), "\n")
}

// reportReply renders a broadcast report.
func reportReply(r *services.Report) string {
	s := fmt.Sprintf("✅ Posted to %d channel(s)", r.SuccessCount)
	if len(r.Failures) == 0 {
		return s
	}
	failed := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		failed = append(failed, f.Error())
	}
	return s + "\n❌ Failed: " + strings.Join(failed, ", ")
}

// previewReply renders the post a /post preview would send.
func previewReply(p *services.Preview) string {
	var b strings.Builder
	b.WriteString("📄 Post Preview:\n\n")
	b.WriteString(p.Text)
	b.WriteString("\n")
	for _, l := range p.ButtonLabels {
		fmt.Fprintf(&b, "\n[%s]", l)
	}
	b.WriteString("\n\nSelect where to post:")
	return b.String()
}

func statsReply(st repo.Stats) string {
	last := "never"
	if st.LastGeneratedAt != nil {
		last = st.LastGeneratedAt.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("📊 Stats\n\nPost channels: %d\nRequest channels: %d\nReferral links: %d\nLast generated: %s",
		st.PostChannels, st.RequestChannels, st.ReferralLinks, last)
}

func startReply(requestName, postName string) string {
	return fmt.Sprintf("👋 Welcome! '%s' invited you to join '%s'.", requestName, postName)
}
