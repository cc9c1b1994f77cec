package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tbourn/go-referral-bot/internal/utils"
)

// ActionKind enumerates the button actions the bot understands.
type ActionKind int

const (
	// ActionUnknown is the zero value; it never encodes.
	ActionUnknown ActionKind = iota
	// ActionRemovePostChannel removes the post channel named by ChannelID.
	ActionRemovePostChannel
	// ActionListPage re-renders the post channel list at Page.
	ActionListPage
	// ActionSendAll broadcasts the previewed post to every post channel.
	ActionSendAll
	// ActionSendOne broadcasts the previewed post to ChannelID only.
	ActionSendOne
	// ActionCancel discards a preview.
	ActionCancel
)

// String returns the wire tag of the kind.
func (k ActionKind) String() string {
	switch k {
	case ActionRemovePostChannel:
		return "rm"
	case ActionListPage:
		return "pg"
	case ActionSendAll:
		return "sa"
	case ActionSendOne:
		return "s1"
	case ActionCancel:
		return "cx"
	default:
		return "unknown"
	}
}

// MaxActionDataLen is the Telegram limit for callback_data, in bytes.
const MaxActionDataLen = 64

// ErrInvalidAction is returned when callback data cannot be decoded.
var ErrInvalidAction = errors.New("invalid action")

// Action is a button action together with its payload. Only the payload field
// that matches Kind is meaningful.
type Action struct {
	Kind      ActionKind
	ChannelID string
	Page      int
}

// RemovePostChannelAction builds the action behind a "remove" button.
func RemovePostChannelAction(channelID string) Action {
	return Action{Kind: ActionRemovePostChannel, ChannelID: channelID}
}

// ListPageAction builds the action behind a pagination button.
func ListPageAction(page int) Action {
	return Action{Kind: ActionListPage, Page: page}
}

// SendAllAction builds the action behind the "all channels" button.
func SendAllAction() Action { return Action{Kind: ActionSendAll} }

// SendOneAction builds the action behind a single post channel button.
func SendOneAction(channelID string) Action {
	return Action{Kind: ActionSendOne, ChannelID: channelID}
}

// CancelAction builds the action behind a preview's cancel button.
func CancelAction() Action { return Action{Kind: ActionCancel} }

// Encode renders the action as callback data ("<tag>:<payload>", or the bare
// tag for kinds without a payload).
func (a Action) Encode() (string, error) {
	var out string
	switch a.Kind {
	case ActionRemovePostChannel, ActionSendOne:
		if strings.TrimSpace(a.ChannelID) == "" {
			return "", fmt.Errorf("%w: empty channel id", ErrInvalidAction)
		}
		out = a.Kind.String() + ":" + a.ChannelID
	case ActionListPage:
		if a.Page < 1 {
			return "", fmt.Errorf("%w: page must be >= 1", ErrInvalidAction)
		}
		out = a.Kind.String() + ":" + strconv.Itoa(a.Page)
	case ActionSendAll, ActionCancel:
		out = a.Kind.String()
	default:
		return "", fmt.Errorf("%w: unknown kind %d", ErrInvalidAction, a.Kind)
	}
	if len(out) > MaxActionDataLen {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidAction, len(out), MaxActionDataLen)
	}
	return out, nil
}

// ParseAction decodes callback data produced by Encode. Buttons rendered by
// the earlier "remove_<id>" format are still accepted.
func ParseAction(data string) (Action, error) {
	if id, ok := strings.CutPrefix(data, "remove_"); ok && id != "" {
		return RemovePostChannelAction(id), nil
	}
	switch data {
	case ActionSendAll.String():
		return SendAllAction(), nil
	case ActionCancel.String():
		return CancelAction(), nil
	}

	tag, payload, ok := strings.Cut(data, ":")
	if !ok || payload == "" {
		return Action{}, fmt.Errorf("%w: %q", ErrInvalidAction, data)
	}
	switch tag {
	case ActionRemovePostChannel.String():
		return RemovePostChannelAction(payload), nil
	case ActionSendOne.String():
		return SendOneAction(payload), nil
	case ActionListPage.String():
		n := utils.AtoiDefault(payload, 0)
		if n < 1 {
			return Action{}, fmt.Errorf("%w: bad page %q", ErrInvalidAction, payload)
		}
		return ListPageAction(n), nil
	}
	return Action{}, fmt.Errorf("%w: unknown tag %q", ErrInvalidAction, tag)
}
