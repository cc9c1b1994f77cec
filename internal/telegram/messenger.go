package telegram

import (
	"context"
	"strconv"

	"github.com/tbourn/go-referral-bot/internal/services"
)

// Messenger adapts a Client to services.Messenger.
type Messenger struct {
	Client *Client
}

var _ services.Messenger = (*Messenger)(nil)

// NewMessenger wraps c.
func NewMessenger(c *Client) *Messenger { return &Messenger{Client: c} }

// ResolveChat implements services.Messenger.
func (m *Messenger) ResolveChat(ctx context.Context, chatID string) (services.ChatInfo, error) {
	ch, err := m.Client.GetChat(ctx, chatID)
	if err != nil {
		return services.ChatInfo{}, err
	}
	title := ch.Title
	if title == "" {
		title = ch.FirstName
	}
	return services.ChatInfo{
		ID:       strconv.FormatInt(ch.ID, 10),
		Title:    title,
		Username: ch.Username,
		Type:     ch.Type,
	}, nil
}

// GetMembership implements services.Messenger.
//
// A post signed by the channel itself arrives without a user; the bot layer
// passes the channel id as userID. Only channel admins can publish there, so
// that sender is treated as the creator.
func (m *Messenger) GetMembership(ctx context.Context, chatID string, userID int64) (services.Role, error) {
	if strconv.FormatInt(userID, 10) == chatID {
		return services.RoleCreator, nil
	}
	cm, err := m.Client.GetChatMember(ctx, chatID, userID)
	if err != nil {
		return "", err
	}
	return services.Role(cm.Status), nil
}

// SendMessage implements services.Messenger. Each button gets its own row.
func (m *Messenger) SendMessage(ctx context.Context, chatID, text string, buttons []services.Button) error {
	p := SendMessageParams{ChatID: chatID, Text: text}
	if len(buttons) > 0 {
		kb := &InlineKeyboardMarkup{}
		for _, b := range buttons {
			kb.InlineKeyboard = append(kb.InlineKeyboard, []InlineKeyboardButton{{Text: b.Text, URL: b.URL}})
		}
		p.ReplyMarkup = kb
	}
	_, err := m.Client.SendMessage(ctx, p)
	return err
}

// Self implements services.Messenger.
func (m *Messenger) Self(ctx context.Context) (services.Identity, error) {
	u, err := m.Client.GetMe(ctx)
	if err != nil {
		return services.Identity{}, err
	}
	return services.Identity{ID: u.ID, Username: u.Username}, nil
}
