package bot

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tbourn/go-referral-bot/internal/repo"
	"github.com/tbourn/go-referral-bot/internal/services"
	"github.com/tbourn/go-referral-bot/internal/telegram"
)

const (
	ownerID int64 = 111
	otherID int64 = 222
	adminID int64 = 333
	botID   int64 = 999
	reqChan int64 = -100900
	groupID int64 = -100777
)

const (
	postA    = "-100111"
	postB    = "-100222"
	postC    = "-100333"
	botLogin = "ref_bot"
)

// ----- Fake messenger (services side) -----

type broadcastMsg struct {
	ChatID  string
	Text    string
	Buttons []services.Button
}

type fakeMessenger struct {
	mu    sync.Mutex
	chats map[string]services.ChatInfo
	roles map[string]map[int64]services.Role
	sent  []broadcastMsg
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		chats: map[string]services.ChatInfo{},
		roles: map[string]map[int64]services.Role{},
	}
}

func (m *fakeMessenger) setRole(chatID string, userID int64, r services.Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.roles[chatID] == nil {
		m.roles[chatID] = map[int64]services.Role{}
	}
	m.roles[chatID][userID] = r
}

func (m *fakeMessenger) ResolveChat(_ context.Context, chatID string) (services.ChatInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.chats[chatID]
	if !ok {
		return services.ChatInfo{}, errors.New("Bad Request: chat not found")
	}
	return info, nil
}

func (m *fakeMessenger) GetMembership(_ context.Context, chatID string, userID int64) (services.Role, error) {
	// A channel signing its own post, as the real adapter does.
	if strconv.FormatInt(userID, 10) == chatID {
		return services.RoleCreator, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.roles[chatID][userID]; ok {
		return r, nil
	}
	return services.RoleLeft, nil
}

func (m *fakeMessenger) SendMessage(_ context.Context, chatID, text string, buttons []services.Button) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, broadcastMsg{ChatID: chatID, Text: text, Buttons: buttons})
	return nil
}

func (m *fakeMessenger) Self(context.Context) (services.Identity, error) {
	return services.Identity{ID: botID, Username: botLogin}, nil
}

// ----- Fake Telegram API (replies) -----

type fakeAPI struct {
	mu      sync.Mutex
	sent    []telegram.SendMessageParams
	edits   []telegram.EditMessageTextParams
	answers map[string]string
	editErr error
}

func (a *fakeAPI) SendMessage(_ context.Context, p telegram.SendMessageParams) (*telegram.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, p)
	return &telegram.Message{MessageID: int64(len(a.sent))}, nil
}

func (a *fakeAPI) EditMessageText(_ context.Context, p telegram.EditMessageTextParams) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.editErr != nil {
		return a.editErr
	}
	a.edits = append(a.edits, p)
	return nil
}

func (a *fakeAPI) AnswerCallbackQuery(_ context.Context, queryID, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.answers == nil {
		a.answers = map[string]string{}
	}
	a.answers[queryID] = text
	return nil
}

func (a *fakeAPI) lastText(t *testing.T) string {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	require.NotEmpty(t, a.sent, "no reply sent")
	return a.sent[len(a.sent)-1].Text
}

// ----- Fixture -----

type fixture struct {
	db  *gorm.DB
	m   *fakeMessenger
	api *fakeAPI
	bot *Bot

	nextUpdate int64
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	require.NoError(t, repo.AutoMigrate(db))

	m := newFakeMessenger()
	id := services.NewIdentityCache(m)
	reg := services.NewRegistryService(db, m, id)
	links := services.NewLinkService(db, id)
	bc := services.NewBroadcastService(db, m, links)
	api := &fakeAPI{}

	return &fixture{db: db, m: m, api: api, bot: New(api, db, reg, links, bc, opts)}
}

func (f *fixture) setOwner(t *testing.T) {
	t.Helper()
	require.NoError(t, f.bot.Registry.SetOwner(context.Background(), ownerID))
}

// addPost makes chatID resolvable with the bot as admin and registers it.
func (f *fixture) addPost(t *testing.T, chatID, title string) {
	t.Helper()
	f.knowPost(chatID, title)
	_, err := f.bot.Registry.AddPostChannel(context.Background(), ownerID, chatID)
	require.NoError(t, err)
}

func (f *fixture) knowPost(chatID, title string) {
	f.m.mu.Lock()
	f.m.chats[chatID] = services.ChatInfo{ID: chatID, Title: title, Type: "channel"}
	f.m.mu.Unlock()
	f.m.setRole(chatID, botID, services.RoleAdministrator)
}

func (f *fixture) dispatch(t *testing.T, u telegram.Update) error {
	t.Helper()
	f.nextUpdate++
	u.UpdateID = f.nextUpdate
	return f.bot.HandleUpdate(context.Background(), &u)
}

// private is a message from userID in their private chat with the bot.
func private(userID int64, text string) telegram.Update {
	return telegram.Update{Message: &telegram.Message{
		MessageID: 1,
		From:      &telegram.User{ID: userID, FirstName: "U"},
		Chat:      telegram.Chat{ID: userID, Type: telegram.ChatPrivate},
		Text:      text,
	}}
}

// channelPost is text posted in channel chatID, signed by the channel.
func channelPost(chatID int64, title, text string) telegram.Update {
	ch := telegram.Chat{ID: chatID, Type: telegram.ChatChannel, Title: title}
	return telegram.Update{ChannelPost: &telegram.Message{
		MessageID:  1,
		SenderChat: &ch,
		Chat:       ch,
		Text:       text,
	}}
}

// groupMsg is text sent by userID in group chatID.
func groupMsg(chatID, userID int64, title, text string) telegram.Update {
	return telegram.Update{Message: &telegram.Message{
		MessageID: 1,
		From:      &telegram.User{ID: userID, FirstName: "U"},
		Chat:      telegram.Chat{ID: chatID, Type: telegram.ChatSupergroup, Title: title},
		Text:      text,
	}}
}

func callback(userID int64, data string) telegram.Update {
	return telegram.Update{CallbackQuery: &telegram.CallbackQuery{
		ID:   "q-" + data,
		From: telegram.User{ID: userID, FirstName: "U"},
		Data: data,
		Message: &telegram.Message{
			MessageID: 42,
			Chat:      telegram.Chat{ID: userID, Type: telegram.ChatPrivate},
		},
	}}
}

// channelCallback is userID pressing a button under a message in chatID.
func channelCallback(chatID, userID int64, data string) telegram.Update {
	u := callback(userID, data)
	u.CallbackQuery.Message.Chat = telegram.Chat{ID: chatID, Type: telegram.ChatChannel, Title: "Requests"}
	return u
}
