package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-referral-bot/internal/repo"
)

// ----- Fake messenger -----

type sentMessage struct {
	ChatID  string
	Text    string
	Buttons []Button
}

type fakeMessenger struct {
	mu sync.Mutex

	chats      map[string]ChatInfo
	resolveErr error

	// roles[chatID][userID]
	roles         map[string]map[int64]Role
	membershipErr error

	sendErr map[string]error
	sent    []sentMessage

	self      Identity
	selfErr   error
	selfCalls int
	selfGate  chan struct{} // when set, Self blocks until closed or ctx is done
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		chats:   map[string]ChatInfo{},
		roles:   map[string]map[int64]Role{},
		sendErr: map[string]error{},
		self:    Identity{ID: 999, Username: "ref_bot"},
	}
}

func (m *fakeMessenger) addChat(id, title string) {
	m.chats[id] = ChatInfo{ID: id, Title: title, Type: "channel"}
}

func (m *fakeMessenger) setRole(chatID string, userID int64, r Role) {
	if m.roles[chatID] == nil {
		m.roles[chatID] = map[int64]Role{}
	}
	m.roles[chatID][userID] = r
}

func (m *fakeMessenger) ResolveChat(ctx context.Context, chatID string) (ChatInfo, error) {
	if m.resolveErr != nil {
		return ChatInfo{}, m.resolveErr
	}
	info, ok := m.chats[chatID]
	if !ok {
		return ChatInfo{}, fmt.Errorf("Bad Request: chat not found")
	}
	return info, nil
}

func (m *fakeMessenger) GetMembership(ctx context.Context, chatID string, userID int64) (Role, error) {
	if m.membershipErr != nil {
		return "", m.membershipErr
	}
	if r, ok := m.roles[chatID][userID]; ok {
		return r, nil
	}
	return RoleLeft, nil
}

func (m *fakeMessenger) SendMessage(ctx context.Context, chatID, text string, buttons []Button) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.sendErr[chatID]; err != nil {
		return err
	}
	m.sent = append(m.sent, sentMessage{ChatID: chatID, Text: text, Buttons: buttons})
	return nil
}

func (m *fakeMessenger) Self(ctx context.Context) (Identity, error) {
	m.mu.Lock()
	m.selfCalls++
	gate := m.selfGate
	m.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Identity{}, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.selfErr != nil {
		return Identity{}, m.selfErr
	}
	return m.self, nil
}

// ----- Fake token source -----

type seqTokens struct {
	n   int
	err error
}

func (s *seqTokens) Generate() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.n++
	return fmt.Sprintf("tok%019d", s.n), nil
}

// ----- Fixture -----

const (
	ownerID int64 = 111
	otherID int64 = 222
	adminID int64 = 333
)

var errBoom = errors.New("boom")

type fixture struct {
	db        *gorm.DB
	m         *fakeMessenger
	id        *IdentityCache
	registry  *RegistryService
	links     *LinkService
	broadcast *BroadcastService
}

func newServicesDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), fmt.Sprintf("svc_%d.db", time.Now().UnixNano())))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newServicesDB(t)
	m := newFakeMessenger()
	id := NewIdentityCache(m)
	links := NewLinkService(db, id)
	return &fixture{
		db:        db,
		m:         m,
		id:        id,
		registry:  NewRegistryService(db, m, id),
		links:     links,
		broadcast: NewBroadcastService(db, m, links),
	}
}

// addPost registers a post channel that the bot administers.
func (f *fixture) addPost(t *testing.T, id, title string) {
	t.Helper()
	f.m.addChat(id, title)
	f.m.setRole(id, f.m.self.ID, RoleAdministrator)
	if _, err := f.registry.AddPostChannel(context.Background(), ownerID, id); err != nil {
		t.Fatalf("AddPostChannel(%s): %v", id, err)
	}
}

func (f *fixture) setOwner(t *testing.T) {
	t.Helper()
	if err := f.registry.SetOwner(context.Background(), ownerID); err != nil {
		t.Fatalf("SetOwner: %v", err)
	}
}
