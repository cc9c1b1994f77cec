// Package services – Messenger
//
// This file declares the messaging capabilities the services need from the
// chat platform. The Telegram adapter in internal/telegram implements it;
// tests use in-memory fakes.
package services

import "context"

// Role is a user's membership status in a chat.
type Role string

const (
	RoleCreator       Role = "creator"
	RoleAdministrator Role = "administrator"
	RoleMember        Role = "member"
	RoleRestricted    Role = "restricted"
	RoleLeft          Role = "left"
	RoleKicked        Role = "kicked"
)

// IsAdmin reports whether the role may manage the chat.
func (r Role) IsAdmin() bool {
	return r == RoleCreator || r == RoleAdministrator
}

// ChatInfo is the subset of chat metadata the services use.
type ChatInfo struct {
	ID       string
	Title    string
	Username string
	Type     string
}

// Identity identifies the bot account itself.
type Identity struct {
	ID       int64
	Username string
}

// Button is a URL button attached to an outgoing message.
type Button struct {
	Text string
	URL  string
}

// Messenger is the outbound side of the chat platform.
type Messenger interface {
	// ResolveChat looks up a chat by numeric id or @username.
	ResolveChat(ctx context.Context, chatID string) (ChatInfo, error)
	// GetMembership returns userID's role in chatID.
	GetMembership(ctx context.Context, chatID string, userID int64) (Role, error)
	// SendMessage posts text to chatID with one row of URL buttons per entry.
	SendMessage(ctx context.Context, chatID, text string, buttons []Button) error
	// Self returns the bot's own account.
	Self(ctx context.Context) (Identity, error)
}
