// Package domain defines the persistence models for the owner, post channels,
// request channels and referral links. These types are mapped with GORM and
// form the core data layer of the referral bot.
package domain

import "time"

// OwnerKey is the fixed primary key of the singleton owner row.
const OwnerKey = 1

// Owner is the single user allowed to manage post channels. There is at most
// one row; writing it again replaces the previous owner.
//
// Fields:
//   - ID: always OwnerKey.
//   - UserID: platform user identifier of the owner.
//   - UpdatedAt: when the owner was last (re)assigned.
type Owner struct {
	ID        int       `json:"-"          gorm:"primaryKey;autoIncrement:false"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);not null"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Owner.
func (Owner) TableName() string { return "owners" }

// PostChannel is a broadcast destination the bot administers.
//
// Fields:
//   - ChannelID: platform chat identifier (e.g. "-100123…"); primary key.
//   - Name: display name resolved from the platform when the channel was added.
//   - AddedAt: time of the last add (re-adding overwrites it).
type PostChannel struct {
	ChannelID string    `json:"channel_id" gorm:"type:varchar(64);primaryKey"`
	Name      string    `json:"name"       gorm:"type:varchar(255);not null"`
	AddedAt   time.Time `json:"added_at"   gorm:"not null;index"`
}

// TableName returns the database table name for PostChannel.
func (PostChannel) TableName() string { return "post_channels" }

// RequestChannel is a channel whose admins generate referral links through
// the bot and broadcast them to every post channel.
type RequestChannel struct {
	ChannelID    string    `json:"channel_id"    gorm:"type:varchar(64);primaryKey"`
	Name         string    `json:"name"          gorm:"type:varchar(255);not null"`
	RegisteredAt time.Time `json:"registered_at" gorm:"not null"`
}

// TableName returns the database table name for RequestChannel.
func (RequestChannel) TableName() string { return "request_channels" }

// ReferralLink binds a random token to one (request channel, post channel)
// pair. At most one link exists per pair; regenerating the links of a request
// channel replaces every row and invalidates the old tokens.
//
// Fields:
//   - ID: surrogate UUID primary key.
//   - RequestChannelID / PostChannelID: the pair, unique together.
//   - Token: globally unique opaque token embedded in the deep link.
//   - Title: label of the link (the post channel name at generation time).
//   - Position: enumeration order of the post channel within one generation.
//   - CreatedAt: generation time.
//   - PostChannel / RequestChannel: FK associations; links are cascade-deleted
//     with their post channel.
type ReferralLink struct {
	ID               string    `json:"id"                 gorm:"type:char(36);primaryKey"`
	RequestChannelID string    `json:"request_channel_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_link_pair,priority:1;index:idx_link_order,priority:1"`
	PostChannelID    string    `json:"post_channel_id"    gorm:"type:varchar(64);not null;uniqueIndex:ux_link_pair,priority:2;index"`
	Token            string    `json:"token"              gorm:"type:varchar(64);not null;uniqueIndex:ux_link_token"`
	Title            string    `json:"title"              gorm:"type:varchar(255);not null"`
	Position         int       `json:"position"           gorm:"not null;default:0;index:idx_link_order,priority:3"`
	CreatedAt        time.Time `json:"created_at"         gorm:"not null;index:idx_link_order,priority:2"`

	PostChannel    PostChannel    `json:"-" gorm:"foreignKey:PostChannelID;references:ChannelID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	RequestChannel RequestChannel `json:"-" gorm:"foreignKey:RequestChannelID;references:ChannelID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ReferralLink.
func (ReferralLink) TableName() string { return "referral_links" }
