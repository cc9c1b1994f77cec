// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for referral links.
//
// Links are always written as a full set per request channel: regeneration
// deletes the old rows and inserts the new ones inside one transaction, so a
// reader never observes a half-replaced set.
//
// Functions:
//
//   - ReplaceReferralLinks(ctx, db, requestChannelID, links, now) -> int, error
//     Deletes every link of the request channel, then inserts links in order.
//     Returns ErrDuplicate when a token collides with an existing one.
//   - ListReferralLinks(ctx, db, requestChannelID) -> []domain.ReferralLink, error
//     Ordered by created_at, then position. PostChannel is preloaded.
//   - GetReferralLink(ctx, db, requestChannelID, postChannelID) -> *domain.ReferralLink, error
//   - GetReferralLinkByToken(ctx, db, token) -> *domain.ReferralLink, error
//   - CountReferralLinks(ctx, db) -> int64, error
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-referral-bot/internal/domain"
)

// NewReferralLink is the input for one row of ReplaceReferralLinks.
type NewReferralLink struct {
	PostChannelID string
	Token         string
	Title         string
}

// ReplaceReferralLinks swaps the link set of requestChannelID for links.
// Position follows the slice order. An empty slice just clears the set.
func ReplaceReferralLinks(ctx context.Context, db *gorm.DB, requestChannelID string, links []NewReferralLink, now time.Time) (int, error) {
	now = now.UTC()
	rows := make([]domain.ReferralLink, 0, len(links))
	for i, l := range links {
		rows = append(rows, domain.ReferralLink{
			ID:               uuid.NewString(),
			RequestChannelID: requestChannelID,
			PostChannelID:    l.PostChannelID,
			Token:            l.Token,
			Title:            l.Title,
			Position:         i,
			CreatedAt:        now,
		})
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("request_channel_id = ?", requestChannelID).Delete(&domain.ReferralLink{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		// Omit associations so GORM does not try to upsert the channels.
		if err := tx.Omit("PostChannel", "RequestChannel").Create(&rows).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return err
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// ListReferralLinks returns the links of requestChannelID in generation
// order, with PostChannel populated.
func ListReferralLinks(ctx context.Context, db *gorm.DB, requestChannelID string) ([]domain.ReferralLink, error) {
	out := []domain.ReferralLink{}
	err := db.WithContext(ctx).
		Preload("PostChannel").
		Where("request_channel_id = ?", requestChannelID).
		Order("created_at asc").
		Order("position asc").
		Find(&out).Error
	return out, err
}

// GetReferralLink returns the link for one (request, post) pair, or ErrNotFound.
func GetReferralLink(ctx context.Context, db *gorm.DB, requestChannelID, postChannelID string) (*domain.ReferralLink, error) {
	var l domain.ReferralLink
	err := db.WithContext(ctx).
		Where("request_channel_id = ? AND post_channel_id = ?", requestChannelID, postChannelID).
		First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// GetReferralLinkByToken returns the link carrying token, with both channel
// associations loaded, or ErrNotFound.
func GetReferralLinkByToken(ctx context.Context, db *gorm.DB, token string) (*domain.ReferralLink, error) {
	var l domain.ReferralLink
	err := db.WithContext(ctx).
		Preload("PostChannel").
		Preload("RequestChannel").
		Where("token = ?", token).
		First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// CountReferralLinks returns the total number of stored links.
func CountReferralLinks(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.ReferralLink{}).Count(&total).Error
	return total, err
}
