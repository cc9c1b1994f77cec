// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for post channels
// and request channels.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
//
// Upserts use INSERT … ON CONFLICT DO UPDATE rather than INSERT OR REPLACE:
// REPLACE deletes the old row first, which would fire the ON DELETE CASCADE
// on referral_links and silently drop every link of a re-added channel.
//
// Functions:
//
//   - UpsertPostChannel(ctx, db, id, name, now) -> *domain.PostChannel, error
//   - ListPostChannels(ctx, db) -> []domain.PostChannel, error
//     Ordered by added_at, then channel_id.
//   - GetPostChannel(ctx, db, id) -> *domain.PostChannel, error (ErrNotFound)
//   - DeletePostChannel(ctx, db, id) -> deleted bool, error
//     Removes the channel and its referral links in one transaction.
//   - UpsertRequestChannel(ctx, db, id, name, now) -> *domain.RequestChannel, error
//   - GetRequestChannel(ctx, db, id) -> *domain.RequestChannel, error (ErrNotFound)
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-referral-bot/internal/domain"
)

// UpsertPostChannel inserts a post channel or, when the id already exists,
// overwrites its name and added_at.
func UpsertPostChannel(ctx context.Context, db *gorm.DB, channelID, name string, now time.Time) (*domain.PostChannel, error) {
	pc := &domain.PostChannel{
		ChannelID: channelID,
		Name:      name,
		AddedAt:   now.UTC(),
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "channel_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "added_at"}),
		}).
		Create(pc).Error
	if err != nil {
		return nil, err
	}
	return pc, nil
}

// ListPostChannels returns every post channel, oldest first. It returns an
// empty slice when there are none.
func ListPostChannels(ctx context.Context, db *gorm.DB) ([]domain.PostChannel, error) {
	out := []domain.PostChannel{}
	err := db.WithContext(ctx).
		Order("added_at asc").
		Order("channel_id asc").
		Find(&out).Error
	return out, err
}

// CountPostChannels returns the number of post channels.
func CountPostChannels(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.PostChannel{}).Count(&total).Error
	return total, err
}

// ListPostChannelsPage returns one page of post channels in list order.
func ListPostChannelsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.PostChannel, error) {
	out := []domain.PostChannel{}
	err := db.WithContext(ctx).
		Order("added_at asc").
		Order("channel_id asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetPostChannel fetches a post channel by id, or ErrNotFound.
func GetPostChannel(ctx context.Context, db *gorm.DB, channelID string) (*domain.PostChannel, error) {
	var pc domain.PostChannel
	err := db.WithContext(ctx).First(&pc, "channel_id = ?", channelID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pc, nil
}

// DeletePostChannel removes the post channel and every referral link that
// points at it. Deleting an unknown id is not an error; deleted reports
// whether a channel row existed.
func DeletePostChannel(ctx context.Context, db *gorm.DB, channelID string) (deleted bool, err error) {
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_channel_id = ?", channelID).Delete(&domain.ReferralLink{}).Error; err != nil {
			return err
		}
		res := tx.Where("channel_id = ?", channelID).Delete(&domain.PostChannel{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	return deleted, err
}

// UpsertRequestChannel inserts a request channel or refreshes its name and
// registration time.
func UpsertRequestChannel(ctx context.Context, db *gorm.DB, channelID, name string, now time.Time) (*domain.RequestChannel, error) {
	rc := &domain.RequestChannel{
		ChannelID:    channelID,
		Name:         name,
		RegisteredAt: now.UTC(),
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "channel_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "registered_at"}),
		}).
		Create(rc).Error
	if err != nil {
		return nil, err
	}
	return rc, nil
}

// GetRequestChannel fetches a request channel by id, or ErrNotFound.
func GetRequestChannel(ctx context.Context, db *gorm.DB, channelID string) (*domain.RequestChannel, error) {
	var rc domain.RequestChannel
	err := db.WithContext(ctx).First(&rc, "channel_id = ?", channelID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rc, nil
}
