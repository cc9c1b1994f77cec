// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the aggregate query behind the owner's
// /stats command.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-referral-bot/internal/domain"
)

// Stats is a snapshot of the registry sizes.
type Stats struct {
	PostChannels    int64
	RequestChannels int64
	ReferralLinks   int64
	// LastGeneratedAt is the newest link creation time, nil without links.
	LastGeneratedAt *time.Time
}

// RegistryStats counts post channels, request channels and referral links,
// and finds the most recent link generation.
func RegistryStats(ctx context.Context, db *gorm.DB) (Stats, error) {
	var s Stats
	q := db.WithContext(ctx)

	if err := q.Model(&domain.PostChannel{}).Count(&s.PostChannels).Error; err != nil {
		return Stats{}, err
	}
	if err := q.Model(&domain.RequestChannel{}).Count(&s.RequestChannels).Error; err != nil {
		return Stats{}, err
	}
	if err := q.Model(&domain.ReferralLink{}).Count(&s.ReferralLinks).Error; err != nil {
		return Stats{}, err
	}
	if s.ReferralLinks == 0 {
		return s, nil
	}

	// Get latest created_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CreatedAt time.Time
	}
	if err := q.Model(&domain.ReferralLink{}).Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return Stats{}, err
	}
	s.LastGeneratedAt = &row.CreatedAt
	return s, nil
}
