// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the
// ProcessedUpdate model used to drop redelivered Telegram updates.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-referral-bot/internal/domain"
)

// ErrDuplicate indicates that a unique key (an update_id or a link token)
// already exists.
var ErrDuplicate = errors.New("duplicate")

// MarkUpdateProcessed records updateID as handled. It returns ErrDuplicate
// when the update was already recorded, which callers treat as "skip".
func MarkUpdateProcessed(ctx context.Context, db *gorm.DB, updateID int64, kind, chatID string, ttl time.Duration) (*domain.ProcessedUpdate, error) {
	now := time.Now().UTC()
	rec := &domain.ProcessedUpdate{
		ID:          uuid.NewString(),
		UpdateID:    updateID,
		Kind:        kind,
		ChatID:      chatID,
		ProcessedAt: now,
		ExpiresAt:   now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// PurgeProcessedUpdates deletes records that expired at or before now and
// returns how many were removed.
func PurgeProcessedUpdates(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now.UTC()).
		Delete(&domain.ProcessedUpdate{})
	return res.RowsAffected, res.Error
}

// isUniqueViolation matches both the translated GORM error and the plain-text
// errors glebarez/sqlite often returns for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}
