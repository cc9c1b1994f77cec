// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the singleton
// Owner row.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-referral-bot/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// UpsertOwner stores userID as the owner, replacing any previous owner.
func UpsertOwner(ctx context.Context, db *gorm.DB, userID string) (*domain.Owner, error) {
	o := &domain.Owner{
		ID:        domain.OwnerKey,
		UserID:    userID,
		UpdatedAt: time.Now().UTC(),
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "updated_at"}),
		}).
		Create(o).Error
	if err != nil {
		return nil, err
	}
	return o, nil
}

// GetOwner returns the current owner, or ErrNotFound when none was set.
func GetOwner(ctx context.Context, db *gorm.DB) (*domain.Owner, error) {
	var o domain.Owner
	err := db.WithContext(ctx).First(&o, "id = ?", domain.OwnerKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// SeedOwner stores userID as the owner only when no owner exists yet. It
// reports whether a row was written.
func SeedOwner(ctx context.Context, db *gorm.DB, userID string) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&domain.Owner{ID: domain.OwnerKey, UserID: userID, UpdatedAt: time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
