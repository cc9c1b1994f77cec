// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers.
package domain

import "time"

// ProcessedUpdate records a Telegram update that has already been handled,
// keyed by its update_id. Telegram redelivers webhook updates that were not
// acknowledged in time, and a restarted poller may fetch the last batch
// again; a row here turns the second delivery into a no-op.
type ProcessedUpdate struct {
	ID          string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UpdateID    int64     `gorm:"type:INTEGER NOT NULL;uniqueIndex:ux_processed_update"`
	Kind        string    `gorm:"type:TEXT NOT NULL"`
	ChatID      string    `gorm:"type:TEXT NOT NULL;default:''"`
	ProcessedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt   time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (ProcessedUpdate) TableName() string { return "processed_updates" }
