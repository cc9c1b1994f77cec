package domain

import (
	"testing"
	"time"
)

func TestProcessedUpdate_Schema(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&ProcessedUpdate{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	m := db.Migrator()
	if !m.HasIndex(&ProcessedUpdate{}, "ux_processed_update") {
		t.Fatal("missing unique index ux_processed_update")
	}
	if !m.HasIndex(&ProcessedUpdate{}, "ExpiresAt") {
		t.Fatal("missing expires_at index used by purges")
	}
}

func TestProcessedUpdate_OneRowPerUpdateID(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&ProcessedUpdate{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	exp := time.Now().UTC().Add(48 * time.Hour)
	if err := db.Create(&ProcessedUpdate{ID: "a", UpdateID: 900, Kind: "callback_query", ExpiresAt: exp}).Error; err != nil {
		t.Fatalf("create: %v", err)
	}

	var got ProcessedUpdate
	if err := db.Take(&got, "update_id = ?", 900).Error; err != nil {
		t.Fatalf("take: %v", err)
	}
	if got.Kind != "callback_query" || got.ChatID != "" {
		t.Fatalf("unexpected row: %+v", got)
	}
	if got.ProcessedAt.IsZero() {
		t.Fatal("ProcessedAt not set by autoCreateTime")
	}

	// A redelivered update must not get a second row.
	if err := db.Create(&ProcessedUpdate{ID: "b", UpdateID: 900, Kind: "callback_query", ExpiresAt: exp}).Error; err == nil {
		t.Fatal("expected unique violation for repeated update_id")
	}
}

func TestProcessedUpdate_KindRequired(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&ProcessedUpdate{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	err := db.Exec(
		`INSERT INTO processed_updates (id, update_id, kind, processed_at, expires_at) VALUES (?, ?, NULL, ?, ?)`,
		"x", 7, time.Now(), time.Now(),
	).Error
	if err == nil {
		t.Fatal("expected NOT NULL violation for kind")
	}
}
