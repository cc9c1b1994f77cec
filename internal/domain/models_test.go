package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Enforce FKs on every pooled connection so cascades actually execute.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		(Owner{}).TableName():           "owners",
		(PostChannel{}).TableName():     "post_channels",
		(RequestChannel{}).TableName():  "request_channels",
		(ReferralLink{}).TableName():    "referral_links",
		(ProcessedUpdate{}).TableName(): "processed_updates",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestMigrations_Indexes_AndCascades(t *testing.T) {
	db := newDomainDB(t)

	if err := db.AutoMigrate(&Owner{}, &PostChannel{}, &RequestChannel{}, &ReferralLink{}, &ProcessedUpdate{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()

	for _, tbl := range []any{&Owner{}, &PostChannel{}, &RequestChannel{}, &ReferralLink{}, &ProcessedUpdate{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
	for _, idx := range []string{"ux_link_pair", "ux_link_token", "idx_link_order"} {
		if !m.HasIndex(&ReferralLink{}, idx) {
			t.Fatalf("expected index %s on referral_links", idx)
		}
	}
	if !m.HasIndex(&ProcessedUpdate{}, "ux_processed_update") {
		t.Fatalf("expected unique index ux_processed_update on processed_updates")
	}

	now := time.Now().UTC()
	if err := db.Create(&PostChannel{ChannelID: "-1001", Name: "News", AddedAt: now}).Error; err != nil {
		t.Fatalf("insert post channel: %v", err)
	}
	if err := db.Create(&RequestChannel{ChannelID: "-2001", Name: "Req", RegisteredAt: now}).Error; err != nil {
		t.Fatalf("insert request channel: %v", err)
	}
	link := &ReferralLink{ID: "l1", RequestChannelID: "-2001", PostChannelID: "-1001", Token: "tok1", Title: "News", CreatedAt: now}
	if err := db.Create(link).Error; err != nil {
		t.Fatalf("insert link: %v", err)
	}

	// Unique pair: a second link for the same pair is rejected.
	dup := &ReferralLink{ID: "l2", RequestChannelID: "-2001", PostChannelID: "-1001", Token: "tok2", Title: "News", CreatedAt: now}
	if err := db.Create(dup).Error; err == nil {
		t.Fatalf("expected unique violation on (request_channel_id, post_channel_id)")
	}

	// Unknown post channel violates the FK.
	orphan := &ReferralLink{ID: "l3", RequestChannelID: "-2001", PostChannelID: "-9999", Token: "tok3", Title: "x", CreatedAt: now}
	if err := db.Create(orphan).Error; err == nil {
		t.Fatalf("expected FK violation for unknown post channel")
	}

	// CASCADE: deleting the post channel deletes its links.
	if err := db.Delete(&PostChannel{}, "channel_id = ?", "-1001").Error; err != nil {
		t.Fatalf("delete post channel: %v", err)
	}
	var cnt int64
	if err := db.Model(&ReferralLink{}).Where("post_channel_id = ?", "-1001").Count(&cnt).Error; err != nil {
		t.Fatalf("count links: %v", err)
	}
	if cnt != 0 {
		t.Fatalf("expected links to cascade-delete with their post channel, got count=%d", cnt)
	}
}

func TestOwner_SingletonUpsertByKey(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&Owner{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	if err := db.Create(&Owner{ID: OwnerKey, UserID: "u1"}).Error; err != nil {
		t.Fatalf("insert owner: %v", err)
	}
	if err := db.Create(&Owner{ID: OwnerKey, UserID: "u2"}).Error; err == nil {
		t.Fatalf("expected primary key violation on second owner row")
	}
}
