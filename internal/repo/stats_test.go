package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

)

var errForced = errors.New("forced select error")

func TestRegistryStats_CountError_NoTable(t *testing.T) {
	db := newRepoDB(t /* no migrations */)
	if _, err := RegistryStats(context.Background(), db); err == nil {
		t.Fatalf("expected error due to missing tables")
	}
}

func TestRegistryStats_ZeroRows(t *testing.T) {
	db := newRepoDB(t, allModels()...)
	s, err := RegistryStats(context.Background(), db)
	if err != nil {
		t.Fatalf("RegistryStats error: %v", err)
	}
	if s.PostChannels != 0 || s.RequestChannels != 0 || s.ReferralLinks != 0 || s.LastGeneratedAt != nil {
		t.Fatalf("expected zero stats, got %+v", s)
	}
}

func TestRegistryStats_CountsAndLatest(t *testing.T) {
	db := newRepoDB(t, allModels()...)
	ctx := context.Background()

	t1 := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC) // latest

	for _, id := range []string{"-1001", "-1002"} {
		if _, err := UpsertPostChannel(ctx, db, id, "ch", t1); err != nil {
			t.Fatal(err)
		}
	}
	for _, id := range []string{"-2001", "-2002", "-2003"} {
		if _, err := UpsertRequestChannel(ctx, db, id, "req", t1); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := ReplaceReferralLinks(ctx, db, "-2001", []NewReferralLink{
		{PostChannelID: "-1001", Token: "a", Title: "x"},
		{PostChannelID: "-1002", Token: "b", Title: "y"},
	}, t1); err != nil {
		t.Fatal(err)
	}
	if _, err := ReplaceReferralLinks(ctx, db, "-2002", []NewReferralLink{
		{PostChannelID: "-1001", Token: "c", Title: "x"},
	}, t2); err != nil {
		t.Fatal(err)
	}

	s, err := RegistryStats(ctx, db)
	if err != nil {
		t.Fatalf("RegistryStats: %v", err)
	}
	if s.PostChannels != 2 || s.RequestChannels != 3 || s.ReferralLinks != 3 {
		t.Fatalf("unexpected counts: %+v", s)
	}
	if s.LastGeneratedAt == nil || !s.LastGeneratedAt.Equal(t2) {
		t.Fatalf("LastGeneratedAt = %v; want %v", s.LastGeneratedAt, t2)
	}
}

func TestRegistryStats_SelectLatest_ErrorPath(t *testing.T) {
	db := newRepoDB(t, allModels()...)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := UpsertPostChannel(ctx, db, "-1001", "ch", now); err != nil {
		t.Fatal(err)
	}
	if _, err := UpsertRequestChannel(ctx, db, "-2001", "req", now); err != nil {
		t.Fatal(err)
	}
	if _, err := ReplaceReferralLinks(ctx, db, "-2001", []NewReferralLink{{PostChannelID: "-1001", Token: "a", Title: "x"}}, now); err != nil {
		t.Fatal(err)
	}

	// Force the latest-created_at query to fail after the counts succeed.
	cbName := "test:fail_select_latest"
	if err := db.Callback().Query().Before("gorm:query").Register(cbName, func(tx *gorm.DB) {
		if tx.Statement != nil && tx.Statement.Table == "referral_links" && len(tx.Statement.Selects) > 0 {
			_ = tx.AddError(errForced)
		}
	}); err != nil {
		t.Fatalf("register callback: %v", err)
	}
	t.Cleanup(func() { _ = db.Callback().Query().Remove(cbName) })

	if _, err := RegistryStats(ctx, db); err == nil {
		t.Fatalf("expected error from latest select")
	}
}
