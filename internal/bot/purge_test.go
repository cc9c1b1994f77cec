package bot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-referral-bot/internal/domain"
	"github.com/tbourn/go-referral-bot/internal/repo"
)

func TestPurgeExpired(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := repo.MarkUpdateProcessed(ctx, f.db, 1, "message", "1", time.Millisecond)
	require.NoError(t, err)
	_, err = repo.MarkUpdateProcessed(ctx, f.db, 2, "message", "1", time.Hour)
	require.NoError(t, err)

	n, err := PurgeExpired(ctx, f.db, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	var left int64
	require.NoError(t, f.db.Model(&domain.ProcessedUpdate{}).Count(&left).Error)
	require.Equal(t, int64(1), left)
}

func TestRunPurger_StopsOnCancel(t *testing.T) {
	f := newFixture(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		RunPurger(ctx, f.db, 5*time.Millisecond)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("purger did not stop")
	}
}
