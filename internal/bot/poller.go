package bot

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-referral-bot/internal/telegram"
)

// UpdateSource long-polls for updates. *telegram.Client implements it.
type UpdateSource interface {
	GetUpdates(ctx context.Context, p telegram.GetUpdatesParams) ([]telegram.Update, error)
}

// Poller defaults.
const (
	DefaultPollTimeout   = 50 * time.Second
	DefaultWorkers       = 4
	DefaultHandleTimeout = 2 * time.Minute
	pollLimit            = 100
	minBackoff           = time.Second
	maxBackoff           = time.Minute
)

// Poller feeds getUpdates results to a Handler.
//
// Updates are sharded over Workers goroutines by chat id, so updates of one
// chat are handled in arrival order while different chats run in parallel.
// On shutdown the poller stops fetching, lets workers drain what was already
// queued, and returns. Handled updates are acknowledged by the next
// getUpdates offset; anything unacknowledged is redelivered after a restart
// and dropped by the handler's update_id de-duplication.
type Poller struct {
	Source  UpdateSource
	Handler Handler

	Workers       int
	Timeout       time.Duration // long-poll timeout sent to the API
	HandleTimeout time.Duration // bound on a single update
}

// Run polls until ctx is cancelled. It returns nil on cancellation.
func (p *Poller) Run(ctx context.Context) error {
	if p.Source == nil || p.Handler == nil {
		return errors.New("poller: source and handler are required")
	}
	workers := p.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}

	queues := make([]chan telegram.Update, workers)
	var wg sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan telegram.Update, pollLimit)
		wg.Add(1)
		go func(q <-chan telegram.Update) {
			defer wg.Done()
			for u := range q {
				p.handle(ctx, u)
			}
		}(queues[i])
	}
	defer func() {
		for _, q := range queues {
			close(q)
		}
		wg.Wait()
	}()

	log.Info().Int("workers", workers).Dur("poll_timeout", timeout).Msg("polling for updates")

	var offset int64
	backoff := minBackoff
	for {
		if ctx.Err() != nil {
			return nil
		}
		ups, err := p.Source.GetUpdates(ctx, telegram.GetUpdatesParams{
			Offset:         offset,
			Limit:          pollLimit,
			Timeout:        int(timeout / time.Second),
			AllowedUpdates: telegram.AllowedUpdates,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait := backoff
			if ra, ok := telegram.IsRateLimited(err); ok && ra > 0 {
				wait = ra
			}
			log.Warn().Err(err).Dur("retry_in", wait).Msg("getUpdates failed")
			if !sleepCtx(ctx, wait) {
				return nil
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = minBackoff

		for _, u := range ups {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			select {
			case queues[shard(u.ChatID(), workers)] <- u:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// handle runs one update on a context that survives shutdown long enough to
// finish the reply. A panicking handler is logged and does not stop the worker.
func (p *Poller) handle(parent context.Context, u telegram.Update) {
	d := p.HandleTimeout
	if d <= 0 {
		d = DefaultHandleTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), d)
	defer cancel()
	defer func() {
		if rec := recover(); rec != nil {
			updatesTotal.WithLabelValues(u.Kind(), "panic").Inc()
			log.Error().
				Int64("update_id", u.UpdateID).
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic while handling update")
		}
	}()
	// HandleUpdate logs its own failures.
	_ = p.Handler.HandleUpdate(ctx, &u)
}

// shard maps a chat id to a worker index.
func shard(chatID int64, n int) int {
	return int(uint64(chatID) % uint64(n))
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
