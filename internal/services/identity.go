// Package services – IdentityCache
//
// The bot's own account (id and username) is needed to build deep links and
// to check that the bot administers a post channel. It never changes while
// the process runs, so it is fetched once on first use and reused.
package services

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// IdentityCache lazily loads and caches the bot identity. Concurrent first
// callers share one lookup; a failed lookup is not cached.
type IdentityCache struct {
	Messenger Messenger

	group singleflight.Group
	mu    sync.RWMutex
	self  *Identity
}

// NewIdentityCache returns a cache backed by m.
func NewIdentityCache(m Messenger) *IdentityCache {
	return &IdentityCache{Messenger: m}
}

// Get returns the bot identity, fetching it on first use.
func (c *IdentityCache) Get(ctx context.Context) (Identity, error) {
	c.mu.RLock()
	if c.self != nil {
		id := *c.self
		c.mu.RUnlock()
		return id, nil
	}
	c.mu.RUnlock()

	// The shared lookup must not die with whichever caller started it; each
	// caller still stops waiting when its own ctx ends.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan("self", func() (any, error) {
		id, err := c.Messenger.Self(shared)
		if err != nil {
			return Identity{}, err
		}
		c.mu.Lock()
		c.self = &id
		c.mu.Unlock()
		return id, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Identity{}, res.Err
		}
		return res.Val.(Identity), nil
	case <-ctx.Done():
		return Identity{}, ctx.Err()
	}
}
