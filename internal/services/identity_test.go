package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestIdentityCache_FetchesOnceAndReuses(t *testing.T) {
	m := newFakeMessenger()
	c := NewIdentityCache(m)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := c.Get(context.Background())
			if err != nil || id.Username != "ref_bot" {
				t.Errorf("Get = %+v, %v", id, err)
			}
		}()
	}
	wg.Wait()

	if _, err := c.Get(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Concurrent first callers may race the cache check, but singleflight
	// collapses them; later calls never reach the messenger.
	if m.selfCalls < 1 || m.selfCalls > 16 {
		t.Fatalf("selfCalls = %d", m.selfCalls)
	}
	before := m.selfCalls
	for i := 0; i < 5; i++ {
		_, _ = c.Get(context.Background())
	}
	if m.selfCalls != before {
		t.Fatalf("cached identity should not be fetched again (%d -> %d)", before, m.selfCalls)
	}
}

func TestIdentityCache_ErrorsAreNotCached(t *testing.T) {
	m := newFakeMessenger()
	m.selfErr = errBoom
	c := NewIdentityCache(m)

	if _, err := c.Get(context.Background()); !errors.Is(err, errBoom) {
		t.Fatalf("err = %v; want errBoom", err)
	}

	m.selfErr = nil
	id, err := c.Get(context.Background())
	if err != nil || id.ID != 999 {
		t.Fatalf("Get after recovery = %+v, %v", id, err)
	}
	if m.selfCalls != 2 {
		t.Fatalf("selfCalls = %d; want 2", m.selfCalls)
	}
}

func TestIdentityCache_CancelledCallerDoesNotFailOthers(t *testing.T) {
	m := newFakeMessenger()
	m.selfGate = make(chan struct{})
	c := NewIdentityCache(m)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Get(first)
		firstErr <- err
	}()

	// Wait until the shared lookup is in flight.
	deadline := time.Now().Add(2 * time.Second)
	for {
		m.mu.Lock()
		n := m.selfCalls
		m.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("lookup never started")
		}
		time.Sleep(time.Millisecond)
	}

	second := make(chan error, 1)
	go func() {
		id, err := c.Get(context.Background())
		if err == nil && id.Username != "ref_bot" {
			err = errors.New("wrong identity " + id.Username)
		}
		second <- err
	}()

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller err = %v; want context.Canceled", err)
	}

	close(m.selfGate)
	select {
	case err := <-second:
		if err != nil {
			t.Fatalf("second caller failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second caller never returned")
	}
	if m.selfCalls != 1 {
		t.Fatalf("selfCalls = %d; want one shared lookup", m.selfCalls)
	}
}
