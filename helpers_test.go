package main

import (
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"
)

// fakeClock fires timers only when Advance moves past their deadline.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock and runs due timers in deadline order on the
// calling goroutine. Timers armed by those callbacks run too when they are
// already due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var due []*fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && !t.at.After(c.now) {
				due = append(due, t)
			}
		}
		sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
		if len(due) == 0 {
			c.mu.Unlock()
			return
		}
		next := due[0]
		next.fired = true
		c.mu.Unlock()
		next.f()
	}
}

// Pending counts armed timers.
func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func newTestStore(t *testing.T) *sqliteStore {
	t.Helper()
	store, err := openSQLiteStore(filepath.Join(t.TempDir(), "pool.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// recordingSink keeps every payload it is handed.
type recordingSink struct {
	mu         sync.Mutex
	got        []delivery
	superseded int
}

func (s *recordingSink) Deliver(d delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, d)
	return nil
}

func (s *recordingSink) Superseded() {
	s.mu.Lock()
	s.superseded++
	s.mu.Unlock()
}

func (s *recordingSink) deliveries() []delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]delivery(nil), s.got...)
}

type failingSink struct{}

func (failingSink) Deliver(delivery) error { return errors.New("connection reset") }

type panickingSink struct{}

func (panickingSink) Deliver(delivery) error { panic("write on closed response") }

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Coin = "vig"
	cfg.HashrateWindow = 600
	cfg.UpdateInterval = 5 * time.Second
	cfg.CollectTimeout = 0
	cfg.APIBlocks = 30
	cfg.APIPayments = 30
	cfg.APIPassword = "secret"
	cfg.StoreDriver = storeDriverSQLite
	cfg.Ports = []PortConfig{
		{Port: 3333, Difficulty: 100, Desc: "Low end"},
		{Port: 5555, Difficulty: 2000, Desc: "Relay", Hidden: true},
	}
	return cfg
}
