package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"smartclean/internal/core/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingSink struct {
	id     string
	mu     sync.Mutex
	snaps  []domain.Snapshot
	closed bool
}

func newRecordingSink(id string) *recordingSink {
	return &recordingSink{id: id}
}

func (s *recordingSink) ID() string { return s.id }

func (s *recordingSink) Deliver(snap domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	return nil
}

func (s *recordingSink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snaps)
}

func (s *recordingSink) last() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snaps) == 0 {
		return domain.Snapshot{}
	}
	return s.snaps[len(s.snaps)-1]
}

func (s *recordingSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// failingSink accepts the first `okFor` deliveries and fails afterwards.
type failingSink struct {
	recordingSink
	okFor int
}

func (s *failingSink) Deliver(snap domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snaps) >= s.okFor {
		return errors.New("broken pipe")
	}
	s.snaps = append(s.snaps, snap)
	return nil
}

type panickingSink struct {
	recordingSink
}

func (s *panickingSink) Deliver(domain.Snapshot) error {
	panic("boom")
}

func newTestScheduler(t *testing.T, mutate func(*Options)) (*Scheduler, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	opts := DefaultOptions()
	opts.Cooldown = 40 * time.Millisecond
	opts.RebootDelay = 40 * time.Millisecond
	opts.Now = clock.Now
	if mutate != nil {
		mutate(&opts)
	}
	s := NewScheduler(opts)
	t.Cleanup(s.Close)
	return s, clock
}

func current(s *Scheduler) *domain.Identity {
	return s.QueueStatus(context.Background()).CurrentTurn
}

func ids(in ...string) []domain.Identity {
	out := make([]domain.Identity, len(in))
	for i, v := range in {
		out[i] = domain.Identity(v)
	}
	return out
}
