package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"smartclean/internal/core/ports"

	"github.com/stretchr/testify/assert"
)

type fakeSweeper struct {
	expiries  atomic.Int32
	evictions atomic.Int32
	panicOnce atomic.Bool
}

func (f *fakeSweeper) ExpireTurn(context.Context) bool {
	n := f.expiries.Add(1)
	if n == 1 && f.panicOnce.Load() {
		panic("sweep exploded")
	}
	return false
}

func (f *fakeSweeper) EvictStaleSessions(context.Context) int {
	f.evictions.Add(1)
	return 0
}

type sweepMetrics struct {
	ports.NopMetrics
	mu     sync.Mutex
	failed map[string]int
	ok     map[string]int
}

func (m *sweepMetrics) RecordSweep(name string, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if failed {
		m.failed[name]++
		return
	}
	m.ok[name]++
}

func (m *sweepMetrics) failures(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failed[name]
}

func TestMaintenance_RunsBothSweeps(t *testing.T) {
	sw := &fakeSweeper{}
	m := NewMaintenance(sw, MaintenanceConfig{
		ExpiryInterval:  5 * time.Millisecond,
		SessionInterval: 10 * time.Millisecond,
	}, nil, nil)

	m.Start(context.Background())
	defer m.Stop()

	assert.Eventually(t, func() bool {
		return sw.expiries.Load() >= 3 && sw.evictions.Load() >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestMaintenance_SurvivesPanickingTick(t *testing.T) {
	sw := &fakeSweeper{}
	sw.panicOnce.Store(true)
	metrics := &sweepMetrics{failed: map[string]int{}, ok: map[string]int{}}

	m := NewMaintenance(sw, MaintenanceConfig{
		ExpiryInterval:  5 * time.Millisecond,
		SessionInterval: time.Hour,
	}, nil, metrics)

	m.Start(context.Background())
	defer m.Stop()

	assert.Eventually(t, func() bool {
		return sw.expiries.Load() >= 3
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, metrics.failures("turn_expiry"))
}

func TestMaintenance_StopsOnContextCancel(t *testing.T) {
	sw := &fakeSweeper{}
	m := NewMaintenance(sw, MaintenanceConfig{
		ExpiryInterval:  5 * time.Millisecond,
		SessionInterval: 5 * time.Millisecond,
	}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("maintenance did not stop after context cancel")
	}

	stopped := sw.expiries.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, sw.expiries.Load())
}
