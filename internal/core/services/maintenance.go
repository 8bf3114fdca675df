package services

import (
	"context"
	"sync"
	"time"

	"smartclean/internal/core/ports"

	"go.uber.org/zap"
)

// MaintenanceConfig sets the periods of the two background sweeps.
type MaintenanceConfig struct {
	ExpiryInterval  time.Duration
	SessionInterval time.Duration
}

// Maintenance runs the turn-expiry and stale-session sweeps. A panic in one
// tick is logged and counted; the next tick runs normally.
type Maintenance struct {
	sweeper  ports.Sweeper
	cfg      MaintenanceConfig
	logger   *zap.SugaredLogger
	metrics  ports.MetricsRecorder
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewMaintenance(sweeper ports.Sweeper, cfg MaintenanceConfig, logger *zap.SugaredLogger, metrics ports.MetricsRecorder) *Maintenance {
	if cfg.ExpiryInterval <= 0 {
		cfg.ExpiryInterval = 10 * time.Second
	}
	if cfg.SessionInterval <= 0 {
		cfg.SessionInterval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Maintenance{
		sweeper:  sweeper,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		stopChan: make(chan struct{}),
	}
}

// Start launches both sweeps and returns immediately.
func (m *Maintenance) Start(ctx context.Context) {
	m.wg.Add(2)
	go m.loop(ctx, "turn_expiry", m.cfg.ExpiryInterval, func(ctx context.Context) {
		m.sweeper.ExpireTurn(ctx)
	})
	go m.loop(ctx, "session_eviction", m.cfg.SessionInterval, func(ctx context.Context) {
		m.sweeper.EvictStaleSessions(ctx)
	})
	m.logger.Infow("maintenance sweeps started",
		"expiry_interval", m.cfg.ExpiryInterval,
		"session_interval", m.cfg.SessionInterval,
	)
}

// Stop ends both sweeps and waits for them.
func (m *Maintenance) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
	m.wg.Wait()
}

func (m *Maintenance) loop(ctx context.Context, name string, interval time.Duration, tick func(context.Context)) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.runTick(ctx, name, tick)
		case <-m.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (m *Maintenance) runTick(ctx context.Context, name string, tick func(context.Context)) {
	failed := false
	defer func() {
		if r := recover(); r != nil {
			failed = true
			m.logger.Errorw("maintenance sweep panicked", "sweep", name, "panic", r)
		}
		m.metrics.RecordSweep(name, failed)
	}()
	tick(ctx)
}
