package services

import (
	"errors"
	"sync"

	"smartclean/internal/core/domain"
	"smartclean/internal/core/ports"

	"go.uber.org/zap"
)

var errSinkPanicked = errors.New("observer panicked")

// Hub fans snapshots out to every registered sink. A sink whose Deliver
// fails is closed and dropped; the others still receive the snapshot.
type Hub struct {
	mu      sync.RWMutex
	sinks   map[string]ports.SnapshotSink
	logger  *zap.SugaredLogger
	metrics ports.MetricsRecorder
}

func NewHub(logger *zap.SugaredLogger, metrics ports.MetricsRecorder) *Hub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Hub{
		sinks:   make(map[string]ports.SnapshotSink),
		logger:  logger,
		metrics: metrics,
	}
}

// Add delivers the initial snapshot and registers the sink. A sink that
// cannot take the initial snapshot is closed and never registered.
func (h *Hub) Add(sink ports.SnapshotSink, initial domain.Snapshot) error {
	if err := sink.Deliver(initial); err != nil {
		sink.Close()
		h.logger.Warnw("Observer rejected initial snapshot", "observer_id", sink.ID(), "error", err)
		return err
	}

	h.mu.Lock()
	if old, ok := h.sinks[sink.ID()]; ok && old != sink {
		old.Close()
	}
	h.sinks[sink.ID()] = sink
	count := len(h.sinks)
	h.mu.Unlock()

	h.metrics.SetObservers(count)
	h.logger.Debugw("Observer registered", "observer_id", sink.ID(), "observers", count)
	return nil
}

// Remove is idempotent.
func (h *Hub) Remove(id string) bool {
	h.mu.Lock()
	sink, ok := h.sinks[id]
	if ok {
		delete(h.sinks, id)
	}
	count := len(h.sinks)
	h.mu.Unlock()

	if !ok {
		return false
	}
	sink.Close()
	h.metrics.SetObservers(count)
	h.logger.Debugw("Observer removed", "observer_id", id, "observers", count)
	return true
}

// Broadcast returns the number of sinks that accepted the snapshot.
func (h *Hub) Broadcast(snapshot domain.Snapshot) int {
	h.mu.RLock()
	targets := make([]ports.SnapshotSink, 0, len(h.sinks))
	for _, sink := range h.sinks {
		targets = append(targets, sink)
	}
	h.mu.RUnlock()

	delivered := 0
	var failed []ports.SnapshotSink
	for _, sink := range targets {
		if err := h.deliver(sink, snapshot); err != nil {
			h.logger.Warnw("Dropping observer after failed delivery", "observer_id", sink.ID(), "error", err)
			failed = append(failed, sink)
			continue
		}
		delivered++
	}

	if len(failed) > 0 {
		h.mu.Lock()
		for _, sink := range failed {
			if cur, ok := h.sinks[sink.ID()]; ok && cur == sink {
				delete(h.sinks, sink.ID())
			}
		}
		count := len(h.sinks)
		h.mu.Unlock()

		for _, sink := range failed {
			sink.Close()
			h.metrics.RecordObserverEvicted()
		}
		h.metrics.SetObservers(count)
	}

	return delivered
}

// deliver isolates a panicking sink from the rest of the fan-out.
func (h *Hub) deliver(sink ports.SnapshotSink, snapshot domain.Snapshot) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errSinkPanicked
			h.logger.Errorw("Observer panicked during delivery", "observer_id", sink.ID(), "panic", r)
		}
	}()
	return sink.Deliver(snapshot)
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sinks)
}

// CloseAll closes and forgets every sink.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	sinks := h.sinks
	h.sinks = make(map[string]ports.SnapshotSink)
	h.mu.Unlock()

	for _, sink := range sinks {
		sink.Close()
	}
	h.metrics.SetObservers(0)
}
