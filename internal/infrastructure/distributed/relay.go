package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"smartclean/internal/core/domain"
	"smartclean/internal/core/ports"
	"smartclean/pkg/retry"
	"smartclean/pkg/utils"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultChannel = "smartclean:snapshots"

// publishRetry stays well inside the sink's publish timeout.
var publishRetry = retry.Config{
	MaxAttempts:  2,
	InitialDelay: 50 * time.Millisecond,
	MaxDelay:     200 * time.Millisecond,
	Multiplier:   2,
}

// SnapshotMessage is the envelope published for every snapshot.
type SnapshotMessage struct {
	InstanceID  string          `json:"instance_id"`
	PublishedAt time.Time       `json:"published_at"`
	Snapshot    domain.Snapshot `json:"snapshot"`
}

// SnapshotRelay publishes scheduler snapshots to a Redis channel so that
// processes other than the controller can follow the queue.
type SnapshotRelay struct {
	client     *redis.Client
	instanceID string
	channel    string
	logger     *zap.SugaredLogger

	mu     sync.Mutex
	pubsub *redis.PubSub
}

func NewSnapshotRelay(client *redis.Client, instanceID, channel string, logger *zap.SugaredLogger) *SnapshotRelay {
	if instanceID == "" {
		instanceID = NewInstanceID()
	}
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SnapshotRelay{
		client:     client,
		instanceID: instanceID,
		channel:    channel,
		logger:     logger,
	}
}

// NewInstanceID returns a random process identifier.
func NewInstanceID() string {
	return utils.GenerateID("")
}

func (r *SnapshotRelay) InstanceID() string {
	return r.instanceID
}

func (r *SnapshotRelay) Publish(ctx context.Context, snapshot domain.Snapshot) error {
	msg := SnapshotMessage{
		InstanceID:  r.instanceID,
		PublishedAt: time.Now().UTC(),
		Snapshot:    snapshot,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}

	r.logger.Debugw("published snapshot",
		"channel", r.channel,
		"queue_count", snapshot.QueueCount,
		"robot_status", snapshot.RobotStatus,
	)
	return nil
}

// Subscribe blocks, calling handler for every snapshot published by other
// instances, until ctx is cancelled.
func (r *SnapshotRelay) Subscribe(ctx context.Context, handler func(*SnapshotMessage) error) error {
	r.mu.Lock()
	if r.pubsub != nil {
		r.mu.Unlock()
		return fmt.Errorf("already subscribed")
	}
	pubsub := r.client.Subscribe(ctx, r.channel)
	r.pubsub = pubsub
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.pubsub = nil
		r.mu.Unlock()
		pubsub.Close()
	}()

	// Wait for the subscription to be confirmed before reading messages.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var sm SnapshotMessage
			if err := json.Unmarshal([]byte(msg.Payload), &sm); err != nil {
				r.logger.Warnw("failed to unmarshal snapshot",
					"error", err,
					"payload", msg.Payload,
				)
				continue
			}

			// Skip snapshots from this instance
			if sm.InstanceID == r.instanceID {
				continue
			}

			if err := handler(&sm); err != nil {
				r.logger.Warnw("error handling snapshot",
					"instance_id", sm.InstanceID,
					"error", err,
				)
			}
		}
	}
}

func (r *SnapshotRelay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pubsub != nil {
		return r.pubsub.Close()
	}
	return nil
}

// RelaySink adapts the relay to the hub. Deliver only enqueues; a single
// goroutine publishes in order. When the queue is full the snapshot is
// dropped and counted, so the relay is never evicted from the hub.
type RelaySink struct {
	id      string
	relay   *SnapshotRelay
	queue   chan domain.Snapshot
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
	dropped atomic.Int64
	timeout time.Duration
	logger  *zap.SugaredLogger
}

var _ ports.SnapshotSink = (*RelaySink)(nil)

func NewRelaySink(relay *SnapshotRelay, buffer int, publishTimeout time.Duration) *RelaySink {
	if buffer <= 0 {
		buffer = 64
	}
	if publishTimeout <= 0 {
		publishTimeout = 2 * time.Second
	}
	s := &RelaySink{
		id:      "redis-relay-" + relay.InstanceID(),
		relay:   relay,
		queue:   make(chan domain.Snapshot, buffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		timeout: publishTimeout,
		logger:  relay.logger,
	}
	go s.run()
	return s
}

func (s *RelaySink) ID() string {
	return s.id
}

func (s *RelaySink) Deliver(snapshot domain.Snapshot) error {
	select {
	case <-s.done:
		return nil
	default:
	}

	select {
	case s.queue <- snapshot:
	default:
		s.dropped.Add(1)
	}
	return nil
}

// Close stops the publisher and waits for it to exit.
func (s *RelaySink) Close() {
	s.once.Do(func() { close(s.done) })
	<-s.stopped
}

// Dropped reports snapshots discarded because the queue was full.
func (s *RelaySink) Dropped() int64 {
	return s.dropped.Load()
}

func (s *RelaySink) run() {
	defer close(s.stopped)
	for {
		select {
		case <-s.done:
			return
		case snap := <-s.queue:
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			err := retry.Do(ctx, publishRetry, func(ctx context.Context) error {
				return s.relay.Publish(ctx, snap)
			})
			cancel()
			if err != nil {
				s.logger.Warnw("failed to relay snapshot", "error", err)
			}
		}
	}
}
