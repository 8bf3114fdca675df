package distributed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultLockKey = "smartclean:controller"

var ErrLockNotHeld = errors.New("lock was not held by this instance")

// Only delete the key if we still own it.
var unlockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Only extend the key if we still own it.
var renewScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// InstanceLock is a Redis lease ensuring a single process arbitrates the
// robot. The holder renews it at half TTL; Lost is closed if a renewal
// finds the key gone or owned by someone else.
type InstanceLock struct {
	client *redis.Client
	key    string
	value  string
	ttl    time.Duration
	retry  time.Duration
	logger *zap.SugaredLogger

	mu        sync.Mutex
	held      bool
	stopRenew chan struct{}
	renewDone chan struct{}
	lost      chan struct{}
	lostOnce  sync.Once
}

func NewInstanceLock(client *redis.Client, key, instanceID string, ttl time.Duration, logger *zap.SugaredLogger) *InstanceLock {
	if key == "" {
		key = DefaultLockKey
	}
	if instanceID == "" {
		instanceID = NewInstanceID()
	}
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &InstanceLock{
		client: client,
		key:    key,
		value:  instanceID,
		ttl:    ttl,
		retry:  ttl / 3,
		logger: logger,
		lost:   make(chan struct{}),
	}
}

// TryAcquire attempts to take the lease once.
func (l *InstanceLock) TryAcquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		return true, nil
	}

	acquired, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to try lock: %w", err)
	}
	if !acquired {
		return false, nil
	}

	l.held = true
	l.stopRenew = make(chan struct{})
	l.renewDone = make(chan struct{})
	go l.renewLoop(l.stopRenew, l.renewDone)

	l.logger.Infow("controller lock acquired", "key", l.key, "instance_id", l.value, "ttl", l.ttl)
	return true, nil
}

// Acquire blocks until the lease is taken or ctx is done.
func (l *InstanceLock) Acquire(ctx context.Context) error {
	for {
		ok, err := l.TryAcquire(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		holder, _ := l.client.Get(ctx, l.key).Result()
		l.logger.Infow("waiting for controller lock", "key", l.key, "holder", holder)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retry):
		}
	}
}

// Release gives the lease up if this instance still owns it.
func (l *InstanceLock) Release(ctx context.Context) error {
	l.mu.Lock()
	if !l.held {
		l.mu.Unlock()
		return nil
	}
	l.held = false
	close(l.stopRenew)
	done := l.renewDone
	l.mu.Unlock()
	<-done

	result, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Int64()
	if err != nil {
		return fmt.Errorf("failed to unlock: %w", err)
	}
	if result == 0 {
		return ErrLockNotHeld
	}

	l.logger.Infow("controller lock released", "key", l.key)
	return nil
}

// Lost is closed when the lease is taken away from this instance.
func (l *InstanceLock) Lost() <-chan struct{} {
	return l.lost
}

func (l *InstanceLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

func (l *InstanceLock) renewLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/2)
			ok, err := renewScript.Run(ctx, l.client, []string{l.key}, l.value, l.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil {
				// Transient; the next tick retries before the TTL runs out.
				l.logger.Warnw("failed to renew controller lock", "key", l.key, "error", err)
				continue
			}
			if ok == 0 {
				l.logger.Errorw("controller lock lost", "key", l.key, "instance_id", l.value)
				l.mu.Lock()
				l.held = false
				l.mu.Unlock()
				l.lostOnce.Do(func() { close(l.lost) })
				return
			}
		}
	}
}
