package coordination

import (
	"context"
	"time"

	"smartclean/internal/infrastructure/distributed"
	"smartclean/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Factory decides whether this process coordinates through Redis. When Redis
// is disabled or unreachable the service runs standalone: no relay, no lock.
type Factory struct {
	useRedis    bool
	redisClient *redis.Client
	instanceID  string
	channel     string
	lockKey     string
	lockTTL     time.Duration
	logger      *zap.SugaredLogger
}

func NewFactory(cfg *config.Config, logger *zap.SugaredLogger) *Factory {
	f := &Factory{
		useRedis:   cfg.Redis.Enabled,
		instanceID: distributed.NewInstanceID(),
		channel:    cfg.Redis.Channel,
		lockKey:    cfg.Redis.LockKey,
		lockTTL:    cfg.Redis.LockTTL,
		logger:     logger,
	}

	if cfg.Redis.Enabled {
		client, err := NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, running standalone",
				"error", err,
			)
			f.useRedis = false
		} else {
			f.redisClient = client
		}
	}

	if f.useRedis {
		logger.Infow("coordinating through Redis", "instance_id", f.instanceID, "channel", f.channel)
	} else {
		logger.Info("running standalone")
	}
	return f
}

func (f *Factory) Enabled() bool {
	return f.useRedis && f.redisClient != nil
}

func (f *Factory) InstanceID() string {
	return f.instanceID
}

// Client returns nil when running standalone.
func (f *Factory) Client() *redis.Client {
	if !f.Enabled() {
		return nil
	}
	return f.redisClient
}

// SnapshotRelay returns nil when running standalone.
func (f *Factory) SnapshotRelay() *distributed.SnapshotRelay {
	if !f.Enabled() {
		return nil
	}
	return distributed.NewSnapshotRelay(f.redisClient, f.instanceID, f.channel, f.logger)
}

// ControllerLock returns nil when running standalone or when no lock key is set.
func (f *Factory) ControllerLock() *distributed.InstanceLock {
	if !f.Enabled() || f.lockKey == "" {
		return nil
	}
	return distributed.NewInstanceLock(f.redisClient, f.lockKey, f.instanceID, f.lockTTL, f.logger)
}

// HealthCheck checks Redis connection health
func (f *Factory) HealthCheck(ctx context.Context) error {
	if f.Enabled() {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}

// Close closes Redis connection if used
func (f *Factory) Close() error {
	if f.redisClient != nil {
		return f.redisClient.Close()
	}
	return nil
}
