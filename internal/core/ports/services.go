package ports

import (
	"context"

	"smartclean/internal/core/domain"
)

// TurnScheduler is the single owner of queue, turn, device and session state.
type TurnScheduler interface {
	Join(ctx context.Context, identity string) (domain.JoinResult, error)
	Leave(ctx context.Context, identity string) (domain.LeaveResult, error)
	Position(ctx context.Context, identity string) (domain.PositionInfo, error)
	PersonalStatus(ctx context.Context, identity string) domain.PersonalStatus
	CanJoin(ctx context.Context, identity string) (domain.CanJoinResult, error)

	// Device applies a start/stop/reboot intent. An empty identity is
	// treated as implicitly authorized.
	Device(ctx context.Context, intent domain.DeviceIntent, identity string) error

	QueueStatus(ctx context.Context) domain.QueueStatus
	ClearQueue(ctx context.Context, secret string) (int, error)
	Reset(ctx context.Context) domain.ResetSummary
	Health(ctx context.Context) domain.HealthReport
	RemainingTime() *int

	ObserverRegistry
}

// ObserverRegistry registers snapshot sinks. Subscribe pushes the current
// snapshot to the new sink before any later broadcast reaches it.
type ObserverRegistry interface {
	Subscribe(sink SnapshotSink)
	Unsubscribe(id string)
}

// Sweeper is implemented by the scheduler for the maintenance timers.
type Sweeper interface {
	ExpireTurn(ctx context.Context) bool
	EvictStaleSessions(ctx context.Context) int
}
