package ports

import "smartclean/internal/core/domain"

// SnapshotSink receives broadcast snapshots. Deliver must not block;
// a returned error removes the sink from the hub.
type SnapshotSink interface {
	ID() string
	Deliver(snapshot domain.Snapshot) error
	Close()
}
