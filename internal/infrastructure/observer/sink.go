package observer

import (
	"errors"
	"sync"

	"smartclean/internal/core/domain"
	"smartclean/pkg/utils"
)

var (
	ErrSinkFull   = errors.New("observer buffer full")
	ErrSinkClosed = errors.New("observer closed")
)

// ChannelSink buffers snapshots for one connection. Deliver never blocks:
// a full buffer is reported as an error so the hub drops the slow observer.
type ChannelSink struct {
	id      string
	updates chan domain.Snapshot
	done    chan struct{}
	once    sync.Once
}

func NewChannelSink(prefix string, buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		id:      utils.GenerateID(prefix),
		updates: make(chan domain.Snapshot, buffer),
		done:    make(chan struct{}),
	}
}

func (s *ChannelSink) ID() string {
	return s.id
}

func (s *ChannelSink) Deliver(snapshot domain.Snapshot) error {
	select {
	case <-s.done:
		return ErrSinkClosed
	default:
	}

	select {
	case s.updates <- snapshot:
		return nil
	default:
		return ErrSinkFull
	}
}

// Close is safe to call more than once.
func (s *ChannelSink) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *ChannelSink) Updates() <-chan domain.Snapshot {
	return s.updates
}

// Done is closed once the hub or the connection gave up on this sink.
func (s *ChannelSink) Done() <-chan struct{} {
	return s.done
}
