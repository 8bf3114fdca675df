package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"math"
	"sync"
	"time"

	"smartclean/internal/core/domain"
	"smartclean/internal/core/ports"
	"smartclean/pkg/tracing"
	"smartclean/pkg/validation"

	"go.uber.org/zap"
)

// Turn end reasons, used in logs and metrics labels.
const (
	EndReasonLeft    = "left"
	EndReasonExpired = "expired"
	EndReasonReboot  = "reboot"
)

type Options struct {
	TurnDuration  time.Duration
	Cooldown      time.Duration
	RebootDelay   time.Duration
	SessionTTL    time.Duration
	AdminSecret   string
	StatusPreview int
	StreamPreview int

	Now     func() time.Time
	Logger  *zap.SugaredLogger
	Metrics ports.MetricsRecorder
}

func DefaultOptions() Options {
	return Options{
		TurnDuration:  4 * time.Minute,
		Cooldown:      2 * time.Second,
		RebootDelay:   500 * time.Millisecond,
		SessionTTL:    24 * time.Hour,
		AdminSecret:   "admin123",
		StatusPreview: 10,
		StreamPreview: 5,
	}
}

type eventKind int

const (
	eventNextTurn eventKind = iota
	eventRebootEnd
)

func (k eventKind) String() string {
	switch k {
	case eventNextTurn:
		return "next_turn"
	case eventRebootEnd:
		return "reboot_end"
	default:
		return "unknown"
	}
}

// scheduledEvent is a deferred transition tagged with the turn version it
// was issued against. It is dropped if the version moved on before it fired.
type scheduledEvent struct {
	kind    eventKind
	version uint64
}

// Scheduler owns the waiting line, the active turn, the device status, the
// session registry and the observer hub. Every operation, including timer
// callbacks, runs under mu.
type Scheduler struct {
	mu sync.Mutex

	opts     Options
	logger   *zap.SugaredLogger
	metrics  ports.MetricsRecorder
	hub      *Hub
	line     *domain.WaitingLine
	sessions *domain.SessionRegistry

	// The active identity is always the head of line while active is set.
	active        bool
	turnStartedAt time.Time
	device        domain.DeviceStatus

	version   uint64
	timers    map[uint64]*time.Timer
	nextTimer uint64

	startedAt time.Time
	closed    bool
}

var (
	_ ports.TurnScheduler = (*Scheduler)(nil)
	_ ports.Sweeper       = (*Scheduler)(nil)
)

func NewScheduler(opts Options) *Scheduler {
	def := DefaultOptions()
	if opts.TurnDuration <= 0 {
		opts.TurnDuration = def.TurnDuration
	}
	if opts.Cooldown < 0 {
		opts.Cooldown = 0
	}
	if opts.RebootDelay < 0 {
		opts.RebootDelay = 0
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = def.SessionTTL
	}
	if opts.AdminSecret == "" {
		opts.AdminSecret = def.AdminSecret
	}
	if opts.StatusPreview <= 0 {
		opts.StatusPreview = def.StatusPreview
	}
	if opts.StreamPreview <= 0 {
		opts.StreamPreview = def.StreamPreview
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Metrics == nil {
		opts.Metrics = ports.NopMetrics{}
	}

	return &Scheduler{
		opts:      opts,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		hub:       NewHub(opts.Logger, opts.Metrics),
		line:      domain.NewWaitingLine(),
		sessions:  domain.NewSessionRegistry(),
		device:    domain.DeviceIdle,
		timers:    make(map[uint64]*time.Timer),
		startedAt: opts.Now(),
	}
}

func parseIdentity(raw string) (domain.Identity, error) {
	if err := validation.ValidateIdentity(raw); err != nil {
		if errors.Is(err, validation.ErrEmpty) {
			return "", domain.ErrMissingIdentity
		}
		return "", domain.ErrInvalidIdentity
	}
	return domain.Identity(raw), nil
}

func (s *Scheduler) Join(ctx context.Context, raw string) (domain.JoinResult, error) {
	ctx, span := tracing.TraceQueueOperation(ctx, "join", raw)
	defer span.End()

	id, err := parseIdentity(raw)
	if err != nil {
		tracing.RecordError(ctx, err)
		return domain.JoinResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isActiveLocked(id) {
		tracing.RecordError(ctx, domain.ErrAlreadyActive)
		return domain.JoinResult{}, domain.ErrAlreadyActive
	}

	now := s.opts.Now()
	wasEmpty := s.line.Empty()
	rejoined := s.line.Contains(id)
	idx := s.line.Append(id)
	s.sessions.Upsert(id, now)
	s.metrics.SetQueueLength(s.line.Len())

	s.logger.Infow("Identity joined waiting line",
		"identity", id,
		"position", idx+1,
		"queue_length", s.line.Len(),
		"rejoined", rejoined,
	)

	s.broadcastLocked()
	if wasEmpty && !s.active {
		s.startNextTurnLocked()
	}

	return domain.JoinResult{
		QueueCount:        s.line.Len(),
		Position:          idx + 1,
		EstimatedWaitTime: s.estimatedWait(idx),
	}, nil
}

func (s *Scheduler) Leave(ctx context.Context, raw string) (domain.LeaveResult, error) {
	ctx, span := tracing.TraceQueueOperation(ctx, "leave", raw)
	defer span.End()

	if raw == "" {
		tracing.RecordError(ctx, domain.ErrMissingIdentity)
		return domain.LeaveResult{}, domain.ErrMissingIdentity
	}
	id := domain.Identity(raw)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.line.Contains(id) {
		tracing.RecordError(ctx, domain.ErrNotInLine)
		return domain.LeaveResult{}, domain.ErrNotInLine
	}

	if s.isActiveLocked(id) {
		s.logger.Infow("Active identity left, ending turn", "identity", id)
		s.endCurrentTurnLocked(EndReasonLeft)
		return domain.LeaveResult{QueueCount: s.line.Len(), EndedTurn: true}, nil
	}

	s.line.Remove(id)
	s.metrics.SetQueueLength(s.line.Len())
	s.logger.Infow("Identity left waiting line", "identity", id, "queue_length", s.line.Len())
	s.broadcastLocked()

	return domain.LeaveResult{QueueCount: s.line.Len()}, nil
}

func (s *Scheduler) Position(_ context.Context, raw string) (domain.PositionInfo, error) {
	id := domain.Identity(raw)

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.line.IndexOf(id)
	if idx < 0 {
		return domain.PositionInfo{}, domain.ErrNotInLine
	}
	return domain.PositionInfo{
		Position:          idx + 1,
		QueueCount:        s.line.Len(),
		EstimatedWaitTime: s.estimatedWait(idx),
		IsCurrentTurn:     s.isActiveLocked(id),
	}, nil
}

func (s *Scheduler) PersonalStatus(_ context.Context, raw string) domain.PersonalStatus {
	id := domain.Identity(raw)

	s.mu.Lock()
	defer s.mu.Unlock()

	st := domain.PersonalStatus{
		Identity:      id,
		IsCurrentTurn: s.isActiveLocked(id),
		QueueCount:    s.line.Len(),
	}
	if idx := s.line.IndexOf(id); idx >= 0 {
		pos := idx + 1
		wait := s.estimatedWait(idx)
		st.IsInQueue = true
		st.Position = &pos
		st.EstimatedWaitTime = &wait
	}
	if rec, ok := s.sessions.Get(id); ok {
		last := rec.LastActivity
		st.HasSession = true
		st.LastActivity = &last
		st.TurnCount = rec.TurnCount
	}
	return st
}

func (s *Scheduler) CanJoin(_ context.Context, raw string) (domain.CanJoinResult, error) {
	id, err := parseIdentity(raw)
	if err != nil {
		return domain.CanJoinResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res := domain.CanJoinResult{
		Identity:      id,
		IsInQueue:     s.line.Contains(id),
		IsCurrentTurn: s.isActiveLocked(id),
	}
	res.CanJoin = !res.IsInQueue && !res.IsCurrentTurn
	if !res.CanJoin {
		// The active identity is also the line head; report the stronger reason.
		reason := domain.ReasonAlreadyInQueue
		if res.IsCurrentTurn {
			reason = domain.ReasonAlreadyYourTurn
		}
		res.Reason = &reason
	}
	return res, nil
}

func (s *Scheduler) Device(ctx context.Context, intent domain.DeviceIntent, raw string) error {
	ctx, span := tracing.TraceDeviceIntent(ctx, string(intent), raw)
	defer span.End()

	err := s.applyIntent(intent, domain.Identity(raw))
	result := "ok"
	switch {
	case errors.Is(err, domain.ErrNoActiveTurn):
		result = "no_active_turn"
	case errors.Is(err, domain.ErrNotYourTurn):
		result = "not_your_turn"
	case err != nil:
		result = "rejected"
	}
	s.metrics.RecordDeviceIntent(string(intent), result)
	if err != nil {
		tracing.RecordError(ctx, err)
	}
	return err
}

func (s *Scheduler) applyIntent(intent domain.DeviceIntent, id domain.Identity) error {
	if !intent.Valid() {
		return domain.ErrUnknownIntent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	holder, ok := s.activeLocked()
	if !ok {
		return domain.ErrNoActiveTurn
	}
	if id != "" && id != holder {
		return domain.ErrNotYourTurn
	}

	now := s.opts.Now()
	s.device = intent.Status()
	s.sessions.Touch(holder, now)

	s.logger.Infow("Device intent applied",
		"intent", intent,
		"identity", holder,
		"device_status", s.device,
	)
	s.broadcastLocked()

	if intent == domain.IntentReboot {
		s.scheduleLocked(s.opts.RebootDelay, eventRebootEnd)
	}
	return nil
}

func (s *Scheduler) QueueStatus(_ context.Context) domain.QueueStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return domain.QueueStatus{
		Snapshot:       s.snapshotLocked(s.opts.StatusPreview),
		ActiveSessions: s.sessions.Len(),
	}
}

// ClearQueue empties the line and ends any turn. Sessions survive.
func (s *Scheduler) ClearQueue(ctx context.Context, secret string) (int, error) {
	ctx, span := tracing.TraceQueueOperation(ctx, "clear", "")
	defer span.End()

	if subtle.ConstantTimeCompare([]byte(secret), []byte(s.opts.AdminSecret)) != 1 {
		tracing.RecordError(ctx, domain.ErrUnauthorized)
		s.logger.Warnw("Admin clear rejected")
		return 0, domain.ErrUnauthorized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cleared := s.line.Len()
	previous, hadTurn := s.activeLocked()
	s.resetTurnLocked()

	s.logger.Infow("Waiting line cleared by admin",
		"cleared", cleared,
		"previous_identity", previous,
		"had_turn", hadTurn,
	)
	s.broadcastLocked()
	return cleared, nil
}

// Reset clears everything, sessions included, and reports the prior state.
func (s *Scheduler) Reset(_ context.Context) domain.ResetSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := domain.ResetSummary{
		QueueLength:  s.line.Len(),
		RobotStatus:  s.device,
		ClientCount:  s.hub.Count(),
		SessionCount: s.sessions.Len(),
	}
	if holder, ok := s.activeLocked(); ok {
		summary.CurrentUser = &holder
	}

	s.resetTurnLocked()
	s.sessions.Clear()

	s.logger.Infow("State reset",
		"previous_queue_length", summary.QueueLength,
		"previous_sessions", summary.SessionCount,
	)
	s.broadcastLocked()
	return summary
}

func (s *Scheduler) Health(_ context.Context) domain.HealthReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	return domain.HealthReport{
		Snapshot:       s.snapshotLocked(s.opts.StreamPreview),
		ActiveClients:  s.hub.Count(),
		ActiveSessions: s.sessions.Len(),
		SessionSample:  s.sessions.Identities(s.opts.StreamPreview),
	}
}

// Uptime is measured from scheduler construction.
func (s *Scheduler) Uptime() time.Duration {
	return s.opts.Now().Sub(s.startedAt)
}

// RemainingTime returns whole seconds left in the active turn, or nil.
func (s *Scheduler) RemainingTime() *int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remainingLocked(s.opts.Now())
}

// Subscribe registers sink and hands it the current snapshot under the
// same lock broadcasts take, so no state change can slip in between.
func (s *Scheduler) Subscribe(sink ports.SnapshotSink) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		sink.Close()
		return
	}
	_ = s.hub.Add(sink, s.snapshotLocked(s.opts.StreamPreview))
}

func (s *Scheduler) Unsubscribe(id string) {
	s.hub.Remove(id)
}

// ExpireTurn ends the active turn once its time has run out.
func (s *Scheduler) ExpireTurn(_ context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.active {
		return false
	}
	remaining := s.remainingLocked(s.opts.Now())
	if remaining == nil || *remaining > 0 {
		return false
	}

	holder, _ := s.activeLocked()
	s.logger.Infow("Turn expired", "identity", holder)
	s.endCurrentTurnLocked(EndReasonExpired)
	return true
}

// EvictStaleSessions drops session records idle for longer than the TTL.
func (s *Scheduler) EvictStaleSessions(_ context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.opts.Now().Add(-s.opts.SessionTTL)
	evicted := s.sessions.EvictIdle(cutoff)
	if len(evicted) > 0 {
		s.metrics.RecordSessionsEvicted(len(evicted))
		s.logger.Infow("Evicted stale sessions", "count", len(evicted), "remaining", s.sessions.Len())
	}
	return len(evicted)
}

// Close stops pending deferred events and disconnects all observers.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.hub.CloseAll()
}

func (s *Scheduler) activeLocked() (domain.Identity, bool) {
	if !s.active {
		return "", false
	}
	return s.line.Head()
}

func (s *Scheduler) isActiveLocked(id domain.Identity) bool {
	holder, ok := s.activeLocked()
	return ok && holder == id
}

func (s *Scheduler) startNextTurnLocked() {
	head, ok := s.line.Head()
	if !ok {
		s.active = false
		s.turnStartedAt = time.Time{}
		s.device = domain.DeviceIdle
		s.logger.Debugw("No identities waiting, scheduler idle")
		s.broadcastLocked()
		return
	}

	now := s.opts.Now()
	s.active = true
	s.turnStartedAt = now
	s.device = domain.DeviceIdle
	s.version++
	turns := s.sessions.BeginTurn(head, now)
	s.metrics.RecordTurnStarted()

	s.logger.Infow("Turn started",
		"identity", head,
		"turn_count", turns,
		"queue_length", s.line.Len(),
	)
	s.broadcastLocked()
}

func (s *Scheduler) endCurrentTurnLocked(reason string) {
	if !s.active || s.line.Empty() {
		return
	}

	now := s.opts.Now()
	held := now.Sub(s.turnStartedAt)
	holder, _ := s.line.PopHead()

	s.active = false
	s.turnStartedAt = time.Time{}
	s.device = domain.DeviceIdle
	s.version++
	s.metrics.RecordTurnEnded(reason, held)
	s.metrics.SetQueueLength(s.line.Len())

	s.logger.Infow("Turn ended",
		"identity", holder,
		"reason", reason,
		"held", held,
		"queue_length", s.line.Len(),
	)
	s.broadcastLocked()

	if !s.line.Empty() {
		s.scheduleLocked(s.opts.Cooldown, eventNextTurn)
	}
}

func (s *Scheduler) resetTurnLocked() {
	s.line.Clear()
	s.active = false
	s.turnStartedAt = time.Time{}
	s.device = domain.DeviceIdle
	s.version++
	s.metrics.SetQueueLength(0)
}

func (s *Scheduler) scheduleLocked(delay time.Duration, kind eventKind) {
	if s.closed {
		return
	}
	ev := scheduledEvent{kind: kind, version: s.version}
	s.nextTimer++
	id := s.nextTimer
	s.timers[id] = time.AfterFunc(delay, func() {
		s.fire(id, ev)
	})
}

func (s *Scheduler) fire(timerID uint64, ev scheduledEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.timers, timerID)
	if s.closed {
		return
	}
	if ev.version != s.version {
		s.logger.Debugw("Dropping stale deferred event",
			"event", ev.kind.String(),
			"issued_version", ev.version,
			"current_version", s.version,
		)
		return
	}

	switch ev.kind {
	case eventNextTurn:
		if !s.active {
			s.startNextTurnLocked()
		}
	case eventRebootEnd:
		if s.active {
			holder, _ := s.activeLocked()
			s.logger.Infow("Ending turn after reboot", "identity", holder)
			s.endCurrentTurnLocked(EndReasonReboot)
		}
	}
}

func (s *Scheduler) remainingLocked(now time.Time) *int {
	if !s.active {
		return nil
	}
	left := s.opts.TurnDuration - now.Sub(s.turnStartedAt)
	secs := int(math.Round(left.Seconds()))
	if secs < 0 {
		secs = 0
	}
	return &secs
}

// estimatedWait is in minutes, counted from the zero-based index.
func (s *Scheduler) estimatedWait(idx int) int {
	return int(math.Round(float64(idx) * s.opts.TurnDuration.Minutes()))
}

func (s *Scheduler) snapshotLocked(preview int) domain.Snapshot {
	now := s.opts.Now()
	snap := domain.Snapshot{
		QueueCount:    s.line.Len(),
		RobotStatus:   s.device,
		TimeRemaining: s.remainingLocked(now),
		Queue:         s.line.Preview(preview),
		Timestamp:     now.UTC(),
	}
	if holder, ok := s.activeLocked(); ok {
		started := s.turnStartedAt.UTC()
		snap.CurrentTurn = &holder
		snap.TurnStartTime = &started
	}
	return snap
}

func (s *Scheduler) broadcastLocked() {
	s.hub.Broadcast(s.snapshotLocked(s.opts.StreamPreview))
}
