package domain

import "time"

// Snapshot is the point-in-time summary pushed to observers.
type Snapshot struct {
	QueueCount    int          `json:"queueCount"`
	CurrentTurn   *Identity    `json:"currentTurn"`
	RobotStatus   DeviceStatus `json:"robotStatus"`
	TurnStartTime *time.Time   `json:"turnStartTime"`
	TimeRemaining *int         `json:"timeRemaining"`
	Queue         []Identity   `json:"queue"`
	Timestamp     time.Time    `json:"timestamp"`
}

type JoinResult struct {
	QueueCount        int
	Position          int
	EstimatedWaitTime int
}

type LeaveResult struct {
	QueueCount int
	EndedTurn  bool
}

type PositionInfo struct {
	Position          int
	QueueCount        int
	EstimatedWaitTime int
	IsCurrentTurn     bool
}

// PersonalStatus is the always-available view of one identity.
type PersonalStatus struct {
	Identity          Identity
	IsInQueue         bool
	IsCurrentTurn     bool
	Position          *int
	QueueCount        int
	EstimatedWaitTime *int
	HasSession        bool
	LastActivity      *time.Time
	TurnCount         int
}

type CanJoinReason string

const (
	ReasonAlreadyInQueue  CanJoinReason = "Already in queue"
	ReasonAlreadyYourTurn CanJoinReason = "Already your turn"
)

type CanJoinResult struct {
	Identity      Identity
	CanJoin       bool
	IsInQueue     bool
	IsCurrentTurn bool
	Reason        *CanJoinReason
}

type QueueStatus struct {
	Snapshot
	ActiveSessions int
}

type ResetSummary struct {
	QueueLength  int
	CurrentUser  *Identity
	RobotStatus  DeviceStatus
	ClientCount  int
	SessionCount int
}

type HealthReport struct {
	Snapshot
	ActiveClients  int
	ActiveSessions int
	SessionSample  []Identity
}
