package campaigns

import "time"

// Campaign is a named batch of dialing work with a concurrency ceiling and a lifecycle.
type Campaign struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Script string `json:"script"`

	// MaxConcurrent caps in-progress calls for this campaign. Always > 0 once stored.
	MaxConcurrent int `json:"maxConcurrent"`

	CreatedAt time.Time `json:"createdAt"`
	Status    Status    `json:"status"`
}

func (c Campaign) RecordID() string { return c.ID }

type Status string

const (
	StatusReady     Status = "ready"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
)

// CanTransitionTo allows ready -> running -> completed and ready -> completed.
// A transition to the current status is accepted as a no-op; completed is final.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusReady:
		return next == StatusRunning || next == StatusCompleted
	case StatusRunning:
		return next == StatusCompleted
	default:
		return false
	}
}

const (
	DefaultName          = "Default Campaign"
	DefaultScript        = "Hello, this is our AI assistant..."
	DefaultMaxConcurrent = 3
)
