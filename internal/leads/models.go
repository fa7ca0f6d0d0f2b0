package leads

import "time"

// Lead is a prospective contact to be called.
//
// Leads are created by the importer and mutated only through status transitions
// (see Status.CanTransitionTo). They are never deleted.
type Lead struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Company string `json:"company"`
	Email   string `json:"email"`

	Status Status `json:"status"`

	// Notes is carried for compatibility with the flat-file layout; nothing writes it yet.
	Notes []string `json:"notes"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
}

func (l Lead) RecordID() string { return l.ID }

type Status string

const (
	StatusPending       Status = "pending"
	StatusDialing       Status = "dialing"
	StatusQualified     Status = "qualified"
	StatusNotInterested Status = "not_interested"
	StatusFailed        Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDialing, StatusQualified, StatusNotInterested, StatusFailed:
		return true
	default:
		return false
	}
}

func (s Status) IsTerminal() bool {
	return s == StatusQualified || s == StatusNotInterested || s == StatusFailed
}

// CanTransitionTo enforces pending -> dialing -> {qualified, not_interested, failed}.
// There are no reverse transitions and no self transitions.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusDialing
	case StatusDialing:
		return next.IsTerminal()
	default:
		return false
	}
}
