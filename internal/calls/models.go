package calls

import "time"

// Call is one attempt to reach a lead on behalf of a campaign.
//
// Invariant: a call is immutable once its status is terminal; neither the status nor
// the log may change afterwards.
//
// NOTE: ProviderRef holds the provider's identifier (e.g. Twilio CallSid) or a simulated
// reference. Provider payloads are never stored on the call itself.
type Call struct {
	ID         string `json:"id"`
	CampaignID string `json:"campaignId"`
	LeadID     string `json:"leadId"`

	Phone string `json:"phone"`

	Status      Status      `json:"status"`
	Disposition Disposition `json:"disposition"`

	ProviderRef string `json:"providerRef,omitempty"`

	CreatedAt time.Time `json:"createdAt"`

	Log []LogEntry `json:"log"`
}

func (c Call) RecordID() string { return c.ID }

// LogEntry is one timestamped line of a call's chronological event log.
type LogEntry struct {
	Timestamp time.Time `json:"ts"`
	Message   string    `json:"message"`
}

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo allows only in_progress -> {completed, failed}.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusInProgress && next.IsTerminal()
}

// Disposition is the qualification result recorded on a completed call.
// Failed calls carry DispositionNone.
type Disposition string

const (
	DispositionNone          Disposition = ""
	DispositionQualified     Disposition = "qualified"
	DispositionNotInterested Disposition = "not_interested"
)

func (d Disposition) Valid() bool {
	switch d {
	case DispositionNone, DispositionQualified, DispositionNotInterested:
		return true
	default:
		return false
	}
}
