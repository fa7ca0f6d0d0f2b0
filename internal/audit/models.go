package audit

import "time"

// Event is an immutable, append-only record of an operator-visible campaign action.
//
// Invariants:
// - Events are never updated or deleted.
// - actor and ip capture are best-effort; do not block dialing on audit failures.
type Event struct {
	ID string `json:"id"`

	// CampaignID is empty for events that are not tied to one campaign (lead imports).
	CampaignID string `json:"campaignId,omitempty"`

	Type EventType `json:"type"`

	// ActorSubject is the authenticated token subject, when auth is enabled.
	ActorSubject string `json:"actor,omitempty"`

	// IPAddress is the resolved client IP of the HTTP request that caused the event.
	IPAddress string `json:"ipAddress,omitempty"`

	// Message is a short human-readable description.
	Message string `json:"message,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

type EventType string

const (
	EventCampaignCreated   EventType = "campaign_created"
	EventCampaignStarted   EventType = "campaign_started"
	EventCampaignStopped   EventType = "campaign_stopped"
	EventCampaignCompleted EventType = "campaign_completed"
	EventLeadsImported     EventType = "leads_imported"
	EventCallsRecovered    EventType = "calls_recovered"
)
