package reporting

import "time"

// TimeRange filters calls by creation time. A zero bound is open.
type TimeRange struct {
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`
}

func (r TimeRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

type SummaryRequest struct {
	CampaignID string    `json:"campaignId"`
	Range      TimeRange `json:"range"`
}

// CampaignSummary aggregates one campaign's calls.
//
// Connected calls are the completed ones; rates are fractions of attempted calls and
// are zero when nothing was attempted.
type CampaignSummary struct {
	CampaignID string `json:"campaignId"`

	Attempted     int `json:"attempted"`
	InProgress    int `json:"inProgress"`
	Connected     int `json:"connected"`
	Failed        int `json:"failed"`
	Qualified     int `json:"qualified"`
	NotInterested int `json:"notInterested"`

	ConnectionRate    float64 `json:"connectionRate"`
	QualificationRate float64 `json:"qualificationRate"`
}
