package reporting

import (
	"context"
	"errors"

	"github.com/sachida369/AICaller/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting. The record store satisfies it.
type Repository interface {
	ListCalls(ctx context.Context, campaignID string) ([]calls.Call, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CampaignSummary(ctx context.Context, req SummaryRequest) (CampaignSummary, error) {
	if req.CampaignID == "" {
		return CampaignSummary{}, ErrInvalidRequest
	}
	if !req.Range.From.IsZero() && !req.Range.To.IsZero() && !req.Range.To.After(req.Range.From) {
		return CampaignSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CampaignSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListCalls(ctx, req.CampaignID)
	if err != nil {
		return CampaignSummary{}, err
	}

	out := CampaignSummary{CampaignID: req.CampaignID}
	for _, c := range rows {
		if !req.Range.Contains(c.CreatedAt) {
			continue
		}
		out.Attempted++
		switch c.Status {
		case calls.StatusInProgress:
			out.InProgress++
		case calls.StatusFailed:
			out.Failed++
		case calls.StatusCompleted:
			out.Connected++
			switch c.Disposition {
			case calls.DispositionQualified:
				out.Qualified++
			case calls.DispositionNotInterested:
				out.NotInterested++
			}
		}
	}
	if out.Attempted > 0 {
		out.ConnectionRate = float64(out.Connected) / float64(out.Attempted)
		out.QualificationRate = float64(out.Qualified) / float64(out.Attempted)
	}
	return out, nil
}
