package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sachida369/AICaller/internal/calls"
)

type stubRepo struct {
	calls []calls.Call
	err   error
}

func (r stubRepo) ListCalls(ctx context.Context, campaignID string) ([]calls.Call, error) {
	if r.err != nil {
		return nil, r.err
	}
	out := make([]calls.Call, 0)
	for _, c := range r.calls {
		if c.CampaignID == campaignID {
			out = append(out, c)
		}
	}
	return out, nil
}

func TestCampaignSummary_Aggregates(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	repo := stubRepo{calls: []calls.Call{
		{ID: "1", CampaignID: "camp", Status: calls.StatusCompleted, Disposition: calls.DispositionQualified, CreatedAt: now},
		{ID: "2", CampaignID: "camp", Status: calls.StatusCompleted, Disposition: calls.DispositionQualified, CreatedAt: now},
		{ID: "3", CampaignID: "camp", Status: calls.StatusCompleted, Disposition: calls.DispositionNotInterested, CreatedAt: now},
		{ID: "4", CampaignID: "camp", Status: calls.StatusFailed, CreatedAt: now},
		{ID: "5", CampaignID: "camp", Status: calls.StatusInProgress, CreatedAt: now},
		{ID: "6", CampaignID: "other", Status: calls.StatusCompleted, Disposition: calls.DispositionQualified, CreatedAt: now},
	}}

	out, err := NewService(repo).CampaignSummary(context.Background(), SummaryRequest{CampaignID: "camp"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Attempted != 5 || out.Connected != 3 || out.Failed != 1 || out.InProgress != 1 {
		t.Fatalf("unexpected counts: %+v", out)
	}
	if out.Qualified != 2 || out.NotInterested != 1 {
		t.Fatalf("unexpected dispositions: %+v", out)
	}
	if out.ConnectionRate != 0.6 || out.QualificationRate != 0.4 {
		t.Fatalf("unexpected rates: %+v", out)
	}
}

func TestCampaignSummary_RangeFilter(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	repo := stubRepo{calls: []calls.Call{
		{ID: "old", CampaignID: "camp", Status: calls.StatusFailed, CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "new", CampaignID: "camp", Status: calls.StatusCompleted, Disposition: calls.DispositionQualified, CreatedAt: now},
	}}

	out, err := NewService(repo).CampaignSummary(context.Background(), SummaryRequest{
		CampaignID: "camp",
		Range:      TimeRange{From: now.Add(-time.Hour)},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Attempted != 1 || out.Qualified != 1 {
		t.Fatalf("expected only the recent call, got %+v", out)
	}
}

func TestCampaignSummary_Empty(t *testing.T) {
	out, err := NewService(stubRepo{}).CampaignSummary(context.Background(), SummaryRequest{CampaignID: "camp"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Attempted != 0 || out.ConnectionRate != 0 {
		t.Fatalf("expected empty summary, got %+v", out)
	}
}

func TestCampaignSummary_InvalidRequests(t *testing.T) {
	svc := NewService(stubRepo{})
	now := time.Now()

	if _, err := svc.CampaignSummary(context.Background(), SummaryRequest{}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	_, err := svc.CampaignSummary(context.Background(), SummaryRequest{CampaignID: "c", Range: TimeRange{From: now, To: now.Add(-time.Minute)}})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for inverted range, got %v", err)
	}

	boom := errors.New("boom")
	if _, err := NewService(stubRepo{err: boom}).CampaignSummary(context.Background(), SummaryRequest{CampaignID: "c"}); !errors.Is(err, boom) {
		t.Fatalf("expected repo error, got %v", err)
	}
}
