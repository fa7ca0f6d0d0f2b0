package audit

import (
	"context"
	"testing"
	"time"
)

func TestService_AppendRequiresType(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	if err := svc.Append(context.Background(), Event{CampaignID: "c1"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestService_RecordCapturesRequestContext(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	svc.clock = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

	ctx := WithActor(WithClientIP(context.Background(), "1.2.3.4"), "ops@example.com")
	if err := svc.Record(ctx, EventCampaignStarted, "c1", "started"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event")
	}
	if evs[0].IPAddress != "1.2.3.4" {
		t.Fatalf("expected ip captured")
	}
	if evs[0].ActorSubject != "ops@example.com" {
		t.Fatalf("expected actor captured")
	}
	if evs[0].ID == "" || evs[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp to be assigned")
	}
}

func TestService_ListFiltersByCampaign(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	ctx := context.Background()

	_ = svc.Record(ctx, EventCampaignCreated, "c1", "")
	_ = svc.Record(ctx, EventLeadsImported, "", "3 leads")
	_ = svc.Record(ctx, EventCampaignCreated, "c2", "")
	_ = svc.Record(ctx, EventCampaignStarted, "c1", "")

	c1, err := svc.List(ctx, "c1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(c1) != 2 || c1[0].Type != EventCampaignCreated || c1[1].Type != EventCampaignStarted {
		t.Fatalf("unexpected events: %+v", c1)
	}

	all, _ := svc.List(ctx, "")
	if len(all) != 4 {
		t.Fatalf("expected 4 events, got %d", len(all))
	}
}

func TestWithClientIPIgnoresEmpty(t *testing.T) {
	ctx := WithClientIP(context.Background(), "")
	if ClientIPFromContext(ctx) != "" {
		t.Fatalf("expected empty ip")
	}
}
