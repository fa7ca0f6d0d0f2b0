package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.
type Repository interface {
	Append(ctx context.Context, e Event) error
	// List returns events in append order, filtered by campaign when campaignID is set.
	List(ctx context.Context, campaignID string) ([]Event, error)
}

// Service records campaign lifecycle events.
//
// Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	if e.IPAddress == "" {
		e.IPAddress = ClientIPFromContext(ctx)
	}
	if e.ActorSubject == "" {
		e.ActorSubject = ActorFromContext(ctx)
	}
	return s.repo.Append(ctx, e)
}

// Record is the shorthand used by the dialer and handlers.
func (s *Service) Record(ctx context.Context, typ EventType, campaignID, message string) error {
	return s.Append(ctx, Event{Type: typ, CampaignID: campaignID, Message: message})
}

func (s *Service) List(ctx context.Context, campaignID string) ([]Event, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	return s.repo.List(ctx, campaignID)
}
