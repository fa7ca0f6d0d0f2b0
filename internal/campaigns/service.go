package campaigns

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sachida369/AICaller/internal/calls"

	"github.com/google/uuid"
)

var ErrInvalidArgument = errors.New("campaigns: invalid argument")

// Repository abstracts campaign persistence plus the call lookup needed for status views.
type Repository interface {
	CreateCampaign(ctx context.Context, c Campaign) error
	GetCampaign(ctx context.Context, id string) (Campaign, error)
	ListCampaigns(ctx context.Context) ([]Campaign, error)
	ListCalls(ctx context.Context, campaignID string) ([]calls.Call, error)
}

type Service struct {
	repo Repository

	defaultMaxConcurrent int

	newID func() string
	clock func() time.Time
}

func NewService(repo Repository, defaultMaxConcurrent int) *Service {
	if defaultMaxConcurrent <= 0 {
		defaultMaxConcurrent = DefaultMaxConcurrent
	}
	return &Service{repo: repo, defaultMaxConcurrent: defaultMaxConcurrent, newID: uuid.NewString, clock: time.Now}
}

type CreateRequest struct {
	Name   string `json:"name"`
	Script string `json:"script"`

	// MaxConcurrent of zero selects the configured default.
	MaxConcurrent int `json:"maxConcurrent"`
}

// Create stores a new campaign in status ready.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Campaign, error) {
	if s.repo == nil {
		return Campaign{}, errors.New("campaigns: repository not configured")
	}
	if req.MaxConcurrent < 0 {
		return Campaign{}, fmt.Errorf("%w: maxConcurrent must be positive", ErrInvalidArgument)
	}

	c := Campaign{
		ID:            s.newID(),
		Name:          strings.TrimSpace(req.Name),
		Script:        strings.TrimSpace(req.Script),
		MaxConcurrent: req.MaxConcurrent,
		CreatedAt:     s.clock().UTC(),
		Status:        StatusReady,
	}
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.Script == "" {
		c.Script = DefaultScript
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = s.defaultMaxConcurrent
	}

	if err := s.repo.CreateCampaign(ctx, c); err != nil {
		return Campaign{}, err
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, id string) (Campaign, error) {
	if id == "" {
		return Campaign{}, ErrInvalidArgument
	}
	return s.repo.GetCampaign(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Campaign, error) {
	return s.repo.ListCampaigns(ctx)
}

// Status returns the campaign together with every call placed for it, in creation order.
func (s *Service) Status(ctx context.Context, id string) (Campaign, []calls.Call, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return Campaign{}, nil, err
	}
	cs, err := s.repo.ListCalls(ctx, id)
	if err != nil {
		return Campaign{}, nil, err
	}
	return c, cs, nil
}
