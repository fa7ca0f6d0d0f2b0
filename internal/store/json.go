package store

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sachida369/AICaller/internal/calls"
	"github.com/sachida369/AICaller/internal/campaigns"
	"github.com/sachida369/AICaller/internal/leads"
)

// JSONStore keeps the three collections as independent JSON arrays, either as
// leads.json, calls.json and campaigns.json in a data directory or in memory.
type JSONStore struct {
	leads     *Collection[leads.Lead]
	calls     *Collection[calls.Call]
	campaigns *Collection[campaigns.Campaign]
}

var _ Store = (*JSONStore)(nil)

// OpenJSON opens (and initializes when absent) the flat-file collections under dir.
func OpenJSON(dir string) (*JSONStore, error) {
	l, err := NewFileCollection[leads.Lead]("leads", filepath.Join(dir, "leads.json"))
	if err != nil {
		return nil, err
	}
	c, err := NewFileCollection[calls.Call]("calls", filepath.Join(dir, "calls.json"))
	if err != nil {
		return nil, err
	}
	cp, err := NewFileCollection[campaigns.Campaign]("campaigns", filepath.Join(dir, "campaigns.json"))
	if err != nil {
		return nil, err
	}
	return &JSONStore{leads: l, calls: c, campaigns: cp}, nil
}

// NewMemory returns a JSONStore that never touches disk.
func NewMemory() *JSONStore {
	return &JSONStore{
		leads:     NewMemoryCollection[leads.Lead]("leads"),
		calls:     NewMemoryCollection[calls.Call]("calls"),
		campaigns: NewMemoryCollection[campaigns.Campaign]("campaigns"),
	}
}

// Leads, Calls and Campaigns expose the raw collections for bulk load/save.
func (s *JSONStore) Leads() *Collection[leads.Lead]             { return s.leads }
func (s *JSONStore) Calls() *Collection[calls.Call]             { return s.calls }
func (s *JSONStore) Campaigns() *Collection[campaigns.Campaign] { return s.campaigns }

/* ===================== LEADS ===================== */

func (s *JSONStore) AppendLeads(ctx context.Context, in []leads.Lead) error {
	if len(in) == 0 {
		return nil
	}
	return s.leads.Update(ctx, func(items []leads.Lead) ([]leads.Lead, error) {
		seen := make(map[string]struct{}, len(items)+len(in))
		for _, l := range items {
			seen[l.ID] = struct{}{}
		}
		for _, l := range in {
			if l.ID == "" {
				return nil, fmt.Errorf("%w: lead id required", ErrConflict)
			}
			if _, dup := seen[l.ID]; dup {
				return nil, fmt.Errorf("%w: lead %s", ErrDuplicateID, l.ID)
			}
			seen[l.ID] = struct{}{}
		}
		return append(items, in...), nil
	})
}

func (s *JSONStore) ListLeads(ctx context.Context) ([]leads.Lead, error) {
	return s.leads.Load(ctx)
}

func (s *JSONStore) GetLead(ctx context.Context, id string) (leads.Lead, error) {
	items, err := s.leads.Load(ctx)
	if err != nil {
		return leads.Lead{}, err
	}
	i := indexOf(items, id)
	if i < 0 {
		return leads.Lead{}, fmt.Errorf("%w: lead %s", ErrNotFound, id)
	}
	return items[i], nil
}

func (s *JSONStore) ClaimNextLead(ctx context.Context) (leads.Lead, bool, error) {
	var claimed leads.Lead
	found := false
	err := s.leads.Update(ctx, func(items []leads.Lead) ([]leads.Lead, error) {
		for i := range items {
			if items[i].Status == leads.StatusPending {
				items[i].Status = leads.StatusDialing
				claimed = items[i]
				found = true
				return items, nil
			}
		}
		return nil, errNoChange
	})
	if err != nil {
		return leads.Lead{}, false, err
	}
	return claimed, found, nil
}

func (s *JSONStore) SetLeadStatus(ctx context.Context, id string, to leads.Status) error {
	return s.leads.Update(ctx, func(items []leads.Lead) ([]leads.Lead, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: lead %s", ErrNotFound, id)
		}
		if !items[i].Status.CanTransitionTo(to) {
			return nil, fmt.Errorf("%w: lead %s %s -> %s", ErrInvalidTransition, id, items[i].Status, to)
		}
		items[i].Status = to
		return items, nil
	})
}

/* ===================== CAMPAIGNS ===================== */

func (s *JSONStore) CreateCampaign(ctx context.Context, c campaigns.Campaign) error {
	if c.ID == "" {
		return fmt.Errorf("%w: campaign id required", ErrConflict)
	}
	return s.campaigns.Update(ctx, func(items []campaigns.Campaign) ([]campaigns.Campaign, error) {
		if indexOf(items, c.ID) >= 0 {
			return nil, fmt.Errorf("%w: campaign %s", ErrDuplicateID, c.ID)
		}
		return append(items, c), nil
	})
}

func (s *JSONStore) GetCampaign(ctx context.Context, id string) (campaigns.Campaign, error) {
	items, err := s.campaigns.Load(ctx)
	if err != nil {
		return campaigns.Campaign{}, err
	}
	i := indexOf(items, id)
	if i < 0 {
		return campaigns.Campaign{}, fmt.Errorf("%w: campaign %s", ErrNotFound, id)
	}
	return items[i], nil
}

func (s *JSONStore) ListCampaigns(ctx context.Context) ([]campaigns.Campaign, error) {
	return s.campaigns.Load(ctx)
}

func (s *JSONStore) TransitionCampaign(ctx context.Context, id string, to campaigns.Status) (campaigns.Campaign, error) {
	var out campaigns.Campaign
	err := s.campaigns.Update(ctx, func(items []campaigns.Campaign) ([]campaigns.Campaign, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: campaign %s", ErrNotFound, id)
		}
		from := items[i].Status
		if !from.CanTransitionTo(to) {
			return nil, fmt.Errorf("%w: campaign %s %s -> %s", ErrInvalidTransition, id, from, to)
		}
		out = items[i]
		if from == to {
			return nil, errNoChange
		}
		items[i].Status = to
		out = items[i]
		return items, nil
	})
	if err != nil {
		return campaigns.Campaign{}, err
	}
	return out, nil
}

/* ===================== CALLS ===================== */

func (s *JSONStore) CreateCall(ctx context.Context, c calls.Call) error {
	if c.ID == "" {
		return fmt.Errorf("%w: call id required", ErrConflict)
	}
	if c.Log == nil {
		c.Log = []calls.LogEntry{}
	}
	return s.calls.Update(ctx, func(items []calls.Call) ([]calls.Call, error) {
		for _, existing := range items {
			if existing.ID == c.ID {
				return nil, fmt.Errorf("%w: call %s", ErrDuplicateID, c.ID)
			}
			if existing.LeadID == c.LeadID && !existing.Status.IsTerminal() {
				return nil, fmt.Errorf("%w: lead %s already has call %s in progress", ErrConflict, c.LeadID, existing.ID)
			}
		}
		return append(items, c), nil
	})
}

func (s *JSONStore) GetCall(ctx context.Context, id string) (calls.Call, error) {
	items, err := s.calls.Load(ctx)
	if err != nil {
		return calls.Call{}, err
	}
	i := indexOf(items, id)
	if i < 0 {
		return calls.Call{}, fmt.Errorf("%w: call %s", ErrNotFound, id)
	}
	return items[i], nil
}

func (s *JSONStore) ListCalls(ctx context.Context, campaignID string) ([]calls.Call, error) {
	items, err := s.calls.Load(ctx)
	if err != nil {
		return nil, err
	}
	if campaignID == "" {
		return items, nil
	}
	out := make([]calls.Call, 0)
	for _, c := range items {
		if c.CampaignID == campaignID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *JSONStore) CountInProgress(ctx context.Context, campaignID string) (int, error) {
	items, err := s.calls.Load(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range items {
		if c.CampaignID == campaignID && c.Status == calls.StatusInProgress {
			n++
		}
	}
	return n, nil
}

func (s *JSONStore) AppendCallLog(ctx context.Context, id string, entry calls.LogEntry) error {
	return s.mutateOpenCall(ctx, id, func(c *calls.Call) error {
		c.Log = append(c.Log, entry)
		return nil
	})
}

func (s *JSONStore) SetCallProviderRef(ctx context.Context, id, ref string) error {
	return s.mutateOpenCall(ctx, id, func(c *calls.Call) error {
		c.ProviderRef = ref
		return nil
	})
}

func (s *JSONStore) FinishCall(ctx context.Context, id string, status calls.Status, disposition calls.Disposition) error {
	return s.mutateOpenCall(ctx, id, func(c *calls.Call) error {
		if err := validateFinish(c.Status, status, disposition); err != nil {
			return fmt.Errorf("%w: call %s %s -> %s (%q)", err, id, c.Status, status, disposition)
		}
		c.Status = status
		c.Disposition = disposition
		return nil
	})
}

// mutateOpenCall applies fn to a non-terminal call; terminal calls are immutable.
func (s *JSONStore) mutateOpenCall(ctx context.Context, id string, fn func(c *calls.Call) error) error {
	return s.calls.Update(ctx, func(items []calls.Call) ([]calls.Call, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: call %s", ErrNotFound, id)
		}
		if items[i].Status.IsTerminal() {
			return nil, fmt.Errorf("%w: call %s is %s", ErrInvalidTransition, id, items[i].Status)
		}
		if err := fn(&items[i]); err != nil {
			return nil, err
		}
		return items, nil
	})
}
