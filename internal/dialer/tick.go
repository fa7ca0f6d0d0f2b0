package dialer

import (
	"context"
	"errors"
	"fmt"

	"github.com/sachida369/AICaller/internal/audit"
	"github.com/sachida369/AICaller/internal/calls"
	"github.com/sachida369/AICaller/internal/campaigns"
	"github.com/sachida369/AICaller/internal/leads"
	"github.com/sachida369/AICaller/internal/store"
)

type TickResult int

const (
	// TickDispatched: a lead was claimed and its call pipeline started.
	TickDispatched TickResult = iota + 1
	// TickBackpressure: the ceiling or the limiter denied a new call.
	TickBackpressure
	// TickDraining: no pending leads, but this campaign still has calls in flight.
	TickDraining
	// TickCompleted: no pending leads and nothing in flight; the campaign is now completed.
	TickCompleted
	// TickInactive: the campaign is missing or no longer running.
	TickInactive
)

func (r TickResult) String() string {
	switch r {
	case TickDispatched:
		return "dispatched"
	case TickBackpressure:
		return "backpressure"
	case TickDraining:
		return "draining"
	case TickCompleted:
		return "completed"
	case TickInactive:
		return "inactive"
	default:
		return fmt.Sprintf("TickResult(%d)", int(r))
	}
}

// Tick runs one dispatch step for a campaign. Ticks of the same campaign are
// serialized, so counting in-progress calls, claiming a lead and creating its call
// happen as one unit with respect to that campaign's ceiling.
func (m *Manager) Tick(ctx context.Context, id string) (TickResult, error) {
	if !m.beginTick() {
		return TickInactive, nil
	}
	defer m.ticks.Done()

	st := m.state(id)
	st.tickMu.Lock()
	defer st.tickMu.Unlock()

	c, err := m.store.GetCampaign(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return TickInactive, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load campaign: %w", err)
	}
	if c.Status != campaigns.StatusRunning {
		return TickInactive, nil
	}

	n, err := m.store.CountInProgress(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("count in-progress calls: %w", err)
	}
	if n >= c.MaxConcurrent {
		return TickBackpressure, nil
	}

	ok, err := m.limiter.Acquire(ctx, id, c.MaxConcurrent)
	if err != nil {
		return 0, fmt.Errorf("acquire slot: %w", err)
	}
	if !ok {
		return TickBackpressure, nil
	}

	lead, found, err := m.store.ClaimNextLead(ctx)
	if err != nil {
		m.releaseSlot(id)
		return 0, fmt.Errorf("claim lead: %w", err)
	}
	if !found {
		m.releaseSlot(id)
		if st.inflight.Load() > 0 {
			return TickDraining, nil
		}
		return m.complete(ctx, id)
	}

	call := calls.Call{
		ID:         m.newID(),
		CampaignID: c.ID,
		LeadID:     lead.ID,
		Phone:      lead.Phone,
		Status:     calls.StatusInProgress,
		CreatedAt:  m.now().UTC(),
		Log:        []calls.LogEntry{},
	}
	if err := m.store.CreateCall(ctx, call); err != nil {
		m.releaseSlot(id)
		// The lead is already dialing; leaving it there would strand it.
		if lerr := m.store.SetLeadStatus(ctx, lead.ID, leads.StatusFailed); lerr != nil {
			m.log.Error("failed to release stranded lead", "campaign_id", id, "lead_id", lead.ID, "err", lerr)
		}
		return 0, fmt.Errorf("create call: %w", err)
	}

	st.inflight.Add(1)
	m.pipelines.Add(1)
	go m.runPipeline(c, lead, call, st)

	m.log.Debug("call dispatched", "campaign_id", id, "lead_id", lead.ID, "call_id", call.ID, "in_progress", n+1)
	return TickDispatched, nil
}

func (m *Manager) complete(ctx context.Context, id string) (TickResult, error) {
	_, err := m.store.TransitionCampaign(ctx, id, campaigns.StatusCompleted)
	if errors.Is(err, store.ErrInvalidTransition) || errors.Is(err, store.ErrNotFound) {
		return TickInactive, nil
	}
	if err != nil {
		return 0, fmt.Errorf("complete campaign: %w", err)
	}
	m.record(ctx, audit.EventCampaignCompleted, id, "no pending leads left")
	return TickCompleted, nil
}

func (m *Manager) releaseSlot(id string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(m.baseCtx), m.finalizeTimeout)
	defer cancel()
	if err := m.limiter.Release(ctx, id); err != nil {
		m.log.Warn("release slot failed", "campaign_id", id, "err", err)
	}
}
