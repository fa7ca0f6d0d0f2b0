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

const recoveredMessage = "call interrupted: dialer restarted"

type RecoveryReport struct {
	FailedCalls int
	FailedLeads int
	Resumed     []string
}

// Recover cleans up after a previous process and resumes its campaigns. Calls still
// in_progress and leads still dialing can only belong to that process, so both are
// failed; campaigns persisted as running get their loops back.
//
// Call it once, before Start, and only when this process is the sole dialer for the
// store.
func (m *Manager) Recover(ctx context.Context) (RecoveryReport, error) {
	var rep RecoveryReport

	all, err := m.store.ListCalls(ctx, "")
	if err != nil {
		return rep, fmt.Errorf("list calls: %w", err)
	}
	perCampaign := map[string]int{}
	for _, c := range all {
		if c.Status != calls.StatusInProgress {
			continue
		}
		if err := m.store.AppendCallLog(ctx, c.ID, m.entry(recoveredMessage)); err != nil && !errors.Is(err, store.ErrInvalidTransition) {
			return rep, fmt.Errorf("recover call %s: %w", c.ID, err)
		}
		if err := m.store.FinishCall(ctx, c.ID, calls.StatusFailed, calls.DispositionNone); err != nil && !errors.Is(err, store.ErrInvalidTransition) {
			return rep, fmt.Errorf("recover call %s: %w", c.ID, err)
		}
		rep.FailedCalls++
		perCampaign[c.CampaignID]++
	}

	ls, err := m.store.ListLeads(ctx)
	if err != nil {
		return rep, fmt.Errorf("list leads: %w", err)
	}
	for _, l := range ls {
		if l.Status != leads.StatusDialing {
			continue
		}
		if err := m.store.SetLeadStatus(ctx, l.ID, leads.StatusFailed); err != nil && !errors.Is(err, store.ErrInvalidTransition) {
			return rep, fmt.Errorf("recover lead %s: %w", l.ID, err)
		}
		rep.FailedLeads++
	}

	for id, n := range perCampaign {
		m.record(ctx, audit.EventCallsRecovered, id, fmt.Sprintf("%d interrupted calls failed", n))
	}

	cs, err := m.store.ListCampaigns(ctx)
	if err != nil {
		return rep, fmt.Errorf("list campaigns: %w", err)
	}
	for _, c := range cs {
		if c.Status != campaigns.StatusRunning {
			continue
		}
		if _, err := m.Start(ctx, c.ID); err != nil {
			return rep, fmt.Errorf("resume campaign %s: %w", c.ID, err)
		}
		rep.Resumed = append(rep.Resumed, c.ID)
	}

	if rep.FailedCalls > 0 || rep.FailedLeads > 0 || len(rep.Resumed) > 0 {
		m.log.Info("recovered previous run",
			"failed_calls", rep.FailedCalls,
			"failed_leads", rep.FailedLeads,
			"resumed_campaigns", len(rep.Resumed),
		)
	}
	return rep, nil
}
