package dialer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sachida369/AICaller/internal/calls"
	"github.com/sachida369/AICaller/internal/campaigns"
	"github.com/sachida369/AICaller/internal/leads"
	"github.com/sachida369/AICaller/internal/telephony"
)

const simulatedBanner = "Simulated call started (no Twilio credentials set)"

// runPipeline places one call, drives the conversation and resolves both the call
// and its lead. Every exit path returns the limiter slot.
func (m *Manager) runPipeline(c campaigns.Campaign, lead leads.Lead, call calls.Call, st *campaignState) {
	defer m.pipelines.Done()
	defer m.pipelineDone(c.ID, st)
	defer m.releaseSlot(c.ID)

	log := m.log.With("campaign_id", c.ID, "lead_id", lead.ID, "call_id", call.ID)

	outcome, err := m.converse(m.baseCtx, c, lead, call, log)

	// Resolution must land even when shutdown cancelled the pipeline.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(m.baseCtx), m.finalizeTimeout)
	defer cancel()

	if err != nil {
		log.Warn("call failed", "err", err)
		m.appendLog(ctx, call.ID, failureMessage(err), log)
		m.resolve(ctx, lead.ID, leads.StatusFailed, call.ID, calls.StatusFailed, calls.DispositionNone, log)
		return
	}

	switch outcome {
	case telephony.OutcomeQualified:
		m.resolve(ctx, lead.ID, leads.StatusQualified, call.ID, calls.StatusCompleted, calls.DispositionQualified, log)
	default:
		m.resolve(ctx, lead.ID, leads.StatusNotInterested, call.ID, calls.StatusCompleted, calls.DispositionNotInterested, log)
	}
	log.Info("call completed", "outcome", string(outcome))
}

func (m *Manager) converse(ctx context.Context, c campaigns.Campaign, lead leads.Lead, call calls.Call, log *slog.Logger) (telephony.Outcome, error) {
	ref, err := m.placer.Place(ctx, telephony.PlaceRequest{
		CallID:   call.ID,
		To:       lead.Phone,
		Greeting: telephony.Greeting(lead.Name, c.Script),
	})
	if err != nil {
		return "", err
	}

	if err := m.store.SetCallProviderRef(ctx, call.ID, ref.ID); err != nil {
		return "", fmt.Errorf("record provider ref: %w", err)
	}
	msg := "call placed: " + ref.ID
	if ref.Simulated {
		msg = simulatedBanner
	}
	if err := m.store.AppendCallLog(ctx, call.ID, m.entry(msg)); err != nil {
		return "", fmt.Errorf("append call log: %w", err)
	}
	log.Debug("call placed", "provider_ref", ref.ID, "simulated", ref.Simulated)

	return m.conv.Converse(ctx, telephony.ConversationRequest{
		CallRef:  ref,
		LeadName: lead.Name,
		Phone:    lead.Phone,
		Script:   c.Script,
	}, func(ctx context.Context, message string) error {
		return m.store.AppendCallLog(ctx, call.ID, m.entry(message))
	})
}

func (m *Manager) pipelineDone(id string, st *campaignState) {
	if st.inflight.Add(-1) == 0 {
		m.dropIdleState(id)
	}
}

func (m *Manager) resolve(ctx context.Context, leadID string, ls leads.Status, callID string, cs calls.Status, d calls.Disposition, log *slog.Logger) {
	if err := m.store.SetLeadStatus(ctx, leadID, ls); err != nil {
		log.Error("update lead status failed", "status", string(ls), "err", err)
	}
	if err := m.store.FinishCall(ctx, callID, cs, d); err != nil {
		log.Error("finish call failed", "status", string(cs), "err", err)
	}
}

func (m *Manager) appendLog(ctx context.Context, callID, message string, log *slog.Logger) {
	if err := m.store.AppendCallLog(ctx, callID, m.entry(message)); err != nil {
		log.Warn("append call log failed", "err", err)
	}
}

func (m *Manager) entry(message string) calls.LogEntry {
	return calls.LogEntry{Timestamp: m.now().UTC(), Message: message}
}

func failureMessage(err error) string {
	var pe *telephony.PlacementError
	switch {
	case errors.As(err, &pe):
		return "placement failed: " + pe.Error()
	case errors.Is(err, context.Canceled):
		return "call interrupted: dialer shutting down"
	default:
		return "call failed: " + err.Error()
	}
}
