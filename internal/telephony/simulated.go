package telephony

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SimulatedPlacer stands in for a provider when no credentials are configured.
// It waits a bounded random delay and hands back a SIM- reference.
type SimulatedPlacer struct {
	MinDelay time.Duration
	MaxDelay time.Duration
}

func NewSimulatedPlacer() *SimulatedPlacer {
	return &SimulatedPlacer{MinDelay: 100 * time.Millisecond, MaxDelay: 400 * time.Millisecond}
}

func (p *SimulatedPlacer) Place(ctx context.Context, req PlaceRequest) (CallRef, error) {
	if strings.TrimSpace(req.To) == "" {
		return CallRef{}, &PlacementError{Kind: PlacementInvalidNumber, Message: "lead has no phone number"}
	}
	if err := sleepCtx(ctx, jitter(p.MinDelay, p.MaxDelay)); err != nil {
		return CallRef{}, &PlacementError{Kind: PlacementTransport, Message: "placement cancelled", Err: err}
	}
	return CallRef{ID: "SIM-" + uuid.NewString()[:8], Simulated: true}, nil
}

// ScriptedConversation replays a fixed three-step exchange with jittered pauses,
// then scores the lead with Outcome.
type ScriptedConversation struct {
	// Delays are the pauses after the first and second step.
	Delays []time.Duration
	Jitter time.Duration

	Outcome OutcomeFunc
}

func NewScriptedConversation(qualifyRate float64) *ScriptedConversation {
	return &ScriptedConversation{
		Delays:  []time.Duration{1500 * time.Millisecond, 1200 * time.Millisecond},
		Jitter:  250 * time.Millisecond,
		Outcome: RandomOutcome(qualifyRate),
	}
}

func (c *ScriptedConversation) Converse(ctx context.Context, req ConversationRequest, t Transcript) (Outcome, error) {
	name := strings.TrimSpace(req.LeadName)
	if name == "" {
		name = "lead"
	}
	steps := []string{
		fmt.Sprintf("Conversing with %s...", name),
		"Asked qualifying questions...",
		"Captured responses and scored lead...",
	}

	for i, msg := range steps {
		if err := t(ctx, msg); err != nil {
			return "", fmt.Errorf("conversation transcript: %w", err)
		}
		if i < len(c.Delays) {
			if err := sleepCtx(ctx, jitter(c.Delays[i], c.Delays[i]+c.Jitter)); err != nil {
				return "", fmt.Errorf("conversation interrupted: %w", err)
			}
		}
	}

	outcome := OutcomeNotInterested
	if c.Outcome != nil {
		outcome = c.Outcome(req)
	}
	if !outcome.Valid() {
		return "", fmt.Errorf("conversation produced unknown outcome %q", outcome)
	}
	return outcome, nil
}

func jitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
