package telephony

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
)

// Placer starts an outbound call at the provider boundary.
//
// Rules:
// - No provider SDK calls outside telephony adapters.
// - Every failure is returned as *PlacementError so callers can log one uniform message.
type Placer interface {
	Place(ctx context.Context, req PlaceRequest) (CallRef, error)
}

type PlaceRequest struct {
	// CallID is the internal call identifier; adapters use it for status callbacks.
	CallID string

	// To is the dialed number, E.164 where possible.
	To string

	// Greeting is the opening line spoken once the call connects.
	Greeting string
}

// CallRef identifies a placed call at the provider.
type CallRef struct {
	ID        string
	Simulated bool
}

type PlacementErrorKind string

const (
	PlacementInvalidNumber PlacementErrorKind = "invalid_number"
	PlacementRejected      PlacementErrorKind = "rejected"
	PlacementTransport     PlacementErrorKind = "transport"
)

// PlacementError reports why a call could not be placed.
type PlacementError struct {
	Kind PlacementErrorKind

	// Code is the provider error code when one was returned.
	Code    int
	Message string

	Err error
}

func (e *PlacementError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != 0 {
		return fmt.Sprintf("placement %s (code %d): %s", e.Kind, e.Code, msg)
	}
	return fmt.Sprintf("placement %s: %s", e.Kind, msg)
}

func (e *PlacementError) Unwrap() error { return e.Err }

// IsPlacementError reports whether err carries a *PlacementError.
func IsPlacementError(err error) bool {
	var pe *PlacementError
	return errors.As(err, &pe)
}

// Conversation drives the exchange with a connected lead and resolves an outcome.
type Conversation interface {
	Converse(ctx context.Context, req ConversationRequest, t Transcript) (Outcome, error)
}

type ConversationRequest struct {
	CallRef  CallRef
	LeadName string
	Phone    string
	Script   string
}

// Transcript records one line of the conversation on the call's log.
type Transcript func(ctx context.Context, message string) error

type Outcome string

const (
	OutcomeQualified     Outcome = "qualified"
	OutcomeNotInterested Outcome = "not_interested"
)

func (o Outcome) Valid() bool {
	return o == OutcomeQualified || o == OutcomeNotInterested
}

// OutcomeFunc decides how a finished conversation is scored.
type OutcomeFunc func(req ConversationRequest) Outcome

// RandomOutcome qualifies a lead with probability rate.
func RandomOutcome(rate float64) OutcomeFunc {
	return func(ConversationRequest) Outcome {
		if rand.Float64() < rate {
			return OutcomeQualified
		}
		return OutcomeNotInterested
	}
}

// FixedOutcome always returns o.
func FixedOutcome(o Outcome) OutcomeFunc {
	return func(ConversationRequest) Outcome { return o }
}
