// Package store persists leads, calls and campaigns.
//
// Every mutation is a per-record operation executed under the owning collection's
// lock (or a row lock for Postgres), so concurrent dispatch ticks and call pipelines
// can never lose each other's updates.
package store

import (
	"context"
	"errors"

	"github.com/sachida369/AICaller/internal/calls"
	"github.com/sachida369/AICaller/internal/campaigns"
	"github.com/sachida369/AICaller/internal/leads"
)

var (
	ErrNotFound          = errors.New("store: not found")
	ErrInvalidTransition = errors.New("store: invalid status transition")
	ErrDuplicateID       = errors.New("store: duplicate id")
	ErrConflict          = errors.New("store: conflicting record")

	// ErrCorrupt means the backing data could not be read or decoded. It is never
	// repaired automatically and never treated as an empty collection.
	ErrCorrupt = errors.New("store: corrupt collection")
)

// Store is the full record contract implemented by JSONStore and Postgres.
type Store interface {
	AppendLeads(ctx context.Context, in []leads.Lead) error
	ListLeads(ctx context.Context) ([]leads.Lead, error)
	GetLead(ctx context.Context, id string) (leads.Lead, error)
	// ClaimNextLead atomically moves the first pending lead (stored order) to dialing.
	ClaimNextLead(ctx context.Context) (leads.Lead, bool, error)
	SetLeadStatus(ctx context.Context, id string, to leads.Status) error

	CreateCampaign(ctx context.Context, c campaigns.Campaign) error
	GetCampaign(ctx context.Context, id string) (campaigns.Campaign, error)
	ListCampaigns(ctx context.Context) ([]campaigns.Campaign, error)
	TransitionCampaign(ctx context.Context, id string, to campaigns.Status) (campaigns.Campaign, error)

	CreateCall(ctx context.Context, c calls.Call) error
	GetCall(ctx context.Context, id string) (calls.Call, error)
	// ListCalls returns calls for campaignID, or every call when campaignID is empty.
	ListCalls(ctx context.Context, campaignID string) ([]calls.Call, error)
	CountInProgress(ctx context.Context, campaignID string) (int, error)
	AppendCallLog(ctx context.Context, id string, entry calls.LogEntry) error
	SetCallProviderRef(ctx context.Context, id, ref string) error
	FinishCall(ctx context.Context, id string, status calls.Status, disposition calls.Disposition) error
}

func validateFinish(from, to calls.Status, d calls.Disposition) error {
	if !from.CanTransitionTo(to) {
		return ErrInvalidTransition
	}
	if !d.Valid() {
		return ErrInvalidTransition
	}
	if to == calls.StatusFailed && d != calls.DispositionNone {
		return ErrInvalidTransition
	}
	if to == calls.StatusCompleted && d == calls.DispositionNone {
		return ErrInvalidTransition
	}
	return nil
}
