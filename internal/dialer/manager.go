// Package dialer runs campaigns: one loop per running campaign dispatches pending
// leads into call pipelines without exceeding the campaign's concurrency ceiling.
package dialer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sachida369/AICaller/internal/audit"
	"github.com/sachida369/AICaller/internal/calls"
	"github.com/sachida369/AICaller/internal/campaigns"
	"github.com/sachida369/AICaller/internal/leads"
	"github.com/sachida369/AICaller/internal/store"
	"github.com/sachida369/AICaller/internal/telephony"

	"github.com/google/uuid"
)

var ErrShuttingDown = errors.New("dialer: shutting down")

// Store is the subset of store.Store the dialer needs.
type Store interface {
	ListLeads(ctx context.Context) ([]leads.Lead, error)
	ClaimNextLead(ctx context.Context) (leads.Lead, bool, error)
	SetLeadStatus(ctx context.Context, id string, to leads.Status) error

	GetCampaign(ctx context.Context, id string) (campaigns.Campaign, error)
	ListCampaigns(ctx context.Context) ([]campaigns.Campaign, error)
	TransitionCampaign(ctx context.Context, id string, to campaigns.Status) (campaigns.Campaign, error)

	CreateCall(ctx context.Context, c calls.Call) error
	ListCalls(ctx context.Context, campaignID string) ([]calls.Call, error)
	CountInProgress(ctx context.Context, campaignID string) (int, error)
	AppendCallLog(ctx context.Context, id string, entry calls.LogEntry) error
	SetCallProviderRef(ctx context.Context, id, ref string) error
	FinishCall(ctx context.Context, id string, status calls.Status, disposition calls.Disposition) error
}

// EventRecorder receives campaign lifecycle events. *audit.Service satisfies it.
type EventRecorder interface {
	Record(ctx context.Context, typ audit.EventType, campaignID, message string) error
}

type Options struct {
	// TickInterval is the dispatch cadence of every campaign loop.
	TickInterval time.Duration

	Placer       telephony.Placer
	Conversation telephony.Conversation

	// Limiter defaults to a LocalLimiter.
	Limiter Limiter

	Events EventRecorder
	Logger *slog.Logger

	// FinalizeTimeout bounds the store writes that resolve a pipeline after shutdown
	// has cancelled it.
	FinalizeTimeout time.Duration

	Now   func() time.Time
	NewID func() string
}

// Manager owns the loop handle of every running campaign and the pipelines those
// loops detach.
type Manager struct {
	store   Store
	placer  telephony.Placer
	conv    telephony.Conversation
	limiter Limiter
	events  EventRecorder
	log     *slog.Logger

	tickInterval    time.Duration
	finalizeTimeout time.Duration
	now             func() time.Time
	newID           func() string

	// baseCtx scopes pipelines; only Shutdown cancels it.
	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
	loops  map[string]*loop
	states map[string]*campaignState

	ticks     sync.WaitGroup
	pipelines sync.WaitGroup
}

// loop is the handle of one campaign's dispatch goroutine.
type loop struct {
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func (l *loop) signalStop() { l.stopOnce.Do(func() { close(l.stop) }) }

// campaignState serializes ticks of one campaign and counts its live pipelines.
type campaignState struct {
	tickMu   sync.Mutex
	inflight atomic.Int64
}

func NewManager(st Store, opts Options) (*Manager, error) {
	if st == nil {
		return nil, errors.New("dialer: store is required")
	}
	if opts.Placer == nil {
		return nil, errors.New("dialer: placer is required")
	}
	if opts.Conversation == nil {
		return nil, errors.New("dialer: conversation is required")
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.FinalizeTimeout <= 0 {
		opts.FinalizeTimeout = 10 * time.Second
	}
	if opts.Limiter == nil {
		opts.Limiter = NewLocalLimiter()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:           st,
		placer:          opts.Placer,
		conv:            opts.Conversation,
		limiter:         opts.Limiter,
		events:          opts.Events,
		log:             opts.Logger.With("component", "dialer"),
		tickInterval:    opts.TickInterval,
		finalizeTimeout: opts.FinalizeTimeout,
		now:             opts.Now,
		newID:           opts.NewID,
		baseCtx:         ctx,
		cancel:          cancel,
		loops:           map[string]*loop{},
		states:          map[string]*campaignState{},
	}, nil
}

// Start moves the campaign to running and starts its loop. Starting a campaign whose
// loop is already live returns it unchanged; a completed campaign cannot be started.
func (m *Manager) Start(ctx context.Context, id string) (campaigns.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return campaigns.Campaign{}, ErrShuttingDown
	}
	if _, ok := m.loops[id]; ok {
		return m.store.GetCampaign(ctx, id)
	}

	c, err := m.store.TransitionCampaign(ctx, id, campaigns.StatusRunning)
	if err != nil {
		return campaigns.Campaign{}, err
	}

	l := &loop{stop: make(chan struct{}), done: make(chan struct{})}
	m.loops[id] = l
	go m.run(id, l)

	m.record(ctx, audit.EventCampaignStarted, id, fmt.Sprintf("dialing with max %d concurrent calls", c.MaxConcurrent))
	return c, nil
}

// Stop marks the campaign completed and waits for its loop to exit. Calls already
// in flight keep running to their outcome.
func (m *Manager) Stop(ctx context.Context, id string) (campaigns.Campaign, error) {
	c, err := m.stopCampaign(ctx, id)
	if err != nil {
		return campaigns.Campaign{}, err
	}

	m.mu.Lock()
	l := m.loops[id]
	m.mu.Unlock()
	if l == nil {
		m.dropIdleState(id)
		return c, nil
	}

	l.signalStop()
	select {
	case <-l.done:
		m.dropIdleState(id)
		return c, nil
	case <-ctx.Done():
		return c, ctx.Err()
	}
}

// Running reports whether the campaign currently has a live loop.
func (m *Manager) Running(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.loops[id]
	return ok
}

// Wait blocks until the campaign's loop exits. It returns at once when no loop runs.
func (m *Manager) Wait(id string) {
	m.mu.Lock()
	l := m.loops[id]
	m.mu.Unlock()
	if l != nil {
		<-l.done
	}
}

// InFlight is the number of pipelines this process is running for the campaign.
func (m *Manager) InFlight(id string) int {
	m.mu.Lock()
	st, ok := m.states[id]
	m.mu.Unlock()
	if !ok {
		return 0
	}
	return int(st.inflight.Load())
}

// Shutdown stops every loop, cancels in-flight pipelines and waits for them to
// resolve their calls. Campaign statuses are left as they are so Recover can resume
// them on the next start.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	live := make([]*loop, 0, len(m.loops))
	for _, l := range m.loops {
		live = append(live, l)
	}
	m.mu.Unlock()

	for _, l := range live {
		l.signalStop()
	}
	m.cancel()

	done := make(chan struct{})
	go func() {
		for _, l := range live {
			<-l.done
		}
		m.ticks.Wait()
		m.pipelines.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.log.Info("dialer stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dialer shutdown: %w", ctx.Err())
	}
}

func (m *Manager) run(id string, l *loop) {
	defer close(l.done)
	defer m.removeLoop(id, l)

	log := m.log.With("campaign_id", id)
	log.Info("campaign loop started", "tick", m.tickInterval.String())

	t := time.NewTicker(m.tickInterval)
	defer t.Stop()

	for {
		select {
		case <-l.stop:
			log.Info("campaign loop stopped")
			return
		case <-t.C:
		}

		res, err := m.Tick(m.baseCtx, id)
		if err != nil {
			if errors.Is(err, store.ErrCorrupt) {
				log.Error("campaign loop halted: store corrupt", "err", err)
				return
			}
			if m.baseCtx.Err() != nil {
				return
			}
			log.Warn("tick failed, retrying next tick", "err", err)
			continue
		}

		switch res {
		case TickCompleted:
			log.Info("campaign completed")
			return
		case TickInactive:
			log.Info("campaign no longer running, loop exits")
			return
		}
	}
}

// stopCampaign marks the campaign completed while holding its tick lock, so a tick
// that already saw it running finishes dispatching before the status flips and no
// later tick can dispatch at all.
func (m *Manager) stopCampaign(ctx context.Context, id string) (campaigns.Campaign, error) {
	st := m.state(id)
	st.tickMu.Lock()
	defer st.tickMu.Unlock()

	cur, err := m.store.GetCampaign(ctx, id)
	if err != nil {
		return campaigns.Campaign{}, err
	}
	if cur.Status == campaigns.StatusCompleted {
		return cur, nil
	}
	c, err := m.store.TransitionCampaign(ctx, id, campaigns.StatusCompleted)
	if err != nil {
		return campaigns.Campaign{}, err
	}
	m.record(ctx, audit.EventCampaignStopped, id, "stopped by operator")
	return c, nil
}

func (m *Manager) removeLoop(id string, l *loop) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loops[id] == l {
		delete(m.loops, id)
		m.dropIdleStateLocked(id)
	}
}

func (m *Manager) dropIdleState(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropIdleStateLocked(id)
}

// dropIdleStateLocked forgets a campaign's tick state when no loop, pipeline or
// Stop still uses it. Callers hold m.mu.
func (m *Manager) dropIdleStateLocked(id string) {
	if _, live := m.loops[id]; live {
		return
	}
	st, ok := m.states[id]
	if !ok || st.inflight.Load() > 0 {
		return
	}
	if st.tickMu.TryLock() {
		delete(m.states, id)
		st.tickMu.Unlock()
	}
}

func (m *Manager) state(id string) *campaignState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[id]
	if !ok {
		st = &campaignState{}
		m.states[id] = st
	}
	return st
}

// beginTick registers a tick unless the manager is closed, so Shutdown never waits
// on a WaitGroup that is still growing.
func (m *Manager) beginTick() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.ticks.Add(1)
	return true
}

func (m *Manager) record(ctx context.Context, typ audit.EventType, campaignID, message string) {
	if m.events == nil {
		return
	}
	if err := m.events.Record(ctx, typ, campaignID, message); err != nil {
		m.log.Warn("audit record failed", "type", string(typ), "campaign_id", campaignID, "err", err)
	}
}
