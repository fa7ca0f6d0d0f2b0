package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sachida369/AICaller/internal/calls"
	"github.com/sachida369/AICaller/internal/campaigns"
	"github.com/sachida369/AICaller/internal/leads"
	"github.com/sachida369/AICaller/pkg/utils"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool used by Postgres. pgxmock pools satisfy it too.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Postgres implements Store on top of three tables. Insertion order is kept by
// a bigserial seq column so listings match the flat-file layout.
type Postgres struct {
	db DB
}

var _ Store = (*Postgres)(nil)

func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db}
}

const (
	pgUniqueViolation = "23505"

	// calls_one_open_per_lead keeps at most one in_progress call per lead.
	constraintOpenCallPerLead = "calls_one_open_per_lead"
)

const schema = `
CREATE TABLE IF NOT EXISTS leads (
  seq        BIGSERIAL PRIMARY KEY,
  id         TEXT NOT NULL UNIQUE,
  name       TEXT NOT NULL DEFAULT '',
  phone      TEXT NOT NULL DEFAULT '',
  company    TEXT NOT NULL DEFAULT '',
  email      TEXT NOT NULL DEFAULT '',
  status     TEXT NOT NULL,
  notes      JSONB NOT NULL DEFAULT '[]',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS leads_pending_idx ON leads (seq) WHERE status = 'pending';

CREATE TABLE IF NOT EXISTS campaigns (
  seq            BIGSERIAL PRIMARY KEY,
  id             TEXT NOT NULL UNIQUE,
  name           TEXT NOT NULL,
  script         TEXT NOT NULL,
  max_concurrent INTEGER NOT NULL CHECK (max_concurrent > 0),
  status         TEXT NOT NULL,
  created_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS calls (
  seq          BIGSERIAL PRIMARY KEY,
  id           TEXT NOT NULL UNIQUE,
  campaign_id  TEXT NOT NULL,
  lead_id      TEXT NOT NULL,
  phone        TEXT NOT NULL DEFAULT '',
  status       TEXT NOT NULL,
  disposition  TEXT NOT NULL DEFAULT '',
  provider_ref TEXT NOT NULL DEFAULT '',
  created_at   TIMESTAMPTZ NOT NULL,
  log          JSONB NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS calls_campaign_idx ON calls (campaign_id, seq);
CREATE UNIQUE INDEX IF NOT EXISTS calls_one_open_per_lead ON calls (lead_id) WHERE status = 'in_progress';
`

// Migrate creates the tables when absent. It is safe to run on every start.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

/* ===================== LEADS ===================== */

const leadColumns = `id, name, phone, company, email, status, notes, created_at`

func (p *Postgres) AppendLeads(ctx context.Context, in []leads.Lead) error {
	if len(in) == 0 {
		return nil
	}
	return utils.WithTx(ctx, p.db, func(ctx context.Context, tx pgx.Tx) error {
		const q = `
INSERT INTO leads (id, name, phone, company, email, status, notes, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7::jsonb,$8)
`
		for _, l := range in {
			if l.ID == "" {
				return fmt.Errorf("%w: lead id required", ErrConflict)
			}
			notes, err := encodeJSONList(l.Notes)
			if err != nil {
				return err
			}
			created := l.CreatedAt
			if created.IsZero() {
				created = time.Now().UTC()
			}
			if _, err := tx.Exec(ctx, q, l.ID, l.Name, l.Phone, l.Company, l.Email, string(l.Status), notes, created); err != nil {
				if isUniqueViolation(err, "") {
					return fmt.Errorf("%w: lead %s", ErrDuplicateID, l.ID)
				}
				return err
			}
		}
		return nil
	})
}

func (p *Postgres) ListLeads(ctx context.Context) ([]leads.Lead, error) {
	rows, err := p.db.Query(ctx, `SELECT `+leadColumns+` FROM leads ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]leads.Lead, 0)
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (p *Postgres) GetLead(ctx context.Context, id string) (leads.Lead, error) {
	l, err := scanLead(p.db.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return leads.Lead{}, fmt.Errorf("%w: lead %s", ErrNotFound, id)
	}
	return l, err
}

func (p *Postgres) ClaimNextLead(ctx context.Context) (leads.Lead, bool, error) {
	// SKIP LOCKED lets concurrent claimers pass over a row another tx is claiming.
	const q = `
UPDATE leads SET status = 'dialing'
WHERE seq = (
  SELECT seq FROM leads
  WHERE status = 'pending'
  ORDER BY seq
  LIMIT 1
  FOR UPDATE SKIP LOCKED
)
RETURNING ` + leadColumns

	l, err := scanLead(p.db.QueryRow(ctx, q))
	if errors.Is(err, pgx.ErrNoRows) {
		return leads.Lead{}, false, nil
	}
	if err != nil {
		return leads.Lead{}, false, err
	}
	return l, true, nil
}

func (p *Postgres) SetLeadStatus(ctx context.Context, id string, to leads.Status) error {
	return utils.WithTx(ctx, p.db, func(ctx context.Context, tx pgx.Tx) error {
		var cur string
		err := tx.QueryRow(ctx, `SELECT status FROM leads WHERE id = $1 FOR UPDATE`, id).Scan(&cur)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: lead %s", ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		if !leads.Status(cur).CanTransitionTo(to) {
			return fmt.Errorf("%w: lead %s %s -> %s", ErrInvalidTransition, id, cur, to)
		}
		_, err = tx.Exec(ctx, `UPDATE leads SET status = $2 WHERE id = $1`, id, string(to))
		return err
	})
}

/* ===================== CAMPAIGNS ===================== */

const campaignColumns = `id, name, script, max_concurrent, status, created_at`

func (p *Postgres) CreateCampaign(ctx context.Context, c campaigns.Campaign) error {
	if c.ID == "" {
		return fmt.Errorf("%w: campaign id required", ErrConflict)
	}
	const q = `
INSERT INTO campaigns (id, name, script, max_concurrent, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`
	_, err := p.db.Exec(ctx, q, c.ID, c.Name, c.Script, c.MaxConcurrent, string(c.Status), c.CreatedAt)
	if isUniqueViolation(err, "") {
		return fmt.Errorf("%w: campaign %s", ErrDuplicateID, c.ID)
	}
	return err
}

func (p *Postgres) GetCampaign(ctx context.Context, id string) (campaigns.Campaign, error) {
	c, err := scanCampaign(p.db.QueryRow(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return campaigns.Campaign{}, fmt.Errorf("%w: campaign %s", ErrNotFound, id)
	}
	return c, err
}

func (p *Postgres) ListCampaigns(ctx context.Context) ([]campaigns.Campaign, error) {
	rows, err := p.db.Query(ctx, `SELECT `+campaignColumns+` FROM campaigns ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]campaigns.Campaign, 0)
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) TransitionCampaign(ctx context.Context, id string, to campaigns.Status) (campaigns.Campaign, error) {
	var out campaigns.Campaign
	err := utils.WithTx(ctx, p.db, func(ctx context.Context, tx pgx.Tx) error {
		c, err := scanCampaign(tx.QueryRow(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: campaign %s", ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		if !c.Status.CanTransitionTo(to) {
			return fmt.Errorf("%w: campaign %s %s -> %s", ErrInvalidTransition, id, c.Status, to)
		}
		if c.Status != to {
			if _, err := tx.Exec(ctx, `UPDATE campaigns SET status = $2 WHERE id = $1`, id, string(to)); err != nil {
				return err
			}
			c.Status = to
		}
		out = c
		return nil
	})
	if err != nil {
		return campaigns.Campaign{}, err
	}
	return out, nil
}

/* ===================== CALLS ===================== */

const callColumns = `id, campaign_id, lead_id, phone, status, disposition, provider_ref, created_at, log`

func (p *Postgres) CreateCall(ctx context.Context, c calls.Call) error {
	if c.ID == "" {
		return fmt.Errorf("%w: call id required", ErrConflict)
	}
	log, err := encodeJSONList(c.Log)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO calls (id, campaign_id, lead_id, phone, status, disposition, provider_ref, created_at, log)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::jsonb)
`
	_, err = p.db.Exec(ctx, q, c.ID, c.CampaignID, c.LeadID, c.Phone, string(c.Status), string(c.Disposition), c.ProviderRef, c.CreatedAt, log)
	switch {
	case isUniqueViolation(err, constraintOpenCallPerLead):
		return fmt.Errorf("%w: lead %s already has a call in progress", ErrConflict, c.LeadID)
	case isUniqueViolation(err, ""):
		return fmt.Errorf("%w: call %s", ErrDuplicateID, c.ID)
	}
	return err
}

func (p *Postgres) GetCall(ctx context.Context, id string) (calls.Call, error) {
	c, err := scanCall(p.db.QueryRow(ctx, `SELECT `+callColumns+` FROM calls WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return calls.Call{}, fmt.Errorf("%w: call %s", ErrNotFound, id)
	}
	return c, err
}

func (p *Postgres) ListCalls(ctx context.Context, campaignID string) ([]calls.Call, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if campaignID == "" {
		rows, err = p.db.Query(ctx, `SELECT `+callColumns+` FROM calls ORDER BY seq`)
	} else {
		rows, err = p.db.Query(ctx, `SELECT `+callColumns+` FROM calls WHERE campaign_id = $1 ORDER BY seq`, campaignID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]calls.Call, 0)
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) CountInProgress(ctx context.Context, campaignID string) (int, error) {
	var n int
	err := p.db.QueryRow(ctx, `SELECT count(*) FROM calls WHERE campaign_id = $1 AND status = 'in_progress'`, campaignID).Scan(&n)
	return n, err
}

func (p *Postgres) AppendCallLog(ctx context.Context, id string, entry calls.LogEntry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("store: encode log entry: %w", err)
	}
	tag, err := p.db.Exec(ctx,
		`UPDATE calls SET log = log || jsonb_build_array($2::jsonb) WHERE id = $1 AND status = 'in_progress'`,
		id, string(b))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return p.closedCallError(ctx, id)
	}
	return nil
}

func (p *Postgres) SetCallProviderRef(ctx context.Context, id, ref string) error {
	tag, err := p.db.Exec(ctx, `UPDATE calls SET provider_ref = $2 WHERE id = $1 AND status = 'in_progress'`, id, ref)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return p.closedCallError(ctx, id)
	}
	return nil
}

func (p *Postgres) FinishCall(ctx context.Context, id string, status calls.Status, disposition calls.Disposition) error {
	return utils.WithTx(ctx, p.db, func(ctx context.Context, tx pgx.Tx) error {
		var cur string
		err := tx.QueryRow(ctx, `SELECT status FROM calls WHERE id = $1 FOR UPDATE`, id).Scan(&cur)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: call %s", ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		if err := validateFinish(calls.Status(cur), status, disposition); err != nil {
			return fmt.Errorf("%w: call %s %s -> %s (%q)", err, id, cur, status, disposition)
		}
		_, err = tx.Exec(ctx, `UPDATE calls SET status = $2, disposition = $3 WHERE id = $1`, id, string(status), string(disposition))
		return err
	})
}

// closedCallError explains why a guarded update touched no row.
func (p *Postgres) closedCallError(ctx context.Context, id string) error {
	var cur string
	err := p.db.QueryRow(ctx, `SELECT status FROM calls WHERE id = $1`, id).Scan(&cur)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: call %s", ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: call %s is %s", ErrInvalidTransition, id, cur)
}

/* ===================== SCAN HELPERS ===================== */

func scanLead(row pgx.Row) (leads.Lead, error) {
	var (
		l      leads.Lead
		status string
		notes  []byte
	)
	if err := row.Scan(&l.ID, &l.Name, &l.Phone, &l.Company, &l.Email, &status, &notes, &l.CreatedAt); err != nil {
		return leads.Lead{}, err
	}
	l.Status = leads.Status(status)
	if err := decodeJSONList(notes, &l.Notes); err != nil {
		return leads.Lead{}, fmt.Errorf("%w: lead %s notes: %v", ErrCorrupt, l.ID, err)
	}
	return l, nil
}

func scanCampaign(row pgx.Row) (campaigns.Campaign, error) {
	var (
		c      campaigns.Campaign
		status string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Script, &c.MaxConcurrent, &status, &c.CreatedAt); err != nil {
		return campaigns.Campaign{}, err
	}
	c.Status = campaigns.Status(status)
	return c, nil
}

func scanCall(row pgx.Row) (calls.Call, error) {
	var (
		c           calls.Call
		status, dis string
		log         []byte
	)
	if err := row.Scan(&c.ID, &c.CampaignID, &c.LeadID, &c.Phone, &status, &dis, &c.ProviderRef, &c.CreatedAt, &log); err != nil {
		return calls.Call{}, err
	}
	c.Status = calls.Status(status)
	c.Disposition = calls.Disposition(dis)
	if err := decodeJSONList(log, &c.Log); err != nil {
		return calls.Call{}, fmt.Errorf("%w: call %s log: %v", ErrCorrupt, c.ID, err)
	}
	return c, nil
}

func encodeJSONList[T any](items []T) (string, error) {
	if items == nil {
		items = []T{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("store: encode: %w", err)
	}
	return string(b), nil
}

func decodeJSONList[T any](data []byte, dst *[]T) error {
	if len(data) == 0 {
		*dst = []T{}
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return err
	}
	if *dst == nil {
		*dst = []T{}
	}
	return nil
}

// isUniqueViolation reports a unique-constraint failure, optionally on a named constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
