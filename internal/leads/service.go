package leads

import (
	"context"
	"errors"
	"io"
)

// Repository is the persistence the lead service needs.
type Repository interface {
	AppendLeads(ctx context.Context, leads []Lead) error
	ListLeads(ctx context.Context) ([]Lead, error)
}

type Service struct {
	repo     Repository
	importer *Importer
}

func NewService(repo Repository, importer *Importer) *Service {
	if importer == nil {
		importer = NewImporter(PolicyPermissive)
	}
	return &Service{repo: repo, importer: importer}
}

type ImportResult struct {
	Imported int        `json:"imported"`
	Rejected []RowError `json:"rejected,omitempty"`
}

// ImportLeads normalizes rows and appends them to the lead collection in input order.
func (s *Service) ImportLeads(ctx context.Context, rows []Row) (ImportResult, error) {
	if s.repo == nil {
		return ImportResult{}, errors.New("leads: repository not configured")
	}
	out, rejected := s.importer.Import(rows)
	if len(out) > 0 {
		if err := s.repo.AppendLeads(ctx, out); err != nil {
			return ImportResult{}, err
		}
	}
	return ImportResult{Imported: len(out), Rejected: rejected}, nil
}

// ImportCSV is ParseCSV followed by ImportLeads.
func (s *Service) ImportCSV(ctx context.Context, r io.Reader) (ImportResult, error) {
	rows, err := ParseCSV(r)
	if err != nil {
		return ImportResult{}, err
	}
	return s.ImportLeads(ctx, rows)
}

func (s *Service) List(ctx context.Context) ([]Lead, error) {
	if s.repo == nil {
		return nil, errors.New("leads: repository not configured")
	}
	return s.repo.ListLeads(ctx)
}
