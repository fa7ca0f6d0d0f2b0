package leads

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Row is one tabular input record keyed by its (case-sensitive) header name.
type Row map[string]string

// phoneColumns are consulted in order; the first non-empty value wins.
var phoneColumns = []string{"phone", "mobile", "number"}

// Policy decides what happens to rows that carry no phone-like column value.
type Policy string

const (
	// PolicyPermissive imports the row with an empty phone.
	PolicyPermissive Policy = "permissive"
	// PolicyReject skips the row and reports it as a RowError.
	PolicyReject Policy = "reject"
)

var ErrInvalidRow = errors.New("leads: invalid row")

// RowError reports a rejected input row. Row is 1-based and excludes the header.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

func (e RowError) Error() string { return fmt.Sprintf("row %d: %s", e.Row, e.Reason) }

func (e RowError) Unwrap() error { return ErrInvalidRow }

// Importer converts loosely-typed rows into normalized pending leads.
type Importer struct {
	Policy Policy

	NewID func() string
	Now   func() time.Time
}

func NewImporter(policy Policy) *Importer {
	if policy == "" {
		policy = PolicyPermissive
	}
	return &Importer{Policy: policy, NewID: uuid.NewString, Now: time.Now}
}

// Import preserves input order. Rejected rows (reject policy only) are returned separately.
func (im *Importer) Import(rows []Row) ([]Lead, []RowError) {
	newID := im.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	now := im.Now
	if now == nil {
		now = time.Now
	}

	out := make([]Lead, 0, len(rows))
	var rejected []RowError
	for i, row := range rows {
		phone := firstNonEmpty(row, phoneColumns...)
		if phone == "" && im.Policy == PolicyReject {
			rejected = append(rejected, RowError{Row: i + 1, Reason: "missing phone, mobile or number"})
			continue
		}
		out = append(out, Lead{
			ID:        newID(),
			Name:      row["name"],
			Phone:     phone,
			Company:   row["company"],
			Email:     row["email"],
			Status:    StatusPending,
			Notes:     []string{},
			CreatedAt: now().UTC(),
		})
	}
	return out, rejected
}

func firstNonEmpty(row Row, keys ...string) string {
	for _, k := range keys {
		if v := row[k]; v != "" {
			return v
		}
	}
	return ""
}

// ParseCSV reads a header row followed by records. Blank lines are skipped and short
// rows are tolerated; missing trailing cells are simply absent from the Row.
func ParseCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrInvalidRow, err)
	}
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		header[i] = strings.TrimSpace(h)
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRow, err)
		}
		if isBlank(rec) {
			continue
		}
		row := make(Row, len(header))
		for i, h := range header {
			if i < len(rec) && h != "" {
				row[h] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
