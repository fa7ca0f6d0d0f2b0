package leads

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return "lead-" + strconv.Itoa(n)
	}
}

func TestParseCSVAndImport_RoundTrip(t *testing.T) {
	in := "name,phone,company,email\n" +
		"Ada,+15550001,Analytical,ada@example.com\n" +
		"Grace,+15550002,Navy,grace@example.com\n" +
		"Linus,+15550003,Kernel,linus@example.com\n"

	rows, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	im := NewImporter(PolicyPermissive)
	im.NewID = sequentialIDs()
	out, rejected := im.Import(rows)
	require.Empty(t, rejected)
	require.Len(t, out, 3)

	want := []struct{ name, phone, company, email string }{
		{"Ada", "+15550001", "Analytical", "ada@example.com"},
		{"Grace", "+15550002", "Navy", "grace@example.com"},
		{"Linus", "+15550003", "Kernel", "linus@example.com"},
	}
	for i, w := range want {
		l := out[i]
		assert.Equal(t, "lead-"+strconv.Itoa(i+1), l.ID)
		assert.Equal(t, w.name, l.Name)
		assert.Equal(t, w.phone, l.Phone)
		assert.Equal(t, w.company, l.Company)
		assert.Equal(t, w.email, l.Email)
		assert.Equal(t, StatusPending, l.Status)
		assert.Empty(t, l.Notes)
	}
}

func TestImport_PhoneFallbackOrder(t *testing.T) {
	im := NewImporter(PolicyPermissive)
	out, _ := im.Import([]Row{
		{"name": "m", "mobile": "+1111"},
		{"name": "n", "number": "+2222"},
		{"name": "both", "mobile": "+3333", "number": "+4444"},
		{"name": "empty-phone", "phone": "", "mobile": "+5555"},
		{"name": "case", "Phone": "+6666"},
	})
	require.Len(t, out, 5)
	assert.Equal(t, "+1111", out[0].Phone)
	assert.Equal(t, "+2222", out[1].Phone)
	assert.Equal(t, "+3333", out[2].Phone)
	assert.Equal(t, "+5555", out[3].Phone)
	assert.Equal(t, "", out[4].Phone, "header lookup is case-sensitive")
}

func TestImport_MissingPhonePolicies(t *testing.T) {
	rows := []Row{
		{"name": "has", "phone": "+1"},
		{"name": "none", "company": "Acme"},
	}

	permissive, rejected := NewImporter(PolicyPermissive).Import(rows)
	require.Len(t, permissive, 2)
	require.Empty(t, rejected)
	assert.Equal(t, "", permissive[1].Phone)
	assert.Equal(t, "Acme", permissive[1].Company)
	assert.Equal(t, "", permissive[1].Email)

	strict, rejected := NewImporter(PolicyReject).Import(rows)
	require.Len(t, strict, 1)
	require.Len(t, rejected, 1)
	assert.Equal(t, 2, rejected[0].Row)
	assert.True(t, errors.Is(rejected[0], ErrInvalidRow))
}

func TestParseCSV_ToleratesBOMBlankLinesAndShortRows(t *testing.T) {
	in := "\uFEFFname,mobile,email\n\nBob,+1999\n\n"
	rows, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Bob", rows[0]["name"])
	assert.Equal(t, "+1999", rows[0]["mobile"])
	_, hasEmail := rows[0]["email"]
	assert.False(t, hasEmail)
}

func TestParseCSV_Empty(t *testing.T) {
	rows, err := ParseCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestParseCSV_Malformed(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("name,phone\n\"unterminated,+1\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRow)
}

type memRepo struct{ leads []Lead }

func (m *memRepo) AppendLeads(ctx context.Context, in []Lead) error {
	m.leads = append(m.leads, in...)
	return nil
}

func (m *memRepo) ListLeads(ctx context.Context) ([]Lead, error) { return m.leads, nil }

func TestService_ImportCSVAppendsInOrder(t *testing.T) {
	repo := &memRepo{leads: []Lead{{ID: "existing", Status: StatusQualified}}}
	svc := NewService(repo, NewImporter(PolicyReject))

	res, err := svc.ImportCSV(context.Background(), strings.NewReader("name,phone\nA,+1\nB,\nC,+3\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	require.Len(t, res.Rejected, 1)

	all, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "existing", all[0].ID)
	assert.Equal(t, "A", all[1].Name)
	assert.Equal(t, "C", all[2].Name)
}
