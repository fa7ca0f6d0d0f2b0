package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sachida369/AICaller/internal/audit"
	"github.com/sachida369/AICaller/internal/auth"
	"github.com/sachida369/AICaller/internal/calls"
	"github.com/sachida369/AICaller/internal/campaigns"
	"github.com/sachida369/AICaller/internal/config"
	"github.com/sachida369/AICaller/internal/dialer"
	"github.com/sachida369/AICaller/internal/leads"
	"github.com/sachida369/AICaller/internal/rbac"
	"github.com/sachida369/AICaller/internal/reporting"
	"github.com/sachida369/AICaller/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDialer moves campaign status without running loops.
type stubDialer struct {
	st       *store.JSONStore
	shutdown bool
}

func (d *stubDialer) Start(ctx context.Context, id string) (campaigns.Campaign, error) {
	if d.shutdown {
		return campaigns.Campaign{}, dialer.ErrShuttingDown
	}
	return d.st.TransitionCampaign(ctx, id, campaigns.StatusRunning)
}

func (d *stubDialer) Stop(ctx context.Context, id string) (campaigns.Campaign, error) {
	return d.st.TransitionCampaign(ctx, id, campaigns.StatusCompleted)
}

type fixture struct {
	st     *store.JSONStore
	events *audit.MemoryRepo
	dialer *stubDialer
	router *gin.Engine
}

func newFixture(t *testing.T, g Guards, policy leads.Policy) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.NewMemory()
	events := audit.NewMemoryRepo()
	d := &stubDialer{st: st}

	h := Handlers{
		Leads:          leads.NewService(st, leads.NewImporter(policy)),
		Campaigns:      campaigns.NewService(st, 3),
		Reporting:      reporting.NewService(st),
		Audit:          audit.NewService(events),
		Dialer:         d,
		MaxUploadBytes: 1 << 20,
	}
	r := gin.New()
	r.Use(ClientIP())
	h.Register(r, g)
	return &fixture{st: st, events: events, dialer: d, router: r}
}

func (f *fixture) do(t *testing.T, method, path string, body []byte, contentType string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	req.RemoteAddr = "203.0.113.7:4000"
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func multipartCSV(t *testing.T, field, name, content string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t, Guards{}, leads.PolicyPermissive)
	w := f.do(t, http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
}

func TestUploadAndListLeads(t *testing.T) {
	f := newFixture(t, Guards{}, leads.PolicyPermissive)

	body, ct := multipartCSV(t, "file", "leads.csv", "name,mobile,company\nAda,+15550001,ACME\n\nBob,,Initech\n")
	w := f.do(t, http.MethodPost, "/api/leads/upload", body, ct)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2, decode[leads.ImportResult](t, w).Imported)

	w = f.do(t, http.MethodGet, "/api/leads", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[struct {
		Leads []leads.Lead `json:"leads"`
	}](t, w)
	require.Len(t, got.Leads, 2)
	assert.Equal(t, "Ada", got.Leads[0].Name)
	assert.Equal(t, "+15550001", got.Leads[0].Phone)
	assert.Equal(t, leads.StatusPending, got.Leads[0].Status)
	assert.Equal(t, "", got.Leads[1].Phone)

	evs := f.events.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, audit.EventLeadsImported, evs[0].Type)
	assert.Equal(t, "203.0.113.7", evs[0].IPAddress)
}

func TestUploadLeads_RejectPolicyReportsRows(t *testing.T) {
	f := newFixture(t, Guards{}, leads.PolicyReject)

	body, ct := multipartCSV(t, "file", "leads.csv", "name,phone\nAda,+1555\nBob,\n")
	w := f.do(t, http.MethodPost, "/api/leads/upload", body, ct)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[leads.ImportResult](t, w)
	assert.Equal(t, 1, res.Imported)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, 2, res.Rejected[0].Row)
}

func TestUploadLeads_Errors(t *testing.T) {
	f := newFixture(t, Guards{}, leads.PolicyPermissive)

	w := f.do(t, http.MethodPost, "/api/leads/upload", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body, ct := multipartCSV(t, "other", "leads.csv", "name,phone\n")
	w = f.do(t, http.MethodPost, "/api/leads/upload", body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body, ct = multipartCSV(t, "file", "leads.csv", "name,phone\n\"Ada,+1\n")
	w = f.do(t, http.MethodPost, "/api/leads/upload", body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code, "malformed csv")

	f.router = gin.New()
	Handlers{Leads: leads.NewService(f.st, nil), MaxUploadBytes: 64}.Register(f.router, Guards{})
	body, ct = multipartCSV(t, "file", "leads.csv", "name,phone\n"+strings.Repeat("Ada,+15550001\n", 50))
	w = f.do(t, http.MethodPost, "/api/leads/upload", body, ct)
	assert.Contains(t, []int{http.StatusBadRequest, http.StatusRequestEntityTooLarge}, w.Code)

	ls, err := f.st.ListLeads(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ls)
}

func TestCampaignLifecycle(t *testing.T) {
	f := newFixture(t, Guards{}, leads.PolicyPermissive)

	w := f.do(t, http.MethodPost, "/api/campaigns", []byte(`{"name":"Spring","script":"We sell widgets.","maxConcurrent":2}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	created := decode[struct {
		Campaign campaigns.Campaign `json:"campaign"`
	}](t, w).Campaign
	assert.Equal(t, "Spring", created.Name)
	assert.Equal(t, 2, created.MaxConcurrent)
	assert.Equal(t, campaigns.StatusReady, created.Status)

	w = f.do(t, http.MethodPost, "/api/campaigns/"+created.ID+"/start", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok":true`)

	now := time.Now().UTC()
	require.NoError(t, f.st.CreateCall(context.Background(), calls.Call{
		ID: "call-1", CampaignID: created.ID, LeadID: "lead-1", Status: calls.StatusInProgress, CreatedAt: now, Log: []calls.LogEntry{},
	}))
	require.NoError(t, f.st.FinishCall(context.Background(), "call-1", calls.StatusCompleted, calls.DispositionQualified))

	w = f.do(t, http.MethodGet, "/api/campaigns/"+created.ID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[struct {
		Campaign campaigns.Campaign `json:"campaign"`
		Calls    []calls.Call       `json:"calls"`
	}](t, w)
	assert.Equal(t, campaigns.StatusRunning, status.Campaign.Status)
	require.Len(t, status.Calls, 1)
	assert.Equal(t, calls.DispositionQualified, status.Calls[0].Disposition)

	w = f.do(t, http.MethodGet, "/api/campaigns/"+created.ID+"/summary", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	sum := decode[reporting.CampaignSummary](t, w)
	assert.Equal(t, 1, sum.Attempted)
	assert.Equal(t, 1, sum.Qualified)
	assert.Equal(t, 1.0, sum.QualificationRate)

	w = f.do(t, http.MethodGet, "/api/campaigns/"+created.ID+"/summary?from="+now.Add(time.Hour).Format(time.RFC3339), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[reporting.CampaignSummary](t, w).Attempted)

	w = f.do(t, http.MethodPost, "/api/campaigns/"+created.ID+"/stop", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/api/campaigns/"+created.ID+"/start", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code, "completed campaigns cannot restart")

	w = f.do(t, http.MethodGet, "/api/campaigns", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Campaigns []campaigns.Campaign `json:"campaigns"`
	}](t, w)
	require.Len(t, list.Campaigns, 1)
	assert.Equal(t, campaigns.StatusCompleted, list.Campaigns[0].Status)

	w = f.do(t, http.MethodGet, "/api/campaigns/"+created.ID+"/events", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	evs := decode[struct {
		Events []audit.Event `json:"events"`
	}](t, w).Events
	require.Len(t, evs, 1)
	assert.Equal(t, audit.EventCampaignCreated, evs[0].Type)
}

func TestCreateCampaign_Defaults(t *testing.T) {
	f := newFixture(t, Guards{}, leads.PolicyPermissive)

	w := f.do(t, http.MethodPost, "/api/campaigns", nil, "application/json")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	c := decode[struct {
		Campaign campaigns.Campaign `json:"campaign"`
	}](t, w).Campaign
	assert.Equal(t, campaigns.DefaultName, c.Name)
	assert.Equal(t, campaigns.DefaultScript, c.Script)
	assert.Equal(t, 3, c.MaxConcurrent)

	w = f.do(t, http.MethodPost, "/api/campaigns", []byte(`{"maxConcurrent":-1}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/campaigns", []byte(`{"name":`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCampaignErrors(t *testing.T) {
	f := newFixture(t, Guards{}, leads.PolicyPermissive)

	for _, path := range []string{"/api/campaigns/nope", "/api/campaigns/nope/summary", "/api/campaigns/nope/events"} {
		w := f.do(t, http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
	w := f.do(t, http.MethodPost, "/api/campaigns/nope/start", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	c, err := campaigns.NewService(f.st, 3).Create(context.Background(), campaigns.CreateRequest{})
	require.NoError(t, err)
	w = f.do(t, http.MethodGet, "/api/campaigns/"+c.ID+"/summary?to=yesterday", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.dialer.shutdown = true
	w = f.do(t, http.MethodPost, "/api/campaigns/"+c.ID+"/start", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGuards(t *testing.T) {
	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute})
	require.NoError(t, err)
	authMW := auth.RequireAccessToken(m)
	f := newFixture(t, Guards{
		Read:  []gin.HandlerFunc{authMW, rbac.RequireAnyRole(rbac.RoleViewer, rbac.RoleOperator)},
		Write: []gin.HandlerFunc{authMW, rbac.RequireAnyRole(rbac.RoleOperator)},
	}, leads.PolicyPermissive)

	viewer, err := m.Issue(time.Now(), "v", rbac.RoleViewer)
	require.NoError(t, err)
	operator, err := m.Issue(time.Now(), "ops", rbac.RoleOperator)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/health", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/leads", nil, "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/leads", nil, "", "Authorization", "Bearer "+viewer).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/api/campaigns", nil, "application/json", "Authorization", "Bearer "+viewer).Code)

	w := f.do(t, http.MethodPost, "/api/campaigns", nil, "application/json", "Authorization", "Bearer "+operator)
	require.Equal(t, http.StatusOK, w.Code)

	evs := f.events.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, "ops", evs[0].ActorSubject)
}
