package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sachida369/AICaller/internal/audit"
	"github.com/sachida369/AICaller/internal/calls"
	"github.com/sachida369/AICaller/internal/campaigns"
	"github.com/sachida369/AICaller/internal/dialer"
	"github.com/sachida369/AICaller/internal/leads"
	"github.com/sachida369/AICaller/internal/reporting"
	"github.com/sachida369/AICaller/internal/store"
	"github.com/sachida369/AICaller/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Dialer is the part of the campaign dispatcher the API drives.
type Dialer interface {
	Start(ctx context.Context, id string) (campaigns.Campaign, error)
	Stop(ctx context.Context, id string) (campaigns.Campaign, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Leads     *leads.Service
	Campaigns *campaigns.Service
	Reporting *reporting.Service
	Audit     *audit.Service
	Dialer    Dialer

	// MaxUploadBytes caps the multipart body of a lead upload.
	MaxUploadBytes int64
}

// ClientIP attaches the resolved client address to the request context for audit events.
func ClientIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := audit.WithClientIP(c.Request.Context(), c.ClientIP())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (h Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// --- Leads ---

func (h Handlers) UploadLeads(c *gin.Context) {
	if h.Leads == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "leads not configured"})
		return
	}
	if h.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	defer f.Close()

	res, err := h.Leads.ImportCSV(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}

	h.record(c, audit.EventLeadsImported, "", fmt.Sprintf("%d leads imported from %s", res.Imported, fh.Filename))
	c.JSON(http.StatusOK, res)
}

func (h Handlers) ListLeads(c *gin.Context) {
	if h.Leads == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "leads not configured"})
		return
	}
	ls, err := h.Leads.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if ls == nil {
		ls = []leads.Lead{}
	}
	c.JSON(http.StatusOK, gin.H{"leads": ls})
}

// --- Campaigns ---

func (h Handlers) CreateCampaign(c *gin.Context) {
	if h.Campaigns == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "campaigns not configured"})
		return
	}
	var req campaigns.CreateRequest
	// An empty body creates a campaign from defaults.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	cp, err := h.Campaigns.Create(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	h.record(c, audit.EventCampaignCreated, cp.ID, "campaign "+cp.Name+" created")
	c.JSON(http.StatusOK, gin.H{"campaign": cp})
}

func (h Handlers) ListCampaigns(c *gin.Context) {
	if h.Campaigns == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "campaigns not configured"})
		return
	}
	cs, err := h.Campaigns.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if cs == nil {
		cs = []campaigns.Campaign{}
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": cs})
}

func (h Handlers) StartCampaign(c *gin.Context) {
	if h.Dialer == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "dialer not configured"})
		return
	}
	cp, err := h.Dialer.Start(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "campaign": cp})
}

func (h Handlers) StopCampaign(c *gin.Context) {
	if h.Dialer == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "dialer not configured"})
		return
	}
	cp, err := h.Dialer.Stop(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "campaign": cp})
}

// CampaignStatus returns the campaign and its calls in creation order.
func (h Handlers) CampaignStatus(c *gin.Context) {
	if h.Campaigns == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "campaigns not configured"})
		return
	}
	cp, cs, err := h.Campaigns.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if cs == nil {
		cs = []calls.Call{}
	}
	c.JSON(http.StatusOK, gin.H{"campaign": cp, "calls": cs})
}

// CampaignSummary accepts optional RFC 3339 `from` and `to` query bounds.
func (h Handlers) CampaignSummary(c *gin.Context) {
	if h.Reporting == nil || h.Campaigns == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	id := c.Param("id")
	if _, err := h.Campaigns.Get(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	req := reporting.SummaryRequest{CampaignID: id}
	var err error
	if req.Range.From, err = parseTimeQuery(c, "from"); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC 3339"})
		return
	}
	if req.Range.To, err = parseTimeQuery(c, "to"); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC 3339"})
		return
	}

	out, err := h.Reporting.CampaignSummary(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) CampaignEvents(c *gin.Context) {
	if h.Audit == nil || h.Campaigns == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "audit not configured"})
		return
	}
	id := c.Param("id")
	if _, err := h.Campaigns.Get(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	evs, err := h.Audit.List(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if evs == nil {
		evs = []audit.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": evs})
}

func (h Handlers) record(c *gin.Context, typ audit.EventType, campaignID, message string) {
	if h.Audit == nil {
		return
	}
	if err := h.Audit.Record(c.Request.Context(), typ, campaignID, message); err != nil {
		logger.FromGin(c).Warn("audit record failed", "type", string(typ), "campaign_id", campaignID, "err", err)
	}
}

func parseTimeQuery(c *gin.Context, key string) (time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}

// writeError maps domain errors to status codes. Unexpected errors are logged and
// reported without detail.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, campaigns.ErrInvalidArgument),
		errors.Is(err, leads.ErrInvalidRow),
		errors.Is(err, reporting.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, store.ErrInvalidTransition), errors.Is(err, store.ErrDuplicateID), errors.Is(err, store.ErrConflict):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, dialer.ErrShuttingDown):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
	default:
		logger.FromGin(c).Error("request failed", "path", c.FullPath(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
