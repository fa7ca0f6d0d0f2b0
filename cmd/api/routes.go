package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/sachida369/AICaller/internal/audit"
	"github.com/sachida369/AICaller/internal/auth"
	"github.com/sachida369/AICaller/internal/campaigns"
	"github.com/sachida369/AICaller/internal/config"
	"github.com/sachida369/AICaller/internal/dialer"
	"github.com/sachida369/AICaller/internal/httpapi"
	"github.com/sachida369/AICaller/internal/leads"
	"github.com/sachida369/AICaller/internal/rbac"
	"github.com/sachida369/AICaller/internal/reporting"
	"github.com/sachida369/AICaller/internal/store"
	"github.com/sachida369/AICaller/internal/telephony"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	cfg       config.Config
	store     store.Store
	leads     *leads.Service
	campaigns *campaigns.Service
	reporting *reporting.Service
	audit     *audit.Service
	dialer    *dialer.Manager
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) error {
	r.Use(httpapi.ClientIP())

	// Provider webhooks (public, signature-checked). Simulated calls have no provider
	// to call back, so the route only exists with Twilio credentials.
	if d.cfg.Twilio.Enabled() {
		wh := telephony.TwilioStatusHandler{
			Calls:         d.store,
			AuthToken:     d.cfg.Twilio.AuthToken,
			PublicBaseURL: d.cfg.Twilio.PublicBaseURL,
		}
		r.POST("/webhooks/twilio/status", wh.HandleStatus)
	}

	var guards httpapi.Guards
	if d.cfg.Auth.Enabled() {
		m, err := auth.NewManager(d.cfg.Auth)
		if err != nil {
			return fmt.Errorf("auth init: %w", err)
		}
		authMW := auth.RequireAccessToken(m)
		guards.Read = []gin.HandlerFunc{authMW, rbac.RequireAnyRole(rbac.RoleViewer, rbac.RoleOperator)}
		guards.Write = []gin.HandlerFunc{authMW, rbac.RequireAnyRole(rbac.RoleOperator)}
	}

	httpapi.Handlers{
		Leads:          d.leads,
		Campaigns:      d.campaigns,
		Reporting:      d.reporting,
		Audit:          d.audit,
		Dialer:         d.dialer,
		MaxUploadBytes: d.cfg.Import.MaxUploadBytes,
	}.Register(r, guards)

	if dir := d.cfg.App.StaticDir; dir != "" {
		if _, err := os.Stat(dir); err != nil {
			return fmt.Errorf("static dir: %w", err)
		}
		files := http.FileServer(http.Dir(dir))
		r.NoRoute(func(c *gin.Context) {
			if c.Request.Method != http.MethodGet || strings.HasPrefix(c.Request.URL.Path, "/api/") {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			files.ServeHTTP(c.Writer, c.Request)
		})
	}
	return nil
}
