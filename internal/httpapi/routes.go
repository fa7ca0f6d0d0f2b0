package httpapi

import "github.com/gin-gonic/gin"

// Guards are per-route middleware chains. Empty chains leave routes open, which is
// how the API runs when no JWT secret is configured.
type Guards struct {
	Read  []gin.HandlerFunc
	Write []gin.HandlerFunc
}

// Register mounts the /api routes. Health stays outside the guards.
func (h Handlers) Register(r gin.IRouter, g Guards) {
	api := r.Group("/api")
	api.GET("/health", h.Health)

	read := api.Group("", g.Read...)
	read.GET("/leads", h.ListLeads)
	read.GET("/campaigns", h.ListCampaigns)
	read.GET("/campaigns/:id", h.CampaignStatus)
	read.GET("/campaigns/:id/summary", h.CampaignSummary)
	read.GET("/campaigns/:id/events", h.CampaignEvents)

	write := api.Group("", g.Write...)
	write.POST("/leads/upload", h.UploadLeads)
	write.POST("/campaigns", h.CreateCampaign)
	write.POST("/campaigns/:id/start", h.StartCampaign)
	write.POST("/campaigns/:id/stop", h.StopCampaign)
}
