package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gearline/crm/pkg/api/handlers"
)

// RegisterRoutes wires the HTTP surface.
func RegisterRoutes(e *echo.Echo, h *handlers.Handler) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")

	// Lead intake and scoring
	api.POST("/leads", h.CreateLead)
	api.PUT("/leads/:id/followup", h.UpdateFollowup)
	api.POST("/leads/:id/calls", h.LogCall)
	api.GET("/leads/:id/calls", h.ListCalls)
	api.GET("/leads/:id/score", h.GetLeadScore)
	api.POST("/leads/:id/score", h.ScoreLead)
	api.POST("/leads/:id/reassign", h.ReassignLead)

	// Assignment
	api.POST("/assignments/run", h.RunAssignment)

	// Snapshots
	api.POST("/snapshots/run", h.RunSnapshot)

	// Templates
	api.GET("/templates", h.ListTemplates)
	api.POST("/templates/sync", h.SyncTemplates)

	// Bulk dispatch
	api.POST("/bulk-jobs", h.CreateBulkJob)
	api.GET("/bulk-jobs", h.ListBulkJobs)
	api.GET("/bulk-jobs/:id", h.GetBulkJob)
	api.POST("/bulk-jobs/:id/cancel", h.CancelBulkJob)
	api.GET("/bulk-jobs/:id/report", h.BulkJobReport)

	// Push subscriptions
	api.POST("/push/subscriptions", h.SavePushSubscription)
}
