package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/gearline/crm/pkg/bulkdispatch"
	"github.com/gearline/crm/pkg/export"
)

// CreateBulkJob accepts a bulk send, persists it queued, and starts it.
func (h *Handler) CreateBulkJob(c echo.Context) error {
	var req bulkdispatch.CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	job, err := h.Dispatcher.CreateJob(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	h.Dispatcher.Launch(job.ID)
	return c.JSON(http.StatusAccepted, job)
}

// ListBulkJobs returns recent jobs, newest first.
func (h *Handler) ListBulkJobs(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	jobs, err := h.JobStore.ListJobs(c.Request().Context(), limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, jobs)
}

// GetBulkJob returns one job with its progress counters.
func (h *Handler) GetBulkJob(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	job, err := h.JobStore.GetJob(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, job)
}

// CancelBulkJob requests a between-recipients stop.
func (h *Handler) CancelBulkJob(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.Dispatcher.Cancel(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "cancel requested"})
}

// BulkJobReport streams the per-recipient outcome sheet.
func (h *Handler) BulkJobReport(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	buf, err := export.JobReport(c.Request().Context(), h.JobStore, id)
	if err != nil {
		return respondError(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename=bulk-job-report.xlsx")
	return c.Blob(http.StatusOK,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func parseID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return uint(id), nil
}
