package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RunSnapshot triggers the daily followup snapshot by hand, optionally for
// a specific date (YYYY-MM-DD). Re-runs only fill in missing rows.
func (h *Handler) RunSnapshot(c echo.Context) error {
	ctx := c.Request().Context()

	if raw := c.QueryParam("date"); raw != "" {
		date, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
		}
		summary, err := h.Snapshots.RunForDate(ctx, date)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, summary)
	}

	summary, err := h.Snapshots.Run(ctx)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}
