package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gearline/crm/pkg/leadintake"
)

// CreateLead takes a raw lead into the unassigned pool.
func (h *Handler) CreateLead(c echo.Context) error {
	var req leadintake.CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	lead, err := h.Intake.Create(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, lead)
}

type updateFollowupRequest struct {
	UserID       uint      `json:"user_id" validate:"required"`
	FollowupDate time.Time `json:"followup_date" validate:"required"`
}

// UpdateFollowup moves a lead's followup date and logs the touch.
func (h *Handler) UpdateFollowup(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req updateFollowupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	lead, err := h.Intake.UpdateFollowup(c.Request().Context(), id, req.UserID, req.FollowupDate)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, lead)
}

// LogCall appends a call outcome to a lead's history.
func (h *Handler) LogCall(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req leadintake.LogCallRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	entry, err := h.Intake.LogCall(c.Request().Context(), id, req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, entry)
}

// ListCalls returns a lead's call history, most recent first.
func (h *Handler) ListCalls(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	logs, err := h.Intake.CallHistory(c.Request().Context(), id, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, logs)
}

// GetLeadScore returns the most recent persisted score for a lead.
func (h *Handler) GetLeadScore(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	score, err := h.ScoreStore.LatestScore(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, score)
}

// ScoreLead recomputes and persists a lead's score.
func (h *Handler) ScoreLead(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	lead, err := h.LeadStore.GetLead(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	score, err := h.Scoring.ScoreLead(c.Request().Context(), lead)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, score)
}
