package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type runAssignmentRequest struct {
	Limit int `json:"limit"`
}

// RunAssignment drains the intake pool into agents' queues.
func (h *Handler) RunAssignment(c echo.Context) error {
	var req runAssignmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Limit <= 0 {
		req.Limit = 100
	}

	result, err := h.Assignment.AssignBatch(c.Request().Context(), req.Limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

type reassignRequest struct {
	AgentID uint   `json:"agent_id" validate:"required"`
	Reason  string `json:"reason"`
}

// ReassignLead hands a lead to a different agent.
func (h *Handler) ReassignLead(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req reassignRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	lead, err := h.Assignment.Reassign(c.Request().Context(), id, req.AgentID, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, lead)
}
