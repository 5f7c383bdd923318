package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gearline/crm/pkg/models"
)

type subscribeRequest struct {
	UserID   uint   `json:"user_id" validate:"required"`
	Endpoint string `json:"endpoint" validate:"required,url"`
	P256dh   string `json:"p256dh" validate:"required"`
	Auth     string `json:"auth" validate:"required"`
}

// SavePushSubscription registers a browser push endpoint for an agent.
func (h *Handler) SavePushSubscription(c echo.Context) error {
	var req subscribeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	sub := &models.PushSubscription{
		UserID:   req.UserID,
		Endpoint: req.Endpoint,
		P256dh:   req.P256dh,
		Auth:     req.Auth,
	}
	if err := h.PushStore.SaveSubscription(c.Request().Context(), sub); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, sub)
}
