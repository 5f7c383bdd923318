package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ListTemplates serves the cached template catalog, refreshing it when stale.
func (h *Handler) ListTemplates(c echo.Context) error {
	templates, err := h.Templates.List(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, templates)
}

// SyncTemplates forces a catalog refresh from the provider.
func (h *Handler) SyncTemplates(c echo.Context) error {
	n, err := h.Templates.Sync(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"synced": n})
}
