package triage

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/carepath/portal/internal/platform/apperr"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/triage", h.ListFlows)
	api.GET("/triage/:flow", h.GetCatalog)
}

func (h *Handler) ListFlows(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]string{"flows": Flows()})
}

func (h *Handler) GetCatalog(c echo.Context) error {
	cat, err := Lookup(c.Param("flow"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, cat)
}
