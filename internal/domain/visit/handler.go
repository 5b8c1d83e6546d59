package visit

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carepath/portal/internal/platform/apperr"
	"github.com/carepath/portal/internal/platform/auth"
	"github.com/carepath/portal/pkg/pagination"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// RegisterRoutes mounts the STD exposure flow on a group that already
// requires a verified session.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/visits/std")
	g.POST("/session", h.StartSession)
	g.GET("/session", h.GetSession)
	g.POST("/session/exposure", h.SelectExposure)
	g.POST("/session/partner", h.AcknowledgePartner)
	g.POST("/session/symptoms", h.ConfirmSymptoms)
	g.POST("/session/pharmacy", h.ConfirmPharmacy)
	g.PUT("/session/delivery", h.SetDelivery)
	g.POST("/session/back", h.Back)
	g.GET("/session/summary", h.GetSummary)
	g.GET("/session/summary.pdf", h.GetSummaryPDF)
	g.POST("/session/finalize", h.Finalize)
	g.GET("/history", h.ListHistory)
}

func currentUser(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid session subject")
	}
	return id, nil
}

func sessionResponse(c echo.Context, code int, s Session, err error) error {
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(code, s)
}

func (h *Handler) StartSession(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	s, err := h.engine.Start(c.Request().Context(), userID)
	return sessionResponse(c, http.StatusCreated, s, err)
}

func (h *Handler) GetSession(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	s, err := h.engine.Current(userID)
	return sessionResponse(c, http.StatusOK, s, err)
}

type exposureRequest struct {
	ExposureType string `json:"exposure_type"`
}

func (h *Handler) SelectExposure(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req exposureRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	s, err := h.engine.SelectExposure(userID, req.ExposureType)
	return sessionResponse(c, http.StatusOK, s, err)
}

func (h *Handler) AcknowledgePartner(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	s, err := h.engine.AcknowledgePartner(userID)
	return sessionResponse(c, http.StatusOK, s, err)
}

type symptomsRequest struct {
	HasSymptoms *bool `json:"has_symptoms"`
}

func (h *Handler) ConfirmSymptoms(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req symptomsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.HasSymptoms == nil {
		return apperr.HTTPError(apperr.Validation("visit.symptoms", "has_symptoms is required"))
	}
	s, err := h.engine.ConfirmSymptoms(c.Request().Context(), userID, *req.HasSymptoms)
	return sessionResponse(c, http.StatusOK, s, err)
}

type pharmacyRequest struct {
	Pharmacy string `json:"pharmacy"`
}

func (h *Handler) ConfirmPharmacy(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req pharmacyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	s, err := h.engine.ConfirmPharmacy(c.Request().Context(), userID, req.Pharmacy)
	return sessionResponse(c, http.StatusOK, s, err)
}

func (h *Handler) SetDelivery(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	opts := DefaultDeliveryOptions()
	if err := c.Bind(&opts); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	s, err := h.engine.SetDelivery(userID, opts)
	return sessionResponse(c, http.StatusOK, s, err)
}

func (h *Handler) Back(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	s, err := h.engine.Back(userID)
	return sessionResponse(c, http.StatusOK, s, err)
}

type summaryResponse struct {
	*Summary
	Text     string          `json:"text"`
	Delivery DeliveryOptions `json:"delivery"`
}

func (h *Handler) GetSummary(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	sum, s, err := h.engine.Summary(c.Request().Context(), userID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, summaryResponse{Summary: sum, Text: sum.Text(), Delivery: s.Delivery})
}

func (h *Handler) GetSummaryPDF(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	doc, err := h.engine.SummaryPDF(c.Request().Context(), userID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `inline; filename="visit-summary.pdf"`)
	return c.Blob(http.StatusOK, "application/pdf", doc)
}

func (h *Handler) Finalize(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	res, err := h.engine.Finalize(c.Request().Context(), userID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) ListHistory(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.engine.History(c.Request().Context(), userID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	if items == nil {
		items = []*Record{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
