package identity

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carepath/portal/internal/domain/profile"
	"github.com/carepath/portal/internal/platform/apperr"
	"github.com/carepath/portal/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the auth routes. Verify and resend need the pending
// token returned by login, so they run behind requireToken.
func (h *Handler) RegisterRoutes(g *echo.Group, requireToken echo.MiddlewareFunc) {
	g.POST("/register", h.Register)
	g.POST("/login", h.Login)
	g.POST("/verify", h.Verify, requireToken)
	g.POST("/resend", h.Resend, requireToken)
}

type registerRequest struct {
	Email    string          `json:"email"`
	Password string          `json:"password"`
	Profile  profile.Profile `json:"profile"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyRequest struct {
	Code string `json:"code"`
}

func (h *Handler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	acct, err := h.svc.Register(c.Request().Context(), req.Email, req.Password, req.Profile)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, acct)
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	tok, err := h.svc.Authenticate(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, tok)
}

func (h *Handler) Verify(c echo.Context) error {
	accountID, err := accountFromToken(c)
	if err != nil {
		return err
	}
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	tok, err := h.svc.VerifyCode(c.Request().Context(), accountID, req.Code)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, tok)
}

func (h *Handler) Resend(c echo.Context) error {
	accountID, err := accountFromToken(c)
	if err != nil {
		return err
	}
	if err := h.svc.RequestOneTimeCode(c.Request().Context(), accountID); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "sent"})
}

func accountFromToken(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid session subject")
	}
	return id, nil
}
