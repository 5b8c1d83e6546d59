package profile

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/carepath/portal/internal/platform/auth"
)

func newTestHandler(t *testing.T) (*Handler, *echo.Echo, *Profile) {
	svc, _, _ := newTestService()
	p := seedProfile(t, svc)
	return NewHandler(svc), echo.New(), p
}

func asUser(req *http.Request, p *Profile) *http.Request {
	return req.WithContext(auth.WithUser(context.Background(), p.UserID.String(), p.Email, true))
}

func TestHandler_GetProfile(t *testing.T) {
	h, e, p := newTestHandler(t)
	req := asUser(httptest.NewRequest(http.MethodGet, "/", nil), p)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.GetProfile(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var got Profile
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.FirstName != "Pat" {
		t.Errorf("unexpected profile %+v", got)
	}
}

func TestHandler_GetProfile_BadSubject(t *testing.T) {
	h, e, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(auth.WithUser(context.Background(), "not-a-uuid", "", true))
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.GetProfile(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestHandler_UpdateProfile(t *testing.T) {
	h, e, p := newTestHandler(t)
	body := `{"first_name":"Pat","last_name":"Doe","email":"pat@example.com","dob":"1990-04-12","allergies":"Doxycycline","pharmacy":"123 Main St"}`
	req := asUser(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(body)), p)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.UpdateProfile(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Profile
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Allergies != "Doxycycline" || got.UserID != p.UserID {
		t.Errorf("unexpected profile %+v", got)
	}
}

func TestHandler_UpdateProfile_Invalid(t *testing.T) {
	h, e, p := newTestHandler(t)
	req := asUser(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"first_name":""}`)), p)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.UpdateProfile(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_UpdatePharmacy(t *testing.T) {
	h, e, p := newTestHandler(t)
	req := asUser(httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"pharmacy":"9 Elm St"}`)), p)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.UpdatePharmacy(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "9 Elm St") {
		t.Errorf("expected new pharmacy in body, got %s", rec.Body.String())
	}
}

func TestHandler_ListHistory(t *testing.T) {
	h, e, p := newTestHandler(t)
	h.svc.UpdatePharmacy(context.Background(), p.UserID, "9 Elm St")

	req := asUser(httptest.NewRequest(http.MethodGet, "/?limit=5", nil), p)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListHistory(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Total int `json:"total"`
		Limit int `json:"limit"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Total != 1 || body.Limit != 5 {
		t.Errorf("unexpected page %+v", body)
	}
}
