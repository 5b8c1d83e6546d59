package identity

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

func newTestHandler() (*Handler, *testEnv, *echo.Echo) {
	env := newTestEnv()
	return NewHandler(env.svc), env, echo.New()
}

func jsonRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestHandler_Register(t *testing.T) {
	h, env, e := newTestHandler()
	body := `{"email":"pat@example.com","password":"Secret1!","profile":{"first_name":"Pat","last_name":"Doe"}}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, body), rec)

	if err := h.Register(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("password hash must not be serialized")
	}
	if len(env.accounts.data) != 1 {
		t.Error("expected account to be stored")
	}
}

func TestHandler_Register_WeakPassword(t *testing.T) {
	h, _, e := newTestHandler()
	body := `{"email":"pat@example.com","password":"weak","profile":{"first_name":"Pat","last_name":"Doe"}}`
	c := e.NewContext(jsonRequest(http.MethodPost, body), httptest.NewRecorder())

	err := h.Register(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_LoginAndVerify(t *testing.T) {
	h, env, e := newTestHandler()
	acct := env.register(t)

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"email":"pat@example.com","password":"Secret1!"}`), rec)
	if err := h.Login(c); err != nil {
		t.Fatalf("login: %v", err)
	}
	var pending auth.Token
	json.Unmarshal(rec.Body.Bytes(), &pending)
	if pending.AccessToken == "" || pending.Verified {
		t.Fatalf("unexpected login response %s", rec.Body.String())
	}

	req := jsonRequest(http.MethodPost, `{"code":"123456"}`)
	req = req.WithContext(auth.WithUser(context.Background(), acct.ID.String(), acct.Email, false))
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	if err := h.Verify(c); err != nil {
		t.Fatalf("verify: %v", err)
	}
	var session auth.Token
	json.Unmarshal(rec.Body.Bytes(), &session)
	if !session.Verified {
		t.Errorf("expected verified session, got %s", rec.Body.String())
	}
}

func TestHandler_Login_BadCredentials(t *testing.T) {
	h, env, e := newTestHandler()
	env.register(t)

	c := e.NewContext(jsonRequest(http.MethodPost, `{"email":"pat@example.com","password":"nope"}`), httptest.NewRecorder())
	err := h.Login(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestHandler_Resend(t *testing.T) {
	h, env, e := newTestHandler()
	acct := env.register(t)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(auth.WithUser(context.Background(), acct.ID.String(), acct.Email, false))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Resend(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", rec.Code)
	}
	if env.sender.calls != 1 {
		t.Errorf("expected one code sent, got %d", env.sender.calls)
	}
}
