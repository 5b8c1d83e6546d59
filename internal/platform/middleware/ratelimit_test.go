package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func fixedStore(cfg RateLimitConfig, now *time.Time) *limiterStore {
	s := newLimiterStore(cfg)
	s.now = func() time.Time { return *now }
	return s
}

func callFrom(t *testing.T, mw echo.MiddlewareFunc, ip string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.Header.Set(echo.HeaderXRealIP, ip)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return rec, mw(okHandler)(c)
}

func TestRateLimit_RequestsWithinLimit(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mw := rateLimit(fixedStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 3}, &now))

	for i := 0; i < 3; i++ {
		if _, err := callFrom(t, mw, "10.0.0.1"); err != nil {
			t.Fatalf("request %d: unexpected error: %v", i+1, err)
		}
	}
}

func TestRateLimit_ExceedsLimit(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mw := rateLimit(fixedStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2}, &now))

	callFrom(t, mw, "10.0.0.1")
	callFrom(t, mw, "10.0.0.1")
	rec, err := callFrom(t, mw, "10.0.0.1")

	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Errorf("expected Retry-After 1, got %q", rec.Header().Get("Retry-After"))
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Error("expected X-RateLimit-Remaining 0")
	}
}

func TestRateLimit_RefillsOverTime(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mw := rateLimit(fixedStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1}, &now))

	callFrom(t, mw, "10.0.0.1")
	if _, err := callFrom(t, mw, "10.0.0.1"); err == nil {
		t.Fatal("expected second request to be limited")
	}

	now = now.Add(time.Second)
	if _, err := callFrom(t, mw, "10.0.0.1"); err != nil {
		t.Fatalf("expected request after refill to pass, got %v", err)
	}
}

func TestRateLimit_PerKeyIsolation(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mw := rateLimit(fixedStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1}, &now))

	callFrom(t, mw, "10.0.0.1")
	if _, err := callFrom(t, mw, "10.0.0.2"); err != nil {
		t.Fatalf("expected a different client to have its own bucket, got %v", err)
	}
}

func TestRateLimit_EvictsIdleClients(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := fixedStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute}, &now)

	store.reserve("10.0.0.1")
	now = now.Add(2 * time.Minute)
	store.reserve("10.0.0.2")

	if _, ok := store.clients["10.0.0.1"]; ok {
		t.Error("expected idle client to be evicted")
	}
	if len(store.clients) != 1 {
		t.Errorf("expected 1 tracked client, got %d", len(store.clients))
	}
}

func TestRateLimit_DefaultConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond != 1 || cfg.BurstSize != 5 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}
