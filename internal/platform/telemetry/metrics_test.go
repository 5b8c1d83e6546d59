package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware_CountsByRoute(t *testing.T) {
	m := NewMetrics()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/v1/triage/:flow", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	for _, flow := range []string{"sick", "refill"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/triage/"+flow, nil))
	}

	got := testutil.ToFloat64(m.requestsTotal.WithLabelValues(http.MethodGet, "/api/v1/triage/:flow", "200"))
	if got != 2 {
		t.Errorf("expected 2 requests on the route template, got %v", got)
	}
}

func TestMiddleware_RecordsErrorStatus(t *testing.T) {
	m := NewMetrics()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/fail", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadGateway, "upstream")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fail", nil))

	got := testutil.ToFloat64(m.requestsTotal.WithLabelValues(http.MethodGet, "/fail", "502"))
	if got != 1 {
		t.Errorf("expected one 502, got %v", got)
	}
}

func TestObserveFinalize(t *testing.T) {
	m := NewMetrics()
	m.ObserveFinalize(OutcomeArchived)
	m.ObserveFinalize(OutcomeArchived)
	m.ObserveFinalize(OutcomeArchivedEmailFailed)

	if got := testutil.ToFloat64(m.finalizeTotal.WithLabelValues(OutcomeArchived)); got != 2 {
		t.Errorf("expected 2 archived, got %v", got)
	}
	if got := testutil.ToFloat64(m.finalizeTotal.WithLabelValues(OutcomeArchivedEmailFailed)); got != 1 {
		t.Errorf("expected 1 archived_email_failed, got %v", got)
	}
}

func TestHandler_Exposition(t *testing.T) {
	m := NewMetrics()
	m.ObserveFinalize(OutcomeEmailed)

	e := echo.New()
	e.GET("/metrics", m.Handler())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `visit_finalize_total{outcome="emailed"} 1`) {
		t.Error("expected finalize counter in exposition output")
	}
}
