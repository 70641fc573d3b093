package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	assert.Contains(t, body, `auth_demo_http_requests_total{code="418",route="/test"} 1`)
	assert.Contains(t, body, `auth_demo_http_request_duration_seconds_bucket{route="/test"`)
}

func TestMiddlewareUnknownRoute(t *testing.T) {
	metrics := NewMetrics()
	handler := metrics.Middleware(http.NotFoundHandler())

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Contains(t, scrape(t, metrics), `auth_demo_http_requests_total{code="404",route="unknown"} 1`)
}

func TestRecordAuthAction(t *testing.T) {
	metrics := NewMetrics()
	metrics.RecordAuthAction("login", OutcomeSuccess)
	metrics.RecordAuthAction("login", OutcomeSuccess)
	metrics.RecordAuthAction("signup", OutcomeRejected)

	body := scrape(t, metrics)
	assert.Contains(t, body, `auth_demo_auth_actions_total{action="login",outcome="success"} 2`)
	assert.Contains(t, body, `auth_demo_auth_actions_total{action="signup",outcome="rejected"} 1`)
}

func TestTrackActiveSessions(t *testing.T) {
	metrics := NewMetrics()
	n := 3
	metrics.TrackActiveSessions(func() int { return n })

	assert.Contains(t, scrape(t, metrics), "auth_demo_active_sessions 3")
	n = 5
	assert.Contains(t, scrape(t, metrics), "auth_demo_active_sessions 5")
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	next := http.NotFoundHandler()

	assert.NotPanics(t, func() {
		m.RecordAuthAction("login", OutcomeError)
		m.TrackActiveSessions(func() int { return 0 })
		_ = m.Middleware(next)
	})

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
