package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLivenessReflectsSetHealthy(t *testing.T) {
	s := NewMetricsServer(":0", "/metrics", "/healthz", false)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz/live", nil)
	s.handleLiveness(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("liveness before SetHealthy(false): code = %d, want 200", rec.Code)
	}

	s.SetHealthy(false)
	rec = httptest.NewRecorder()
	s.handleLiveness(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("liveness after SetHealthy(false): code = %d, want 503", rec.Code)
	}
}

func TestReadinessUsesHealthCheck(t *testing.T) {
	s := NewMetricsServer(":0", "/metrics", "/healthz", false)
	s.SetHealthCheck(func() HealthStatus {
		return HealthStatus{Status: "degraded"}
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz/ready", nil)
	s.handleReadiness(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("readiness with degraded status: code = %d, want 200", rec.Code)
	}

	s.SetHealthCheck(func() HealthStatus {
		return HealthStatus{Status: "unhealthy"}
	})
	rec = httptest.NewRecorder()
	s.handleReadiness(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readiness with unhealthy status: code = %d, want 503", rec.Code)
	}
}

func TestHealthEndpointDefaultsToHealthy(t *testing.T) {
	s := NewMetricsServer(":0", "/metrics", "/healthz", false)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.handleHealth(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("health with no check installed: code = %d, want 200", rec.Code)
	}
}
