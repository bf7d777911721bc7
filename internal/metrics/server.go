// Package metrics also carries the HTTP surface that exposes the
// process's Prometheus registry and health probes, independent of
// which engine (sender or receiver) is running.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/pprof"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer serves a private Prometheus registry plus health,
// liveness, and readiness probes over HTTP.
type MetricsServer struct {
	listen      string
	metricsPath string
	healthPath  string
	enablePprof bool

	httpServer *http.Server
	registry   *prometheus.Registry

	healthy     int32
	healthCheck func() HealthStatus

	mu sync.RWMutex
}

// HealthStatus is the JSON body the health endpoint returns. cmd/rft-send
// and cmd/rft-recv build one from their engine's live state via
// SetHealthCheck — typically a single "transfer" component reporting
// whether the in-flight transfer is progressing or has stalled.
type HealthStatus struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version"`
	Uptime     time.Duration              `json:"uptime"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth is one component's contribution to HealthStatus — in
// rft that's the transfer engine (sender or receiver) and, when it
// matters, the underlying transport.Channel.
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// TransferHealth builds the HealthStatus a running transfer reports
// through SetHealthCheck: "healthy" while progressing normally,
// "degraded" while in a congestion-control recovery episode (the
// transfer is still making progress, just slower), "unhealthy" once
// the caller has given up on it. progress is a short human-readable
// summary (e.g. "128/512 frames acked") carried as the transfer
// component's message.
func TransferHealth(version string, stalled, inRecovery bool, progress string) HealthStatus {
	status := "healthy"
	componentStatus := "healthy"
	switch {
	case stalled:
		status = "unhealthy"
		componentStatus = "unhealthy"
	case inRecovery:
		status = "degraded"
		componentStatus = "degraded"
	}
	return HealthStatus{
		Status:    status,
		Timestamp: time.Now(),
		Version:   version,
		Components: map[string]ComponentHealth{
			"transfer": {Status: componentStatus, Message: progress},
		},
	}
}

// NewMetricsServer builds a server around a fresh, private registry
// (never the global default, so a process embedding rft as a library
// doesn't collide with its own metrics), pre-registered with the Go
// runtime and process collectors.
func NewMetricsServer(listen, metricsPath, healthPath string, enablePprof bool) *MetricsServer {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &MetricsServer{
		listen:      listen,
		metricsPath: metricsPath,
		healthPath:  healthPath,
		enablePprof: enablePprof,
		healthy:     1,
		registry:    registry,
	}
}

// RegisterCollector adds a Prometheus collector to the server's
// registry.
func (s *MetricsServer) RegisterCollector(c prometheus.Collector) error {
	return s.registry.Register(c)
}

// MustRegisterCollector is like RegisterCollector but panics on
// failure, for collectors registered once at startup.
func (s *MetricsServer) MustRegisterCollector(c prometheus.Collector) {
	s.registry.MustRegister(c)
}

// SetHealthCheck installs the function the health and readiness
// endpoints call to build their response.
func (s *MetricsServer) SetHealthCheck(fn func() HealthStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthCheck = fn
}

// Start launches the HTTP listener in the background. It returns once
// the mux is built; the actual accept loop runs in a goroutine, and
// its terminal error (if any, other than a clean Shutdown) is logged
// rather than returned, matching net/http's own ListenAndServe
// convention for long-running servers.
func (s *MetricsServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc(s.healthPath, s.handleHealth)
	mux.HandleFunc(s.healthPath+"/live", s.handleLiveness)
	mux.HandleFunc(s.healthPath+"/ready", s.handleReadiness)

	mux.Handle(s.metricsPath, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          s.registry,
	}))

	if s.enablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	s.httpServer = &http.Server{
		Addr:         s.listen,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics: server error: %v\n", err)
		}
	}()

	return nil
}

func (s *MetricsServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	healthCheck := s.healthCheck
	s.mu.RUnlock()

	var status HealthStatus
	if healthCheck != nil {
		status = healthCheck()
	} else {
		status = HealthStatus{
			Status:    "healthy",
			Timestamp: time.Now(),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if status.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}

func (s *MetricsServer) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if atomic.LoadInt32(&s.healthy) == 1 {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("NOT OK"))
	}
}

func (s *MetricsServer) handleReadiness(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	healthCheck := s.healthCheck
	s.mu.RUnlock()

	if healthCheck != nil {
		status := healthCheck()
		if status.Status == "healthy" || status.Status == "degraded" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("READY"))
			return
		}
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte("NOT READY"))
}

// SetHealthy flips the liveness probe's answer.
func (s *MetricsServer) SetHealthy(healthy bool) {
	if healthy {
		atomic.StoreInt32(&s.healthy, 1)
	} else {
		atomic.StoreInt32(&s.healthy, 0)
	}
}

// Stop gracefully shuts down the HTTP listener.
func (s *MetricsServer) Stop() {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(ctx)
	}
}

// GetRegistry returns the server's private registry, for tests or for
// registering additional collectors before Start.
func (s *MetricsServer) GetRegistry() *prometheus.Registry {
	return s.registry
}
