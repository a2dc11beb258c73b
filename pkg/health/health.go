// Package health provides liveness and readiness probe endpoints for the
// sync daemon. Probes are evaluated on request with a per-probe timeout;
// readiness additionally requires the service to be marked ready.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
)

// CheckFunc reports nil when the probed component is healthy.
type CheckFunc func(ctx context.Context) error

type probe struct {
	name    string
	timeout time.Duration
	check   CheckFunc
}

// Service aggregates named probes behind /livez and /readyz handlers.
type Service struct {
	ready atomic.Bool

	mu        sync.RWMutex
	liveness  []probe
	readiness []probe
}

// New returns a Service in the not-ready state; call SetReady(true) once
// initialization finishes.
func New() *Service {
	return &Service{}
}

// AddLivenessCheck registers a probe answering "is this process alive".
func (s *Service) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liveness = append(s.liveness, probe{name: name, timeout: timeout, check: check})
}

// AddReadinessCheck registers a probe answering "can this process serve".
func (s *Service) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readiness = append(s.readiness, probe{name: name, timeout: timeout, check: check})
}

// SetReady flips the manual readiness gate. Graceful shutdown sets it
// false so load balancers drain before the listener closes.
func (s *Service) SetReady(ready bool) {
	s.ready.Store(ready)
}

// LiveEndpoint serves /livez.
func (s *Service) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	probes := append([]probe(nil), s.liveness...)
	s.mu.RUnlock()

	writeStatus(w, s.evaluate(r.Context(), probes))
}

// ReadyEndpoint serves /readyz.
func (s *Service) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	probes := append([]probe(nil), s.readiness...)
	s.mu.RUnlock()

	failures := s.evaluate(r.Context(), probes)
	if !s.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	writeStatus(w, failures)
}

func (s *Service) evaluate(ctx context.Context, probes []probe) map[string]string {
	failures := make(map[string]string)
	for _, p := range probes {
		checkCtx, cancel := context.WithTimeout(ctx, p.timeout)
		err := p.check(checkCtx)
		cancel()
		if err != nil {
			failures[p.name] = err.Error()
		}
	}
	return failures
}

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func writeStatus(w http.ResponseWriter, failures map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	resp := statusResponse{Status: "ok"}
	if len(failures) > 0 {
		resp.Status = "unhealthy"
		resp.Checks = failures
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// GoroutineCountCheck reports unhealthy when the goroutine count exceeds
// threshold; a cheap leak detector for the watch goroutines.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		if count := runtime.NumGoroutine(); count > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", count, threshold)
		}
		return nil
	}
}
