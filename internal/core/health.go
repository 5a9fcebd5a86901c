package core

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// healthCheckTimeout bounds the combined runtime of all health probes.
const healthCheckTimeout = 2 * time.Second

// HealthProbe is a subsystem check run by GET /health. Probes represent
// dependencies whose loss degrades the service (e.g. the Redis row store).
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs every registered probe concurrently under a shared
// deadline. All healthy means 200; any failure or timeout means 503. With no
// probes registered the service reports healthy: the geodata providers have
// documented fallbacks and only hard dependencies get probes.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	probes := s.HealthProbes
	if len(probes) == 0 {
		JSON(w, r, http.StatusOK, healthResponse{Status: "healthy"})
		return
	}

	type probeResult struct {
		name string
		err  error
	}

	var (
		mu      sync.Mutex
		results = make(map[string]probeResult, len(probes))
		wg      sync.WaitGroup
	)

	for _, probe := range probes {
		wg.Add(1)
		go func(p HealthProbe) {
			defer wg.Done()
			err := p.Check(ctx)
			mu.Lock()
			results[p.Name()] = probeResult{name: p.Name(), err: err}
			mu.Unlock()
		}(probe)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// Probes that did not finish are reported as timed out below.
	}

	mu.Lock()
	defer mu.Unlock()

	components := make(map[string]componentStatus, len(probes))
	allHealthy := true
	for _, probe := range probes {
		name := probe.Name()
		result, ok := results[name]
		switch {
		case !ok:
			allHealthy = false
			components[name] = componentStatus{Status: "unhealthy", Message: "health check timed out"}
		case result.err != nil:
			allHealthy = false
			components[name] = componentStatus{Status: "unhealthy", Message: result.err.Error()}
		default:
			components[name] = componentStatus{Status: "healthy"}
		}
	}

	resp := healthResponse{Status: "healthy", Components: components}
	status := http.StatusOK
	if !allHealthy {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	JSON(w, r, status, resp)
}
