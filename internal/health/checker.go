// Package health probes the document backend and tracks whether it is
// reachable.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Backend states.
const (
	StatusUnknown  = "unknown"
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(success bool)

// Snapshot is the checker state at a point in time.
type Snapshot struct {
	Status      string    `json:"status"`
	Target      string    `json:"target"`
	FailCount   int       `json:"fail_count"`
	LastCheckAt time.Time `json:"last_check_at,omitempty"`
	LastOKAt    time.Time `json:"last_ok_at,omitempty"`
}

// Checker runs periodic probes against a single backend URL.
type Checker struct {
	target     string
	httpClient *http.Client
	cfg        Config
	onMetrics  MetricsRecordFunc
	logger     *zap.Logger

	mu          sync.Mutex
	status      string
	failCount   int
	lastCheckAt time.Time
	lastOKAt    time.Time
}

// New creates a Checker for target.
func New(target string, cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}

	return &Checker{
		target:     target,
		httpClient: &http.Client{Timeout: cfg.ProbeTimeout},
		cfg:        cfg,
		logger:     logger,
		status:     StatusUnknown,
	}
}

// SetMetricsRecord configures the metrics recording callback.
func (h *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Start probes immediately and then on every interval until ctx is done.
func (h *Checker) Start(ctx context.Context) {
	h.Check(ctx)

	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Check runs a single probe and updates the state. It reports whether the
// probe succeeded.
func (h *Checker) Check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, h.cfg.ProbeTimeout)
	defer cancel()

	success := h.probeEndpoint(probeCtx, h.target)
	if h.onMetrics != nil {
		h.onMetrics(success)
	}

	now := time.Now().UTC()

	h.mu.Lock()
	prev := h.status
	h.lastCheckAt = now
	if success {
		h.failCount = 0
		h.lastOKAt = now
		h.status = StatusHealthy
	} else {
		h.failCount++
		if h.failCount >= h.cfg.FailThreshold {
			h.status = StatusDegraded
		}
	}
	status, count := h.status, h.failCount
	h.mu.Unlock()

	switch {
	case status == StatusHealthy && prev == StatusDegraded:
		h.logger.Info("health: backend recovered", zap.String("target", h.target))
	case status == StatusDegraded && prev != StatusDegraded:
		h.logger.Warn("health: backend degraded",
			zap.String("target", h.target),
			zap.Int("fail_count", count),
		)
	}
	return success
}

// Snapshot returns the current state.
func (h *Checker) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Snapshot{
		Status:      h.status,
		Target:      h.target,
		FailCount:   h.failCount,
		LastCheckAt: h.lastCheckAt,
		LastOKAt:    h.lastOKAt,
	}
}

// probeEndpoint attempts HEAD then GET, returning true if any 2xx response.
func (h *Checker) probeEndpoint(ctx context.Context, endpoint string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
	if err != nil {
		return false
	}
	resp, err := h.httpClient.Do(req)
	if err == nil {
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return true
		}
	}

	// Fallback to GET.
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false
	}
	resp, err = h.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
