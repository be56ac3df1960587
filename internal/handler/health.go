package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/segyhp/fund-ledger/pkg/response"
)

const (
	statusUp   = "up"
	statusDown = "down"
)

type dbPinger interface {
	PingContext(ctx context.Context) error
}

// dependency is something the ledger cannot serve requests without.
type dependency struct {
	name string
	ping func(ctx context.Context) error
}

// HealthHandler answers liveness and readiness for the fund ledger API.
type HealthHandler struct {
	deps    []dependency
	timeout time.Duration
	started time.Time
	now     func() time.Time
}

// NewHealthHandler checks the ledger database and the allocation claim cache. Nil dependencies are skipped.
func NewHealthHandler(db dbPinger, cache redis.Cmdable, timeout time.Duration) *HealthHandler {
	h := &HealthHandler{
		timeout: timeout,
		started: time.Now(),
		now:     time.Now,
	}
	if db != nil {
		h.deps = append(h.deps, dependency{name: "database", ping: db.PingContext})
	}
	if cache != nil {
		h.deps = append(h.deps, dependency{name: "redis", ping: func(ctx context.Context) error {
			return cache.Ping(ctx).Err()
		}})
	}
	return h
}

// DependencyStatus is the outcome of pinging one dependency.
type DependencyStatus struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type HealthReport struct {
	Status       string                      `json:"status"`
	CheckedAt    time.Time                   `json:"checked_at"`
	Uptime       string                      `json:"uptime"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// Health reports that the process is serving. It touches no dependency.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.Success(w, h.report())
}

// Ready pings every dependency in parallel under one deadline and answers 503 if any is down.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	results := make([]DependencyStatus, len(h.deps))
	var wg sync.WaitGroup
	for i, dep := range h.deps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = h.check(ctx, dep)
		}()
	}
	wg.Wait()

	report := h.report()
	report.Dependencies = make(map[string]DependencyStatus, len(h.deps))
	for i, dep := range h.deps {
		report.Dependencies[dep.name] = results[i]
		if results[i].Status == statusDown {
			report.Status = statusDown
		}
	}

	if report.Status == statusDown {
		response.JSON(w, http.StatusServiceUnavailable, report)
		return
	}
	response.Success(w, report)
}

func (h *HealthHandler) check(ctx context.Context, dep dependency) DependencyStatus {
	start := h.now()
	err := dep.ping(ctx)
	result := DependencyStatus{Status: statusUp, LatencyMS: h.now().Sub(start).Milliseconds()}
	if err != nil {
		result.Status = statusDown
		result.Error = err.Error()
	}
	return result
}

func (h *HealthHandler) report() HealthReport {
	now := h.now()
	return HealthReport{
		Status:    statusUp,
		CheckedAt: now.UTC(),
		Uptime:    now.Sub(h.started).Truncate(time.Second).String(),
	}
}
