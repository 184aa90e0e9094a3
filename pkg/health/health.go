// Package health reports whether an open database is serving, checkpointing
// and backing up as configured.
package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check is the result of one named check
type Check struct {
	Name        string         `json:"name"`
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    time.Duration  `json:"duration_ms"`
}

// CheckFunc performs a check
type CheckFunc func(ctx context.Context) Check

// Response is the combined result; the worst check status wins
type Response struct {
	Status    Status        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Checks    []Check       `json:"checks"`
	Uptime    time.Duration `json:"uptime_seconds"`
}

// Checker runs registered checks
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	started time.Time
}

// NewChecker creates a checker with no checks
func NewChecker(started time.Time) *Checker {
	return &Checker{checks: make(map[string]CheckFunc), started: started}
}

// Register adds or replaces a named check
func (c *Checker) Register(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Run performs every check in name order
func (c *Checker) Run(ctx context.Context) Response {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	checks := make(map[string]CheckFunc, len(c.checks))
	for k, v := range c.checks {
		checks[k] = v
	}
	c.mu.RUnlock()
	sort.Strings(names)

	now := time.Now()
	resp := Response{
		Status:    StatusHealthy,
		Timestamp: now,
		Checks:    make([]Check, 0, len(names)),
		Uptime:    now.Sub(c.started),
	}
	for _, name := range names {
		start := time.Now()
		check := checks[name](ctx)
		check.Name = name
		check.Duration = time.Since(start)
		check.LastChecked = start
		resp.Checks = append(resp.Checks, check)

		if check.Status == StatusUnhealthy {
			resp.Status = StatusUnhealthy
		} else if check.Status == StatusDegraded && resp.Status != StatusUnhealthy {
			resp.Status = StatusDegraded
		}
	}
	return resp
}
