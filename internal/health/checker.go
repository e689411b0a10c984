// Package health provides periodic health checks with auto-recovery.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/clusterplug/clusterplug/internal/domain"
	"github.com/clusterplug/clusterplug/internal/infra/metrics"
)

// DefaultInterval is how often the checks run.
const DefaultInterval = 30 * time.Second

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	Recovered bool      `json:"recovered,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Pinger is satisfied by the sqlite store.
type Pinger interface {
	Ping() error
}

// Checker runs periodic health checks with auto-recovery.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
}

// RestoreFunc brings unit capacity back through the controller, so recovery
// honours the suspend override and the executor lock.
type RestoreFunc func(ctx context.Context) error

// NewChecker creates a checker for the journal store (optional) and the
// unit lifecycle provider. A nil restore leaves active_capacity report-only.
func NewChecker(db Pinger, units domain.UnitLifecycle, restore RestoreFunc) *Checker {
	c := &Checker{interval: DefaultInterval}
	if db != nil {
		c.checks = append(c.checks, Check{
			Name: "sqlite",
			CheckFn: func(ctx context.Context) error {
				return db.Ping()
			},
		})
	}
	c.checks = append(c.checks,
		Check{
			Name: "hotplug",
			CheckFn: func(ctx context.Context) error {
				_, err := units.PresentUnits()
				return err
			},
		},
		Check{
			Name: "active_capacity",
			CheckFn: func(ctx context.Context) error {
				return checkActive(units)
			},
			RecoverFn: restore,
		},
	)
	return c
}

// WithInterval overrides the check period.
func (c *Checker) WithInterval(d time.Duration) *Checker {
	if d > 0 {
		c.interval = d
	}
	return c
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	c.runAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runAll(ctx)
		}
	}
}

func (c *Checker) runAll(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{
			Name:      check.Name,
			CheckedAt: time.Now(),
		}
		if err := check.CheckFn(ctx); err != nil {
			s.Error = err.Error()
			klog.InfoS("Health check failed", "check", check.Name, "err", err)
			if check.RecoverFn != nil {
				metrics.HealthRecoveries.WithLabelValues(check.Name).Inc()
				if rerr := check.RecoverFn(ctx); rerr == nil {
					s.Recovered = true
				} else {
					klog.ErrorS(rerr, "Health recovery failed", "check", check.Name)
				}
			}
		} else {
			s.Healthy = true
		}
		metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(metrics.BoolGauge(s.Healthy))
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// ─── Check Implementations ──────────────────────────────────────────────────

func checkActive(units domain.UnitLifecycle) error {
	ids, err := units.PresentUnits()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if units.IsActive(id) {
			return nil
		}
	}
	return fmt.Errorf("none of %d units are active", len(ids))
}
