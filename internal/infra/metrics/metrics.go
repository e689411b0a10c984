// Package metrics provides Prometheus metrics for clusterplug: control loop
// ticks, decision counters, unit transitions, power state and health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "clusterplug"

// ─── Control Loop ───────────────────────────────────────────────────────────

// Ticks counts control loop runs by outcome (decided, disabled, suspended).
var Ticks = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "ticks_total",
	Help:      "Control loop ticks by outcome.",
}, []string{"outcome"})

// TickDuration tracks the wall time of one sample/decide/apply pass.
var TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "tick_duration_seconds",
	Help:      "Duration of a control loop tick.",
	Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
})

// StaleSamples counts samples discarded because too much time had passed.
var StaleSamples = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "stale_samples_total",
	Help:      "Samples discarded as stale.",
})

// ─── Load ───────────────────────────────────────────────────────────────────

// UnitsLoaded tracks the loaded/unloaded counts from the last sample.
var UnitsLoaded = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "units_sampled",
	Help:      "Units classified in the last sample (class=loaded|unloaded|sampled).",
}, []string{"class"})

// ─── Decision ───────────────────────────────────────────────────────────────

// Votes tracks the voting engine counters.
var Votes = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "votes",
	Help:      "Voting engine counters (direction=up|down).",
}, []string{"direction"})

// Grace tracks the hysteresis engine's remaining grace ticks.
var Grace = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "grace_ticks",
	Help:      "Remaining hysteresis grace ticks.",
})

// Policy tracks the last applied policy (1=cluster targeted active).
var Policy = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "policy_active",
	Help:      "Last applied policy per cluster (1=active, 0=inactive).",
}, []string{"cluster"})

// ─── Units ──────────────────────────────────────────────────────────────────

// UnitTransitions counts activations and deactivations.
var UnitTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "unit_transitions_total",
	Help:      "Unit state changes by cluster and direction (up|down).",
}, []string{"cluster", "direction"})

// Refusals counts activations refused by an external policy.
var Refusals = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "activation_refusals_total",
	Help:      "Activations refused by thermal or power management.",
})

// ActiveUnits tracks how many units are active per cluster.
var ActiveUnits = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "active_units",
	Help:      "Active units per cluster.",
}, []string{"cluster"})

// ─── Power ──────────────────────────────────────────────────────────────────

// Suspended is 1 while the system is in the suspend override.
var Suspended = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "suspended",
	Help:      "1 while suspended.",
})

// Enabled is 1 while the controller is enabled.
var Enabled = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "enabled",
	Help:      "1 while the controller is enabled.",
})

// CPUTemperature tracks the SoC temperature in celsius.
var CPUTemperature = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "cpu_temperature_celsius",
	Help:      "Current CPU temperature in Celsius.",
})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})

// HealthRecoveries tracks auto-recovery attempts.
var HealthRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "health_recoveries_total",
	Help:      "Total auto-recovery attempts per check.",
}, []string{"check"})

// BoolGauge converts a flag to a gauge value.
func BoolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
