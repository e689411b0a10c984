package hotplug

import (
	"time"

	"k8s.io/klog/v2"

	"github.com/clusterplug/clusterplug/internal/domain"
)

// HysteresisEngine holds both clusters active for a grace period after the
// last saturated sample, then drops to the preferred cluster.
type HysteresisEngine struct {
	topo     domain.Topology
	tunables *Tunables

	grace int
	last  domain.ClusterPolicy
}

// NewHysteresisEngine starts with full grace and both clusters active.
func NewHysteresisEngine(topo domain.Topology, t *Tunables) *HysteresisEngine {
	return &HysteresisEngine{
		topo:     topo,
		tunables: t,
		grace:    t.HysteresisTicks(),
		last:     domain.PolicyBoth,
	}
}

func (e *HysteresisEngine) Name() string { return AlgorithmHysteresis }

// Evaluate returns the last commanded policy while grace remains.
func (e *HysteresisEngine) Evaluate(snap domain.LoadSnapshot, _ time.Time) domain.ClusterPolicy {
	switch {
	case loadedEnough(e.topo, snap.Loaded):
		e.grace = e.tunables.HysteresisTicks()
		e.last = domain.PolicyBoth
	case e.grace > 0:
		e.grace--
	default:
		next := domain.PreferredPolicy(e.tunables.ClusterPreference())
		if next != e.last {
			klog.V(2).InfoS("Grace expired, downgrading", "policy", next)
		}
		e.last = next
	}
	return e.last
}

func (e *HysteresisEngine) Reset(time.Time) {
	e.grace = e.tunables.HysteresisTicks()
	e.last = domain.PolicyBoth
}

func (e *HysteresisEngine) State() EngineState {
	return EngineState{
		Algorithm:     AlgorithmHysteresis,
		Grace:         e.grace,
		LittleEngaged: e.last.Little,
		LastPolicy:    e.last,
	}
}
