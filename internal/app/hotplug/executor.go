package hotplug

import (
	"errors"
	"sort"
	"sync"

	"k8s.io/klog/v2"

	"github.com/clusterplug/clusterplug/internal/domain"
)

// ApplyResult describes what a single Apply call did.
type ApplyResult struct {
	Requested   domain.ClusterPolicy `json:"requested"`
	Effective   domain.ClusterPolicy `json:"effective"`
	Activated   []domain.UnitID      `json:"activated,omitempty"`
	Deactivated []domain.UnitID      `json:"deactivated,omitempty"`
	Refused     bool                 `json:"refused"`
	// Aborted is set when a refusal skipped the deactivation pass.
	Aborted bool `json:"aborted"`
}

// Changed reports whether any unit changed state.
func (r ApplyResult) Changed() bool {
	return len(r.Activated) > 0 || len(r.Deactivated) > 0
}

// Executor brings the active unit set in line with a policy. Activation
// always precedes deactivation so capacity never drops to zero.
type Executor struct {
	mu    sync.Mutex
	topo  domain.Topology
	units domain.UnitLifecycle
}

// NewExecutor creates an executor for the given topology.
func NewExecutor(topo domain.Topology, units domain.UnitLifecycle) *Executor {
	return &Executor{topo: topo, units: units}
}

// Apply is idempotent: applying the same policy twice leaves the same
// active set as applying it once.
func (x *Executor) Apply(policy domain.ClusterPolicy) ApplyResult {
	x.mu.Lock()
	defer x.mu.Unlock()

	p := policy.Safe()
	res := ApplyResult{Requested: policy}

	present, err := x.units.PresentUnits()
	if err != nil {
		klog.ErrorS(err, "Apply: listing units failed")
		res.Effective = p
		res.Aborted = true
		return res
	}
	sort.Slice(present, func(i, j int) bool { return present[i] < present[j] })

	for _, id := range present {
		if !p.Wants(x.topo.ClusterOf(id)) || x.units.IsActive(id) {
			continue
		}
		err := x.units.Activate(id)
		switch {
		case err == nil:
			res.Activated = append(res.Activated, id)
		case errors.Is(err, domain.ErrActivationRefused):
			klog.V(2).InfoS("Activation refused, holding little cluster", "unit", id)
			res.Refused = true
			p.Little = true
		default:
			klog.ErrorS(err, "Activating unit failed", "unit", id)
		}
	}
	res.Effective = p

	if res.Refused {
		res.Aborted = true
		return res
	}

	for _, id := range present {
		if p.Wants(x.topo.ClusterOf(id)) || !x.units.IsActive(id) {
			continue
		}
		if x.activeCount(present) <= 1 {
			klog.InfoS("Refusing to deactivate last active unit", "unit", id)
			break
		}
		if err := x.units.Deactivate(id); err != nil {
			klog.ErrorS(err, "Deactivating unit failed", "unit", id)
			continue
		}
		res.Deactivated = append(res.Deactivated, id)
	}

	if res.Changed() {
		klog.V(2).InfoS("Applied policy", "policy", p, "activated", res.Activated, "deactivated", res.Deactivated)
	}
	return res
}

func (x *Executor) activeCount(present []domain.UnitID) int {
	n := 0
	for _, id := range present {
		if x.units.IsActive(id) {
			n++
		}
	}
	return n
}

// ActiveByCluster counts the active units in each cluster.
func (x *Executor) ActiveByCluster() (big, little int) {
	present, err := x.units.PresentUnits()
	if err != nil {
		return 0, 0
	}
	for _, id := range present {
		if !x.units.IsActive(id) {
			continue
		}
		if x.topo.ClusterOf(id) == domain.ClusterBig {
			big++
		} else {
			little++
		}
	}
	return big, little
}
