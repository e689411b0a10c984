package hotplug

import (
	"fmt"
	"time"

	"github.com/clusterplug/clusterplug/internal/domain"
)

// Algorithm names accepted by NewEngine.
const (
	AlgorithmVoting     = "voting"
	AlgorithmHysteresis = "hysteresis"
)

// Engine converts load snapshots into a target cluster policy. Evaluate and
// Reset are only called with the controller lock held.
type Engine interface {
	Name() string
	Evaluate(snap domain.LoadSnapshot, now time.Time) domain.ClusterPolicy
	// Reset returns the engine to its "just became loaded" baseline.
	Reset(now time.Time)
	State() EngineState
}

// EngineState is a read-only view of the decision counters.
type EngineState struct {
	Algorithm     string               `json:"algorithm"`
	VoteUp        int                  `json:"vote_up,omitempty"`
	VoteDown      int                  `json:"vote_down,omitempty"`
	LittleEngaged bool                 `json:"little_engaged"`
	Grace         int                  `json:"grace,omitempty"`
	LastPolicy    domain.ClusterPolicy `json:"last_policy"`
	LastSample    time.Time            `json:"last_sample,omitempty"`
	Stale         bool                 `json:"stale,omitempty"`
}

// NewEngine builds the named decision algorithm.
func NewEngine(name string, topo domain.Topology, t *Tunables) (Engine, error) {
	switch name {
	case AlgorithmVoting, "":
		return NewVotingEngine(topo, t), nil
	case AlgorithmHysteresis:
		return NewHysteresisEngine(topo, t), nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownAlgorithm, name)
	}
}

// loadedEnough reports whether the big cluster is saturated.
func loadedEnough(topo domain.Topology, loaded int) bool {
	return loaded >= topo.BigUnits-1
}
