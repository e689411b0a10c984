package hotplug

import (
	"time"

	"k8s.io/klog/v2"

	"github.com/clusterplug/clusterplug/internal/domain"
)

// staleFactor is how many sampling intervals may pass before a sample is
// considered stale.
const staleFactor = 5

// VotingEngine keeps time-decayed up/down votes and a sticky "little
// engaged" target. The big cluster is always proposed active.
type VotingEngine struct {
	topo     domain.Topology
	tunables *Tunables

	voteUp   int
	voteDown int
	engaged  bool
	last     time.Time
	stale    bool
}

// NewVotingEngine creates an engine with the little cluster engaged.
func NewVotingEngine(topo domain.Topology, t *Tunables) *VotingEngine {
	return &VotingEngine{topo: topo, tunables: t, engaged: true}
}

func (e *VotingEngine) Name() string { return AlgorithmVoting }

// Evaluate folds one snapshot into the votes and returns the policy.
func (e *VotingEngine) Evaluate(snap domain.LoadSnapshot, now time.Time) domain.ClusterPolicy {
	limit := staleFactor * e.tunables.SamplingInterval()
	e.stale = e.last.IsZero() || now.Sub(e.last) > limit

	if e.stale {
		klog.V(2).InfoS("Discarding stale sample", "elapsed", now.Sub(e.last), "limit", limit,
			"voteUp", e.voteUp, "voteDown", e.voteDown)
		e.voteUp, e.voteDown = 0, 0
	} else {
		if loadedEnough(e.topo, snap.Loaded) {
			e.voteUp++
		} else if e.voteUp > 0 {
			e.voteUp--
		}
		if snap.Unloaded >= e.topo.LittleUnits+1 {
			e.voteDown++
		} else if e.voteDown > 0 {
			e.voteDown--
		}
	}
	e.last = now

	thUp := e.tunables.VoteThresholdUp()
	thDown := e.tunables.VoteThresholdDown()
	switch {
	case e.voteUp > thUp:
		if !e.engaged {
			klog.V(2).InfoS("Engaging little cluster", "voteUp", e.voteUp)
		}
		e.engaged = true
		e.voteUp = thUp
		e.voteDown = 0
	case e.voteUp == 0 && e.voteDown > thDown:
		if e.engaged {
			klog.V(2).InfoS("Releasing little cluster", "voteDown", e.voteDown)
		}
		e.engaged = false
		e.voteDown = thDown
	}

	return e.policy()
}

func (e *VotingEngine) policy() domain.ClusterPolicy {
	return domain.ClusterPolicy{Big: true, Little: e.engaged}
}

// Reset saturates the up vote so the little cluster stays engaged.
func (e *VotingEngine) Reset(now time.Time) {
	e.voteUp = e.tunables.VoteThresholdUp()
	e.voteDown = 0
	e.engaged = true
	e.last = now
	e.stale = false
}

func (e *VotingEngine) State() EngineState {
	return EngineState{
		Algorithm:     AlgorithmVoting,
		VoteUp:        e.voteUp,
		VoteDown:      e.voteDown,
		LittleEngaged: e.engaged,
		LastPolicy:    e.policy(),
		LastSample:    e.last,
		Stale:         e.stale,
	}
}
