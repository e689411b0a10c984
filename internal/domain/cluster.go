// Package domain holds the pure types shared by the controller, its
// providers and the API. Nothing here touches the OS.
package domain

import (
	"fmt"
	"strings"
)

// UnitID is the ordinal index of a compute unit (a logical CPU).
type UnitID int

// Cluster identifies which half of the big.LITTLE pair a unit belongs to.
type Cluster int

const (
	ClusterBig Cluster = iota
	ClusterLittle
)

// String returns the cluster name.
func (c Cluster) String() string {
	switch c {
	case ClusterBig:
		return "big"
	case ClusterLittle:
		return "little"
	default:
		return "unknown"
	}
}

// ParseCluster accepts "big" or "little" (case-insensitive).
func ParseCluster(s string) (Cluster, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "big":
		return ClusterBig, nil
	case "little":
		return ClusterLittle, nil
	default:
		return 0, fmt.Errorf("%w: cluster %q", ErrInvalidTunable, s)
	}
}

// Topology is the static partition of unit indices: indices below Boundary
// are the big cluster, the rest are little. BigUnits and LittleUnits count
// the units actually present in each cluster.
type Topology struct {
	Boundary    int `json:"boundary"`
	BigUnits    int `json:"big_units"`
	LittleUnits int `json:"little_units"`
}

// NewTopology returns a dense topology of big followed by little units.
func NewTopology(big, little int) Topology {
	return Topology{Boundary: big, BigUnits: big, LittleUnits: little}
}

// ClusterOf returns the cluster a unit belongs to.
func (t Topology) ClusterOf(id UnitID) Cluster {
	if int(id) < t.Boundary {
		return ClusterBig
	}
	return ClusterLittle
}

// Total returns the number of units in both clusters.
func (t Topology) Total() int {
	return t.BigUnits + t.LittleUnits
}

// Validate rejects partitions that leave a cluster empty.
func (t Topology) Validate() error {
	if t.BigUnits < 1 || t.LittleUnits < 1 {
		return fmt.Errorf("%w: big=%d little=%d", ErrInvalidTopology, t.BigUnits, t.LittleUnits)
	}
	return nil
}

// TopologyFor builds a topology from the present unit list and the index
// of the first little unit.
func TopologyFor(present []UnitID, boundary int) Topology {
	t := Topology{Boundary: boundary}
	for _, id := range present {
		if int(id) < boundary {
			t.BigUnits++
		} else {
			t.LittleUnits++
		}
	}
	return t
}

// ClusterPolicy is the target activation state handed to the executor.
type ClusterPolicy struct {
	Big    bool `json:"big"`
	Little bool `json:"little"`
}

var (
	// PolicyBoth is the known-good state used on enable and resume.
	PolicyBoth = ClusterPolicy{Big: true, Little: true}
	// PolicySuspend biases toward the power-efficient cluster while asleep.
	PolicySuspend = ClusterPolicy{Big: false, Little: true}
)

// Wants reports whether the policy keeps the given cluster active.
func (p ClusterPolicy) Wants(c Cluster) bool {
	if c == ClusterBig {
		return p.Big
	}
	return p.Little
}

// Safe coerces the all-off policy into little-only.
func (p ClusterPolicy) Safe() ClusterPolicy {
	if !p.Big && !p.Little {
		return PolicySuspend
	}
	return p
}

// String renders the policy as "big+little", "big" or "little".
func (p ClusterPolicy) String() string {
	switch {
	case p.Big && p.Little:
		return "big+little"
	case p.Big:
		return "big"
	case p.Little:
		return "little"
	default:
		return "none"
	}
}

// PreferredPolicy returns the single-cluster policy for a preference.
func PreferredPolicy(prefer Cluster) ClusterPolicy {
	if prefer == ClusterLittle {
		return ClusterPolicy{Little: true}
	}
	return ClusterPolicy{Big: true}
}

// UnitLoad is one sampled unit's load percentage.
type UnitLoad struct {
	Unit UnitID `json:"unit"`
	Load int    `json:"load_pct"`
}

// LoadSnapshot is the sampler's output for a single tick.
type LoadSnapshot struct {
	Loaded   int        `json:"loaded"`
	Unloaded int        `json:"unloaded"`
	Sampled  int        `json:"sampled"`
	Loads    []UnitLoad `json:"loads,omitempty"`
}
