package hotplug

import (
	"sync"

	"k8s.io/klog/v2"

	"github.com/clusterplug/clusterplug/internal/domain"
)

// accountingRecord holds a unit's counters from the previous sample.
type accountingRecord struct {
	wall uint64
	idle uint64
	seen bool
}

// Sampler turns cumulative idle/wall counters into per-tick load counts.
type Sampler struct {
	mu         sync.Mutex // guards records
	units      domain.UnitLifecycle
	accounting domain.IdleAccounting
	tunables   *Tunables
	records    map[domain.UnitID]*accountingRecord
}

// NewSampler creates a sampler over the given providers.
func NewSampler(units domain.UnitLifecycle, acct domain.IdleAccounting, t *Tunables) *Sampler {
	return &Sampler{
		units:      units,
		accounting: acct,
		tunables:   t,
		records:    make(map[domain.UnitID]*accountingRecord),
	}
}

// Prime records the current counters for every present unit so the first
// real sample measures a sane window.
func (s *Sampler) Prime() {
	s.mu.Lock()
	defer s.mu.Unlock()

	present, err := s.units.PresentUnits()
	if err != nil {
		klog.ErrorS(err, "Priming sampler: listing units failed")
		return
	}
	for _, id := range present {
		idle, wall, err := s.accounting.IdleAndWall(id)
		if err != nil {
			continue
		}
		s.records[id] = &accountingRecord{wall: wall, idle: idle, seen: true}
	}
}

// Sample reads every active unit and classifies it against the load
// thresholds. Degenerate samples are dropped silently.
func (s *Sampler) Sample() domain.LoadSnapshot {
	var snap domain.LoadSnapshot

	s.mu.Lock()
	defer s.mu.Unlock()

	present, err := s.units.PresentUnits()
	if err != nil {
		klog.ErrorS(err, "Sampling: listing units failed")
		return snap
	}

	up := s.tunables.LoadThresholdUp()
	down := s.tunables.LoadThresholdDown()

	for _, id := range present {
		if !s.units.IsActive(id) {
			continue
		}
		idle, wall, err := s.accounting.IdleAndWall(id)
		if err != nil {
			klog.V(4).InfoS("Excluding unit from sample", "unit", id, "err", err)
			continue
		}

		rec, ok := s.records[id]
		if !ok {
			rec = &accountingRecord{}
			s.records[id] = rec
		}
		prevWall, prevIdle, seen := rec.wall, rec.idle, rec.seen
		rec.wall, rec.idle, rec.seen = wall, idle, true

		if !seen || wall < prevWall || idle < prevIdle {
			continue
		}
		wallDelta := wall - prevWall
		idleDelta := idle - prevIdle
		if wallDelta == 0 || idleDelta > wallDelta {
			continue
		}

		load := int(100 * (wallDelta - idleDelta) / wallDelta)
		snap.Sampled++
		snap.Loads = append(snap.Loads, domain.UnitLoad{Unit: id, Load: load})
		if load > up {
			snap.Loaded++
		}
		if load < down {
			snap.Unloaded++
		}
	}

	klog.V(4).InfoS("Sampled load", "loaded", snap.Loaded, "unloaded", snap.Unloaded, "sampled", snap.Sampled)
	return snap
}
