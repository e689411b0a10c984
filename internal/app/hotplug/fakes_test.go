package hotplug

import (
	"fmt"
	"sort"
	"sync"

	"github.com/clusterplug/clusterplug/internal/domain"
)

// fakeUnits is an in-memory lifecycle provider. It tracks the lowest active
// count ever observed so tests can assert capacity never hit zero.
type fakeUnits struct {
	mu        sync.Mutex
	present   []domain.UnitID
	active    map[domain.UnitID]bool
	refuse    map[domain.UnitID]bool
	minActive int
	calls     []string
}

func newFakeUnits(n int) *fakeUnits {
	f := &fakeUnits{
		active: make(map[domain.UnitID]bool),
		refuse: make(map[domain.UnitID]bool),
	}
	for i := 0; i < n; i++ {
		f.present = append(f.present, domain.UnitID(i))
		f.active[domain.UnitID(i)] = true
	}
	f.minActive = n
	return f
}

func (f *fakeUnits) PresentUnits() ([]domain.UnitID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.UnitID, len(f.present))
	copy(out, f.present)
	return out, nil
}

func (f *fakeUnits) IsActive(id domain.UnitID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[id]
}

func (f *fakeUnits) Activate(id domain.UnitID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("up %d", id))
	if f.refuse[id] {
		return domain.ErrActivationRefused
	}
	f.active[id] = true
	return nil
}

func (f *fakeUnits) Deactivate(id domain.UnitID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("down %d", id))
	f.active[id] = false
	if n := f.countLocked(); n < f.minActive {
		f.minActive = n
	}
	return nil
}

func (f *fakeUnits) countLocked() int {
	n := 0
	for _, on := range f.active {
		if on {
			n++
		}
	}
	return n
}

func (f *fakeUnits) set(on bool, ids ...domain.UnitID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.active[id] = on
	}
}

func (f *fakeUnits) refuseUnit(id domain.UnitID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refuse[id] = true
}

func (f *fakeUnits) activeSet() []domain.UnitID {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.UnitID
	for id, on := range f.active {
		if on {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (f *fakeUnits) lowestActive() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.minActive
}

func (f *fakeUnits) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *fakeUnits) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// fakeAccounting hands out cumulative counters the test advances explicitly.
type fakeAccounting struct {
	mu   sync.Mutex
	idle map[domain.UnitID]uint64
	wall map[domain.UnitID]uint64
	errs map[domain.UnitID]error
}

func newFakeAccounting() *fakeAccounting {
	return &fakeAccounting{
		idle: make(map[domain.UnitID]uint64),
		wall: make(map[domain.UnitID]uint64),
		errs: make(map[domain.UnitID]error),
	}
}

func (f *fakeAccounting) IdleAndWall(id domain.UnitID) (uint64, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[id]; err != nil {
		return 0, 0, err
	}
	return f.idle[id], f.wall[id], nil
}

// advance adds a 100-tick window to each unit with the given load percent.
func (f *fakeAccounting) advance(loads map[domain.UnitID]int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, load := range loads {
		f.wall[id] += 100
		f.idle[id] += uint64(100 - load)
	}
}

// setRaw overwrites a unit's counters.
func (f *fakeAccounting) setRaw(id domain.UnitID, idle, wall uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idle[id] = idle
	f.wall[id] = wall
}

// uniform builds a load map giving every unit in ids the same load.
func uniform(load int, ids ...domain.UnitID) map[domain.UnitID]int {
	m := make(map[domain.UnitID]int, len(ids))
	for _, id := range ids {
		m[id] = load
	}
	return m
}

func merge(ms ...map[domain.UnitID]int) map[domain.UnitID]int {
	out := make(map[domain.UnitID]int)
	for _, m := range ms {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// memRecorder keeps events in memory.
type memRecorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *memRecorder) RecordEvent(e domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *memRecorder) count(kind domain.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

var (
	bigUnits    = []domain.UnitID{0, 1, 2, 3}
	littleUnits = []domain.UnitID{4, 5, 6, 7}
	allUnits    = append(append([]domain.UnitID{}, bigUnits...), littleUnits...)
)

func mustTunables(s Settings) *Tunables {
	t, err := NewTunables(s)
	if err != nil {
		panic(err)
	}
	return t
}
