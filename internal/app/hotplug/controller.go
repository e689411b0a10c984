// Package hotplug implements the big.LITTLE cluster controller: a periodic
// sample → decide → apply loop gated by an enable flag and a suspend
// override.
package hotplug

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	"github.com/clusterplug/clusterplug/internal/domain"
	"github.com/clusterplug/clusterplug/internal/infra/metrics"
)

// DefaultWarmup is the delay before the first tick after enable or resume.
const DefaultWarmup = 10 * time.Millisecond

// Options wires a Controller to its providers.
type Options struct {
	Topology   domain.Topology
	Units      domain.UnitLifecycle
	Accounting domain.IdleAccounting
	Tunables   *Tunables
	// Algorithm is "voting" (default) or "hysteresis".
	Algorithm string
	Clock     clock.WithDelayedExecution
	Recorder  domain.EventRecorder
	Warmup    time.Duration
}

// Status is a point-in-time view of the controller for operators.
type Status struct {
	Enabled      bool                 `json:"enabled"`
	Suspended    bool                 `json:"suspended"`
	Topology     domain.Topology      `json:"topology"`
	Engine       EngineState          `json:"engine"`
	LastSample   domain.LoadSnapshot  `json:"last_sample"`
	LastApply    ApplyResult          `json:"last_apply"`
	LastTick     time.Time            `json:"last_tick,omitempty"`
	Ticks        uint64               `json:"ticks"`
	ActiveBig    int                  `json:"active_big"`
	ActiveLittle int                  `json:"active_little"`
	Tunables     Settings             `json:"tunables"`
	Policy       domain.ClusterPolicy `json:"policy"`
}

// Controller owns all decision and scheduling state. A single mutex
// serializes decision state, the suspend flag and rescheduling; unit
// activation runs outside it.
type Controller struct {
	topo     domain.Topology
	tunables *Tunables
	clock    clock.WithDelayedExecution
	recorder domain.EventRecorder
	warmup   time.Duration

	sampler  *Sampler
	engine   Engine
	executor *Executor
	work     *delayedWork

	started  atomic.Bool
	stopOnce sync.Once

	mu        sync.Mutex
	suspended bool
	lastSnap  domain.LoadSnapshot
	lastApply ApplyResult
	lastTick  time.Time
	ticks     uint64
}

// New validates opts and builds a stopped controller.
func New(opts Options) (*Controller, error) {
	if err := opts.Topology.Validate(); err != nil {
		return nil, err
	}
	if opts.Units == nil || opts.Accounting == nil {
		return nil, fmt.Errorf("hotplug: unit lifecycle and accounting providers are required")
	}
	if opts.Tunables == nil {
		t, err := NewTunables(DefaultSettings())
		if err != nil {
			return nil, err
		}
		opts.Tunables = t
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Warmup <= 0 {
		opts.Warmup = DefaultWarmup
	}

	engine, err := NewEngine(opts.Algorithm, opts.Topology, opts.Tunables)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		topo:     opts.Topology,
		tunables: opts.Tunables,
		clock:    opts.Clock,
		recorder: opts.Recorder,
		warmup:   opts.Warmup,
		sampler:  NewSampler(opts.Units, opts.Accounting, opts.Tunables),
		engine:   engine,
		executor: NewExecutor(opts.Topology, opts.Units),
	}
	c.work = newDelayedWork(opts.Clock, c.tick)
	return c, nil
}

// Tunables returns the controller's tunable surface.
func (c *Controller) Tunables() *Tunables { return c.tunables }

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("controller already started")

// Start subscribes to tunable changes and, if already enabled, runs the
// enable sequence. It returns immediately. The controller stops when ctx
// is done.
func (c *Controller) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	c.tunables.Watch(c.onTunable)
	c.sampler.Prime()
	metrics.Enabled.Set(metrics.BoolGauge(c.tunables.Enabled()))
	if c.tunables.Enabled() {
		c.setEnabled(true)
	}
	klog.InfoS("Controller started", "algorithm", c.engine.Name(),
		"big", c.topo.BigUnits, "little", c.topo.LittleUnits, "enabled", c.tunables.Enabled())
	context.AfterFunc(ctx, c.Stop)
	return nil
}

// Stop cancels the loop permanently and waits for an in-flight tick.
// Repeated calls are no-ops.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		c.work.Stop()
		klog.InfoS("Controller stopped")
	})
}

func (c *Controller) onTunable(name, value string) {
	c.record(domain.EventTunableChanged, domain.ClusterPolicy{}, name+"="+value)
	if name != TunableEnabled {
		return
	}
	enabled, _ := strconv.ParseBool(value)
	c.setEnabled(enabled)
}

// setEnabled runs the enable/disable transition. Both directions cancel and
// drain the loop first.
func (c *Controller) setEnabled(enabled bool) {
	c.work.Cancel()
	metrics.Enabled.Set(metrics.BoolGauge(enabled))

	if !enabled {
		klog.InfoS("Controller disabled")
		c.record(domain.EventDisabled, domain.ClusterPolicy{}, "")
		return
	}

	c.mu.Lock()
	now := c.clock.Now()
	c.engine.Reset(now)
	policy := domain.PolicyBoth
	if c.suspended {
		policy = domain.PolicySuspend
	}
	res := c.executor.Apply(policy)
	c.lastApply = res
	c.work.Schedule(c.warmup)
	c.mu.Unlock()

	c.sampler.Prime()
	c.observeApply(res)
	klog.InfoS("Controller enabled", "policy", res.Effective, "suspended", policy == domain.PolicySuspend)
	c.record(domain.EventEnabled, res.Effective, "")
}

// OnSuspend forces the little-only policy and stops the loop.
func (c *Controller) OnSuspend() {
	c.work.Cancel()

	c.mu.Lock()
	c.suspended = true
	var res ApplyResult
	enabled := c.tunables.Enabled()
	if enabled {
		res = c.executor.Apply(domain.PolicySuspend)
		c.lastApply = res
	}
	c.mu.Unlock()

	metrics.Suspended.Set(1)
	if enabled {
		c.observeApply(res)
	}
	klog.InfoS("Suspended", "applied", enabled)
	c.record(domain.EventSuspended, res.Effective, "")
}

// OnResume resets the engine to its loaded baseline, restores both clusters
// and restarts the loop after the warm-up delay.
func (c *Controller) OnResume() {
	c.work.Cancel()

	c.mu.Lock()
	c.engine.Reset(c.clock.Now())
	c.suspended = false
	var res ApplyResult
	enabled := c.tunables.Enabled()
	if enabled {
		res = c.executor.Apply(domain.PolicyBoth)
		c.lastApply = res
		c.work.Schedule(c.warmup)
	}
	c.mu.Unlock()

	metrics.Suspended.Set(0)
	if enabled {
		c.observeApply(res)
	}
	klog.InfoS("Resumed", "applied", enabled)
	c.record(domain.EventResumed, res.Effective, "")
}

// tick is one sample → decide → apply pass. It reschedules itself at the
// sampling interval read after the pass completes.
func (c *Controller) tick() {
	if !c.tunables.Enabled() {
		metrics.Ticks.WithLabelValues("disabled").Inc()
		return
	}
	start := c.clock.Now()
	snap := c.sampler.Sample()

	c.mu.Lock()
	c.lastSnap = snap
	c.lastTick = start
	c.ticks++
	if c.suspended {
		c.work.Schedule(c.tunables.SamplingInterval())
		c.mu.Unlock()
		metrics.Ticks.WithLabelValues("suspended").Inc()
		return
	}
	policy := c.engine.Evaluate(snap, start)
	state := c.engine.State()
	prev := c.lastApply.Effective
	c.mu.Unlock()

	res := c.executor.Apply(policy)

	c.mu.Lock()
	c.lastApply = res
	c.work.Schedule(c.tunables.SamplingInterval())
	c.mu.Unlock()

	metrics.Ticks.WithLabelValues("decided").Inc()
	metrics.TickDuration.Observe(c.clock.Since(start).Seconds())
	metrics.UnitsLoaded.WithLabelValues("loaded").Set(float64(snap.Loaded))
	metrics.UnitsLoaded.WithLabelValues("unloaded").Set(float64(snap.Unloaded))
	metrics.UnitsLoaded.WithLabelValues("sampled").Set(float64(snap.Sampled))
	metrics.Votes.WithLabelValues("up").Set(float64(state.VoteUp))
	metrics.Votes.WithLabelValues("down").Set(float64(state.VoteDown))
	metrics.Grace.Set(float64(state.Grace))
	c.observeApply(res)

	if state.Stale {
		metrics.StaleSamples.Inc()
		c.record(domain.EventStaleSample, res.Effective, "")
	}
	if res.Effective != prev {
		c.record(domain.EventPolicyChanged, res.Effective, fmt.Sprintf("from %s", prev))
	}
}

func (c *Controller) observeApply(res ApplyResult) {
	metrics.Policy.WithLabelValues("big").Set(metrics.BoolGauge(res.Effective.Big))
	metrics.Policy.WithLabelValues("little").Set(metrics.BoolGauge(res.Effective.Little))
	for _, id := range res.Activated {
		metrics.UnitTransitions.WithLabelValues(c.topo.ClusterOf(id).String(), "up").Inc()
	}
	for _, id := range res.Deactivated {
		metrics.UnitTransitions.WithLabelValues(c.topo.ClusterOf(id).String(), "down").Inc()
	}
	big, little := c.executor.ActiveByCluster()
	metrics.ActiveUnits.WithLabelValues("big").Set(float64(big))
	metrics.ActiveUnits.WithLabelValues("little").Set(float64(little))
	if res.Refused {
		metrics.Refusals.Inc()
		c.record(domain.EventRefused, res.Effective, fmt.Sprintf("requested %s", res.Requested))
	}
}

func (c *Controller) record(kind domain.EventKind, policy domain.ClusterPolicy, detail string) {
	if c.recorder == nil {
		return
	}
	ev := domain.Event{
		ID:     uuid.New().String(),
		Kind:   kind,
		At:     c.clock.Now(),
		Policy: policy,
		Detail: detail,
	}
	if err := c.recorder.RecordEvent(ev); err != nil {
		klog.ErrorS(err, "Recording event failed", "kind", kind)
	}
}

// Restore re-applies the policy in force (suspend or both clusters) under
// the controller lock. Health recovery uses it when no unit is active.
func (c *Controller) Restore(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	policy := domain.PolicyBoth
	if c.suspended {
		policy = domain.PolicySuspend
	}
	res := c.executor.Apply(policy)
	c.lastApply = res
	c.mu.Unlock()

	c.observeApply(res)
	klog.InfoS("Restored unit capacity", "policy", res.Effective, "activated", len(res.Activated))
	if big, little := c.executor.ActiveByCluster(); big+little == 0 {
		return fmt.Errorf("no active units after applying %s", res.Effective)
	}
	return nil
}

// Status returns a snapshot of the controller state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	st := Status{
		Enabled:    c.tunables.Enabled(),
		Suspended:  c.suspended,
		Topology:   c.topo,
		Engine:     c.engine.State(),
		LastSample: c.lastSnap,
		LastApply:  c.lastApply,
		LastTick:   c.lastTick,
		Ticks:      c.ticks,
		Policy:     c.lastApply.Effective,
	}
	c.mu.Unlock()
	st.ActiveBig, st.ActiveLittle = c.executor.ActiveByCluster()
	st.Tunables = c.tunables.Settings()
	return st
}

// Suspended reports whether the suspend override is in force.
func (c *Controller) Suspended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suspended
}

// Pending reports whether a tick is scheduled.
func (c *Controller) Pending() bool { return c.work.Pending() }
