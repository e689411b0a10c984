package hotplug

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/clusterplug/clusterplug/internal/domain"
)

// Tunable names exposed to operators.
const (
	TunableSamplingInterval  = "sampling_interval_ms"
	TunableLoadThresholdUp   = "load_threshold_up"
	TunableLoadThresholdDown = "load_threshold_down"
	TunableHysteresisTicks   = "hysteresis_ticks"
	TunableVoteThresholdUp   = "vote_threshold_up"
	TunableVoteThresholdDown = "vote_threshold_down"
	TunableClusterPreference = "cluster_preference"
	TunableEnabled           = "enabled"
)

// Settings is a plain copy of every tunable. The validate tags are the
// single source of truth for accepted ranges.
type Settings struct {
	SamplingIntervalMs int    `toml:"sampling_interval_ms" json:"sampling_interval_ms" validate:"gte=1,lte=60000"`
	LoadThresholdUp    int    `toml:"load_threshold_up" json:"load_threshold_up" validate:"gte=0,lte=100"`
	LoadThresholdDown  int    `toml:"load_threshold_down" json:"load_threshold_down" validate:"gte=0,lte=100"`
	HysteresisTicks    int    `toml:"hysteresis_ticks" json:"hysteresis_ticks" validate:"gte=0,lte=100000"`
	VoteThresholdUp    int    `toml:"vote_threshold_up" json:"vote_threshold_up" validate:"gte=0,lte=100000"`
	VoteThresholdDown  int    `toml:"vote_threshold_down" json:"vote_threshold_down" validate:"gte=0,lte=100000"`
	ClusterPreference  string `toml:"cluster_preference" json:"cluster_preference" validate:"oneof=big little"`
	Enabled            bool   `toml:"enabled" json:"enabled"`
}

// DefaultSettings returns the stock tuning. The controller starts disabled.
func DefaultSettings() Settings {
	return Settings{
		SamplingIntervalMs: 200,
		LoadThresholdUp:    80,
		LoadThresholdDown:  20,
		HysteresisTicks:    10,
		VoteThresholdUp:    3,
		VoteThresholdDown:  200,
		ClusterPreference:  "big",
		Enabled:            false,
	}
}

var validate = validator.New()

// Validate checks every field against its range.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidTunable, err)
	}
	return nil
}

// WatchFunc is called after a tunable changes value.
type WatchFunc func(name, value string)

// Tunables is the runtime-mutable configuration surface. Reads are
// lock-free per field; writes are serialized so watchers observe
// transitions in order.
type Tunables struct {
	samplingMs   atomic.Int64
	loadUp       atomic.Int64
	loadDown     atomic.Int64
	hysteresis   atomic.Int64
	voteUp       atomic.Int64
	voteDown     atomic.Int64
	preferLittle atomic.Bool
	enabled      atomic.Bool

	mu       sync.Mutex
	watchers []WatchFunc
}

// NewTunables creates a surface initialised from s.
func NewTunables(s Settings) (*Tunables, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	t := &Tunables{}
	t.store(s)
	return t, nil
}

func (t *Tunables) store(s Settings) {
	t.samplingMs.Store(int64(s.SamplingIntervalMs))
	t.loadUp.Store(int64(s.LoadThresholdUp))
	t.loadDown.Store(int64(s.LoadThresholdDown))
	t.hysteresis.Store(int64(s.HysteresisTicks))
	t.voteUp.Store(int64(s.VoteThresholdUp))
	t.voteDown.Store(int64(s.VoteThresholdDown))
	t.preferLittle.Store(s.ClusterPreference == "little")
	t.enabled.Store(s.Enabled)
}

// ─── Accessors ──────────────────────────────────────────────────────────────

func (t *Tunables) SamplingInterval() time.Duration {
	return time.Duration(t.samplingMs.Load()) * time.Millisecond
}
func (t *Tunables) LoadThresholdUp() int { return int(t.loadUp.Load()) }
func (t *Tunables) LoadThresholdDown() int { return int(t.loadDown.Load()) }
func (t *Tunables) HysteresisTicks() int { return int(t.hysteresis.Load()) }
func (t *Tunables) VoteThresholdUp() int { return int(t.voteUp.Load()) }
func (t *Tunables) VoteThresholdDown() int { return int(t.voteDown.Load()) }
func (t *Tunables) Enabled() bool { return t.enabled.Load() }

// ClusterPreference returns the cluster kept when load is low.
func (t *Tunables) ClusterPreference() domain.Cluster {
	if t.preferLittle.Load() {
		return domain.ClusterLittle
	}
	return domain.ClusterBig
}

// Settings returns a copy of the current values.
func (t *Tunables) Settings() Settings {
	return Settings{
		SamplingIntervalMs: int(t.samplingMs.Load()),
		LoadThresholdUp:    t.LoadThresholdUp(),
		LoadThresholdDown:  t.LoadThresholdDown(),
		HysteresisTicks:    t.HysteresisTicks(),
		VoteThresholdUp:    t.VoteThresholdUp(),
		VoteThresholdDown:  t.VoteThresholdDown(),
		ClusterPreference:  t.ClusterPreference().String(),
		Enabled:            t.Enabled(),
	}
}

// ─── Named access ───────────────────────────────────────────────────────────

type intTunable struct {
	field *atomic.Int64
	tag   string
}

func (t *Tunables) ints() map[string]intTunable {
	return map[string]intTunable{
		TunableSamplingInterval:  {&t.samplingMs, "gte=1,lte=60000"},
		TunableLoadThresholdUp:   {&t.loadUp, "gte=0,lte=100"},
		TunableLoadThresholdDown: {&t.loadDown, "gte=0,lte=100"},
		TunableHysteresisTicks:   {&t.hysteresis, "gte=0,lte=100000"},
		TunableVoteThresholdUp:   {&t.voteUp, "gte=0,lte=100000"},
		TunableVoteThresholdDown: {&t.voteDown, "gte=0,lte=100000"},
	}
}

// Names lists every tunable, sorted.
func (t *Tunables) Names() []string {
	names := []string{TunableClusterPreference, TunableEnabled}
	for n := range t.ints() {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Get returns a tunable rendered as text.
func (t *Tunables) Get(name string) (string, error) {
	switch name {
	case TunableClusterPreference:
		return t.ClusterPreference().String(), nil
	case TunableEnabled:
		return strconv.FormatBool(t.Enabled()), nil
	}
	it, ok := t.ints()[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownTunable, name)
	}
	return strconv.FormatInt(it.field.Load(), 10), nil
}

// All returns every tunable rendered as text.
func (t *Tunables) All() map[string]string {
	out := make(map[string]string)
	for _, n := range t.Names() {
		v, _ := t.Get(n)
		out[n] = v
	}
	return out
}

// Set parses, validates and stores a tunable. Watchers run only when the
// value actually changes, while the write lock is held.
func (t *Tunables) Set(name, value string) error {
	value = strings.TrimSpace(value)

	t.mu.Lock()
	defer t.mu.Unlock()

	old, err := t.Get(name)
	if err != nil {
		return err
	}

	switch name {
	case TunableClusterPreference:
		c, err := domain.ParseCluster(value)
		if err != nil {
			return err
		}
		t.preferLittle.Store(c == domain.ClusterLittle)
	case TunableEnabled:
		b, err := parseBool(value)
		if err != nil {
			return err
		}
		t.enabled.Store(b)
	default:
		it := t.ints()[name]
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", domain.ErrInvalidTunable, name, value)
		}
		if err := validate.Var(n, it.tag); err != nil {
			return fmt.Errorf("%w: %s=%d out of range (%s)", domain.ErrInvalidTunable, name, n, it.tag)
		}
		it.field.Store(n)
	}

	cur, _ := t.Get(name)
	if cur == old {
		return nil
	}
	for _, w := range t.watchers {
		w(name, cur)
	}
	return nil
}

// Watch registers fn to be called after every effective change.
func (t *Tunables) Watch(fn WatchFunc) {
	t.mu.Lock()
	t.watchers = append(t.watchers, fn)
	t.mu.Unlock()
}

// parseBool accepts the sysfs-style 0/1 as well as true/false.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "true", "on", "yes", "y":
		return true, nil
	case "0", "false", "off", "no", "n":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q is not a boolean", domain.ErrInvalidTunable, s)
}
