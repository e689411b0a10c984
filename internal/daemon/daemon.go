package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"k8s.io/klog/v2"

	"github.com/clusterplug/clusterplug/internal/api"
	"github.com/clusterplug/clusterplug/internal/app/hotplug"
	"github.com/clusterplug/clusterplug/internal/domain"
	"github.com/clusterplug/clusterplug/internal/health"
	"github.com/clusterplug/clusterplug/internal/infra/power"
	"github.com/clusterplug/clusterplug/internal/infra/resource"
	"github.com/clusterplug/clusterplug/internal/infra/sqlite"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

// Daemon is the clusterplug runtime. It wires together all services.
type Daemon struct {
	Config     Config
	DB         *sqlite.DB // nil when storage is disabled
	Units      *resource.CPUHotplug
	Accounting *resource.ProcStat
	Thermal    *resource.ThermalMonitor
	Controller *hotplug.Controller
	Power      domain.SuspendSource
	Health     *health.Checker
	Server     *api.Server

	mu     sync.Mutex
	addr   string
	cancel context.CancelFunc
}

// New loads the config at path and creates a Daemon.
func New(path string) (*Daemon, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	units := resource.NewCPUHotplug(cfg.Topology.CPURoot)
	present, err := units.PresentUnits()
	if err != nil {
		return nil, fmt.Errorf("discover units: %w", err)
	}
	topo := domain.TopologyFor(present, cfg.Topology.Boundary)
	if err := topo.Validate(); err != nil {
		return nil, fmt.Errorf("topology from %v with boundary %d: %w", present, cfg.Topology.Boundary, err)
	}

	d := &Daemon{
		Config:     cfg,
		Units:      units,
		Accounting: resource.NewProcStat(cfg.Topology.ProcStat),
		Thermal:    resource.NewThermalMonitor(cfg.Topology.ThermalZone),
	}

	if cfg.Storage.Enabled {
		dir := cfg.Storage.Dir
		if dir == "" {
			dir = Home()
		}
		d.DB, err = sqlite.Open(dir)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
	}

	tunables, err := hotplug.NewTunables(cfg.Controller.Tunables)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.overlayStoredTunables(tunables)

	opts := hotplug.Options{
		Topology:   topo,
		Units:      units,
		Accounting: d.Accounting,
		Tunables:   tunables,
		Algorithm:  cfg.Controller.Algorithm,
		Warmup:     parseDuration(cfg.Controller.Warmup, hotplug.DefaultWarmup),
	}
	if d.DB != nil {
		opts.Recorder = d.DB
	}
	d.Controller, err = hotplug.New(opts)
	if err != nil {
		d.Close()
		return nil, err
	}

	d.Power, err = power.New(cfg.Power.Source, power.Options{PowerDir: cfg.Power.Dir})
	if err != nil {
		d.Close()
		return nil, err
	}

	// A nil *sqlite.DB must not become a non-nil interface.
	var pinger health.Pinger
	if d.DB != nil {
		pinger = d.DB
	}
	d.Health = health.NewChecker(pinger, units, d.Controller.Restore).
		WithInterval(parseDuration(cfg.Telemetry.HealthInterval, health.DefaultInterval))

	d.Server = api.NewServer(d.Controller)
	d.Server.SetVersion(Version)
	d.Server.SetHealth(d.Health)
	d.Server.SetThermal(d.Thermal)
	if d.DB != nil {
		d.Server.SetJournal(d.DB)
		d.Server.SetNodeInfo(d.DB)
	}
	if cfg.Telemetry.Prometheus {
		d.Server.EnableMetrics()
	}

	if d.DB != nil {
		_ = d.DB.SetNodeInfo("version", Version)
		_ = d.DB.SetNodeInfo("topology", fmt.Sprintf("big=%d little=%d boundary=%d",
			topo.BigUnits, topo.LittleUnits, topo.Boundary))
		_ = d.DB.SetNodeInfo("units", strconv.Itoa(topo.Total()))
		_ = d.DB.SetNodeInfo("sysfs_root", units.Root())
	}

	klog.InfoS("Daemon initialized", "big", topo.BigUnits, "little", topo.LittleUnits,
		"algorithm", cfg.Controller.Algorithm, "power", d.Power.Name(), "storage", d.DB != nil)
	return d, nil
}

// overlayStoredTunables applies operator writes persisted by the API on top
// of the config file values. Invalid stored values are skipped.
func (d *Daemon) overlayStoredTunables(t *hotplug.Tunables) {
	if d.DB == nil {
		return
	}
	stored, err := d.DB.Tunables()
	if err != nil {
		klog.ErrorS(err, "Reading stored tunables failed")
		return
	}
	for name, value := range stored {
		if err := t.Set(name, value); err != nil {
			klog.ErrorS(err, "Ignoring stored tunable", "name", name, "value", value)
			continue
		}
		klog.V(2).InfoS("Applied stored tunable", "name", name, "value", value)
	}
}

// Addr returns the API listen address once Serve is running.
func (d *Daemon) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addr
}

// Serve starts the controller, the background services and the HTTP
// server, and blocks until ctx is done or SIGINT/SIGTERM arrives.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	addr := net.JoinHostPort(d.Config.API.Host, fmt.Sprint(d.Config.API.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	d.mu.Lock()
	d.addr = ln.Addr().String()
	d.cancel = cancel
	d.mu.Unlock()

	if err := d.Controller.Start(ctx); err != nil {
		ln.Close()
		return err
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := d.Power.Run(ctx, d.Controller); err != nil {
			klog.ErrorS(err, "Suspend source stopped", "source", d.Power.Name())
		}
	}()
	go func() {
		defer wg.Done()
		d.Thermal.Run(ctx, parseDuration(d.Config.Telemetry.ThermalInterval, 5*time.Second))
	}()
	go func() {
		defer wg.Done()
		d.Health.Run(ctx)
	}()
	if d.DB != nil && d.Config.Storage.KeepEvents > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.pruneLoop(ctx, parseDuration(d.Config.Storage.PruneInterval, 10*time.Minute))
		}()
	}

	httpServer := &http.Server{
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	klog.InfoS("clusterplug serving", "addr", "http://"+d.Addr(), "metrics", d.Config.Telemetry.Prometheus)

	err = httpServer.Serve(ln)
	cancel()
	d.Controller.Stop()
	wg.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// pruneLoop trims the event journal to the configured size.
func (d *Daemon) pruneLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.pruneEvents()
		}
	}
}

func (d *Daemon) pruneEvents() {
	n, err := d.DB.PruneEvents(d.Config.Storage.KeepEvents)
	if err != nil {
		klog.ErrorS(err, "Pruning events failed")
		return
	}
	if n > 0 {
		klog.V(2).InfoS("Pruned events", "removed", n, "keep", d.Config.Storage.KeepEvents)
	}
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if d.Controller != nil {
		d.Controller.Stop()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}
