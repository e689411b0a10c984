package resource

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"k8s.io/klog/v2"

	"github.com/clusterplug/clusterplug/internal/infra/metrics"
)

// DefaultThermalZone is the SoC temperature sensor on most ARM boards.
const DefaultThermalZone = "/sys/class/thermal/thermal_zone0/temp"

// ThermalMonitor reads the CPU temperature for status reporting. It never
// feeds the decision loop; thermal policy belongs to the kernel.
type ThermalMonitor struct {
	path  string
	milli atomic.Int64
}

// NewThermalMonitor creates a monitor for a sysfs temperature file.
func NewThermalMonitor(path string) *ThermalMonitor {
	if path == "" {
		path = DefaultThermalZone
	}
	return &ThermalMonitor{path: path}
}

// CPUTemp returns the last reading in Celsius, 0 when unavailable.
func (t *ThermalMonitor) CPUTemp() float64 {
	return float64(t.milli.Load()) / 1000
}

// Refresh reads the sensor once.
func (t *ThermalMonitor) Refresh() {
	data, err := os.ReadFile(t.path)
	if err != nil {
		klog.V(4).InfoS("Thermal zone unreadable", "path", t.path, "err", err)
		return
	}
	milliC, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return
	}
	t.milli.Store(milliC)
	metrics.CPUTemperature.Set(t.CPUTemp())
}

// Run polls the sensor until ctx is done. Call in a goroutine.
func (t *ThermalMonitor) Run(ctx context.Context, interval time.Duration) {
	t.Refresh()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Refresh()
		}
	}
}
