// Package resource provides the OS-facing providers the controller drives:
// CPU hotplug through sysfs, per-CPU idle accounting from procfs and the
// SoC thermal reading.
package resource

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/clusterplug/clusterplug/internal/domain"
)

// DefaultCPURoot is where the kernel exposes CPU hotplug controls.
const DefaultCPURoot = "/sys/devices/system/cpu"

// CPUHotplug implements domain.UnitLifecycle over sysfs.
type CPUHotplug struct {
	root string
}

// NewCPUHotplug creates a provider rooted at root (DefaultCPURoot if empty).
func NewCPUHotplug(root string) *CPUHotplug {
	if root == "" {
		root = DefaultCPURoot
	}
	return &CPUHotplug{root: root}
}

// Root returns the sysfs directory in use.
func (h *CPUHotplug) Root() string { return h.root }

// PresentUnits parses the kernel's "present" CPU list.
func (h *CPUHotplug) PresentUnits() ([]domain.UnitID, error) {
	data, err := os.ReadFile(filepath.Join(h.root, "present"))
	if err != nil {
		return nil, fmt.Errorf("read present cpus: %w", err)
	}
	ids, err := ParseCPUList(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, domain.ErrNoUnits
	}
	return ids, nil
}

// IsActive reads cpuN/online. CPUs without an online file (typically cpu0)
// cannot be hotplugged and are always online.
func (h *CPUHotplug) IsActive(id domain.UnitID) bool {
	data, err := os.ReadFile(h.onlinePath(id))
	if err != nil {
		return errors.Is(err, os.ErrNotExist) && h.exists(id)
	}
	return strings.TrimSpace(string(data)) == "1"
}

// Activate writes 1 to cpuN/online.
func (h *CPUHotplug) Activate(id domain.UnitID) error {
	return h.write(id, "1")
}

// Deactivate writes 0 to cpuN/online.
func (h *CPUHotplug) Deactivate(id domain.UnitID) error {
	return h.write(id, "0")
}

func (h *CPUHotplug) write(id domain.UnitID, v string) error {
	if !h.exists(id) {
		return fmt.Errorf("%w: cpu%d", domain.ErrUnknownUnit, id)
	}
	f, err := os.OpenFile(h.onlinePath(id), os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return classifyWriteErr(id, err)
	}
	defer f.Close()
	if _, err := f.WriteString(v); err != nil {
		return classifyWriteErr(id, err)
	}
	return nil
}

// classifyWriteErr maps EPERM (thermal or power HAL holding the core) to
// ErrActivationRefused.
func classifyWriteErr(id domain.UnitID, err error) error {
	if errors.Is(err, syscall.EPERM) {
		return fmt.Errorf("cpu%d: %w", id, domain.ErrActivationRefused)
	}
	return fmt.Errorf("cpu%d online: %w", id, err)
}

func (h *CPUHotplug) onlinePath(id domain.UnitID) string {
	return filepath.Join(h.root, fmt.Sprintf("cpu%d", id), "online")
}

func (h *CPUHotplug) exists(id domain.UnitID) bool {
	_, err := os.Stat(filepath.Join(h.root, fmt.Sprintf("cpu%d", id)))
	return err == nil
}

// ParseCPUList parses the kernel cpulist format, e.g. "0-3,5,7-8".
func ParseCPUList(s string) ([]domain.UnitID, error) {
	if s == "" {
		return nil, nil
	}
	seen := make(map[domain.UnitID]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		lo, hi, isRange := strings.Cut(part, "-")
		a, err := strconv.Atoi(lo)
		if err != nil || a < 0 {
			return nil, fmt.Errorf("invalid cpu list %q", s)
		}
		b := a
		if isRange {
			if b, err = strconv.Atoi(hi); err != nil || b < a {
				return nil, fmt.Errorf("invalid cpu list %q", s)
			}
		}
		for i := a; i <= b; i++ {
			seen[domain.UnitID(i)] = true
		}
	}
	ids := make([]domain.UnitID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
