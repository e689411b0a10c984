package resource

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/clusterplug/clusterplug/internal/domain"
)

// DefaultProcStat is the kernel's CPU accounting file.
const DefaultProcStat = "/proc/stat"

// ProcStat implements domain.IdleAccounting from /proc/stat. Values are in
// USER_HZ ticks; iowait counts as idle.
type ProcStat struct {
	path string
}

// NewProcStat creates a reader for path (DefaultProcStat if empty).
func NewProcStat(path string) *ProcStat {
	if path == "" {
		path = DefaultProcStat
	}
	return &ProcStat{path: path}
}

// IdleAndWall returns cumulative idle and total time for one CPU. Offline
// CPUs have no line and return ErrUnknownUnit.
func (p *ProcStat) IdleAndWall(id domain.UnitID) (idle, wall uint64, err error) {
	f, err := os.Open(p.path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	prefix := "cpu" + strconv.Itoa(int(id)) + " "
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, prefix) {
			return parseCPULine(line)
		}
	}
	if err := sc.Err(); err != nil {
		return 0, 0, err
	}
	return 0, 0, fmt.Errorf("%w: cpu%d not in %s", domain.ErrUnknownUnit, id, p.path)
}

// parseCPULine sums user..steal as wall time. guest and guest_nice are
// already included in user and nice.
func parseCPULine(line string) (idle, wall uint64, err error) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return 0, 0, fmt.Errorf("short cpu line %q", line)
	}
	vals := fields[1:]
	if len(vals) > 8 {
		vals = vals[:8]
	}
	for i, s := range vals {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("cpu line %q: %w", line, err)
		}
		wall += v
		if i == 3 || i == 4 { // idle, iowait
			idle += v
		}
	}
	return idle, wall, nil
}
