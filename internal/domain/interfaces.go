package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// Infrastructure implements these; the controller depends only on them.

// UnitLifecycle queries and changes which compute units are powered.
// Implemented by infra/resource.CPUHotplug.
type UnitLifecycle interface {
	// PresentUnits returns every unit that physically exists, sorted.
	PresentUnits() ([]UnitID, error)

	// IsActive reports whether a unit is currently online.
	IsActive(id UnitID) bool

	// Activate brings a unit online. Returns ErrActivationRefused when an
	// external authority (thermal, power HAL) blocks the request.
	Activate(id UnitID) error

	// Deactivate takes a unit offline.
	Deactivate(id UnitID) error
}

// IdleAccounting exposes cumulative per-unit counters.
// Implemented by infra/resource.ProcStat.
type IdleAccounting interface {
	// IdleAndWall returns cumulative idle and wall time for a unit, in a
	// provider-defined but consistent unit.
	IdleAndWall(id UnitID) (idle, wall uint64, err error)
}

// PowerHandler receives system sleep/wake transitions.
type PowerHandler interface {
	OnSuspend()
	OnResume()
}

// SuspendSource delivers suspend/resume notifications until ctx is done.
// Implemented by the strategies in infra/power.
type SuspendSource interface {
	Name() string
	Run(ctx context.Context, h PowerHandler) error
}

// EventRecorder persists controller events for operators.
// Implemented by infra/sqlite.DB.
type EventRecorder interface {
	RecordEvent(e Event) error
}
