package domain

import "time"

// EventKind classifies a journal entry.
type EventKind string

const (
	EventPolicyChanged  EventKind = "policy_changed"
	EventRefused        EventKind = "activation_refused"
	EventStaleSample    EventKind = "stale_sample"
	EventEnabled        EventKind = "enabled"
	EventDisabled       EventKind = "disabled"
	EventSuspended      EventKind = "suspended"
	EventResumed        EventKind = "resumed"
	EventTunableChanged EventKind = "tunable_changed"
)

// Event is one controller transition recorded for operators. Events are
// write-only from the controller's point of view.
type Event struct {
	ID     string        `json:"id"`
	Kind   EventKind     `json:"kind"`
	At     time.Time     `json:"at"`
	Policy ClusterPolicy `json:"policy"`
	Detail string        `json:"detail,omitempty"`
}
