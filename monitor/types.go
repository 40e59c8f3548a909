// Package monitor implements the change-detection and notification engine:
// a target describing the watched page fragment, a detector that turns
// fetch → extract → fingerprint → compare into at most one ChangeEvent per
// actual transition, a heartbeat generator, and an engine that drives both
// on independent schedules.
package monitor

import "time"

// Target is the immutable description of what to watch. Created once at
// process start from configuration and never mutated.
type Target struct {
	// URL is the resource to poll.
	URL string
	// Selector identifies the watched fragment (CSS-style, e.g. ".portlet").
	Selector string
}

// Key returns the state-store key for this target. URL and selector are
// both part of the key so that changing the selector resets the baseline.
func (t Target) Key() string {
	return t.URL + "\x00" + t.Selector
}

// Snapshot is the last known state of a target: the fingerprint of the
// extracted fragment and when it was captured. CapturedAt is the time of
// the last real change, not the last poll — unchanged polls leave it alone.
type Snapshot struct {
	Fingerprint string
	CapturedAt  time.Time
}

// ChangeEvent records one confirmed fragment transition. The detector emits
// it exactly once per transition, after the new snapshot has been durably
// stored.
type ChangeEvent struct {
	Target              Target
	PreviousFingerprint string
	NewFingerprint      string
	DetectedAt          time.Time
}

// HealthStatus classifies a HealthEvent.
type HealthStatus string

const (
	// StatusAlive is the periodic liveness beat.
	StatusAlive HealthStatus = "alive"
	// StatusStarted is emitted once when the engine starts.
	StatusStarted HealthStatus = "started"
	// StatusStopped is emitted once when the engine stops.
	StatusStopped HealthStatus = "stopped"
	// StatusDegraded is emitted when the change path has failed for
	// FailAlertThreshold consecutive ticks.
	StatusDegraded HealthStatus = "degraded"
)

// HealthEvent is an unconditional liveness signal. It carries no
// change-detection state; its emission is independent of the change path.
type HealthEvent struct {
	Target    Target
	Status    HealthStatus
	Note      string
	EmittedAt time.Time
}
