package monitor

import "time"

// Beat constructs a liveness HealthEvent for target. Pure construction: it
// never fails and never consults the change path, so heartbeats keep flowing
// while fetches or storage are broken.
func Beat(target Target) HealthEvent {
	return HealthEvent{
		Target:    target,
		Status:    StatusAlive,
		EmittedAt: time.Now().UTC(),
	}
}
