// Package notify delivers monitor events through configured channels (SNS,
// email, webhook) with bounded per-channel retry. Channels are independent:
// one channel exhausting its retries never blocks or aborts another.
package notify

import (
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/vigil/monitor"
)

// Kind classifies an event for channel routing.
type Kind string

const (
	// KindChange is a confirmed content change.
	KindChange Kind = "change"
	// KindHealth is a liveness or lifecycle notice.
	KindHealth Kind = "health"
)

// Event is the channel-neutral envelope handed to every channel. Platform
// specifics stay inside the channel implementations.
type Event struct {
	ID       string `json:"id"`
	Kind     Kind   `json:"kind"`
	URL      string `json:"url"`
	Selector string `json:"selector"`

	// Change fields.
	PreviousFingerprint string `json:"previous_fingerprint,omitempty"`
	NewFingerprint      string `json:"new_fingerprint,omitempty"`

	// Health fields.
	Status string `json:"status,omitempty"`
	Note   string `json:"note,omitempty"`

	At time.Time `json:"at"`
}

// FromChange converts a monitor change event into the delivery envelope.
func FromChange(ev monitor.ChangeEvent) Event {
	return Event{
		ID:                  uuid.Must(uuid.NewV7()).String(),
		Kind:                KindChange,
		URL:                 ev.Target.URL,
		Selector:            ev.Target.Selector,
		PreviousFingerprint: ev.PreviousFingerprint,
		NewFingerprint:      ev.NewFingerprint,
		At:                  ev.DetectedAt,
	}
}

// FromHealth converts a monitor health event into the delivery envelope.
func FromHealth(ev monitor.HealthEvent) Event {
	return Event{
		ID:       uuid.Must(uuid.NewV7()).String(),
		Kind:     KindHealth,
		URL:      ev.Target.URL,
		Selector: ev.Target.Selector,
		Status:   string(ev.Status),
		Note:     ev.Note,
		At:       ev.EmittedAt,
	}
}
