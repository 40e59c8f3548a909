package notify

import (
	"context"
	"time"
)

// Message is a rendered, channel-ready notification.
type Message struct {
	Subject string
	Body    string
}

// Channel is one delivery backend. Adding a platform means implementing
// these four methods; the dispatcher handles retry, backoff, and recording
// uniformly on top.
type Channel interface {
	// Name identifies the channel in logs and delivery records.
	Name() string

	// Accepts reports whether this channel wants events of the given kind.
	Accepts(kind Kind) bool

	// Render produces the channel-appropriate message for an event.
	Render(ev Event) (Message, error)

	// Send delivers a rendered message. Called once per attempt.
	Send(ctx context.Context, msg Message) error
}

// kindSet is the filter shared by the concrete channels.
type kindSet map[Kind]struct{}

func newKindSet(kinds []Kind) kindSet {
	// No explicit kinds means accept everything.
	if len(kinds) == 0 {
		return kindSet{KindChange: {}, KindHealth: {}}
	}
	s := make(kindSet, len(kinds))
	for _, k := range kinds {
		s[k] = struct{}{}
	}
	return s
}

func (s kindSet) accepts(k Kind) bool {
	_, ok := s[k]
	return ok
}

// Outcome is the terminal state of one delivery attempt.
type Outcome string

const (
	// OutcomeSent means the send collaborator accepted the message.
	OutcomeSent Outcome = "sent"
	// OutcomeFailed means this attempt failed and a retry follows.
	OutcomeFailed Outcome = "failed"
	// OutcomeExhausted means this was the final attempt and it failed.
	OutcomeExhausted Outcome = "exhausted"
)

// DeliveryAttempt records one send attempt for observability. A sequence of
// attempts for an event on a channel always terminates in sent or exhausted.
type DeliveryAttempt struct {
	ID      string    `json:"id"`
	EventID string    `json:"event_id"`
	Channel string    `json:"channel"`
	Kind    Kind      `json:"kind"`
	Attempt int       `json:"attempt"`
	Outcome Outcome   `json:"outcome"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// AttemptRecorder persists delivery attempts. Implementations must not
// block for long and must swallow their own errors.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, a DeliveryAttempt)
}
