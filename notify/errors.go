package notify

import "fmt"

// ErrSendFailed wraps a channel's send failure with enough context for the
// delivery log.
type ErrSendFailed struct {
	Channel string
	Cause   error
}

func (e *ErrSendFailed) Error() string {
	return fmt.Sprintf("notify: send failed on %s: %v", e.Channel, e.Cause)
}

func (e *ErrSendFailed) Unwrap() error { return e.Cause }

// ErrRenderFailed is returned when a channel cannot render an event; the
// event is not retried on that channel (rendering is deterministic).
type ErrRenderFailed struct {
	Channel string
	Cause   error
}

func (e *ErrRenderFailed) Error() string {
	return fmt.Sprintf("notify: render failed on %s: %v", e.Channel, e.Cause)
}

func (e *ErrRenderFailed) Unwrap() error { return e.Cause }
