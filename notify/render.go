package notify

import (
	"fmt"

	"github.com/hazyhaar/vigil/monitor"
)

// renderText produces the default plain-text message for an event. Channels
// that carry richer formats (webhook JSON) render their own.
func renderText(ev Event) Message {
	switch ev.Kind {
	case KindChange:
		return Message{
			Subject: fmt.Sprintf("Page changed: %s", ev.URL),
			Body: fmt.Sprintf(
				"The page has been changed. Go check: %s\n\nFragment %q, fingerprint %s -> %s (at %s)",
				ev.URL, ev.Selector,
				short(ev.PreviousFingerprint), short(ev.NewFingerprint),
				ev.At.Format("2006-01-02 15:04:05 MST")),
		}
	default:
		return Message{
			Subject: fmt.Sprintf("Monitor %s: %s", ev.Status, ev.URL),
			Body:    healthBody(ev),
		}
	}
}

func healthBody(ev Event) string {
	if ev.Note != "" {
		return ev.Note
	}
	if ev.Status == string(monitor.StatusAlive) {
		return fmt.Sprintf("Status: no change, still monitoring %s (at %s)",
			ev.URL, ev.At.Format("2006-01-02 15:04:05 MST"))
	}
	return fmt.Sprintf("Status: %s (at %s)", ev.Status, ev.At.Format("2006-01-02 15:04:05 MST"))
}

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
