package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hazyhaar/vigil/monitor"
)

// Dispatcher fans an event out to every accepting channel, retrying each
// channel independently with exponential backoff. It implements
// monitor.Notifier.
type Dispatcher struct {
	channels    []Channel
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	limiter     *rate.Limiter
	recorder    AttemptRecorder
	logger      *slog.Logger

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// WithMaxAttempts bounds send attempts per channel per event. Default: 3.
func WithMaxAttempts(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// WithBackoff sets the base (doubled per retry) and cap for the delay
// between attempts. Defaults: 2s base, 30s cap.
func WithBackoff(base, max time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if base > 0 {
			d.baseBackoff = base
		}
		if max > 0 {
			d.maxBackoff = max
		}
	}
}

// WithRateLimit bounds aggregate outbound sends per second across all
// channels. Zero or negative disables limiting (default).
func WithRateLimit(perSecond float64) DispatcherOption {
	return func(d *Dispatcher) {
		if perSecond > 0 {
			d.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithRecorder persists every delivery attempt through r.
func WithRecorder(r AttemptRecorder) DispatcherOption {
	return func(d *Dispatcher) { d.recorder = r }
}

// NewDispatcher creates a Dispatcher over the given channels.
func NewDispatcher(channels []Channel, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		channels:    channels,
		maxAttempts: 3,
		baseBackoff: 2 * time.Second,
		maxBackoff:  30 * time.Second,
		logger:      slog.Default(),
		sleep:       sleepCtx,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dispatch delivers ev through every channel that accepts its kind, in
// parallel, and returns all attempts once every channel has reached a
// terminal outcome. Callers that must not block run Dispatch in a goroutine.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) []DeliveryAttempt {
	var (
		mu  sync.Mutex
		all []DeliveryAttempt
		wg  sync.WaitGroup
	)
	for _, ch := range d.channels {
		if !ch.Accepts(ev.Kind) {
			continue
		}
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			attempts := d.deliver(ctx, ch, ev)
			mu.Lock()
			all = append(all, attempts...)
			mu.Unlock()
		}(ch)
	}
	wg.Wait()
	return all
}

// NotifyChange implements monitor.Notifier.
func (d *Dispatcher) NotifyChange(ctx context.Context, ev monitor.ChangeEvent) {
	d.Dispatch(ctx, FromChange(ev))
}

// NotifyHealth implements monitor.Notifier.
func (d *Dispatcher) NotifyHealth(ctx context.Context, ev monitor.HealthEvent) {
	d.Dispatch(ctx, FromHealth(ev))
}

// deliver runs the bounded retry loop for one channel. The attempt sequence
// always terminates: sent on success, exhausted after the final failure or
// when ctx ends between attempts.
func (d *Dispatcher) deliver(ctx context.Context, ch Channel, ev Event) []DeliveryAttempt {
	msg, err := ch.Render(ev)
	if err != nil {
		rerr := &ErrRenderFailed{Channel: ch.Name(), Cause: err}
		d.logger.Error("notify: render failed", "channel", ch.Name(), "event", ev.ID, "error", rerr)
		a := d.record(ctx, ch, ev, 1, OutcomeExhausted, rerr)
		return []DeliveryAttempt{a}
	}

	var attempts []DeliveryAttempt
	for n := 1; n <= d.maxAttempts; n++ {
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				attempts = append(attempts, d.record(ctx, ch, ev, n, OutcomeExhausted, err))
				return attempts
			}
		}

		err := ch.Send(ctx, msg)
		if err == nil {
			attempts = append(attempts, d.record(ctx, ch, ev, n, OutcomeSent, nil))
			return attempts
		}

		serr := &ErrSendFailed{Channel: ch.Name(), Cause: err}
		if n == d.maxAttempts {
			attempts = append(attempts, d.record(ctx, ch, ev, n, OutcomeExhausted, serr))
			d.logger.Error("notify: delivery exhausted",
				"channel", ch.Name(), "event", ev.ID, "attempts", n, "error", serr)
			return attempts
		}
		attempts = append(attempts, d.record(ctx, ch, ev, n, OutcomeFailed, serr))

		wait := d.backoff(n)
		d.logger.Warn("notify: send failed, retrying",
			"channel", ch.Name(), "event", ev.ID, "attempt", n, "backoff", wait, "error", serr)
		if err := d.sleep(ctx, wait); err != nil {
			attempts = append(attempts, d.record(ctx, ch, ev, n+1, OutcomeExhausted, err))
			return attempts
		}
	}
	return attempts
}

// backoff returns the delay after the n-th failed attempt: base doubled per
// retry, capped.
func (d *Dispatcher) backoff(n int) time.Duration {
	wait := d.baseBackoff << uint(n-1)
	if wait > d.maxBackoff || wait <= 0 {
		wait = d.maxBackoff
	}
	return wait
}

// record builds, logs, and persists one attempt.
func (d *Dispatcher) record(ctx context.Context, ch Channel, ev Event, attempt int, outcome Outcome, cause error) DeliveryAttempt {
	a := DeliveryAttempt{
		ID:      uuid.Must(uuid.NewV7()).String(),
		EventID: ev.ID,
		Channel: ch.Name(),
		Kind:    ev.Kind,
		Attempt: attempt,
		Outcome: outcome,
		At:      time.Now().UTC(),
	}
	if cause != nil {
		a.Error = cause.Error()
	}
	if outcome == OutcomeSent {
		d.logger.Info("notify: delivered",
			"channel", ch.Name(), "event", ev.ID, "kind", ev.Kind, "attempt", attempt)
	}
	if d.recorder != nil {
		d.recorder.RecordAttempt(ctx, a)
	}
	return a
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
