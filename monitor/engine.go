package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Notifier receives events for delivery. Implementations must tolerate being
// called from multiple goroutines; the engine never blocks a tick on them.
type Notifier interface {
	NotifyChange(ctx context.Context, ev ChangeEvent)
	NotifyHealth(ctx context.Context, ev HealthEvent)
}

// HeartbeatRecorder persists health events for later inspection. Optional.
type HeartbeatRecorder interface {
	RecordHeartbeat(ctx context.Context, ev HealthEvent) error
}

// Config tunes the engine's two schedules.
type Config struct {
	Target Target

	// PollInterval is the change-detection cadence. Default: 1 minute.
	PollInterval time.Duration
	// HeartbeatInterval is the liveness cadence, independent of polling.
	// Default: 2 hours.
	HeartbeatInterval time.Duration
	// MaxChanges stops the engine after this many confirmed changes.
	// Zero selects the default of 10; negative means run until cancelled.
	MaxChanges int
	// FailAlertThreshold dispatches a degraded health notice after this many
	// consecutive failed detection ticks. Zero disables the alert.
	FailAlertThreshold int
}

func (c *Config) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Minute
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 2 * time.Hour
	}
	if c.MaxChanges == 0 {
		c.MaxChanges = 10
	}
}

// Validate reports configuration errors that would make Run pointless.
func (c *Config) Validate() error {
	if c.Target.URL == "" {
		return errors.New("monitor: target URL is required")
	}
	if c.Target.Selector == "" {
		return errors.New("monitor: target selector is required")
	}
	return nil
}

// Stats are point-in-time engine counters.
type Stats struct {
	Polls        int64 `json:"polls"`
	Changes      int64 `json:"changes"`
	PollFailures int64 `json:"poll_failures"`
	Heartbeats   int64 `json:"heartbeats"`
	LateTicks    int64 `json:"late_ticks"`
}

// Engine drives the detector and the heartbeat on two independent timers
// and forwards their events to the Notifier. Detection failures are logged
// and suppressed; a bad tick never stops either timer.
type Engine struct {
	cfg      Config
	detector *Detector
	notifier Notifier
	recorder HeartbeatRecorder
	logger   *slog.Logger

	// wg tracks in-flight dispatches so Run can drain them on shutdown.
	wg sync.WaitGroup

	polls        atomic.Int64
	changes      atomic.Int64
	pollFailures atomic.Int64
	heartbeats   atomic.Int64
	lateTicks    atomic.Int64

	// failStreak counts consecutive failed detection ticks; only the poll
	// loop touches it.
	failStreak int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithHeartbeatRecorder persists health events through the given recorder.
func WithHeartbeatRecorder(r HeartbeatRecorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// NewEngine creates an Engine. Call Run to start both timers.
func NewEngine(cfg Config, det *Detector, n Notifier, opts ...Option) *Engine {
	cfg.defaults()
	e := &Engine{
		cfg:      cfg,
		detector: det,
		notifier: n,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Stats returns the current counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Polls:        e.polls.Load(),
		Changes:      e.changes.Load(),
		PollFailures: e.pollFailures.Load(),
		Heartbeats:   e.heartbeats.Load(),
		LateTicks:    e.lateTicks.Load(),
	}
}

// Run blocks until ctx is cancelled or MaxChanges confirmed changes have
// been reported. Both loops run concurrently; they share nothing but the
// snapshot store (inside the detector) and the notifier.
//
// On shutdown, in-flight deliveries are drained before the stop notice goes
// out. Snapshot writes only happen inside completed detection cycles, so an
// abort mid-shutdown never leaves a half-applied snapshot.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.cfg.Validate(); err != nil {
		return err
	}

	e.logger.Info("monitor: started",
		"url", e.cfg.Target.URL,
		"selector", e.cfg.Target.Selector,
		"poll_interval", e.cfg.PollInterval,
		"heartbeat_interval", e.cfg.HeartbeatInterval)

	// Deliveries survive engine cancellation: retries run to exhaustion.
	dispatchCtx := context.WithoutCancel(ctx)

	e.sendHealth(dispatchCtx, HealthEvent{
		Target:    e.cfg.Target,
		Status:    StatusStarted,
		Note:      fmt.Sprintf("Started monitoring %s", e.cfg.Target.URL),
		EmittedAt: time.Now().UTC(),
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, runCtx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		e.pollLoop(runCtx, dispatchCtx, cancel)
		return nil
	})
	g.Go(func() error {
		e.heartbeatLoop(runCtx, dispatchCtx)
		return nil
	})
	_ = g.Wait()

	e.wg.Wait()

	// Synchronous: the stop notice is the last thing out the door.
	e.notifier.NotifyHealth(dispatchCtx, HealthEvent{
		Target:    e.cfg.Target,
		Status:    StatusStopped,
		Note:      fmt.Sprintf("Stopped monitoring %s", e.cfg.Target.URL),
		EmittedAt: time.Now().UTC(),
	})

	e.logger.Info("monitor: stopped", "changes", e.changes.Load())
	return nil
}

// pollLoop runs the change-detection schedule. The first detection happens
// immediately so the baseline exists before the first full interval elapses.
func (e *Engine) pollLoop(ctx context.Context, dispatchCtx context.Context, stop context.CancelFunc) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	e.pollTick(ctx, dispatchCtx, stop)

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A tick may arrive late under load, but it is never skipped
			// silently.
			if lag := time.Since(last) - e.cfg.PollInterval; lag > e.cfg.PollInterval/2 {
				e.lateTicks.Add(1)
				e.logger.Warn("monitor: late poll tick", "lag", lag)
			}
			last = time.Now()
			e.pollTick(ctx, dispatchCtx, stop)
		}
	}
}

// pollTick runs one detection cycle and routes the outcome.
func (e *Engine) pollTick(ctx context.Context, dispatchCtx context.Context, stop context.CancelFunc) {
	e.polls.Add(1)

	ev, err := e.detector.Detect(ctx, e.cfg.Target)
	if err != nil {
		e.pollFailures.Add(1)
		e.logger.Warn("monitor: detection tick failed", "error", err)
		e.noteFailure(dispatchCtx, err)
		return
	}
	e.resetFailures()

	if ev == nil {
		e.logger.Debug("monitor: no change", "url", e.cfg.Target.URL)
		return
	}

	total := e.changes.Add(1)
	e.dispatchChange(dispatchCtx, *ev)

	if e.cfg.MaxChanges > 0 && total >= int64(e.cfg.MaxChanges) {
		e.logger.Info("monitor: change limit reached, stopping", "changes", total)
		stop()
	}
}

// noteFailure tracks consecutive detection failures and raises a single
// degraded health notice when the configured threshold is crossed.
func (e *Engine) noteFailure(dispatchCtx context.Context, cause error) {
	e.failStreak++
	if e.cfg.FailAlertThreshold <= 0 || e.failStreak != e.cfg.FailAlertThreshold {
		return
	}
	e.sendHealth(dispatchCtx, HealthEvent{
		Target: e.cfg.Target,
		Status: StatusDegraded,
		Note: fmt.Sprintf("Detection has failed %d times in a row for %s: %v",
			e.failStreak, e.cfg.Target.URL, cause),
		EmittedAt: time.Now().UTC(),
	})
}

func (e *Engine) resetFailures() {
	if e.cfg.FailAlertThreshold > 0 && e.failStreak >= e.cfg.FailAlertThreshold {
		e.logger.Info("monitor: detection recovered", "failed_ticks", e.failStreak)
	}
	e.failStreak = 0
}

// heartbeatLoop emits HealthEvents on its own cadence, unconditionally.
func (e *Engine) heartbeatLoop(ctx context.Context, dispatchCtx context.Context) {
	ticker := time.NewTicker(e.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.heartbeats.Add(1)
			e.sendHealth(dispatchCtx, Beat(e.cfg.Target))
		}
	}
}

// dispatchChange hands a change event to the notifier without blocking the
// next tick. Delivery retries continue in the background.
func (e *Engine) dispatchChange(ctx context.Context, ev ChangeEvent) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.notifier.NotifyChange(ctx, ev)
	}()
}

// sendHealth records and dispatches a health event in the background.
func (e *Engine) sendHealth(ctx context.Context, ev HealthEvent) {
	if e.recorder != nil {
		if err := e.recorder.RecordHeartbeat(ctx, ev); err != nil {
			e.logger.Warn("monitor: heartbeat record failed", "error", err)
		}
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.notifier.NotifyHealth(ctx, ev)
	}()
}
