package monitor

import (
	"context"
	"log/slog"
	"time"
)

// Fetcher retrieves the raw content of a URL. Implementations must respect
// ctx for timeouts and cancellation.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Extractor locates the watched fragment inside fetched content and returns
// its text. An error means the selector matched nothing.
type Extractor interface {
	Extract(content []byte, selector string) (string, error)
}

// SnapshotStore holds the single current Snapshot per target key.
// GetSnapshot returns nil, nil when no snapshot exists yet. SetSnapshot must
// have atomic-replace semantics: a concurrent reader never observes a
// half-written snapshot.
type SnapshotStore interface {
	GetSnapshot(ctx context.Context, key string) (*Snapshot, error)
	SetSnapshot(ctx context.Context, key string, snap Snapshot) error
}

// Detector runs one fetch → extract → fingerprint → compare cycle per call.
type Detector struct {
	fetch   Fetcher
	extract Extractor
	store   SnapshotStore
	logger  *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewDetector creates a Detector over the given collaborators.
func NewDetector(f Fetcher, x Extractor, s SnapshotStore, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{fetch: f, extract: x, store: s, logger: logger, now: time.Now}
}

// Detect performs one detection cycle for target. It returns a ChangeEvent
// only when the fragment's fingerprint differs from the stored snapshot, and
// only after the new snapshot has been written — so a dispatch failure after
// a successful write can never re-report the same change on the next tick.
//
// The very first successful cycle establishes the baseline snapshot and
// returns no event: a process restart must not alert on content that never
// changed.
//
// Errors are typed: *FetchError and *ExtractError are transient and leave
// the store untouched; *StorageError means the event (if any) was suppressed
// because durability could not be guaranteed.
func (d *Detector) Detect(ctx context.Context, target Target) (*ChangeEvent, error) {
	raw, err := d.fetch.Fetch(ctx, target.URL)
	if err != nil {
		return nil, &FetchError{URL: target.URL, Cause: err}
	}

	text, err := d.extract.Extract(raw, target.Selector)
	if err != nil {
		return nil, &ExtractError{Selector: target.Selector, Cause: err}
	}

	fp := Fingerprint(text)
	key := target.Key()

	prev, err := d.store.GetSnapshot(ctx, key)
	if err != nil {
		return nil, &StorageError{Op: "get", Cause: err}
	}

	now := d.now().UTC()

	if prev == nil {
		// First observation: record the baseline, report nothing.
		if err := d.store.SetSnapshot(ctx, key, Snapshot{Fingerprint: fp, CapturedAt: now}); err != nil {
			return nil, &StorageError{Op: "set", Cause: err}
		}
		d.logger.Info("monitor: baseline established",
			"url", target.URL, "fingerprint", shortFingerprint(fp))
		return nil, nil
	}

	if prev.Fingerprint == fp {
		// Unchanged. CapturedAt is left as-is: it records the time of the
		// last real change, not the last poll.
		return nil, nil
	}

	// The write must happen before the event is handed out.
	if err := d.store.SetSnapshot(ctx, key, Snapshot{Fingerprint: fp, CapturedAt: now}); err != nil {
		return nil, &StorageError{Op: "set", Cause: err}
	}

	d.logger.Info("monitor: change detected",
		"url", target.URL,
		"previous", shortFingerprint(prev.Fingerprint),
		"new", shortFingerprint(fp))

	return &ChangeEvent{
		Target:              target,
		PreviousFingerprint: prev.Fingerprint,
		NewFingerprint:      fp,
		DetectedAt:          now,
	}, nil
}
