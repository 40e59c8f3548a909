package monitor

import "fmt"

// FetchError wraps a failure to retrieve the remote document. Transient by
// assumption: the engine logs it and waits for the next tick.
type FetchError struct {
	URL   string
	Cause error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("monitor: fetch %s: %v", e.URL, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// ExtractError wraps a failure to locate the watched fragment in fetched
// content. Treated the same as FetchError: transient, retried next tick.
type ExtractError struct {
	Selector string
	Cause    error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("monitor: extract %q: %v", e.Selector, e.Cause)
}

func (e *ExtractError) Unwrap() error { return e.Cause }

// StorageError wraps a snapshot store failure. Fatal to the current tick:
// a change is never reported unless its snapshot was durably written first.
type StorageError struct {
	Op    string // "get" or "set"
	Cause error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("monitor: snapshot %s: %v", e.Op, e.Cause)
}

func (e *StorageError) Unwrap() error { return e.Cause }
