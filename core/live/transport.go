package live

import (
	"context"
	"fmt"
)

// FetchMode selects between a full snapshot fetch and an incremental one.
type FetchMode string

const (
	FetchFull        FetchMode = "full"
	FetchIncremental FetchMode = "incremental"
)

// Mode describes which transport is currently authoritative.
// Transitions are driven by push failures, never set directly by a user
// except through the push-transport toggle.
type Mode string

const (
	ModeIdle     Mode = "idle"
	ModePolling  Mode = "polling"
	ModeSSE      Mode = "sse"
	ModeFallback Mode = "fallback"
)

// Orchestrator lifecycle states.
type State string

const (
	StateIdle            State = "idle"
	StateStarting        State = "starting"
	StatePolling         State = "polling"
	StateStreaming       State = "streaming"
	StateFallbackPolling State = "fallback_polling"
	StateStopped         State = "stopped"
)

// FetchError reports a network/HTTP failure on a full or incremental fetch.
// It carries whatever status/detail the backend returned and is surfaced to
// the user; the previously displayed snapshot stays in place.
type FetchError struct {
	Status int
	Detail string
	Err    error
}

func (e *FetchError) Error() string {
	switch {
	case e.Detail != "" && e.Status != 0:
		return fmt.Sprintf("snapshot fetch failed (%d): %s", e.Status, e.Detail)
	case e.Status != 0:
		return fmt.Sprintf("snapshot fetch failed (%d)", e.Status)
	case e.Err != nil:
		return fmt.Sprintf("snapshot fetch failed: %v", e.Err)
	}
	return "snapshot fetch failed"
}

func (e *FetchError) Unwrap() error { return e.Err }

// StreamError is an undifferentiated push-transport failure; the underlying
// delivery mechanism exposes no structured error payload. It is terminal for
// the stream and is never surfaced as a blocking message.
type StreamError struct {
	Err error
}

func (e *StreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("snapshot stream failed: %v", e.Err)
	}
	return "snapshot stream failed"
}

func (e *StreamError) Unwrap() error { return e.Err }

// ParseError is a malformed event payload on the push transport.
// Treated exactly like a StreamError: silent fallback, no banner.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed snapshot event: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SnapshotFetcher issues a point-in-time snapshot fetch.
// With FetchIncremental and a non-empty cursor, the request carries
// `since=cursor` and `includeRanking=false`; otherwise `includeRanking=true`
// and no `since`. Network I/O only; no caching.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, processID int, cfg MonitoringConfig, mode FetchMode, cursor string) (*Snapshot, error)
}

// Stream is an open push-transport subscription delivering full snapshots.
// A failure is terminal: the stream must be torn down and is never retried
// by the transport itself.
type Stream interface {
	// Snapshots delivers "snapshot" events; the channel closes on teardown.
	Snapshots() <-chan *Snapshot
	// Failures delivers at most one terminal error.
	Failures() <-chan error
	Close()
}

// StreamOpener opens the push transport for one process/config combination.
type StreamOpener interface {
	OpenStream(ctx context.Context, processID int, cfg MonitoringConfig) (Stream, error)
}
