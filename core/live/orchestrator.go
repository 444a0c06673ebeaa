package live

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/victorpuello/kampus-sub004/core"
)

const defaultPollInterval = 30 * time.Second

// Options configures an Orchestrator.
type Options struct {
	Fetcher SnapshotFetcher
	Streams StreamOpener // nil disables the push transport entirely
	Logger  core.Logger

	// PollInterval is the fixed cadence of incremental fetches.
	PollInterval time.Duration

	// Active gates scheduled poll ticks: when it reports false the tick
	// issues no fetch at all and the cadence simply resumes on the next
	// active tick, with no catch-up burst. Defaults to always active.
	Active func() bool

	// PushEnabled is the initial state of the push-transport preference.
	PushEnabled bool
}

// Orchestrator owns the single live-feed lifecycle for one selected
// process/config combination. It holds the current Snapshot and cursor
// exclusively; there is one writer at a time and late results from a stale
// configuration are discarded before commit.
type Orchestrator struct {
	fetcher      SnapshotFetcher
	streams      StreamOpener
	logger       core.Logger
	pollInterval time.Duration
	active       func() bool

	mu          sync.Mutex
	gen         uint64
	state       State
	mode        Mode
	processID   int
	cfg         MonitoringConfig
	pushEnabled bool
	pushFailed  bool // sticky until the push toggle is cycled off and on
	current     *Snapshot
	cursor      string
	loading     bool
	lastErr     error
	cancel      context.CancelFunc
	onApply     []func(*Snapshot)
}

func NewOrchestrator(opts Options) *Orchestrator {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	active := opts.Active
	if active == nil {
		active = func() bool { return true }
	}
	return &Orchestrator{
		fetcher:      opts.Fetcher,
		streams:      opts.Streams,
		logger:       opts.Logger,
		pollInterval: interval,
		active:       active,
		state:        StateIdle,
		mode:         ModeIdle,
		pushEnabled:  opts.PushEnabled,
	}
}

// OnApply registers a hook invoked with every committed snapshot (reconciled,
// current-generation). Hooks run outside the state lock, in order, on the
// committing goroutine; they must not block for long.
func (o *Orchestrator) OnApply(fn func(*Snapshot)) {
	o.mu.Lock()
	o.onApply = append(o.onApply, fn)
	o.mu.Unlock()
}

// Reconfigure tears down any running feed, resets the held snapshot and
// cursor, and restarts from scratch for the given process/config. It is the
// single entry point for process selection and threshold changes.
func (o *Orchestrator) Reconfigure(processID int, cfg MonitoringConfig) {
	o.mu.Lock()
	o.teardownLocked()
	o.gen++
	gen := o.gen
	o.processID = processID
	o.cfg = cfg
	o.current = nil
	o.cursor = ""
	o.lastErr = nil
	o.loading = true
	o.state = StateStarting

	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	usePush := o.pushEnabled && !o.pushFailed && o.streams != nil
	o.mu.Unlock()

	if usePush {
		go o.runStream(ctx, gen, processID, cfg)
	} else {
		go o.runPolling(ctx, gen, processID, cfg)
	}
}

// SetPushEnabled flips the push-transport preference. Turning it on clears
// the sticky failure flag and re-attempts streaming; either direction
// restarts the current feed when one is running.
func (o *Orchestrator) SetPushEnabled(enabled bool) {
	o.mu.Lock()
	if o.pushEnabled == enabled {
		o.mu.Unlock()
		return
	}
	o.pushEnabled = enabled
	if enabled {
		o.pushFailed = false
	}
	restart := o.state != StateIdle && o.state != StateStopped
	processID, cfg := o.processID, o.cfg
	o.mu.Unlock()

	if restart {
		o.Reconfigure(processID, cfg)
	}
}

// Stop cancels the running feed and releases its timers/streams. The held
// snapshot stays readable; a later Reconfigure starts fresh.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.teardownLocked()
	o.gen++ // orphan any in-flight result
	o.state = StateStopped
	o.mode = ModeIdle
	o.mu.Unlock()
}

// teardownLocked synchronously cancels the feed context, which closes any
// open stream and stops the poll ticker. In-flight requests are not aborted
// at the transport level; their results fail the generation check instead.
func (o *Orchestrator) teardownLocked() {
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
}

// Current returns the reconciled snapshot, or nil before the first commit.
func (o *Orchestrator) Current() *Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

func (o *Orchestrator) Mode() Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) Loading() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.loading
}

// Err returns the latest user-visible failure, cleared by the next
// successful fetch. Stream failures never show up here.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// Config returns the process/config combination of the current feed.
func (o *Orchestrator) Config() (int, MonitoringConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.processID, o.cfg
}

func (o *Orchestrator) runStream(ctx context.Context, gen uint64, processID int, cfg MonitoringConfig) {
	stream, err := o.streams.OpenStream(ctx, processID, cfg)
	if err != nil {
		o.streamFailed(ctx, gen, processID, cfg, err)
		return
	}
	defer stream.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-stream.Snapshots():
			if !ok {
				o.streamFailed(ctx, gen, processID, cfg, errors.New("snapshot stream closed"))
				return
			}
			snap.Incremental = false // push events always carry full snapshots
			o.apply(gen, snap, true)
		case err := <-stream.Failures():
			o.streamFailed(ctx, gen, processID, cfg, err)
			return
		}
	}
}

// streamFailed flips the feed into fallback polling. The failure is sticky
// for this push-toggle session and is deliberately not surfaced as a
// user-visible error: the push transport is a best-effort enhancement.
func (o *Orchestrator) streamFailed(ctx context.Context, gen uint64, processID int, cfg MonitoringConfig, err error) {
	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return
	}
	o.pushFailed = true
	o.mode = ModeFallback
	o.state = StateFallbackPolling
	o.mu.Unlock()

	if o.logger != nil {
		o.logger.Warn("live feed: push transport failed, falling back to polling", err)
	}
	go o.runPolling(ctx, gen, processID, cfg)
}

func (o *Orchestrator) runPolling(ctx context.Context, gen uint64, processID int, cfg MonitoringConfig) {
	// full fetch right away, then fixed-interval incrementals
	o.fetchOnce(ctx, gen, processID, cfg, FetchFull)

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !o.active() {
				continue // skip the cycle entirely; no backlog accrues
			}
			o.fetchOnce(ctx, gen, processID, cfg, FetchIncremental)
		}
	}
}

func (o *Orchestrator) fetchOnce(ctx context.Context, gen uint64, processID int, cfg MonitoringConfig, mode FetchMode) {
	var cursor string
	if mode == FetchIncremental {
		o.mu.Lock()
		cursor = o.cursor
		o.mu.Unlock()
		if cursor == "" {
			// nothing to continue from yet; refetch in full
			mode = FetchFull
		}
	}

	snap, err := o.fetcher.FetchSnapshot(ctx, processID, cfg, mode, cursor)
	if err != nil {
		if ctx.Err() != nil {
			return // torn down mid-flight; result is moot
		}
		o.mu.Lock()
		if gen == o.gen {
			o.lastErr = err
			o.loading = false
			// previous snapshot stays in place: stale beats blank
		}
		o.mu.Unlock()
		if o.logger != nil {
			o.logger.Error("live feed: snapshot fetch failed", err)
		}
		return
	}

	snap.Incremental = mode == FetchIncremental
	o.apply(gen, snap, false)
}

// apply commits a snapshot into the current-state slot. The generation guard
// makes commits last-write-wins per configuration: a late response for a
// stale selection is discarded here rather than clobbering newer state.
func (o *Orchestrator) apply(gen uint64, snap *Snapshot, fromStream bool) {
	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return
	}
	merged := Merge(o.current, snap, o.cfg.SeriesLimit)
	o.current = merged
	o.cursor = NextCursor(snap)
	o.loading = false
	o.lastErr = nil

	if fromStream {
		o.mode = ModeSSE
		o.state = StateStreaming
	} else if o.pushEnabled && o.pushFailed {
		o.mode = ModeFallback
		o.state = StateFallbackPolling
	} else {
		o.mode = ModePolling
		o.state = StatePolling
	}

	hooks := o.onApply
	o.mu.Unlock()

	for _, fn := range hooks {
		fn(merged)
	}
}
