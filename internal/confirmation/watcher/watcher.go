// Package watcher runs the per-session confirmation countdown: a coarse server
// poll and a fine local tick, both scheduled by one goroutine and resolved
// through one atomic state guard.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"signbridge/internal/confirmation/models"
	"signbridge/internal/platform/metrics"
)

const (
	DefaultPollInterval = 15 * time.Second
	DefaultTickInterval = time.Second
)

// ErrNotIdle is returned by Start on a watcher that already ran.
var ErrNotIdle = errors.New("watcher already started")

type State int32

const (
	StateIdle State = iota
	StateWatching
	StateConfirmed
	StateExpired
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWatching:
		return "watching"
	case StateConfirmed:
		return "confirmed"
	case StateExpired:
		return "expired"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateExpired || s == StateStopped
}

type StatusChecker interface {
	CheckStatus(ctx context.Context, identityID string, now time.Time) (models.Status, error)
}

// Callbacks are invoked at most once per watcher, from whichever goroutine wins
// the transition. OnError reports transient poll failures and does not end the
// watch. Callbacks must not block on the watcher finishing.
type Callbacks struct {
	OnConfirmed func(source models.Source)
	OnTimeout   func(source models.Source)
	OnError     func(err error)
}

type pollResult struct {
	status models.Status
	err    error
}

type Watcher struct {
	identityID string
	checker    StatusChecker
	callbacks  Callbacks
	logger     *slog.Logger
	metrics    *metrics.Metrics
	pollEvery  time.Duration
	tickEvery  time.Duration
	window     time.Duration
	newTicker  TickerFactory
	now        func() time.Time

	startMu   sync.Mutex
	state     atomic.Int32
	remaining atomic.Int64
	cancel    context.CancelFunc
	done      chan struct{}
	polls     chan pollResult
}

type Option func(*Watcher)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Watcher) {
		w.metrics = m
	}
}

func WithIntervals(poll, tick time.Duration) Option {
	return func(w *Watcher) {
		if poll > 0 {
			w.pollEvery = poll
		}
		if tick > 0 {
			w.tickEvery = tick
		}
	}
}

func WithWindow(window time.Duration) Option {
	return func(w *Watcher) {
		if window > 0 {
			w.window = window
		}
	}
}

func WithTickerFactory(f TickerFactory) Option {
	return func(w *Watcher) {
		if f != nil {
			w.newTicker = f
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(w *Watcher) {
		if now != nil {
			w.now = now
		}
	}
}

func New(identityID string, checker StatusChecker, callbacks Callbacks, opts ...Option) *Watcher {
	w := &Watcher{
		identityID: identityID,
		checker:    checker,
		callbacks:  callbacks,
		logger:     slog.Default(),
		pollEvery:  DefaultPollInterval,
		tickEvery:  DefaultTickInterval,
		window:     models.Window,
		newTicker:  newRealTicker,
		now:        time.Now,
		done:       make(chan struct{}),
		polls:      make(chan pollResult, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.remaining.Store(int64(w.window))
	return w
}

func (w *Watcher) IdentityID() string { return w.identityID }

func (w *Watcher) State() State { return State(w.state.Load()) }

// Remaining is the local countdown as last set by the scheduler.
func (w *Watcher) Remaining() time.Duration { return time.Duration(w.remaining.Load()) }

// Done is closed once the scheduler goroutine has exited.
func (w *Watcher) Done() <-chan struct{} { return w.done }

// Start moves Idle to Watching and launches the scheduler. The watch ends on a
// terminal transition, Stop, or cancellation of ctx.
func (w *Watcher) Start(ctx context.Context) error {
	w.startMu.Lock()
	defer w.startMu.Unlock()
	if w.State() != StateIdle {
		return ErrNotIdle
	}
	// cancel is published before the state so any goroutine that observes
	// Watching can use it
	ctx, w.cancel = context.WithCancel(ctx)
	if !w.state.CompareAndSwap(int32(StateIdle), int32(StateWatching)) {
		w.cancel()
		return ErrNotIdle
	}
	w.metrics.WatcherStarted()
	w.logger.InfoContext(ctx, "confirmation watch started",
		"identity_id", w.identityID,
		"window", w.window.String(),
	)
	go w.run(ctx)
	return nil
}

// Confirm resolves the watch as confirmed on behalf of an external trigger.
// It reports whether this call performed the transition.
func (w *Watcher) Confirm(source models.Source) bool {
	return w.resolve(StateConfirmed, source)
}

// Expire resolves the watch as expired on behalf of an external trigger.
func (w *Watcher) Expire(source models.Source) bool {
	return w.resolve(StateExpired, source)
}

// Stop tears the watch down without firing callbacks. In-flight polls finish
// on their own and their results are discarded.
func (w *Watcher) Stop() {
	if w.state.CompareAndSwap(int32(StateWatching), int32(StateStopped)) {
		w.cancel()
		w.metrics.WatcherStopped()
		return
	}
	if w.state.CompareAndSwap(int32(StateIdle), int32(StateStopped)) {
		close(w.done)
	}
}

func (w *Watcher) resolve(target State, source models.Source) bool {
	if !w.state.CompareAndSwap(int32(StateWatching), int32(target)) {
		return false
	}
	w.cancel()
	w.metrics.WatcherStopped()

	switch target {
	case StateConfirmed:
		w.metrics.IncConfirmed(string(source))
		w.logger.Info("confirmation watch resolved", "identity_id", w.identityID, "state", target.String(), "source", source)
		if w.callbacks.OnConfirmed != nil {
			w.callbacks.OnConfirmed(source)
		}
	case StateExpired:
		w.metrics.IncExpired(string(source))
		w.logger.Info("confirmation watch resolved", "identity_id", w.identityID, "state", target.String(), "source", source)
		if w.callbacks.OnTimeout != nil {
			w.callbacks.OnTimeout(source)
		}
	}
	return true
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	poll := w.newTicker(w.pollEvery)
	defer poll.Stop()
	tick := w.newTicker(w.tickEvery)
	defer tick.Stop()

	initialized := false
	inFlight := true
	w.startPoll(ctx)

	for {
		select {
		case <-ctx.Done():
			// parent cancellation ends the watch like Stop
			if w.state.CompareAndSwap(int32(StateWatching), int32(StateStopped)) {
				w.metrics.WatcherStopped()
			}
			return

		case <-tick.C():
			left := w.Remaining() - w.tickEvery
			if left > 0 {
				w.remaining.Store(int64(left))
				continue
			}
			w.remaining.Store(0)
			// a result that arrived at the same moment is honoured first
			select {
			case r := <-w.polls:
				if r.err == nil && r.status.Confirmed {
					w.resolve(StateConfirmed, models.SourcePoll)
					return
				}
			default:
			}
			w.resolve(StateExpired, models.SourceTick)
			return

		case <-poll.C():
			if !inFlight {
				inFlight = true
				w.startPoll(ctx)
			}

		case r := <-w.polls:
			inFlight = false
			if w.State() != StateWatching {
				return
			}
			if r.err != nil {
				w.logger.WarnContext(ctx, "confirmation poll failed", "identity_id", w.identityID, "error", r.err)
				if w.callbacks.OnError != nil {
					w.callbacks.OnError(r.err)
				}
				continue
			}
			switch {
			case r.status.Confirmed:
				w.resolve(StateConfirmed, models.SourcePoll)
				return
			case r.status.Expired:
				w.resolve(StateExpired, models.SourcePoll)
				return
			}
			if left, ok := r.status.Remaining(); ok {
				w.correct(left, !initialized)
				initialized = true
			}
		}
	}
}

// correct aligns the countdown with the server's whole-minute estimate. The first
// estimate replaces the countdown; later ones only pull it back inside
// [minutes, minutes+1) so the local second-level precision is kept.
func (w *Watcher) correct(serverLeft time.Duration, first bool) {
	if first {
		w.remaining.Store(int64(serverLeft))
		return
	}
	local := w.Remaining()
	switch {
	case local < serverLeft:
		w.remaining.Store(int64(serverLeft))
	case local >= serverLeft+time.Minute:
		w.remaining.Store(int64(serverLeft + time.Minute - w.tickEvery))
	}
}

// startPoll runs one status check off the scheduler goroutine. The call is not
// cancelled by teardown; the buffered channel lets it finish and be dropped.
func (w *Watcher) startPoll(ctx context.Context) {
	pollCtx := context.WithoutCancel(ctx)
	go func() {
		status, err := w.checker.CheckStatus(pollCtx, w.identityID, w.now())
		w.polls <- pollResult{status: status, err: err}
	}()
}
