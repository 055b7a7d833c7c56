package watcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signbridge/internal/confirmation/models"
	"signbridge/internal/platform/logger"
)

type manualTicker struct {
	c chan time.Time
}

func newManualTicker() *manualTicker {
	return &manualTicker{c: make(chan time.Time, 64)}
}

func (m *manualTicker) C() <-chan time.Time { return m.c }

func (m *manualTicker) Stop() {}

func (m *manualTicker) fire(n int) {
	for range n {
		m.c <- time.Time{}
	}
}

// checkerFunc answers polls; n counts calls from 1.
type checkerFunc func(n int) (models.Status, error)

type scriptedChecker struct {
	calls atomic.Int32
	fn    checkerFunc
}

func (c *scriptedChecker) CheckStatus(_ context.Context, _ string, _ time.Time) (models.Status, error) {
	return c.fn(int(c.calls.Add(1)))
}

type recorder struct {
	mu        sync.Mutex
	confirmed []models.Source
	timedOut  []models.Source
	errs      []error
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnConfirmed: func(s models.Source) { r.mu.Lock(); r.confirmed = append(r.confirmed, s); r.mu.Unlock() },
		OnTimeout:   func(s models.Source) { r.mu.Lock(); r.timedOut = append(r.timedOut, s); r.mu.Unlock() },
		OnError:     func(err error) { r.mu.Lock(); r.errs = append(r.errs, err); r.mu.Unlock() },
	}
}

func (r *recorder) counts() (confirmed, timedOut, errs int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.confirmed), len(r.timedOut), len(r.errs)
}

type harness struct {
	poll    *manualTicker
	tick    *manualTicker
	rec     *recorder
	checker *scriptedChecker
	watcher *Watcher
}

func newHarness(window time.Duration, fn checkerFunc) *harness {
	h := &harness{
		poll:    newManualTicker(),
		tick:    newManualTicker(),
		rec:     &recorder{},
		checker: &scriptedChecker{fn: fn},
	}
	h.watcher = New("id-1", h.checker, h.rec.callbacks(),
		WithLogger(logger.Discard()),
		WithWindow(window),
		WithIntervals(15*time.Second, time.Second),
		WithTickerFactory(func(period time.Duration) Ticker {
			if period == time.Second {
				return h.tick
			}
			return h.poll
		}),
	)
	return h
}

func waitDone(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not finish")
	}
}

func blockForever(ctx context.Context) checkerFunc {
	return func(int) (models.Status, error) {
		<-ctx.Done()
		return models.Status{}, ctx.Err()
	}
}

func TestPollConfirmationResolves(t *testing.T) {
	h := newHarness(models.Window, func(int) (models.Status, error) { return models.Confirmed(), nil })
	require.NoError(t, h.watcher.Start(context.Background()))

	waitDone(t, h.watcher)
	assert.Equal(t, StateConfirmed, h.watcher.State())
	assert.Equal(t, []models.Source{models.SourcePoll}, h.rec.confirmed)
	_, timedOut, _ := h.rec.counts()
	assert.Zero(t, timedOut)
}

func TestPollExpiryResolves(t *testing.T) {
	h := newHarness(models.Window, func(int) (models.Status, error) { return models.Expired(), nil })
	require.NoError(t, h.watcher.Start(context.Background()))

	waitDone(t, h.watcher)
	assert.Equal(t, StateExpired, h.watcher.State())
	assert.Equal(t, []models.Source{models.SourcePoll}, h.rec.timedOut)
}

func TestTickCountdownExpiresWithoutPollResult(t *testing.T) {
	stuck, release := context.WithCancel(context.Background())
	defer release()
	h := newHarness(3*time.Second, blockForever(stuck))
	require.NoError(t, h.watcher.Start(context.Background()))

	h.tick.fire(2)
	require.Eventually(t, func() bool { return h.watcher.Remaining() == time.Second }, time.Second, time.Millisecond)
	assert.Equal(t, StateWatching, h.watcher.State())

	h.tick.fire(1)
	waitDone(t, h.watcher)
	assert.Equal(t, StateExpired, h.watcher.State())
	assert.Equal(t, []models.Source{models.SourceTick}, h.rec.timedOut)
	assert.Empty(t, h.rec.confirmed)
}

func TestTickAndPollRaceFiresExactlyOneCallback(t *testing.T) {
	for i := range 50 {
		gate := make(chan struct{})
		h := newHarness(time.Second, func(int) (models.Status, error) {
			<-gate
			return models.Confirmed(), nil
		})
		require.NoError(t, h.watcher.Start(context.Background()))

		close(gate)
		h.tick.fire(1)
		waitDone(t, h.watcher)

		confirmed, timedOut, _ := h.rec.counts()
		require.Equal(t, 1, confirmed+timedOut, "iteration %d", i)
		require.True(t, h.watcher.State().Terminal())
	}
}

func TestExternalConfirmMidCountdown(t *testing.T) {
	stuck, release := context.WithCancel(context.Background())
	defer release()
	h := newHarness(5*time.Second, blockForever(stuck))
	require.NoError(t, h.watcher.Start(context.Background()))

	h.tick.fire(2)
	require.Eventually(t, func() bool { return h.watcher.Remaining() == 3*time.Second }, time.Second, time.Millisecond)

	require.True(t, h.watcher.Confirm(models.SourceManual))
	assert.Equal(t, []models.Source{models.SourceManual}, h.rec.confirmed)
	waitDone(t, h.watcher)

	// the original three seconds pass with nobody listening
	h.tick.fire(5)
	release()
	time.Sleep(20 * time.Millisecond)

	confirmed, timedOut, _ := h.rec.counts()
	assert.Equal(t, 1, confirmed)
	assert.Zero(t, timedOut)
	assert.False(t, h.watcher.Expire(models.SourceTick), "terminal state is final")
	assert.False(t, h.watcher.Confirm(models.SourcePoll))
}

func TestStopDiscardsLatePollResult(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(models.Window, func(int) (models.Status, error) {
		<-gate
		return models.Confirmed(), nil
	})
	require.NoError(t, h.watcher.Start(context.Background()))

	h.watcher.Stop()
	waitDone(t, h.watcher)
	close(gate)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, StateStopped, h.watcher.State())
	confirmed, timedOut, _ := h.rec.counts()
	assert.Zero(t, confirmed+timedOut)
	assert.Equal(t, int32(1), h.checker.calls.Load(), "the in-flight call ran to completion")
}

func TestPollErrorsAreReportedAndWatchContinues(t *testing.T) {
	h := newHarness(models.Window, func(n int) (models.Status, error) {
		if n == 1 {
			return models.Status{}, errors.New("network unreachable")
		}
		return models.Confirmed(), nil
	})
	require.NoError(t, h.watcher.Start(context.Background()))

	require.Eventually(t, func() bool { _, _, errs := h.rec.counts(); return errs == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, StateWatching, h.watcher.State())

	h.poll.fire(1)
	waitDone(t, h.watcher)
	assert.Equal(t, StateConfirmed, h.watcher.State())
}

func TestServerEstimateCorrectsCountdown(t *testing.T) {
	h := newHarness(models.Window, func(n int) (models.Status, error) {
		if n == 1 {
			return models.Pending(9), nil
		}
		return models.Pending(5), nil
	})
	require.NoError(t, h.watcher.Start(context.Background()))
	require.Eventually(t, func() bool { return h.watcher.Remaining() == 9*time.Minute }, time.Second, time.Millisecond)

	h.tick.fire(1)
	require.Eventually(t, func() bool { return h.watcher.Remaining() == 9*time.Minute-time.Second }, time.Second, time.Millisecond)

	h.poll.fire(1)
	require.Eventually(t, func() bool { return h.watcher.Remaining() == 6*time.Minute-time.Second }, time.Second, time.Millisecond)
	h.watcher.Stop()
	waitDone(t, h.watcher)
}

func TestCorrectKeepsLocalPrecisionInsideServerMinute(t *testing.T) {
	w := New("id-1", &scriptedChecker{}, Callbacks{})
	w.remaining.Store(int64(5*time.Minute + 30*time.Second))
	w.correct(5*time.Minute, false)
	assert.Equal(t, 5*time.Minute+30*time.Second, w.Remaining())

	w.correct(7*time.Minute, false)
	assert.Equal(t, 7*time.Minute, w.Remaining(), "local clock behind the server is pulled forward")

	w.correct(3*time.Minute, true)
	assert.Equal(t, 3*time.Minute, w.Remaining(), "the first estimate replaces the countdown")
}

func TestStartOnlyOnce(t *testing.T) {
	h := newHarness(models.Window, func(int) (models.Status, error) { return models.Pending(10), nil })
	require.NoError(t, h.watcher.Start(context.Background()))
	assert.ErrorIs(t, h.watcher.Start(context.Background()), ErrNotIdle)
	h.watcher.Stop()
	waitDone(t, h.watcher)
	assert.ErrorIs(t, h.watcher.Start(context.Background()), ErrNotIdle)
}

func TestStopBeforeStart(t *testing.T) {
	w := New("id-1", &scriptedChecker{}, Callbacks{})
	w.Stop()
	waitDone(t, w)
	assert.Equal(t, StateStopped, w.State())
	assert.ErrorIs(t, w.Start(context.Background()), ErrNotIdle)
}

func TestParentContextCancellationEndsWatch(t *testing.T) {
	h := newHarness(models.Window, func(int) (models.Status, error) { return models.Pending(10), nil })
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.watcher.Start(ctx))
	cancel()
	waitDone(t, h.watcher)

	confirmed, timedOut, _ := h.rec.counts()
	assert.Zero(t, confirmed+timedOut)
}
