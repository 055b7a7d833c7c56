package watcher

import "time"

// Ticker is the part of *time.Ticker the scheduler uses, so tests can drive the
// clocks by hand.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type TickerFactory func(period time.Duration) Ticker

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }

func (r realTicker) Stop() { r.t.Stop() }

func newRealTicker(period time.Duration) Ticker {
	return realTicker{t: time.NewTicker(period)}
}
