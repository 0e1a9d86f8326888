package market

import (
	"sync"
	"time"
)

// Clock abstracts time for the store's periodic tasks so the collection and
// midnight-cleanup scheduling can be tested deterministically.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// NewTicker returns a ticker firing every d.
	NewTicker(d time.Duration) Ticker
	// After returns a channel that fires once after d.
	After(d time.Duration) <-chan time.Time
}

// Ticker is the stoppable periodic timer handed out by a Clock.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realClock struct{}

// NewRealClock returns a Clock backed by the time package.
func NewRealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{ticker: time.NewTicker(d)}
}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

type realTicker struct {
	ticker *time.Ticker
}

func (t *realTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t *realTicker) Stop() {
	t.ticker.Stop()
}

// FakeClock is a manually driven Clock for tests. Fire registered tickers
// and timers through FireTick and FireAfter.
type FakeClock struct {
	mu         sync.Mutex
	now        time.Time
	tickChans  []chan time.Time
	afterChans []chan time.Time
}

// NewFakeClock creates a FakeClock starting at the given time.
func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

// Now implements Clock.
func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.now
}

// NewTicker implements Clock. Each call registers a ticker; fire ticks with
// FireTick.
func (f *FakeClock) NewTicker(time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan time.Time, 1)
	f.tickChans = append(f.tickChans, ch)

	return &fakeTicker{ch: ch}
}

// After implements Clock. Each call registers a one-shot timer; fire it with
// FireAfter.
func (f *FakeClock) After(time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan time.Time, 1)
	f.afterChans = append(f.afterChans, ch)

	return ch
}

// Advance moves the fake clock's current time forward.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.now = f.now.Add(d)
}

// TickerCount reports how many tickers have been created.
func (f *FakeClock) TickerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.tickChans)
}

// AfterCount reports how many one-shot timers have been created.
func (f *FakeClock) AfterCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.afterChans)
}

// FireTick delivers a tick on the i-th registered ticker.
func (f *FakeClock) FireTick(i int) {
	f.mu.Lock()
	ch := f.tickChans[i]
	now := f.now
	f.mu.Unlock()

	ch <- now
}

// FireAfter fires the i-th registered one-shot timer.
func (f *FakeClock) FireAfter(i int) {
	f.mu.Lock()
	ch := f.afterChans[i]
	now := f.now
	f.mu.Unlock()

	ch <- now
}

type fakeTicker struct {
	ch chan time.Time
}

func (t *fakeTicker) C() <-chan time.Time {
	return t.ch
}

func (t *fakeTicker) Stop() {}
