package timectrl

import (
	"context"
	"sync"
	"time"
)

// Clock is the time source the simulation reads "today" from. Components
// depend on it rather than on time.Now so tests can pin the date.
type Clock interface {
	Now() time.Time
}

// SystemClock reads wall-clock time.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// Today returns the UTC calendar date of c.Now() at midnight.
func Today(c Clock) time.Time {
	return Day(c.Now())
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Mode describes how the TimeController advances time.
type Mode int

const (
	// RealTime advances according to wall-clock time.
	RealTime Mode = iota
	// Accelerated advances as quickly as the loop can run while still stepping by Tick.
	Accelerated
)

// TimeController drives time forward in Tick steps and notifies registered
// listeners. It implements Clock.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time

	listeners []func(time.Time)
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the controller's current time. Implements Clock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// AddListener registers a callback invoked on every tick. Listeners must be
// added before Start.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Start runs the controller for the specified duration (zero means until ctx
// is cancelled) in a separate goroutine. It returns a channel that is closed
// when the controller finishes.
func (tc *TimeController) Start(ctx context.Context, duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		tc.mu.Lock()
		now := tc.StartTime
		tc.currentTime = now
		listeners := append([]func(time.Time){}, tc.listeners...)
		tc.mu.Unlock()

		var wait <-chan time.Time
		if tc.Mode == RealTime {
			ticker := time.NewTicker(tc.Tick)
			defer ticker.Stop()
			wait = ticker.C
		}

		elapsed := time.Duration(0)
		for {
			if duration > 0 && elapsed >= duration {
				return
			}
			if wait != nil {
				select {
				case <-ctx.Done():
					return
				case <-wait:
				}
			} else if ctx.Err() != nil {
				return
			}

			now = now.Add(tc.Tick)
			elapsed += tc.Tick

			tc.mu.Lock()
			tc.currentTime = now
			tc.mu.Unlock()

			for _, fn := range listeners {
				fn(now)
			}
		}
	}()
	return done
}

// OnDayChange wraps fn into a tick listener that fires only when the UTC date
// of the tick differs from the previous one. The first tick establishes the
// baseline date relative to since.
func OnDayChange(since time.Time, fn func(day time.Time)) func(time.Time) {
	var mu sync.Mutex
	last := Day(since)
	return func(t time.Time) {
		day := Day(t)
		mu.Lock()
		changed := !day.Equal(last)
		last = day
		mu.Unlock()
		if changed {
			fn(day)
		}
	}
}
