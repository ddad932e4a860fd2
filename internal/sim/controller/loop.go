package controller

import (
	"context"
	"errors"
)

// ErrLoopStopped is returned by Loop.Do once the loop has exited.
var ErrLoopStopped = errors.New("controller loop stopped")

// Loop owns a Controller and runs every closure posted to it on a single
// goroutine. HTTP handlers, catalog completions and clock ticks all go
// through it, so the Controller never sees concurrent calls.
type Loop struct {
	work    chan func(*Controller)
	stopped chan struct{}
}

// NewLoop creates a loop with the given queue depth. Call Run to start it.
func NewLoop(queue int) *Loop {
	if queue < 0 {
		queue = 0
	}
	return &Loop{
		work:    make(chan func(*Controller), queue),
		stopped: make(chan struct{}),
	}
}

// Run processes posted closures against c until ctx is cancelled.
func (l *Loop) Run(ctx context.Context, c *Controller) error {
	defer close(l.stopped)
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-l.work:
			fn(c)
		}
	}
}

// Post implements Dispatcher. It blocks until the closure is queued and drops
// it if the loop has stopped.
func (l *Loop) Post(fn func(*Controller)) {
	select {
	case l.work <- fn:
	case <-l.stopped:
	}
}

// Do runs fn on the loop goroutine and waits for its result. ctx bounds
// only the wait for a queue slot: once fn is queued it runs to completion
// and Do reports its outcome, so callers never see a cancellation error for
// a transition that was applied.
func (l *Loop) Do(ctx context.Context, fn func(*Controller) error) error {
	result := make(chan error, 1)
	task := func(c *Controller) { result <- fn(c) }

	select {
	case l.work <- task:
	case <-l.stopped:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-l.stopped:
		// The task may have run just before the loop exited.
		select {
		case err := <-result:
			return err
		default:
			return ErrLoopStopped
		}
	}
}
