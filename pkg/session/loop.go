// SPDX-FileCopyrightText: 2026 quichat contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import "sync"

// loop executes submitted functions one after another in a single goroutine.
type loop struct {
	work chan func()

	// quit is closed to end the loop; done is closed after run returned.
	quit     chan struct{}
	done     chan struct{}
	quitOnce sync.Once
}

func newLoop() *loop {
	return &loop{
		work: make(chan func()),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// run the loop until stop is called. ready is closed as soon as submissions are accepted.
func (l *loop) run(ready chan<- struct{}) {
	defer close(l.done)
	close(ready)

	for {
		select {
		case fn := <-l.work:
			fn()

		case <-l.quit:
			return
		}
	}
}

// submit fn for execution. Successive submits from one goroutine are executed in their order.
func (l *loop) submit(fn func()) error {
	select {
	case <-l.quit:
		return ErrNotRunning
	default:
	}

	select {
	case l.work <- fn:
		return nil
	case <-l.quit:
		return ErrNotRunning
	}
}

// stop the loop after the currently executed function. Repeated calls are no-ops.
func (l *loop) stop() {
	l.quitOnce.Do(func() { close(l.quit) })
}

// await submits fn and waits for its result.
func await[T any](l *loop, fn func() T) (T, error) {
	result := make(chan T, 1)

	if err := l.submit(func() { result <- fn() }); err != nil {
		var zero T
		return zero, err
	}

	select {
	case r := <-result:
		return r, nil

	case <-l.done:
		// fn might have been the last function before the loop ended.
		select {
		case r := <-result:
			return r, nil
		default:
			var zero T
			return zero, ErrNotRunning
		}
	}
}
