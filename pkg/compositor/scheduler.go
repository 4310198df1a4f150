// scheduler.go — Debounced preview scheduling with explicit task handles.
package compositor

import (
	"sync"
	"time"
)

// DefaultDebounce is the quiescence delay before a preview render.
const DefaultDebounce = 50 * time.Millisecond

// Task is a handle to one scheduled run.
type Task struct {
	d     *Debouncer
	timer *time.Timer
}

// Cancel stops the task if it has not fired. It reports whether it was pending.
func (t *Task) Cancel() bool {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	if t.d.pending != t {
		return false
	}
	t.d.pending = nil
	t.timer.Stop()
	return true
}

// Debouncer collapses bursts of Schedule calls into one run of the latest
// function, fired after the delay has passed without another call.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	pending *Task
	closed  bool
}

// NewDebouncer creates a debouncer. delay <= 0 uses DefaultDebounce.
func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{delay: delay}
}

// Schedule replaces any pending task with fn. It returns nil after Close.
func (d *Debouncer) Schedule(fn func()) *Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	if d.pending != nil {
		d.pending.timer.Stop()
	}
	t := &Task{d: d}
	t.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if d.pending != t || d.closed {
			d.mu.Unlock()
			return
		}
		d.pending = nil
		d.mu.Unlock()
		fn()
	})
	d.pending = t
	return t
}

// Pending reports whether a task is armed.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Cancel drops the pending task, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending != nil {
		d.pending.timer.Stop()
		d.pending = nil
	}
}

// Close cancels the pending task; nothing fires afterwards.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.pending != nil {
		d.pending.timer.Stop()
		d.pending = nil
	}
}
