package hotplug

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// delayedWork runs fn once after a delay. Cancel blocks until any
// in-flight run has returned, and a run that was superseded by Cancel or
// a later Schedule never starts.
type delayedWork struct {
	clock clock.WithDelayedExecution
	fn    func()

	run sync.Mutex // held for the whole of fn

	mu         sync.Mutex
	timer      clock.Timer
	gen        uint64
	cancelling bool
	stopped    bool
}

func newDelayedWork(clk clock.WithDelayedExecution, fn func()) *delayedWork {
	return &delayedWork{clock: clk, fn: fn}
}

// Schedule (re)arms the work. It is ignored during Cancel and after Stop.
func (w *delayedWork) Schedule(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancelling || w.stopped {
		return
	}
	w.gen++
	if w.timer != nil {
		w.timer.Stop()
	}
	gen := w.gen
	w.timer = w.clock.AfterFunc(d, func() { go w.fire(gen) })
}

// Pending reports whether a run is armed.
func (w *delayedWork) Pending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.timer != nil
}

func (w *delayedWork) fire(gen uint64) {
	w.run.Lock()
	defer w.run.Unlock()

	w.mu.Lock()
	if gen != w.gen || w.stopped {
		w.mu.Unlock()
		return
	}
	w.timer = nil
	w.mu.Unlock()

	w.fn()
}

// Cancel disarms the work and waits for an in-flight run to finish.
// It must not be called from fn.
func (w *delayedWork) Cancel() {
	w.mu.Lock()
	w.cancelling = true
	w.gen++
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()

	// Wait for fn.
	w.run.Lock()
	w.run.Unlock()

	w.mu.Lock()
	w.cancelling = false
	w.mu.Unlock()
}

// Stop cancels the work permanently.
func (w *delayedWork) Stop() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	w.Cancel()
}
