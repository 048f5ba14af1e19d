package quote

import (
	"sync"
	"time"
)

// DefaultDebounce is how long an input must be stable before a re-quote
// fires, so rapid edits don't produce a request per keystroke.
const DefaultDebounce = 500 * time.Millisecond

// Debouncer coalesces trailing-edge calls per key. A new Trigger for the
// same key replaces the pending one; only the last survives the delay.
type Debouncer struct {
	delay time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{delay: delay, timers: make(map[string]*time.Timer)}
}

// Trigger schedules fn after the delay, superseding any pending trigger
// for the same key.
func (d *Debouncer) Trigger(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[key]; ok {
		t.Stop()
	}
	d.timers[key] = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		delete(d.timers, key)
		d.mu.Unlock()
		fn()
	})
}

// Stop cancels all pending triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, t := range d.timers {
		t.Stop()
		delete(d.timers, key)
	}
}
