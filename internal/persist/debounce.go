package persist

import (
	"context"
	"log"
	"sync"
	"time"
)

// DefaultDebounce is the inactivity window before an edit is written.
const DefaultDebounce = 2 * time.Second

// Debouncer delays snapshot writes until edits stop for a fixed window. Each
// Schedule replaces the pending snapshot and restarts the timer, so only the
// last snapshot of a burst is written. Writes are serialised, and a timer
// write superseded by a later Schedule, Flush or Cancel is dropped, so an
// older snapshot never lands after a newer one.
type Debouncer struct {
	store Store
	key   string
	delay time.Duration

	// wmu is held across every store write.
	wmu sync.Mutex

	mu      sync.Mutex
	timer   *time.Timer
	pending *Snapshot
	gen     uint64
	writing bool
	// OnSaved, when set, is called after every timer-driven write with its
	// result. It runs on the timer goroutine.
	OnSaved func(Snapshot, error)
}

// NewDebouncer creates a debouncer writing to store under key.
func NewDebouncer(store Store, key string, delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{store: store, key: key, delay: delay}
}

// Key returns the storage key snapshots are written under.
func (d *Debouncer) Key() string { return d.key }

// Schedule queues snap for writing after the debounce window, cancelling any
// write that has not fired yet.
func (d *Debouncer) Schedule(snap Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetLocked()
	d.pending = &snap
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

// resetLocked stops the timer and moves to a new generation.
func (d *Debouncer) resetLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
	d.gen++
}

func (d *Debouncer) fire(gen uint64) {
	d.wmu.Lock()
	defer d.wmu.Unlock()

	d.mu.Lock()
	if gen != d.gen || d.pending == nil {
		d.mu.Unlock()
		return
	}
	snap := *d.pending
	d.pending = nil
	d.timer = nil
	d.writing = true
	d.mu.Unlock()

	err := d.store.Save(context.Background(), d.key, snap)

	d.mu.Lock()
	d.writing = false
	d.mu.Unlock()
	if err != nil {
		log.Printf("persist: debounced save of %s failed: %v", d.key, err)
	}
	if d.OnSaved != nil {
		d.OnSaved(snap, err)
	}
}

// Flush writes snap immediately and drops any pending write. A timer write
// already in progress completes first.
func (d *Debouncer) Flush(ctx context.Context, snap Snapshot) error {
	d.Cancel()
	d.wmu.Lock()
	defer d.wmu.Unlock()
	return d.store.Save(ctx, d.key, snap)
}

// Cancel drops any pending write.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetLocked()
}

// Pending reports whether a write is waiting for its timer or in progress.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil || d.writing
}
