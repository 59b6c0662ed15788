package persistence

import (
	"context"
	"sync"
	"time"

	"vsme-guru/internal/models"
)

type pendingSave struct {
	data models.FormData
	step int
}

// DebouncedSaver coalesces rapid saves into one write after a quiet period.
// Only the arguments of the last call are written.
//
// Writes are serialized by writeMu, which is always taken before mu. Once
// Cancel, SaveNow or Clear returns, no earlier debounced write can land.
type DebouncedSaver struct {
	persister *Persister
	delay     time.Duration

	writeMu sync.Mutex

	mu         sync.Mutex
	timer      *time.Timer
	pending    *pendingSave
	generation uint64
	stopped    bool
}

// Debounced returns a saver writing through p after delay of inactivity.
func (p *Persister) Debounced(delay time.Duration) *DebouncedSaver {
	return &DebouncedSaver{persister: p, delay: delay}
}

// Save schedules a write of data and step, replacing any pending write and
// restarting the delay.
func (d *DebouncedSaver) Save(data models.FormData, step int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = &pendingSave{data: data.Clone(), step: step}
	d.generation++
	gen := d.generation
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

// fire writes the pending save unless a later Save, Flush or Cancel has
// superseded the timer that called it. The generation is checked while the
// write lock is held.
func (d *DebouncedSaver) fire(gen uint64) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	d.mu.Lock()
	if gen != d.generation || d.pending == nil {
		d.mu.Unlock()
		return
	}
	p := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()

	d.persister.Save(context.Background(), p.data, p.step)
}

// take detaches the pending save and disarms the timer.
func (d *DebouncedSaver) take() *pendingSave {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.generation++
	p := d.pending
	d.pending = nil
	return p
}

// Flush writes the pending save now, if there is one.
func (d *DebouncedSaver) Flush() {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	if p := d.take(); p != nil {
		d.persister.Save(context.Background(), p.data, p.step)
	}
}

// Cancel drops the pending save and waits for a write already in progress.
func (d *DebouncedSaver) Cancel() {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	d.take()
}

// SaveNow drops the pending save and writes data and step immediately.
func (d *DebouncedSaver) SaveNow(ctx context.Context, data models.FormData, step int) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	d.take()
	d.persister.Save(ctx, data, step)
}

// Clear drops the pending save and deletes the snapshot.
func (d *DebouncedSaver) Clear(ctx context.Context) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	d.take()
	d.persister.Clear(ctx)
}

// Pending reports whether a write is scheduled.
func (d *DebouncedSaver) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Stop flushes the pending save and ignores every later call to Save.
func (d *DebouncedSaver) Stop() {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	if p := d.take(); p != nil {
		d.persister.Save(context.Background(), p.data, p.step)
	}
}
