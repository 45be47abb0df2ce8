package recorder

import (
	"time"

	"github.com/hazyhaar/domsel/domwatch/mutation"
)

// debouncer buffers wire records and flushes them, compressed, when the
// window passes without new records or when the buffer is full.
type debouncer struct {
	window    time.Duration
	maxBuffer int
	records   []mutation.Record
	timer     *time.Timer
	timerCh   <-chan time.Time
	flushFn   func([]mutation.Record)
}

func newDebouncer(window time.Duration, maxBuffer int, flushFn func([]mutation.Record)) *debouncer {
	return &debouncer{
		window:    window,
		maxBuffer: maxBuffer,
		records:   make([]mutation.Record, 0, maxBuffer),
		flushFn:   flushFn,
	}
}

// add buffers rec and reports whether the buffer filled and was flushed.
func (d *debouncer) add(rec mutation.Record) bool {
	d.records = append(d.records, rec)
	if len(d.records) >= d.maxBuffer {
		d.flush()
		return true
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.NewTimer(d.window)
	d.timerCh = d.timer.C
	return false
}

func (d *debouncer) timerC() <-chan time.Time { return d.timerCh }

func (d *debouncer) flush() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
		d.timerCh = nil
	}
	if len(d.records) == 0 {
		return
	}
	out := compress(d.records)
	// flushFn keeps the slice; start a fresh buffer.
	d.records = make([]mutation.Record, 0, d.maxBuffer)
	d.flushFn(out)
}

// compress folds runs of attr changes on the same (xpath, name) and runs of
// text changes on the same xpath into their last value, keeping the first
// old value. Structural records are never folded.
func compress(records []mutation.Record) []mutation.Record {
	if len(records) <= 1 {
		return records
	}
	out := make([]mutation.Record, 0, len(records))
	for i := 0; i < len(records); {
		rec := records[i]
		j := i + 1
		if rec.Op == mutation.OpAttr || rec.Op == mutation.OpText {
			for j < len(records) && sameTarget(rec, records[j]) {
				j++
			}
			last := records[j-1]
			last.OldValue = rec.OldValue
			rec = last
		}
		out = append(out, rec)
		i = j
	}
	return out
}

func sameTarget(a, b mutation.Record) bool {
	if a.Op != b.Op || a.XPath != b.XPath {
		return false
	}
	return a.Op != mutation.OpAttr || a.Name == b.Name
}
