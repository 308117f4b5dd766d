// =============================================================================
// pkg/trace/waits.go - Pending Waits and Event Annotation
// =============================================================================
//
// WAIT lines can precede the PARSING IN CURSOR line that introduces
// their cursor number (the parse is dumped when the statement text is
// first needed, waits happen immediately). Such waits are buffered here
// and retroactively attached once the cursor appears. Whatever is still
// buffered at end of input folds into the unaccounted sentinel.
//
// =============================================================================

package trace

import (
	"fmt"

	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/record"
)

// pendingWaitCap bounds the buffer; a trace that waits forever on cursors
// it never parses would otherwise grow it without limit. Overflowing
// entries spill to the unaccounted sentinel immediately.
const pendingWaitCap = 65536

// PendingWait is one buffered wait keyed by the trace cursor number it
// referenced.
type PendingWait struct {
	Number  uint64
	Line    uint32
	Payload []byte
	Ela     int64
}

// PendingWaits buffers waits that arrived before their cursor.
type PendingWaits struct {
	items     []PendingWait
	overflown int64
}

// Add buffers one wait. Returns the entries evicted to make room, empty
// in the normal case.
func (p *PendingWaits) Add(w PendingWait) []PendingWait {
	var evicted []PendingWait
	if len(p.items) >= pendingWaitCap {
		evicted = append(evicted, p.items[0])
		p.items = p.items[1:]
		p.overflown++
	}
	p.items = append(p.items, w)
	return evicted
}

// TakeFor removes and returns all buffered waits for the given cursor
// number, preserving trace order.
func (p *PendingWaits) TakeFor(number uint64) []PendingWait {
	var taken []PendingWait
	kept := p.items[:0]
	for _, w := range p.items {
		if w.Number == number {
			taken = append(taken, w)
		} else {
			kept = append(kept, w)
		}
	}
	p.items = kept
	return taken
}

// Drain removes and returns everything still buffered.
func (p *PendingWaits) Drain() []PendingWait {
	items := p.items
	p.items = nil
	return items
}

// Len returns the number of buffered waits.
func (p *PendingWaits) Len() int {
	return len(p.items)
}

// Overflown returns how many waits were evicted to the unaccounted
// sentinel because the buffer was full.
func (p *PendingWaits) Overflown() int64 {
	return p.overflown
}

// =============================================================================
// Event Annotation
// =============================================================================

// AnnotateEvent refines generic event names with the distinguishing wait
// parameter so the report separates what are really different waits:
// "latch free" by latch number, "enqueue" by lock type and mode.
func AnnotateEvent(w *WaitFields) string {
	switch w.Event {
	case "latch free", "latch activity":
		if w.NumP >= 2 {
			return fmt.Sprintf("%s (latch#=%d)", w.Event, w.P[1])
		}
	case "enqueue":
		if w.NumP >= 1 {
			if name, mode, ok := decodeEnqueue(w.P[0]); ok {
				return fmt.Sprintf("enqueue (%s mode %d)", name, mode)
			}
		}
	}
	return w.Event
}

// decodeEnqueue unpacks the enqueue p1: two ASCII lock-type characters in
// the high bytes, the requested mode in the low 16 bits.
func decodeEnqueue(p1 int64) (string, int64, bool) {
	c1 := byte(p1 >> 24)
	c2 := byte(p1 >> 16)
	if c1 < 'A' || c1 > 'Z' || c2 < 'A' || c2 > 'Z' {
		return "", 0, false
	}
	return string([]byte{c1, c2}), p1 & 0xFFFF, true
}

// BuildWaitRecord assembles the normalized wait payload for one parsed
// WAIT line. ela and tim are already converted to ticks.
func BuildWaitRecord(w *WaitFields, ela, tim int64, module, action string) []byte {
	rec := record.Wait{
		Event:   AnnotateEvent(w),
		Elapsed: ela,
		P1:      w.P[0],
		P2:      w.P[1],
		P3:      w.P[2],
		Obj:     w.Obj,
		Tim:     tim,
		Module:  module,
		Action:  action,
	}
	return record.EncodeWait(&rec)
}
