// =============================================================================
// pkg/trace/stat.go - Row-Source Plan Tracking
// =============================================================================
//
// STAT lines dump one row-source plan step each. The dump cadence changed
// across releases: older servers dumped an aggregate set once at cursor
// close, newer ones dump a set per execution. The tracker accumulates the
// current set, detects set boundaries by the step id restarting, and only
// emits sets whose structure has not been stored for the cursor yet.
// Structure means (id, parent, object, operation, partition range); row
// counts and per-step statistics vary per execution and do not make a
// plan "different".
//
// =============================================================================

package trace

import (
	"encoding/binary"
	"hash/fnv"

	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/record"
)

// plan sets beyond this many steps are flushed defensively so a corrupt
// trace cannot grow the buffer without bound.
const maxPlanSteps = 4096

// PlanStep pairs one plan record with its original trace line.
type PlanStep struct {
	Rec  record.Plan
	Line uint32
}

// PlanEmitFunc receives the steps of a distinct plan set.
type PlanEmitFunc func(steps []PlanStep)

// PlanTracker accumulates STAT sets for one cursor.
type PlanTracker struct {
	steps  []PlanStep
	lastID int64
	seen   map[uint64]bool
	stored int
}

// NewPlanTracker returns an empty tracker.
func NewPlanTracker() *PlanTracker {
	return &PlanTracker{seen: make(map[uint64]bool)}
}

// Add appends one STAT step. A step id at or below the previous one
// starts a new set; the finished set is emitted if distinct.
func (t *PlanTracker) Add(rec record.Plan, line uint32, emit PlanEmitFunc) {
	if len(t.steps) > 0 && (rec.ID <= t.lastID || len(t.steps) >= maxPlanSteps) {
		t.flush(emit)
	}
	t.steps = append(t.steps, PlanStep{Rec: rec, Line: line})
	t.lastID = rec.ID
}

// Finish flushes the in-progress set at end of input.
func (t *PlanTracker) Finish(emit PlanEmitFunc) {
	if len(t.steps) > 0 {
		t.flush(emit)
	}
}

// StoredSets returns how many distinct sets were emitted.
func (t *PlanTracker) StoredSets() int {
	return t.stored
}

func (t *PlanTracker) flush(emit PlanEmitFunc) {
	fp := t.fingerprint()
	if !t.seen[fp] {
		t.seen[fp] = true
		t.stored++
		emit(t.steps)
	}
	t.steps = t.steps[:0]
	t.lastID = 0
}

// fingerprint hashes the structural fields of the current set.
func (t *PlanTracker) fingerprint() uint64 {
	h := fnv.New64a()
	var buf [8]byte
	writeInt := func(v int64) {
		binary.BigEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	for i := range t.steps {
		rec := &t.steps[i].Rec
		writeInt(rec.ID)
		writeInt(rec.Parent)
		writeInt(rec.Object)
		h.Write([]byte(rec.Op))
		h.Write([]byte{0})
		h.Write([]byte(rec.PartStart))
		h.Write([]byte{0})
		h.Write([]byte(rec.PartStop))
		h.Write([]byte{0xff})
	}
	return h.Sum64()
}
