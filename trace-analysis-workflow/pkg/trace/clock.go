// =============================================================================
// pkg/trace/clock.go - Trace Clock Normalization and Gap Detection
// =============================================================================
//
// The Clock owns everything time-related during ingest:
//
//	UNIT NORMALIZATION
//	  Raw c=/e=/ela=/tim= fields are centiseconds on releases before 9.0
//	  and microseconds from 9.0 on. Both are converted to internal ticks
//	  (1 tick = 1/10000 centisecond = 1 microsecond) with integer
//	  arithmetic only.
//
//	WALL CLOCK
//	  The span between the first and highest timestamps, corrected for
//	  discontinuities at duplicate trace headers (a trace file appended
//	  to across process restarts jumps backward or far forward in time).
//
//	GAP DETECTION
//	  Un-timed holes between consecutive database calls: the time between
//	  the previous call's end and this call's end that neither this
//	  call's elapsed nor the waits recorded in between can explain. Gaps
//	  under the noise threshold (2 centiseconds) are clamped to zero, and
//	  the first call after a header discontinuity never reports a gap.
//
// The depthAccumulator handles the other timing correction: a recursive
// call's c= and e= are already included in its parent's totals, so the
// sums accumulated at deeper dep= levels are subtracted from the next
// call at a shallower level.
//
// =============================================================================

package trace

import (
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/types"
)

// Clock tracks trace time state across the whole file.
type Clock struct {
	divisor     int64
	haveDivisor bool

	firstTim  int64
	lastTim   int64
	haveFirst bool

	offset          int64
	pendingBoundary bool
	suppressGap     bool

	prevOpEnd    int64
	havePrevOp   bool
	waitsSinceOp int64
}

// SetDivisorFromRelease fixes the time-unit divisor from the Oracle
// release banner's major version. Only the first banner wins.
func (c *Clock) SetDivisorFromRelease(major int64) {
	if c.haveDivisor || major <= 0 {
		return
	}
	if major >= 9 {
		c.divisor = types.DivisorMicroseconds
	} else {
		c.divisor = types.DivisorCentiseconds
	}
	c.haveDivisor = true
}

// Divisor returns the active divisor. Traces without a release banner
// default to microseconds (all supported releases in the last two
// decades).
func (c *Clock) Divisor() int64 {
	if !c.haveDivisor {
		return types.DivisorMicroseconds
	}
	return c.divisor
}

// ToTicks converts a raw time field to internal ticks.
func (c *Clock) ToTicks(raw int64) int64 {
	if c.Divisor() == types.DivisorCentiseconds {
		return raw * types.TicksPerCenti
	}
	return raw
}

// MarkHeaderBoundary records that a duplicate trace header was crossed.
// The next timestamp re-baselines the wall clock, and the next call line
// reports no gap.
func (c *Clock) MarkHeaderBoundary() {
	if c.haveFirst {
		c.pendingBoundary = true
	}
	c.suppressGap = true
}

// ObserveTim folds one timestamp (in ticks) into the wall-clock state.
func (c *Clock) ObserveTim(tim int64) {
	if tim <= 0 {
		return
	}
	if !c.haveFirst {
		c.firstTim = tim
		c.lastTim = tim
		c.haveFirst = true
		return
	}
	if c.pendingBoundary {
		c.offset += tim - c.lastTim
		c.pendingBoundary = false
	}
	if tim > c.lastTim {
		c.lastTim = tim
	}
}

// ObserveWait accumulates one wait's elapsed ticks toward the next call's
// gap computation.
func (c *Clock) ObserveWait(ela int64) {
	c.waitsSinceOp += ela
}

// ObserveCall computes the timing gap for one call line (tim and elapsed
// in ticks) and resets the between-calls wait accumulator. Gaps below
// the noise threshold report as zero.
func (c *Clock) ObserveCall(tim, ela int64) int64 {
	gap := int64(0)
	if tim > 0 {
		if c.havePrevOp && !c.suppressGap {
			gap = tim - (c.prevOpEnd + ela + c.waitsSinceOp)
			if gap < types.GapNoiseTicks {
				gap = 0
			}
		}
		c.prevOpEnd = tim
		c.havePrevOp = true
		c.suppressGap = false
	}
	c.waitsSinceOp = 0
	return gap
}

// FirstTim returns the first timestamp observed, in ticks.
func (c *Clock) FirstTim() int64 {
	return c.firstTim
}

// LastTim returns the highest timestamp observed, in ticks.
func (c *Clock) LastTim() int64 {
	return c.lastTim
}

// Offset returns the accumulated cross-header discontinuity, in ticks.
func (c *Clock) Offset() int64 {
	return c.offset
}

// WallClock returns the discontinuity-corrected trace span in ticks.
func (c *Clock) WallClock() int64 {
	if !c.haveFirst {
		return 0
	}
	wall := c.lastTim - c.firstTim - c.offset
	if wall < 0 {
		return 0
	}
	return wall
}

// =============================================================================
// Recursive Call Correction
// =============================================================================

// depthAccumulator subtracts recursive double counting. Oracle includes a
// child call's c= and e= in the enclosing call at the next shallower
// dep=, so reported values at dep=N must be reduced by everything
// accumulated at depths greater than N since the last dep<=N call.
type depthAccumulator struct {
	cpu []int64
	ela []int64
}

// Correct returns the recursion-adjusted cpu and elapsed for a call at
// the given depth, clamped at zero, and folds the raw values into the
// per-depth sums.
func (d *depthAccumulator) Correct(depth int, cpu, ela int64) (int64, int64) {
	if depth < 0 {
		depth = 0
	}
	for len(d.cpu) <= depth {
		d.cpu = append(d.cpu, 0)
		d.ela = append(d.ela, 0)
	}

	var childCPU, childEla int64
	for i := depth + 1; i < len(d.cpu); i++ {
		childCPU += d.cpu[i]
		childEla += d.ela[i]
		d.cpu[i] = 0
		d.ela[i] = 0
	}

	adjCPU := cpu - childCPU
	if adjCPU < 0 {
		adjCPU = 0
	}
	adjEla := ela - childEla
	if adjEla < 0 {
		adjEla = 0
	}

	d.cpu[depth] += cpu
	d.ela[depth] += ela
	return adjCPU, adjEla
}
