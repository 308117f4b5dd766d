// =============================================================================
// pkg/report/accum.go - Aggregation Accumulators
// =============================================================================
//
// The accumulator types the report scan folds records into. Per-cursor
// accumulators live only while that cursor's record run is being consumed
// and are released on flush; the grand accumulators are bounded by the
// number of distinct names (operations, events, modules, command types),
// never by trace size.
//
// =============================================================================

package report

import (
	"sort"

	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/record"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/types"
)

// =============================================================================
// Call Totals
// =============================================================================

// opTotals is one subtotal row of a call table.
type opTotals struct {
	Count   int64
	CPU     int64
	Elapsed int64
	Disk    int64
	Query   int64
	Current int64
	Rows    int64
	Misses  int64
	Gap     int64
}

func (t *opTotals) add(c *record.Call) {
	t.Count++
	t.CPU += c.CPU
	t.Elapsed += c.Elapsed
	t.Disk += c.Disk
	t.Query += c.Query
	t.Current += c.Current
	t.Rows += c.Rows
	t.Misses += c.Misses
	t.Gap += c.Gap
}

func (t *opTotals) merge(o *opTotals) {
	t.Count += o.Count
	t.CPU += o.CPU
	t.Elapsed += o.Elapsed
	t.Disk += o.Disk
	t.Query += o.Query
	t.Current += o.Current
	t.Rows += o.Rows
	t.Misses += o.Misses
	t.Gap += o.Gap
}

// callTable is one full call table (one row per operation kind).
type callTable struct {
	ops [record.OpKindCount]opTotals
}

func (ct *callTable) add(c *record.Call) {
	if int(c.Op) < record.OpKindCount {
		ct.ops[c.Op].add(c)
	}
}

func (ct *callTable) merge(o *callTable) {
	for i := range ct.ops {
		ct.ops[i].merge(&o.ops[i])
	}
}

// total sums all rows of the table.
func (ct *callTable) total() opTotals {
	var t opTotals
	for i := range ct.ops {
		t.merge(&ct.ops[i])
	}
	return t
}

// =============================================================================
// Wait Totals
// =============================================================================

// waitTotals is one wait event's aggregate.
type waitTotals struct {
	Count int64
	Ticks int64
	Max   int64
}

func (w *waitTotals) add(ela int64) {
	w.Count++
	w.Ticks += ela
	if ela > w.Max {
		w.Max = ela
	}
}

// waitMap is an insertion-ordered map of event name to totals; insertion
// order keeps output deterministic until an explicit sort is applied.
type waitMap struct {
	byName map[string]*waitTotals
	order  []string
}

func newWaitMap() *waitMap {
	return &waitMap{byName: make(map[string]*waitTotals)}
}

func (m *waitMap) add(event string, ela int64) {
	wt, ok := m.byName[event]
	if !ok {
		wt = &waitTotals{}
		m.byName[event] = wt
		m.order = append(m.order, event)
	}
	wt.add(ela)
}

func (m *waitMap) total() int64 {
	var sum int64
	for _, wt := range m.byName {
		sum += wt.Ticks
	}
	return sum
}

// sortedNames returns the event names sorted ascending.
func (m *waitMap) sortedNames() []string {
	names := append([]string(nil), m.order...)
	sort.Strings(names)
	return names
}

// =============================================================================
// Named Totals (modules, actions)
// =============================================================================

// namedTotals aggregates call and wait activity under one module or
// action name.
type namedTotals struct {
	Calls     opTotals
	WaitTicks int64
	WaitCount int64
}

type namedMap struct {
	byName map[string]*namedTotals
}

func newNamedMap() *namedMap {
	return &namedMap{byName: make(map[string]*namedTotals)}
}

func (m *namedMap) get(name string) *namedTotals {
	nt, ok := m.byName[name]
	if !ok {
		nt = &namedTotals{}
		m.byName[name] = nt
	}
	return nt
}

func (m *namedMap) sortedNames() []string {
	names := make([]string, 0, len(m.byName))
	for name := range m.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// =============================================================================
// Command-Type Splits
// =============================================================================

// Command-type totals are kept in three parallel splits, mirroring how
// recursive activity is reported separately from user SQL.
const (
	splitUser         = 0 // depth 0
	splitRecursiveUsr = 1 // depth > 0, parsing user is not SYS
	splitRecursiveSys = 2 // depth > 0, parsing user is SYS
	splitCount        = 3
)

var splitLabels = [splitCount]string{
	"NON-RECURSIVE (USER) STATEMENTS",
	"RECURSIVE (USER) STATEMENTS",
	"RECURSIVE (SYS) STATEMENTS",
}

// commandSplit selects the split for a call at the given depth issued by
// the given parsing user id. User id 0 is SYS.
func commandSplit(depth int32, uid int64) int {
	if depth == 0 {
		return splitUser
	}
	if uid == 0 {
		return splitRecursiveSys
	}
	return splitRecursiveUsr
}

type commandTypeTotals struct {
	splits [splitCount]map[int64]*opTotals
}

func newCommandTypeTotals() *commandTypeTotals {
	var c commandTypeTotals
	for i := range c.splits {
		c.splits[i] = make(map[int64]*opTotals)
	}
	return &c
}

func (c *commandTypeTotals) add(split int, oct int64, call *record.Call) {
	t, ok := c.splits[split][oct]
	if !ok {
		t = &opTotals{}
		c.splits[split][oct] = t
	}
	t.add(call)
}

func (c *commandTypeTotals) sortedCodes(split int) []int64 {
	codes := make([]int64, 0, len(c.splits[split]))
	for code := range c.splits[split] {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// =============================================================================
// Disk-Read Latency Histogram
// =============================================================================

// histBucketCount covers 0-1,1-2,2-4,...,128-256,256+ milliseconds.
const histBucketCount = 10

var histBucketLabels = [histBucketCount]string{
	"0-1 ms", "1-2 ms", "2-4 ms", "4-8 ms", "8-16 ms",
	"16-32 ms", "32-64 ms", "64-128 ms", "128-256 ms", "256+ ms",
}

// diskHistogram buckets disk-read wait times by latency.
type diskHistogram struct {
	counts [histBucketCount]int64
	ticks  [histBucketCount]int64
}

func (h *diskHistogram) add(ela int64) {
	ms := ela / (types.TicksPerSecond / 1000)
	bucket := 0
	for bucket < histBucketCount-1 && ms >= int64(1)<<uint(bucket) {
		bucket++
	}
	h.counts[bucket]++
	h.ticks[bucket] += ela
}

func (h *diskHistogram) totalCount() int64 {
	var sum int64
	for _, c := range h.counts {
		sum += c
	}
	return sum
}

// =============================================================================
// Per-Cursor Summary Rows
// =============================================================================

// cursorSummary is the retained footprint of one reported cursor, used by
// the elapsed-sorted summary section. One small struct per cursor.
type cursorSummary struct {
	Index       uint32
	Number      uint64
	Hash        uint64
	Calls       int64
	CPU         int64
	Elapsed     int64
	WaitTicks   int64
	Unaccounted int64
	Rows        int64
}
