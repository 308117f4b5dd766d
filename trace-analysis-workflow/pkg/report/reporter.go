// =============================================================================
// pkg/report/reporter.go - Report Phase Core
// =============================================================================
//
// The report phase is one ordered scan over the records column family.
// The key layout guarantees the scan delivers records grouped by cursor
// index, and within one cursor grouped by kind in section order, so the
// reporter only ever holds ONE cursor's working set in memory. When the
// cursor index changes, the finished block is rendered, folded into the
// grand accumulators, and released.
//
// SECTION ORDER OF THE FINISHED REPORT:
//
//	1.  Banner (trace identity, release, time unit)
//	2.  Per-cursor statement blocks, cursor index order
//	3.  RPC summary (legacy traces only)
//	4.  Top statements per wait event
//	5.  Module and action rollups
//	6.  Command-type tables (user / recursive user / recursive SYS)
//	7.  Overall call totals (non-recursive vs recursive)
//	8.  Statement summary, elapsed time descending
//	9.  Wait event summary (non-idle, idle, by object)
//	10. Timing analysis (where did the time go)
//	11. Most re-read disk blocks
//	12. Disk-read latency histogram
//	13. Grand totals
//
// =============================================================================

package report

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/amitxsaroha/trcprof/helpers"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/cf"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/interfaces"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/record"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/types"
)

// =============================================================================
// Configuration
// =============================================================================

// Config carries everything the report phase needs from the workflow.
type Config struct {
	// Store is the populated record store (ingest must have completed).
	Store interfaces.RecordStore

	// Summary is the end-of-ingest run summary from the meta store.
	Summary types.RunSummary

	// TracePath is the trace file the workspace was built from, shown in
	// the banner.
	TracePath string

	// Out receives the rendered report.
	Out io.Writer

	// TmpDir is scratch space for the external-sort collectors.
	TmpDir string

	// LineNumbers annotates statements and errors with their trace file
	// line numbers.
	LineNumbers bool

	// IdleEvents extends the built-in idle wait event list.
	IdleEvents []string

	Logger interfaces.Logger
}

// =============================================================================
// Reporter
// =============================================================================

// Reporter aggregates the record store into the final text report.
type Reporter struct {
	cfg  Config
	out  *bufio.Writer
	idle idleSet

	cursors map[uint32]record.Cursor

	// Grand accumulators, bounded by distinct names rather than trace size.
	grandCalls   [splitCount]callTable
	grandWaits   *waitMap
	objWaits     map[string]map[int64]*waitTotals
	modules      *namedMap
	actions      *namedMap
	commandTypes *commandTypeTotals
	histogram    diskHistogram
	summaries    []cursorSummary
	gapTicks     int64
	unaccounted  int64
	errorCounts  map[int64]int64
	commits      int64
	rollbacks    int64
	readOnly     int64

	// Legacy RPC totals, filled by the RPC summary section.
	rpcCalls   int64
	rpcCPU     int64
	rpcElapsed int64

	events *eventRanker
	blocks *blockRanker

	statements int64 // cursor blocks rendered, sentinels excluded
}

// NewReporter builds a Reporter. Close must be called even when Run fails.
func NewReporter(cfg Config) *Reporter {
	return &Reporter{
		cfg:          cfg,
		out:          bufio.NewWriterSize(cfg.Out, 256*1024),
		idle:         newIdleSet(cfg.IdleEvents),
		cursors:      make(map[uint32]record.Cursor),
		grandWaits:   newWaitMap(),
		objWaits:     make(map[string]map[int64]*waitTotals),
		modules:      newNamedMap(),
		actions:      newNamedMap(),
		commandTypes: newCommandTypeTotals(),
		errorCounts:  make(map[int64]int64),
		events:       newEventRanker(cfg.TmpDir),
		blocks:       newBlockRanker(cfg.TmpDir),
	}
}

// Close releases the external-sort collectors and their spill files.
func (r *Reporter) Close() {
	r.events.Close()
	r.blocks.Close()
}

// Run generates the full report. The output is fully deterministic for a
// given record store: ties are broken by name or index everywhere.
func (r *Reporter) Run() error {
	if err := r.loadCursors(); err != nil {
		return err
	}
	r.writeBanner()

	if err := r.scanRecords(); err != nil {
		return err
	}

	if err := r.writeRPCSummary(); err != nil {
		return err
	}
	if err := r.writeTopWaitStatements(); err != nil {
		return err
	}
	r.writeModuleActionRollups()
	r.writeCommandTypeTables()
	r.writeOverallTotals()
	r.writeStatementSummary()
	r.writeWaitSummary()
	r.writeTimingAnalysis()
	if err := r.writeBlockRevisits(); err != nil {
		return err
	}
	r.writeDiskHistogram()
	r.writeGrandTotals()

	if err := r.out.Flush(); err != nil {
		return errors.Wrap(err, "flushing report output")
	}
	if r.cfg.Logger != nil {
		r.cfg.Logger.Info("Report complete: %s statements, %s distinct wait events",
			helpers.FormatNumber(r.statements),
			helpers.FormatNumber(int64(len(r.grandWaits.byName))))
	}
	return nil
}

// loadCursors reads the cursor-descriptor column family into a table.
// Descriptor count is cursor count, small by construction.
func (r *Reporter) loadCursors() error {
	iter := r.cfg.Store.NewScanIteratorCF(cf.Cursors)
	defer iter.Close()
	for iter.SeekToFirst(); iter.Valid(); iter.Next() {
		desc, err := record.DecodeCursor(iter.Value())
		if err != nil {
			return errors.Wrap(err, "decoding cursor descriptor")
		}
		r.cursors[desc.Index] = desc
	}
	if err := iter.Error(); err != nil {
		return errors.Wrap(err, "scanning cursor descriptors")
	}
	return nil
}

// =============================================================================
// Record Scan
// =============================================================================

// cursorAccum is the working set for the cursor currently being consumed.
type cursorAccum struct {
	Index uint32
	Desc  record.Cursor

	sqlLines   []string
	calls      callTable
	waits      *waitMap
	planSteps  []record.Plan
	planSets   int
	lastPlanID int64
	errLines   []errOccurrence
	notes      []string
}

type errOccurrence struct {
	Code int64
	Line uint32
}

func (r *Reporter) newCursorAccum(idx uint32) *cursorAccum {
	desc, ok := r.cursors[idx]
	if !ok {
		desc = record.Cursor{Index: idx}
	}
	return &cursorAccum{Index: idx, Desc: desc, waits: newWaitMap()}
}

// scanRecords performs the single ordered pass over the records column
// family, rendering each cursor block as its records run out.
func (r *Reporter) scanRecords() error {
	iter := r.cfg.Store.NewScanIteratorCF(cf.Records)
	defer iter.Close()

	var cur *cursorAccum
	for iter.SeekToFirst(); iter.Valid(); iter.Next() {
		idx, kind, line, err := types.SplitRecordKey(iter.Key())
		if err != nil {
			return errors.Wrap(err, "scanning records")
		}
		if cur == nil || cur.Index != idx {
			if cur != nil {
				if err := r.flushCursor(cur); err != nil {
					return err
				}
			}
			cur = r.newCursorAccum(idx)
		}
		if err := r.consume(cur, record.Kind(kind), line, iter.Value()); err != nil {
			return err
		}
	}
	if err := iter.Error(); err != nil {
		return errors.Wrap(err, "scanning records")
	}
	if cur != nil {
		if err := r.flushCursor(cur); err != nil {
			return err
		}
	}
	return nil
}

// consume folds one record into the current cursor's working set and the
// grand accumulators.
func (r *Reporter) consume(cur *cursorAccum, kind record.Kind, line uint32, value []byte) error {
	switch kind {
	case record.KindSQLText:
		m, err := record.DecodeMarker(value)
		if err != nil {
			return errors.Wrapf(err, "cursor %d line %d", cur.Index, line)
		}
		cur.sqlLines = append(cur.sqlLines, m.Text)

	case record.KindCall:
		c, err := record.DecodeCall(value)
		if err != nil {
			return errors.Wrapf(err, "cursor %d line %d", cur.Index, line)
		}
		cur.calls.add(&c)
		split := commandSplit(c.Depth, cur.Desc.UID)
		r.grandCalls[split].ops[c.Op].add(&c)
		r.commandTypes.add(split, cur.Desc.OCT, &c)
		r.gapTicks += c.Gap
		mod := callName(c.Module, cur.Desc.Module)
		mt := r.modules.get(mod)
		mt.Calls.add(&c)
		act := callName(c.Action, cur.Desc.Action)
		at := r.actions.get(act)
		at.Calls.add(&c)

	case record.KindWait:
		w, err := record.DecodeWait(value)
		if err != nil {
			return errors.Wrapf(err, "cursor %d line %d", cur.Index, line)
		}
		cur.waits.add(w.Event, w.Elapsed)
		r.grandWaits.add(w.Event, w.Elapsed)
		if w.Obj > 0 {
			byObj, ok := r.objWaits[w.Event]
			if !ok {
				byObj = make(map[int64]*waitTotals)
				r.objWaits[w.Event] = byObj
			}
			wt, ok := byObj[w.Obj]
			if !ok {
				wt = &waitTotals{}
				byObj[w.Obj] = wt
			}
			wt.add(w.Elapsed)
		}
		mod := callName(w.Module, cur.Desc.Module)
		mt := r.modules.get(mod)
		mt.WaitTicks += w.Elapsed
		mt.WaitCount++
		act := callName(w.Action, cur.Desc.Action)
		at := r.actions.get(act)
		at.WaitTicks += w.Elapsed
		at.WaitCount++
		base := baseEventName(w.Event)
		if _, isDisk := diskReadEvents[base]; isDisk {
			r.histogram.add(w.Elapsed)
		}
		if file, block, ok := diskReadParams(base, w.P1, w.P2); ok {
			if err := r.blocks.Collect(file, block, w.Elapsed); err != nil {
				return errors.Wrap(err, "collecting block revisit")
			}
		}

	case record.KindPlan:
		p, err := record.DecodePlan(value)
		if err != nil {
			return errors.Wrapf(err, "cursor %d line %d", cur.Index, line)
		}
		if cur.planSets == 0 || p.ID <= cur.lastPlanID {
			cur.planSets++
		}
		cur.lastPlanID = p.ID
		if cur.planSets == 1 {
			cur.planSteps = append(cur.planSteps, p)
		}

	case record.KindError:
		e, err := record.DecodeOraError(value)
		if err != nil {
			return errors.Wrapf(err, "cursor %d line %d", cur.Index, line)
		}
		cur.errLines = append(cur.errLines, errOccurrence{Code: e.Code, Line: line})
		r.errorCounts[e.Code]++

	case record.KindTxn:
		t, err := record.DecodeTxn(value)
		if err != nil {
			return errors.Wrapf(err, "cursor %d line %d", cur.Index, line)
		}
		if t.Rollback {
			r.rollbacks++
		} else {
			r.commits++
		}
		if t.ReadOnly {
			r.readOnly++
		}

	case record.KindModule:
		m, err := record.DecodeMarker(value)
		if err != nil {
			return errors.Wrapf(err, "cursor %d line %d", cur.Index, line)
		}
		cur.notes = append(cur.notes, "Module set to: "+m.Text)

	case record.KindAction:
		m, err := record.DecodeMarker(value)
		if err != nil {
			return errors.Wrapf(err, "cursor %d line %d", cur.Index, line)
		}
		cur.notes = append(cur.notes, "Action set to: "+m.Text)

	default:
		// Unknown kinds from a newer writer are skipped, not fatal.
		if r.cfg.Logger != nil {
			r.cfg.Logger.Verbose("Skipping unknown record kind %d (cursor %d, line %d)", kind, cur.Index, line)
		}
	}
	return nil
}

// callName picks the instrumentation name for a call or wait, falling
// back to the cursor's parse-time name.
func callName(own, cursor string) string {
	if own != "" {
		return own
	}
	if cursor != "" {
		return cursor
	}
	return "(unattributed)"
}

// =============================================================================
// Cursor Flush
// =============================================================================

// flushCursor renders the finished cursor block and folds its derived
// totals into the summary structures.
func (r *Reporter) flushCursor(cur *cursorAccum) error {
	total := cur.calls.total()
	waitTicks := cur.waits.total()

	// Unaccounted-for time: elapsed not explained by CPU or waits.
	// Values inside the rounding-noise threshold are treated as zero.
	un := total.Elapsed - total.CPU - waitTicks
	if un < types.GapNoiseTicks {
		un = 0
	}
	r.unaccounted += un

	r.renderCursorBlock(cur, total, waitTicks, un)

	for _, event := range cur.waits.order {
		wt := cur.waits.byName[event]
		if err := r.events.Collect(event, cur.Index, cur.Desc.Hash, wt.Ticks, wt.Count); err != nil {
			return errors.Wrap(err, "collecting wait ranking")
		}
	}

	r.summaries = append(r.summaries, cursorSummary{
		Index:       cur.Index,
		Number:      cur.Desc.Number,
		Hash:        cur.Desc.Hash,
		Calls:       total.Count,
		CPU:         total.CPU,
		Elapsed:     total.Elapsed,
		WaitTicks:   waitTicks,
		Unaccounted: un,
		Rows:        total.Rows,
	})
	if !isSentinel(cur.Index) {
		r.statements++
	}
	return nil
}

func isSentinel(idx uint32) bool {
	return idx == types.CursorZeroIndex || idx == types.CursorUnaccountedIndex
}

// =============================================================================
// Cursor Block Rendering
// =============================================================================

func (r *Reporter) renderCursorBlock(cur *cursorAccum, total opTotals, waitTicks, un int64) {
	r.ruler()

	switch cur.Index {
	case types.CursorZeroIndex:
		r.printf("ID #0 (Cursor 0: background and cursorless activity):\n")
	case types.CursorUnaccountedIndex:
		r.printf("ID #%d (activity for cursors never introduced in this trace):\n", types.CursorUnaccountedIndex)
	default:
		r.printf("ID #%d, Hash Value %d (Cursor %d):\n", cur.Index, cur.Desc.Hash, cur.Desc.Number)
	}
	if cur.planSets > 1 {
		r.printf("(Multiple Plans For This Cursor)\n")
	}
	if cur.Desc.SQLID != "" {
		r.printf("SQL ID: %s\n", cur.Desc.SQLID)
	}
	if cur.Desc.Module != "" {
		r.printf("Module: %s\n", cur.Desc.Module)
	}
	if cur.Desc.Action != "" {
		r.printf("Action: %s\n", cur.Desc.Action)
	}
	if ct := cur.Desc.OCT; ct != 0 {
		r.printf("Command Type: %s (%d)\n", CommandTypeName(ct), ct)
	}
	if cur.Desc.Depth > 0 {
		r.printf("Recursive Depth: %d (parsing user id %d)\n", cur.Desc.Depth, cur.Desc.UID)
	}
	if cur.Desc.ErrCode != 0 {
		r.printf("PARSE ERROR: ORA-%05d\n", cur.Desc.ErrCode)
	}
	if r.cfg.LineNumbers && cur.Desc.ParseLine > 0 {
		r.printf("First seen at trace line %d\n", cur.Desc.ParseLine)
	}

	if len(cur.sqlLines) > 0 {
		r.printf("\n")
		for _, text := range cur.sqlLines {
			r.printf("%s\n", text)
		}
	}

	r.renderBinds(cur.Index)

	if total.Count > 0 {
		r.printf("\n")
		r.writeCallTable(&cur.calls, total)
		if total.Misses > 0 {
			r.printf("\nMisses in library cache during parse: %d\n", total.Misses)
		}
	}

	if len(cur.waits.byName) > 0 {
		r.printf("\nElapsed times include waiting on following events:\n")
		r.printf("  %-40s %10s %12s %12s\n", "Event waited on", "Times", "Max. Wait", "Total Waited")
		r.printf("  %-40s %10s %12s %12s\n", dashes(40), dashes(10), dashes(12), dashes(12))
		for _, event := range cur.waits.sortedNames() {
			wt := cur.waits.byName[event]
			r.printf("  %-40s %10s %12s %12s\n", event,
				helpers.FormatNumber(wt.Count),
				helpers.FormatSeconds(wt.Max),
				helpers.FormatSeconds(wt.Ticks))
		}
	}

	if len(cur.planSteps) > 0 {
		r.renderPlan(cur.planSteps)
	}

	if len(cur.errLines) > 0 {
		r.printf("\nErrors during execution:\n")
		for _, e := range cur.errLines {
			if r.cfg.LineNumbers {
				r.printf("  ORA-%05d (trace line %d)\n", e.Code, e.Line)
			} else {
				r.printf("  ORA-%05d\n", e.Code)
			}
		}
	}

	for _, note := range cur.notes {
		r.printf("%s\n", note)
	}

	if un > 0 && total.Elapsed > 0 {
		pct := helpers.PercentOf(un, total.Elapsed)
		if pct > types.UnaccountedPercent {
			r.printf("\nNote: %s of unaccounted-for time (%s of elapsed time for this statement).\n",
				helpers.FormatSeconds(un)+"s", helpers.FormatPercent(pct, 1))
		}
	}
	if waitTicks == 0 && total.Count == 0 && len(cur.sqlLines) == 0 {
		r.printf("(no activity recorded)\n")
	}
	r.printf("\n")
}

// renderBinds prefix-scans the bind column family for this cursor.
func (r *Reporter) renderBinds(idx uint32) {
	iter := r.cfg.Store.NewIteratorCF(cf.Binds)
	defer iter.Close()

	prefix := types.BindKeyPrefix(idx)
	wrote := false
	for iter.Seek(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if !wrote {
			r.printf("\nBind values:\n")
			wrote = true
		}
		r.printf("  %s\n", string(iter.Value()))
	}
}

// renderPlan prints the first captured row-source plan, indented by the
// parent chain.
func (r *Reporter) renderPlan(steps []record.Plan) {
	depth := map[int64]int{}
	r.printf("\n%8s  Row Source Operation\n", "Rows")
	r.printf("%8s  %s\n", dashes(8), dashes(60))
	for _, p := range steps {
		d := 0
		if pd, ok := depth[p.Parent]; ok {
			d = pd + 1
		}
		depth[p.ID] = d

		detail := fmt.Sprintf("cr=%d pr=%d pw=%d time=%d us", p.CR, p.PR, p.PW, p.Time)
		if p.Cost > 0 {
			detail += fmt.Sprintf(" cost=%d size=%d card=%d", p.Cost, p.Size, p.Card)
		}
		op := p.Op
		if p.PartStart != "" || p.PartStop != "" {
			op += fmt.Sprintf(" PARTITION: %s %s", p.PartStart, p.PartStop)
		}
		r.printf("%8s  %s%s (%s)\n", helpers.FormatNumber(p.Rows), indent(d), op, detail)
	}
}

// =============================================================================
// Output Primitives
// =============================================================================

func (r *Reporter) printf(format string, args ...interface{}) {
	fmt.Fprintf(r.out, format, args...)
}

func (r *Reporter) ruler() {
	r.printf("%s\n", dashes(100))
}

func (r *Reporter) sectionHeader(title string) {
	r.printf("\n%s\n%s\n%s\n\n", equals(100), title, equals(100))
}

func dashes(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '-'
	}
	return string(b)
}

func equals(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '='
	}
	return string(b)
}

func indent(depth int) string {
	b := make([]byte, depth)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}

// writeBanner opens the report with the trace identity and normalization
// facts the rest of the report depends on.
func (r *Reporter) writeBanner() {
	s := r.cfg.Summary
	r.printf("%s\n", equals(100))
	r.printf("Trace Analysis Report\n")
	r.printf("%s\n\n", equals(100))
	r.printf("Trace file:        %s\n", r.cfg.TracePath)
	if s.ServiceName != "" {
		r.printf("Service name:      %s\n", s.ServiceName)
	}
	if s.SessionDate != "" {
		r.printf("Session started:   %s\n", s.SessionDate)
	}
	if s.OracleRelease > 0 {
		r.printf("Oracle release:    %d\n", s.OracleRelease)
	}
	unit := "microseconds"
	if s.Divisor == types.DivisorCentiseconds {
		unit = "centiseconds (scaled to microseconds)"
	}
	r.printf("Trace time unit:   %s\n", unit)
	r.printf("Trace lines:       %s\n", helpers.FormatNumber(s.LineCount))
	r.printf("Records:           %s\n", helpers.FormatNumber(s.RecordCount))
	r.printf("Wall clock:        %ss\n", helpers.FormatSeconds(s.WallClock()))
	if s.DuplicateHeaders > 0 {
		r.printf("Note: %d additional trace header(s) found; the file appears to be appended-to.\n", s.DuplicateHeaders)
	}
	if s.Truncated {
		r.printf("Note: the trace file was TRUNCATED by a dump file size limit; totals understate the session.\n")
	}
	if s.UnprocessedLines > 0 {
		r.printf("Note: %s line(s) matched no known trace pattern and were ignored.\n",
			helpers.FormatNumber(s.UnprocessedLines))
	}
	r.printf("\n")
}
