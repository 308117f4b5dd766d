// =============================================================================
// pkg/report/sections.go - Post-Scan Report Sections
// =============================================================================
//
// Everything below the per-cursor blocks: rollups, rankings, and the
// closing accounting of where the session's wall-clock time went. All
// orderings are total (ties broken by name, code, or index) so repeated
// runs over the same record store produce byte-identical reports.
//
// =============================================================================

package report

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/amitxsaroha/trcprof/helpers"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/cf"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/record"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/types"
)

// =============================================================================
// RPC Summary
// =============================================================================

// writeRPCSummary scans the RPC column family. Totals feed the grand
// accounting even when the section itself is skipped for modern traces.
func (r *Reporter) writeRPCSummary() error {
	iter := r.cfg.Store.NewScanIteratorCF(cf.RPC)
	defer iter.Close()

	type rpcStatement struct {
		Text    string
		Binds   int64
		Execs   int64
		CPU     int64
		Elapsed int64
	}
	var (
		statements []*rpcStatement
		current    *rpcStatement
	)
	for iter.SeekToFirst(); iter.Valid(); iter.Next() {
		rpc, err := record.DecodeRPC(iter.Value())
		if err != nil {
			return errors.Wrap(err, "decoding RPC record")
		}
		switch rpc.Kind {
		case record.RPCCall:
			current = &rpcStatement{Text: rpc.Text}
			statements = append(statements, current)
		case record.RPCBind:
			if current != nil {
				current.Binds++
			}
		case record.RPCExec:
			if current == nil {
				current = &rpcStatement{Text: "(RPC EXEC without RPC CALL)"}
				statements = append(statements, current)
			}
			current.Execs++
			current.CPU += rpc.CPU
			current.Elapsed += rpc.Elapsed
			r.rpcCalls++
			r.rpcCPU += rpc.CPU
			r.rpcElapsed += rpc.Elapsed
		}
	}
	if err := iter.Error(); err != nil {
		return errors.Wrap(err, "scanning RPC records")
	}
	if len(statements) == 0 {
		return nil
	}

	r.sectionHeader("REMOTE PROCEDURE CALLS")
	for _, s := range statements {
		r.printf("%s\n", s.Text)
		r.printf("  executions: %s  binds: %s  cpu: %ss  elapsed: %ss\n\n",
			helpers.FormatNumber(s.Execs),
			helpers.FormatNumber(s.Binds),
			helpers.FormatSeconds(s.CPU),
			helpers.FormatSeconds(s.Elapsed))
	}
	return nil
}

// =============================================================================
// Top Statements Per Wait Event
// =============================================================================

// writeTopWaitStatements replays the external sort of per-cursor wait
// contributions. The replay order is event name ascending, waited time
// descending, so for each event the first entries seen are its worst
// statements; everything after the cutoff folds into one residual line
// carrying its share of the event's total waited time.
func (r *Reporter) writeTopWaitStatements() error {
	r.sectionHeader("TOP STATEMENTS PER WAIT EVENT")

	var (
		event      string
		rank       int
		eventTicks int64
		restTicks  int64
		restCount  int64
		restOthers int64
		wroteAny   bool
	)
	flushRest := func() {
		if restOthers > 0 {
			r.printf("  %-10s %18s %12s %12s %8s\n",
				fmt.Sprintf("(%d others)", restOthers), "",
				helpers.FormatNumber(restCount),
				helpers.FormatSeconds(restTicks),
				helpers.FormatPercent(helpers.PercentOf(restTicks, eventTicks), 1))
		}
		restTicks, restCount, restOthers = 0, 0, 0
	}
	err := r.events.Replay(func(e eventEntry) error {
		if e.Event != event || !wroteAny {
			flushRest()
			event = e.Event
			rank = 0
			eventTicks = 0
			wroteAny = true
			r.printf("%s:\n", event)
			r.printf("  %-10s %18s %12s %12s\n", "statement", "hash value", "waits", "waited")
			r.printf("  %-10s %18s %12s %12s\n", dashes(10), dashes(18), dashes(12), dashes(12))
		}
		eventTicks += e.Ticks
		rank++
		if rank > types.TopWaitStatements {
			restOthers++
			restTicks += e.Ticks
			restCount += e.Count
			return nil
		}
		label := fmt.Sprintf("ID #%d", e.Cursor)
		hash := ""
		if !isSentinel(e.Cursor) {
			hash = helpers.FormatNumber(int64(e.Hash))
		}
		r.printf("  %-10s %18s %12s %12s\n", label, hash,
			helpers.FormatNumber(e.Count),
			helpers.FormatSeconds(e.Ticks))
		return nil
	})
	if err != nil {
		return err
	}
	flushRest()
	if !wroteAny {
		r.printf("(no wait events recorded)\n")
	}
	return nil
}

// =============================================================================
// Module / Action Rollups
// =============================================================================

func (r *Reporter) writeModuleActionRollups() {
	r.sectionHeader("ACTIVITY BY MODULE")
	r.writeNamedRollup(r.modules)
	r.sectionHeader("ACTIVITY BY ACTION")
	r.writeNamedRollup(r.actions)
}

func (r *Reporter) writeNamedRollup(m *namedMap) {
	if len(m.byName) == 0 {
		r.printf("(none recorded)\n")
		return
	}
	r.printf("%-40s %9s %10s %10s %10s %12s\n",
		"name", "calls", "cpu", "elapsed", "waits", "waited")
	r.printf("%-40s %9s %10s %10s %10s %12s\n",
		dashes(40), dashes(9), dashes(10), dashes(10), dashes(10), dashes(12))
	for _, name := range m.sortedNames() {
		nt := m.byName[name]
		r.printf("%-40s %9s %10s %10s %10s %12s\n",
			clip(name, 40),
			helpers.FormatNumber(nt.Calls.Count),
			helpers.FormatSeconds(nt.Calls.CPU),
			helpers.FormatSeconds(nt.Calls.Elapsed),
			helpers.FormatNumber(nt.WaitCount),
			helpers.FormatSeconds(nt.WaitTicks))
	}
}

// =============================================================================
// Command-Type Tables
// =============================================================================

func (r *Reporter) writeCommandTypeTables() {
	for split := 0; split < splitCount; split++ {
		r.sectionHeader("ACTIVITY BY COMMAND TYPE: " + splitLabels[split])
		codes := r.commandTypes.sortedCodes(split)
		if len(codes) == 0 {
			r.printf("(none recorded)\n")
			continue
		}
		r.writeNamedHeader()
		var total opTotals
		for _, code := range codes {
			row := r.commandTypes.splits[split][code]
			r.writeNamedRow(fmt.Sprintf("%s (%d)", CommandTypeName(code), code), row)
			total.merge(row)
		}
		r.printf("%-40s %9s %10s %10s %10s %10s %10s\n",
			dashes(40), dashes(9), dashes(10), dashes(10), dashes(10), dashes(10), dashes(10))
		r.writeNamedRow("total", &total)
	}
}

// =============================================================================
// Overall Call Totals
// =============================================================================

func (r *Reporter) writeOverallTotals() {
	r.sectionHeader("OVERALL TOTALS FOR ALL NON-RECURSIVE STATEMENTS")
	user := r.grandCalls[splitUser]
	r.writeCallTable(&user, user.total())

	r.sectionHeader("OVERALL TOTALS FOR ALL RECURSIVE STATEMENTS")
	var recursive callTable
	recursive.merge(&r.grandCalls[splitRecursiveUsr])
	recursive.merge(&r.grandCalls[splitRecursiveSys])
	r.writeCallTable(&recursive, recursive.total())
}

// =============================================================================
// Statement Summary
// =============================================================================

// writeStatementSummary lists every cursor, most expensive first.
func (r *Reporter) writeStatementSummary() {
	r.sectionHeader("STATEMENT SUMMARY (BY ELAPSED TIME)")

	rows := append([]cursorSummary(nil), r.summaries...)
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Elapsed != rows[j].Elapsed {
			return rows[i].Elapsed > rows[j].Elapsed
		}
		return rows[i].Index < rows[j].Index
	})

	r.printf("%-10s %18s %9s %10s %10s %12s %12s %10s\n",
		"statement", "hash value", "calls", "cpu", "elapsed", "waited", "unaccounted", "rows")
	r.printf("%-10s %18s %9s %10s %10s %12s %12s %10s\n",
		dashes(10), dashes(18), dashes(9), dashes(10), dashes(10), dashes(12), dashes(12), dashes(10))
	for _, row := range rows {
		hash := ""
		if !isSentinel(row.Index) {
			hash = helpers.FormatNumber(int64(row.Hash))
		}
		r.printf("%-10s %18s %9s %10s %10s %12s %12s %10s\n",
			fmt.Sprintf("ID #%d", row.Index), hash,
			helpers.FormatNumber(row.Calls),
			helpers.FormatSeconds(row.CPU),
			helpers.FormatSeconds(row.Elapsed),
			helpers.FormatSeconds(row.WaitTicks),
			helpers.FormatSeconds(row.Unaccounted),
			helpers.FormatNumber(row.Rows))
	}
}

// =============================================================================
// Wait Event Summary
// =============================================================================

// waitRow pairs an event with its totals for sorting.
type waitRow struct {
	Event  string
	Totals *waitTotals
}

func (r *Reporter) splitWaitRows() (nonIdle, idle []waitRow) {
	for _, event := range r.grandWaits.sortedNames() {
		row := waitRow{Event: event, Totals: r.grandWaits.byName[event]}
		if r.idle.IsIdle(event) {
			idle = append(idle, row)
		} else {
			nonIdle = append(nonIdle, row)
		}
	}
	byTicks := func(rows []waitRow) {
		sort.SliceStable(rows, func(i, j int) bool {
			if rows[i].Totals.Ticks != rows[j].Totals.Ticks {
				return rows[i].Totals.Ticks > rows[j].Totals.Ticks
			}
			return rows[i].Event < rows[j].Event
		})
	}
	byTicks(nonIdle)
	byTicks(idle)
	return nonIdle, idle
}

func (r *Reporter) writeWaitSummary() {
	nonIdle, idle := r.splitWaitRows()

	r.sectionHeader("WAIT EVENT SUMMARY")
	writeRows := func(title string, rows []waitRow) {
		r.printf("%s:\n", title)
		if len(rows) == 0 {
			r.printf("  (none)\n\n")
			return
		}
		r.printf("  %-44s %10s %12s %12s\n", "event", "waits", "max. wait", "waited")
		r.printf("  %-44s %10s %12s %12s\n", dashes(44), dashes(10), dashes(12), dashes(12))
		for _, row := range rows {
			r.printf("  %-44s %10s %12s %12s\n",
				clip(row.Event, 44),
				helpers.FormatNumber(row.Totals.Count),
				helpers.FormatSeconds(row.Totals.Max),
				helpers.FormatSeconds(row.Totals.Ticks))
		}
		r.printf("\n")
	}
	writeRows("Non-idle wait events", nonIdle)
	writeRows("Idle wait events", idle)

	r.writeObjectWaits()
}

// writeObjectWaits breaks object-attributed waits down by obj#, capped at
// the ten busiest objects per event.
func (r *Reporter) writeObjectWaits() {
	if len(r.objWaits) == 0 {
		return
	}
	const perEvent = 10

	events := make([]string, 0, len(r.objWaits))
	for event := range r.objWaits {
		events = append(events, event)
	}
	sort.Strings(events)

	r.printf("Waits by object:\n")
	for _, event := range events {
		byObj := r.objWaits[event]
		type objRow struct {
			Obj    int64
			Totals *waitTotals
		}
		rows := make([]objRow, 0, len(byObj))
		for obj, wt := range byObj {
			rows = append(rows, objRow{Obj: obj, Totals: wt})
		}
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].Totals.Ticks != rows[j].Totals.Ticks {
				return rows[i].Totals.Ticks > rows[j].Totals.Ticks
			}
			return rows[i].Obj < rows[j].Obj
		})
		if len(rows) > perEvent {
			rows = rows[:perEvent]
		}
		r.printf("  %s:\n", event)
		for _, row := range rows {
			r.printf("    obj# %-12d %10s waits %12ss\n", row.Obj,
				helpers.FormatNumber(row.Totals.Count),
				helpers.FormatSeconds(row.Totals.Ticks))
		}
	}
	r.printf("\n")
}

// =============================================================================
// Timing Analysis
// =============================================================================

// contributor is one line of the timing analysis: a place session time
// was spent.
type contributor struct {
	Name  string
	Ticks int64
}

// totalCPU is the exact CPU accounting used by both the timing analysis
// and the grand totals, so the two sections always agree.
func (r *Reporter) totalCPU() int64 {
	var cpu int64
	for split := 0; split < splitCount; split++ {
		t := r.grandCalls[split].total()
		cpu += t.CPU
	}
	return cpu + r.rpcCPU
}

// writeTimingAnalysis accounts the session's wall-clock time to CPU per
// call type, each wait event, the timing gap error, and unaccounted-for
// time, largest contributor first.
func (r *Reporter) writeTimingAnalysis() {
	r.sectionHeader("TIMING ANALYSIS")

	var contributors []contributor
	for op := record.OpKind(1); int(op) < record.OpKindCount; op++ {
		var cpu int64
		for split := 0; split < splitCount; split++ {
			cpu += r.grandCalls[split].ops[op].CPU
		}
		if cpu > 0 {
			contributors = append(contributors, contributor{Name: "CPU: " + op.Label(), Ticks: cpu})
		}
	}
	if r.rpcCPU > 0 {
		contributors = append(contributors, contributor{Name: "CPU: RPC EXEC", Ticks: r.rpcCPU})
	}
	if r.gapTicks > 0 {
		contributors = append(contributors, contributor{Name: "timing gap error", Ticks: r.gapTicks})
	}
	if r.unaccounted > 0 {
		contributors = append(contributors, contributor{Name: "unaccounted-for time", Ticks: r.unaccounted})
	}
	for event, wt := range r.grandWaits.byName {
		if wt.Ticks > 0 {
			contributors = append(contributors, contributor{Name: "wait: " + event, Ticks: wt.Ticks})
		}
	}
	sort.SliceStable(contributors, func(i, j int) bool {
		if contributors[i].Ticks != contributors[j].Ticks {
			return contributors[i].Ticks > contributors[j].Ticks
		}
		return contributors[i].Name < contributors[j].Name
	})

	wall := r.cfg.Summary.WallClock()
	denom := wall
	if denom <= 0 {
		for _, c := range contributors {
			denom += c.Ticks
		}
	}

	r.printf("%-50s %12s %8s %8s\n", "component", "seconds", "pct", "cum pct")
	r.printf("%-50s %12s %8s %8s\n", dashes(50), dashes(12), dashes(8), dashes(8))
	var cum float64
	for _, c := range contributors {
		pct := helpers.PercentOf(c.Ticks, denom)
		cum += pct
		r.printf("%-50s %12s %8s %8s\n",
			clip(c.Name, 50),
			helpers.FormatSeconds(c.Ticks),
			helpers.FormatPercent(pct, 1),
			helpers.FormatPercent(cum, 1))
	}
	r.printf("%-50s %12s\n", "wall clock", helpers.FormatSeconds(wall))

	if wall > 0 {
		if pct := helpers.PercentOf(r.gapTicks, wall); pct > types.GapErrorPercent {
			r.printf("\nNote: the accumulated timing gap error is %s of wall-clock time.\n",
				helpers.FormatPercent(pct, 1))
			r.printf("Timestamps in this trace jump backward or skip forward; per-call elapsed\n")
			r.printf("figures should be read as approximate.\n")
		}
		if pct := helpers.PercentOf(r.unaccounted, wall); pct > types.UnaccountedPercent {
			r.printf("\nNote: unaccounted-for time is %s of wall-clock time.\n",
				helpers.FormatPercent(pct, 1))
			r.printf("The session spent this time neither on CPU nor in an instrumented wait;\n")
			r.printf("typical causes are CPU run-queue delay, paging, or uninstrumented code paths.\n")
		}
	}
}

// =============================================================================
// Block Revisits
// =============================================================================

// writeBlockRevisits lists the data blocks read from disk more than once.
// Re-reads of the same block are cache misses that a larger buffer cache
// or better-clustered access could avoid.
func (r *Reporter) writeBlockRevisits() error {
	top, err := r.blocks.Top(TopRevisitedBlocks)
	if err != nil {
		return err
	}
	r.sectionHeader("MOST RE-READ DISK BLOCKS")
	if len(top) == 0 {
		r.printf("(no block was physically read more than once)\n")
		return nil
	}
	r.printf("%10s %12s %10s %12s\n", "file#", "block#", "reads", "waited")
	r.printf("%10s %12s %10s %12s\n", dashes(10), dashes(12), dashes(10), dashes(12))
	for _, b := range top {
		r.printf("%10d %12d %10s %12s\n", b.File, b.Block,
			helpers.FormatNumber(b.Count),
			helpers.FormatSeconds(b.Ticks))
	}
	return nil
}

// =============================================================================
// Disk-Read Latency Histogram
// =============================================================================

func (r *Reporter) writeDiskHistogram() {
	total := r.histogram.totalCount()
	if total == 0 {
		return
	}
	r.sectionHeader("DISK READ LATENCY HISTOGRAM")
	r.printf("%-12s %12s %8s %12s\n", "latency", "reads", "pct", "waited")
	r.printf("%-12s %12s %8s %12s\n", dashes(12), dashes(12), dashes(8), dashes(12))
	for i := 0; i < histBucketCount; i++ {
		if r.histogram.counts[i] == 0 {
			continue
		}
		r.printf("%-12s %12s %8s %12s\n",
			histBucketLabels[i],
			helpers.FormatNumber(r.histogram.counts[i]),
			helpers.FormatPercent(helpers.PercentOf(r.histogram.counts[i], total), 1),
			helpers.FormatSeconds(r.histogram.ticks[i]))
	}
}

// =============================================================================
// Grand Totals
// =============================================================================

func (r *Reporter) writeGrandTotals() {
	nonIdle, idle := r.splitWaitRows()
	var nonIdleTicks, idleTicks, tableScanTicks int64
	for _, row := range nonIdle {
		nonIdleTicks += row.Totals.Ticks
		if tableScanEvents[baseEventName(row.Event)] {
			tableScanTicks += row.Totals.Ticks
		}
	}
	for _, row := range idle {
		idleTicks += row.Totals.Ticks
	}

	wall := r.cfg.Summary.WallClock()
	cpu := r.totalCPU()

	r.sectionHeader("GRAND TOTALS")
	r.printf("Statements analyzed:   %s\n", helpers.FormatNumber(r.statements))
	r.printf("Commits:               %s   Rollbacks: %s   (read-only: %s)\n",
		helpers.FormatNumber(r.commits),
		helpers.FormatNumber(r.rollbacks),
		helpers.FormatNumber(r.readOnly))
	if len(r.errorCounts) > 0 {
		codes := make([]int64, 0, len(r.errorCounts))
		for code := range r.errorCounts {
			codes = append(codes, code)
		}
		sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
		r.printf("Errors:\n")
		for _, code := range codes {
			r.printf("  ORA-%05d: %s occurrence(s)\n", code, helpers.FormatNumber(r.errorCounts[code]))
		}
	}
	r.printf("\n")

	line := func(name string, ticks int64) {
		pct := ""
		if wall > 0 {
			pct = helpers.FormatPercent(helpers.PercentOf(ticks, wall), 1)
		}
		r.printf("%-28s %12ss %8s\n", name, helpers.FormatSeconds(ticks), pct)
	}
	r.printf("%-28s %13s %8s\n", "", "seconds", "pct")
	r.printf("%-28s %13s %8s\n", dashes(28), dashes(13), dashes(8))
	line("wall clock", wall)
	line("CPU", cpu)
	line("non-idle wait", nonIdleTicks)
	line("idle wait", idleTicks)
	line("table-scan wait", tableScanTicks)
	line("timing gap error", r.gapTicks)
	line("unaccounted-for", r.unaccounted)
	if r.cfg.Summary.PendingFoldedWaits > 0 {
		r.printf("\nNote: %s wait(s) totaling %ss never matched a cursor and are counted\n",
			helpers.FormatNumber(r.cfg.Summary.PendingFoldedWaits),
			helpers.FormatSeconds(r.cfg.Summary.PendingFoldedTicks))
		r.printf("under ID #%d.\n", types.CursorUnaccountedIndex)
	}
}
