// =============================================================================
// pkg/report/tables.go - Call Table Rendering
// =============================================================================

package report

import (
	"github.com/amitxsaroha/trcprof/helpers"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/record"
)

// writeCallTable prints the classic per-operation call table. Rows with a
// zero count are skipped except for the big three, which always appear.
func (r *Reporter) writeCallTable(ct *callTable, total opTotals) {
	r.printf("%-12s %9s %10s %10s %10s %10s %10s %10s\n",
		"call", "count", "cpu", "elapsed", "disk", "query", "current", "rows")
	r.printf("%-12s %9s %10s %10s %10s %10s %10s %10s\n",
		dashes(12), dashes(9), dashes(10), dashes(10), dashes(10), dashes(10), dashes(10), dashes(10))
	for op := record.OpKind(1); int(op) < record.OpKindCount; op++ {
		row := &ct.ops[op]
		if row.Count == 0 && op != record.OpParse && op != record.OpExec && op != record.OpFetch {
			continue
		}
		r.writeCallRow(op.Label(), row)
	}
	r.printf("%-12s %9s %10s %10s %10s %10s %10s %10s\n",
		dashes(12), dashes(9), dashes(10), dashes(10), dashes(10), dashes(10), dashes(10), dashes(10))
	r.writeCallRow("total", &total)
}

func (r *Reporter) writeCallRow(label string, row *opTotals) {
	r.printf("%-12s %9s %10s %10s %10s %10s %10s %10s\n",
		label,
		helpers.FormatNumber(row.Count),
		helpers.FormatSeconds(row.CPU),
		helpers.FormatSeconds(row.Elapsed),
		helpers.FormatNumber(row.Disk),
		helpers.FormatNumber(row.Query),
		helpers.FormatNumber(row.Current),
		helpers.FormatNumber(row.Rows))
}

// writeNamedRow prints one row of a name-keyed rollup table (command
// types, modules, actions).
func (r *Reporter) writeNamedRow(name string, row *opTotals) {
	r.printf("%-40s %9s %10s %10s %10s %10s %10s\n",
		clip(name, 40),
		helpers.FormatNumber(row.Count),
		helpers.FormatSeconds(row.CPU),
		helpers.FormatSeconds(row.Elapsed),
		helpers.FormatNumber(row.Disk),
		helpers.FormatNumber(row.Query),
		helpers.FormatNumber(row.Rows))
}

func (r *Reporter) writeNamedHeader() {
	r.printf("%-40s %9s %10s %10s %10s %10s %10s\n",
		"name", "count", "cpu", "elapsed", "disk", "query", "rows")
	r.printf("%-40s %9s %10s %10s %10s %10s %10s\n",
		dashes(40), dashes(9), dashes(10), dashes(10), dashes(10), dashes(10), dashes(10))
}

// clip shortens a name to fit its column, marking the cut with "..".
func clip(s string, width int) string {
	if len(s) <= width {
		return s
	}
	if width <= 2 {
		return s[:width]
	}
	return s[:width-2] + ".."
}
