// =============================================================================
// pkg/report/vocab.go - Oracle Vocabulary Tables
// =============================================================================
//
// Static lookup tables the report sections draw on: command-type names,
// idle wait events, table-scan (multiblock read) events and the events
// whose parameters identify a (file#, block#) disk read.
//
// =============================================================================

package report

import "fmt"

// commandTypeNames maps Oracle command type codes (the oct= field of a
// cursor header) to their names. Codes missing from the table print as
// "COMMAND TYPE <n>".
var commandTypeNames = map[int64]string{
	0:   "UNKNOWN",
	1:   "CREATE TABLE",
	2:   "INSERT",
	3:   "SELECT",
	6:   "UPDATE",
	7:   "DELETE",
	9:   "CREATE INDEX",
	10:  "DROP INDEX",
	11:  "ALTER INDEX",
	12:  "DROP TABLE",
	15:  "ALTER TABLE",
	24:  "CREATE SYNONYM",
	26:  "LOCK TABLE",
	42:  "ALTER SESSION",
	44:  "COMMIT",
	45:  "ROLLBACK",
	46:  "SAVEPOINT",
	47:  "PL/SQL EXECUTE",
	48:  "SET TRANSACTION",
	49:  "ALTER SYSTEM",
	62:  "ANALYZE TABLE",
	63:  "ANALYZE INDEX",
	71:  "CREATE MATERIALIZED VIEW LOG",
	74:  "CREATE MATERIALIZED VIEW",
	85:  "TRUNCATE TABLE",
	170: "CALL METHOD",
	189: "MERGE",
}

// CommandTypeName returns the display name for an Oracle command type code.
func CommandTypeName(oct int64) string {
	if name, ok := commandTypeNames[oct]; ok {
		return name
	}
	return fmt.Sprintf("COMMAND TYPE %d", oct)
}

// defaultIdleEvents are wait events that represent a session waiting for
// work rather than waiting on a resource. Idle time is reported separately
// so it does not inflate the response-time analysis. The set can be
// extended through the [idle] block of the TOML config.
var defaultIdleEvents = map[string]bool{
	"SQL*Net message from client":     true,
	"SQL*Net message from dblink":     true,
	"SQL*Net more data from client":   true,
	"pmon timer":                      true,
	"smon timer":                      true,
	"rdbms ipc message":               true,
	"pipe get":                        true,
	"client message":                  true,
	"virtual circuit status":          true,
	"dispatcher timer":                true,
	"lock manager wait for remote message": true,
	"wakeup time manager":             true,
	"jobq slave wait":                 true,
	"single-task message":             true,
	"PX Idle Wait":                    true,
	"PX Deq: Execution Msg":           true,
	"Streams AQ: waiting for messages in the queue": true,
	"Streams AQ: waiting for time management or cleanup tasks": true,
	"watchdog main loop": true,
	"LGWR main loop":     true,
}

// tableScanEvents are the multiblock-read waits attributed to full table
// scans in the final summary's "table scan" column.
var tableScanEvents = map[string]bool{
	"db file scattered read": true,
	"direct path read":       true,
	"direct path read temp":  true,
}

// diskReadEvents are single/multi block physical reads whose elapsed time
// feeds the disk-read latency histogram, and whose p1/p2 parameters carry
// (file#, block#) for the block-revisit report.
var diskReadEvents = map[string]bool{
	"db file sequential read": true,
	"db file scattered read":  true,
	"db file parallel read":   true,
}

// idleSet combines the default idle events with names added by config.
type idleSet struct {
	extra map[string]bool
}

func newIdleSet(extra []string) idleSet {
	s := idleSet{}
	if len(extra) > 0 {
		s.extra = make(map[string]bool, len(extra))
		for _, name := range extra {
			s.extra[name] = true
		}
	}
	return s
}

// IsIdle reports whether the (possibly annotated) event name is idle.
func (s idleSet) IsIdle(event string) bool {
	base := baseEventName(event)
	if defaultIdleEvents[base] {
		return true
	}
	return s.extra != nil && s.extra[base]
}

// baseEventName strips the annotation suffix added during normalization,
// e.g. "latch free (latch#=98)" -> "latch free".
func baseEventName(event string) string {
	for i := len(event) - 1; i > 0; i-- {
		if event[i] == '(' {
			if i >= 2 && event[i-1] == ' ' {
				return event[:i-1]
			}
			return event[:i]
		}
	}
	return event
}
