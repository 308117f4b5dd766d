// =============================================================================
// pkg/record/record.go - Normalized Trace Records
// =============================================================================
//
// This package defines the normalized record types the ingest phase emits
// and the report phase consumes, plus their wire codec (codec.go).
//
// Every raw trace line that survives classification becomes exactly one of
// these records. The record kind doubles as the middle component of the
// record-store key, so within one cursor the report phase sees SQL text
// first, then calls, then waits, and so on, regardless of the order lines
// appeared in the trace.
//
// =============================================================================

package record

// =============================================================================
// Record Kinds
// =============================================================================

// Kind classifies a normalized record. The numeric value fixes the
// per-cursor section order in the record store.
type Kind byte

const (
	// KindSQLText is one line of statement text from a PARSING IN CURSOR
	// or PARSE ERROR block.
	KindSQLText Kind = 1

	// KindCall is one database call line (PARSE/EXEC/FETCH/CLOSE/UNMAP/
	// SORT UNMAP and the LOB operations).
	KindCall Kind = 2

	// KindWait is one WAIT line.
	KindWait Kind = 3

	// KindPlan is one STAT line (row-source plan step).
	KindPlan Kind = 4

	// KindError is one ERROR line.
	KindError Kind = 5

	// KindTxn is one XCTEND line (commit or rollback).
	KindTxn Kind = 6

	// KindModule marks a MODULE NAME change attributed to the cursor
	// active at that point.
	KindModule Kind = 7

	// KindAction marks an ACTION NAME change.
	KindAction Kind = 8
)

// String returns a diagnostic name for the kind.
func (k Kind) String() string {
	switch k {
	case KindSQLText:
		return "SQLTEXT"
	case KindCall:
		return "CALL"
	case KindWait:
		return "WAIT"
	case KindPlan:
		return "PLAN"
	case KindError:
		return "ERROR"
	case KindTxn:
		return "XCTEND"
	case KindModule:
		return "MODULE"
	case KindAction:
		return "ACTION"
	default:
		return "UNKNOWN"
	}
}

// =============================================================================
// Call Operations
// =============================================================================

// OpKind identifies the database call a KindCall record came from.
type OpKind byte

const (
	OpParse OpKind = iota + 1
	OpExec
	OpFetch
	OpClose
	OpUnmap
	OpSortUnmap
	OpLobRead
	OpLobWrite
	OpLobGetlen
	OpLobPGSize
	OpLobAppend
	OpLobArrRead
	OpLobArrWrite
	OpLobTmpFre
	OpLobArrTmpFre
	opKindMax
)

// OpKindCount is the number of call operation kinds plus one, for
// direct-indexed accumulator arrays.
const OpKindCount = int(opKindMax)

// Label returns the display name of the operation as it appears in call
// tables.
func (o OpKind) Label() string {
	switch o {
	case OpParse:
		return "PARSE"
	case OpExec:
		return "EXECUTE"
	case OpFetch:
		return "FETCH"
	case OpClose:
		return "CLOSE"
	case OpUnmap:
		return "UNMAP"
	case OpSortUnmap:
		return "SORT UNMAP"
	case OpLobRead:
		return "LOBREAD"
	case OpLobWrite:
		return "LOBWRITE"
	case OpLobGetlen:
		return "LOBGETLEN"
	case OpLobPGSize:
		return "LOBPGSIZE"
	case OpLobAppend:
		return "LOBAPPEND"
	case OpLobArrRead:
		return "LOBARRREAD"
	case OpLobArrWrite:
		return "LOBARRWRITE"
	case OpLobTmpFre:
		return "LOBTMPFRE"
	case OpLobArrTmpFre:
		return "LOBARRTMPFRE"
	default:
		return "UNKNOWN"
	}
}

// OpKindFromVerb maps the leading verb of a call line to its OpKind.
// Returns 0 for verbs that are not call operations.
func OpKindFromVerb(verb string) OpKind {
	switch verb {
	case "PARSE":
		return OpParse
	case "EXEC":
		return OpExec
	case "FETCH":
		return OpFetch
	case "CLOSE":
		return OpClose
	case "UNMAP":
		return OpUnmap
	case "SORT UNMAP":
		return OpSortUnmap
	case "LOBREAD":
		return OpLobRead
	case "LOBWRITE":
		return OpLobWrite
	case "LOBGETLEN":
		return OpLobGetlen
	case "LOBPGSIZE":
		return OpLobPGSize
	case "LOBAPPEND":
		return OpLobAppend
	case "LOBARRREAD":
		return OpLobArrRead
	case "LOBARRWRITE":
		return OpLobArrWrite
	case "LOBTMPFRE":
		return OpLobTmpFre
	case "LOBARRTMPFRE":
		return OpLobArrTmpFre
	default:
		return 0
	}
}

// =============================================================================
// Record Payloads
// =============================================================================

// Call is one database call with recursion-corrected timings.
//
// CPU and Elapsed already have the double-counted contribution of deeper
// recursive calls subtracted (clamped at zero); Gap is the timing-gap
// share attributed to this call. All times are in internal ticks.
type Call struct {
	Op      OpKind
	Depth   int32
	Goal    int32 // optimizer goal (og=)
	CPU     int64
	Elapsed int64
	Disk    int64 // physical reads (p=)
	Query   int64 // consistent-mode buffer gets (cr=)
	Current int64 // current-mode buffer gets (cu=)
	Rows    int64 // rows processed (r=)
	Misses  int64 // library cache misses (mis=)
	Gap     int64
	Tim     int64
	Module  string
	Action  string
}

// Wait is one wait event occurrence. Event carries any annotation added
// during normalization (for example "latch free (latch#=98)").
type Wait struct {
	Event   string
	Elapsed int64
	P1      int64
	P2      int64
	P3      int64
	Obj     int64
	Tim     int64
	Module  string
	Action  string
}

// Plan is one row-source plan step from a STAT line.
type Plan struct {
	ID        int64
	Parent    int64 // pid=
	Rows      int64 // cnt=
	Object    int64 // obj=
	Op        string
	PartStart string
	PartStop  string
	CR        int64
	PR        int64
	PW        int64
	Time      int64 // ticks
	Cost      int64
	Size      int64
	Card      int64
	HasSeg    bool // segment-level statistics were present on the line
}

// OraError is one ERROR line.
type OraError struct {
	Code int64
	Tim  int64
}

// Txn is one XCTEND line.
type Txn struct {
	Rollback bool
	ReadOnly bool
	Tim      int64
}

// Marker is a text-only record: SQL text lines and module/action change
// annotations.
type Marker struct {
	Text string
}

// =============================================================================
// RPC Records
// =============================================================================

// RPCKind identifies a legacy RPC record.
type RPCKind byte

const (
	RPCCall RPCKind = 1
	RPCBind RPCKind = 2
	RPCExec RPCKind = 3
)

// RPC is one legacy RPC CALL/BIND/EXEC line.
type RPC struct {
	Kind    RPCKind
	Text    string
	CPU     int64
	Elapsed int64
}

// =============================================================================
// Cursor Descriptor
// =============================================================================

// Cursor describes one allocated cursor slot. Descriptors are written to
// their own column family at the end of ingest and loaded as a table by
// the report phase.
type Cursor struct {
	Index     uint32
	Number    uint64 // trace cursor number (#N)
	Hash      uint64 // hv=
	SQLID     string
	Length    int64 // len=
	Depth     int64 // dep=
	UID       int64
	LID       int64
	OCT       int64 // Oracle command type
	ParseTim  int64
	ParseLine uint32
	ErrCode   int64 // parse error code, 0 when parsed cleanly
	Module    string
	Action    string
	RPCBinds  int64
}
