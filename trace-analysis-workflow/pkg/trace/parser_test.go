package trace

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/record"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/types"
)

// =============================================================================
// Test Fixtures
// =============================================================================

type sunkRecord struct {
	Idx     uint32
	Kind    record.Kind
	Line    uint32
	Payload []byte
}

type sunkBind struct {
	Idx  uint32
	Seq  uint32
	Text string
}

// memSink captures parser output in memory.
type memSink struct {
	records []sunkRecord
	binds   []sunkBind
	rpcs    [][]byte
}

func (s *memSink) Record(idx uint32, kind record.Kind, line uint32, payload []byte) {
	cp := append([]byte(nil), payload...)
	s.records = append(s.records, sunkRecord{Idx: idx, Kind: kind, Line: line, Payload: cp})
}

func (s *memSink) Bind(idx uint32, seq uint32, text string) {
	s.binds = append(s.binds, sunkBind{Idx: idx, Seq: seq, Text: text})
}

func (s *memSink) RPC(line uint32, payload []byte) {
	s.rpcs = append(s.rpcs, append([]byte(nil), payload...))
}

func (s *memSink) byKind(idx uint32, kind record.Kind) []sunkRecord {
	var out []sunkRecord
	for _, r := range s.records {
		if r.Idx == idx && r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

// nopLogger satisfies interfaces.Logger for tests.
type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})    {}
func (nopLogger) Error(string, ...interface{})   {}
func (nopLogger) Verbose(string, ...interface{}) {}
func (nopLogger) Separator()                     {}
func (nopLogger) Sync()                          {}
func (nopLogger) Close()                         {}

func feed(t *testing.T, lines []string) (*memSink, *Parser) {
	t.Helper()
	sink := &memSink{}
	p := NewParser(sink, nopLogger{})
	for i, line := range lines {
		p.ProcessLine(uint32(i+1), line)
	}
	p.Finish()
	return sink, p
}

// =============================================================================
// Parser Tests
// =============================================================================

func TestParserBasicStatement(t *testing.T) {
	sink, p := feed(t, []string{
		"PARSING IN CURSOR #1 len=24 dep=0 uid=42 oct=3 lid=42 tim=1000000 hv=987654 ad='7ff1b2' sqlid='abcd123ef4567'",
		"SELECT owner FROM books",
		"END OF STMT",
		"PARSE #1:c=100,e=200,p=0,cr=0,cu=0,mis=1,r=0,dep=0,og=1,tim=1000200",
		"EXEC #1:c=0,e=50,p=0,cr=0,cu=0,mis=0,r=0,dep=0,og=1,tim=1000300",
		"WAIT #1: nam='db file sequential read' ela= 400 file#=5 block#=100 blocks=1 obj#=77 tim=1000700",
		"FETCH #1:c=10,e=500,p=1,cr=3,cu=0,mis=0,r=1,dep=0,og=1,tim=1001200",
		"STAT #1 id=1 cnt=1 pid=0 pos=1 obj=100 op='TABLE ACCESS FULL BOOKS (cr=3 pr=1 pw=0 time=500 us)'",
		"XCTEND rlbk=0, rd_only=1, tim=1001300",
	})

	cursors := p.Cursors()
	require.Len(t, cursors, 2) // zero sentinel plus one real cursor
	desc := cursors[1].Desc
	assert.Equal(t, uint32(1), desc.Index)
	assert.Equal(t, uint64(1), desc.Number)
	assert.Equal(t, uint64(987654), desc.Hash)
	assert.Equal(t, "abcd123ef4567", desc.SQLID)
	assert.Equal(t, int64(42), desc.UID)
	assert.Equal(t, int64(3), desc.OCT)
	assert.Equal(t, uint32(1), desc.ParseLine)

	texts := sink.byKind(1, record.KindSQLText)
	require.Len(t, texts, 1)
	m, err := record.DecodeMarker(texts[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "SELECT owner FROM books", m.Text)

	calls := sink.byKind(1, record.KindCall)
	require.Len(t, calls, 3)
	parse, err := record.DecodeCall(calls[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, record.OpParse, parse.Op)
	assert.Equal(t, int64(100), parse.CPU)
	assert.Equal(t, int64(200), parse.Elapsed)
	assert.Equal(t, int64(1), parse.Misses)
	fetch, err := record.DecodeCall(calls[2].Payload)
	require.NoError(t, err)
	assert.Equal(t, record.OpFetch, fetch.Op)
	assert.Equal(t, int64(1), fetch.Disk)
	assert.Equal(t, int64(3), fetch.Query)
	assert.Equal(t, int64(1), fetch.Rows)
	assert.Zero(t, fetch.Gap, "sub-threshold gaps must clamp to zero")

	waits := sink.byKind(1, record.KindWait)
	require.Len(t, waits, 1)
	w, err := record.DecodeWait(waits[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "db file sequential read", w.Event)
	assert.Equal(t, int64(400), w.Elapsed)
	assert.Equal(t, int64(5), w.P1)
	assert.Equal(t, int64(100), w.P2)
	assert.Equal(t, int64(77), w.Obj)

	plans := sink.byKind(1, record.KindPlan)
	require.Len(t, plans, 1)
	pl, err := record.DecodePlan(plans[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "TABLE ACCESS FULL BOOKS", pl.Op)
	assert.Equal(t, int64(3), pl.CR)
	assert.Equal(t, int64(500), pl.Time)
	assert.True(t, pl.HasSeg)

	txns := sink.byKind(1, record.KindTxn)
	require.Len(t, txns, 1)
	tx, err := record.DecodeTxn(txns[0].Payload)
	require.NoError(t, err)
	assert.False(t, tx.Rollback)
	assert.True(t, tx.ReadOnly)

	s := p.Summary()
	assert.Equal(t, int64(9), s.LineCount)
	assert.Equal(t, int64(1000000), s.FirstTim)
	assert.Equal(t, int64(1001300), s.LastTim)
	assert.Equal(t, int64(1300), s.WallClock())
}

func TestParserWaitBeforeCursorReattaches(t *testing.T) {
	sink, _ := feed(t, []string{
		"WAIT #3: nam='SQL*Net message from client' ela= 1500 driver id=675562835 #bytes=1 p3=0 obj#=-1 tim=2000000",
		"PARSING IN CURSOR #3 len=11 dep=0 uid=10 oct=3 lid=10 tim=2000100 hv=42 ad='0' sqlid='x'",
		"SELECT 1",
		"END OF STMT",
	})

	waits := sink.byKind(1, record.KindWait)
	require.Len(t, waits, 1, "the buffered wait must reattach to the introduced cursor")
	assert.Equal(t, uint32(1), waits[0].Line)
	assert.Empty(t, sink.byKind(types.CursorUnaccountedIndex, record.KindWait))
}

func TestParserNeverIntroducedCursorFoldsToSentinel(t *testing.T) {
	sink, p := feed(t, []string{
		"WAIT #9: nam='db file scattered read' ela= 800 file#=1 block#=2 blocks=8 obj#=50 tim=3000000",
	})

	waits := sink.byKind(types.CursorUnaccountedIndex, record.KindWait)
	require.Len(t, waits, 1)
	s := p.Summary()
	assert.Equal(t, int64(1), s.PendingFoldedWaits)
	assert.Equal(t, int64(800), s.PendingFoldedTicks)
}

func TestParserZeroElapsedWaitsDropped(t *testing.T) {
	sink, p := feed(t, []string{
		"PARSING IN CURSOR #1 len=11 dep=0 uid=10 oct=3 lid=10 tim=1000 hv=7 ad='0' sqlid='x'",
		"SELECT 1",
		"END OF STMT",
		"WAIT #1: nam='SQL*Net message to client' ela= 0 driver id=675562835 #bytes=1 p3=0 obj#=-1 tim=1100",
	})

	assert.Empty(t, sink.byKind(1, record.KindWait))
	assert.Equal(t, int64(1), p.Summary().ZeroWaits)
}

func TestParserCursorNumberReuse(t *testing.T) {
	sink, p := feed(t, []string{
		"PARSING IN CURSOR #1 len=11 dep=0 uid=10 oct=3 lid=10 tim=1000 hv=111 ad='0' sqlid='a'",
		"SELECT 'a'",
		"END OF STMT",
		"EXEC #1:c=10,e=20,p=0,cr=0,cu=0,mis=0,r=1,dep=0,og=1,tim=1100",
		"PARSING IN CURSOR #1 len=11 dep=0 uid=10 oct=3 lid=10 tim=1200 hv=222 ad='0' sqlid='b'",
		"SELECT 'b'",
		"END OF STMT",
		"EXEC #1:c=30,e=40,p=0,cr=0,cu=0,mis=0,r=1,dep=0,og=1,tim=1300",
		"PARSING IN CURSOR #1 len=11 dep=0 uid=10 oct=3 lid=10 tim=1400 hv=111 ad='0' sqlid='a'",
		"END OF STMT",
		"EXEC #1:c=50,e=60,p=0,cr=0,cu=0,mis=0,r=1,dep=0,og=1,tim=1500",
	})

	require.Len(t, p.Cursors(), 3) // zero sentinel + two identities
	assert.Len(t, sink.byKind(1, record.KindCall), 2, "re-parse of the same hash reuses its index")
	assert.Len(t, sink.byKind(2, record.KindCall), 1)

	// the re-parse of hv=111 must not re-emit its statement text
	assert.Len(t, sink.byKind(1, record.KindSQLText), 1)
}

func TestParserRecursiveDoubleCountCorrection(t *testing.T) {
	sink, _ := feed(t, []string{
		"PARSING IN CURSOR #2 len=11 dep=1 uid=0 oct=3 lid=0 tim=1000 hv=500 ad='0' sqlid='r'",
		"SELECT obj# FROM obj$",
		"END OF STMT",
		"EXEC #2:c=300,e=400,p=0,cr=2,cu=0,mis=0,r=1,dep=1,og=4,tim=1500",
		"PARSING IN CURSOR #1 len=11 dep=0 uid=10 oct=3 lid=10 tim=1600 hv=600 ad='0' sqlid='u'",
		"SELECT name FROM t",
		"END OF STMT",
		"EXEC #1:c=1000,e=1200,p=0,cr=5,cu=0,mis=0,r=1,dep=0,og=1,tim=2900",
	})

	child := sink.byKind(1, record.KindCall)
	require.Len(t, child, 1)
	c, err := record.DecodeCall(child[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, int32(1), c.Depth)
	assert.Equal(t, int64(300), c.CPU, "recursive call keeps its own time")

	parent := sink.byKind(2, record.KindCall)
	require.Len(t, parent, 1)
	pc, err := record.DecodeCall(parent[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(700), pc.CPU, "parent CPU must drop the recursive child's share")
	assert.Equal(t, int64(800), pc.Elapsed)
}

func TestParserCentisecondTraces(t *testing.T) {
	sink, p := feed(t, []string{
		"Oracle8i Enterprise Edition Release 8.1.7.4.0 - Production",
		"PARSING IN CURSOR #1 len=11 dep=0 uid=10 oct=3 lid=10 tim=100 hv=9 ad='0' sqlid=''",
		"SELECT 1",
		"END OF STMT",
		"EXEC #1:c=1,e=2,p=0,cr=0,cu=0,mis=0,r=1,dep=0,og=1,tim=102",
	})

	calls := sink.byKind(1, record.KindCall)
	require.Len(t, calls, 1)
	c, err := record.DecodeCall(calls[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(1*types.TicksPerCenti), c.CPU)
	assert.Equal(t, int64(2*types.TicksPerCenti), c.Elapsed)

	s := p.Summary()
	assert.Equal(t, int64(8), s.OracleRelease)
	assert.Equal(t, int64(types.DivisorCentiseconds), s.Divisor)
}

func TestParserTimingGapReported(t *testing.T) {
	sink, _ := feed(t, []string{
		"PARSING IN CURSOR #1 len=11 dep=0 uid=10 oct=3 lid=10 tim=1000000 hv=9 ad='0' sqlid=''",
		"SELECT 1",
		"END OF STMT",
		"EXEC #1:c=0,e=100,p=0,cr=0,cu=0,mis=0,r=1,dep=0,og=1,tim=1000100",
		// 5 seconds of unexplained time before this fetch ends
		"FETCH #1:c=0,e=200,p=0,cr=1,cu=0,mis=0,r=1,dep=0,og=1,tim=6000300",
	})

	calls := sink.byKind(1, record.KindCall)
	require.Len(t, calls, 2)
	fetch, err := record.DecodeCall(calls[1].Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(5000000), fetch.Gap)
}

func TestParserModuleActionAttribution(t *testing.T) {
	sink, _ := feed(t, []string{
		"*** MODULE NAME:(inventory-sync) 2026-08-29 10:00:00.000",
		"*** ACTION NAME:(load) 2026-08-29 10:00:00.000",
		"PARSING IN CURSOR #1 len=11 dep=0 uid=10 oct=2 lid=10 tim=1000 hv=5 ad='0' sqlid=''",
		"INSERT INTO t VALUES (:1)",
		"END OF STMT",
		"EXEC #1:c=10,e=20,p=0,cr=0,cu=1,mis=0,r=1,dep=0,og=1,tim=1100",
	})

	calls := sink.byKind(1, record.KindCall)
	require.Len(t, calls, 1)
	c, err := record.DecodeCall(calls[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "inventory-sync", c.Module)
	assert.Equal(t, "load", c.Action)
}

func TestParserParseErrorBlock(t *testing.T) {
	sink, p := feed(t, []string{
		"PARSE ERROR #1:len=17 dep=0 uid=10 oct=3 lid=10 tim=5000 err=942 hv=333",
		"SELECT * FROM missing_table",
		"EXEC #1:c=0,e=10,p=0,cr=0,cu=0,mis=0,r=0,dep=0,og=1,tim=5100",
	})

	require.Len(t, p.Cursors(), 2)
	assert.Equal(t, int64(942), p.Cursors()[1].Desc.ErrCode)

	errs := sink.byKind(1, record.KindError)
	require.Len(t, errs, 1)
	oe, err := record.DecodeOraError(errs[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(942), oe.Code)

	// statement text terminates at the next marker without END OF STMT
	texts := sink.byKind(1, record.KindSQLText)
	require.Len(t, texts, 1)
	assert.Len(t, sink.byKind(1, record.KindCall), 1)
}

func TestParserBindBlocks(t *testing.T) {
	sink, _ := feed(t, []string{
		"PARSING IN CURSOR #1 len=25 dep=0 uid=10 oct=3 lid=10 tim=1000 hv=5 ad='0' sqlid=''",
		"SELECT * FROM t WHERE a=:1",
		"END OF STMT",
		"BINDS #1:",
		" Bind#0",
		"  oacdty=02 mxl=22(22) mxlc=00 mal=00 scl=00 pre=00",
		"  kxsbbbfp=7efb2c58  bln=22  avl=02  flg=05",
		"  value=42",
		" Bind#1",
		"  oacdty=01 mxl=32(14) mxlc=00 mal=00 scl=00 pre=00",
		"  kxsbbbfp=7efb2c88  bln=32  avl=00  flg=05",
		"EXEC #1:c=10,e=20,p=0,cr=0,cu=0,mis=0,r=1,dep=0,og=1,tim=1100",
	})

	require.Len(t, sink.binds, 3) // block marker plus two binds
	assert.Equal(t, uint32(0), sink.binds[0].Seq)
	assert.Equal(t, "-- line 4", sink.binds[0].Text)
	assert.Equal(t, "#0: 42", sink.binds[1].Text)
	assert.Equal(t, "#1: <null>", sink.binds[2].Text, "a bind without value= is null")
}

func TestParserRPCLines(t *testing.T) {
	sink, p := feed(t, []string{
		"RPC CALL:PROCEDURE doit(x IN NUMBER)",
		"RPC BIND:dty=2 bfp=1abc avl=02 val=7",
		"RPC EXEC:c=120,e=340",
	})

	require.Len(t, sink.rpcs, 3)
	call, err := record.DecodeRPC(sink.rpcs[0])
	require.NoError(t, err)
	assert.Equal(t, record.RPCCall, call.Kind)
	assert.Equal(t, "PROCEDURE doit(x IN NUMBER)", call.Text)

	exec, err := record.DecodeRPC(sink.rpcs[2])
	require.NoError(t, err)
	assert.Equal(t, record.RPCExec, exec.Kind)
	assert.Equal(t, int64(120), exec.CPU)
	assert.Equal(t, int64(340), exec.Elapsed)

	assert.True(t, p.Summary().HasRPC)
}

func TestParserHeaderProseIgnored(t *testing.T) {
	_, p := feed(t, []string{
		"Trace file /u01/app/oracle/diag/rdbms/orcl/trace/orcl_ora_1234.trc",
		"ORACLE_HOME = /u01/app/oracle/product/19.0.0",
		"System name: Linux",
		"*** SERVICE NAME:(SYS$USERS) 2026-08-29 10:00:00.000",
		"*** 2026-08-29 10:00:00.000",
		"PARSING IN CURSOR #1 len=11 dep=0 uid=10 oct=3 lid=10 tim=1000 hv=5 ad='0' sqlid=''",
		"SELECT 1",
		"END OF STMT",
	})

	s := p.Summary()
	assert.Zero(t, s.UnprocessedLines, "header prose must not count as unprocessed")
	assert.Equal(t, "SYS$USERS", s.ServiceName)
	assert.Equal(t, "2026-08-29 10:00:00.000", s.SessionDate)
	assert.Zero(t, s.DuplicateHeaders)
}

func TestParserDuplicateHeaderRebaselinesClock(t *testing.T) {
	lines := []string{
		"Trace file /u01/app/oracle/diag/rdbms/orcl/trace/orcl_ora_1234.trc",
		"PARSING IN CURSOR #1 len=11 dep=0 uid=10 oct=3 lid=10 tim=1000000 hv=5 ad='0' sqlid=''",
		"SELECT 1",
		"END OF STMT",
		"EXEC #1:c=0,e=100,p=0,cr=0,cu=0,mis=0,r=1,dep=0,og=1,tim=1000100",
		"*** TRACE DUMP CONTINUED FROM FILE ***",
		// the appended dump restarts eight hours later
		fmt.Sprintf("EXEC #1:c=0,e=100,p=0,cr=0,cu=0,mis=0,r=1,dep=0,og=1,tim=%d", 1000200+8*3600*1000000),
	}
	sink, p := feed(t, lines)

	s := p.Summary()
	assert.Equal(t, int64(1), s.DuplicateHeaders)
	assert.Equal(t, int64(100), s.WallClock(), "the cross-header jump must not inflate the wall clock")

	calls := sink.byKind(1, record.KindCall)
	require.Len(t, calls, 2)
	second, err := record.DecodeCall(calls[1].Payload)
	require.NoError(t, err)
	assert.Zero(t, second.Gap, "no gap across a header discontinuity")
}

func TestParserMemoryDumpSkipped(t *testing.T) {
	_, p := feed(t, []string{
		"PARSING IN CURSOR #1 len=11 dep=0 uid=10 oct=3 lid=10 tim=1000 hv=5 ad='0' sqlid=''",
		"SELECT 1",
		"END OF STMT",
		"Dump of memory from 0x00007F7B to 0x00007F8B",
		"7F7B2C580 00000016 3C353E65 00000000 00000001",
		"7F7B2C590 00000000 00000000 00000000 00000000",
		"EXEC #1:c=0,e=10,p=0,cr=0,cu=0,mis=0,r=1,dep=0,og=1,tim=1100",
	})

	assert.Zero(t, p.Summary().UnprocessedLines)
}
