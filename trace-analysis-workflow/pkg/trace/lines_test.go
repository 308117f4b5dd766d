package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCursorHeader(t *testing.T) {
	h := ParseCursorHeader("#47 len=52 dep=1 uid=0 oct=3 lid=0 tim=1738591797 hv=2698084338 ad='7ff1b2c8' sqlid='9babjv8yq8ru3'")
	assert.Equal(t, uint64(47), h.Number)
	assert.Equal(t, int64(52), h.Len)
	assert.Equal(t, int64(1), h.Dep)
	assert.Equal(t, int64(3), h.Oct)
	assert.Equal(t, int64(1738591797), h.Tim)
	assert.Equal(t, int64(2698084338), h.HV)
	assert.Equal(t, "7ff1b2c8", h.Addr)
	assert.Equal(t, "9babjv8yq8ru3", h.SQLID)

	// PARSE ERROR uses a colon after the number and carries err=
	h = ParseCursorHeader("#3:len=21 dep=0 uid=174 oct=3 lid=174 tim=5676732772 err=942")
	assert.Equal(t, uint64(3), h.Number)
	assert.Equal(t, int64(942), h.Err)
	assert.Equal(t, int64(174), h.UID)
}

func TestParseCallFields(t *testing.T) {
	f := ParseCallFields("#1:c=10000,e=12345,p=2,cr=15,cu=3,mis=1,r=10,dep=0,og=1,plh=272002086,tim=5676732772")
	assert.True(t, f.HasCur)
	assert.Equal(t, uint64(1), f.Number)
	assert.Equal(t, int64(10000), f.C)
	assert.Equal(t, int64(12345), f.E)
	assert.Equal(t, int64(2), f.P)
	assert.Equal(t, int64(15), f.CR)
	assert.Equal(t, int64(3), f.CU)
	assert.Equal(t, int64(1), f.Mis)
	assert.Equal(t, int64(10), f.R)
	assert.Equal(t, int64(1), f.OG)
	assert.Equal(t, int64(5676732772), f.Tim)

	// cursorless LOB form
	f = ParseCallFields(":c=5,e=7,p=0,cr=0,cu=0,type=1,bytes=8192,tim=100")
	assert.False(t, f.HasCur)
	assert.Equal(t, int64(5), f.C)
	assert.Equal(t, int64(1), f.Type)
}

func TestParseCallFieldsTruncated(t *testing.T) {
	// a file cut mid-line decays to zeros rather than failing
	f := ParseCallFields("#12:c=10,e=")
	assert.Equal(t, uint64(12), f.Number)
	assert.Equal(t, int64(10), f.C)
	assert.Zero(t, f.E)
}

func TestParseWaitLine(t *testing.T) {
	w, ok := ParseWaitLine("#2: nam='db file sequential read' ela= 11200 file#=6 block#=4471 blocks=1 obj#=52215 tim=1738591797")
	require.True(t, ok)
	assert.Equal(t, uint64(2), w.Number)
	assert.Equal(t, "db file sequential read", w.Event)
	assert.Equal(t, int64(11200), w.Ela)
	assert.Equal(t, [3]int64{6, 4471, 1}, w.P)
	assert.Equal(t, 3, w.NumP)
	assert.True(t, w.HasObj)
	assert.Equal(t, int64(52215), w.Obj)
	assert.Equal(t, int64(1738591797), w.Tim)
}

func TestParseWaitLineSpacedParamNames(t *testing.T) {
	w, ok := ParseWaitLine("#1: nam='SQL*Net message from client' ela= 245 driver id=1413697536 #bytes=1 p3=0 obj#=-1 tim=99")
	require.True(t, ok)
	assert.Equal(t, int64(1413697536), w.P[0])
	assert.Equal(t, int64(1), w.P[1])
	assert.Equal(t, int64(-1), w.Obj)
}

func TestParseWaitLineOldFormat(t *testing.T) {
	// pre-10g: no obj#, no tim, p1/p2/p3 names
	w, ok := ParseWaitLine("#4: nam='latch free' ela= 2 p1=15113593344 p2=157 p3=1")
	require.True(t, ok)
	assert.Equal(t, int64(2), w.Ela)
	assert.Equal(t, [3]int64{15113593344, 157, 1}, w.P)
	assert.False(t, w.HasObj)
	assert.Zero(t, w.Tim)
}

func TestParseWaitLineRejectsMalformed(t *testing.T) {
	_, ok := ParseWaitLine("#4: garbage without a name")
	assert.False(t, ok)
}

func TestParseStatLineSegmentStats(t *testing.T) {
	s, ok := ParseStatLine("#2 id=3 cnt=12 pid=1 pos=1 obj=52167 op='INDEX RANGE SCAN T_PK (cr=4 pr=0 pw=0 time=88 us cost=3 size=120 card=12)'")
	require.True(t, ok)
	assert.Equal(t, int64(3), s.ID)
	assert.Equal(t, int64(12), s.Cnt)
	assert.Equal(t, int64(1), s.PID)
	assert.Equal(t, int64(52167), s.Obj)
	assert.Equal(t, "INDEX RANGE SCAN T_PK", s.Op)
	assert.True(t, s.HasSeg)
	assert.Equal(t, int64(4), s.CR)
	assert.Equal(t, int64(88), s.Time)
	assert.Equal(t, int64(3), s.Cost)
	assert.Equal(t, int64(120), s.Size)
	assert.Equal(t, int64(12), s.Card)
}

func TestParseStatLinePartitionRange(t *testing.T) {
	s, ok := ParseStatLine("#5 id=2 cnt=9 pid=1 pos=1 obj=0 op='PARTITION RANGE ITERATOR PARTITION: 3 7 (cr=10 pr=2 pw=0 time=500 us)'")
	require.True(t, ok)
	assert.Equal(t, "PARTITION RANGE ITERATOR PARTITION", s.Op)
	assert.Equal(t, "3", s.PartStart)
	assert.Equal(t, "7", s.PartStop)
}

func TestParseXctendLine(t *testing.T) {
	x := ParseXctendLine("rlbk=1, rd_only=0, tim=1738591797")
	assert.True(t, x.Rollback)
	assert.False(t, x.ReadOnly)
	assert.Equal(t, int64(1738591797), x.Tim)
}

func TestParseErrorLine(t *testing.T) {
	e, ok := ParseErrorLine("#7:err=1555 tim=828328170")
	require.True(t, ok)
	assert.Equal(t, uint64(7), e.Number)
	assert.Equal(t, int64(1555), e.Err)
	assert.Equal(t, int64(828328170), e.Tim)
}

func TestParseParenValue(t *testing.T) {
	v, ok := ParseParenValue("MODULE NAME:(SQL*Plus) 2026-08-29 10:00:00.000")
	require.True(t, ok)
	assert.Equal(t, "SQL*Plus", v)

	// nested parentheses belong to the value
	v, ok = ParseParenValue("ACTION NAME:(load (batch 7))")
	require.True(t, ok)
	assert.Equal(t, "load (batch 7)", v)

	_, ok = ParseParenValue("no parens here")
	assert.False(t, ok)
}

func TestParseReleaseMajor(t *testing.T) {
	assert.Equal(t, int64(19),
		ParseReleaseMajor("Oracle Database 19c Enterprise Edition Release 19.0.0.0.0 - Production"))
	assert.Equal(t, int64(8),
		ParseReleaseMajor("Oracle8i Enterprise Edition Release 8.1.7.4.0 - Production"))
	assert.Zero(t, ParseReleaseMajor("no release banner"))
}

func TestScanAttrsQuotedValues(t *testing.T) {
	got := map[string]string{}
	scanAttrs("nam='buffer busy waits' ela=12 mod='svc mgr, worker'", func(k, v string) {
		got[k] = v
	})
	assert.Equal(t, "buffer busy waits", got["nam"])
	assert.Equal(t, "12", got["ela"])
	assert.Equal(t, "svc mgr, worker", got["mod"])
}

func TestAnnotateEvent(t *testing.T) {
	w := WaitFields{Event: "latch free", P: [3]int64{100, 157, 1}, NumP: 3}
	assert.Equal(t, "latch free (latch#=157)", AnnotateEvent(&w))

	// 'TX' in the high bytes, mode 6 in the low word
	p1 := int64('T')<<24 | int64('X')<<16 | 6
	w = WaitFields{Event: "enqueue", P: [3]int64{p1, 0, 0}, NumP: 1}
	assert.Equal(t, "enqueue (TX mode 6)", AnnotateEvent(&w))

	w = WaitFields{Event: "db file sequential read", P: [3]int64{1, 2, 3}, NumP: 3}
	assert.Equal(t, "db file sequential read", AnnotateEvent(&w))
}

func TestIsMemoryDumpRow(t *testing.T) {
	assert.True(t, isMemoryDumpRow("7F7B2C580 00000016 3C353E65 00000000 00000001"))
	assert.False(t, isMemoryDumpRow("EXEC #1:c=0,e=10"))
	assert.False(t, isMemoryDumpRow(""))
}
