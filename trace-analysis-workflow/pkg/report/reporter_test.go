package report

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/interfaces"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/record"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/trace"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/types"
)

// =============================================================================
// In-Memory Record Store
// =============================================================================

// memStore is a sorted in-memory stand-in for the RocksDB record store.
type memStore struct {
	cfs map[string]map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{cfs: make(map[string]map[string][]byte)}
}

func (s *memStore) WriteBatch(entriesByCF map[string][]types.Entry) error {
	for name, entries := range entriesByCF {
		m, ok := s.cfs[name]
		if !ok {
			m = make(map[string][]byte)
			s.cfs[name] = m
		}
		for _, e := range entries {
			m[string(e.Key)] = append([]byte(nil), e.Value...)
		}
	}
	return nil
}

func (s *memStore) newIter(cfName string) *memIterator {
	m := s.cfs[cfName]
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &memIterator{m: m, keys: keys, pos: -1}
}

func (s *memStore) NewIteratorCF(cfName string) interfaces.Iterator     { return s.newIter(cfName) }
func (s *memStore) NewScanIteratorCF(cfName string) interfaces.Iterator { return s.newIter(cfName) }
func (s *memStore) FlushAll() error                                     { return nil }
func (s *memStore) CompactAll() error                                   { return nil }
func (s *memStore) GetAllCFStats() []types.CFStats                      { return nil }
func (s *memStore) Close()                                              {}
func (s *memStore) Path() string                                        { return "(memory)" }

type memIterator struct {
	m    map[string][]byte
	keys []string
	pos  int
}

func (it *memIterator) SeekToFirst() { it.pos = 0 }
func (it *memIterator) Seek(target []byte) {
	it.pos = sort.SearchStrings(it.keys, string(target))
}
func (it *memIterator) Valid() bool   { return it.pos >= 0 && it.pos < len(it.keys) }
func (it *memIterator) Next()         { it.pos++ }
func (it *memIterator) Key() []byte   { return []byte(it.keys[it.pos]) }
func (it *memIterator) Value() []byte { return it.m[it.keys[it.pos]] }
func (it *memIterator) Error() error  { return nil }
func (it *memIterator) Close()        {}

// storeSink adapts the parser's output to the in-memory store.
type storeSink struct {
	store *memStore
}

func (s *storeSink) Record(idx uint32, kind record.Kind, line uint32, payload []byte) {
	_ = s.store.WriteBatch(map[string][]types.Entry{
		"records": {{Key: types.RecordKey(idx, byte(kind), line), Value: payload}},
	})
}

func (s *storeSink) Bind(idx uint32, seq uint32, text string) {
	_ = s.store.WriteBatch(map[string][]types.Entry{
		"binds": {{Key: types.BindKey(idx, seq), Value: []byte(text)}},
	})
}

func (s *storeSink) RPC(line uint32, payload []byte) {
	_ = s.store.WriteBatch(map[string][]types.Entry{
		"rpc": {{Key: types.RPCKey(line), Value: payload}},
	})
}

// ingestLines runs the parser over synthetic trace lines and returns the
// populated store plus the run summary, exactly as the ingest phase would.
func ingestLines(t *testing.T, lines []string) (*memStore, types.RunSummary) {
	t.Helper()
	store := newMemStore()
	sink := &storeSink{store: store}
	p := trace.NewParser(sink, nopTestLogger{})
	for i, line := range lines {
		p.ProcessLine(uint32(i+1), line)
	}
	p.Finish()

	var entries []types.Entry
	for _, cur := range p.Cursors() {
		entries = append(entries, types.Entry{
			Key:   types.CursorKey(cur.Desc.Index),
			Value: record.EncodeCursor(&cur.Desc),
		})
	}
	require.NoError(t, store.WriteBatch(map[string][]types.Entry{"cursors": entries}))
	return store, p.Summary()
}

type nopTestLogger struct{}

func (nopTestLogger) Info(string, ...interface{})    {}
func (nopTestLogger) Error(string, ...interface{})   {}
func (nopTestLogger) Verbose(string, ...interface{}) {}
func (nopTestLogger) Separator()                     {}
func (nopTestLogger) Sync()                          {}
func (nopTestLogger) Close()                         {}

// =============================================================================
// Report Generation Tests
// =============================================================================

var demoTrace = []string{
	"Trace file /tmp/orcl_ora_1234.trc",
	"Oracle Database 19c Enterprise Edition Release 19.0.0.0.0 - Production",
	"*** SERVICE NAME:(SYS$USERS) 2026-08-29 10:00:00.000",
	"*** 2026-08-29 10:00:00.000",
	"PARSING IN CURSOR #1 len=24 dep=0 uid=42 oct=3 lid=42 tim=1000000 hv=987654 ad='7ff1b2' sqlid='abcd123ef4567'",
	"SELECT owner FROM books",
	"END OF STMT",
	"PARSE #1:c=100,e=200,p=0,cr=0,cu=0,mis=1,r=0,dep=0,og=1,tim=1000200",
	"EXEC #1:c=0,e=50,p=0,cr=0,cu=0,mis=0,r=0,dep=0,og=1,tim=1000300",
	"WAIT #1: nam='db file sequential read' ela= 11200 file#=6 block#=4471 blocks=1 obj#=52215 tim=1011500",
	"WAIT #1: nam='db file sequential read' ela= 9300 file#=6 block#=4471 blocks=1 obj#=52215 tim=1020800",
	"FETCH #1:c=10,e=21000,p=2,cr=3,cu=0,mis=0,r=1,dep=0,og=1,tim=1021300",
	"STAT #1 id=1 cnt=1 pid=0 pos=1 obj=100 op='TABLE ACCESS FULL BOOKS (cr=3 pr=2 pw=0 time=21000 us)'",
	"WAIT #1: nam='SQL*Net message from client' ela= 300000 driver id=1413697536 #bytes=1 p3=0 obj#=-1 tim=1321300",
	"XCTEND rlbk=0, rd_only=1, tim=1321400",
	"WAIT #9: nam='db file scattered read' ela= 800 file#=1 block#=2 blocks=8 obj#=50 tim=1321500",
}

func runReport(t *testing.T, store *memStore, summary types.RunSummary) string {
	t.Helper()
	var out bytes.Buffer
	r := NewReporter(Config{
		Store:     store,
		Summary:   summary,
		TracePath: "/tmp/orcl_ora_1234.trc",
		Out:       &out,
		TmpDir:    t.TempDir(),
		Logger:    nopTestLogger{},
	})
	defer r.Close()
	require.NoError(t, r.Run())
	return out.String()
}

func TestReportEndToEnd(t *testing.T) {
	store, summary := ingestLines(t, demoTrace)
	text := runReport(t, store, summary)

	assert.Contains(t, text, "Trace Analysis Report")
	assert.Contains(t, text, "Service name:      SYS$USERS")
	assert.Contains(t, text, "Oracle release:    19")

	// the statement block
	assert.Contains(t, text, "ID #1, Hash Value 987654 (Cursor 1):")
	assert.Contains(t, text, "SQL ID: abcd123ef4567")
	assert.Contains(t, text, "SELECT owner FROM books")
	assert.Contains(t, text, "Misses in library cache during parse: 1")
	assert.Contains(t, text, "TABLE ACCESS FULL BOOKS")
	assert.Contains(t, text, "db file sequential read")

	// the never-introduced cursor folds into the sentinel block
	assert.Contains(t, text, "ID #9999 (activity for cursors never introduced in this trace):")
	assert.Contains(t, text, "db file scattered read")

	// summary sections
	assert.Contains(t, text, "TOP STATEMENTS PER WAIT EVENT")
	assert.Contains(t, text, "OVERALL TOTALS FOR ALL NON-RECURSIVE STATEMENTS")
	assert.Contains(t, text, "STATEMENT SUMMARY (BY ELAPSED TIME)")
	assert.Contains(t, text, "WAIT EVENT SUMMARY")
	assert.Contains(t, text, "TIMING ANALYSIS")
	assert.Contains(t, text, "DISK READ LATENCY HISTOGRAM")
	assert.Contains(t, text, "GRAND TOTALS")

	// SQL*Net message from client is idle: it must not rank as non-idle time
	assert.Contains(t, text, "SQL*Net message from client")
}

func TestReportIsByteIdenticalAcrossRuns(t *testing.T) {
	store, summary := ingestLines(t, demoTrace)
	first := runReport(t, store, summary)
	second := runReport(t, store, summary)
	assert.Equal(t, first, second, "report generation must be deterministic")
}

func TestReportRecursiveSplit(t *testing.T) {
	store, summary := ingestLines(t, []string{
		"PARSING IN CURSOR #2 len=20 dep=1 uid=0 oct=3 lid=0 tim=1000 hv=500 ad='0' sqlid='sys1'",
		"SELECT obj# FROM obj$",
		"END OF STMT",
		"EXEC #2:c=300,e=400,p=0,cr=2,cu=0,mis=0,r=1,dep=1,og=4,tim=1500",
		"PARSING IN CURSOR #1 len=17 dep=0 uid=10 oct=3 lid=10 tim=1600 hv=600 ad='0' sqlid='usr1'",
		"SELECT name FROM t",
		"END OF STMT",
		"EXEC #1:c=1000,e=1200,p=0,cr=5,cu=0,mis=0,r=1,dep=0,og=1,tim=2900",
	})
	text := runReport(t, store, summary)

	assert.Contains(t, text, "Recursive Depth: 1 (parsing user id 0)")
	assert.Contains(t, text, "ACTIVITY BY COMMAND TYPE: NON-RECURSIVE (USER) STATEMENTS")
	assert.Contains(t, text, "ACTIVITY BY COMMAND TYPE: RECURSIVE (SYS) STATEMENTS")
	assert.Contains(t, text, "OVERALL TOTALS FOR ALL RECURSIVE STATEMENTS")
}

func TestReportModuleRollup(t *testing.T) {
	store, summary := ingestLines(t, []string{
		"*** MODULE NAME:(inventory-sync) 2026-08-29 10:00:00.000",
		"PARSING IN CURSOR #1 len=25 dep=0 uid=10 oct=2 lid=10 tim=1000 hv=5 ad='0' sqlid='ins1'",
		"INSERT INTO t VALUES (:1)",
		"END OF STMT",
		"EXEC #1:c=10,e=20,p=0,cr=0,cu=1,mis=0,r=1,dep=0,og=1,tim=1100",
	})
	text := runReport(t, store, summary)

	assert.Contains(t, text, "ACTIVITY BY MODULE")
	assert.Contains(t, text, "inventory-sync")
	assert.Contains(t, text, "Command Type: INSERT (2)")
}

func TestReportEmptyStore(t *testing.T) {
	store := newMemStore()
	text := runReport(t, store, types.RunSummary{})

	assert.Contains(t, text, "Trace Analysis Report")
	assert.Contains(t, text, "GRAND TOTALS")
	assert.Contains(t, text, "(no wait events recorded)")
}

func TestReportTopWaitResidualCarriesPercentage(t *testing.T) {
	// Seven statements waiting on the same event: the two cheapest fold
	// into the residual line, which must carry their share of the event's
	// total waited time.
	var lines []string
	tim := int64(1000000)
	for i := 1; i <= 7; i++ {
		lines = append(lines,
			fmt.Sprintf("PARSING IN CURSOR #%d len=18 dep=0 uid=10 oct=3 lid=10 tim=%d hv=%d ad='0' sqlid='q%07d'", i, tim, 1000+i, i),
			fmt.Sprintf("SELECT %d FROM dual", i),
			"END OF STMT",
			fmt.Sprintf("EXEC #%d:c=10,e=20,p=0,cr=0,cu=0,mis=0,r=1,dep=0,og=1,tim=%d", i, tim+20),
			fmt.Sprintf("WAIT #%d: nam='db file sequential read' ela= %d file#=6 block#=%d blocks=1 obj#=52215 tim=%d", i, i*10000, 100+i, tim+20+int64(i)*10000),
		)
		tim += 100000
	}
	store, summary := ingestLines(t, lines)
	text := runReport(t, store, summary)

	var residual string
	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(line, "(2 others)") {
			residual = line
			break
		}
	}
	require.NotEmpty(t, residual, "expected a residual line for the two folded statements")

	// Folded: 10 000 + 20 000 ticks of a 280 000-tick event total.
	assert.Contains(t, residual, "0.03")
	assert.True(t, strings.HasSuffix(strings.TrimRight(residual, " "), "10.7%"),
		"residual line %q must end with the residual percentage", residual)
}

func TestReportTimingAnalysisUnaccountedNote(t *testing.T) {
	// Five seconds elapsed with no CPU and no waits: unaccounted-for time
	// is the whole session, far past the ten-percent threshold.
	store, summary := ingestLines(t, []string{
		"PARSING IN CURSOR #1 len=19 dep=0 uid=10 oct=3 lid=10 tim=1000000 hv=777 ad='0' sqlid='slow1'",
		"SELECT pad FROM big",
		"END OF STMT",
		"EXEC #1:c=0,e=5000000,p=0,cr=0,cu=0,mis=0,r=1,dep=0,og=1,tim=6000000",
	})
	text := runReport(t, store, summary)

	assert.Contains(t, text, "Note: unaccounted-for time is 100.0% of wall-clock time.")
	assert.Contains(t, text, "neither on CPU nor in an instrumented wait")
	assert.NotContains(t, text, "timing gap error is", "no gap note expected for a gap-free trace")
}

func TestReportParseErrorAnnotations(t *testing.T) {
	store, summary := ingestLines(t, []string{
		"PARSE ERROR #1:len=27 dep=0 uid=10 oct=3 lid=10 tim=5000 err=942 hv=333",
		"SELECT * FROM missing_table",
		"EXEC #1:c=0,e=10,p=0,cr=0,cu=0,mis=0,r=0,dep=0,og=1,tim=5100",
	})
	text := runReport(t, store, summary)

	assert.Contains(t, text, "PARSE ERROR: ORA-00942")
	assert.Contains(t, text, "ORA-00942")
	assert.Contains(t, text, "SELECT * FROM missing_table")
}
