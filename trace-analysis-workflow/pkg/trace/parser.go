// =============================================================================
// pkg/trace/parser.go - Trace Line Classifier and State Machine
// =============================================================================
//
// The Parser consumes raw trace lines one at a time and emits normalized
// records to a Sink. It carries only the bounded state the format forces:
//
//	- multi-line mode (statement text until END OF STMT, parse-error text
//	  until the next recognizable marker, bind blocks, memory-dump skips)
//	- the cursor table and the pending-wait buffer
//	- the clock (units, wall span, gap detection) and the per-depth
//	  accumulator for recursive call correction
//	- the current module/action set by *** markers or APPNAME lines
//
// Classification is prefix-based. Lines before the first data marker are
// header prose and ignored without complaint; afterwards, unmatched
// non-empty lines count as unprocessed and are logged in verbose mode.
//
// =============================================================================

package trace

import (
	"strings"

	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/interfaces"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/record"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/types"
)

// Sink receives normalized output during ingest. Implementations batch
// the entries and commit them to the record store.
type Sink interface {
	// Record delivers one record-CF entry's components.
	Record(cursorIdx uint32, kind record.Kind, line uint32, payload []byte)

	// Bind delivers one formatted bind row for a cursor.
	Bind(cursorIdx uint32, seq uint32, text string)

	// RPC delivers one RPC record keyed by trace line.
	RPC(line uint32, payload []byte)
}

type parserMode int

const (
	modeScan parserMode = iota
	modeSQLText
	modeErrorText
	modeMemDump
)

// Parser is the ingest-side state machine.
type Parser struct {
	sink   Sink
	logger interfaces.Logger

	clock   Clock
	depths  depthAccumulator
	cursors *CursorTable
	pending PendingWaits
	binds   bindMachine

	mode       parserMode
	textCursor *CursorInfo
	textEmit   bool

	module     string
	action     string
	lastActive *CursorInfo
	inHeader   bool

	lineCount          int64
	recordCount        int64
	headerCount        int64
	truncated          bool
	unprocessed        int64
	zeroWaits          int64
	unresolvedOps      int64
	pendingFolded      int64
	pendingFoldedTicks int64
	release            int64
	serviceName        string
	sessionDate        string
	hasRPC             bool
}

// NewParser creates a parser emitting to the given sink.
func NewParser(sink Sink, logger interfaces.Logger) *Parser {
	return &Parser{
		sink:     sink,
		logger:   logger,
		cursors:  NewCursorTable(),
		inHeader: true,
	}
}

// ProcessLine consumes one trace line. lineNo is 1-based.
func (p *Parser) ProcessLine(lineNo uint32, line string) {
	p.lineCount++

	switch p.mode {
	case modeMemDump:
		if isMemoryDumpRow(line) || strings.HasPrefix(line, "Dump of memory") {
			return
		}
		p.mode = modeScan

	case modeSQLText:
		if line == "END OF STMT" {
			p.mode = modeScan
			p.textCursor = nil
			return
		}
		if p.textEmit {
			p.emitRecord(p.textCursor, record.KindSQLText, lineNo,
				record.EncodeMarker(&record.Marker{Text: line}))
		}
		return

	case modeErrorText:
		if !isMajorMarker(line) {
			if p.textEmit {
				p.emitRecord(p.textCursor, record.KindSQLText, lineNo,
					record.EncodeMarker(&record.Marker{Text: line}))
			}
			return
		}
		p.mode = modeScan
		p.textCursor = nil
	}

	if p.binds.Active() {
		if p.binds.Consume(line) {
			return
		}
		p.binds.Close()
	}

	p.classify(lineNo, line)
}

func (p *Parser) classify(lineNo uint32, line string) {
	switch {
	case line == "":
		return

	case strings.HasPrefix(line, "WAIT #"):
		p.markData()
		p.handleWait(lineNo, line[len("WAIT "):])

	case strings.HasPrefix(line, "PARSING IN CURSOR #"):
		p.markData()
		p.handleParsing(lineNo, line[len("PARSING IN CURSOR "):])

	case strings.HasPrefix(line, "PARSE ERROR #"):
		p.markData()
		p.handleParseError(lineNo, line[len("PARSE ERROR "):])

	case strings.HasPrefix(line, "STAT #"):
		p.markData()
		p.handleStat(lineNo, line[len("STAT "):])

	case strings.HasPrefix(line, "BINDS #"):
		p.markData()
		p.handleBinds(lineNo, line[len("BINDS "):])

	case strings.HasPrefix(line, "ERROR #"):
		p.markData()
		p.handleError(lineNo, line[len("ERROR "):])

	case strings.HasPrefix(line, "XCTEND "):
		p.markData()
		p.handleXctend(lineNo, line[len("XCTEND "):])

	case strings.HasPrefix(line, "RPC CALL:"):
		p.markData()
		p.handleRPCText(lineNo, record.RPCCall, line[len("RPC CALL:"):])

	case strings.HasPrefix(line, "RPC BIND:"):
		p.markData()
		p.handleRPCBind(lineNo, line[len("RPC BIND:"):])

	case strings.HasPrefix(line, "RPC EXEC:"):
		p.markData()
		p.handleRPCExec(lineNo, line[len("RPC EXEC:"):])

	case strings.HasPrefix(line, "Dump of memory"):
		p.mode = modeMemDump

	case strings.HasPrefix(line, "==="):
		p.markData()

	case strings.HasPrefix(line, "*** "):
		p.handleStarMarker(lineNo, line[4:])

	case strings.HasPrefix(line, "APPNAME "):
		p.handleAppname(lineNo, line[len("APPNAME "):])

	case strings.HasPrefix(line, "Dump file ") || strings.HasPrefix(line, "Trace file "):
		p.handleFileHeader()

	default:
		if op, rest, ok := splitCallVerb(line); ok {
			p.markData()
			p.handleCall(lineNo, op, rest)
			return
		}
		if p.release == 0 && strings.Contains(line, "Oracle") {
			if rel := ParseReleaseMajor(line); rel > 0 {
				p.release = rel
				p.clock.SetDivisorFromRelease(rel)
				return
			}
		}
		if !p.inHeader {
			p.unprocessed++
			p.logger.Verbose("unprocessed line %d: %s", lineNo, clipForLog(line))
		}
	}
}

// markData ends the header-prose region.
func (p *Parser) markData() {
	p.inHeader = false
}

// =============================================================================
// Line Handlers
// =============================================================================

func (p *Parser) handleParsing(lineNo uint32, rest string) {
	hdr := ParseCursorHeader(rest)
	tim := p.clock.ToTicks(hdr.Tim)
	p.clock.ObserveTim(tim)

	cur, isNew := p.cursors.Introduce(hdr.Number, uint64(hdr.HV))
	if isNew {
		d := &cur.Desc
		d.SQLID = hdr.SQLID
		d.Length = hdr.Len
		d.Depth = hdr.Dep
		d.UID = hdr.UID
		d.LID = hdr.LID
		d.OCT = hdr.Oct
		d.ParseTim = tim
		d.ParseLine = lineNo
		d.Module = p.module
		d.Action = p.action
		for _, w := range p.pending.TakeFor(hdr.Number) {
			p.emitRecord(cur, record.KindWait, w.Line, w.Payload)
		}
	}

	p.textCursor = cur
	p.textEmit = isNew
	p.mode = modeSQLText
	p.lastActive = cur
}

func (p *Parser) handleParseError(lineNo uint32, rest string) {
	hdr := ParseCursorHeader(rest)
	tim := p.clock.ToTicks(hdr.Tim)
	p.clock.ObserveTim(tim)

	cur, isNew := p.cursors.Introduce(hdr.Number, uint64(hdr.HV))
	if isNew {
		d := &cur.Desc
		d.SQLID = hdr.SQLID
		d.Length = hdr.Len
		d.Depth = hdr.Dep
		d.UID = hdr.UID
		d.LID = hdr.LID
		d.OCT = hdr.Oct
		d.ParseTim = tim
		d.ParseLine = lineNo
		d.Module = p.module
		d.Action = p.action
		for _, w := range p.pending.TakeFor(hdr.Number) {
			p.emitRecord(cur, record.KindWait, w.Line, w.Payload)
		}
	}
	cur.Desc.ErrCode = hdr.Err

	oe := record.OraError{Code: hdr.Err, Tim: tim}
	p.emitRecord(cur, record.KindError, lineNo, record.EncodeOraError(&oe))

	// statement text follows without END OF STMT; termination is inferred
	p.textCursor = cur
	p.textEmit = isNew
	p.mode = modeErrorText
	p.lastActive = cur
}

func (p *Parser) handleCall(lineNo uint32, op record.OpKind, rest string) {
	f := ParseCallFields(rest)

	var cur *CursorInfo
	switch {
	case !f.HasCur || f.Number == 0:
		cur = p.cursors.Zero()
	default:
		if c, ok := p.cursors.Resolve(f.Number); ok {
			cur = c
		} else {
			cur = p.cursors.Unaccounted()
			p.unresolvedOps++
		}
	}

	cpu := p.clock.ToTicks(f.C)
	ela := p.clock.ToTicks(f.E)
	tim := p.clock.ToTicks(f.Tim)
	p.clock.ObserveTim(tim)
	gap := p.clock.ObserveCall(tim, ela)
	adjCPU, adjEla := p.depths.Correct(int(f.Dep), cpu, ela)

	rec := record.Call{
		Op:      op,
		Depth:   int32(f.Dep),
		Goal:    int32(f.OG),
		CPU:     adjCPU,
		Elapsed: adjEla,
		Disk:    f.P,
		Query:   f.CR,
		Current: f.CU,
		Rows:    f.R,
		Misses:  f.Mis,
		Gap:     gap,
		Tim:     tim,
		Module:  p.module,
		Action:  p.action,
	}
	p.emitRecord(cur, record.KindCall, lineNo, record.EncodeCall(&rec))
	p.lastActive = cur
}

func (p *Parser) handleWait(lineNo uint32, rest string) {
	wf, ok := ParseWaitLine(rest)
	if !ok {
		p.unprocessed++
		p.logger.Verbose("unparseable WAIT at line %d", lineNo)
		return
	}

	ela := p.clock.ToTicks(wf.Ela)
	tim := p.clock.ToTicks(wf.Tim)
	p.clock.ObserveTim(tim)
	p.clock.ObserveWait(ela)

	if wf.Ela == 0 {
		p.zeroWaits++
		return
	}

	payload := BuildWaitRecord(&wf, ela, tim, p.module, p.action)
	if cur, resolved := p.cursors.Resolve(wf.Number); resolved {
		p.emitRecord(cur, record.KindWait, lineNo, payload)
		p.lastActive = cur
		return
	}
	for _, evicted := range p.pending.Add(PendingWait{
		Number:  wf.Number,
		Line:    lineNo,
		Payload: payload,
		Ela:     ela,
	}) {
		p.foldPending(evicted)
	}
}

func (p *Parser) handleStat(lineNo uint32, rest string) {
	sf, ok := ParseStatLine(rest)
	if !ok {
		p.unprocessed++
		return
	}

	cur, resolved := p.cursors.Resolve(sf.Number)
	if !resolved {
		cur = p.cursors.Unaccounted()
	}
	if cur.Plans == nil {
		cur.Plans = NewPlanTracker()
	}

	plan := record.Plan{
		ID:        sf.ID,
		Parent:    sf.PID,
		Rows:      sf.Cnt,
		Object:    sf.Obj,
		Op:        sf.Op,
		PartStart: sf.PartStart,
		PartStop:  sf.PartStop,
		CR:        sf.CR,
		PR:        sf.PR,
		PW:        sf.PW,
		Time:      sf.Time,
		Cost:      sf.Cost,
		Size:      sf.Size,
		Card:      sf.Card,
		HasSeg:    sf.HasSeg,
	}
	cur.Plans.Add(plan, lineNo, p.planEmitter(cur))
}

func (p *Parser) handleError(lineNo uint32, rest string) {
	ef, ok := ParseErrorLine(rest)
	if !ok {
		p.unprocessed++
		return
	}
	tim := p.clock.ToTicks(ef.Tim)
	p.clock.ObserveTim(tim)

	cur, resolved := p.cursors.Resolve(ef.Number)
	if !resolved {
		cur = p.cursors.Unaccounted()
	}
	oe := record.OraError{Code: ef.Err, Tim: tim}
	p.emitRecord(cur, record.KindError, lineNo, record.EncodeOraError(&oe))
	p.lastActive = cur
}

func (p *Parser) handleXctend(lineNo uint32, rest string) {
	x := ParseXctendLine(rest)
	tim := p.clock.ToTicks(x.Tim)
	p.clock.ObserveTim(tim)

	// no cursor number on XCTEND; charge the most recently active cursor
	cur := p.lastActive
	if cur == nil {
		cur = p.cursors.Zero()
	}
	t := record.Txn{Rollback: x.Rollback, ReadOnly: x.ReadOnly, Tim: tim}
	p.emitRecord(cur, record.KindTxn, lineNo, record.EncodeTxn(&t))
}

func (p *Parser) handleBinds(lineNo uint32, rest string) {
	var num uint64
	if len(rest) > 0 && rest[0] == '#' {
		num, _ = parseUint64Prefix(rest[1:])
	}
	cur, resolved := p.cursors.Resolve(num)
	if !resolved {
		cur = p.cursors.Unaccounted()
	}
	p.binds.Begin(cur, lineNo, p.bindEmit)
	p.lastActive = cur
}

func (p *Parser) handleRPCText(lineNo uint32, kind record.RPCKind, rest string) {
	p.hasRPC = true
	r := record.RPC{Kind: kind, Text: strings.TrimSpace(rest)}
	p.sink.RPC(lineNo, record.EncodeRPC(&r))
	p.recordCount++
}

func (p *Parser) handleRPCBind(lineNo uint32, rest string) {
	cur := p.lastActive
	if cur == nil {
		cur = p.cursors.Zero()
	}
	cur.Desc.RPCBinds++
	p.handleRPCText(lineNo, record.RPCBind, rest)
}

func (p *Parser) handleRPCExec(lineNo uint32, rest string) {
	p.hasRPC = true
	var c, e int64
	scanAttrs(rest, func(key, val string) {
		switch key {
		case "c":
			c = parseInt64Prefix(val)
		case "e":
			e = parseInt64Prefix(val)
		}
	})
	r := record.RPC{
		Kind:    record.RPCExec,
		CPU:     p.clock.ToTicks(c),
		Elapsed: p.clock.ToTicks(e),
	}
	p.sink.RPC(lineNo, record.EncodeRPC(&r))
	p.recordCount++
}

func (p *Parser) handleStarMarker(lineNo uint32, rest string) {
	switch {
	case strings.HasPrefix(rest, "MODULE NAME:"):
		if v, ok := ParseParenValue(rest); ok {
			p.module = v
			p.annotate(record.KindModule, lineNo, v)
		}
	case strings.HasPrefix(rest, "ACTION NAME:"):
		if v, ok := ParseParenValue(rest); ok {
			p.action = v
			p.annotate(record.KindAction, lineNo, v)
		}
	case strings.HasPrefix(rest, "SERVICE NAME:"):
		if v, ok := ParseParenValue(rest); ok && p.serviceName == "" {
			p.serviceName = v
		}
	case strings.HasPrefix(rest, "DUMP FILE SIZE IS LIMITED"):
		p.truncated = true
	case strings.HasPrefix(rest, "TRACE DUMP CONTINUED"):
		p.headerCount++
		p.clock.MarkHeaderBoundary()
	default:
		if len(rest) > 0 && rest[0] >= '0' && rest[0] <= '9' && p.sessionDate == "" {
			p.sessionDate = rest
		}
	}
}

func (p *Parser) handleAppname(lineNo uint32, rest string) {
	var mod, act string
	var hasMod, hasAct bool
	scanAttrs(rest, func(key, val string) {
		switch key {
		case "mod":
			mod, hasMod = val, true
		case "act":
			act, hasAct = val, true
		}
	})
	if hasMod && mod != "" {
		p.module = mod
		p.annotate(record.KindModule, lineNo, mod)
	}
	if hasAct && act != "" {
		p.action = act
		p.annotate(record.KindAction, lineNo, act)
	}
}

func (p *Parser) handleFileHeader() {
	p.headerCount++
	if p.headerCount > 1 {
		p.clock.MarkHeaderBoundary()
	}
	p.inHeader = true
}

// =============================================================================
// Emission Helpers
// =============================================================================

func (p *Parser) emitRecord(cur *CursorInfo, kind record.Kind, line uint32, payload []byte) {
	p.sink.Record(cur.Desc.Index, kind, line, payload)
	p.recordCount++
}

func (p *Parser) bindEmit(cur *CursorInfo, text string) {
	p.sink.Bind(cur.Desc.Index, cur.BindSeq, text)
	cur.BindSeq++
	p.recordCount++
}

func (p *Parser) planEmitter(cur *CursorInfo) PlanEmitFunc {
	return func(steps []PlanStep) {
		for i := range steps {
			p.emitRecord(cur, record.KindPlan, steps[i].Line,
				record.EncodePlan(&steps[i].Rec))
		}
	}
}

func (p *Parser) annotate(kind record.Kind, lineNo uint32, text string) {
	cur := p.lastActive
	if cur == nil {
		cur = p.cursors.Zero()
	}
	p.emitRecord(cur, kind, lineNo, record.EncodeMarker(&record.Marker{Text: text}))
}

func (p *Parser) foldPending(w PendingWait) {
	p.emitRecord(p.cursors.Unaccounted(), record.KindWait, w.Line, w.Payload)
	p.pendingFolded++
	p.pendingFoldedTicks += w.Ela
}

// =============================================================================
// End of Input
// =============================================================================

// Finish closes any open multi-line mode, flushes accumulated plan sets
// and folds still-pending waits into the unaccounted sentinel.
func (p *Parser) Finish() {
	p.binds.Close()
	p.mode = modeScan
	p.textCursor = nil

	for _, cur := range p.cursors.All() {
		if cur.Plans != nil {
			cur.Plans.Finish(p.planEmitter(cur))
		}
	}
	for _, w := range p.pending.Drain() {
		p.foldPending(w)
	}
}

// Cursors returns every allocated cursor for descriptor persistence.
func (p *Parser) Cursors() []*CursorInfo {
	return p.cursors.All()
}

// Summary assembles the end-of-ingest run summary.
func (p *Parser) Summary() types.RunSummary {
	dup := p.headerCount - 1
	if dup < 0 {
		dup = 0
	}
	return types.RunSummary{
		FirstTim:           p.clock.FirstTim(),
		LastTim:            p.clock.LastTim(),
		BaselineOffset:     p.clock.Offset(),
		Divisor:            p.clock.Divisor(),
		OracleRelease:      p.release,
		LineCount:          p.lineCount,
		RecordCount:        p.recordCount,
		CursorCount:        int64(p.cursors.Count()),
		DuplicateHeaders:   dup,
		Truncated:          p.truncated,
		UnprocessedLines:   p.unprocessed,
		ZeroWaits:          p.zeroWaits,
		PendingFoldedWaits: p.pendingFolded,
		PendingFoldedTicks: p.pendingFoldedTicks,
		ServiceName:        p.serviceName,
		SessionDate:        p.sessionDate,
		HasRPC:             p.hasRPC,
	}
}

// =============================================================================
// Classification Helpers
// =============================================================================

// splitCallVerb recognizes call lines: "EXEC #1:c=..." or the cursorless
// LOB form "LOBREAD: c=...".
func splitCallVerb(line string) (record.OpKind, string, bool) {
	if i := strings.Index(line, " #"); i > 0 {
		if op := record.OpKindFromVerb(line[:i]); op != 0 {
			return op, line[i+1:], true
		}
	}
	if i := strings.IndexByte(line, ':'); i > 0 {
		if op := record.OpKindFromVerb(line[:i]); op != 0 {
			return op, line[i+1:], true
		}
	}
	return 0, "", false
}

// isMajorMarker reports whether a line starts a recognizable section,
// used to infer the end of PARSE ERROR statement text.
func isMajorMarker(line string) bool {
	switch {
	case strings.HasPrefix(line, "PARSING IN CURSOR #"),
		strings.HasPrefix(line, "PARSE ERROR #"),
		strings.HasPrefix(line, "PARSE #"),
		strings.HasPrefix(line, "EXEC #"),
		strings.HasPrefix(line, "FETCH #"),
		strings.HasPrefix(line, "CLOSE #"),
		strings.HasPrefix(line, "WAIT #"),
		strings.HasPrefix(line, "STAT #"),
		strings.HasPrefix(line, "BINDS #"),
		strings.HasPrefix(line, "ERROR #"),
		strings.HasPrefix(line, "UNMAP #"),
		strings.HasPrefix(line, "SORT UNMAP #"),
		strings.HasPrefix(line, "XCTEND "),
		strings.HasPrefix(line, "RPC "),
		strings.HasPrefix(line, "LOB"),
		strings.HasPrefix(line, "==="),
		strings.HasPrefix(line, "*** "):
		return true
	}
	return false
}

func clipForLog(line string) string {
	const maxLen = 120
	if len(line) <= maxLen {
		return line
	}
	return line[:maxLen] + "..."
}
