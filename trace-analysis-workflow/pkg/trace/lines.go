// =============================================================================
// pkg/trace/lines.go - Raw Line Field Extraction
// =============================================================================
//
// Pure functions that pull typed fields out of single trace lines. No
// state lives here; the parser state machine (parser.go) decides what to
// do with the extracted fields.
//
// Field parsing is deliberately lenient: a truncated file can cut a line
// mid-token ("tim=173591797"), and malformed numbers decay to zero
// rather than failing the whole run.
//
// =============================================================================

package trace

import (
	"strings"
)

// parseInt64Prefix parses the leading signed integer of s, stopping at the
// first non-digit. Returns 0 when s has no leading digits.
func parseInt64Prefix(s string) int64 {
	i := 0
	neg := false
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		neg = s[i] == '-'
		i++
	}
	var v int64
	start := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		v = v*10 + int64(s[i]-'0')
		i++
	}
	if i == start {
		return 0
	}
	if neg {
		return -v
	}
	return v
}

// parseUint64Prefix parses leading digits of s and returns the value plus
// the number of bytes consumed.
func parseUint64Prefix(s string) (uint64, int) {
	var v uint64
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		v = v*10 + uint64(s[i]-'0')
		i++
	}
	return v, i
}

// scanAttrs walks key=value attributes separated by spaces, commas or
// colons. Single-quoted values may contain any separator. Tokens without
// an equals sign are skipped.
func scanAttrs(s string, fn func(key, val string)) {
	i := 0
	for i < len(s) {
		for i < len(s) && (s[i] == ' ' || s[i] == ',' || s[i] == ':') {
			i++
		}
		start := i
		for i < len(s) && s[i] != '=' && s[i] != ' ' && s[i] != ',' {
			i++
		}
		if i >= len(s) || s[i] != '=' {
			continue
		}
		key := s[start:i]
		i++
		var val string
		if i < len(s) && s[i] == '\'' {
			i++
			vstart := i
			for i < len(s) && s[i] != '\'' {
				i++
			}
			val = s[vstart:i]
			if i < len(s) {
				i++
			}
		} else {
			vstart := i
			for i < len(s) && s[i] != ' ' && s[i] != ',' {
				i++
			}
			val = s[vstart:i]
		}
		fn(key, val)
	}
}

// =============================================================================
// Cursor Headers (PARSING IN CURSOR / PARSE ERROR)
// =============================================================================

// CursorHeader holds the attributes of a PARSING IN CURSOR or PARSE ERROR
// line. Err is nonzero only for PARSE ERROR.
type CursorHeader struct {
	Number uint64
	Len    int64
	Dep    int64
	UID    int64
	Oct    int64
	LID    int64
	Tim    int64
	HV     int64
	Err    int64
	Addr   string
	SQLID  string
}

// ParseCursorHeader extracts the attributes following the "#" in a cursor
// header line. rest must start at the '#' character. PARSING IN CURSOR
// separates the number from the attributes with a space, PARSE ERROR with
// a colon; both are accepted.
func ParseCursorHeader(rest string) CursorHeader {
	var h CursorHeader
	if len(rest) == 0 || rest[0] != '#' {
		return h
	}
	num, n := parseUint64Prefix(rest[1:])
	h.Number = num
	scanAttrs(rest[1+n:], func(key, val string) {
		switch key {
		case "len":
			h.Len = parseInt64Prefix(val)
		case "dep":
			h.Dep = parseInt64Prefix(val)
		case "uid":
			h.UID = parseInt64Prefix(val)
		case "oct":
			h.Oct = parseInt64Prefix(val)
		case "lid":
			h.LID = parseInt64Prefix(val)
		case "tim":
			h.Tim = parseInt64Prefix(val)
		case "hv":
			h.HV = parseInt64Prefix(val)
		case "err":
			h.Err = parseInt64Prefix(val)
		case "ad":
			h.Addr = val
		case "sqlid":
			h.SQLID = val
		}
	})
	return h
}

// =============================================================================
// Call Lines (PARSE/EXEC/FETCH/CLOSE/UNMAP/SORT UNMAP/LOB*)
// =============================================================================

// CallFields holds the comma-separated attributes of a database call line.
type CallFields struct {
	Number  uint64
	HasCur  bool
	C       int64
	E       int64
	P       int64
	CR      int64
	CU      int64
	Mis     int64
	R       int64
	Dep     int64
	OG      int64
	PLH     int64
	Tim     int64
	Type    int64
}

// ParseCallFields extracts call attributes. rest is everything after the
// operation verb: either "#N:c=0,e=120,..." or ":c=0,e=120,..." for the
// cursorless LOB form.
func ParseCallFields(rest string) CallFields {
	var f CallFields
	if len(rest) > 0 && rest[0] == '#' {
		num, n := parseUint64Prefix(rest[1:])
		f.Number = num
		f.HasCur = true
		rest = rest[1+n:]
	}
	scanAttrs(rest, func(key, val string) {
		switch key {
		case "c":
			f.C = parseInt64Prefix(val)
		case "e":
			f.E = parseInt64Prefix(val)
		case "p":
			f.P = parseInt64Prefix(val)
		case "cr":
			f.CR = parseInt64Prefix(val)
		case "cu":
			f.CU = parseInt64Prefix(val)
		case "mis":
			f.Mis = parseInt64Prefix(val)
		case "r":
			f.R = parseInt64Prefix(val)
		case "dep":
			f.Dep = parseInt64Prefix(val)
		case "og":
			f.OG = parseInt64Prefix(val)
		case "plh":
			f.PLH = parseInt64Prefix(val)
		case "tim":
			f.Tim = parseInt64Prefix(val)
		case "type":
			f.Type = parseInt64Prefix(val)
		}
	})
	return f
}

// =============================================================================
// WAIT Lines
// =============================================================================

// WaitFields holds one parsed WAIT line. P holds up to three positional
// parameters; parameter names vary by release (p1/p2/p3 versus named
// fields like file#/block#/blocks) and names may themselves contain
// spaces ("driver id"), so only the values are kept.
type WaitFields struct {
	Number uint64
	Event  string
	Ela    int64
	P      [3]int64
	NumP   int
	Obj    int64
	HasObj bool
	Tim    int64
}

// ParseWaitLine extracts one WAIT line. rest must start at the '#'.
// Returns false if the line has no recognizable nam='...' section.
func ParseWaitLine(rest string) (WaitFields, bool) {
	var w WaitFields
	if len(rest) == 0 || rest[0] != '#' {
		return w, false
	}
	num, n := parseUint64Prefix(rest[1:])
	w.Number = num
	rest = rest[1+n:]

	ni := strings.Index(rest, "nam='")
	if ni < 0 {
		return w, false
	}
	rest = rest[ni+5:]
	q := strings.IndexByte(rest, '\'')
	if q < 0 {
		return w, false
	}
	w.Event = rest[:q]
	rest = rest[q+1:]

	ei := strings.Index(rest, "ela=")
	if ei < 0 {
		return w, false
	}
	rest = rest[ei+4:]
	for len(rest) > 0 && rest[0] == ' ' {
		rest = rest[1:]
	}
	w.Ela = parseInt64Prefix(rest)
	_, consumed := parseUint64Prefix(rest)
	rest = rest[consumed:]

	// obj# and tim trail the positional parameters on newer releases.
	middleEnd := len(rest)
	if oi := strings.Index(rest, "obj#="); oi >= 0 {
		w.Obj = parseInt64Prefix(rest[oi+5:])
		w.HasObj = true
		if oi < middleEnd {
			middleEnd = oi
		}
	}
	if ti := strings.LastIndex(rest, "tim="); ti >= 0 {
		w.Tim = parseInt64Prefix(rest[ti+4:])
		if ti < middleEnd {
			middleEnd = ti
		}
	}
	w.NumP = parseWaitParams(rest[:middleEnd], &w.P)
	return w, true
}

// parseWaitParams collects the values of up to three key=value parameters.
// Tokens without an equals sign extend the following parameter's name
// ("driver id=675562835") and are otherwise ignored.
func parseWaitParams(seg string, out *[3]int64) int {
	count := 0
	for _, tok := range strings.Fields(seg) {
		eq := strings.IndexByte(tok, '=')
		if eq < 0 {
			continue
		}
		if count < 3 {
			out[count] = parseInt64Prefix(tok[eq+1:])
			count++
		} else {
			break
		}
	}
	return count
}

// =============================================================================
// STAT Lines
// =============================================================================

// StatFields holds one parsed STAT line. Seg* fields come from the
// parenthesized segment statistics inside op='...' when present.
type StatFields struct {
	Number    uint64
	ID        int64
	Cnt       int64
	PID       int64
	Pos       int64
	Obj       int64
	Op        string
	PartStart string
	PartStop  string
	CR        int64
	PR        int64
	PW        int64
	Time      int64
	Cost      int64
	Size      int64
	Card      int64
	HasSeg    bool
}

// ParseStatLine extracts one STAT line. rest must start at the '#'.
func ParseStatLine(rest string) (StatFields, bool) {
	var s StatFields
	if len(rest) == 0 || rest[0] != '#' {
		return s, false
	}
	num, n := parseUint64Prefix(rest[1:])
	s.Number = num
	scanAttrs(rest[1+n:], func(key, val string) {
		switch key {
		case "id":
			s.ID = parseInt64Prefix(val)
		case "cnt":
			s.Cnt = parseInt64Prefix(val)
		case "pid":
			s.PID = parseInt64Prefix(val)
		case "pos":
			s.Pos = parseInt64Prefix(val)
		case "obj":
			s.Obj = parseInt64Prefix(val)
		case "op":
			s.Op = val
		}
	})
	s.splitOp()
	return s, true
}

// splitOp separates the plan operation text from its optional trailing
// segment statistics "(cr=.. pr=.. pw=.. time=.. us ...)" and partition
// range marker "PARTITION: <start> <stop>".
func (s *StatFields) splitOp() {
	op := s.Op
	if idx := strings.LastIndex(op, "(cr="); idx >= 0 && strings.HasSuffix(op, ")") {
		seg := op[idx+1 : len(op)-1]
		op = strings.TrimRight(op[:idx], " ")
		s.HasSeg = true
		for _, tok := range strings.Fields(seg) {
			eq := strings.IndexByte(tok, '=')
			if eq < 0 {
				continue
			}
			v := parseInt64Prefix(tok[eq+1:])
			switch tok[:eq] {
			case "cr":
				s.CR = v
			case "pr":
				s.PR = v
			case "pw":
				s.PW = v
			case "time":
				s.Time = v
			case "cost":
				s.Cost = v
			case "size":
				s.Size = v
			case "card":
				s.Card = v
			}
		}
	}
	if pi := strings.Index(op, " PARTITION: "); pi >= 0 {
		parts := strings.Fields(op[pi+len(" PARTITION: "):])
		if len(parts) >= 2 {
			s.PartStart = parts[0]
			s.PartStop = parts[1]
		} else if len(parts) == 1 {
			s.PartStart = parts[0]
		}
		op = op[:pi] + " PARTITION"
	}
	s.Op = op
}

// =============================================================================
// XCTEND Lines
// =============================================================================

// XctendFields holds one parsed XCTEND (transaction end) line.
type XctendFields struct {
	Rollback bool
	ReadOnly bool
	Tim      int64
}

// ParseXctendLine extracts the attributes after "XCTEND ".
func ParseXctendLine(rest string) XctendFields {
	var x XctendFields
	scanAttrs(rest, func(key, val string) {
		switch key {
		case "rlbk":
			x.Rollback = parseInt64Prefix(val) != 0
		case "rd_only":
			x.ReadOnly = parseInt64Prefix(val) != 0
		case "tim":
			x.Tim = parseInt64Prefix(val)
		}
	})
	return x
}

// =============================================================================
// ERROR Lines
// =============================================================================

// ErrorFields holds one parsed ERROR line.
type ErrorFields struct {
	Number uint64
	Err    int64
	Tim    int64
}

// ParseErrorLine extracts one ERROR line. rest must start at the '#'.
func ParseErrorLine(rest string) (ErrorFields, bool) {
	var e ErrorFields
	if len(rest) == 0 || rest[0] != '#' {
		return e, false
	}
	num, n := parseUint64Prefix(rest[1:])
	e.Number = num
	scanAttrs(rest[1+n:], func(key, val string) {
		switch key {
		case "err":
			e.Err = parseInt64Prefix(val)
		case "tim":
			e.Tim = parseInt64Prefix(val)
		}
	})
	return e, true
}

// =============================================================================
// Header Markers
// =============================================================================

// ParseParenValue extracts the text between the first '(' and the last ')'
// of a "*** MODULE NAME:(x) timestamp" style marker. The trailing
// timestamp after the closing parenthesis is discarded.
func ParseParenValue(line string) (string, bool) {
	open := strings.IndexByte(line, '(')
	if open < 0 {
		return "", false
	}
	close := strings.LastIndexByte(line, ')')
	if close <= open {
		return "", false
	}
	return line[open+1 : close], true
}

// ParseReleaseMajor extracts the major version from an Oracle release
// banner ("... Release 11.2.0.3.0 - ..."). Returns 0 when no release
// number follows the marker.
func ParseReleaseMajor(line string) int64 {
	idx := strings.Index(line, "Release ")
	if idx < 0 {
		return 0
	}
	return parseInt64Prefix(line[idx+len("Release "):])
}

// isMemoryDumpRow reports whether a line looks like a hex row of a
// "Dump of memory" block: leading hex address followed by space-separated
// hex words.
func isMemoryDumpRow(line string) bool {
	if len(line) == 0 {
		return false
	}
	i := 0
	for i < len(line) && isHexDigit(line[i]) {
		i++
	}
	if i < 8 || i >= len(line) {
		return false
	}
	return line[i] == ' '
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')
}
