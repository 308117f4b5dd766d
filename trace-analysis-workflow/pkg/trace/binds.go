// =============================================================================
// pkg/trace/binds.go - Bind Dump State Machine
// =============================================================================
//
// A BINDS block spans multiple lines and its shape changed across
// releases:
//
//	new style:  BINDS #N:            old style:  BINDS #1:
//	             Bind#0                           bind 0: dty=2 mxl=22(22) ...
//	              oacdty=02 mxl=...                 bfp=0c8b2bcc bln=22 avl=02
//	              kxsbbbfp=7efb...                  value=10
//	              value=42
//
// Quoted values can continue across lines until the closing quote. A
// bind with a buffer pointer but no value= line is a null bind. "No
// oacdef for this bind" means the bind has a name but no definition, so
// a placeholder is recorded instead of a value. A bare "value=" means
// the value was dumped as a raw memory block on the following lines.
//
// The machine consumes lines until one does not look like bind content;
// the parser then closes the block and re-classifies that line normally.
//
// =============================================================================

package trace

import (
	"fmt"
	"strings"
)

// maxBindValueLines caps multi-line value accumulation on malformed input.
const maxBindValueLines = 100

// BindEmitFunc receives one formatted bind row for a cursor.
type BindEmitFunc func(cur *CursorInfo, text string)

type bindMachine struct {
	cursor *CursorInfo
	emit   BindEmitFunc

	active   bool
	peeked   bool
	haveBind bool
	bindNo   int64
	sawValue bool
	sawBfp   bool
	noOacdef bool
	value    string

	collecting bool
	parts      []string
}

// Begin opens a bind block for the given cursor.
func (b *bindMachine) Begin(cur *CursorInfo, line uint32, emit BindEmitFunc) {
	if b.active {
		b.Close()
	}
	b.cursor = cur
	b.emit = emit
	b.active = true
	b.emit(cur, fmt.Sprintf("-- line %d", line))
}

// Active reports whether a bind block is open.
func (b *bindMachine) Active() bool {
	return b.active
}

// Consume feeds one line to the machine. Returns false when the line is
// not bind content; the block must then be closed and the line handled
// normally.
func (b *bindMachine) Consume(line string) bool {
	if !b.active {
		return false
	}

	if b.collecting {
		b.parts = append(b.parts, line)
		if strings.ContainsRune(line, '"') || len(b.parts) >= maxBindValueLines {
			b.value = strings.Join(b.parts, "\n")
			b.sawValue = true
			b.collecting = false
			b.parts = nil
		}
		return true
	}

	trim := strings.TrimLeft(line, " \t")
	switch {
	case strings.HasPrefix(trim, "Bind#"):
		b.closeBind()
		b.bindNo = parseInt64Prefix(trim[len("Bind#"):])
		b.haveBind = true
		return true

	case strings.HasPrefix(trim, "bind ") && strings.Contains(trim, ":"):
		b.closeBind()
		b.bindNo = parseInt64Prefix(trim[len("bind "):])
		b.haveBind = true
		if vi := strings.Index(trim, "value="); vi >= 0 {
			b.handleValue(trim[vi+len("value="):])
		}
		return true

	case strings.HasPrefix(trim, "value="):
		b.handleValue(trim[len("value="):])
		return true

	case strings.HasPrefix(trim, "No oacdef"):
		b.noOacdef = true
		return true

	case strings.HasPrefix(trim, "No bind buffers"):
		return true

	case strings.HasPrefix(trim, "Peeked Binds"):
		b.closeBind()
		b.peeked = true
		return true

	case isBindFieldLine(trim):
		if strings.HasPrefix(trim, "kxsbbbfp=") || strings.HasPrefix(trim, "bfp=") {
			b.sawBfp = true
		}
		return true

	default:
		return false
	}
}

// handleValue records the value text of the current bind. A quoted value
// whose closing quote is missing continues on the following lines.
func (b *bindMachine) handleValue(val string) {
	if len(val) >= 1 && val[0] == '"' && strings.Count(val, "\"") == 1 {
		b.collecting = true
		b.parts = []string{val}
		return
	}
	b.value = val
	b.sawValue = true
}

// Close finalizes the block, emitting the trailing bind if one is open.
func (b *bindMachine) Close() {
	if !b.active {
		return
	}
	b.closeBind()
	b.active = false
	b.peeked = false
	b.collecting = false
	b.parts = nil
}

func (b *bindMachine) closeBind() {
	if !b.haveBind {
		return
	}
	if b.collecting {
		// closing quote never arrived; keep what accumulated
		b.value = strings.Join(b.parts, "\n")
		b.sawValue = true
		b.collecting = false
		b.parts = nil
	}

	label := fmt.Sprintf("#%d", b.bindNo)
	if b.peeked {
		label += " (peeked)"
	}

	var val string
	switch {
	case b.noOacdef:
		val = "<name-only bind, no oacdef>"
	case b.sawValue:
		val = b.value
		if val == "" {
			val = "<binary dump>"
		}
	default:
		val = "<null>"
	}
	b.emit(b.cursor, label+": "+val)

	b.haveBind = false
	b.sawValue = false
	b.sawBfp = false
	b.noOacdef = false
	b.value = ""
}

// bindFieldPrefixes are the per-bind attribute lines across releases.
var bindFieldPrefixes = []string{
	"oacdty=", "oacflg=", "oacfl2=", "dty=",
	"mxl=", "mxlc=", "mal=", "scl=", "pre=",
	"fl2=", "frm=", "csi=", "siz=", "off=",
	"kxsbbbfp=", "bfp=", "bln=", "avl=", "flg=",
	"Mismatch",
}

func isBindFieldLine(trim string) bool {
	for _, p := range bindFieldPrefixes {
		if strings.HasPrefix(trim, p) {
			return true
		}
	}
	return false
}
