// =============================================================================
// pkg/record/codec.go - Record Wire Codec
// =============================================================================
//
// Records are stored as protobuf wire format built directly with
// encoding/protowire: varint fields for numbers, length-delimited fields
// for strings. Zero values are omitted on encode and default on decode,
// so sparse records stay small. Signed numeric fields use zigzag
// encoding (obj# and wait parameters can be negative).
//
// The layouts are append-only: new fields get new numbers, old numbers
// are never reused, and unknown fields are skipped on decode.
//
// =============================================================================

package record

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// =============================================================================
// Encode/Decode Primitives
// =============================================================================

func appendUvarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendSigned(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(v))
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}

// fieldVisitor receives one decoded field. uval is set for varint fields,
// bval for length-delimited fields.
type fieldVisitor func(num protowire.Number, uval uint64, bval []byte)

// walkFields decodes the wire stream field by field, skipping field types
// the visitor does not handle.
func walkFields(data []byte, visit fieldVisitor) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return errors.New("corrupt record: bad field tag")
		}
		data = data[n:]
		switch typ {
		case protowire.VarintType:
			v, vn := protowire.ConsumeVarint(data)
			if vn < 0 {
				return errors.Errorf("corrupt record: bad varint in field %d", num)
			}
			data = data[vn:]
			visit(num, v, nil)
		case protowire.BytesType:
			v, vn := protowire.ConsumeBytes(data)
			if vn < 0 {
				return errors.Errorf("corrupt record: bad bytes in field %d", num)
			}
			data = data[vn:]
			visit(num, 0, v)
		default:
			vn := protowire.ConsumeFieldValue(num, typ, data)
			if vn < 0 {
				return errors.Errorf("corrupt record: unsupported wire type in field %d", num)
			}
			data = data[vn:]
		}
	}
	return nil
}

func zig(v uint64) int64 {
	return protowire.DecodeZigZag(v)
}

// =============================================================================
// Call
// =============================================================================

// Call field layout:
//
//	1: op    2: depth  3: goal    4: cpu     5: elapsed
//	6: disk  7: query  8: current 9: rows   10: misses
//	11: gap 12: tim   13: module 14: action
func EncodeCall(c *Call) []byte {
	b := make([]byte, 0, 64)
	b = appendUvarint(b, 1, uint64(c.Op))
	b = appendSigned(b, 2, int64(c.Depth))
	b = appendSigned(b, 3, int64(c.Goal))
	b = appendSigned(b, 4, c.CPU)
	b = appendSigned(b, 5, c.Elapsed)
	b = appendSigned(b, 6, c.Disk)
	b = appendSigned(b, 7, c.Query)
	b = appendSigned(b, 8, c.Current)
	b = appendSigned(b, 9, c.Rows)
	b = appendSigned(b, 10, c.Misses)
	b = appendSigned(b, 11, c.Gap)
	b = appendSigned(b, 12, c.Tim)
	b = appendString(b, 13, c.Module)
	b = appendString(b, 14, c.Action)
	return b
}

func DecodeCall(data []byte) (Call, error) {
	var c Call
	err := walkFields(data, func(num protowire.Number, uval uint64, bval []byte) {
		switch num {
		case 1:
			c.Op = OpKind(uval)
		case 2:
			c.Depth = int32(zig(uval))
		case 3:
			c.Goal = int32(zig(uval))
		case 4:
			c.CPU = zig(uval)
		case 5:
			c.Elapsed = zig(uval)
		case 6:
			c.Disk = zig(uval)
		case 7:
			c.Query = zig(uval)
		case 8:
			c.Current = zig(uval)
		case 9:
			c.Rows = zig(uval)
		case 10:
			c.Misses = zig(uval)
		case 11:
			c.Gap = zig(uval)
		case 12:
			c.Tim = zig(uval)
		case 13:
			c.Module = string(bval)
		case 14:
			c.Action = string(bval)
		}
	})
	return c, err
}

// =============================================================================
// Wait
// =============================================================================

// Wait field layout:
//
//	1: event  2: elapsed  3: p1  4: p2  5: p3
//	6: obj    7: tim      8: module  9: action
func EncodeWait(w *Wait) []byte {
	b := make([]byte, 0, 64)
	b = appendString(b, 1, w.Event)
	b = appendSigned(b, 2, w.Elapsed)
	b = appendSigned(b, 3, w.P1)
	b = appendSigned(b, 4, w.P2)
	b = appendSigned(b, 5, w.P3)
	b = appendSigned(b, 6, w.Obj)
	b = appendSigned(b, 7, w.Tim)
	b = appendString(b, 8, w.Module)
	b = appendString(b, 9, w.Action)
	return b
}

func DecodeWait(data []byte) (Wait, error) {
	var w Wait
	err := walkFields(data, func(num protowire.Number, uval uint64, bval []byte) {
		switch num {
		case 1:
			w.Event = string(bval)
		case 2:
			w.Elapsed = zig(uval)
		case 3:
			w.P1 = zig(uval)
		case 4:
			w.P2 = zig(uval)
		case 5:
			w.P3 = zig(uval)
		case 6:
			w.Obj = zig(uval)
		case 7:
			w.Tim = zig(uval)
		case 8:
			w.Module = string(bval)
		case 9:
			w.Action = string(bval)
		}
	})
	return w, err
}

// =============================================================================
// Plan
// =============================================================================

// Plan field layout:
//
//	1: id    2: parent  3: rows  4: object  5: op
//	6: partStart  7: partStop
//	8: cr  9: pr  10: pw  11: time  12: cost  13: size  14: card
//	15: hasSeg
func EncodePlan(p *Plan) []byte {
	b := make([]byte, 0, 96)
	b = appendSigned(b, 1, p.ID)
	b = appendSigned(b, 2, p.Parent)
	b = appendSigned(b, 3, p.Rows)
	b = appendSigned(b, 4, p.Object)
	b = appendString(b, 5, p.Op)
	b = appendString(b, 6, p.PartStart)
	b = appendString(b, 7, p.PartStop)
	b = appendSigned(b, 8, p.CR)
	b = appendSigned(b, 9, p.PR)
	b = appendSigned(b, 10, p.PW)
	b = appendSigned(b, 11, p.Time)
	b = appendSigned(b, 12, p.Cost)
	b = appendSigned(b, 13, p.Size)
	b = appendSigned(b, 14, p.Card)
	b = appendBool(b, 15, p.HasSeg)
	return b
}

func DecodePlan(data []byte) (Plan, error) {
	var p Plan
	err := walkFields(data, func(num protowire.Number, uval uint64, bval []byte) {
		switch num {
		case 1:
			p.ID = zig(uval)
		case 2:
			p.Parent = zig(uval)
		case 3:
			p.Rows = zig(uval)
		case 4:
			p.Object = zig(uval)
		case 5:
			p.Op = string(bval)
		case 6:
			p.PartStart = string(bval)
		case 7:
			p.PartStop = string(bval)
		case 8:
			p.CR = zig(uval)
		case 9:
			p.PR = zig(uval)
		case 10:
			p.PW = zig(uval)
		case 11:
			p.Time = zig(uval)
		case 12:
			p.Cost = zig(uval)
		case 13:
			p.Size = zig(uval)
		case 14:
			p.Card = zig(uval)
		case 15:
			p.HasSeg = uval != 0
		}
	})
	return p, err
}

// =============================================================================
// OraError
// =============================================================================

// OraError field layout: 1: code  2: tim
func EncodeOraError(e *OraError) []byte {
	b := make([]byte, 0, 16)
	b = appendSigned(b, 1, e.Code)
	b = appendSigned(b, 2, e.Tim)
	return b
}

func DecodeOraError(data []byte) (OraError, error) {
	var e OraError
	err := walkFields(data, func(num protowire.Number, uval uint64, bval []byte) {
		switch num {
		case 1:
			e.Code = zig(uval)
		case 2:
			e.Tim = zig(uval)
		}
	})
	return e, err
}

// =============================================================================
// Txn
// =============================================================================

// Txn field layout: 1: rollback  2: readOnly  3: tim
func EncodeTxn(t *Txn) []byte {
	b := make([]byte, 0, 16)
	b = appendBool(b, 1, t.Rollback)
	b = appendBool(b, 2, t.ReadOnly)
	b = appendSigned(b, 3, t.Tim)
	return b
}

func DecodeTxn(data []byte) (Txn, error) {
	var t Txn
	err := walkFields(data, func(num protowire.Number, uval uint64, bval []byte) {
		switch num {
		case 1:
			t.Rollback = uval != 0
		case 2:
			t.ReadOnly = uval != 0
		case 3:
			t.Tim = zig(uval)
		}
	})
	return t, err
}

// =============================================================================
// Marker
// =============================================================================

// Marker field layout: 1: text
func EncodeMarker(m *Marker) []byte {
	b := make([]byte, 0, len(m.Text)+4)
	b = appendString(b, 1, m.Text)
	return b
}

func DecodeMarker(data []byte) (Marker, error) {
	var m Marker
	err := walkFields(data, func(num protowire.Number, uval uint64, bval []byte) {
		if num == 1 {
			m.Text = string(bval)
		}
	})
	return m, err
}

// =============================================================================
// RPC
// =============================================================================

// RPC field layout: 1: kind  2: text  3: cpu  4: elapsed
func EncodeRPC(r *RPC) []byte {
	b := make([]byte, 0, len(r.Text)+16)
	b = appendUvarint(b, 1, uint64(r.Kind))
	b = appendString(b, 2, r.Text)
	b = appendSigned(b, 3, r.CPU)
	b = appendSigned(b, 4, r.Elapsed)
	return b
}

func DecodeRPC(data []byte) (RPC, error) {
	var r RPC
	err := walkFields(data, func(num protowire.Number, uval uint64, bval []byte) {
		switch num {
		case 1:
			r.Kind = RPCKind(uval)
		case 2:
			r.Text = string(bval)
		case 3:
			r.CPU = zig(uval)
		case 4:
			r.Elapsed = zig(uval)
		}
	})
	return r, err
}

// =============================================================================
// Cursor Descriptor
// =============================================================================

// Cursor field layout:
//
//	1: index  2: number  3: hash  4: sqlid  5: length
//	6: depth  7: uid     8: lid   9: oct   10: parseTim
//	11: parseLine  12: errCode  13: module  14: action  15: rpcBinds
func EncodeCursor(c *Cursor) []byte {
	b := make([]byte, 0, 96)
	b = appendUvarint(b, 1, uint64(c.Index))
	b = appendUvarint(b, 2, c.Number)
	b = appendUvarint(b, 3, c.Hash)
	b = appendString(b, 4, c.SQLID)
	b = appendSigned(b, 5, c.Length)
	b = appendSigned(b, 6, c.Depth)
	b = appendSigned(b, 7, c.UID)
	b = appendSigned(b, 8, c.LID)
	b = appendSigned(b, 9, c.OCT)
	b = appendSigned(b, 10, c.ParseTim)
	b = appendUvarint(b, 11, uint64(c.ParseLine))
	b = appendSigned(b, 12, c.ErrCode)
	b = appendString(b, 13, c.Module)
	b = appendString(b, 14, c.Action)
	b = appendSigned(b, 15, c.RPCBinds)
	return b
}

func DecodeCursor(data []byte) (Cursor, error) {
	var c Cursor
	err := walkFields(data, func(num protowire.Number, uval uint64, bval []byte) {
		switch num {
		case 1:
			c.Index = uint32(uval)
		case 2:
			c.Number = uval
		case 3:
			c.Hash = uval
		case 4:
			c.SQLID = string(bval)
		case 5:
			c.Length = zig(uval)
		case 6:
			c.Depth = zig(uval)
		case 7:
			c.UID = zig(uval)
		case 8:
			c.LID = zig(uval)
		case 9:
			c.OCT = zig(uval)
		case 10:
			c.ParseTim = zig(uval)
		case 11:
			c.ParseLine = uint32(uval)
		case 12:
			c.ErrCode = zig(uval)
		case 13:
			c.Module = string(bval)
		case 14:
			c.Action = string(bval)
		case 15:
			c.RPCBinds = zig(uval)
		}
	})
	return c, err
}
