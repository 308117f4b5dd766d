package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallRoundTrip(t *testing.T) {
	in := Call{
		Op:      OpFetch,
		Depth:   2,
		Goal:    1,
		CPU:     10000,
		Elapsed: 12345,
		Disk:    7,
		Query:   153,
		Current: 3,
		Rows:    42,
		Misses:  1,
		Gap:     250000,
		Tim:     5676732772,
		Module:  "svc mgr",
		Action:  "load",
	}
	out, err := DecodeCall(EncodeCall(&in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestCallZeroFieldsOmitted(t *testing.T) {
	in := Call{Op: OpExec}
	buf := EncodeCall(&in)
	assert.Less(t, len(buf), 8, "zero-valued fields must not be encoded")
	out, err := DecodeCall(buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestWaitRoundTripNegativeObj(t *testing.T) {
	// obj#=-1 is the common idle-wait case; the zigzag path must keep it
	in := Wait{
		Event:   "SQL*Net message from client",
		Elapsed: 245,
		P1:      1413697536,
		P2:      1,
		Obj:     -1,
		Tim:     1738591797,
	}
	out, err := DecodeWait(EncodeWait(&in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestPlanRoundTrip(t *testing.T) {
	in := Plan{
		ID:        3,
		Parent:    1,
		Rows:      12,
		Object:    52167,
		Op:        "INDEX RANGE SCAN T_PK",
		PartStart: "3",
		PartStop:  "7",
		CR:        4,
		PR:        1,
		Time:      88,
		Cost:      3,
		Size:      120,
		Card:      12,
		HasSeg:    true,
	}
	out, err := DecodePlan(EncodePlan(&in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestSmallRecordRoundTrips(t *testing.T) {
	oe := OraError{Code: 1555, Tim: 828328170}
	gotErr, err := DecodeOraError(EncodeOraError(&oe))
	require.NoError(t, err)
	assert.Equal(t, oe, gotErr)

	tx := Txn{Rollback: true, ReadOnly: true, Tim: 99}
	gotTx, err := DecodeTxn(EncodeTxn(&tx))
	require.NoError(t, err)
	assert.Equal(t, tx, gotTx)

	m := Marker{Text: "SELECT owner FROM books WHERE isbn = :1"}
	gotM, err := DecodeMarker(EncodeMarker(&m))
	require.NoError(t, err)
	assert.Equal(t, m, gotM)

	r := RPC{Kind: RPCExec, CPU: 120, Elapsed: 340}
	gotR, err := DecodeRPC(EncodeRPC(&r))
	require.NoError(t, err)
	assert.Equal(t, r, gotR)
}

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{
		Index:     17,
		Number:    3,
		Hash:      2698084338,
		SQLID:     "9babjv8yq8ru3",
		Length:    52,
		Depth:     1,
		UID:       174,
		LID:       174,
		OCT:       3,
		ParseTim:  5676732772,
		ParseLine: 8841,
		ErrCode:   942,
		Module:    "inventory-sync",
		Action:    "load",
		RPCBinds:  2,
	}
	out, err := DecodeCursor(EncodeCursor(&in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeRejectsCorruptPayload(t *testing.T) {
	// a truncated varint must surface an error, not a partial record
	buf := EncodeCall(&Call{Op: OpParse, CPU: 300, Elapsed: 5000000})
	_, err := DecodeCall(buf[:len(buf)-1])
	assert.Error(t, err)
}

func TestOpKindFromVerb(t *testing.T) {
	assert.Equal(t, OpParse, OpKindFromVerb("PARSE"))
	assert.Equal(t, OpExec, OpKindFromVerb("EXEC"))
	assert.Equal(t, OpFetch, OpKindFromVerb("FETCH"))
	assert.Equal(t, OpSortUnmap, OpKindFromVerb("SORT UNMAP"))
	assert.Equal(t, OpLobRead, OpKindFromVerb("LOBREAD"))
	assert.Equal(t, OpKind(0), OpKindFromVerb("WAIT"))
	assert.Equal(t, OpKind(0), OpKindFromVerb(""))
}
