package types

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordKeyRoundTrip(t *testing.T) {
	key := RecordKey(17, 3, 8841)
	require.Len(t, key, 9)

	idx, kind, line, err := SplitRecordKey(key)
	require.NoError(t, err)
	assert.Equal(t, uint32(17), idx)
	assert.Equal(t, byte(3), kind)
	assert.Equal(t, uint32(8841), line)
}

func TestRecordKeyOrdering(t *testing.T) {
	// lexicographic byte order must equal (cursor, kind, line) order, so a
	// plain store scan delivers records in report order
	keys := [][]byte{
		RecordKey(0, 2, 500),
		RecordKey(1, 1, 9),
		RecordKey(1, 2, 3),
		RecordKey(1, 2, 4),
		RecordKey(1, 3, 1),
		RecordKey(2, 1, 1),
		RecordKey(256, 1, 1),
		RecordKey(CursorUnaccountedIndex, 3, 70000),
	}
	for i := 1; i < len(keys); i++ {
		assert.Negative(t, bytes.Compare(keys[i-1], keys[i]),
			"key %d must sort before key %d", i-1, i)
	}
}

func TestSplitRecordKeyRejectsWrongLength(t *testing.T) {
	_, _, _, err := SplitRecordKey([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestBindKeyPrefix(t *testing.T) {
	key := BindKey(17, 2)
	prefix := BindKeyPrefix(17)
	assert.True(t, bytes.HasPrefix(key, prefix))
	assert.False(t, bytes.HasPrefix(BindKey(18, 0), prefix))

	// sequence order within one cursor
	assert.Negative(t, bytes.Compare(BindKey(17, 1), BindKey(17, 2)))
}

func TestRunSummaryWallClock(t *testing.T) {
	s := RunSummary{FirstTim: 1000000, LastTim: 1001300}
	assert.Equal(t, int64(1300), s.WallClock())

	s = RunSummary{FirstTim: 1000, LastTim: 9000, BaselineOffset: 5000}
	assert.Equal(t, int64(3000), s.WallClock())

	// an offset overshooting the span clamps at zero
	s = RunSummary{FirstTim: 1000, LastTim: 2000, BaselineOffset: 5000}
	assert.Zero(t, s.WallClock())
}

func TestTraceIdentityEqual(t *testing.T) {
	a := TraceIdentity{Path: "/tmp/x.trc", Size: 100, ModTime: 5}
	assert.True(t, a.Equal(TraceIdentity{Path: "/tmp/x.trc", Size: 100, ModTime: 5}))
	assert.False(t, a.Equal(TraceIdentity{Path: "/tmp/x.trc", Size: 101, ModTime: 5}))
	assert.False(t, a.Equal(TraceIdentity{Path: "/tmp/y.trc", Size: 100, ModTime: 5}))
}
