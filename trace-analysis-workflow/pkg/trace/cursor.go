// =============================================================================
// pkg/trace/cursor.go - Cursor Identity Resolution
// =============================================================================
//
// Oracle reuses trace cursor numbers freely: when a cursor is closed its
// number is handed to the next statement, so "#1" means different SQL at
// different points in the file. The CursorTable gives every
// (number, hash value) statement identity its own stable internal index:
//
//	- A PARSING IN CURSOR for a (number, hash) pair already known re-uses
//	  that cursor and makes it the newest owner of the number.
//	- A different hash under the same number allocates a fresh index.
//	- Non-parsing lines resolve a number to its newest owner.
//
// Two indexes are reserved: 0 for trace cursor #0 (cursorless and
// background activity) and 9999 for activity whose cursor number was
// never introduced, typically because the trace was truncated at the
// front.
//
// =============================================================================

package trace

import (
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/record"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/types"
)

// CursorInfo is the in-memory state for one allocated cursor index.
type CursorInfo struct {
	Desc record.Cursor

	// BindSeq is the next bind-record sequence number for this cursor.
	BindSeq uint32

	// Plans tracks row-source plan sets, nil until the first STAT line.
	Plans *PlanTracker
}

// CursorTable allocates and resolves cursor indexes.
type CursorTable struct {
	byIndex  map[uint32]*CursorInfo
	byNumber map[uint64][]uint32
	all      []*CursorInfo
	nextIdx  uint32
}

// NewCursorTable creates a table with the zero sentinel pre-allocated.
func NewCursorTable() *CursorTable {
	t := &CursorTable{
		byIndex:  make(map[uint32]*CursorInfo),
		byNumber: make(map[uint64][]uint32),
		nextIdx:  1,
	}
	zero := &CursorInfo{Desc: record.Cursor{Index: types.CursorZeroIndex}}
	t.byIndex[types.CursorZeroIndex] = zero
	t.byNumber[0] = []uint32{types.CursorZeroIndex}
	t.all = append(t.all, zero)
	return t
}

// Resolve returns the newest cursor owning the given trace number.
func (t *CursorTable) Resolve(number uint64) (*CursorInfo, bool) {
	idxs := t.byNumber[number]
	if len(idxs) == 0 {
		return nil, false
	}
	return t.byIndex[idxs[len(idxs)-1]], true
}

// Introduce handles a PARSING IN CURSOR (or PARSE ERROR) identity.
// An existing (number, hash) pair is re-used and becomes the newest
// owner of the number; otherwise a fresh index is allocated. isNew
// reports whether the returned cursor was just allocated.
func (t *CursorTable) Introduce(number uint64, hash uint64) (info *CursorInfo, isNew bool) {
	idxs := t.byNumber[number]
	for i := len(idxs) - 1; i >= 0; i-- {
		existing := t.byIndex[idxs[i]]
		if existing.Desc.Hash == hash {
			// Re-register so the pair becomes the newest owner again.
			if i != len(idxs)-1 {
				t.byNumber[number] = append(idxs, idxs[i])
			}
			return existing, false
		}
	}

	idx := t.nextIdx
	if idx == types.CursorUnaccountedIndex {
		idx++
	}
	t.nextIdx = idx + 1

	info = &CursorInfo{
		Desc: record.Cursor{
			Index:  idx,
			Number: number,
			Hash:   hash,
		},
	}
	t.byIndex[idx] = info
	t.byNumber[number] = append(t.byNumber[number], idx)
	t.all = append(t.all, info)
	return info, true
}

// Zero returns the cursorless-activity sentinel.
func (t *CursorTable) Zero() *CursorInfo {
	return t.byIndex[types.CursorZeroIndex]
}

// Unaccounted returns the sentinel for activity whose cursor was never
// introduced, allocating it on first use.
func (t *CursorTable) Unaccounted() *CursorInfo {
	if info, ok := t.byIndex[types.CursorUnaccountedIndex]; ok {
		return info
	}
	info := &CursorInfo{Desc: record.Cursor{Index: types.CursorUnaccountedIndex}}
	t.byIndex[types.CursorUnaccountedIndex] = info
	t.all = append(t.all, info)
	return info
}

// All returns every allocated cursor in allocation order.
func (t *CursorTable) All() []*CursorInfo {
	return t.all
}

// Count returns the number of allocated cursors, sentinels included.
func (t *CursorTable) Count() int {
	return len(t.all)
}
