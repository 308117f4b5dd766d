// =============================================================================
// pkg/report/topn.go - External-Sort Rankings
// =============================================================================
//
// Two report sections need orderings that the record store's key layout
// does not provide: the top statements per wait event (event asc, waited
// time desc) and the most re-read disk blocks (file#/block# grouping).
// Both are built with spill-to-disk collectors so they stay bounded in
// memory no matter how many cursors or disk reads the trace holds.
//
// =============================================================================

package report

import (
	"encoding/binary"
	"sort"

	erigonlog "github.com/erigontech/erigon/common/log/v3"
	"github.com/erigontech/erigon/db/etl"
	"github.com/pkg/errors"
)

// TopRevisitedBlocks caps the block re-read table.
const TopRevisitedBlocks = 20

// =============================================================================
// Top Statements Per Wait Event
// =============================================================================

// eventEntry is one (event, cursor) contribution after ranking.
type eventEntry struct {
	Event  string
	Cursor uint32
	Hash   uint64
	Ticks  int64
	Count  int64
}

// eventRanker collects one entry per (event, cursor) pair and replays
// them grouped by event, worst statement first.
type eventRanker struct {
	collector *etl.Collector
}

func newEventRanker(tmpDir string) *eventRanker {
	return &eventRanker{
		collector: etl.NewCollector("report/top-events", tmpDir,
			etl.NewSortableBuffer(etl.BufferOptimalSize), erigonlog.New()),
	}
}

// Collect records one cursor's total time spent in one event. The key
// sorts by event name ascending then waited time descending, so the
// load phase sees each event's statements worst-first.
func (r *eventRanker) Collect(event string, cursor uint32, hash uint64, ticks, count int64) error {
	key := make([]byte, 0, len(event)+13)
	key = append(key, event...)
	key = append(key, 0)
	key = binary.BigEndian.AppendUint64(key, ^uint64(ticks))
	key = binary.BigEndian.AppendUint32(key, cursor)

	val := make([]byte, 28)
	binary.BigEndian.PutUint32(val[0:4], cursor)
	binary.BigEndian.PutUint64(val[4:12], hash)
	binary.BigEndian.PutUint64(val[12:20], uint64(ticks))
	binary.BigEndian.PutUint64(val[20:28], uint64(count))
	return r.collector.Collect(key, val)
}

// Replay streams the ranked entries in sorted order. fn is called once
// per (event, cursor) pair; grouping into per-event top lists is the
// caller's concern.
func (r *eventRanker) Replay(fn func(e eventEntry) error) error {
	load := func(k, v []byte, _ etl.CurrentTableReader, _ etl.LoadNextFunc) error {
		sep := -1
		for i, b := range k {
			if b == 0 {
				sep = i
				break
			}
		}
		if sep < 0 || len(v) < 28 {
			return errors.Errorf("malformed ranking entry (key %d bytes, value %d bytes)", len(k), len(v))
		}
		return fn(eventEntry{
			Event:  string(k[:sep]),
			Cursor: binary.BigEndian.Uint32(v[0:4]),
			Hash:   binary.BigEndian.Uint64(v[4:12]),
			Ticks:  int64(binary.BigEndian.Uint64(v[12:20])),
			Count:  int64(binary.BigEndian.Uint64(v[20:28])),
		})
	}
	if err := r.collector.Load(nil, "", load, etl.TransformArgs{}); err != nil {
		return errors.Wrap(err, "replaying wait-event ranking")
	}
	return nil
}

func (r *eventRanker) Close() {
	r.collector.Close()
}

// =============================================================================
// Block Revisit Ranking
// =============================================================================

// blockEntry is one distinct (file#, block#) with its read count.
type blockEntry struct {
	File  int64
	Block int64
	Count int64
	Ticks int64
}

// blockRanker collects one entry per disk-read wait occurrence keyed by
// (file#, block#). The sorted replay groups identical blocks together,
// so counting re-reads is a matter of counting consecutive duplicates.
type blockRanker struct {
	collector *etl.Collector
}

func newBlockRanker(tmpDir string) *blockRanker {
	return &blockRanker{
		collector: etl.NewCollector("report/block-revisits", tmpDir,
			etl.NewSortableBuffer(etl.BufferOptimalSize), erigonlog.New()),
	}
}

// Collect records one physical read of block (file, block) that took
// ticks time units.
func (r *blockRanker) Collect(file, block, ticks int64) error {
	key := make([]byte, 8)
	binary.BigEndian.PutUint32(key[0:4], uint32(file))
	binary.BigEndian.PutUint32(key[4:8], uint32(block))
	val := make([]byte, 8)
	binary.BigEndian.PutUint64(val, uint64(ticks))
	return r.collector.Collect(key, val)
}

// Top returns the most frequently read blocks, read count descending,
// ties broken by (file#, block#). Blocks read only once are excluded.
func (r *blockRanker) Top(limit int) ([]blockEntry, error) {
	var (
		top  []blockEntry
		cur  blockEntry
		open bool
	)
	flush := func() {
		if open && cur.Count > 1 {
			top = append(top, cur)
		}
		open = false
	}
	load := func(k, v []byte, _ etl.CurrentTableReader, _ etl.LoadNextFunc) error {
		if len(k) < 8 || len(v) < 8 {
			return errors.Errorf("malformed block entry (key %d bytes, value %d bytes)", len(k), len(v))
		}
		file := int64(binary.BigEndian.Uint32(k[0:4]))
		block := int64(binary.BigEndian.Uint32(k[4:8]))
		if !open || file != cur.File || block != cur.Block {
			flush()
			cur = blockEntry{File: file, Block: block}
			open = true
		}
		cur.Count++
		cur.Ticks += int64(binary.BigEndian.Uint64(v[:8]))
		return nil
	}
	if err := r.collector.Load(nil, "", load, etl.TransformArgs{}); err != nil {
		return nil, errors.Wrap(err, "replaying block revisits")
	}
	flush()

	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		if top[i].File != top[j].File {
			return top[i].File < top[j].File
		}
		return top[i].Block < top[j].Block
	})
	if len(top) > limit {
		top = top[:limit]
	}
	return top, nil
}

func (r *blockRanker) Close() {
	r.collector.Close()
}

// parenthood check for disk-read waits: p1 is file#, p2 is block#.
func diskReadParams(event string, p1, p2 int64) (file, block int64, ok bool) {
	if _, isDisk := diskReadEvents[event]; !isDisk {
		return 0, 0, false
	}
	if p1 <= 0 || p2 <= 0 {
		return 0, 0, false
	}
	return p1, p2, true
}
