// =============================================================================
// pkg/store/store.go - RocksDB Record Store
// =============================================================================
//
// The record store is the sorted hand-off between the two phases. Ingest
// appends normalized records in trace order; because every key is a
// big-endian composite (cursor index | kind | trace line), the LSM's own
// key order produces exactly the grouped, per-cursor, per-kind,
// line-ordered stream the report phase consumes. Records written out of
// arrival order (pending waits attached retroactively) sort into place
// for free.
//
// DESIGN:
//
//	- One column family per artifact class (records/cursors/binds/rpc).
//	- Bulk-load tuning: WAL off (a crashed ingest restarts from the
//	  trace file, never from the WAL), auto-compaction off, one manual
//	  flush + compaction once ingest finishes.
//	- Scan iterators use readahead and skip the block cache; the report
//	  pass touches each block exactly once.
//
// =============================================================================

package store

import (
	"fmt"
	"sync"

	"github.com/linxGnu/grocksdb"
	"github.com/pkg/errors"

	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/cf"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/interfaces"
	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/types"
)

// compile-time interface checks
var (
	_ interfaces.RecordStore = (*RocksDBRecordStore)(nil)
	_ interfaces.Iterator    = (*rocksDBIterator)(nil)
	_ interfaces.Iterator    = (*rocksDBScanIterator)(nil)
)

// RocksDBRecordStore implements interfaces.RecordStore on RocksDB with
// one column family per artifact class.
type RocksDBRecordStore struct {
	db         *grocksdb.DB
	opts       *grocksdb.Options
	cfHandles  map[string]*grocksdb.ColumnFamilyHandle
	allHandles []*grocksdb.ColumnFamilyHandle
	cfOpts     []*grocksdb.Options
	blockCache *grocksdb.Cache
	writeOpts  *grocksdb.WriteOptions
	readOpts   *grocksdb.ReadOptions
	path       string
	logger     interfaces.Logger
	mu         sync.Mutex
	closed     bool
}

// OpenRocksDBRecordStore opens (or creates) the record store at path.
func OpenRocksDBRecordStore(path string, settings types.RocksDBSettings, logger interfaces.Logger) (*RocksDBRecordStore, error) {
	opts := grocksdb.NewDefaultOptions()
	opts.SetCreateIfMissing(true)
	opts.SetCreateIfMissingColumnFamilies(true)
	opts.SetMaxOpenFiles(settings.MaxOpenFiles)
	opts.SetMaxBackgroundJobs(settings.MaxBackgroundJobs)

	blockCache := grocksdb.NewLRUCache(uint64(settings.BlockCacheSizeMB) * types.MB)

	cfNames := append([]string{"default"}, cf.Names...)
	cfOpts := make([]*grocksdb.Options, len(cfNames))
	for i := range cfNames {
		cfOpts[i] = createCFOptions(settings, blockCache)
	}

	db, handles, err := grocksdb.OpenDbColumnFamilies(opts, path, cfNames, cfOpts)
	if err != nil {
		for _, o := range cfOpts {
			o.Destroy()
		}
		blockCache.Destroy()
		opts.Destroy()
		return nil, errors.Wrapf(err, "failed to open record store at %s", path)
	}

	cfHandles := make(map[string]*grocksdb.ColumnFamilyHandle, len(cfNames))
	for i, name := range cfNames {
		cfHandles[name] = handles[i]
	}

	writeOpts := grocksdb.NewDefaultWriteOptions()
	// crash recovery restarts ingest from the trace file, never the WAL
	writeOpts.DisableWAL(true)

	s := &RocksDBRecordStore{
		db:         db,
		opts:       opts,
		cfHandles:  cfHandles,
		allHandles: handles,
		cfOpts:     cfOpts,
		blockCache: blockCache,
		writeOpts:  writeOpts,
		readOpts:   grocksdb.NewDefaultReadOptions(),
		path:       path,
		logger:     logger,
	}
	logger.Verbose("record store opened at %s (%d column families)", path, len(cf.Names))
	return s, nil
}

// createCFOptions builds the per-column-family options.
func createCFOptions(settings types.RocksDBSettings, blockCache *grocksdb.Cache) *grocksdb.Options {
	o := grocksdb.NewDefaultOptions()
	o.SetWriteBufferSize(uint64(settings.WriteBufferSizeMB) * types.MB)
	o.SetMaxWriteBufferNumber(settings.MaxWriteBufferNumber)
	o.SetMinWriteBufferNumberToMerge(settings.MinWriteBufferNumberToMerge)
	o.SetTargetFileSizeBase(uint64(settings.TargetFileSizeMB) * types.MB)
	o.SetCompression(grocksdb.ZSTDCompression)
	// bulk load: one manual compaction after ingest beats many small ones
	o.SetDisableAutoCompactions(true)

	bbto := grocksdb.NewDefaultBlockBasedTableOptions()
	bbto.SetBlockCache(blockCache)
	o.SetBlockBasedTableFactory(bbto)
	return o
}

// handle returns the column family handle, falling back to default for
// unknown names.
func (s *RocksDBRecordStore) handle(cfName string) *grocksdb.ColumnFamilyHandle {
	if h, ok := s.cfHandles[cfName]; ok {
		return h
	}
	return s.cfHandles["default"]
}

// =============================================================================
// Writes
// =============================================================================

// WriteBatch writes all entries across column families in one atomic
// RocksDB batch.
func (s *RocksDBRecordStore) WriteBatch(entriesByCF map[string][]types.Entry) error {
	batch := grocksdb.NewWriteBatch()
	defer batch.Destroy()

	total := 0
	for cfName, entries := range entriesByCF {
		h := s.handle(cfName)
		for i := range entries {
			batch.PutCF(h, entries[i].Key, entries[i].Value)
			total++
		}
	}
	if total == 0 {
		return nil
	}
	if err := s.db.Write(s.writeOpts, batch); err != nil {
		return errors.Wrapf(err, "failed to write batch of %d entries", total)
	}
	return nil
}

// =============================================================================
// Iterators
// =============================================================================

// NewIteratorCF creates an iterator for point lookups and short prefix
// scans.
func (s *RocksDBRecordStore) NewIteratorCF(cfName string) interfaces.Iterator {
	return &rocksDBIterator{
		iter: s.db.NewIteratorCF(s.readOpts, s.handle(cfName)),
	}
}

// NewScanIteratorCF creates an iterator tuned for one full ordered pass:
// readahead on, block-cache fill off. The iterator owns its read options.
func (s *RocksDBRecordStore) NewScanIteratorCF(cfName string) interfaces.Iterator {
	scanOpts := grocksdb.NewDefaultReadOptions()
	scanOpts.SetReadaheadSize(2 * types.MB)
	scanOpts.SetFillCache(false)
	return &rocksDBScanIterator{
		rocksDBIterator: rocksDBIterator{
			iter: s.db.NewIteratorCF(scanOpts, s.handle(cfName)),
		},
		opts: scanOpts,
	}
}

// rocksDBIterator adapts grocksdb.Iterator to interfaces.Iterator.
// Key and Value copy out of RocksDB-owned memory, so the returned slices
// stay valid across Next.
type rocksDBIterator struct {
	iter *grocksdb.Iterator
}

func (it *rocksDBIterator) SeekToFirst() {
	it.iter.SeekToFirst()
}

func (it *rocksDBIterator) Seek(target []byte) {
	it.iter.Seek(target)
}

func (it *rocksDBIterator) Valid() bool {
	return it.iter.Valid()
}

func (it *rocksDBIterator) Next() {
	it.iter.Next()
}

func (it *rocksDBIterator) Key() []byte {
	k := it.iter.Key()
	defer k.Free()
	return append([]byte(nil), k.Data()...)
}

func (it *rocksDBIterator) Value() []byte {
	v := it.iter.Value()
	defer v.Free()
	return append([]byte(nil), v.Data()...)
}

func (it *rocksDBIterator) Error() error {
	return it.iter.Err()
}

func (it *rocksDBIterator) Close() {
	it.iter.Close()
}

// rocksDBScanIterator additionally owns its read options.
type rocksDBScanIterator struct {
	rocksDBIterator
	opts *grocksdb.ReadOptions
}

func (it *rocksDBScanIterator) Close() {
	it.iter.Close()
	it.opts.Destroy()
}

// =============================================================================
// Maintenance
// =============================================================================

// FlushAll flushes every column family's memtable and waits.
func (s *RocksDBRecordStore) FlushAll() error {
	fo := grocksdb.NewDefaultFlushOptions()
	fo.SetWait(true)
	defer fo.Destroy()

	for _, name := range cf.Names {
		if err := s.db.FlushCF(s.cfHandles[name], fo); err != nil {
			return errors.Wrapf(err, "failed to flush column family %s", name)
		}
	}
	return nil
}

// CompactAll runs a full manual compaction on every column family.
func (s *RocksDBRecordStore) CompactAll() error {
	co := grocksdb.NewCompactRangeOptions()
	co.SetExclusiveManualCompaction(false)
	defer co.Destroy()

	for _, name := range cf.Names {
		s.logger.Verbose("compacting column family %s", name)
		s.db.CompactRangeCFOpt(s.cfHandles[name], grocksdb.Range{}, co)
	}
	return nil
}

// =============================================================================
// Statistics
// =============================================================================

// GetAllCFStats returns statistics for all column families.
func (s *RocksDBRecordStore) GetAllCFStats() []types.CFStats {
	stats := make([]types.CFStats, 0, len(cf.Names))
	for _, name := range cf.Names {
		stats = append(stats, s.getCFStats(name))
	}
	return stats
}

func (s *RocksDBRecordStore) getCFStats(cfName string) types.CFStats {
	h := s.cfHandles[cfName]
	st := types.CFStats{Name: cfName}

	if v := s.db.GetPropertyCF("rocksdb.estimate-num-keys", h); v != "" {
		fmt.Sscanf(v, "%d", &st.EstimatedKeys)
	}
	if v := s.db.GetPropertyCF("rocksdb.total-sst-files-size", h); v != "" {
		fmt.Sscanf(v, "%d", &st.TotalSize)
	}
	for level := 0; level <= 6; level++ {
		prop := fmt.Sprintf("rocksdb.num-files-at-level%d", level)
		v := s.db.GetPropertyCF(prop, h)
		if v == "" {
			continue
		}
		var count int64
		fmt.Sscanf(v, "%d", &count)
		if count > 0 {
			st.LevelStats = append(st.LevelStats, types.CFLevelStats{
				Level:     level,
				FileCount: count,
			})
			st.TotalFiles += count
		}
	}
	return st
}

// =============================================================================
// Lifecycle
// =============================================================================

// Path returns the filesystem path of the store.
func (s *RocksDBRecordStore) Path() string {
	return s.path
}

// Close releases all store resources. Safe to call once.
func (s *RocksDBRecordStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true

	for _, h := range s.allHandles {
		h.Destroy()
	}
	s.db.Close()
	s.writeOpts.Destroy()
	s.readOpts.Destroy()
	for _, o := range s.cfOpts {
		o.Destroy()
	}
	s.blockCache.Destroy()
	s.opts.Destroy()
	s.logger.Verbose("record store closed")
}
