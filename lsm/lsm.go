// Package lsm implements the per-table log-structured merge tree: an
// ordered in-memory buffer in front of ten level slots of sorted
// immutable files, with flush, directory recovery and background
// compaction.
package lsm

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/intro0siddiqui/browserdb/format"
	"github.com/intro0siddiqui/browserdb/heat"
	"github.com/intro0siddiqui/browserdb/memtable"
	"github.com/intro0siddiqui/browserdb/sstable"
)

// NumLevels is the number of level slots per table.
const NumLevels = 10

// DefaultBloomFPR is the bloom filter false-positive target used when
// the config leaves it unset.
const DefaultBloomFPR = 0.01

// Config carries per-tree tuning. Zero values fall back to defaults.
type Config struct {
	// MemtableSize is the flush threshold in accounted bytes.
	MemtableSize int

	// BloomFPR is the per-table bloom false-positive target.
	BloomFPR float64

	// L0CompactFiles triggers size-tiered compaction once level 0
	// holds this many files. Zero selects the default; negative
	// disables compaction entirely.
	L0CompactFiles int

	// LevelBytes is the byte budget of level 1; each deeper level is
	// allowed ten times the previous. Zero selects the default.
	LevelBytes int64

	// Heat, when non-nil, receives an access record per operation.
	Heat *heat.Tracker

	Logger *zap.Logger
}

const (
	defaultMemtableSize   = 4 << 20
	defaultL0CompactFiles = 4
	defaultLevelBytes     = 16 << 20
)

func (c Config) withDefaults() Config {
	if c.MemtableSize <= 0 {
		c.MemtableSize = defaultMemtableSize
	}
	if c.BloomFPR <= 0 || c.BloomFPR >= 1 {
		c.BloomFPR = DefaultBloomFPR
	}
	if c.L0CompactFiles == 0 {
		c.L0CompactFiles = defaultL0CompactFiles
	}
	if c.LevelBytes <= 0 {
		c.LevelBytes = defaultLevelBytes
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

type level struct {
	mu   sync.RWMutex
	ssts []*sstable.SSTable
}

// Tree is one table's LSM tree. Safe for concurrent use.
type Tree struct {
	table  format.TableKind
	dir    string
	cfg    Config
	logger *zap.Logger

	mu  sync.RWMutex // guards mem
	mem *memtable.MemTable

	levels [NumLevels]level

	compactor *compactor

	closeOnce sync.Once
	closeErr  error
}

// New opens the tree rooted at dir, recovering any table files that
// survive from earlier runs. Within a level, recovered files are sorted
// oldest-first so readers scanning the list in reverse see the newest
// file first.
func New(dir string, table format.TableKind, cfg Config) (*Tree, error) {
	cfg = cfg.withDefaults()

	t := &Tree{
		table:  table,
		dir:    dir,
		cfg:    cfg,
		logger: cfg.Logger.With(zap.String("table", table.String())),
		mem:    memtable.New(cfg.MemtableSize),
	}

	if err := t.recover(); err != nil {
		return nil, err
	}

	if cfg.L0CompactFiles > 0 {
		t.compactor = newCompactor(t)
	}

	return t, nil
}

func (t *Tree) recover() error {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		return errors.Wrap(err, "scan table directory")
	}

	prefix := t.table.String() + "_"

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) || filepath.Ext(name) != sstable.Ext {
			continue
		}

		lvl, _, ok := sstable.ParseFileName(name)
		if !ok || lvl >= NumLevels {
			continue
		}

		sst, err := sstable.Open(filepath.Join(t.dir, name), lvl, t.cfg.BloomFPR)
		if err != nil {
			t.logger.Warn("skipping unreadable sstable",
				zap.String("file", name), zap.Error(err))
			continue
		}
		t.levels[lvl].ssts = append(t.levels[lvl].ssts, sst)
	}

	for i := range t.levels {
		ssts := t.levels[i].ssts
		sort.Slice(ssts, func(a, b int) bool {
			return ssts[a].CreatedAt() < ssts[b].CreatedAt()
		})
	}

	return nil
}

// Put stages an insert for key. When the buffer crosses its threshold
// the write triggers a flush before returning.
func (t *Tree) Put(key, value []byte) error {
	return t.write(key, value, format.EntryInsert)
}

// Delete stages a tombstone for key.
func (t *Tree) Delete(key []byte) error {
	return t.write(key, nil, format.EntryDelete)
}

func (t *Tree) write(key, value []byte, kind format.EntryKind) error {
	t.mu.Lock()
	t.mem.Put(key, value, kind)
	full := t.mem.ShouldFlush()
	t.mu.Unlock()

	if t.cfg.Heat != nil {
		access := heat.AccessWrite
		if kind == format.EntryDelete {
			access = heat.AccessDelete
		}
		t.cfg.Heat.RecordAccess(key, access)
	}

	if full {
		return t.Flush()
	}
	return nil
}

// Get returns the most recent record for key, scanning the buffer first
// and then each level's tables newest-first. Tombstones are returned as
// records with EntryDelete; callers interpret them as absent.
func (t *Tree) Get(key []byte) (*format.LogEntry, bool) {
	if t.cfg.Heat != nil {
		t.cfg.Heat.RecordAccess(key, heat.AccessRead)
	}

	t.mu.RLock()
	e, ok := t.mem.Get(key)
	t.mu.RUnlock()
	if ok {
		return e, true
	}

	for i := range t.levels {
		lvl := &t.levels[i]
		lvl.mu.RLock()
		for j := len(lvl.ssts) - 1; j >= 0; j-- {
			if e, ok := lvl.ssts[j].Get(key); ok {
				lvl.mu.RUnlock()
				return e, true
			}
		}
		lvl.mu.RUnlock()
	}

	return nil, false
}

// Heat returns the decayed access heat for key, or zero when heat
// tracking is disabled.
func (t *Tree) Heat(key []byte) uint32 {
	if t.cfg.Heat == nil {
		return 0
	}
	return t.cfg.Heat.Heat(key)
}

// Flush turns the buffered records into a new level-0 table. The buffer
// is cleared only after the file is durably written, so a failed flush
// keeps every accepted write in memory.
func (t *Tree) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.mem.Len() == 0 {
		return nil
	}

	entries := t.mem.Snapshot()

	sst, err := sstable.Create(0, entries, t.dir, t.table, t.cfg.BloomFPR)
	if err != nil {
		return errors.Wrap(err, "flush memtable")
	}

	t.mem.Clear()

	l0 := &t.levels[0]
	l0.mu.Lock()
	l0.ssts = append(l0.ssts, sst)
	n := len(l0.ssts)
	l0.mu.Unlock()

	t.logger.Debug("flushed memtable",
		zap.Int("entries", len(entries)), zap.Int("level0_files", n))

	if t.compactor != nil && n >= t.cfg.L0CompactFiles {
		t.compactor.notify(0)
	}

	return nil
}

// Stats is a point-in-time tree snapshot.
type Stats struct {
	MemEntries int
	MemBytes   int
	DiskFiles  int
	DiskBytes  int64
	Entries    int64
}

// Stats counts buffered and on-disk state.
func (t *Tree) Stats() Stats {
	var s Stats

	t.mu.RLock()
	s.MemEntries = t.mem.Len()
	s.MemBytes = t.mem.Size()
	t.mu.RUnlock()

	s.Entries = int64(s.MemEntries)

	for i := range t.levels {
		lvl := &t.levels[i]
		lvl.mu.RLock()
		for _, sst := range lvl.ssts {
			s.DiskFiles++
			s.DiskBytes += int64(sst.DiskSize())
			s.Entries += int64(sst.Len())
		}
		lvl.mu.RUnlock()
	}

	return s
}

// Close flushes the buffer best-effort, drains the compactor and
// releases every mapped table. A flush failure is logged and returned
// but does not stop teardown.
func (t *Tree) Close() error {
	t.closeOnce.Do(func() {
		if err := t.Flush(); err != nil {
			t.logger.Error("flush on close failed", zap.Error(err))
			t.closeErr = err
		}

		if t.compactor != nil {
			t.compactor.stop()
		}

		for i := range t.levels {
			lvl := &t.levels[i]
			lvl.mu.Lock()
			for _, sst := range lvl.ssts {
				if err := sst.Close(); err != nil && t.closeErr == nil {
					t.closeErr = err
				}
			}
			lvl.ssts = nil
			lvl.mu.Unlock()
		}
	})
	return t.closeErr
}
