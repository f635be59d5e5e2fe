package lsm

import (
	"bytes"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/intro0siddiqui/browserdb/format"
	"github.com/intro0siddiqui/browserdb/heat"
	"github.com/intro0siddiqui/browserdb/sstable"
)

// compactor runs level merges on a background goroutine fed by level
// hints. Hints are best-effort: a full channel drops the hint, the next
// flush re-raises it.
type compactor struct {
	tree *Tree
	ch   chan int
	done chan struct{}
	once sync.Once
}

func newCompactor(t *Tree) *compactor {
	c := &compactor{
		tree: t,
		ch:   make(chan int, NumLevels),
		done: make(chan struct{}),
	}
	go c.loop()
	return c
}

func (c *compactor) notify(lvl int) {
	select {
	case c.ch <- lvl:
	default:
	}
}

func (c *compactor) stop() {
	c.once.Do(func() {
		close(c.ch)
		<-c.done
	})
}

func (c *compactor) loop() {
	defer close(c.done)

	for lvl := range c.ch {
		if err := c.tree.compactLevel(lvl); err != nil {
			c.tree.logger.Error("compaction failed",
				zap.Int("level", lvl), zap.Error(err))
		}
	}
}

// levelBudget is the byte allowance of a level before it spills into
// the next one. Level 0 is counted in files instead.
func (t *Tree) levelBudget(lvl int) int64 {
	budget := t.cfg.LevelBytes
	for i := 1; i < lvl; i++ {
		budget *= 10
	}
	return budget
}

func (t *Tree) needsCompaction(lvl int) bool {
	if lvl >= NumLevels-1 {
		return false
	}

	l := &t.levels[lvl]
	l.mu.RLock()
	defer l.mu.RUnlock()

	if lvl == 0 {
		return len(l.ssts) >= t.cfg.L0CompactFiles
	}

	var bytes int64
	for _, sst := range l.ssts {
		bytes += int64(sst.DiskSize())
	}
	return bytes > t.levelBudget(lvl)
}

// compactLevel merges every table at lvl with the overlapping tables at
// lvl+1 into one new table at lvl+1. The newest timestamp wins per key;
// tombstones are dropped when the target is the deepest occupied level.
// Cascades while deeper levels overflow their budget.
func (t *Tree) compactLevel(lvl int) error {
	for ; lvl < NumLevels-1; lvl++ {
		if !t.needsCompaction(lvl) {
			return nil
		}
		if err := t.compactOnce(lvl); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) compactOnce(lvl int) error {
	src := &t.levels[lvl]
	dst := &t.levels[lvl+1]

	// Snapshot the inputs. New flushes may append to level 0 while the
	// merge runs; only the snapshotted files are swapped out.
	src.mu.RLock()
	upper := append([]*sstable.SSTable(nil), src.ssts...)
	src.mu.RUnlock()

	if len(upper) == 0 {
		return nil
	}

	lo, hi := keyRange(upper)

	dst.mu.RLock()
	var lower []*sstable.SSTable
	for _, sst := range dst.ssts {
		if sst.Overlaps(lo, hi) {
			lower = append(lower, sst)
		}
	}
	dst.mu.RUnlock()

	merged := mergeTables(lower, upper, t.tombstonesDroppable(lvl+1))

	var out *sstable.SSTable
	if len(merged) > 0 {
		var err error
		out, err = sstable.Create(lvl+1, merged, t.dir, t.table, t.cfg.BloomFPR)
		if err != nil {
			return errors.Wrapf(err, "compact level %d", lvl)
		}
	}

	if t.cfg.Heat != nil {
		for _, e := range merged {
			t.cfg.Heat.RecordAccess(e.Key, heat.AccessCompact)
		}
	}

	// Swap: lower level lock first, then the deeper one. Readers hold a
	// single level lock at a time, so this order cannot deadlock them.
	src.mu.Lock()
	dst.mu.Lock()
	src.ssts = subtract(src.ssts, upper)
	dst.ssts = subtract(dst.ssts, lower)
	if out != nil {
		dst.ssts = append(dst.ssts, out)
	}
	dst.mu.Unlock()
	src.mu.Unlock()

	// Inputs are unreachable once the swap is published; no reader can
	// still hold them because the swap excluded every level reader.
	for _, sst := range append(upper, lower...) {
		if err := sst.Remove(); err != nil {
			t.logger.Warn("removing compacted sstable",
				zap.String("file", sst.Path()), zap.Error(err))
		}
	}

	t.logger.Info("compacted level",
		zap.Int("level", lvl),
		zap.Int("inputs", len(upper)+len(lower)),
		zap.Int("output_entries", len(merged)))

	return nil
}

// tombstonesDroppable reports whether a merge into target may discard
// tombstones: true when no level below target holds any table.
func (t *Tree) tombstonesDroppable(target int) bool {
	for i := target + 1; i < NumLevels; i++ {
		l := &t.levels[i]
		l.mu.RLock()
		n := len(l.ssts)
		l.mu.RUnlock()
		if n > 0 {
			return false
		}
	}
	return true
}

// subtract returns ssts without the members of gone, preserving order.
func subtract(ssts, gone []*sstable.SSTable) []*sstable.SSTable {
	removed := make(map[*sstable.SSTable]bool, len(gone))
	for _, sst := range gone {
		removed[sst] = true
	}

	kept := ssts[:0]
	for _, sst := range ssts {
		if !removed[sst] {
			kept = append(kept, sst)
		}
	}
	return kept
}

func keyRange(ssts []*sstable.SSTable) (lo, hi []byte) {
	for _, sst := range ssts {
		min, max := sst.Bounds()
		if min == nil {
			continue
		}
		if lo == nil || bytes.Compare(min, lo) < 0 {
			lo = min
		}
		if hi == nil || bytes.Compare(max, hi) > 0 {
			hi = max
		}
	}
	return lo, hi
}

// mergeTables folds the inputs key by key. Later positions in the
// concatenated (lower, upper) order are newer; ties on timestamp keep
// the newer position.
func mergeTables(lower, upper []*sstable.SSTable, dropTombstones bool) []*format.LogEntry {
	byKey := make(map[string]*format.LogEntry)

	for _, sst := range append(append([]*sstable.SSTable(nil), lower...), upper...) {
		for e := range sst.All() {
			prev, ok := byKey[string(e.Key)]
			if !ok || e.Timestamp >= prev.Timestamp {
				byKey[string(e.Key)] = e
			}
		}
	}

	merged := make([]*format.LogEntry, 0, len(byKey))
	for _, e := range byKey {
		if dropTombstones && e.Deleted() {
			continue
		}
		merged = append(merged, e)
	}

	sort.Slice(merged, func(i, j int) bool {
		return bytes.Compare(merged[i].Key, merged[j].Key) < 0
	})

	return merged
}
