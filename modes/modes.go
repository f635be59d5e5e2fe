// Package modes multiplexes the five logical tables over one of two
// backings: Persistent (an LSM tree per table, disk durability) or
// Ultra (sharded in-memory maps, no disk footprint). The active backing
// is a tagged variant swapped atomically under the dispatcher lock.
package modes

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/intro0siddiqui/browserdb/format"
	"github.com/intro0siddiqui/browserdb/heat"
	"github.com/intro0siddiqui/browserdb/lsm"
)

// Mode selects the table backing.
type Mode int

const (
	// Persistent backs every table with an LSM tree under the database
	// directory.
	Persistent Mode = iota

	// Ultra keeps every table in memory only.
	Ultra
)

func (m Mode) String() string {
	if m == Ultra {
		return "ultra"
	}
	return "persistent"
}

// ErrUnknownTable reports a TableKind outside the closed table set.
var ErrUnknownTable = errors.New("browserdb: unknown table")

// Config tunes the persistent backing.
type Config struct {
	// MaxMemory is the overall memtable budget; each table receives a
	// fifth of it as its flush threshold.
	MaxMemory int

	// BloomFPR is the per-table bloom false-positive target.
	BloomFPR float64

	// EnableHeatTracking attaches a per-table access-heat tracker.
	EnableHeatTracking bool

	// HeatEntries bounds each table's heat tracker (advisory).
	HeatEntries int

	// L0CompactFiles and LevelBytes pass through to lsm.Config.
	L0CompactFiles int
	LevelBytes     int64

	Logger *zap.Logger
}

const (
	// DefaultMaxMemory is the overall memtable budget when the config
	// leaves it unset.
	DefaultMaxMemory = 100 << 20

	defaultHeatEntries = 10000
)

func (c Config) withDefaults() Config {
	if c.MaxMemory <= 0 {
		c.MaxMemory = DefaultMaxMemory
	}
	if c.HeatEntries <= 0 {
		c.HeatEntries = defaultHeatEntries
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// current is the tagged active backing; exactly one branch is set.
type current struct {
	mode       Mode
	persistent *persistentSet
	ultra      *ultraSet
}

// Switcher owns the active backing and routes raw table operations to
// it. All table operations take the read side of its lock; SwitchMode
// takes the write side.
type Switcher struct {
	mu  sync.RWMutex
	cfg Config
	cur current
}

// NewSwitcher builds the initial backing. For Persistent the path is
// created if missing.
func NewSwitcher(path string, mode Mode, cfg Config) (*Switcher, error) {
	cfg = cfg.withDefaults()

	s := &Switcher{cfg: cfg}
	cur, err := s.build(mode, path)
	if err != nil {
		return nil, err
	}
	s.cur = cur
	return s, nil
}

func (s *Switcher) build(mode Mode, path string) (current, error) {
	if mode == Ultra {
		return current{mode: Ultra, ultra: newUltraSet()}, nil
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return current{}, errors.Wrap(err, "create database directory")
	}

	ps, err := newPersistentSet(path, s.cfg)
	if err != nil {
		return current{}, err
	}
	return current{mode: Persistent, persistent: ps}, nil
}

// Mode returns the active mode.
func (s *Switcher) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.mode
}

// SwitchMode replaces the backing. The prior backing is torn down, not
// migrated: ultra data is discarded, persistent trees flush what they
// hold and release their files. Switching to the mode already active is
// a no-op and path is not used.
func (s *Switcher) SwitchMode(mode Mode, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur.mode == mode {
		return nil
	}

	next, err := s.build(mode, path)
	if err != nil {
		return err
	}

	old := s.cur
	s.cur = next

	if old.persistent != nil {
		if err := old.persistent.close(); err != nil {
			s.cfg.Logger.Error("closing replaced backing", zap.Error(err))
		}
	}
	return nil
}

// PutRaw routes a raw write to the active backing.
func (s *Switcher) PutRaw(table format.TableKind, key, value []byte) error {
	if !table.Valid() {
		return ErrUnknownTable
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cur.mode == Ultra {
		s.cur.ultra.table(table).put(key, value)
		return nil
	}
	return s.cur.persistent.tree(table).Put(key, value)
}

// GetRaw routes a raw read. Tombstones resolve to absent here.
func (s *Switcher) GetRaw(table format.TableKind, key []byte) ([]byte, bool) {
	if !table.Valid() {
		return nil, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cur.mode == Ultra {
		return s.cur.ultra.table(table).get(key)
	}

	e, ok := s.cur.persistent.tree(table).Get(key)
	if !ok || e.Deleted() {
		return nil, false
	}
	return e.Value, true
}

// DeleteRaw routes a raw delete: a tombstone write in Persistent mode,
// a map removal in Ultra.
func (s *Switcher) DeleteRaw(table format.TableKind, key []byte) error {
	if !table.Valid() {
		return ErrUnknownTable
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cur.mode == Ultra {
		s.cur.ultra.table(table).delete(key)
		return nil
	}
	return s.cur.persistent.tree(table).Delete(key)
}

// Heat returns the decayed access heat of a key, zero outside
// Persistent mode or with tracking disabled.
func (s *Switcher) Heat(table format.TableKind, key []byte) uint32 {
	if !table.Valid() {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cur.mode != Persistent {
		return 0
	}
	return s.cur.persistent.tree(table).Heat(key)
}

// TableStats returns the active backing's per-table snapshot.
func (s *Switcher) TableStats(table format.TableKind) lsm.Stats {
	if !table.Valid() {
		return lsm.Stats{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cur.mode == Ultra {
		n := s.cur.ultra.table(table).len()
		return lsm.Stats{MemEntries: n, Entries: int64(n)}
	}
	return s.cur.persistent.tree(table).Stats()
}

// Flush flushes every persistent table; a no-op in Ultra mode.
func (s *Switcher) Flush() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cur.mode != Persistent {
		return nil
	}
	return s.cur.persistent.flush()
}

// Close tears down the active backing.
func (s *Switcher) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur.persistent != nil {
		err := s.cur.persistent.close()
		s.cur = current{mode: Ultra, ultra: newUltraSet()}
		return err
	}
	s.cur = current{mode: Ultra, ultra: newUltraSet()}
	return nil
}

// persistentSet holds the five per-table trees.
type persistentSet struct {
	trees map[format.TableKind]*lsm.Tree
}

func newPersistentSet(path string, cfg Config) (*persistentSet, error) {
	ps := &persistentSet{trees: make(map[format.TableKind]*lsm.Tree, len(format.Tables))}

	var mu sync.Mutex
	var g errgroup.Group

	for _, table := range format.Tables {
		g.Go(func() error {
			var tracker *heat.Tracker
			if cfg.EnableHeatTracking {
				tracker = heat.NewTracker(cfg.HeatEntries)
			}

			tree, err := lsm.New(path, table, lsm.Config{
				MemtableSize:   cfg.MaxMemory / len(format.Tables),
				BloomFPR:       cfg.BloomFPR,
				L0CompactFiles: cfg.L0CompactFiles,
				LevelBytes:     cfg.LevelBytes,
				Heat:           tracker,
				Logger:         cfg.Logger,
			})
			if err != nil {
				return errors.Wrapf(err, "open %s table", table)
			}

			mu.Lock()
			ps.trees[table] = tree
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		ps.close() //nolint:errcheck // best-effort teardown of partial open
		return nil, err
	}
	return ps, nil
}

func (ps *persistentSet) tree(table format.TableKind) *lsm.Tree {
	return ps.trees[table]
}

func (ps *persistentSet) flush() error {
	var g errgroup.Group
	for _, tree := range ps.trees {
		g.Go(tree.Flush)
	}
	return g.Wait()
}

func (ps *persistentSet) close() error {
	var g errgroup.Group
	for _, tree := range ps.trees {
		g.Go(tree.Close)
	}
	return g.Wait()
}
