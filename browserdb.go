// Package browserdb is an embedded key-value storage engine for
// browser-local state: history, cookies, cached responses, per-origin
// local storage and settings. Five typed tables are multiplexed over a
// log-structured merge engine (Persistent mode) or a plain in-memory
// backing (Ultra mode).
package browserdb

import (
	"go.uber.org/zap"

	"github.com/intro0siddiqui/browserdb/format"
	"github.com/intro0siddiqui/browserdb/modes"
)

// DB is one engine handle. The directory behind a handle is exclusive
// to it; there is no multi-process coordination. Safe for concurrent
// use by multiple goroutines.
type DB struct {
	switcher *modes.Switcher
	logger   *zap.Logger
}

// Open opens (creating if needed) a database directory with default
// options.
func Open(path string) (*DB, error) {
	return OpenWithOptions(path, DefaultOptions())
}

// OpenWithOptions opens a database with explicit options.
func OpenWithOptions(path string, opts Options) (*DB, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	switcher, err := modes.NewSwitcher(path, opts.Mode, opts.modeConfig())
	if err != nil {
		return nil, err
	}

	return &DB{switcher: switcher, logger: logger}, nil
}

// Mode returns the active backing mode.
func (db *DB) Mode() modes.Mode {
	return db.switcher.Mode()
}

// SwitchMode replaces the backing at path. Prior state is not migrated:
// ultra contents are discarded, persistent trees flush and release
// their files. Switching to the mode already active is a no-op and path
// is not used.
func (db *DB) SwitchMode(mode modes.Mode, path string) error {
	return db.switcher.SwitchMode(mode, path)
}

// PutRaw writes raw key-value bytes into a table.
func (db *DB) PutRaw(table format.TableKind, key, value []byte) error {
	return db.switcher.PutRaw(table, key, value)
}

// GetRaw reads raw value bytes from a table; ok is false when absent.
func (db *DB) GetRaw(table format.TableKind, key []byte) (value []byte, ok bool) {
	return db.switcher.GetRaw(table, key)
}

// DeleteRaw removes a key from a table.
func (db *DB) DeleteRaw(table format.TableKind, key []byte) error {
	return db.switcher.DeleteRaw(table, key)
}

// Heat returns the decayed access heat of a raw key, zero when heat
// tracking is off or the backing is Ultra.
func (db *DB) Heat(table format.TableKind, key []byte) uint32 {
	return db.switcher.Heat(table, key)
}

// Flush forces every persistent table's buffer to disk.
func (db *DB) Flush() error {
	return db.switcher.Flush()
}

// Close flushes where applicable and releases the backing.
func (db *DB) Close() error {
	return db.switcher.Close()
}

// Stats is a point-in-time snapshot across tables.
type Stats struct {
	TotalEntries      int64
	HistoryEntries    int64
	CookieEntries     int64
	CacheEntries      int64
	LocalStoreEntries int64
	SettingsEntries   int64
	MemoryBytes       int64
	DiskBytes         int64
}

// Stats sums per-table counters. Counts include superseded records not
// yet compacted away.
func (db *DB) Stats() Stats {
	var s Stats
	for _, table := range format.Tables {
		ts := db.switcher.TableStats(table)
		s.TotalEntries += ts.Entries
		s.MemoryBytes += int64(ts.MemBytes)
		s.DiskBytes += ts.DiskBytes

		switch table {
		case format.TableHistory:
			s.HistoryEntries = ts.Entries
		case format.TableCookies:
			s.CookieEntries = ts.Entries
		case format.TableCache:
			s.CacheEntries = ts.Entries
		case format.TableLocalStore:
			s.LocalStoreEntries = ts.Entries
		case format.TableSettings:
			s.SettingsEntries = ts.Entries
		}
	}
	return s
}

// History accesses the history table.
func (db *DB) History() HistoryTable { return HistoryTable{db: db} }

// Cookies accesses the cookies table.
func (db *DB) Cookies() CookiesTable { return CookiesTable{db: db} }

// Cache accesses the response-cache table.
func (db *DB) Cache() CacheTable { return CacheTable{db: db} }

// LocalStore accesses the per-origin storage table.
func (db *DB) LocalStore() LocalStoreTable { return LocalStoreTable{db: db} }

// Settings accesses the settings table.
func (db *DB) Settings() SettingsTable { return SettingsTable{db: db} }
