// Package memtable provides the in-memory, ordered staging buffer that
// accumulates writes until the engine flushes them into a sorted table
// file.
package memtable

import (
	"iter"

	"github.com/intro0siddiqui/browserdb/format"
)

// MemTable is an ordered write buffer with byte-size accounting. It is
// not internally synchronized; the owning tree guards it with a
// read/write lock.
type MemTable struct {
	list    *skipList
	maxSize int
	curSize int
}

// New creates a buffer that asks to be flushed once maxSize accounted
// bytes have accumulated.
func New(maxSize int) *MemTable {
	return &MemTable{
		list:    newSkipList(),
		maxSize: maxSize,
	}
}

// Put stages a record of the given kind under key, replacing any prior
// record for the same key and adjusting the accounted size.
func (m *MemTable) Put(key, value []byte, kind format.EntryKind) {
	// Copies: callers are free to reuse their slices after Put returns.
	entry := format.NewLogEntry(kind,
		append([]byte(nil), key...),
		append([]byte(nil), value...))

	if prev := m.list.put(string(key), entry); prev != nil {
		m.curSize -= prev.AccountedSize()
	}
	m.curSize += entry.AccountedSize()
}

// Get returns the staged record for key, tombstones included.
func (m *MemTable) Get(key []byte) (*format.LogEntry, bool) {
	return m.list.get(string(key))
}

// ShouldFlush reports whether the accounted size has reached the flush
// threshold.
func (m *MemTable) ShouldFlush() bool {
	return m.curSize >= m.maxSize
}

// Len returns the number of staged records.
func (m *MemTable) Len() int {
	return m.list.size
}

// Size returns the accounted byte size.
func (m *MemTable) Size() int {
	return m.curSize
}

// All yields staged records in ascending key order.
func (m *MemTable) All() iter.Seq[*format.LogEntry] {
	return m.list.all()
}

// Snapshot copies the staged records out in ascending key order.
func (m *MemTable) Snapshot() []*format.LogEntry {
	entries := make([]*format.LogEntry, 0, m.list.size)
	for e := range m.list.all() {
		entries = append(entries, e)
	}
	return entries
}

// Clear empties the buffer and resets the accounted size.
func (m *MemTable) Clear() {
	m.list = newSkipList()
	m.curSize = 0
}
