// Package sstable implements the sorted, immutable on-disk table file.
// A table is created once from an ordered set of records, then served
// read-only through a memory map, a sorted in-memory index and a bloom
// filter until it is superseded by compaction.
package sstable

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/intro0siddiqui/browserdb/bloom"
	"github.com/intro0siddiqui/browserdb/format"
)

// Ext is the table file extension.
const Ext = ".sst"

// fileNamePattern is <table>_<level>_<ms-timestamp>_<count>.sst.
var fileNamePattern = regexp.MustCompile(`^(history|cookies|cache|localstore|settings)_(\d)_(\d+)_(\d+)\.sst$`)

// IndexEntry locates one frame inside the mapped file.
type IndexEntry struct {
	Key       []byte
	Offset    uint64
	Size      int
	Timestamp uint64
}

// SSTable is an immutable sorted table. All fields are fixed after
// construction; lookups need no synchronization.
type SSTable struct {
	level     int
	path      string
	createdAt uint64 // ms timestamp embedded in the file name
	data      []byte
	index     []IndexEntry
	filter    *bloom.Filter
	minKey    []byte
	maxKey    []byte
}

// FileName builds the canonical table file name.
func FileName(table format.TableKind, level int, timestamp uint64, count int) string {
	return fmt.Sprintf("%s_%d_%d_%d%s", table, level, timestamp, count, Ext)
}

// ParseFileName extracts the level and timestamp from a table file
// name. ok is false for anything that is not a table file.
func ParseFileName(name string) (level int, timestamp uint64, ok bool) {
	m := fileNamePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, 0, false
	}
	level, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, false
	}
	timestamp, err = strconv.ParseUint(m[3], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return level, timestamp, true
}

// lastStamp makes file-name timestamps strictly increasing within the
// process, so two flushes inside one millisecond neither collide on
// name nor tie on recovery ordering.
var lastStamp atomic.Uint64

func nextStamp() uint64 {
	for {
		now := format.Now()
		last := lastStamp.Load()
		if now <= last {
			now = last + 1
		}
		if lastStamp.CompareAndSwap(last, now) {
			return now
		}
	}
}

// Create writes entries (ascending key order, tombstones included) as a
// new table file in dir, syncs it, and returns the opened table. The
// bloom filter targets the given false-positive rate.
func Create(level int, entries []*format.LogEntry, dir string, table format.TableKind, fpr float64) (*SSTable, error) {
	timestamp := nextStamp()
	path := filepath.Join(dir, FileName(table, level, timestamp, len(entries)))

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "create sstable file")
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	index := make([]IndexEntry, 0, len(entries))
	offset := uint64(0)

	for _, e := range entries {
		size, err := e.Encode(w)
		if err != nil {
			return nil, errors.Wrapf(err, "write frame at offset %d", offset)
		}

		index = append(index, IndexEntry{
			Key:       append([]byte(nil), e.Key...),
			Offset:    offset,
			Size:      size,
			Timestamp: e.Timestamp,
		})
		offset += uint64(size)
	}

	if err := w.Flush(); err != nil {
		return nil, errors.Wrap(err, "flush sstable file")
	}
	if err := f.Sync(); err != nil {
		return nil, errors.Wrap(err, "sync sstable file")
	}

	data, err := mapFile(f)
	if err != nil {
		return nil, errors.Wrap(err, "map sstable file")
	}

	return newTable(level, path, timestamp, data, index, fpr), nil
}

// Open maps an existing table file and rebuilds its index and bloom
// filter by scanning the frame stream. Scanning stops at the first
// unreadable frame; the valid prefix is kept.
func Open(path string, level int, fpr float64) (*SSTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open sstable file")
	}
	defer f.Close()

	data, err := mapFile(f)
	if err != nil {
		return nil, errors.Wrap(err, "map sstable file")
	}

	_, timestamp, _ := ParseFileName(filepath.Base(path))

	var index []IndexEntry
	offset := 0
	for offset < len(data) {
		r := bytes.NewReader(data[offset:])
		e, err := format.DecodeEntry(r)
		if err != nil {
			break // keep the valid prefix
		}
		size := int(r.Size()) - r.Len()

		index = append(index, IndexEntry{
			Key:       append([]byte(nil), e.Key...),
			Offset:    uint64(offset),
			Size:      size,
			Timestamp: e.Timestamp,
		})
		offset += size
	}

	return newTable(level, path, timestamp, data, index, fpr), nil
}

func newTable(level int, path string, timestamp uint64, data []byte, index []IndexEntry, fpr float64) *SSTable {
	filter := bloom.New(len(index), fpr)
	for i := range index {
		filter.Add(index[i].Key)
	}

	t := &SSTable{
		level:     level,
		path:      path,
		createdAt: timestamp,
		data:      data,
		index:     index,
		filter:    filter,
	}
	if len(index) > 0 {
		t.minKey = index[0].Key
		t.maxKey = index[len(index)-1].Key
	}
	return t
}

// Get returns the record stored for key, tombstones included. The
// filter is consulted first; an index hit whose frame falls outside the
// mapped bytes or fails its CRC is treated as absent.
func (t *SSTable) Get(key []byte) (*format.LogEntry, bool) {
	if !t.filter.MightContain(key) {
		return nil, false
	}

	i := sort.Search(len(t.index), func(i int) bool {
		return bytes.Compare(t.index[i].Key, key) >= 0
	})
	if i >= len(t.index) || !bytes.Equal(t.index[i].Key, key) {
		return nil, false
	}

	return t.readFrame(&t.index[i])
}

func (t *SSTable) readFrame(ie *IndexEntry) (*format.LogEntry, bool) {
	start := int(ie.Offset)
	end := start + ie.Size
	if end > len(t.data) || start < 0 {
		return nil, false
	}

	e, err := format.DecodeEntry(bytes.NewReader(t.data[start:end]))
	if err != nil {
		return nil, false
	}
	return e, true
}

// All yields every readable record in ascending key order.
func (t *SSTable) All() func(yield func(*format.LogEntry) bool) {
	return func(yield func(*format.LogEntry) bool) {
		for i := range t.index {
			e, ok := t.readFrame(&t.index[i])
			if !ok {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}
}

// Level returns the level the table was created at.
func (t *SSTable) Level() int { return t.level }

// Path returns the table's file path.
func (t *SSTable) Path() string { return t.path }

// CreatedAt returns the millisecond timestamp from the file name.
func (t *SSTable) CreatedAt() uint64 { return t.createdAt }

// Len returns the number of indexed records.
func (t *SSTable) Len() int { return len(t.index) }

// DiskSize returns the mapped file size in bytes.
func (t *SSTable) DiskSize() int { return len(t.data) }

// Bounds returns the smallest and largest indexed keys. Empty tables
// return nil bounds.
func (t *SSTable) Bounds() (min, max []byte) { return t.minKey, t.maxKey }

// Overlaps reports whether the table's key range intersects [lo, hi].
func (t *SSTable) Overlaps(lo, hi []byte) bool {
	if len(t.index) == 0 {
		return false
	}
	return bytes.Compare(t.minKey, hi) <= 0 && bytes.Compare(t.maxKey, lo) >= 0
}

// Close releases the memory map. The table must not be used afterwards.
func (t *SSTable) Close() error {
	data := t.data
	t.data = nil
	return unmapFile(data)
}

// Remove closes the table and deletes its file.
func (t *SSTable) Remove() error {
	if err := t.Close(); err != nil {
		return err
	}
	return os.Remove(t.path)
}
