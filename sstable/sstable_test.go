package sstable

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/intro0siddiqui/browserdb/format"
)

func sortedEntries(n int) []*format.LogEntry {
	entries := make([]*format.LogEntry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, format.NewLogEntry(
			format.EntryInsert,
			[]byte(fmt.Sprintf("key-%06d", i)),
			[]byte(fmt.Sprintf("value-%06d", i)),
		))
	}
	return entries
}

func TestCreateAndGet(t *testing.T) {
	dir := t.TempDir()
	entries := sortedEntries(100)

	sst, err := Create(0, entries, dir, format.TableHistory, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	defer sst.Close()

	for _, want := range entries {
		got, ok := sst.Get(want.Key)
		if !ok {
			t.Fatalf("key %q absent", want.Key)
		}
		if !bytes.Equal(got.Value, want.Value) || got.Timestamp != want.Timestamp {
			t.Fatalf("key %q: got %+v want %+v", want.Key, got, want)
		}
	}

	if _, ok := sst.Get([]byte("absent")); ok {
		t.Fatal("found a key never written")
	}
}

func TestIndexStrictlyAscending(t *testing.T) {
	dir := t.TempDir()

	sst, err := Create(0, sortedEntries(500), dir, format.TableCache, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	defer sst.Close()

	for i := 1; i < len(sst.index); i++ {
		if bytes.Compare(sst.index[i-1].Key, sst.index[i].Key) >= 0 {
			t.Fatalf("index not strictly ascending at %d", i)
		}
	}
}

func TestOpenRebuildsIndex(t *testing.T) {
	dir := t.TempDir()
	entries := sortedEntries(50)

	created, err := Create(1, entries, dir, format.TableCookies, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	path := created.Path()
	if err := created.Close(); err != nil {
		t.Fatal(err)
	}

	opened, err := Open(path, 1, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	defer opened.Close()

	if opened.Len() != len(entries) {
		t.Fatalf("reopened entries = %d, want %d", opened.Len(), len(entries))
	}
	for _, want := range entries {
		got, ok := opened.Get(want.Key)
		if !ok || !bytes.Equal(got.Value, want.Value) {
			t.Fatalf("key %q after reopen: %v %v", want.Key, got, ok)
		}
	}
}

func TestTombstonesSurviveReopen(t *testing.T) {
	dir := t.TempDir()

	entries := []*format.LogEntry{
		format.NewLogEntry(format.EntryInsert, []byte("alive"), []byte("v")),
		format.NewLogEntry(format.EntryDelete, []byte("dead"), nil),
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].Key, entries[j].Key) < 0
	})

	created, err := Create(0, entries, dir, format.TableLocalStore, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	path := created.Path()
	created.Close()

	opened, err := Open(path, 0, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	defer opened.Close()

	got, ok := opened.Get([]byte("dead"))
	if !ok || !got.Deleted() {
		t.Fatalf("tombstone lost on reopen: %v %v", got, ok)
	}
}

func TestOpenKeepsValidPrefix(t *testing.T) {
	dir := t.TempDir()
	entries := sortedEntries(10)

	created, err := Create(0, entries, dir, format.TableSettings, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	path := created.Path()
	created.Close()

	// Append garbage past the last valid frame.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write(bytes.Repeat([]byte{0xff}, 64)); err != nil {
		t.Fatal(err)
	}
	f.Close()

	opened, err := Open(path, 0, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	defer opened.Close()

	if opened.Len() != len(entries) {
		t.Fatalf("prefix entries = %d, want %d", opened.Len(), len(entries))
	}
	for _, want := range entries {
		if _, ok := opened.Get(want.Key); !ok {
			t.Fatalf("key %q lost to trailing garbage", want.Key)
		}
	}
}

func TestFileNameRoundTrip(t *testing.T) {
	name := FileName(format.TableHistory, 3, 1712345678901, 250)
	if name != "history_3_1712345678901_250.sst" {
		t.Fatalf("unexpected name %q", name)
	}

	level, timestamp, ok := ParseFileName(name)
	if !ok || level != 3 || timestamp != 1712345678901 {
		t.Fatalf("parse: %d %d %v", level, timestamp, ok)
	}

	bad := []string{
		"history.sst",
		"history_3_abc_1.sst",
		"unknown_0_1_1.sst",
		"history_3_1_1.log",
	}
	for _, name := range bad {
		if _, _, ok := ParseFileName(name); ok {
			t.Fatalf("parsed invalid name %q", name)
		}
	}
}

func TestBounds(t *testing.T) {
	dir := t.TempDir()

	sst, err := Create(0, sortedEntries(10), dir, format.TableHistory, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	defer sst.Close()

	min, max := sst.Bounds()
	if string(min) != "key-000000" || string(max) != "key-000009" {
		t.Fatalf("bounds %q..%q", min, max)
	}

	if !sst.Overlaps([]byte("key-000005"), []byte("zzz")) {
		t.Fatal("expected overlap")
	}
	if sst.Overlaps([]byte("zzz"), []byte("zzzz")) {
		t.Fatal("unexpected overlap past max key")
	}
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()

	sst, err := Create(0, sortedEntries(5), dir, format.TableCache, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	path := sst.Path()

	if err := sst.Remove(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("file still present: %v", err)
	}

	if rest, _ := filepath.Glob(filepath.Join(dir, "*"+Ext)); len(rest) != 0 {
		t.Fatalf("leftover files: %v", rest)
	}
}
