package modes

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/intro0siddiqui/browserdb/format"
)

func newTestSwitcher(t *testing.T, path string, mode Mode) *Switcher {
	t.Helper()

	s, err := NewSwitcher(path, mode, Config{L0CompactFiles: -1})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestUltraPutGetDelete(t *testing.T) {
	s := newTestSwitcher(t, "", Ultra)
	defer s.Close()

	if err := s.PutRaw(format.TableHistory, []byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}

	v, ok := s.GetRaw(format.TableHistory, []byte("k"))
	if !ok || !bytes.Equal(v, []byte("v")) {
		t.Fatalf("get: %q %v", v, ok)
	}

	// Tables are separate namespaces.
	if _, ok := s.GetRaw(format.TableCookies, []byte("k")); ok {
		t.Fatal("key leaked into another table")
	}

	if err := s.DeleteRaw(format.TableHistory, []byte("k")); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.GetRaw(format.TableHistory, []byte("k")); ok {
		t.Fatal("deleted key still present")
	}
}

func TestPersistentRoutesToDisk(t *testing.T) {
	dir := t.TempDir()
	s := newTestSwitcher(t, dir, Persistent)

	for _, table := range format.Tables {
		key := []byte("k-" + table.String())
		if err := s.PutRaw(table, key, []byte("v")); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened := newTestSwitcher(t, dir, Persistent)
	defer reopened.Close()

	for _, table := range format.Tables {
		key := []byte("k-" + table.String())
		v, ok := reopened.GetRaw(table, key)
		if !ok || !bytes.Equal(v, []byte("v")) {
			t.Fatalf("table %s after reopen: %q %v", table, v, ok)
		}
	}
}

func TestTombstoneResolvesToAbsent(t *testing.T) {
	s := newTestSwitcher(t, t.TempDir(), Persistent)
	defer s.Close()

	if err := s.PutRaw(format.TableSettings, []byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteRaw(format.TableSettings, []byte("k")); err != nil {
		t.Fatal(err)
	}

	if v, ok := s.GetRaw(format.TableSettings, []byte("k")); ok {
		t.Fatalf("deleted key visible: %q", v)
	}
}

func TestUnknownTableRejected(t *testing.T) {
	s := newTestSwitcher(t, "", Ultra)
	defer s.Close()

	if err := s.PutRaw(format.TableKind(9), []byte("k"), []byte("v")); err != ErrUnknownTable {
		t.Fatalf("expected ErrUnknownTable, got %v", err)
	}
	if err := s.DeleteRaw(format.TableKind(0), []byte("k")); err != ErrUnknownTable {
		t.Fatalf("expected ErrUnknownTable, got %v", err)
	}
	if _, ok := s.GetRaw(format.TableKind(200), []byte("k")); ok {
		t.Fatal("unknown table served a value")
	}
}

func TestSwitchModeDiscardsUltraState(t *testing.T) {
	dir := t.TempDir()
	s := newTestSwitcher(t, dir, Ultra)
	defer s.Close()

	if err := s.PutRaw(format.TableHistory, []byte("volatile"), []byte("v")); err != nil {
		t.Fatal(err)
	}

	if err := s.SwitchMode(Persistent, dir); err != nil {
		t.Fatal(err)
	}
	if s.Mode() != Persistent {
		t.Fatalf("mode = %v", s.Mode())
	}

	if _, ok := s.GetRaw(format.TableHistory, []byte("volatile")); ok {
		t.Fatal("ultra state migrated across a mode switch")
	}
}

func TestSwitchModeFlushesPersistentState(t *testing.T) {
	dir := t.TempDir()
	s := newTestSwitcher(t, dir, Persistent)
	defer s.Close()

	if err := s.PutRaw(format.TableHistory, []byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}

	// Persistent -> Ultra tears the trees down, flushing buffers.
	if err := s.SwitchMode(Ultra, dir); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.GetRaw(format.TableHistory, []byte("k")); ok {
		t.Fatal("persistent data visible in ultra mode")
	}

	// Switching back recovers it from disk.
	if err := s.SwitchMode(Persistent, dir); err != nil {
		t.Fatal(err)
	}
	v, ok := s.GetRaw(format.TableHistory, []byte("k"))
	if !ok || !bytes.Equal(v, []byte("v")) {
		t.Fatalf("data lost across mode round trip: %q %v", v, ok)
	}
}

func TestUltraShardingSpreadsKeys(t *testing.T) {
	table := newUltraTable()
	for i := 0; i < 1000; i++ {
		table.put([]byte(fmt.Sprintf("key-%d", i)), []byte("v"))
	}

	if table.len() != 1000 {
		t.Fatalf("len = %d", table.len())
	}

	occupied := 0
	for i := range table.shards {
		if len(table.shards[i].data) > 0 {
			occupied++
		}
	}
	if occupied < ultraShards/2 {
		t.Fatalf("only %d of %d shards used", occupied, ultraShards)
	}
}
