package modes

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/intro0siddiqui/browserdb/format"
)

const ultraShards = 16 // power of two

// ultraTable is a sharded in-memory key-value map. Shard selection
// hashes the key so unrelated keys rarely contend on one lock.
type ultraTable struct {
	shards [ultraShards]ultraShard
}

type ultraShard struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func newUltraTable() *ultraTable {
	t := &ultraTable{}
	for i := range t.shards {
		t.shards[i].data = make(map[string][]byte)
	}
	return t
}

func (t *ultraTable) shard(key []byte) *ultraShard {
	return &t.shards[xxhash.Sum64(key)&(ultraShards-1)]
}

func (t *ultraTable) put(key, value []byte) {
	s := t.shard(key)
	s.mu.Lock()
	s.data[string(key)] = append([]byte(nil), value...)
	s.mu.Unlock()
}

func (t *ultraTable) get(key []byte) ([]byte, bool) {
	s := t.shard(key)
	s.mu.RLock()
	v, ok := s.data[string(key)]
	s.mu.RUnlock()
	return v, ok
}

func (t *ultraTable) delete(key []byte) {
	s := t.shard(key)
	s.mu.Lock()
	delete(s.data, string(key))
	s.mu.Unlock()
}

func (t *ultraTable) len() int {
	n := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.RLock()
		n += len(s.data)
		s.mu.RUnlock()
	}
	return n
}

// ultraSet is the in-memory backing for all five tables.
type ultraSet struct {
	tables map[format.TableKind]*ultraTable
}

func newUltraSet() *ultraSet {
	us := &ultraSet{tables: make(map[format.TableKind]*ultraTable, len(format.Tables))}
	for _, table := range format.Tables {
		us.tables[table] = newUltraTable()
	}
	return us
}

func (us *ultraSet) table(table format.TableKind) *ultraTable {
	return us.tables[table]
}
