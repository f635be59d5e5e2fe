package memtable

import (
	"iter"
	"math/rand"

	"github.com/intro0siddiqui/browserdb/format"
)

const maxLevel = 32

// skipListNode keys by the record's key bytes, stored as a string so
// node ordering is a plain string compare.
type skipListNode struct {
	key     string
	entry   *format.LogEntry
	forward []*skipListNode
}

func newSkipListNode(key string, entry *format.LogEntry, levels int) *skipListNode {
	return &skipListNode{
		key:     key,
		entry:   entry,
		forward: make([]*skipListNode, levels+1),
	}
}

// skipList is an ordered map from key bytes to log entries. Not safe
// for concurrent use; the engine serializes access around it.
type skipList struct {
	head   *skipListNode
	levels int
	size   int
}

func newSkipList() *skipList {
	return &skipList{
		head:   newSkipListNode("", nil, 0),
		levels: -1,
	}
}

func (sl *skipList) get(key string) (*format.LogEntry, bool) {
	curr := sl.head

	for level := sl.levels; level >= 0; level-- {
		for {
			next := curr.forward[level]
			if next == nil || next.key > key {
				break
			}
			if next.key == key {
				return next.entry, true
			}
			curr = next
		}
	}

	return nil, false
}

func randomLevel() int {
	level := 0
	for rand.Int31()&1 == 0 && level < maxLevel {
		level++
	}
	return level
}

func (sl *skipList) adjustLevels(level int) {
	temp := sl.head.forward

	sl.head = newSkipListNode("", nil, level)
	sl.levels = level

	copy(sl.head.forward, temp)
}

// put inserts the entry, returning the previous entry for the key if
// one was replaced.
func (sl *skipList) put(key string, entry *format.LogEntry) *format.LogEntry {
	newLevel := randomLevel()

	if newLevel > sl.levels {
		sl.adjustLevels(newLevel)
	}

	updates := make([]*skipListNode, sl.levels+1)

	x := sl.head
	for level := sl.levels; level >= 0; level-- {
		for x.forward[level] != nil && x.forward[level].key < key {
			x = x.forward[level]
		}
		updates[level] = x
	}

	if next := x.forward[0]; next != nil && next.key == key {
		prev := next.entry
		next.entry = entry
		return prev
	}

	newNode := newSkipListNode(key, entry, newLevel)
	for level := 0; level <= newLevel; level++ {
		newNode.forward[level] = updates[level].forward[level]
		updates[level].forward[level] = newNode
	}

	sl.size++
	return nil
}

// all yields entries in ascending key order.
func (sl *skipList) all() iter.Seq[*format.LogEntry] {
	return func(yield func(*format.LogEntry) bool) {
		curr := sl.head
		for curr.forward[0] != nil {
			if !yield(curr.forward[0].entry) {
				break
			}
			curr = curr.forward[0]
		}
	}
}
