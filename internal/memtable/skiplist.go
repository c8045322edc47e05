package memtable

import (
	"bytes"
	"math/rand"
	"time"

	"github.com/MikhailWahib/graveldoc/internal/storage"
)

const (
	maxLevel    = 16
	probability = 0.5
)

// skipListNode holds one entry and its forward links.
type skipListNode struct {
	entry storage.Entry
	next  []*skipListNode
}

// SkipList is an ordered map from key bytes to entries.
// It is not safe for concurrent mutation.
type SkipList struct {
	head  *skipListNode
	level int
	count int
	rng   *rand.Rand
}

// NewSkipList initializes and returns a new empty SkipList.
func NewSkipList() *SkipList {
	return &SkipList{
		head:  &skipListNode{next: make([]*skipListNode, maxLevel)},
		level: 1,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// randomLevel determines the level for a new node using a probabilistic model.
func (sl *SkipList) randomLevel() int {
	level := 1
	for sl.rng.Float64() < probability && level < maxLevel {
		level++
	}
	return level
}

// findPredecessors fills update with the rightmost node before key on each
// level and returns the node at level 0 that may hold key.
func (sl *SkipList) findPredecessors(key []byte, update []*skipListNode) *skipListNode {
	current := sl.head
	for i := sl.level - 1; i >= 0; i-- {
		for current.next[i] != nil && bytes.Compare(current.next[i].entry.Key, key) < 0 {
			current = current.next[i]
		}
		if update != nil {
			update[i] = current
		}
	}
	return current.next[0]
}

// Set inserts e, replacing any entry with the same key. It returns the
// replaced entry and whether there was one.
func (sl *SkipList) Set(e storage.Entry) (storage.Entry, bool) {
	update := make([]*skipListNode, maxLevel)
	node := sl.findPredecessors(e.Key, update)

	if node != nil && bytes.Equal(node.entry.Key, e.Key) {
		old := node.entry
		node.entry = e
		return old, true
	}

	newLevel := sl.randomLevel()
	if newLevel > sl.level {
		for i := sl.level; i < newLevel; i++ {
			update[i] = sl.head
		}
		sl.level = newLevel
	}

	newNode := &skipListNode{entry: e, next: make([]*skipListNode, newLevel)}
	for i := range newLevel {
		newNode.next[i] = update[i].next[i]
		update[i].next[i] = newNode
	}

	sl.count++
	return storage.Entry{}, false
}

// Get returns the entry stored under key.
func (sl *SkipList) Get(key []byte) (storage.Entry, bool) {
	node := sl.findPredecessors(key, nil)
	if node != nil && bytes.Equal(node.entry.Key, key) {
		return node.entry, true
	}
	return storage.Entry{}, false
}

// Seek returns all entries whose key starts with prefix, in key order.
func (sl *SkipList) Seek(prefix []byte) []storage.Entry {
	var result []storage.Entry
	for node := sl.findPredecessors(prefix, nil); node != nil; node = node.next[0] {
		if !bytes.HasPrefix(node.entry.Key, prefix) {
			break
		}
		result = append(result, node.entry)
	}
	return result
}

// Entries returns every entry in key order.
func (sl *SkipList) Entries() []storage.Entry {
	result := make([]storage.Entry, 0, sl.count)
	for node := sl.head.next[0]; node != nil; node = node.next[0] {
		result = append(result, node.entry)
	}
	return result
}

// Len returns the number of keys in the SkipList.
func (sl *SkipList) Len() int {
	return sl.count
}
