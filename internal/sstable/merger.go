package sstable

import (
	"bytes"
	"container/heap"
	"fmt"
)

// Merger combines multiple SSTables into a single SSTable
type Merger struct {
	sources        []*Reader
	output         *Writer
	dropTombstones bool
}

// NewMerger creates a merger writing to output. Sources must be added oldest
// first; when keys collide the newest source wins. dropTombstones discards
// deletions, which is only correct when no older table can hold the key.
func NewMerger(output *Writer, dropTombstones bool) *Merger {
	return &Merger{output: output, dropTombstones: dropTombstones}
}

// AddSource adds a source SSTable to be merged
func (m *Merger) AddSource(r *Reader) {
	m.sources = append(m.sources, r)
}

type iteratorItem struct {
	iter     *Iterator
	priority int // higher = newer
}

type iteratorHeap []*iteratorItem

func (h iteratorHeap) Len() int { return len(h) }

func (h iteratorHeap) Less(i, j int) bool {
	keyCmp := bytes.Compare(h[i].iter.Entry().Key, h[j].iter.Entry().Key)
	if keyCmp != 0 {
		return keyCmp < 0
	}
	// When keys match, pick item from newer SSTable (higher priority value wins)
	return h[i].priority > h[j].priority
}

func (h iteratorHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *iteratorHeap) Push(x any) {
	*h = append(*h, x.(*iteratorItem))
}

func (h *iteratorHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Merge writes the merged entries to the output and finishes it.
func (m *Merger) Merge() error {
	ih := &iteratorHeap{}
	for i, source := range m.sources {
		iter := source.NewIterator()
		if iter.Next() {
			heap.Push(ih, &iteratorItem{iter: iter, priority: i})
		} else if err := iter.Err(); err != nil {
			return fmt.Errorf("merger: reading %s: %w", source.Path(), err)
		}
	}

	var lastKey []byte
	for ih.Len() > 0 {
		item := heap.Pop(ih).(*iteratorItem)
		entry := item.iter.Entry()

		// Skip older versions of a key already written
		if lastKey == nil || !bytes.Equal(entry.Key, lastKey) {
			lastKey = entry.Key
			if !(entry.IsTombstone() && m.dropTombstones) {
				if err := m.output.Add(entry); err != nil {
					return err
				}
			}
		}

		if item.iter.Next() {
			heap.Push(ih, item)
		} else if err := item.iter.Err(); err != nil {
			return fmt.Errorf("merger: %w", err)
		}
	}

	return m.output.Finish()
}
