// Package memtable implements an in-memory table structure for the database,
// providing fast access to recently written data before it is persisted to disk.
package memtable

import (
	"github.com/MikhailWahib/graveldoc/internal/storage"
)

// Memtable buffers recent writes in key order. Deletes are kept as
// tombstones so they shadow older values in SSTables.
//
// A Memtable is not safe for concurrent mutation; the engine serializes
// writers and only reads frozen memtables concurrently.
type Memtable struct {
	sl   *SkipList
	size int
}

// New creates an empty Memtable.
func New() *Memtable {
	return &Memtable{sl: NewSkipList()}
}

// Set inserts or updates an entry in the memtable
func (m *Memtable) Set(key, value []byte) {
	m.put(storage.Entry{Type: storage.SetEntry, Key: key, Value: value})
}

// Delete marks the given key as deleted
func (m *Memtable) Delete(key []byte) {
	m.put(storage.Entry{Type: storage.DeleteEntry, Key: key, Value: []byte{}})
}

// Apply replays a logged entry.
func (m *Memtable) Apply(e storage.Entry) {
	m.put(e)
}

func (m *Memtable) put(e storage.Entry) {
	old, replaced := m.sl.Set(e)
	if replaced {
		m.size -= old.EncodedSize()
	}
	m.size += e.EncodedSize()
}

// Get returns the entry for key, which may be a tombstone.
func (m *Memtable) Get(key []byte) (storage.Entry, bool) {
	return m.sl.Get(key)
}

// Seek returns the entries whose key starts with prefix, tombstones included.
func (m *Memtable) Seek(prefix []byte) []storage.Entry {
	return m.sl.Seek(prefix)
}

// Entries returns all entries in key order.
func (m *Memtable) Entries() []storage.Entry {
	return m.sl.Entries()
}

// Size returns the encoded size of the entries in bytes.
func (m *Memtable) Size() int {
	return m.size
}

// Len returns the number of keys held, tombstones included.
func (m *Memtable) Len() int {
	return m.sl.Len()
}
