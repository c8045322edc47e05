// Package storage defines the entries persisted by the write-ahead log and
// SSTables, and their on-disk encoding.
package storage

import "fmt"

// EntryType represents the type of entry stored in the database
type EntryType byte

const (
	// SetEntry indicates a key-value insertion operation
	SetEntry EntryType = iota
	// DeleteEntry indicates a key deletion operation
	DeleteEntry
)

// Entry represents a database entry to be written to storage
type Entry struct {
	Type  EntryType
	Key   []byte
	Value []byte
}

// IsTombstone reports whether e marks its key as deleted.
func (e Entry) IsTombstone() bool {
	return e.Type == DeleteEntry
}

// EncodedSize returns the number of bytes e occupies on disk.
func (e Entry) EncodedSize() int {
	return PrefixSize + len(e.Key) + len(e.Value)
}

// CheckSize reports whether e can be encoded and read back.
func (e Entry) CheckSize() error {
	if len(e.Key) > MaxFieldLength || len(e.Value) > MaxFieldLength {
		return fmt.Errorf("%w: key %d bytes, value %d bytes, limit %d", ErrEntryTooLarge, len(e.Key), len(e.Value), MaxFieldLength)
	}
	return nil
}
