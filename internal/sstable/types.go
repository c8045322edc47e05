// Package sstable implements immutable sorted tables: a data section of
// length-prefixed entries, a sparse index and a fixed footer.
package sstable

import "errors"

const (
	IndexOffsetSize = 8
	IndexSizeSize   = 8
	FooterSize      = IndexOffsetSize + IndexSizeSize
)

// ErrOutOfOrder is returned when entries are added out of key order.
var ErrOutOfOrder = errors.New("sstable: keys must be added in increasing order")

// IndexEntry represents an entry in the sparse index
type IndexEntry struct {
	Key    []byte
	Offset int64
}
