package sstable

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/MikhailWahib/graveldoc/internal/storage"
)

// ErrCorruptTable is returned when a table's footer or index is malformed.
var ErrCorruptTable = errors.New("corrupt sstable")

// Reader serves point lookups and scans over a finished SSTable.
// It is safe for concurrent use.
type Reader struct {
	path     string
	file     *os.File
	index    []IndexEntry
	dataSize int64
}

// NewReader opens the table at path and loads its sparse index.
func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SST file: %w", err)
	}

	r := &Reader{path: path, file: file}
	if err := r.loadIndex(); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

func (r *Reader) loadIndex() error {
	stat, err := r.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat SST file: %w", err)
	}
	if stat.Size() < FooterSize {
		return fmt.Errorf("%w: file too small", ErrCorruptTable)
	}

	footer := make([]byte, FooterSize)
	if _, err := r.file.ReadAt(footer, stat.Size()-FooterSize); err != nil {
		return fmt.Errorf("failed to read footer: %w", err)
	}

	indexOffset := int64(binary.BigEndian.Uint64(footer[:IndexOffsetSize]))
	indexSize := int64(binary.BigEndian.Uint64(footer[IndexOffsetSize:]))
	if indexOffset < 0 || indexSize < 0 || indexOffset+indexSize != stat.Size()-FooterSize {
		return fmt.Errorf("%w: bad footer", ErrCorruptTable)
	}
	r.dataSize = indexOffset

	offset := indexOffset
	end := indexOffset + indexSize
	for offset < end {
		entry, next, err := storage.ReadEntryAt(r.file, offset)
		if err != nil {
			return fmt.Errorf("failed to read index entry: %w", err)
		}
		if len(entry.Value) != 8 {
			return fmt.Errorf("%w: bad index entry", ErrCorruptTable)
		}
		r.index = append(r.index, IndexEntry{
			Key:    entry.Key,
			Offset: int64(binary.BigEndian.Uint64(entry.Value)),
		})
		offset = next
	}
	return nil
}

// Path returns the file path of the table.
func (r *Reader) Path() string {
	return r.path
}

// startOffset returns the data offset of the last indexed key <= key.
func (r *Reader) startOffset(key []byte) (int64, bool) {
	pos := sort.Search(len(r.index), func(i int) bool {
		return bytes.Compare(r.index[i].Key, key) > 0
	})
	if pos == 0 {
		return 0, false
	}
	return r.index[pos-1].Offset, true
}

// Get returns the entry for key, which may be a tombstone.
func (r *Reader) Get(key []byte) (storage.Entry, bool, error) {
	offset, ok := r.startOffset(key)
	if !ok {
		return storage.Entry{}, false, nil
	}

	for offset < r.dataSize {
		entry, next, err := storage.ReadEntryAt(r.file, offset)
		if err != nil {
			return storage.Entry{}, false, fmt.Errorf("failed to read entry: %w", err)
		}

		cmp := bytes.Compare(entry.Key, key)
		if cmp == 0 {
			return entry, true, nil
		}
		if cmp > 0 {
			break
		}
		offset = next
	}
	return storage.Entry{}, false, nil
}

// Seek returns the entries whose key starts with prefix, tombstones included.
func (r *Reader) Seek(prefix []byte) ([]storage.Entry, error) {
	offset, _ := r.startOffset(prefix)

	var result []storage.Entry
	for offset < r.dataSize {
		entry, next, err := storage.ReadEntryAt(r.file, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to read entry: %w", err)
		}
		offset = next

		if bytes.HasPrefix(entry.Key, prefix) {
			result = append(result, entry)
			continue
		}
		if bytes.Compare(entry.Key, prefix) > 0 {
			break
		}
	}
	return result, nil
}

// NewIterator returns an iterator over every entry in key order.
func (r *Reader) NewIterator() *Iterator {
	return &Iterator{r: bufio.NewReader(io.NewSectionReader(r.file, 0, r.dataSize))}
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// Iterator walks a table's data section sequentially.
type Iterator struct {
	r     *bufio.Reader
	entry storage.Entry
	err   error
}

// Next advances to the next entry and reports whether there is one.
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}
	entry, err := storage.ReadEntry(it.r)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			it.err = err
		}
		return false
	}
	it.entry = entry
	return true
}

// Entry returns the current entry.
func (it *Iterator) Entry() storage.Entry {
	return it.entry
}

// Err returns the first error encountered during iteration.
func (it *Iterator) Err() error {
	return it.err
}
