package sstable

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/MikhailWahib/graveldoc/internal/storage"
)

// Writer builds an SSTable file from entries supplied in key order.
type Writer struct {
	path          string
	file          *os.File
	buf           *bufio.Writer
	index         []IndexEntry
	indexInterval int
	offset        int64
	count         int
	lastKey       []byte
}

// NewWriter creates the file at path and prepares it for writing.
// Every indexInterval-th entry is recorded in the sparse index.
func NewWriter(path string, indexInterval int) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	if indexInterval < 1 {
		indexInterval = 1
	}
	return &Writer{
		path:          path,
		file:          file,
		buf:           bufio.NewWriter(file),
		indexInterval: indexInterval,
	}, nil
}

// Add appends an entry. Keys must be strictly increasing.
func (w *Writer) Add(e storage.Entry) error {
	if w.count > 0 && bytes.Compare(e.Key, w.lastKey) <= 0 {
		return fmt.Errorf("%w: %q after %q", ErrOutOfOrder, e.Key, w.lastKey)
	}

	if w.count%w.indexInterval == 0 {
		w.index = append(w.index, IndexEntry{Key: bytes.Clone(e.Key), Offset: w.offset})
	}

	encoded := storage.AppendEntry(nil, e)
	if _, err := w.buf.Write(encoded); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}

	w.offset += int64(len(encoded))
	w.lastKey = append(w.lastKey[:0], e.Key...)
	w.count++
	return nil
}

// Count returns the number of entries added so far.
func (w *Writer) Count() int {
	return w.count
}

// Finish writes the index and footer, then syncs and closes the file.
// Index records reuse the entry format: the key, and the data offset as the value.
func (w *Writer) Finish() error {
	indexOffset := w.offset

	for _, ie := range w.index {
		offsetBytes := make([]byte, 8)
		binary.BigEndian.PutUint64(offsetBytes, uint64(ie.Offset))
		encoded := storage.AppendEntry(nil, storage.Entry{Type: storage.SetEntry, Key: ie.Key, Value: offsetBytes})
		if _, err := w.buf.Write(encoded); err != nil {
			return fmt.Errorf("failed to write index: %w", err)
		}
		w.offset += int64(len(encoded))
	}

	footer := make([]byte, FooterSize)
	binary.BigEndian.PutUint64(footer[:IndexOffsetSize], uint64(indexOffset))
	binary.BigEndian.PutUint64(footer[IndexOffsetSize:], uint64(w.offset-indexOffset))
	if _, err := w.buf.Write(footer); err != nil {
		return fmt.Errorf("failed to write footer: %w", err)
	}

	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush sstable: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}
	return w.file.Close()
}

// Abort closes and removes a partially written table.
func (w *Writer) Abort() error {
	_ = w.file.Close()
	return os.Remove(w.path)
}
