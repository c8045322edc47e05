// Package wal implements Write-Ahead Logging for durability
package wal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/MikhailWahib/graveldoc/internal/storage"
)

// ErrClosed is returned when appending to a closed WAL.
var ErrClosed = errors.New("wal is closed")

// WAL manages the write-ahead log file.
//
// Appends are buffered. The buffer is flushed and fsynced once it holds
// flushThreshold bytes, and by a background ticker every flushInterval.
type WAL struct {
	mu sync.Mutex

	path           string
	file           *os.File
	buf            *bufio.Writer
	pending        int
	flushThreshold int
	closed         bool

	stop chan struct{}
	done chan struct{}
}

// Open opens or creates the WAL at path. A flushInterval of zero disables
// the background flusher, leaving durability to the threshold and Sync.
func Open(path string, flushThreshold int, flushInterval time.Duration) (*WAL, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	w := &WAL{
		path:           path,
		file:           file,
		buf:            bufio.NewWriterSize(file, max(flushThreshold, 4096)),
		flushThreshold: flushThreshold,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}

	if flushInterval > 0 {
		go w.flushLoop(flushInterval)
	} else {
		close(w.done)
	}

	return w, nil
}

// Path returns the file path of the WAL.
func (w *WAL) Path() string {
	return w.path
}

// AppendSet appends a set operation to the WAL
func (w *WAL) AppendSet(key, value []byte) error {
	return w.append(storage.Entry{Type: storage.SetEntry, Key: key, Value: value})
}

// AppendDelete appends a delete operation to the WAL
func (w *WAL) AppendDelete(key []byte) error {
	return w.append(storage.Entry{Type: storage.DeleteEntry, Key: key, Value: []byte{}})
}

func (w *WAL) append(e storage.Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if err := e.CheckSize(); err != nil {
		return err
	}

	encoded := storage.AppendEntry(make([]byte, 0, e.EncodedSize()), e)
	if _, err := w.buf.Write(encoded); err != nil {
		return fmt.Errorf("failed to append to wal: %w", err)
	}
	w.pending += len(encoded)

	if w.pending >= w.flushThreshold {
		return w.syncLocked()
	}
	return nil
}

// Sync flushes buffered entries and fsyncs the file.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	return w.syncLocked()
}

func (w *WAL) syncLocked() error {
	if w.pending == 0 {
		return nil
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush wal: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync wal: %w", err)
	}
	w.pending = 0
	return nil
}

func (w *WAL) flushLoop(interval time.Duration) {
	defer close(w.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.mu.Lock()
			if !w.closed {
				// A failed background sync is retried on the next tick or surfaced by Sync/Close.
				_ = w.syncLocked()
			}
			w.mu.Unlock()
		}
	}
}

// Replay reads every complete entry from the beginning of the log and passes
// it to fn in order. A torn entry at the tail, left by a crash mid-write,
// ends the replay without error.
func (w *WAL) Replay(fn func(storage.Entry) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.buf.Flush(); err != nil {
		return err
	}

	r := bufio.NewReader(io.NewSectionReader(w.file, 0, 1<<62))
	for {
		entry, err := storage.ReadEntry(r)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return fmt.Errorf("failed to replay wal %s: %w", w.path, err)
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
}

// Close flushes pending entries, stops the background flusher and closes the file.
func (w *WAL) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	err := w.syncLocked()
	w.closed = true
	w.mu.Unlock()

	close(w.stop)
	<-w.done

	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// Remove closes the WAL and deletes its file.
func (w *WAL) Remove() error {
	if err := w.Close(); err != nil {
		return err
	}
	return os.Remove(w.path)
}
