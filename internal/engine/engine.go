// Package engine implements the core storage engine: a write-ahead logged
// memtable that is flushed into tiers of SSTables and compacted in the
// background.
package engine

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/MikhailWahib/graveldoc/internal/config"
	"github.com/MikhailWahib/graveldoc/internal/memtable"
	"github.com/MikhailWahib/graveldoc/internal/sstable"
	"github.com/MikhailWahib/graveldoc/internal/storage"
	"github.com/MikhailWahib/graveldoc/internal/wal"
)

// ErrClosed is returned by operations on a closed engine.
var ErrClosed = errors.New("engine is closed")

const (
	walDir     = "wal"
	sstableDir = "sstables"
)

// frozenMemtable is a full memtable waiting to be flushed, along with the
// log that makes it durable until then.
type frozenMemtable struct {
	mt      *memtable.Memtable
	walPath string
}

// Engine is a key-value store safe for concurrent use.
type Engine struct {
	cfg     *config.Config
	dataDir string
	log     zerolog.Logger

	mu         sync.RWMutex
	memtable   *memtable.Memtable
	wal        *wal.WAL
	immutables []*frozenMemtable  // oldest first
	tiers      [][]*sstable.Reader // tier 0 is newest; oldest first within a tier
	closed     bool

	sstCounter atomic.Uint64
	walCounter atomic.Uint64

	flushMu       sync.Mutex
	compactionMgr *CompactionManager
	bg            errgroup.Group
}

// Open opens the engine rooted at dataDir, recovering any logged writes
// that had not been flushed.
func Open(dataDir string, cfg *config.Config, logger zerolog.Logger) (*Engine, error) {
	for _, dir := range []string{dataDir, filepath.Join(dataDir, walDir), filepath.Join(dataDir, sstableDir)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	e := &Engine{
		cfg:      cfg,
		dataDir:  dataDir,
		log:      logger.With().Str("component", "engine").Logger(),
		memtable: memtable.New(),
	}
	e.compactionMgr = NewCompactionManager(e)

	if err := e.loadTiers(); err != nil {
		e.closeReaders()
		return nil, err
	}
	if err := e.recover(); err != nil {
		e.closeReaders()
		return nil, err
	}
	if err := e.compactionMgr.compactTiers(); err != nil {
		e.closeReaders()
		return nil, err
	}

	w, err := e.newWAL()
	if err != nil {
		e.closeReaders()
		return nil, err
	}
	e.wal = w

	e.log.Debug().Str("dir", dataDir).Ints("tiers", e.Tiers()).Msg("engine opened")
	return e, nil
}

// loadTiers opens every table under sstables/T<n>, ordered by file number.
func (e *Engine) loadTiers() error {
	subdirs, err := os.ReadDir(filepath.Join(e.dataDir, sstableDir))
	if err != nil {
		return err
	}

	var maxSSTNumber uint64
	for _, dir := range subdirs {
		if !dir.IsDir() || !strings.HasPrefix(dir.Name(), "T") {
			continue
		}

		tier, err := strconv.Atoi(strings.TrimPrefix(dir.Name(), "T"))
		if err != nil || tier < 0 {
			return fmt.Errorf("invalid tier dir name %q", dir.Name())
		}

		tierDir := filepath.Join(e.dataDir, sstableDir, dir.Name())
		numbers, err := numberedFiles(tierDir, ".sst")
		if err != nil {
			return err
		}

		for len(e.tiers) <= tier {
			e.tiers = append(e.tiers, nil)
		}
		for _, n := range numbers {
			r, err := sstable.NewReader(e.tablePath(tier, n))
			if err != nil {
				return err
			}
			e.tiers[tier] = append(e.tiers[tier], r)
			maxSSTNumber = max(maxSSTNumber, n)
		}
	}

	e.sstCounter.Store(maxSSTNumber)
	return nil
}

// recover replays every leftover log into a memtable, flushes it to tier 0
// and removes the logs.
func (e *Engine) recover() error {
	dir := filepath.Join(e.dataDir, walDir)
	numbers, err := numberedFiles(dir, ".log")
	if err != nil {
		return err
	}
	if len(numbers) == 0 {
		return nil
	}

	mt := memtable.New()
	var paths []string
	for _, n := range numbers {
		path := e.walPath(n)
		paths = append(paths, path)

		w, err := wal.Open(path, e.cfg.WALFlushThreshold, 0)
		if err != nil {
			return err
		}
		err = w.Replay(func(entry storage.Entry) error {
			mt.Apply(entry)
			return nil
		})
		if cerr := w.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		e.walCounter.Store(max(e.walCounter.Load(), n))
	}

	if mt.Len() > 0 {
		r, err := e.writeTable(0, mt.Entries())
		if err != nil {
			return fmt.Errorf("failed to flush recovered writes: %w", err)
		}
		e.addTable(0, r)
		e.log.Info().Int("entries", mt.Len()).Int("logs", len(paths)).Msg("recovered unflushed writes")
	}

	for _, path := range paths {
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the value stored for key.
func (e *Engine) Get(key []byte) ([]byte, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, false, ErrClosed
	}

	// First check memtable
	if entry, ok := e.memtable.Get(key); ok {
		return resolve(entry)
	}

	for i := len(e.immutables) - 1; i >= 0; i-- {
		if entry, ok := e.immutables[i].mt.Get(key); ok {
			return resolve(entry)
		}
	}

	// Then search tiers in order (newest first)
	for _, tier := range e.tiers {
		for i := len(tier) - 1; i >= 0; i-- {
			entry, found, err := tier[i].Get(key)
			if err != nil {
				return nil, false, err
			}
			if found {
				return resolve(entry)
			}
		}
	}

	return nil, false, nil
}

func resolve(entry storage.Entry) ([]byte, bool, error) {
	if entry.IsTombstone() {
		return nil, false, nil
	}
	return entry.Value, true, nil
}

// Set stores value under key.
func (e *Engine) Set(key, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	key, value = bytes.Clone(key), bytes.Clone(value)
	if err := e.wal.AppendSet(key, value); err != nil {
		return err
	}
	e.memtable.Set(key, value)

	return e.maybeRotateLocked()
}

// Delete removes key. Deleting a missing key is not an error.
func (e *Engine) Delete(key []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	key = bytes.Clone(key)
	if err := e.wal.AppendDelete(key); err != nil {
		return err
	}
	e.memtable.Delete(key)

	return e.maybeRotateLocked()
}

// Scan returns the live entries whose key starts with prefix, in key order.
func (e *Engine) Scan(prefix []byte) ([]storage.Entry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, ErrClosed
	}

	seen := make(map[string]struct{})
	var result []storage.Entry
	visit := func(entries []storage.Entry) {
		for _, entry := range entries {
			k := string(entry.Key)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			if !entry.IsTombstone() {
				result = append(result, entry)
			}
		}
	}

	visit(e.memtable.Seek(prefix))
	for i := len(e.immutables) - 1; i >= 0; i-- {
		visit(e.immutables[i].mt.Seek(prefix))
	}
	for _, tier := range e.tiers {
		for i := len(tier) - 1; i >= 0; i-- {
			entries, err := tier[i].Seek(prefix)
			if err != nil {
				return nil, err
			}
			visit(entries)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return bytes.Compare(result[i].Key, result[j].Key) < 0
	})
	return result, nil
}

// Flush writes all buffered writes to tier 0 and waits for the flush to
// complete. Compaction triggered by the flush may still be running.
func (e *Engine) Flush() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.memtable.Len() > 0 {
		if err := e.rotateLocked(); err != nil {
			e.mu.Unlock()
			return err
		}
	}
	e.mu.Unlock()

	for {
		e.mu.RLock()
		pending := len(e.immutables)
		e.mu.RUnlock()
		if pending == 0 {
			// Wait out a background flush that already dequeued its memtable.
			e.flushMu.Lock()
			e.flushMu.Unlock()
			return nil
		}
		if err := e.flushOldest(); err != nil {
			return err
		}
	}
}

// Tiers returns the number of tables in each tier.
func (e *Engine) Tiers() []int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	counts := make([]int, len(e.tiers))
	for i, tier := range e.tiers {
		counts[i] = len(tier)
	}
	return counts
}

// Close waits for background work, then closes the log and every table.
// Writes still in the memtable are recovered from the log on the next Open.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	errs := []error{e.bg.Wait()}

	e.mu.Lock()
	defer e.mu.Unlock()
	errs = append(errs, e.wal.Close())
	errs = append(errs, e.closeReaders())

	return errors.Join(errs...)
}

func (e *Engine) closeReaders() error {
	var errs []error
	for _, tier := range e.tiers {
		for _, r := range tier {
			errs = append(errs, r.Close())
		}
	}
	e.tiers = nil
	return errors.Join(errs...)
}

func (e *Engine) maybeRotateLocked() error {
	if e.memtable.Size() < e.cfg.MaxMemtableSize {
		return nil
	}
	return e.rotateLocked()
}

// rotateLocked freezes the active memtable and hands it to a background
// flush. Must be called with e.mu held.
func (e *Engine) rotateLocked() error {
	next, err := e.newWAL()
	if err != nil {
		return fmt.Errorf("failed to rotate wal: %w", err)
	}
	if err := e.wal.Close(); err != nil {
		_ = next.Remove()
		return fmt.Errorf("failed to close wal: %w", err)
	}

	e.immutables = append(e.immutables, &frozenMemtable{mt: e.memtable, walPath: e.wal.Path()})
	e.memtable = memtable.New()
	e.wal = next

	e.bg.Go(e.flushOldest)
	return nil
}

// flushOldest writes the oldest frozen memtable to tier 0, drops its log and
// compacts tiers that outgrew their limit.
func (e *Engine) flushOldest() error {
	e.flushMu.Lock()

	e.mu.RLock()
	if len(e.immutables) == 0 {
		e.mu.RUnlock()
		e.flushMu.Unlock()
		return nil
	}
	frozen := e.immutables[0]
	e.mu.RUnlock()

	r, err := e.writeTable(0, frozen.mt.Entries())
	if err != nil {
		e.flushMu.Unlock()
		e.log.Error().Err(err).Msg("memtable flush failed")
		return err
	}

	e.mu.Lock()
	e.addTable(0, r)
	e.immutables = e.immutables[1:]
	e.mu.Unlock()

	// Flush returns once flushMu is free, so the log must be gone by then.
	if err := os.Remove(frozen.walPath); err != nil {
		e.log.Warn().Err(err).Str("wal", frozen.walPath).Msg("failed to remove flushed wal")
	}
	e.flushMu.Unlock()
	e.log.Debug().Str("table", r.Path()).Int("entries", frozen.mt.Len()).Msg("flushed memtable")

	if err := e.compactionMgr.compactTiers(); err != nil {
		e.log.Error().Err(err).Msg("compaction failed")
		return err
	}
	return nil
}

// writeTable writes entries, which must be sorted, to a new table in tier.
func (e *Engine) writeTable(tier int, entries []storage.Entry) (*sstable.Reader, error) {
	path, err := e.newTablePath(tier)
	if err != nil {
		return nil, err
	}

	w, err := sstable.NewWriter(path, e.cfg.IndexInterval)
	if err != nil {
		return nil, fmt.Errorf("failed to open SSTable for writing: %w", err)
	}
	for _, entry := range entries {
		if err := w.Add(entry); err != nil {
			_ = w.Abort()
			return nil, fmt.Errorf("failed to append entry to SSTable: %w", err)
		}
	}
	if err := w.Finish(); err != nil {
		return nil, fmt.Errorf("failed to finish SSTable: %w", err)
	}

	return sstable.NewReader(path)
}

// addTable appends r as the newest table of tier. Must be called with e.mu
// held or before the engine is shared.
func (e *Engine) addTable(tier int, r *sstable.Reader) {
	for len(e.tiers) <= tier {
		e.tiers = append(e.tiers, nil)
	}
	e.tiers[tier] = append(e.tiers[tier], r)
}

func (e *Engine) newWAL() (*wal.WAL, error) {
	return wal.Open(e.walPath(e.walCounter.Add(1)), e.cfg.WALFlushThreshold, e.cfg.WALFlushInterval)
}

func (e *Engine) walPath(n uint64) string {
	return filepath.Join(e.dataDir, walDir, fmt.Sprintf("%06d.log", n))
}

func (e *Engine) tablePath(tier int, n uint64) string {
	return filepath.Join(e.dataDir, sstableDir, fmt.Sprintf("T%d", tier), fmt.Sprintf("%06d.sst", n))
}

// newTablePath reserves a unique table file name in tier.
func (e *Engine) newTablePath(tier int) (string, error) {
	path := e.tablePath(tier, e.sstCounter.Add(1))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create tier directory: %w", err)
	}
	return path, nil
}

// numberedFiles returns the sorted numbers of files in dir named <n><ext>.
func numberedFiles(dir, ext string) ([]uint64, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var numbers []uint64
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ext) {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSuffix(file.Name(), ext), 10, 64)
		if err != nil {
			continue
		}
		numbers = append(numbers, n)
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	return numbers, nil
}
