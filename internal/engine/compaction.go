package engine

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/MikhailWahib/graveldoc/internal/sstable"
)

// CompactionManager manages the compaction process for SSTable tiers.
type CompactionManager struct {
	mu     sync.Mutex
	engine *Engine
}

// NewCompactionManager creates a CompactionManager for the given engine.
func NewCompactionManager(e *Engine) *CompactionManager {
	return &CompactionManager{
		engine: e,
	}
}

// shouldCompactTier checks if a tier should be compacted.
func (cm *CompactionManager) shouldCompactTier(tier int) bool {
	cm.engine.mu.RLock()
	defer cm.engine.mu.RUnlock()

	if tier >= len(cm.engine.tiers) {
		return false
	}
	return len(cm.engine.tiers[tier]) > cm.engine.cfg.MaxTablesPerTier
}

// compactTiers merges every tier holding more than MaxTablesPerTier tables
// into the tier below it, cascading as deeper tiers fill up.
func (cm *CompactionManager) compactTiers() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for tier := 0; ; tier++ {
		cm.engine.mu.RLock()
		depth := len(cm.engine.tiers)
		cm.engine.mu.RUnlock()
		if tier >= depth {
			return nil
		}

		if !cm.shouldCompactTier(tier) {
			continue
		}
		if err := cm.compact(tier); err != nil {
			return err
		}
	}
}

// compact merges the current tables of tier into one new table in tier+1.
// Tables flushed into tier while the merge runs are left in place.
func (cm *CompactionManager) compact(tier int) error {
	e := cm.engine
	start := time.Now()

	e.mu.RLock()
	inputs := append([]*sstable.Reader(nil), e.tiers[tier]...)
	// Tombstones can only be dropped when no deeper table may still hold the key.
	dropTombstones := true
	for _, deeper := range e.tiers[tier+1:] {
		if len(deeper) > 0 {
			dropTombstones = false
			break
		}
	}
	e.mu.RUnlock()

	if len(inputs) == 0 {
		return nil
	}

	outputFile, err := e.newTablePath(tier + 1)
	if err != nil {
		return err
	}
	output, err := sstable.NewWriter(outputFile, e.cfg.IndexInterval)
	if err != nil {
		return fmt.Errorf("failed to open output SST for writing: %w", err)
	}

	merger := sstable.NewMerger(output, dropTombstones)
	for _, sst := range inputs {
		merger.AddSource(sst)
	}
	if err := merger.Merge(); err != nil {
		_ = output.Abort()
		return fmt.Errorf("failed to merge SSTables: %w", err)
	}

	var outputReader *sstable.Reader
	if output.Count() > 0 {
		outputReader, err = sstable.NewReader(outputFile)
		if err != nil {
			return fmt.Errorf("failed to open compacted SST for reading: %w", err)
		}
	} else if err := os.Remove(outputFile); err != nil {
		return err
	}

	e.mu.Lock()
	e.tiers[tier] = append([]*sstable.Reader(nil), e.tiers[tier][len(inputs):]...)
	if outputReader != nil {
		e.addTable(tier+1, outputReader)
	}
	e.mu.Unlock()

	// Readers are gone from the tiers, so no lookup can reach them any more.
	for _, sst := range inputs {
		path := sst.Path()
		_ = sst.Close()
		if err := os.Remove(path); err != nil {
			e.log.Warn().Err(err).Str("table", path).Msg("failed to remove compacted table")
		}
	}

	e.log.Info().
		Int("tier", tier).
		Int("inputs", len(inputs)).
		Int("entries", output.Count()).
		Bool("dropped_tombstones", dropTombstones).
		Dur("took", time.Since(start)).
		Msg("compacted tier")
	return nil
}
