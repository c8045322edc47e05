package engine_test

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/MikhailWahib/graveldoc/internal/config"
	"github.com/MikhailWahib/graveldoc/internal/engine"
	"github.com/MikhailWahib/graveldoc/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.WALFlushInterval = 0
	cfg.WALFlushThreshold = 1
	return cfg
}

func openEngine(t *testing.T, dir string, cfg *config.Config) *engine.Engine {
	t.Helper()
	db, err := engine.Open(dir, cfg, logging.NewNop())
	require.NoError(t, err)
	return db
}

func mustGet(t *testing.T, db *engine.Engine, key string) (string, bool) {
	t.Helper()
	val, found, err := db.Get([]byte(key))
	require.NoError(t, err)
	return string(val), found
}

func TestEngine_BasicSetGetDelete(t *testing.T) {
	db := openEngine(t, t.TempDir(), testConfig())
	defer db.Close()

	require.NoError(t, db.Set([]byte("foo"), []byte("bar")))
	require.NoError(t, db.Set([]byte("baz"), []byte("qux")))

	val, found := mustGet(t, db, "foo")
	assert.True(t, found)
	assert.Equal(t, "bar", val)

	val, found = mustGet(t, db, "baz")
	assert.True(t, found)
	assert.Equal(t, "qux", val)

	require.NoError(t, db.Delete([]byte("foo")))

	val, found = mustGet(t, db, "foo")
	assert.False(t, found)
	assert.Equal(t, "", val)

	require.NoError(t, db.Delete([]byte("never-existed")))
}

func TestEngine_CallerMayReuseBuffers(t *testing.T) {
	db := openEngine(t, t.TempDir(), testConfig())
	defer db.Close()

	key := []byte("key")
	value := []byte("value")
	require.NoError(t, db.Set(key, value))
	copy(key, "xxx")
	copy(value, "xxxxx")

	val, found := mustGet(t, db, "key")
	assert.True(t, found)
	assert.Equal(t, "value", val)
}

func TestEngine_WALReplay(t *testing.T) {
	tmpDir := t.TempDir()

	db := openEngine(t, tmpDir, testConfig())
	require.NoError(t, db.Set([]byte("a"), []byte("1")))
	require.NoError(t, db.Set([]byte("b"), []byte("2")))
	require.NoError(t, db.Delete([]byte("a")))
	require.NoError(t, db.Close())

	db = openEngine(t, tmpDir, testConfig())
	defer db.Close()

	_, found := mustGet(t, db, "a")
	assert.False(t, found, "deleted key must stay deleted after recovery")

	val, found := mustGet(t, db, "b")
	assert.True(t, found)
	assert.Equal(t, "2", val)

	// Recovery flushes replayed writes and drops the old log.
	assert.Equal(t, []int{1}, db.Tiers())
	logs, err := filepath.Glob(filepath.Join(tmpDir, "wal", "*.log"))
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestEngine_FlushToSSTable(t *testing.T) {
	tmpDir := t.TempDir()
	db := openEngine(t, tmpDir, testConfig())
	defer db.Close()

	for i := range 50 {
		require.NoError(t, db.Set(fmt.Appendf(nil, "key%03d", i), fmt.Appendf(nil, "value%03d", i)))
	}
	require.NoError(t, db.Delete([]byte("key007")))
	require.NoError(t, db.Flush())

	assert.Equal(t, []int{1}, db.Tiers())
	tables, err := filepath.Glob(filepath.Join(tmpDir, "sstables", "T0", "*.sst"))
	require.NoError(t, err)
	assert.Len(t, tables, 1)

	val, found := mustGet(t, db, "key042")
	assert.True(t, found)
	assert.Equal(t, "value042", val)

	_, found = mustGet(t, db, "key007")
	assert.False(t, found)
}

func TestEngine_FlushRemovesFlushedLogs(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := testConfig()
	cfg.MaxMemtableSize = 64
	cfg.MaxTablesPerTier = 100

	db := openEngine(t, tmpDir, cfg)
	for i := range 100 {
		require.NoError(t, db.Set(fmt.Appendf(nil, "key%03d", i), fmt.Appendf(nil, "value%03d", i)))
	}
	require.NoError(t, db.Flush())

	// Only the active log survives once Flush returns.
	logs, err := filepath.Glob(filepath.Join(tmpDir, "wal", "*.log"))
	require.NoError(t, err)
	assert.Len(t, logs, 1)
	require.NoError(t, db.Close())

	db = openEngine(t, tmpDir, cfg)
	defer db.Close()
	for i := range 100 {
		val, found := mustGet(t, db, fmt.Sprintf("key%03d", i))
		assert.True(t, found, "key%03d", i)
		assert.Equal(t, fmt.Sprintf("value%03d", i), val)
	}
}

func TestEngine_NewerWritesShadowFlushedOnes(t *testing.T) {
	db := openEngine(t, t.TempDir(), testConfig())
	defer db.Close()

	require.NoError(t, db.Set([]byte("k"), []byte("old")))
	require.NoError(t, db.Set([]byte("gone"), []byte("here")))
	require.NoError(t, db.Flush())

	require.NoError(t, db.Set([]byte("k"), []byte("new")))
	require.NoError(t, db.Delete([]byte("gone")))

	val, found := mustGet(t, db, "k")
	assert.True(t, found)
	assert.Equal(t, "new", val)

	_, found = mustGet(t, db, "gone")
	assert.False(t, found)

	require.NoError(t, db.Flush())

	val, _ = mustGet(t, db, "k")
	assert.Equal(t, "new", val)
	_, found = mustGet(t, db, "gone")
	assert.False(t, found)
}

func TestEngine_BackgroundFlushAndCompaction(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := testConfig()
	cfg.MaxMemtableSize = 64
	cfg.MaxTablesPerTier = 2
	cfg.IndexInterval = 2

	db := openEngine(t, tmpDir, cfg)
	for i := range 200 {
		key := fmt.Appendf(nil, "key%03d", i%40)
		require.NoError(t, db.Set(key, fmt.Appendf(nil, "v%d", i)))
	}
	for i := 0; i < 40; i += 4 {
		require.NoError(t, db.Delete(fmt.Appendf(nil, "key%03d", i)))
	}
	require.NoError(t, db.Close())

	db = openEngine(t, tmpDir, cfg)
	defer db.Close()

	tiers := db.Tiers()
	require.Greater(t, len(tiers), 1, "tables should have been compacted out of tier 0")
	for tier, count := range tiers {
		assert.LessOrEqual(t, count, cfg.MaxTablesPerTier, "tier %d", tier)
	}

	for i := range 40 {
		val, found := mustGet(t, db, fmt.Sprintf("key%03d", i))
		if i%4 == 0 {
			assert.False(t, found, "key%03d", i)
			continue
		}
		assert.True(t, found, "key%03d", i)
		assert.Equal(t, fmt.Sprintf("v%d", 160+i), val)
	}
}

func TestEngine_Scan(t *testing.T) {
	db := openEngine(t, t.TempDir(), testConfig())
	defer db.Close()

	require.NoError(t, db.Set([]byte("users\x00b"), []byte("flushed")))
	require.NoError(t, db.Set([]byte("users\x00c"), []byte("to-delete")))
	require.NoError(t, db.Set([]byte("other\x00a"), []byte("x")))
	require.NoError(t, db.Flush())

	require.NoError(t, db.Set([]byte("users\x00a"), []byte("fresh")))
	require.NoError(t, db.Set([]byte("users\x00b"), []byte("updated")))
	require.NoError(t, db.Delete([]byte("users\x00c")))

	entries, err := db.Scan([]byte("users\x00"))
	require.NoError(t, err)

	var got []string
	for _, e := range entries {
		got = append(got, string(e.Key)+"="+string(e.Value))
	}
	assert.Equal(t, []string{"users\x00a=fresh", "users\x00b=updated"}, got)
}

func TestEngine_ConcurrentAccess(t *testing.T) {
	cfg := testConfig()
	cfg.MaxMemtableSize = 512
	cfg.MaxTablesPerTier = 2
	db := openEngine(t, t.TempDir(), cfg)
	defer db.Close()

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				key := fmt.Appendf(nil, "w%d-%03d", w, i)
				assert.NoError(t, db.Set(key, key))
				_, _, err := db.Get(key)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	require.NoError(t, db.Flush())
	for w := range 4 {
		for i := range 100 {
			key := fmt.Sprintf("w%d-%03d", w, i)
			val, found := mustGet(t, db, key)
			assert.True(t, found, key)
			assert.Equal(t, key, val)
		}
	}
}

func TestEngine_Closed(t *testing.T) {
	db := openEngine(t, t.TempDir(), testConfig())
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	assert.ErrorIs(t, db.Set([]byte("k"), []byte("v")), engine.ErrClosed)
	assert.ErrorIs(t, db.Delete([]byte("k")), engine.ErrClosed)
	_, _, err := db.Get([]byte("k"))
	assert.ErrorIs(t, err, engine.ErrClosed)
	_, err = db.Scan(nil)
	assert.ErrorIs(t, err, engine.ErrClosed)
	assert.ErrorIs(t, db.Flush(), engine.ErrClosed)
}

func TestEngine_InvalidTierDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, "sstables", "Tx"), 0755))

	_, err := engine.Open(tmpDir, testConfig(), logging.NewNop())
	assert.ErrorContains(t, err, "invalid tier dir name")
}
