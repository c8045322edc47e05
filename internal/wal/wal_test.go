package wal_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MikhailWahib/graveldoc/internal/storage"
	"github.com/MikhailWahib/graveldoc/internal/wal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func setup(t *testing.T, path string) string {
	testDir := t.TempDir()
	walPath := filepath.Join(testDir, path)
	return walPath
}

func collect(t *testing.T, w *wal.WAL) []storage.Entry {
	t.Helper()
	var entries []storage.Entry
	require.NoError(t, w.Replay(func(e storage.Entry) error {
		entries = append(entries, e)
		return nil
	}))
	return entries
}

func TestWAL_BasicOperations(t *testing.T) {
	walPath := setup(t, "basic.wal")

	w, err := wal.Open(walPath, 64*1024, 0)
	require.NoError(t, err)

	require.NoError(t, w.AppendSet([]byte("key1"), []byte("value1")))
	require.NoError(t, w.AppendSet([]byte("key2"), []byte("value2")))
	require.NoError(t, w.AppendDelete([]byte("key3")))

	require.NoError(t, w.Close())

	assert.FileExists(t, walPath)
	assert.ErrorIs(t, w.AppendSet([]byte("late"), nil), wal.ErrClosed)
}

func TestWAL_Replay(t *testing.T) {
	walPath := setup(t, "replay.wal")

	w, err := wal.Open(walPath, 64*1024, 0)
	require.NoError(t, err)

	expected := []struct {
		op    string
		key   []byte
		value []byte
	}{
		{"set", []byte("key1"), []byte("value1")},
		{"set", []byte("key2"), []byte("value2")},
		{"delete", []byte("key1"), []byte{}},
		{"set", []byte("key3"), []byte("value3")},
	}

	for _, e := range expected {
		if e.op == "set" {
			require.NoError(t, w.AppendSet(e.key, e.value))
		} else {
			require.NoError(t, w.AppendDelete(e.key))
		}
	}

	require.NoError(t, w.Close())

	// Reopen WAL for replay
	w, err = wal.Open(walPath, 64*1024, 0)
	require.NoError(t, err)
	defer w.Close()

	entries := collect(t, w)
	require.Len(t, entries, len(expected))

	for i, entry := range entries {
		e := expected[i]
		expectedType := storage.SetEntry
		if e.op == "delete" {
			expectedType = storage.DeleteEntry
		}

		assert.Equal(t, expectedType, entry.Type, "Entry type mismatch")
		assert.Equal(t, e.key, entry.Key, "Key mismatch")
		assert.Equal(t, e.value, entry.Value, "Value mismatch")
	}
}

func TestWAL_ThresholdFlushesToDisk(t *testing.T) {
	walPath := setup(t, "threshold.wal")

	w, err := wal.Open(walPath, 1, 0)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.AppendSet([]byte("k"), []byte("v")))

	info, err := os.Stat(walPath)
	require.NoError(t, err)
	assert.Equal(t, int64(storage.PrefixSize+2), info.Size())
}

func TestWAL_IntervalFlushesToDisk(t *testing.T) {
	walPath := setup(t, "interval.wal")

	w, err := wal.Open(walPath, 1<<20, 5*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.AppendSet([]byte("k"), []byte("v")))

	assert.Eventually(t, func() bool {
		info, err := os.Stat(walPath)
		return err == nil && info.Size() == int64(storage.PrefixSize+2)
	}, time.Second, 5*time.Millisecond)
}

func TestWAL_TornTailIsIgnored(t *testing.T) {
	walPath := setup(t, "torn.wal")

	w, err := wal.Open(walPath, 1, 0)
	require.NoError(t, err)
	require.NoError(t, w.AppendSet([]byte("whole"), []byte("entry")))
	require.NoError(t, w.Close())

	// Simulate a crash halfway through the next append.
	f, err := os.OpenFile(walPath, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	partial := storage.AppendEntry(nil, storage.Entry{Type: storage.SetEntry, Key: []byte("half"), Value: []byte("written")})
	_, err = f.Write(partial[:len(partial)-3])
	require.NoError(t, err)
	require.NoError(t, f.Close())

	w, err = wal.Open(walPath, 1, 0)
	require.NoError(t, err)
	defer w.Close()

	entries := collect(t, w)
	require.Len(t, entries, 1)
	assert.Equal(t, []byte("whole"), entries[0].Key)
}

func TestWAL_Remove(t *testing.T) {
	walPath := setup(t, "remove.wal")

	w, err := wal.Open(walPath, 1, time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, w.AppendSet([]byte("k"), []byte("v")))

	require.NoError(t, w.Remove())
	assert.NoFileExists(t, walPath)
}

func TestWAL_RejectsOversizedEntry(t *testing.T) {
	walPath := setup(t, "oversized.wal")

	w, err := wal.Open(walPath, 1, 0)
	require.NoError(t, err)
	defer w.Close()

	big := make([]byte, storage.MaxFieldLength+1)
	assert.ErrorIs(t, w.AppendSet([]byte("big"), big), storage.ErrEntryTooLarge)
	require.NoError(t, w.AppendSet([]byte("small"), []byte("v")))

	entries := collect(t, w)
	require.Len(t, entries, 1)
	assert.Equal(t, []byte("small"), entries[0].Key)
}
