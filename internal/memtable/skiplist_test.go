package memtable_test

import (
	"fmt"
	"testing"

	"github.com/MikhailWahib/graveldoc/internal/memtable"
	"github.com/MikhailWahib/graveldoc/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func set(key, value string) storage.Entry {
	return storage.Entry{Type: storage.SetEntry, Key: []byte(key), Value: []byte(value)}
}

func TestSkipListSetAndGet(t *testing.T) {
	sl := memtable.NewSkipList()

	for _, kv := range [][2]string{
		{"apple", "red"}, {"banana", "yellow"}, {"cherry", "dark red"},
		{"Hello", "World"}, {"hello", "world"}, {"123", "456"},
	} {
		sl.Set(set(kv[0], kv[1]))
	}

	tests := []struct {
		key, expectedValue string
		expectedFound      bool
	}{
		{"apple", "red", true},
		{"banana", "yellow", true},
		{"Hello", "World", true},
		{"grape", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			entry, found := sl.Get([]byte(tt.key))
			assert.Equal(t, tt.expectedFound, found, "unexpected found value for key %v", tt.key)
			assert.Equal(t, tt.expectedValue, string(entry.Value), "unexpected value for key %v", tt.key)
		})
	}
	assert.Equal(t, 6, sl.Len())
}

func TestSkipListUpdate(t *testing.T) {
	sl := memtable.NewSkipList()

	_, replaced := sl.Set(set("apple", "red"))
	assert.False(t, replaced)

	old, replaced := sl.Set(set("apple", "green"))
	assert.True(t, replaced)
	assert.Equal(t, "red", string(old.Value))

	entry, found := sl.Get([]byte("apple"))
	assert.True(t, found, "expected apple to be found")
	assert.Equal(t, "green", string(entry.Value), "expected 'green' for 'apple'")
	assert.Equal(t, 1, sl.Len())
}

func TestSkipListEntriesAreOrdered(t *testing.T) {
	sl := memtable.NewSkipList()
	for i := 99; i >= 0; i-- {
		sl.Set(set(fmt.Sprintf("key_%03d", i), "v"))
	}

	entries := sl.Entries()
	require.Len(t, entries, 100)
	for i, e := range entries {
		assert.Equal(t, fmt.Sprintf("key_%03d", i), string(e.Key))
	}
}

func TestSkipListSeek(t *testing.T) {
	sl := memtable.NewSkipList()
	for _, k := range []string{"a\x00zz", "b\x001", "b\x002", "ba", "c"} {
		sl.Set(set(k, "v"))
	}

	entries := sl.Seek([]byte("b\x00"))
	require.Len(t, entries, 2)
	assert.Equal(t, "b\x001", string(entries[0].Key))
	assert.Equal(t, "b\x002", string(entries[1].Key))

	assert.Empty(t, sl.Seek([]byte("d")))
}

func TestSkipListEmpty(t *testing.T) {
	sl := memtable.NewSkipList()

	_, found := sl.Get([]byte("apple"))
	assert.False(t, found, "expected 'apple' to not be found in empty skip list")
	assert.Empty(t, sl.Entries())
	assert.Zero(t, sl.Len())
}
