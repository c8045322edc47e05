package document

import "strings"

const keySeparator = '\x00'

// Key returns the storage key of a document: the table name, a zero byte and the id.
func Key(table, id string) []byte {
	key := make([]byte, 0, len(table)+1+len(id))
	key = append(key, table...)
	key = append(key, keySeparator)
	return append(key, id...)
}

// TablePrefix returns the key prefix shared by every document of table.
func TablePrefix(table string) []byte {
	return append([]byte(table), keySeparator)
}

// SplitKey reverses Key.
func SplitKey(key []byte) (table, id string, ok bool) {
	return strings.Cut(string(key), string(keySeparator))
}
