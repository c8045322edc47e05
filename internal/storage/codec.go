package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrCorruptEntry is returned when an encoded entry cannot be parsed.
var ErrCorruptEntry = errors.New("corrupt entry")

// ErrEntryTooLarge is returned for keys or values longer than MaxFieldLength.
var ErrEntryTooLarge = errors.New("entry too large")

// AppendEntry appends the encoding of e to buf and returns the extended buffer.
// Format: [1 byte EntryType][4 bytes KeyLen][4 bytes ValueLen][Key][Value]
func AppendEntry(buf []byte, e Entry) []byte {
	var prefix [PrefixSize]byte
	prefix[0] = byte(e.Type)
	binary.BigEndian.PutUint32(prefix[EntryTypeSize:EntryTypeSize+LengthSize], uint32(len(e.Key)))
	binary.BigEndian.PutUint32(prefix[EntryTypeSize+LengthSize:PrefixSize], uint32(len(e.Value)))

	buf = append(buf, prefix[:]...)
	buf = append(buf, e.Key...)
	return append(buf, e.Value...)
}

// WriteEntryAt writes e at offset and returns the offset just past it.
func WriteEntryAt(w io.WriterAt, e Entry, offset int64) (int64, error) {
	buf := AppendEntry(make([]byte, 0, e.EncodedSize()), e)
	n, err := w.WriteAt(buf, offset)
	if err != nil {
		return 0, fmt.Errorf("failed to write entry: %w", err)
	}
	return offset + int64(n), nil
}

// ReadEntryAt reads the entry stored at offset and returns it along with the
// offset of the next entry.
func ReadEntryAt(r io.ReaderAt, offset int64) (Entry, int64, error) {
	var prefix [PrefixSize]byte
	if n, err := r.ReadAt(prefix[:], offset); err != nil && !(errors.Is(err, io.EOF) && n == PrefixSize) {
		return Entry{}, 0, err
	}

	entryType, keyLen, valLen, err := decodePrefix(prefix[:])
	if err != nil {
		return Entry{}, 0, err
	}

	body := make([]byte, keyLen+valLen)
	if n, err := r.ReadAt(body, offset+PrefixSize); err != nil && n < len(body) {
		if errors.Is(err, io.EOF) {
			return Entry{}, 0, io.ErrUnexpectedEOF
		}
		return Entry{}, 0, err
	}

	e := Entry{Type: entryType, Key: body[:keyLen:keyLen], Value: body[keyLen:]}
	return e, offset + int64(e.EncodedSize()), nil
}

// ReadEntry reads a single entry from r. Used for sequential reads such as
// WAL replay and SSTable scans. It returns io.EOF only when r is exhausted
// exactly at an entry boundary; a partial entry yields io.ErrUnexpectedEOF.
func ReadEntry(r io.Reader) (Entry, error) {
	var prefix [PrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return Entry{}, err
	}

	entryType, keyLen, valLen, err := decodePrefix(prefix[:])
	if err != nil {
		return Entry{}, err
	}

	body := make([]byte, keyLen+valLen)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			return Entry{}, io.ErrUnexpectedEOF
		}
		return Entry{}, err
	}

	return Entry{Type: entryType, Key: body[:keyLen:keyLen], Value: body[keyLen:]}, nil
}

func decodePrefix(prefix []byte) (EntryType, int, int, error) {
	entryType := EntryType(prefix[0])
	if entryType != SetEntry && entryType != DeleteEntry {
		return 0, 0, 0, fmt.Errorf("%w: unknown entry type %d", ErrCorruptEntry, entryType)
	}

	keyLen := binary.BigEndian.Uint32(prefix[EntryTypeSize : EntryTypeSize+LengthSize])
	valLen := binary.BigEndian.Uint32(prefix[EntryTypeSize+LengthSize : PrefixSize])
	if keyLen > MaxFieldLength || valLen > MaxFieldLength {
		return 0, 0, 0, fmt.Errorf("%w: length prefix out of range", ErrCorruptEntry)
	}

	return entryType, int(keyLen), int(valLen), nil
}
