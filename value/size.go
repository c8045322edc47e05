package value

import (
	"unicode/utf8"
)

// Encoded sizes, in bytes, of each variant. Every value starts with a one
// byte type marker; variable-length values end with a one byte terminator.
const (
	markerSize     = 1
	terminatorSize = 1

	NullSize    = markerSize
	BoolSize    = markerSize
	Int64Size   = markerSize + 8
	Float64Size = markerSize + 8

	// Strings, bytes, arrays and objects cost their payload plus this.
	containerOverhead = markerSize + terminatorSize

	// Each object field costs its name, a NUL after the name, and its value.
	fieldNameTerminatorSize = 1
)

// System fields every stored document carries.
const (
	IDField           = "_id"
	CreationTimeField = "_creationTime"
)

// Estimated sizes of the system fields for documents that do not yet carry them.
const (
	// SystemFieldIDEstimate is "_id" plus NUL (4) and a 32 character string (2 + 32).
	SystemFieldIDEstimate = 38

	// SystemFieldCreationTimeSize is "_creationTime" plus NUL (14) and a Float64 (9).
	SystemFieldCreationTimeSize = 23

	// idFieldOverhead is the cost of an _id field minus its string payload.
	idFieldOverhead = len(IDField) + fieldNameTerminatorSize + containerOverhead
)

// utf8LengthThreshold is the string length above which utf8ByteLength
// switches to the bulk path. Both paths return the same result.
const utf8LengthThreshold = 500

// DocumentSizeOptions tunes DocumentSize.
type DocumentSizeOptions struct {
	// CustomIDLength replaces the default _id estimate with the cost of an
	// _id of this many characters. Zero means use SystemFieldIDEstimate.
	CustomIDLength int
}

// SizeOf returns the encoded size of v in bytes.
//
// It fails with ErrUnsupportedType if v, or anything nested in it, is not a
// supported variant. Absent is only accepted as an Object field value.
func SizeOf(v Value) (int, error) {
	switch v := v.(type) {
	case Null:
		return NullSize, nil
	case Bool:
		return BoolSize, nil
	case Int64:
		return Int64Size, nil
	case Float64:
		return Float64Size, nil
	case String:
		return containerOverhead + utf8ByteLength(string(v)), nil
	case Bytes:
		return containerOverhead + len(v), nil
	case Array:
		size := containerOverhead
		for _, e := range v {
			n, err := SizeOf(e)
			if err != nil {
				return 0, err
			}
			size += n
		}
		return size, nil
	case Object:
		size := containerOverhead
		for k, e := range v {
			if IsAbsent(e) {
				continue
			}
			n, err := SizeOf(e)
			if err != nil {
				return 0, err
			}
			size += utf8ByteLength(k) + fieldNameTerminatorSize + n
		}
		return size, nil
	default:
		return 0, unsupported(v)
	}
}

// DocumentSize returns the size of a document with the given fields,
// including the _id and _creationTime system fields. A system field missing
// from fields is charged at its estimated size. opts may be nil.
func DocumentSize(fields Object, opts *DocumentSizeOptions) (int, error) {
	size, err := SizeOf(fields)
	if err != nil {
		return 0, err
	}

	hasID := fields.Has(IDField)
	hasCreationTime := fields.Has(CreationTimeField)
	if hasID && hasCreationTime {
		return size, nil
	}

	if !hasID {
		if opts != nil && opts.CustomIDLength > 0 {
			size += opts.CustomIDLength + idFieldOverhead
		} else {
			size += SystemFieldIDEstimate
		}
	}
	if !hasCreationTime {
		size += SystemFieldCreationTimeSize
	}

	return size, nil
}

// utf8ByteLength returns the number of bytes s occupies as UTF-8. Invalid
// bytes count as U+FFFD, as an encoder would write them.
func utf8ByteLength(s string) int {
	if len(s) > utf8LengthThreshold {
		return encodedLength(s)
	}
	return countUTF8(s)
}

// countUTF8 sums the encoded width of every code point in s.
func countUTF8(s string) int {
	n := 0
	for _, r := range s {
		switch {
		case r < 0x80:
			n++
		case r < 0x800:
			n += 2
		case r >= 0x10000:
			// a surrogate pair in UTF-16
			n += 4
		default:
			n += 3
		}
	}
	return n
}

func encodedLength(s string) int {
	if utf8.ValidString(s) {
		return len(s)
	}
	return len(string([]rune(s)))
}
