// Package document maps Convex-style documents onto storage keys and values
// and enforces the limits a document must satisfy before it is written.
package document

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MikhailWahib/graveldoc/value"
)

// MaxFieldNameLength is the longest field name accepted, in bytes.
const MaxFieldNameLength = 1024

// Limits bounds the documents accepted for writing.
type Limits struct {
	MaxDocumentSize int
	MaxNestingDepth int
}

// ValidateTableName accepts names matching [A-Za-z][A-Za-z0-9_]*.
func ValidateTableName(table string) error {
	if table == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTableName)
	}
	for i := 0; i < len(table); i++ {
		c := table[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '_'):
		default:
			return fmt.Errorf("%w: %q", ErrInvalidTableName, table)
		}
	}
	return nil
}

// ValidateUserFields checks the top-level fields a caller supplies for a
// write, and every field name and string nested inside them. Names and
// strings must be valid UTF-8 so they survive the stored JSON encoding. Top-level names may not
// start with "_", which is reserved for system fields.
func ValidateUserFields(fields value.Object) error {
	for name, v := range fields {
		if name == value.IDField || name == value.CreationTimeField {
			return fmt.Errorf("%w: %s", ErrSystemField, name)
		}
		if err := validateFieldName(name); err != nil {
			return err
		}
		if strings.HasPrefix(name, "_") {
			return fmt.Errorf("%w: %q is reserved for system fields", ErrInvalidFieldName, name)
		}
		if err := validateNested(v); err != nil {
			return err
		}
	}
	return nil
}

func validateFieldName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidFieldName)
	case len(name) > MaxFieldNameLength:
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidFieldName, len(name), MaxFieldNameLength)
	case strings.HasPrefix(name, "$"):
		return fmt.Errorf("%w: %q starts with $", ErrInvalidFieldName, name)
	case !utf8.ValidString(name):
		return fmt.Errorf("%w: %q is not valid UTF-8", ErrInvalidFieldName, name)
	}
	return nil
}

func validateNested(v value.Value) error {
	switch v := v.(type) {
	case value.String:
		if !utf8.ValidString(string(v)) {
			return fmt.Errorf("%w: %q", ErrInvalidString, string(v))
		}
	case value.Array:
		for _, e := range v {
			if err := validateNested(e); err != nil {
				return err
			}
		}
	case value.Object:
		for name, e := range v {
			if err := validateFieldName(name); err != nil {
				return err
			}
			if err := validateNested(e); err != nil {
				return err
			}
		}
	}
	return nil
}

// New builds a stored document from user fields and its system fields.
// Absent user fields are dropped.
func New(id string, createdAt time.Time, fields value.Object) value.Object {
	doc := fields.Present()
	doc[value.IDField] = value.String(id)
	doc[value.CreationTimeField] = CreationTime(createdAt)
	return doc
}

// CreationTime converts t to the stored representation: milliseconds since
// the Unix epoch as a float.
func CreationTime(t time.Time) value.Float64 {
	return value.Float64(float64(t.UnixMicro()) / 1000)
}

// UserFields returns the fields of doc that are not system fields.
func UserFields(doc value.Object) value.Object {
	out := make(value.Object, len(doc))
	for name, v := range doc {
		if name == value.IDField || name == value.CreationTimeField {
			continue
		}
		out[name] = v
	}
	return out
}

// Merge applies patch to the user fields of doc: present values overwrite,
// Absent values remove. doc is not modified.
func Merge(doc, patch value.Object) value.Object {
	out := make(value.Object, len(doc)+len(patch))
	for name, v := range doc {
		out[name] = v
	}
	for name, v := range patch {
		if value.IsAbsent(v) {
			delete(out, name)
			continue
		}
		out[name] = v
	}
	return out
}

// Check enforces limits on a complete document and returns its size.
func Check(doc value.Object, limits Limits) (int, error) {
	if depth := value.Depth(doc); depth > limits.MaxNestingDepth {
		return 0, fmt.Errorf("%w: depth %d exceeds %d", ErrNestingTooDeep, depth, limits.MaxNestingDepth)
	}

	size, err := value.DocumentSize(doc, nil)
	if err != nil {
		return 0, err
	}
	if size > limits.MaxDocumentSize {
		return size, fmt.Errorf("%w: %d bytes exceeds the %d byte limit", ErrDocumentTooLarge, size, limits.MaxDocumentSize)
	}
	return size, nil
}

// Encode serializes a document for storage. Encodings longer than limit
// bytes are rejected with ErrDocumentTooLarge.
func Encode(doc value.Object, limit int) ([]byte, error) {
	data, err := value.MarshalJSON(doc)
	if err != nil {
		return nil, err
	}
	if len(data) > limit {
		return nil, fmt.Errorf("%w: encoded form is %d bytes, storage limit is %d", ErrDocumentTooLarge, len(data), limit)
	}
	return data, nil
}

// Decode parses a stored document.
func Decode(data []byte) (value.Object, error) {
	v, err := value.ParseJSON(data)
	if err != nil {
		return nil, err
	}
	doc, ok := v.(value.Object)
	if !ok {
		return nil, fmt.Errorf("stored document is %T, not an object", v)
	}
	return doc, nil
}
