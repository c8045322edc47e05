package value

import (
	"errors"
	"fmt"
)

// ErrUnsupportedType is returned when a value is not one of the supported variants.
var ErrUnsupportedType = errors.New("unsupported value type")

// UnsupportedTypeError describes the offending value. It matches
// ErrUnsupportedType with errors.Is.
type UnsupportedTypeError struct {
	Type string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnsupportedType, e.Type)
}

// Is reports whether target is ErrUnsupportedType.
func (e *UnsupportedTypeError) Is(target error) bool {
	return target == ErrUnsupportedType
}

func unsupported(v any) error {
	if v == nil {
		return &UnsupportedTypeError{Type: "nil"}
	}
	if _, ok := v.(absent); ok {
		return &UnsupportedTypeError{Type: "absent"}
	}
	return &UnsupportedTypeError{Type: fmt.Sprintf("%T", v)}
}
