package value

import (
	"bytes"
	"math"
)

// FromGo converts dynamic Go data into a Value.
//
// Supported inputs are nil, bool, the signed integer kinds, unsigned kinds
// up to math.MaxInt64, float32, float64, string, []byte, []any, map[string]any
// and Values themselves. Absent is accepted as a map entry. Anything else
// fails with ErrUnsupportedType.
func FromGo(v any) (Value, error) {
	switch v := v.(type) {
	case nil:
		return Null{}, nil
	case absent:
		return nil, unsupported(v)
	case Array, Object:
		// SizeOf walks the whole tree and rejects nil or misplaced Absent.
		if _, err := SizeOf(v.(Value)); err != nil {
			return nil, err
		}
		return v.(Value), nil
	case Value:
		return v, nil
	case bool:
		return Bool(v), nil
	case int:
		return Int64(v), nil
	case int8:
		return Int64(v), nil
	case int16:
		return Int64(v), nil
	case int32:
		return Int64(v), nil
	case int64:
		return Int64(v), nil
	case uint:
		return fromUnsigned(uint64(v))
	case uint8:
		return Int64(v), nil
	case uint16:
		return Int64(v), nil
	case uint32:
		return Int64(v), nil
	case uint64:
		return fromUnsigned(v)
	case float32:
		return Float64(v), nil
	case float64:
		return Float64(v), nil
	case string:
		return String(v), nil
	case []byte:
		return Bytes(v), nil
	case []any:
		out := make(Array, len(v))
		for i, e := range v {
			ev, err := FromGo(e)
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	case map[string]any:
		out := make(Object, len(v))
		for k, e := range v {
			if e, ok := e.(absent); ok {
				out[k] = e
				continue
			}
			ev, err := FromGo(e)
			if err != nil {
				return nil, err
			}
			out[k] = ev
		}
		return out, nil
	default:
		return nil, unsupported(v)
	}
}

func fromUnsigned(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return nil, &UnsupportedTypeError{Type: "uint64 out of int64 range"}
	}
	return Int64(u), nil
}

// ToGo converts v into plain Go data: nil, bool, int64, float64, string,
// []byte, []any and map[string]any. Absent fields are dropped.
func ToGo(v Value) any {
	switch v := v.(type) {
	case Bool:
		return bool(v)
	case Int64:
		return int64(v)
	case Float64:
		return float64(v)
	case String:
		return string(v)
	case Bytes:
		return []byte(v)
	case Array:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = ToGo(e)
		}
		return out
	case Object:
		out := make(map[string]any, len(v))
		for k, e := range v {
			if IsAbsent(e) {
				continue
			}
			out[k] = ToGo(e)
		}
		return out
	default:
		return nil
	}
}

// Equal reports whether a and b are structurally equal. Floats compare by
// bit pattern, so NaN equals NaN and 0 differs from -0. Absent object fields
// are ignored.
func Equal(a, b Value) bool {
	switch a := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case Bool:
		bv, ok := b.(Bool)
		return ok && a == bv
	case Int64:
		bv, ok := b.(Int64)
		return ok && a == bv
	case Float64:
		bv, ok := b.(Float64)
		return ok && math.Float64bits(float64(a)) == math.Float64bits(float64(bv))
	case String:
		bv, ok := b.(String)
		return ok && a == bv
	case Bytes:
		bv, ok := b.(Bytes)
		return ok && bytes.Equal(a, bv)
	case Array:
		bv, ok := b.(Array)
		if !ok || len(a) != len(bv) {
			return false
		}
		for i := range a {
			if !Equal(a[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv, ok := b.(Object)
		if !ok {
			return false
		}
		ap, bp := a.Present(), bv.Present()
		if len(ap) != len(bp) {
			return false
		}
		for k, av := range ap {
			other, ok := bp[k]
			if !ok || !Equal(av, other) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
