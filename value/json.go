package value

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
)

// Keys of the single-field objects that carry values JSON cannot express.
const (
	jsonIntegerKey = "$integer"
	jsonFloatKey   = "$float"
	jsonBytesKey   = "$bytes"
)

// MarshalJSON encodes v in the export JSON format.
//
// Int64 becomes {"$integer": base64(little-endian)}, Bytes becomes
// {"$bytes": base64}, and non-finite or negative-zero floats become
// {"$float": base64(little-endian)}. Object fields are written in key order
// and Absent fields are omitted. Field names starting with "$" are rejected.
func MarshalJSON(v Value) ([]byte, error) {
	tree, err := toJSON(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(tree)
}

// ParseJSON decodes data written by MarshalJSON. Plain JSON numbers decode
// as Float64.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("invalid json value: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("invalid json value: trailing data")
	}
	return fromJSON(tree)
}

func toJSON(v Value) (any, error) {
	switch v := v.(type) {
	case Null:
		return nil, nil
	case Bool:
		return bool(v), nil
	case Int64:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(v))
		return map[string]any{jsonIntegerKey: base64.StdEncoding.EncodeToString(buf)}, nil
	case Float64:
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) || (f == 0 && math.Signbit(f)) {
			buf := make([]byte, 8)
			binary.LittleEndian.PutUint64(buf, math.Float64bits(f))
			return map[string]any{jsonFloatKey: base64.StdEncoding.EncodeToString(buf)}, nil
		}
		return f, nil
	case String:
		return string(v), nil
	case Bytes:
		return map[string]any{jsonBytesKey: base64.StdEncoding.EncodeToString(v)}, nil
	case Array:
		out := make([]any, len(v))
		for i, e := range v {
			ev, err := toJSON(e)
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	case Object:
		out := make(map[string]any, len(v))
		for k, e := range v {
			if IsAbsent(e) {
				continue
			}
			if strings.HasPrefix(k, "$") {
				return nil, fmt.Errorf("field name %q is reserved", k)
			}
			ev, err := toJSON(e)
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

func fromJSON(tree any) (Value, error) {
	switch t := tree.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", t, err)
		}
		return Float64(f), nil
	case string:
		return String(t), nil
	case []any:
		out := make(Array, len(t))
		for i, e := range t {
			ev, err := fromJSON(e)
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	case map[string]any:
		if len(t) == 1 {
			if v, ok, err := fromTagged(t); ok || err != nil {
				return v, err
			}
		}
		out := make(Object, len(t))
		for k, e := range t {
			ev, err := fromJSON(e)
			if err != nil {
				return nil, err
			}
			out[k] = ev
		}
		return out, nil
	default:
		return nil, unsupported(tree)
	}
}

// fromTagged decodes a {"$integer"|"$float"|"$bytes": "..."} object.
func fromTagged(t map[string]any) (Value, bool, error) {
	for key, raw := range t {
		if key != jsonIntegerKey && key != jsonFloatKey && key != jsonBytesKey {
			return nil, false, nil
		}
		s, ok := raw.(string)
		if !ok {
			return nil, true, fmt.Errorf("%s must be a base64 string", key)
		}
		buf, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, true, fmt.Errorf("malformed %s: %w", key, err)
		}

		switch key {
		case jsonBytesKey:
			return Bytes(buf), true, nil
		case jsonIntegerKey:
			if len(buf) != 8 {
				return nil, true, fmt.Errorf("%s must encode 8 bytes, got %d", key, len(buf))
			}
			return Int64(int64(binary.LittleEndian.Uint64(buf))), true, nil
		default:
			if len(buf) != 8 {
				return nil, true, fmt.Errorf("%s must encode 8 bytes, got %d", key, len(buf))
			}
			return Float64(math.Float64frombits(binary.LittleEndian.Uint64(buf))), true, nil
		}
	}
	return nil, false, nil
}
