// Package value defines the values stored in graveldoc documents and the
// byte-size accounting used for document size limits and bandwidth tracking.
//
// A Value is one of eight variants: Null, Bool, Int64, Float64, String, Bytes,
// Array and Object. The set is closed; code outside this package cannot add
// variants.
//
// Values must be finite and acyclic. Nothing in this package detects cycles,
// so a self-referencing Array or Object will exhaust the stack.
package value

// Value is a graveldoc value.
type Value interface {
	isValue()
}

// Null is the null value.
type Null struct{}

// Bool is a boolean value.
type Bool bool

// Int64 is a 64-bit signed integer value.
type Int64 int64

// Float64 is an IEEE-754 double value.
type Float64 float64

// String is a UTF-8 string value.
type String string

// Bytes is a byte blob value.
type Bytes []byte

// Array is an ordered list of values.
type Array []Value

// Object maps field names to values. A field set to Absent is treated as if
// it were not in the map.
type Object map[string]Value

type absent struct{}

// Absent marks an Object field as not present. It is distinct from Null: an
// absent field contributes nothing to a document, a null field does.
// Absent is not a valid value outside of an Object field.
var Absent Value = absent{}

func (Null) isValue()    {}
func (Bool) isValue()    {}
func (Int64) isValue()   {}
func (Float64) isValue() {}
func (String) isValue()  {}
func (Bytes) isValue()   {}
func (Array) isValue()   {}
func (Object) isValue()  {}
func (absent) isValue()  {}

// IsAbsent reports whether v is the Absent sentinel.
func IsAbsent(v Value) bool {
	_, ok := v.(absent)
	return ok
}

// Has reports whether field is present in o, i.e. set to anything but Absent.
func (o Object) Has(field string) bool {
	v, ok := o[field]
	return ok && !IsAbsent(v)
}

// Present returns a copy of o without its Absent fields.
func (o Object) Present() Object {
	out := make(Object, len(o))
	for k, v := range o {
		if !IsAbsent(v) {
			out[k] = v
		}
	}
	return out
}

// Depth returns the nesting depth of v. Scalars have depth 0 and every Array
// or Object level adds one.
func Depth(v Value) int {
	switch v := v.(type) {
	case Array:
		deepest := 0
		for _, e := range v {
			if d := Depth(e); d > deepest {
				deepest = d
			}
		}
		return deepest + 1
	case Object:
		deepest := 0
		for _, e := range v {
			if d := Depth(e); d > deepest {
				deepest = d
			}
		}
		return deepest + 1
	default:
		return 0
	}
}
