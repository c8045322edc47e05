package value_test

import (
	"math"
	"testing"

	"github.com/MikhailWahib/graveldoc/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		v        value.Value
		expected string
	}{
		{"null", value.Null{}, `null`},
		{"bool", value.Bool(true), `true`},
		{"float", value.Float64(1.5), `1.5`},
		{"int64", value.Int64(1), `{"$integer":"AQAAAAAAAAA="}`},
		{"bytes", value.Bytes("hi"), `{"$bytes":"aGk="}`},
		{"string", value.String("x"), `"x"`},
		{"object keys sorted, absent dropped", value.Object{
			"b": value.Null{},
			"a": value.Array{value.Bool(false)},
			"c": value.Absent,
		}, `{"a":[false],"b":null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := value.MarshalJSON(tt.v)
			require.NoError(t, err)
			assert.JSONEq(t, tt.expected, string(out))
		})
	}
}

func TestMarshalJSON_SpecialFloats(t *testing.T) {
	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), math.Copysign(0, -1)} {
		out, err := value.MarshalJSON(value.Float64(f))
		require.NoError(t, err)
		assert.Contains(t, string(out), "$float")

		back, err := value.ParseJSON(out)
		require.NoError(t, err)
		assert.True(t, value.Equal(value.Float64(f), back), "float %v did not survive", f)
	}
}

func TestMarshalJSON_Errors(t *testing.T) {
	_, err := value.MarshalJSON(value.Object{"$reserved": value.Null{}})
	assert.Error(t, err)

	_, err = value.MarshalJSON(value.Array{nil})
	assert.ErrorIs(t, err, value.ErrUnsupportedType)
}

func TestParseJSON_PreservesDocument(t *testing.T) {
	doc := value.Object{
		"_id":           value.String("0123456789abcdef0123456789abcdef"),
		"_creationTime": value.Float64(1700000000000.25),
		"count":         value.Int64(-42),
		"blob":          value.Bytes{0, 255},
		"tags":          value.Array{value.String("a"), value.Null{}},
		"meta":          value.Object{"ok": value.Bool(true)},
	}

	out, err := value.MarshalJSON(doc)
	require.NoError(t, err)

	back, err := value.ParseJSON(out)
	require.NoError(t, err)
	assert.True(t, value.Equal(doc, back))

	before, err := value.SizeOf(doc)
	require.NoError(t, err)
	after, err := value.SizeOf(back)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestParseJSON_PlainNumbersAreFloats(t *testing.T) {
	v, err := value.ParseJSON([]byte(`{"n": 3}`))
	require.NoError(t, err)
	assert.Equal(t, value.Float64(3), v.(value.Object)["n"])
}

func TestParseJSON_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"malformed", `{"a":`},
		{"trailing data", `1 2`},
		{"trailing close bracket", `1 ]`},
		{"trailing close brace", `{"a": null} }`},
		{"integer not a string", `{"$integer": 5}`},
		{"integer wrong width", `{"$integer": "AQ=="}`},
		{"bad base64", `{"$bytes": "%%%"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := value.ParseJSON([]byte(tt.input))
			assert.Error(t, err)
		})
	}
}
