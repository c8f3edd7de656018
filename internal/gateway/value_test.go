package gateway_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/gatekeeper/internal/gateway"
)

func TestParseJSON_Kinds(t *testing.T) {
	v, err := gateway.ParseJSON([]byte(`{"s":"x","n":1.5,"b":false,"z":null,"l":[1,"two"],"m":{"k":"v"}}`))
	require.NoError(t, err)
	require.Equal(t, gateway.KindMap, v.Kind())
	assert.Equal(t, []string{"b", "l", "m", "n", "s", "z"}, v.Keys())

	kinds := map[string]gateway.Kind{
		"s": gateway.KindString,
		"n": gateway.KindNumber,
		"b": gateway.KindBool,
		"z": gateway.KindNull,
		"l": gateway.KindList,
		"m": gateway.KindMap,
	}
	for name, kind := range kinds {
		field, ok := v.Field(name)
		require.True(t, ok, name)
		assert.Equal(t, kind, field.Kind(), name)
	}

	list, _ := v.Field("l")
	assert.Len(t, list.Items(), 2)
}

func TestParseJSON_PreservesLargeNumbers(t *testing.T) {
	v, err := gateway.ParseJSON([]byte(`{"id":12345678901234567890}`))
	require.NoError(t, err)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `{"id":12345678901234567890}`, string(out))
}

func TestParseJSON_RejectsTrailingData(t *testing.T) {
	_, err := gateway.ParseJSON([]byte(`{"a":1} {"b":2}`))
	assert.Error(t, err)

	_, err = gateway.ParseJSON([]byte(`{"a":`))
	assert.Error(t, err)
}

func TestValue_MapStringsLeavesKeysAndOtherKinds(t *testing.T) {
	v, err := gateway.ParseJSON([]byte(`{"<k>":"<v>","n":3,"l":["a",null]}`))
	require.NoError(t, err)

	upper := v.MapStrings(strings.ToUpper)

	out, err := json.Marshal(upper)
	require.NoError(t, err)
	assert.JSONEq(t, `{"<k>":"<V>","n":3,"l":["A",null]}`, string(out))

	// The original is untouched
	original, _ := v.Field("<k>")
	s, _ := original.Str()
	assert.Equal(t, "<v>", s)
}

func TestValue_UnmarshalJSON(t *testing.T) {
	var payload struct {
		Data gateway.Value `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"data":["x",1]}`), &payload))

	assert.Equal(t, gateway.KindList, payload.Data.Kind())
	assert.True(t, gateway.Null().IsNull())
	assert.Equal(t, "list", gateway.KindList.String())
}

func TestSanitizer_StringBasic(t *testing.T) {
	s := gateway.NewSanitizer()

	assert.Equal(t, "hello", s.String("<script>alert(1)</script>hello"))
	assert.Equal(t, "bold", s.String(`<b onclick="x()">bold</b>`))
	assert.Equal(t, "plain text", s.String("plain text"))
}
