package jsonutil_test

import (
	"encoding/json"
	"testing"

	"github.com/bit-project/bit/pkg/jsonutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalMarshal_SortedKeys(t *testing.T) {
	input := map[string]any{
		"zebra": 1,
		"alpha": 2,
		"mid":   3,
	}
	out, err := jsonutil.CanonicalMarshal(input)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"mid":3,"zebra":1}`, string(out))
}

func TestCanonicalMarshal_StructSortsFields(t *testing.T) {
	type sample struct {
		Zebra int    `json:"zebra"`
		Alpha string `json:"alpha"`
	}
	out, err := jsonutil.CanonicalMarshal(sample{Zebra: 1, Alpha: "a"})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":"a","zebra":1}`, string(out))
}

func TestCanonicalMarshal_PreservesLargeNumbers(t *testing.T) {
	out, err := jsonutil.CanonicalMarshal(map[string]any{"n": int64(9007199254740993)})
	require.NoError(t, err)
	assert.Equal(t, `{"n":9007199254740993}`, string(out))
}

func TestCanonicalMarshal_NoHTMLEscaping(t *testing.T) {
	out, err := jsonutil.CanonicalMarshal(map[string]any{"k": "<a&b>"})
	require.NoError(t, err)
	assert.Equal(t, `{"k":"<a&b>"}`, string(out))
}

func TestCanonicalize_RawMessageIndependentOfLayout(t *testing.T) {
	a, err := jsonutil.Canonicalize([]byte(`{ "b": [1, 2], "a": {"y": true, "x": null} }`))
	require.NoError(t, err)
	b, err := jsonutil.Canonicalize([]byte(`{"a":{"x":null,"y":true},"b":[1,2]}`))
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestCanonicalMarshal_RawMessageField(t *testing.T) {
	type envelope struct {
		Payload json.RawMessage `json:"payload"`
	}
	out, err := jsonutil.CanonicalMarshal(envelope{Payload: json.RawMessage(`{"z":1,"a":"x"}`)})
	require.NoError(t, err)
	assert.Equal(t, `{"payload":{"a":"x","z":1}}`, string(out))
}

func TestDigest_Deterministic(t *testing.T) {
	d1, err := jsonutil.Digest(map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	d2, err := jsonutil.Digest(map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	assert.Len(t, d1, 64)

	d3, err := jsonutil.Digest(map[string]any{"a": 1, "b": 3})
	require.NoError(t, err)
	assert.NotEqual(t, d1, d3)
}

func TestCanonicalize_Invalid(t *testing.T) {
	_, err := jsonutil.Canonicalize([]byte(`{not json`))
	assert.Error(t, err)
}
