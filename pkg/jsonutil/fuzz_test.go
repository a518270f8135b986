package jsonutil_test

import (
	"encoding/json"
	"testing"

	"github.com/bit-project/bit/pkg/jsonutil"
)

// FuzzCanonicalMarshal checks that canonical output is valid, deterministic
// and a fixed point of Canonicalize.
func FuzzCanonicalMarshal(f *testing.F) {
	f.Add([]byte(`{"name":"test","value":123}`))
	f.Add([]byte(`{"nested":{"key":"value"}}`))
	f.Add([]byte(`[1,2,3]`))
	f.Add([]byte(`null`))
	f.Add([]byte(`"simple string"`))
	f.Add([]byte(`{"z":9,"a":1,"m":5}`))
	f.Add([]byte(`{"amount":"127.00","unicode":"é "}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return
		}
		first, err := jsonutil.CanonicalMarshal(v)
		if err != nil {
			return
		}
		if !json.Valid(first) {
			t.Fatalf("invalid JSON: %q", first)
		}
		second, err := jsonutil.CanonicalMarshal(v)
		if err != nil || string(first) != string(second) {
			t.Fatalf("not deterministic: %q vs %q", first, second)
		}
		again, err := jsonutil.Canonicalize(first)
		if err != nil || string(again) != string(first) {
			t.Fatalf("canonical form is not stable: %q vs %q", first, again)
		}
	})
}
