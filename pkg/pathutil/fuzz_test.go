package pathutil_test

import (
	"strings"
	"testing"

	"github.com/bit-project/bit/pkg/pathutil"
)

// FuzzValidateName checks that accepted names are safe path segments.
func FuzzValidateName(f *testing.F) {
	f.Add("")
	f.Add("alice")
	f.Add("..")
	f.Add("../escape")
	f.Add("name/with/slash")
	f.Add(`name\with\backslash`)
	f.Add("name\twith\tcontrol")
	f.Add("name\x00null")
	f.Add("a.b")
	f.Add("bob@example.com")
	f.Add("é")

	f.Fuzz(func(t *testing.T, name string) {
		got, err := pathutil.ValidateName(name)
		got2, err2 := pathutil.ValidateName(name)
		if (err == nil) != (err2 == nil) || got != got2 {
			t.Fatalf("inconsistent validation for %q", name)
		}
		if err != nil {
			return
		}
		if strings.Contains(got, "..") || strings.ContainsAny(got, "/\\\x00") {
			t.Fatalf("unsafe name accepted: %q", got)
		}
		if again, err := pathutil.ValidateName(got); err != nil || again != got {
			t.Fatalf("normalized name %q is not stable", got)
		}
	})
}

func FuzzValidateStorageID(f *testing.F) {
	for _, s := range []string{"account", "note", "", "Account", "a-b", "../x", "a_1"} {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, id string) {
		if pathutil.ValidateStorageID(id) != nil {
			return
		}
		if strings.ContainsAny(id, "./\\") || id == "" {
			t.Fatalf("unsafe storage id accepted: %q", id)
		}
	})
}

func FuzzValidateObjectID(f *testing.F) {
	for _, s := range []string{"0f6e6a39-0000-4000-8000-000000000001", "", "../../etc/passwd", "{0f6e6a39-0000-4000-8000-000000000001}"} {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, id string) {
		if pathutil.ValidateObjectID(id) != nil {
			return
		}
		if strings.ContainsAny(id, "./\\") {
			t.Fatalf("unsafe object id accepted: %q", id)
		}
	})
}
