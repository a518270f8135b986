package transport_test

import (
	"testing"
	"time"

	"github.com/bit-project/bit/internal/transport"
)

// FuzzParseToken checks that only tokens minted with the secret are accepted.
func FuzzParseToken(f *testing.F) {
	good, err := transport.IssueToken("s3cret", "alice", time.Hour)
	if err != nil {
		f.Fatal(err)
	}
	other, err := transport.IssueToken("other", "mallory", time.Hour)
	if err != nil {
		f.Fatal(err)
	}
	f.Add(good)
	f.Add(other)
	f.Add("")
	f.Add("a.b.c")
	f.Add("eyJhbGciOiJub25lIn0.eyJzdWIiOiJhbGljZSIsImlzcyI6ImJpdCJ9.")

	f.Fuzz(func(t *testing.T, token string) {
		uid, err := transport.ParseToken("s3cret", token)
		if err != nil {
			return
		}
		if uid == "" {
			t.Fatal("accepted token without subject")
		}
		if token != good && uid == "mallory" {
			t.Fatalf("accepted token signed with another secret: %q", token)
		}
	})
}
