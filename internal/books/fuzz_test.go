package books_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/bit-project/bit/internal/books"
	"github.com/bit-project/bit/pkg/model"
)

// FuzzDecode feeds arbitrary payloads through the decoder and the reducers.
//
//	go test -fuzz=FuzzDecode -fuzztime=30s ./internal/books/
func FuzzDecode(f *testing.F) {
	f.Add([]byte(`{"type":"account_create","code":"311","name":"Bank"}`), true)
	f.Add([]byte(`{"type":"account_rename","name":"Main"}`), false)
	f.Add([]byte(`{"type":"note_set","set":{"net":"100","gross":"127","idate":"2024-03-01"}}`), false)
	f.Add([]byte(`{"type":"note_unset","unset":["vat","colour"]}`), false)
	f.Add([]byte(`{"type":"note_add_transaction","transaction":{"debit":"a","credit":"b","amount":"-1"}}`), false)
	f.Add([]byte(`{"type":"note_add_transaction"}`), false)
	f.Add([]byte(`{"type":"note_set","set":{"idate":"2024-02-30"}}`), false)
	f.Add([]byte(`null`), true)
	f.Add([]byte(`[]`), false)

	f.Fuzz(func(t *testing.T, payload []byte, create bool) {
		if !json.Valid(payload) {
			return
		}
		kind := model.ActionKind{Type: model.ActionPatch, Payload: payload}
		if create {
			kind.Type = model.ActionCreate
		}
		act, err := books.Decode(kind)
		desc := books.Describe(kind)
		if err != nil {
			return
		}
		if act.Validate() != nil {
			t.Fatalf("decoded action does not validate: %+v", act)
		}
		if desc == "" {
			t.Fatalf("empty description for %s", act.Type)
		}

		now := time.Unix(0, 0).UTC()
		for _, rec := range []interface {
			Patch(model.ActionKind, time.Time, string) error
		}{&books.Account{}, &books.Partner{}, &books.Note{}} {
			_ = rec.Patch(kind, now, "fuzz")
		}
	})
}

func FuzzParseDate(f *testing.F) {
	for _, s := range []string{"2024-03-01", "2024-02-30", "", "01/03/2024", "2024-3-1", "9999-12-31"} {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, s string) {
		d, err := books.ParseDate(s)
		if err != nil {
			return
		}
		back, err := books.ParseDate(d.String())
		if err != nil || !back.Equal(d.Time) {
			t.Fatalf("date %q does not survive formatting: %q", s, d.String())
		}
	})
}
