package books

import (
	"github.com/bit-project/bit/internal/projection"
	"github.com/bit-project/bit/pkg/errclass"
	"github.com/bit-project/bit/pkg/model"
)

// Books holds the projections of every bookkeeping record type.
type Books struct {
	Accounts *projection.Index[Account, *Account]
	Partners *projection.Index[Partner, *Partner]
	Notes    *projection.Index[Note, *Note]

	set *projection.Set
}

// New returns empty projections, ready to be handed to the engine.
func New() *Books {
	b := &Books{
		Accounts: projection.NewIndex[Account](),
		Partners: projection.NewIndex[Partner](),
		Notes:    projection.NewIndex[Note](),
	}
	b.set = projection.NewSet(b.Accounts, b.Partners, b.Notes)
	return b
}

// Set returns the dispatcher the engine feeds document changes into.
func (b *Books) Set() *projection.Set { return b.set }

// Account looks up an account by object id or, failing that, by code.
// Removed accounts are found by object id only.
func (b *Books) Account(ref string) (model.ObjectID, Account, error) {
	if a, ok := b.Accounts.Get(model.ObjectID(ref)); ok {
		return model.ObjectID(ref), a, nil
	}
	for id, a := range b.Accounts.All() {
		if a.Code == ref && !a.Removed {
			return id, a, nil
		}
	}
	return "", Account{}, errclass.ErrDocumentNotFound.WithMessagef("no account %q", ref)
}

// Partner looks up a partner by object id or code.
func (b *Books) Partner(ref string) (model.ObjectID, Partner, error) {
	if p, ok := b.Partners.Get(model.ObjectID(ref)); ok {
		return model.ObjectID(ref), p, nil
	}
	for id, p := range b.Partners.All() {
		if p.Code == ref && !p.Removed {
			return id, p, nil
		}
	}
	return "", Partner{}, errclass.ErrDocumentNotFound.WithMessagef("no partner %q", ref)
}

// Note looks up a note by object id or code.
func (b *Books) Note(ref string) (model.ObjectID, Note, error) {
	if n, ok := b.Notes.Get(model.ObjectID(ref)); ok {
		return model.ObjectID(ref), n, nil
	}
	for id, n := range b.Notes.All() {
		if n.Code == ref {
			return id, n, nil
		}
	}
	return "", Note{}, errclass.ErrDocumentNotFound.WithMessagef("no note %q", ref)
}

// CodeTaken reports whether a live record of storageID already uses code.
func (b *Books) CodeTaken(storageID, code string) bool {
	var err error
	switch storageID {
	case StorageAccount:
		_, _, err = b.Account(code)
	case StoragePartner:
		_, _, err = b.Partner(code)
	case StorageNote:
		_, _, err = b.Note(code)
	default:
		return false
	}
	return err == nil
}

// Describe renders an action payload for history listings. Payloads that are
// not bookkeeping actions are described by their envelope type.
func Describe(kind model.ActionKind) string {
	act, err := Decode(kind)
	if err != nil {
		return string(kind.Type)
	}
	return act.String()
}
