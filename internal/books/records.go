package books

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/bit-project/bit/pkg/errclass"
	"github.com/bit-project/bit/pkg/model"
)

// Stamp records who last changed a record and when.
type Stamp struct {
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by"`
}

func (s *Stamp) touch(dtime time.Time, uid string) {
	s.UpdatedAt = dtime
	s.UpdatedBy = uid
}

// Account is a ledger account.
type Account struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Removed bool   `json:"removed"`
	Stamp
}

func (*Account) StorageID() string { return StorageAccount }

func (a *Account) Patch(kind model.ActionKind, dtime time.Time, uid string) error {
	act, err := decodeFor(kind, StorageAccount)
	if err != nil {
		return err
	}
	switch act.Type {
	case AccountCreate:
		a.Code, a.Name = act.Code, act.Name
	case AccountRename:
		a.Name = act.Name
	case AccountRemove:
		a.Removed = true
	case AccountRestore:
		a.Removed = false
	}
	a.touch(dtime, uid)
	return nil
}

// Partner is a customer or supplier.
type Partner struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Removed bool   `json:"removed"`
	Stamp
}

func (*Partner) StorageID() string { return StoragePartner }

func (p *Partner) Patch(kind model.ActionKind, dtime time.Time, uid string) error {
	act, err := decodeFor(kind, StoragePartner)
	if err != nil {
		return err
	}
	switch act.Type {
	case PartnerCreate:
		p.Code, p.Name = act.Code, act.Name
	case PartnerRename:
		p.Name = act.Name
	case PartnerRemove:
		p.Removed = true
	case PartnerRestore:
		p.Removed = false
	}
	p.touch(dtime, uid)
	return nil
}

// Note is an invoice or receipt with the transactions it books.
type Note struct {
	Code           string           `json:"code"`
	Partner        *model.ObjectID  `json:"partner,omitempty"`
	Description    *string          `json:"description,omitempty"`
	IssueDate      *Date            `json:"idate,omitempty"`
	CompletionDate *Date            `json:"cdate,omitempty"`
	DueDate        *Date            `json:"ddate,omitempty"`
	Net            *decimal.Decimal `json:"net,omitempty"`
	VAT            *decimal.Decimal `json:"vat,omitempty"`
	Gross          *decimal.Decimal `json:"gross,omitempty"`
	Transactions   []Transaction    `json:"transactions,omitempty"`
	Stamp
}

func (*Note) StorageID() string { return StorageNote }

func (n *Note) Patch(kind model.ActionKind, dtime time.Time, uid string) error {
	act, err := decodeFor(kind, StorageNote)
	if err != nil {
		return err
	}
	switch act.Type {
	case NoteCreate:
		n.Code = act.Code
	case NoteSet:
		n.set(act.Set)
	case NoteUnset:
		for _, f := range act.Unset {
			n.unset(f)
		}
	case NoteAddTransaction:
		n.Transactions = append(n.Transactions, *act.Transaction)
	}
	n.touch(dtime, uid)
	return nil
}

func (n *Note) set(v *NoteValues) {
	if v.Partner != nil {
		n.Partner = v.Partner
	}
	if v.Description != nil {
		n.Description = v.Description
	}
	if v.IssueDate != nil {
		n.IssueDate = v.IssueDate
	}
	if v.CompletionDate != nil {
		n.CompletionDate = v.CompletionDate
	}
	if v.DueDate != nil {
		n.DueDate = v.DueDate
	}
	if v.Net != nil {
		n.Net = v.Net
	}
	if v.VAT != nil {
		n.VAT = v.VAT
	}
	if v.Gross != nil {
		n.Gross = v.Gross
	}
}

func (n *Note) unset(f NoteField) {
	switch f {
	case FieldPartner:
		n.Partner = nil
	case FieldDescription:
		n.Description = nil
	case FieldIssueDate:
		n.IssueDate = nil
	case FieldCompletionDate:
		n.CompletionDate = nil
	case FieldDueDate:
		n.DueDate = nil
	case FieldNet:
		n.Net = nil
	case FieldVAT:
		n.VAT = nil
	case FieldGross:
		n.Gross = nil
	}
}

// Booked returns the sum of the note's transaction amounts.
func (n *Note) Booked() decimal.Decimal {
	sum := decimal.Zero
	for _, t := range n.Transactions {
		sum = sum.Add(t.Amount)
	}
	return sum
}

// Balanced reports whether net plus VAT equals gross. A note missing any of
// the three is not checked.
func (n *Note) Balanced() bool {
	if n.Net == nil || n.VAT == nil || n.Gross == nil {
		return true
	}
	return n.Net.Add(*n.VAT).Equal(*n.Gross)
}

func decodeFor(kind model.ActionKind, storageID string) (Action, error) {
	act, err := Decode(kind)
	if err != nil {
		return Action{}, err
	}
	if act.Type.StorageID() != storageID {
		return Action{}, errclass.ErrInvalidAction.WithMessagef("%s cannot be applied to a %s", act.Type, storageID)
	}
	return act, nil
}
