// Package books is the bookkeeping domain replicated by the engine: accounts,
// partners and notes, each kept as one record per object id.
package books

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bit-project/bit/pkg/errclass"
	"github.com/bit-project/bit/pkg/model"
)

// Storage ids of the three record types.
const (
	StorageAccount = "account"
	StoragePartner = "partner"
	StorageNote    = "note"
)

// ActionType names one bookkeeping change.
type ActionType string

const (
	AccountCreate  ActionType = "account_create"
	AccountRename  ActionType = "account_rename"
	AccountRemove  ActionType = "account_remove"
	AccountRestore ActionType = "account_restore"

	PartnerCreate  ActionType = "partner_create"
	PartnerRename  ActionType = "partner_rename"
	PartnerRemove  ActionType = "partner_remove"
	PartnerRestore ActionType = "partner_restore"

	NoteCreate         ActionType = "note_create"
	NoteSet            ActionType = "note_set"
	NoteUnset          ActionType = "note_unset"
	NoteAddTransaction ActionType = "note_add_transaction"
)

var actionStorage = map[ActionType]string{
	AccountCreate: StorageAccount, AccountRename: StorageAccount,
	AccountRemove: StorageAccount, AccountRestore: StorageAccount,
	PartnerCreate: StoragePartner, PartnerRename: StoragePartner,
	PartnerRemove: StoragePartner, PartnerRestore: StoragePartner,
	NoteCreate: StorageNote, NoteSet: StorageNote,
	NoteUnset: StorageNote, NoteAddTransaction: StorageNote,
}

// StorageID returns the record type t applies to, or "" for an unknown type.
func (t ActionType) StorageID() string { return actionStorage[t] }

// IsCreate reports whether t starts a record.
func (t ActionType) IsCreate() bool {
	return t == AccountCreate || t == PartnerCreate || t == NoteCreate
}

// DateLayout is the calendar date format used by notes.
const DateLayout = "2006-01-02"

// Date is a calendar day without a time zone.
type Date struct {
	time.Time
}

// ParseDate parses a YYYY-MM-DD day.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, errclass.ErrInvalidAction.WithMessagef("invalid date %q: want %s", s, DateLayout)
	}
	return Date{t}, nil
}

func (d Date) String() string { return d.Format(DateLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// NoteField names a settable note field.
type NoteField string

const (
	FieldPartner        NoteField = "partner"
	FieldDescription    NoteField = "description"
	FieldIssueDate      NoteField = "idate"
	FieldCompletionDate NoteField = "cdate"
	FieldDueDate        NoteField = "ddate"
	FieldNet            NoteField = "net"
	FieldVAT            NoteField = "vat"
	FieldGross          NoteField = "gross"
)

// NoteFields lists every note field in display order.
var NoteFields = []NoteField{
	FieldPartner, FieldDescription, FieldIssueDate, FieldCompletionDate,
	FieldDueDate, FieldNet, FieldVAT, FieldGross,
}

// ParseNoteField validates a field name.
func ParseNoteField(s string) (NoteField, error) {
	f := NoteField(strings.ToLower(s))
	for _, known := range NoteFields {
		if f == known {
			return f, nil
		}
	}
	return "", errclass.ErrInvalidAction.WithMessagef("unknown note field %q", s)
}

// NoteValues carries the fields a note_set writes. Nil fields are left alone.
type NoteValues struct {
	Partner        *model.ObjectID  `json:"partner,omitempty"`
	Description    *string          `json:"description,omitempty"`
	IssueDate      *Date            `json:"idate,omitempty"`
	CompletionDate *Date            `json:"cdate,omitempty"`
	DueDate        *Date            `json:"ddate,omitempty"`
	Net            *decimal.Decimal `json:"net,omitempty"`
	VAT            *decimal.Decimal `json:"vat,omitempty"`
	Gross          *decimal.Decimal `json:"gross,omitempty"`
}

func (v *NoteValues) empty() bool {
	return v == nil || (v.Partner == nil && v.Description == nil && v.IssueDate == nil &&
		v.CompletionDate == nil && v.DueDate == nil && v.Net == nil && v.VAT == nil && v.Gross == nil)
}

// Transaction books an amount from one account to another.
type Transaction struct {
	Debit   model.ObjectID  `json:"debit"`
	Credit  model.ObjectID  `json:"credit"`
	Amount  decimal.Decimal `json:"amount"`
	Comment string          `json:"comment,omitempty"`
}

// Validate checks the double-entry shape of t.
func (t Transaction) Validate() error {
	if t.Debit == "" || t.Credit == "" {
		return errclass.ErrInvalidAction.WithMessage("transaction needs a debit and a credit account")
	}
	if t.Debit == t.Credit {
		return errclass.ErrInvalidAction.WithMessagef("transaction debits and credits the same account %s", t.Debit)
	}
	if !t.Amount.IsPositive() {
		return errclass.ErrInvalidAction.WithMessagef("transaction amount must be positive, got %s", t.Amount)
	}
	return nil
}

// Action is the payload of every bookkeeping change. Type selects which of
// the other fields are meaningful.
type Action struct {
	Type        ActionType   `json:"type"`
	Code        string       `json:"code,omitempty"`
	Name        string       `json:"name,omitempty"`
	Set         *NoteValues  `json:"set,omitempty"`
	Unset       []NoteField  `json:"unset,omitempty"`
	Transaction *Transaction `json:"transaction,omitempty"`
}

func NewAccount(code, name string) Action  { return Action{Type: AccountCreate, Code: code, Name: name} }
func RenameAccount(name string) Action     { return Action{Type: AccountRename, Name: name} }
func RemoveAccount() Action                { return Action{Type: AccountRemove} }
func RestoreAccount() Action               { return Action{Type: AccountRestore} }
func NewPartner(code, name string) Action  { return Action{Type: PartnerCreate, Code: code, Name: name} }
func RenamePartner(name string) Action     { return Action{Type: PartnerRename, Name: name} }
func RemovePartner() Action                { return Action{Type: PartnerRemove} }
func RestorePartner() Action               { return Action{Type: PartnerRestore} }
func NewNote(code string) Action           { return Action{Type: NoteCreate, Code: code} }
func SetNote(v NoteValues) Action          { return Action{Type: NoteSet, Set: &v} }
func UnsetNote(fields ...NoteField) Action { return Action{Type: NoteUnset, Unset: fields} }

func AddTransaction(tx Transaction) Action {
	return Action{Type: NoteAddTransaction, Transaction: &tx}
}

// Validate checks that a carries what its type needs.
func (a Action) Validate() error {
	if a.Type.StorageID() == "" {
		return errclass.ErrInvalidAction.WithMessagef("unknown action type %q", a.Type)
	}
	switch a.Type {
	case AccountCreate, PartnerCreate:
		if a.Code == "" || a.Name == "" {
			return errclass.ErrInvalidAction.WithMessagef("%s needs a code and a name", a.Type)
		}
	case NoteCreate:
		if a.Code == "" {
			return errclass.ErrInvalidAction.WithMessagef("%s needs a code", a.Type)
		}
	case AccountRename, PartnerRename:
		if a.Name == "" {
			return errclass.ErrInvalidAction.WithMessagef("%s needs a name", a.Type)
		}
	case NoteSet:
		if a.Set.empty() {
			return errclass.ErrInvalidAction.WithMessage("note_set sets nothing")
		}
	case NoteUnset:
		if len(a.Unset) == 0 {
			return errclass.ErrInvalidAction.WithMessage("note_unset clears nothing")
		}
		for _, f := range a.Unset {
			if _, err := ParseNoteField(string(f)); err != nil {
				return err
			}
		}
	case NoteAddTransaction:
		if a.Transaction == nil {
			return errclass.ErrInvalidAction.WithMessage("note_add_transaction carries no transaction")
		}
		return a.Transaction.Validate()
	}
	return nil
}

// Kind wraps a in the engine's action envelope.
func (a Action) Kind() (model.ActionKind, error) {
	if err := a.Validate(); err != nil {
		return model.ActionKind{}, err
	}
	if a.Type.IsCreate() {
		return model.Create(a)
	}
	return model.Patch(a)
}

// Decode unwraps a bookkeeping action from an envelope and checks that the
// envelope type agrees with the payload.
func Decode(kind model.ActionKind) (Action, error) {
	var a Action
	if err := kind.Decode(&a); err != nil {
		return Action{}, errclass.ErrInvalidAction.WithMessage(err.Error())
	}
	if a.Type.IsCreate() != kind.IsCreate() {
		return Action{}, errclass.ErrInvalidAction.WithMessagef("%s carried in a %s envelope", a.Type, kind.Type)
	}
	if err := a.Validate(); err != nil {
		return Action{}, err
	}
	return a, nil
}

// String describes a for history listings.
func (a Action) String() string {
	switch a.Type {
	case AccountCreate:
		return fmt.Sprintf("account %s created: %s", a.Code, a.Name)
	case PartnerCreate:
		return fmt.Sprintf("partner %s created: %s", a.Code, a.Name)
	case NoteCreate:
		return fmt.Sprintf("note %s created", a.Code)
	case AccountRename, PartnerRename:
		return fmt.Sprintf("renamed to %s", a.Name)
	case AccountRemove, PartnerRemove:
		return "removed"
	case AccountRestore, PartnerRestore:
		return "restored"
	case NoteSet:
		return "set " + strings.Join(a.Set.names(), ", ")
	case NoteUnset:
		names := make([]string, len(a.Unset))
		for i, f := range a.Unset {
			names[i] = string(f)
		}
		return "unset " + strings.Join(names, ", ")
	case NoteAddTransaction:
		t := a.Transaction
		return fmt.Sprintf("transaction %s -> %s: %s", t.Credit, t.Debit, t.Amount)
	}
	return string(a.Type)
}

func (v *NoteValues) names() []string {
	var names []string
	add := func(set bool, f NoteField) {
		if set {
			names = append(names, string(f))
		}
	}
	add(v.Partner != nil, FieldPartner)
	add(v.Description != nil, FieldDescription)
	add(v.IssueDate != nil, FieldIssueDate)
	add(v.CompletionDate != nil, FieldCompletionDate)
	add(v.DueDate != nil, FieldDueDate)
	add(v.Net != nil, FieldNet)
	add(v.VAT != nil, FieldVAT)
	add(v.Gross != nil, FieldGross)
	return names
}
