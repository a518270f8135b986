package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bit-project/bit/pkg/bit"
	"github.com/bit-project/bit/pkg/color"
	"github.com/bit-project/bit/pkg/errclass"
)

func code(s string) string { return color.Header(s) }

// describeError appends a next step to errors whose class has an obvious one.
func describeError(err error) string {
	msg := err.Error()
	switch {
	case errors.Is(err, errclass.ErrNotARepository):
		return formatNotInRepositoryError()
	case errors.Is(err, errclass.ErrLockConflict):
		return msg + "\n  Another bit process owns this repository. Wait for it to finish or for its lease to expire."
	case errors.Is(err, errclass.ErrNothingToCommit):
		return msg + "\n  Record changes first, for example " + code("bit account add <code> <name>") + "."
	}
	switch errclass.KindOf(err) {
	case errclass.KindStale:
		return msg + "\n  The server moved on. Run " + code("bit pull") + " and retry."
	case errclass.KindConflict:
		return msg + "\n  Run " + code("bit status") + " to list conflicted records, then " +
			code("bit rebase <record>") + " or " + code("bit clean") + "."
	case errclass.KindTransport:
		return msg + "\n  The server is unreachable; local commits are kept. Retry " + code("bit push") + " later."
	case errclass.KindIntegrity:
		return msg + "\n  Signed history failed verification. Run " + code("bit verify") + "."
	}
	return msg
}

func formatNotInRepositoryError() string {
	return fmt.Sprintf("not a bit repository (or any parent directory)\n  %s",
		suggestInit())
}

func suggestInit() string {
	return fmt.Sprintf("Run %s to create one, or pass %s.", code("bit init"), code("--repo <path>"))
}

// suggestRecords lists live records whose code starts with query.
func suggestRecords(c *bit.Client, query string) string {
	var matches []string
	add := func(kind, recCode string) {
		if len(matches) < 3 && strings.HasPrefix(strings.ToLower(recCode), strings.ToLower(query)) {
			matches = append(matches, fmt.Sprintf("%s (%s)", color.ID(recCode), kind))
		}
	}
	for _, a := range c.Accounts(false) {
		add("account", a.Code)
	}
	for _, p := range c.Partners(false) {
		add("partner", p.Code)
	}
	for _, n := range c.Notes() {
		add("note", n.Code)
	}
	if len(matches) == 0 {
		return fmt.Sprintf("Run %s, %s or %s to see records.",
			code("bit account list"), code("bit partner list"), code("bit note list"))
	}
	hint := "Did you mean"
	if len(matches) > 1 {
		hint += " one of"
	}
	return fmt.Sprintf("%s: %s?", hint, strings.Join(matches, ", "))
}

// notFound decorates a record lookup failure with suggestions.
func notFound(c *bit.Client, ref string, err error) error {
	if !errors.Is(err, errclass.ErrDocumentNotFound) {
		return err
	}
	return fmt.Errorf("%w\n  %s", err, suggestRecords(c, ref))
}
