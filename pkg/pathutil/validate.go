// Package pathutil validates the names that end up as on-disk path segments:
// storage ids, user ids and object ids.
package pathutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/bit-project/bit/pkg/errclass"
	"github.com/bit-project/bit/pkg/idutil"
)

var (
	storageIDRegex = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)
	nameRegex      = regexp.MustCompile(`^[a-zA-Z0-9._@-]+$`)
)

// ValidateStorageID checks a record type tag such as "account" or "note".
func ValidateStorageID(id string) error {
	if id == "" {
		return errclass.ErrNameInvalid.WithMessage("storage id must not be empty")
	}
	if !storageIDRegex.MatchString(id) {
		return errclass.ErrNameInvalid.WithMessagef("storage id must match [a-z][a-z0-9_]*: %s", id)
	}
	return nil
}

// ValidateName checks a user id or other free-form identifier. The name is
// NFC-normalized before the checks run; the normalized form is returned.
func ValidateName(name string) (string, error) {
	if name == "" {
		return "", errclass.ErrNameInvalid.WithMessage("name must not be empty")
	}

	name = norm.NFC.String(name)

	if strings.Contains(name, "..") {
		return "", errclass.ErrNameInvalid.WithMessagef("name must not contain '..': %s", name)
	}
	if strings.ContainsAny(name, "/\\") {
		return "", errclass.ErrNameInvalid.WithMessagef("name must not contain separators: %s", name)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", errclass.ErrNameInvalid.WithMessagef("name must not contain control characters: %q", name)
		}
	}
	if !nameRegex.MatchString(name) {
		return "", errclass.ErrNameInvalid.WithMessagef("name must match [a-zA-Z0-9._@-]+: %s", name)
	}
	return name, nil
}

// ValidateObjectID checks that id is a UUID, which also guarantees it is a
// safe file name for the per-document store.
func ValidateObjectID(id string) error {
	if !idutil.IsUUID(id) {
		return errclass.ErrPathEscape.WithMessagef("object id is not a uuid: %q", id)
	}
	return nil
}
