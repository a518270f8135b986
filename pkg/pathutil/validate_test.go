package pathutil_test

import (
	"errors"
	"testing"

	"github.com/bit-project/bit/pkg/errclass"
	"github.com/bit-project/bit/pkg/idutil"
	"github.com/bit-project/bit/pkg/pathutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateStorageID(t *testing.T) {
	for _, ok := range []string{"account", "note", "partner_v2"} {
		assert.NoError(t, pathutil.ValidateStorageID(ok), ok)
	}
	for _, bad := range []string{"", "Account", "1note", "no-te", "../x", "a b"} {
		err := pathutil.ValidateStorageID(bad)
		assert.True(t, errors.Is(err, errclass.ErrNameInvalid), bad)
	}
}

func TestValidateName_NormalizesNFC(t *testing.T) {
	// NFC folds the combining accent into one rune, which is still outside
	// the allowed set.
	_, err := pathutil.ValidateName("jose\u0301")
	assert.Error(t, err)

	name, err := pathutil.ValidateName("alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", name)
}

func TestValidateName_Rejects(t *testing.T) {
	for _, bad := range []string{"", "..", "a/b", `a\b`, "tab\there", "a..b"} {
		_, err := pathutil.ValidateName(bad)
		assert.True(t, errors.Is(err, errclass.ErrNameInvalid), "%q", bad)
	}
}

func TestValidateObjectID(t *testing.T) {
	assert.NoError(t, pathutil.ValidateObjectID(idutil.NewUUID()))
	err := pathutil.ValidateObjectID("../../etc/passwd")
	assert.True(t, errors.Is(err, errclass.ErrPathEscape))
}
