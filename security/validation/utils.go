package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mezonai/circlepay/errors"
	"golang.org/x/text/unicode/norm"
)

// NormalizeBoundedText returns the NFC form of value, or an InvalidInput error
// if that form is longer than maxBytes. Limits are in bytes because that is how
// the stored record is bounded.
func NormalizeBoundedText(fieldName, value string, maxBytes int) (string, error) {
	normalized := norm.NFC.String(value)
	if len(normalized) > maxBytes {
		return "", errors.NewError(
			errors.ErrCodeInvalidInput,
			fmt.Sprintf(errors.ErrMsgTextTooLong, fieldName, maxBytes),
		)
	}
	return normalized, nil
}

// ValidateIdentity checks an identity supplied by an outer surface (CLI flag,
// URL path). Identities must be non-empty, valid UTF-8, printable and bounded.
func ValidateIdentity(identity string) error {
	if strings.TrimSpace(identity) == "" {
		return errors.NewError(errors.ErrCodeInvalidInput, fmt.Sprintf(errors.ErrMsgFieldRequired, IdentityField))
	}
	if !utf8.ValidString(identity) || utf8.RuneCountInString(identity) > MaxIdentityLength {
		return errors.NewError(errors.ErrCodeInvalidInput, fmt.Sprintf(errors.ErrMsgInvalidField, IdentityField))
	}
	for _, r := range identity {
		if r < 0x20 || r == 0x7f {
			return errors.NewError(errors.ErrCodeInvalidInput, fmt.Sprintf(errors.ErrMsgInvalidField, IdentityField))
		}
	}
	return nil
}
