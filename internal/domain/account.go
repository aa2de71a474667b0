package domain

import (
	"fmt"
	"strings"
)

const maxAccountIDDigits = 15

// AccountID identifies one external messaging account. Normalized ids hold
// digits only.
type AccountID string

func NormalizeAccountID(raw string) (AccountID, error) {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	digits := b.String()
	if digits == "" {
		return "", fmt.Errorf("%w: %q has no digits", ErrInvalidAccountID, raw)
	}
	if len(digits) > maxAccountIDDigits {
		return "", fmt.Errorf("%w: %q has more than %d digits", ErrInvalidAccountID, raw, maxAccountIDDigits)
	}

	return AccountID(digits), nil
}

func (id AccountID) String() string {
	return string(id)
}
