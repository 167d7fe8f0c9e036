package password

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

const minLength = 8

// Symbols is the fixed set of characters accepted as the required symbol.
const Symbols = "@$!%*?&"

var (
	// ErrRequired is returned when any of the three fields is empty.
	ErrRequired = errors.New("password fields must not be empty")
	// ErrMismatch is returned when the confirmation does not match the new
	// password exactly.
	ErrMismatch = errors.New("password confirmation does not match")
	// ErrReuse is returned when the new password equals the current one.
	ErrReuse = errors.New("new password must be different from current password")
	// ErrPolicy is the base error for structural strength violations; the
	// wrapped message names the first failing rule.
	ErrPolicy = errors.New("password policy violation")
)

// Validate applies the change-password policy to the current password, the
// proposed password, and its confirmation. Checks run fail-fast: emptiness,
// match, distinctness, strength. A nil return means the change request may
// be sent to the server.
func Validate(current, proposed, confirm string) error {
	if current == "" || proposed == "" || confirm == "" {
		return ErrRequired
	}
	if proposed != confirm {
		return ErrMismatch
	}
	if proposed == current {
		return ErrReuse
	}
	return Strength(proposed)
}

// Strength checks only the structural rules: minimum length, at least one
// lowercase letter, one uppercase letter, one digit, and one symbol from
// [Symbols]. The first failing rule is returned wrapped in [ErrPolicy].
func Strength(pw string) error {
	if len(pw) < minLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrPolicy, minLength)
	}
	var lower, upper, digit, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(Symbols, r):
			symbol = true
		}
	}
	switch {
	case !lower:
		return fmt.Errorf("%w: must contain a lowercase letter", ErrPolicy)
	case !upper:
		return fmt.Errorf("%w: must contain an uppercase letter", ErrPolicy)
	case !digit:
		return fmt.Errorf("%w: must contain a digit", ErrPolicy)
	case !symbol:
		return fmt.Errorf("%w: must contain a symbol from %s", ErrPolicy, Symbols)
	}
	return nil
}
