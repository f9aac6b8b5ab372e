package vault

import (
	"errors"
	"fmt"
	"unicode"
)

// Master password length bounds. The minimum is a hard error; complexity
// beyond it only affects the reported strength level.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

// Password length errors.
var (
	ErrPasswordTooShort = errors.New("vault: password too short")
	ErrPasswordTooLong  = errors.New("vault: password too long")
)

// StrengthLevel classifies a master password by character variety.
type StrengthLevel string

const (
	StrengthWeak   StrengthLevel = "weak"
	StrengthFair   StrengthLevel = "fair"
	StrengthStrong StrengthLevel = "strong"
)

// StrengthReport is the outcome of master-password validation: the level,
// plus advisory warnings that never block creation on their own.
type StrengthReport struct {
	Level    StrengthLevel
	Warnings []string
}

// ValidateMasterPassword enforces the length bounds and reports strength.
// Only length violations are errors; everything else is advisory so a user
// who insists on a weak password is warned, not blocked.
func ValidateMasterPassword(password []byte) (*StrengthReport, error) {
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: minimum %d characters", ErrPasswordTooShort, MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return nil, fmt.Errorf("%w: maximum %d characters", ErrPasswordTooLong, MaxPasswordLength)
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range string(password) {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}

	classes := 0
	for _, ok := range []bool{hasUpper, hasLower, hasDigit, hasSymbol} {
		if ok {
			classes++
		}
	}

	report := &StrengthReport{}
	if !hasUpper {
		report.Warnings = append(report.Warnings, "no uppercase letters")
	}
	if !hasLower {
		report.Warnings = append(report.Warnings, "no lowercase letters")
	}
	if !hasDigit {
		report.Warnings = append(report.Warnings, "no digits")
	}
	if !hasSymbol {
		report.Warnings = append(report.Warnings, "no symbols")
	}

	switch {
	case classes >= 4 && len(password) >= 12:
		report.Level = StrengthStrong
	case classes >= 3:
		report.Level = StrengthFair
	default:
		report.Level = StrengthWeak
	}
	return report, nil
}
