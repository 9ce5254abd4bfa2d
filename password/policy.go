package password

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// Policy is the strength rule set applied to new passwords.
type Policy struct {
	MinLength    int
	MaxLength    int
	RequireUpper bool
	RequireLower bool
	RequireDigit bool
}

// DefaultPolicy requires 8 to 128 characters with upper, lower and digit.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:    8,
		MaxLength:    128,
		RequireUpper: true,
		RequireLower: true,
		RequireDigit: true,
	}
}

// Check returns nil when password satisfies p. Rejections wrap
// [ErrWeakPassword] and name the first failed rule.
func (p Policy) Check(password string) error {
	n := utf8.RuneCountInString(password)
	if p.MinLength > 0 && n < p.MinLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrWeakPassword, p.MinLength)
	}
	if p.MaxLength > 0 && n > p.MaxLength {
		return fmt.Errorf("%w: must be at most %d characters", ErrWeakPassword, p.MaxLength)
	}

	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if p.RequireUpper && !upper {
		return fmt.Errorf("%w: needs an uppercase letter", ErrWeakPassword)
	}
	if p.RequireLower && !lower {
		return fmt.Errorf("%w: needs a lowercase letter", ErrWeakPassword)
	}
	if p.RequireDigit && !digit {
		return fmt.Errorf("%w: needs a digit", ErrWeakPassword)
	}
	return nil
}
