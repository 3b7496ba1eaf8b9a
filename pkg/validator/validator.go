// Package validator holds the password policy applied at registration and reset.
package validator

import (
	"errors"
	"fmt"
	"unicode"
)

var (
	ErrPasswordTooShort = errors.New("password is too short")
	ErrPasswordTooWeak  = errors.New("password must contain at least one digit and one letter")
	ErrPasswordTooLong  = errors.New("password must be at most 72 bytes long")
)

// bcrypt ignores everything past 72 bytes.
const maxPasswordBytes = 72

type Validator interface {
	ValidatePassword(password string) error
}

type Policy struct {
	MinLength          int
	RequireLetterDigit bool
}

type passwordValidator struct {
	policy Policy
}

func NewValidator(policy Policy) Validator {
	if policy.MinLength < 1 {
		policy.MinLength = 1
	}
	return &passwordValidator{policy: policy}
}

func (v *passwordValidator) ValidatePassword(password string) error {
	if len([]rune(password)) < v.policy.MinLength {
		return fmt.Errorf("%w: minimum is %d characters", ErrPasswordTooShort, v.policy.MinLength)
	}

	if len(password) > maxPasswordBytes {
		return ErrPasswordTooLong
	}

	if !v.policy.RequireLetterDigit {
		return nil
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		if unicode.IsLetter(r) {
			hasLetter = true
		}
		if unicode.IsDigit(r) {
			hasDigit = true
		}
	}

	if !hasLetter || !hasDigit {
		return ErrPasswordTooWeak
	}

	return nil
}
