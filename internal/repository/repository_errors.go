package repository

import "errors"

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrUserAlreadyExists   = errors.New("user already exists")
	ErrAlreadyConfirmed    = errors.New("user already confirmed")
	ErrCodeMismatch        = errors.New("recovery code does not match")
	ErrRecoveryNotVerified = errors.New("recovery code was not verified")
	ErrSessionNotFound     = errors.New("session not found")
)

const uniqueViolation = "23505"
