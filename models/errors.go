package models

import "errors"

var (
	// ErrPrecondition means the caller supplied input that cannot be acted on. Nothing was written.
	ErrPrecondition = errors.New("precondition failed")
	// ErrNotFound means the addressed row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden means the requester may not act on the addressed row.
	ErrForbidden = errors.New("forbidden")
	// ErrUsernameTaken means another account already uses the username.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrAuthenticationFailed covers both unknown users and wrong passwords.
	ErrAuthenticationFailed = errors.New("authentication failed")
)
