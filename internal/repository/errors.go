package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicateEmail indicates another account already owns the email address.
	ErrDuplicateEmail = errors.New("repository: duplicate email")
	// ErrDuplicatePhone indicates another account already owns the phone number.
	ErrDuplicatePhone = errors.New("repository: duplicate phone")
)
