package accounts

import "errors"

var (
	// ErrInvalidInput indicates a malformed registration, login or profile request.
	ErrInvalidInput = errors.New("invalid input")
	// ErrAlreadyExists indicates the email or phone number already belongs to an account.
	ErrAlreadyExists = errors.New("account already exists")
	// ErrAccountNotFound indicates no account matched the lookup.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInvalidCredential indicates a password that does not match the account.
	ErrInvalidCredential = errors.New("invalid credentials")
)
