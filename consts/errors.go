package consts

import "errors"

var (
	// Validation failures during registration.
	ErrInvalidUsername = errors.New("invalid username: use letters, digits, dots, hyphens or underscores")
	ErrWeakPassword    = errors.New("invalid password: at least 10 characters with one uppercase letter, one lowercase letter and one digit")

	// Registration conflict.
	ErrUserExists = errors.New("username already registered")

	// Authentication failures. The two messages are intentionally distinct.
	ErrUnknownUser = errors.New("no such user")
	ErrBadPassword = errors.New("bad password")

	// Session failures.
	ErrNoSession = errors.New("no associated user")

	// Mailbox and routing failures.
	ErrMessageNotFound  = errors.New("message not found")
	ErrUnknownRecipient = errors.New("recipient does not exist")
	ErrRelayFailed      = errors.New("external relay failed")

	// Protocol failures.
	ErrUnknownHeader = errors.New("unknown or malformed request header")
)
