package identity

import (
	"errors"
	"fmt"
)

// Provider error codes.
const (
	CodeUserNotFound      = "user-not-found"
	CodeWrongPassword     = "wrong-password"
	CodeInvalidCredential = "invalid-credential"
	CodeEmailAlreadyInUse = "email-already-in-use"
	CodeWeakPassword      = "weak-password"
	CodeInvalidEmail      = "invalid-email"
)

// Error is an identity provider failure carrying a provider code.
type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("identity: %s: %v", e.Code, e.Err)
	}
	return "identity: " + e.Code
}

func (e *Error) Unwrap() error { return e.Err }

func codeErr(code string, err error) *Error {
	return &Error{Code: code, Err: err}
}

// Code returns the provider code of err, or "" when err carries none.
func Code(err error) string {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Code
	}
	return ""
}

// FriendlyMessage maps a sign-in or sign-up failure to the text shown to the
// user.
func FriendlyMessage(err error) string {
	code := Code(err)
	switch code {
	case "":
		return "An unknown error occurred."
	case CodeUserNotFound, CodeWrongPassword, CodeInvalidCredential:
		return "Invalid email or password."
	case CodeEmailAlreadyInUse:
		return "An account with this email already exists."
	case CodeWeakPassword:
		return "Password should be at least 6 characters."
	default:
		return "Authentication failed. Please try again."
	}
}
