// Package identity authenticates users and reports who is signed in.
package identity

import "context"

// User is a signed-in identity. ID is the opaque key of the user's profile.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Provider is the identity service contract.
type Provider interface {
	// OnAuthStateChanged registers fn for sign-in and sign-out events. fn is
	// called immediately with the current user (nil when signed out).
	OnAuthStateChanged(fn func(*User)) (unsubscribe func())
	SignIn(ctx context.Context, email, password string) (*User, error)
	SignUp(ctx context.Context, email, password string) (*User, error)
	SignOut(ctx context.Context) error
	CurrentUser() *User
}
