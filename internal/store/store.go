// Package store defines the credential store boundary. The protocol engine
// only ever needs two lookups: a user by credential digest and a client by
// identifier. Administration of the underlying records happens outside this
// process.
package store

import (
	"context"
)

//go:generate mockgen -source=store.go -destination=mocks/store_mock.go -package=mocks

// User is a registered end user, read-only at login time. Password digests
// never leave the store; the lookup takes the digest as an argument instead.
type User struct {
	ID     string
	Email  string
	Groups []string
}

// Client is a registered relying party. RedirectURLs is the authoritative
// allow-list for the authorization request's redirect_uri, in registration
// order.
type Client struct {
	ID           string
	Name         string
	RedirectURLs []string
}

// Store is the capability interface handed to the protocol engine.
//
// Both lookups return sentinel.ErrNotFound (possibly wrapped) when no record
// matches, and a wrapped driver error on infrastructure failure. Callers must
// keep the two cases distinct: "not found" is client-attributable, everything
// else is internal.
type Store interface {
	// GetUser finds a user by email and password digest. The digest is
	// base64(sha256(password + salt)), computed by the caller.
	GetUser(ctx context.Context, email, passwordDigest string) (*User, error)

	// GetClient finds a client by its public identifier.
	GetClient(ctx context.Context, clientID string) (*Client, error)
}
