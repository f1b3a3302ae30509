package token

import (
	"context"
	"errors"
)

// ErrNotConnected indicates that no usable Gmail credential exists for a
// subject. Callers should surface it as "reconnect required", not retry.
var ErrNotConnected = errors.New("gmail not connected")

// Store persists Gmail credentials keyed by subject.
//
// Implementations must be safe for concurrent use. Load returns a record
// the caller owns; mutating it must not affect the store.
type Store interface {
	// Save persists the record, replacing any credential previously
	// stored for the same subject.
	Save(ctx context.Context, rec *Record) error

	// Load returns the stored credential for the subject, or an error
	// wrapping ErrNotConnected when none exists.
	Load(ctx context.Context, subject string) (*Record, error)

	// Delete removes the credential for the subject. Deleting a subject
	// that has no credential is not an error.
	Delete(ctx context.Context, subject string) error

	// Close releases any resources held by the store.
	Close() error
}

// Refresher redeems a refresh token for fresh token material.
type Refresher interface {
	// Refresh exchanges the record's refresh token for a new record for
	// the same subject. When the provider response omits a refresh token
	// the previous one is carried forward in the returned record. A
	// provider rejection is returned verbatim and must not be retried.
	Refresh(ctx context.Context, rec *Record) (*Record, error)
}
