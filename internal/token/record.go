package token

import "time"

// DefaultExpiryMargin is subtracted from provider-reported expiry times
// when a Record is built, so a token stops being used slightly before the
// provider would reject it.
const DefaultExpiryMargin = 60 * time.Second

// DefaultSubject is the subject used by single-user deployments that never
// send an explicit subject.
const DefaultSubject = "default"

// Record is a stored Gmail credential for one subject.
type Record struct {
	Subject      string    `json:"subject"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry"`
	Scope        string    `json:"scope,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewRecord builds a Record from token material returned by the provider.
// The margin is subtracted from expiry here, once, so Valid stays a plain
// time comparison. A zero expiry is kept as-is and makes the record
// immediately refresh-eligible.
func NewRecord(subject, accessToken, refreshToken string, expiry time.Time, margin time.Duration) *Record {
	r := &Record{
		Subject:      subject,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		CreatedAt:    time.Now().UTC(),
	}
	if !expiry.IsZero() {
		r.Expiry = expiry.Add(-margin)
	}
	return r
}

// Valid reports whether the access token can still be used at the given
// time. The stored expiry already includes the safety margin.
func (r *Record) Valid(now time.Time) bool {
	if r == nil || r.AccessToken == "" {
		return false
	}
	if r.Expiry.IsZero() {
		return false
	}
	return now.Before(r.Expiry)
}

// CanRefresh reports whether the record carries a refresh token.
func (r *Record) CanRefresh() bool {
	return r != nil && r.RefreshToken != ""
}

// Clone returns a copy of the record so stores can hand out records
// without sharing memory with their internal state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
