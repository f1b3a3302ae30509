package google

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/liquidmail/liquidmail/internal/logging"
	"github.com/liquidmail/liquidmail/internal/token"
)

// Refresher exchanges refresh tokens at Google's token endpoint. It makes
// a single attempt per call; a rejection is surfaced to the caller with
// the provider's response intact (*oauth2.RetrieveError in the chain).
type Refresher struct {
	conf       *oauth2.Config
	margin     time.Duration
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

var _ token.Refresher = (*Refresher)(nil)

// Refresh redeems the record's refresh token and returns a fresh record
// for the same subject. The stored refresh token carries forward when
// Google's response omits one.
func (r *Refresher) Refresh(ctx context.Context, rec *token.Record) (*token.Record, error) {
	if rec == nil || rec.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh token available")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)

	// Seed only the refresh token so the token source performs a real
	// refresh instead of returning a cached access token.
	seed := &oauth2.Token{RefreshToken: rec.RefreshToken}
	tok, err := r.conf.TokenSource(ctx, seed).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}

	fresh := token.NewRecord(rec.Subject, tok.AccessToken, tok.RefreshToken, tok.Expiry, r.margin)
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = rec.RefreshToken
	}
	fresh.TokenType = tok.TokenType
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		fresh.Scope = scope
	} else {
		fresh.Scope = rec.Scope
	}

	r.logger.Debug("token refreshed at google",
		logging.SubjectHash(rec.Subject),
		slog.Time("expiry", fresh.Expiry))

	return fresh, nil
}
