package google

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	oauth2google "golang.org/x/oauth2/google"

	"github.com/liquidmail/liquidmail/internal/logging"
	"github.com/liquidmail/liquidmail/internal/token"
)

// GmailSendScope is the only scope requested: send-only Gmail access.
const GmailSendScope = "https://www.googleapis.com/auth/gmail.send"

// DefaultTimeout bounds each call to Google's OAuth endpoints.
const DefaultTimeout = 10 * time.Second

// defaultRevokeURL is Google's token revocation endpoint.
const defaultRevokeURL = "https://oauth2.googleapis.com/revoke"

// Config holds the OAuth client credentials and tuning knobs.
type Config struct {
	ClientID     string
	ClientSecret string
	// RedirectURL is the callback this service registered with Google.
	RedirectURL string

	// ExpiryMargin is subtracted from provider expiry times when records
	// are built. Zero means token.DefaultExpiryMargin.
	ExpiryMargin time.Duration

	// Timeout bounds each outbound call. Zero means DefaultTimeout.
	Timeout time.Duration

	// Endpoint overrides Google's OAuth endpoint, for tests.
	Endpoint oauth2.Endpoint

	// RevokeURL overrides Google's revocation endpoint, for tests.
	RevokeURL string

	Logger *slog.Logger
}

// Client drives the OAuth authorization-code flow against Google.
type Client struct {
	conf       *oauth2.Config
	margin     time.Duration
	timeout    time.Duration
	httpClient *http.Client
	revokeURL  string
	logger     *slog.Logger
}

// NewClient validates the OAuth credentials and builds a Client. Missing
// credentials are a deployment configuration error, reported here rather
// than on first use.
func NewClient(cfg Config) (*Client, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("google client ID is not configured")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("google client secret is not configured")
	}
	if cfg.RedirectURL == "" {
		return nil, fmt.Errorf("google redirect URL is not configured")
	}

	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" && endpoint.TokenURL == "" {
		endpoint = oauth2google.Endpoint
	}
	margin := cfg.ExpiryMargin
	if margin == 0 {
		margin = token.DefaultExpiryMargin
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	revokeURL := cfg.RevokeURL
	if revokeURL == "" {
		revokeURL = defaultRevokeURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{GmailSendScope},
		},
		margin:     margin,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		revokeURL:  revokeURL,
		logger:     logger,
	}, nil
}

// AuthCodeURL returns the Google consent URL for the given state.
func (c *Client) AuthCodeURL(state string) string {
	return c.conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,                    // request a refresh token
		oauth2.SetAuthURLParam("prompt", "consent"), // always show the consent screen so a refresh token is issued
	)
}

// Exchange redeems an authorization code and returns a credential record
// for the subject, with the expiry margin already applied.
func (c *Client) Exchange(ctx context.Context, code, subject string) (*token.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := c.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}

	rec := token.NewRecord(subject, tok.AccessToken, tok.RefreshToken, tok.Expiry, c.margin)
	rec.TokenType = tok.TokenType
	if scope, ok := tok.Extra("scope").(string); ok {
		rec.Scope = scope
	}

	c.logger.Info("authorization code exchanged",
		logging.SubjectHash(subject),
		slog.Time("expiry", rec.Expiry),
		slog.Bool("has_refresh_token", rec.RefreshToken != ""))

	return rec, nil
}

// Revoke invalidates the credential at Google. Revocation is best effort:
// a rejection is logged and swallowed so the caller can still remove the
// local record.
func (c *Client) Revoke(ctx context.Context, rec *token.Record) {
	if rec == nil || rec.AccessToken == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data := url.Values{}
	data.Set("token", rec.AccessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.revokeURL, strings.NewReader(data.Encode()))
	if err != nil {
		c.logger.Warn("failed to build revoke request", logging.Err(err))
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("failed to revoke token at google",
			logging.SubjectHash(rec.Subject),
			logging.Err(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("google token revocation returned non-OK status",
			logging.SubjectHash(rec.Subject),
			slog.Int("status", resp.StatusCode))
		return
	}
	c.logger.Info("revoked token at google", logging.SubjectHash(rec.Subject))
}

// Refresher returns a token.Refresher backed by the same credentials.
func (c *Client) Refresher() *Refresher {
	return &Refresher{
		conf:       c.conf,
		margin:     c.margin,
		timeout:    c.timeout,
		httpClient: c.httpClient,
		logger:     c.logger,
	}
}
