// Package google implements the Google OAuth side of the Gmail connect
// flow: building consent URLs, exchanging authorization codes, refreshing
// access tokens, and revoking credentials.
//
// The Client wraps an oauth2.Config built from deployment credentials and
// requests the gmail.send scope with offline access, so refresh tokens
// keep working after the browser session ends. Exchange and Refresh both
// produce token.Record values with the expiry safety margin already
// applied.
//
// The Refresher implements token.Refresher with a single, non-retried
// call to Google's token endpoint. Provider rejections keep the raw
// response in the error chain (*oauth2.RetrieveError).
//
// StateStore issues one-shot state parameters for CSRF protection during
// the authorization redirect; states expire automatically and can be
// claimed exactly once.
package google
