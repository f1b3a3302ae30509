// Package token manages stored Gmail credentials and their lifecycle.
//
// A credential is stored as a Record keyed by subject (the user identity,
// typically an email address). The package offers three interchangeable
// Store implementations:
//   - FileStore: single JSON file on disk for single-user deployments
//   - PostgresStore: gmail_tokens table for multi-tenant deployments
//   - MemoryStore: in-memory map, used in tests and ephemeral setups
//
// The Manager ties a Store to a Refresher and exposes GetValidAccessToken,
// the single entry point every outbound Gmail call goes through:
//
//	mgr := token.NewManager(store, refresher, logger)
//	accessToken, err := mgr.GetValidAccessToken(ctx, subject)
//	if errors.Is(err, token.ErrNotConnected) {
//	    // surface "reconnect required" to the caller
//	}
//
// Expiry times are stored with a safety margin already subtracted, so
// validity checks are plain time comparisons everywhere else in the
// codebase. When a refresh response omits a refresh token the previous
// one is carried forward, never dropped.
//
// The Manager serializes refreshes per subject: concurrent callers for the
// same subject block until the first one has refreshed and persisted,
// then take the fast path against the updated record.
package token
