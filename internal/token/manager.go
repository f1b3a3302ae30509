package token

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/liquidmail/liquidmail/internal/logging"
)

// Manager orchestrates the credential lifecycle: lookup, validity check,
// refresh, persist. It is the single gate every outbound Gmail call goes
// through to obtain a bearer token.
type Manager struct {
	store     Store
	refresher Refresher
	locks     *subjectLocks
	logger    *slog.Logger
}

// NewManager creates a Manager over the given store and refresher.
// If logger is nil, slog.Default() is used.
func NewManager(store Store, refresher Refresher, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:     store,
		refresher: refresher,
		locks:     newSubjectLocks(),
		logger:    logger,
	}
}

// GetValidAccessToken returns a usable access token for the subject,
// refreshing and persisting the stored credential when it has expired.
//
// Callers for the same subject are serialized, so at most one refresh is
// in flight per subject; a caller that blocked behind a refresh sees the
// updated record and takes the fast path. Different subjects never
// contend.
//
// Returns an error wrapping ErrNotConnected when the subject has no
// stored credential, the credential is expired with no refresh token, or
// the provider rejects the refresh. Storage failures propagate as-is.
func (m *Manager) GetValidAccessToken(ctx context.Context, subject string) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("subject cannot be empty")
	}

	lock := m.locks.get(subject)
	lock.Lock()
	defer lock.Unlock()

	rec, err := m.store.Load(ctx, subject)
	if err != nil {
		return "", err
	}

	if rec.Valid(time.Now()) {
		return rec.AccessToken, nil
	}

	if !rec.CanRefresh() {
		m.logger.Info("credential expired with no refresh token",
			logging.SubjectHash(subject))
		return "", fmt.Errorf("%w: credential expired and cannot be refreshed", ErrNotConnected)
	}

	refreshed, err := m.refresher.Refresh(ctx, rec)
	if err != nil {
		m.logger.Warn("token refresh rejected",
			logging.SubjectHash(subject),
			logging.Err(err))
		return "", fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	if refreshed == nil || refreshed.AccessToken == "" {
		return "", fmt.Errorf("%w: refresh returned no access token", ErrNotConnected)
	}
	if refreshed.Subject == "" {
		refreshed.Subject = subject
	}

	// Issuers often omit the refresh token on refresh responses; the
	// previously stored one must never be lost.
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = rec.RefreshToken
	}

	if err := m.store.Save(ctx, refreshed); err != nil {
		return "", fmt.Errorf("failed to persist refreshed credential: %w", err)
	}

	m.logger.Info("access token refreshed",
		logging.SubjectHash(subject),
		slog.Time("expiry", refreshed.Expiry))

	return refreshed.AccessToken, nil
}
