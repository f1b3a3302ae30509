package token

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/liquidmail/liquidmail/internal/logging"
)

// PostgresStore persists credentials in the gmail_tokens table for
// multi-tenant deployments. Saves insert a new row rather than updating
// in place; Load returns the newest row per subject, so older rows remain
// as an audit trail until pruned.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore opens a connection pool for the given DSN and verifies
// connectivity. If logger is nil, slog.Default() is used.
func NewPostgresStore(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return NewPostgresStoreWithDB(db, logger), nil
}

// NewPostgresStoreWithDB wraps an existing database handle. The caller
// keeps ownership of nothing: Close closes the handle.
func NewPostgresStoreWithDB(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

// Save inserts a new credential row for the record's subject.
func (s *PostgresStore) Save(ctx context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if rec.Subject == "" {
		return fmt.Errorf("record subject cannot be empty")
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO gmail_tokens (subject, access_token, refresh_token, expiry, scope, token_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	expiry := sql.NullTime{Time: rec.Expiry, Valid: !rec.Expiry.IsZero()}
	if _, err := s.db.ExecContext(ctx, query,
		rec.Subject, rec.AccessToken, rec.RefreshToken, expiry,
		rec.Scope, rec.TokenType, createdAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	s.logger.Debug("saved credential",
		logging.SubjectHash(rec.Subject),
		slog.Time("expiry", rec.Expiry))
	return nil
}

// Load returns the newest credential row for the subject.
func (s *PostgresStore) Load(ctx context.Context, subject string) (*Record, error) {
	query := `
		SELECT subject, access_token, refresh_token, expiry, scope, token_type, created_at
		FROM gmail_tokens
		WHERE subject = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	rec := &Record{}
	var expiry sql.NullTime
	err := s.db.QueryRowContext(ctx, query, subject).Scan(
		&rec.Subject, &rec.AccessToken, &rec.RefreshToken, &expiry,
		&rec.Scope, &rec.TokenType, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no credential for subject", ErrNotConnected)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if expiry.Valid {
		rec.Expiry = expiry.Time
	}
	return rec, nil
}

// Delete removes all credential rows for the subject.
func (s *PostgresStore) Delete(ctx context.Context, subject string) error {
	query := `
		DELETE FROM gmail_tokens
		WHERE subject = $1
	`
	if _, err := s.db.ExecContext(ctx, query, subject); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	s.logger.Info("deleted credential", logging.SubjectHash(subject))
	return nil
}

// PruneSuperseded removes every credential row that a newer row for the
// same subject has replaced. Saves insert rather than update, so the
// table grows with each refresh until pruned. Returns the number of rows
// removed.
func (s *PostgresStore) PruneSuperseded(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM gmail_tokens
		WHERE id NOT IN (
			SELECT DISTINCT ON (subject) id
			FROM gmail_tokens
			ORDER BY subject, created_at DESC, id DESC
		)
	`
	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	pruned, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	if pruned > 0 {
		s.logger.Info("pruned superseded credentials", slog.Int64("rows", pruned))
	}
	return pruned, nil
}

// Close closes the underlying database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying handle, used by the migration command.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

var _ Store = (*PostgresStore)(nil)
