package token

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/liquidmail/liquidmail/internal/logging"
)

// FileStore persists credentials in a single JSON file, keyed by subject.
// It is meant for single-user deployments where running a database would
// be overkill. Writes go through a temp file and rename so a crash never
// leaves a half-written token file behind.
type FileStore struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

// NewFileStore creates a FileStore backed by the given path. The parent
// directory is created if missing. If logger is nil, slog.Default() is used.
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("token file path cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create token directory: %w", err)
		}
	}
	return &FileStore{path: path, logger: logger}, nil
}

// Save persists the record, replacing any credential for the same subject.
func (s *FileStore) Save(ctx context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if rec.Subject == "" {
		return fmt.Errorf("record subject cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.readAll()
	if err != nil {
		return err
	}
	recs[rec.Subject] = rec.Clone()

	if err := s.writeAll(recs); err != nil {
		return err
	}

	s.logger.Debug("saved credential",
		logging.SubjectHash(rec.Subject),
		slog.Time("expiry", rec.Expiry))
	return nil
}

// Load returns the stored credential for the subject.
func (s *FileStore) Load(ctx context.Context, subject string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.readAll()
	if err != nil {
		return nil, err
	}
	rec, ok := recs[subject]
	if !ok {
		return nil, fmt.Errorf("%w: no credential for subject", ErrNotConnected)
	}
	return rec.Clone(), nil
}

// Delete removes the credential for the subject.
func (s *FileStore) Delete(ctx context.Context, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.readAll()
	if err != nil {
		return err
	}
	if _, ok := recs[subject]; !ok {
		return nil
	}
	delete(recs, subject)

	if err := s.writeAll(recs); err != nil {
		return err
	}

	s.logger.Info("deleted credential", logging.SubjectHash(subject))
	return nil
}

// Close is a no-op for file-backed storage.
func (s *FileStore) Close() error {
	return nil
}

// Path returns the file the store reads and writes.
func (s *FileStore) Path() string {
	return s.path
}

// readAll loads the token file into a map. A missing file is an empty
// store. A malformed file is also treated as empty so the subject is
// reported as not connected and re-authorization replaces the bad data;
// only I/O failures propagate as storage errors.
func (s *FileStore) readAll() (map[string]*Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*Record{}, nil
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	recs := map[string]*Record{}
	if err := json.Unmarshal(data, &recs); err != nil {
		s.logger.Warn("token file malformed, treating as empty", logging.Err(err))
		return map[string]*Record{}, nil
	}
	return recs, nil
}

func (s *FileStore) writeAll(recs map[string]*Record) error {
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode tokens: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".tokens-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp token file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set token file mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close token file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
