package token

import "sync"

// subjectLocks hands out one mutex per subject, created lazily on first
// use. Locks are never shared across subjects and never removed; the
// arena grows with the set of connected subjects, which is small.
type subjectLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSubjectLocks() *subjectLocks {
	return &subjectLocks{
		locks: make(map[string]*sync.Mutex),
	}
}

// get returns the mutex for the subject, creating it if needed.
func (l *subjectLocks) get(subject string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.locks[subject]
	if !ok {
		m = &sync.Mutex{}
		l.locks[subject] = m
	}
	return m
}

// len returns the number of allocated locks.
func (l *subjectLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
