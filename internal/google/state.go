package google

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
)

// DefaultStateTTL is how long an issued state parameter stays claimable.
const DefaultStateTTL = 10 * time.Minute

// StateStore issues one-shot state parameters for the authorization
// redirect and maps each back to the subject it was issued for. States
// expire automatically and can be claimed exactly once.
type StateStore struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, string]
}

// NewStateStore creates a StateStore whose states expire after ttl.
// A non-positive ttl means DefaultStateTTL.
func NewStateStore(ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	cache := ttlcache.New(
		ttlcache.WithTTL[string, string](ttl),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go cache.Start()

	return &StateStore{cache: cache}
}

// Issue returns a fresh state parameter bound to the subject.
func (s *StateStore) Issue(subject string) string {
	state := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Set(state, subject, ttlcache.DefaultTTL)
	return state
}

// Claim redeems a state parameter, returning the subject it was issued
// for. Unknown, expired, and already-claimed states fail.
func (s *StateStore) Claim(state string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.cache.Get(state)
	if item == nil {
		return "", fmt.Errorf("unknown or expired state")
	}
	s.cache.Delete(state)
	return item.Value(), nil
}

// Len returns the number of outstanding states.
func (s *StateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}

// Close stops the expiration goroutine.
func (s *StateStore) Close() {
	s.cache.Stop()
}
