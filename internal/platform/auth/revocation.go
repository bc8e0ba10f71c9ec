package auth

import (
	"sync"
	"time"
)

// TokenRevocationStore remembers access tokens that were logged out before
// they expired, keyed by jti. It lives in process memory: a restart forgets
// revocations, which is bounded by the access token TTL.
type TokenRevocationStore struct {
	mu     sync.Mutex
	expiry map[string]time.Time
	now    func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewTokenRevocationStore starts a sweeper that drops entries whose token has
// expired. interval <= 0 sweeps every five minutes. Close stops the sweeper.
func NewTokenRevocationStore(interval time.Duration) *TokenRevocationStore {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	s := &TokenRevocationStore{
		expiry: make(map[string]time.Time),
		now:    time.Now,
		stop:   make(chan struct{}),
	}
	go s.sweepEvery(interval)
	return s
}

// Revoke blocks jti until expiresAt. A token that has already expired is not
// recorded, since verification rejects it anyway.
func (s *TokenRevocationStore) Revoke(jti string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !expiresAt.After(s.now()) {
		return
	}
	s.expiry[jti] = expiresAt
}

// IsRevoked reports whether jti was revoked and has not expired yet.
func (s *TokenRevocationStore) IsRevoked(jti string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.expiry[jti]
	return ok && exp.After(s.now())
}

// Len is the number of entries currently held.
func (s *TokenRevocationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expiry)
}

func (s *TokenRevocationStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *TokenRevocationStore) sweepEvery(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

// sweep removes expired entries and returns how many went.
func (s *TokenRevocationStore) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for jti, exp := range s.expiry {
		if !exp.After(now) {
			delete(s.expiry, jti)
			n++
		}
	}
	return n
}
