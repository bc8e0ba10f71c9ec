package auth

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func newRevocations(t *testing.T, now *time.Time) *TokenRevocationStore {
	t.Helper()
	s := NewTokenRevocationStore(time.Hour)
	s.now = func() time.Time { return *now }
	t.Cleanup(s.Close)
	return s
}

func TestRevocation_LifeOfAnEntry(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	s := newRevocations(t, &now)

	s.Revoke("jti-1", now.Add(15*time.Minute))
	if !s.IsRevoked("jti-1") {
		t.Fatal("expected jti-1 to be revoked")
	}
	if s.IsRevoked("jti-2") {
		t.Error("unknown jti reported as revoked")
	}

	now = now.Add(15 * time.Minute)
	if s.IsRevoked("jti-1") {
		t.Error("entry should lapse when the token expires")
	}
	if got := s.sweep(); got != 1 {
		t.Errorf("sweep removed %d entries, want 1", got)
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d after sweep, want 0", s.Len())
	}
}

func TestRevocation_IgnoresExpiredTokens(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	s := newRevocations(t, &now)

	s.Revoke("old", now.Add(-time.Second))
	s.Revoke("edge", now)
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
}

func TestRevocation_Concurrent(t *testing.T) {
	s := NewTokenRevocationStore(time.Millisecond)
	defer s.Close()

	exp := time.Now().Add(time.Hour)
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			s.Revoke(fmt.Sprintf("jti-%d", i%20), exp)
		}(i)
		go func() {
			defer wg.Done()
			s.IsRevoked("jti-0")
		}()
	}
	wg.Wait()

	if s.Len() != 20 {
		t.Errorf("Len = %d, want 20", s.Len())
	}
	s.Close()
	s.Close()
}
