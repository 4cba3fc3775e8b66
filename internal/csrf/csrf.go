// Package csrf implements double-submit CSRF protection for authenticated
// sessions. Tokens are opaque random values held in process memory, keyed by
// identity; a restart revokes every outstanding token. The store is injected
// where it is needed so it can later be swapped for a distributed backend
// without touching call sites.
package csrf

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"
)

const (
	// DefaultTTL is how long an issued token stays valid
	DefaultTTL = 24 * time.Hour
	// DefaultSweepInterval is how often expired tokens are purged
	DefaultSweepInterval = time.Hour
	// tokenBytes is the random length of a token before hex encoding
	tokenBytes = 32
)

type record struct {
	token   string
	expires time.Time
}

// Store issues and validates per-identity CSRF tokens. Safe for concurrent
// use; the critical sections are single map operations, never blocking one
// identity's request on another's.
type Store struct {
	mu      sync.Mutex
	records map[string]record
	ttl     time.Duration
	done    chan struct{}
	once    sync.Once
}

// NewStore creates a token store and starts the background sweeper. Call
// Stop on shutdown. Non-positive durations fall back to the defaults.
func NewStore(ttl, sweepInterval time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	s := &Store{
		records: make(map[string]record),
		ttl:     ttl,
		done:    make(chan struct{}),
	}

	go s.sweep(sweepInterval)
	return s
}

// Issue generates a fresh token for an identity, superseding any prior token.
func (s *Store) Issue(identityID string) (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("failed to generate csrf token: %w", err)
	}
	token := hex.EncodeToString(raw)

	s.mu.Lock()
	s.records[identityID] = record{
		token:   token,
		expires: time.Now().Add(s.ttl),
	}
	s.mu.Unlock()

	return token, nil
}

// Validate checks a presented token. Safe methods and unauthenticated
// requests always pass; protection only binds to authenticated mutations.
// A token validates any number of times until it expires. Expired records
// are evicted on access.
func (s *Store) Validate(identityID string, methodIsSafe bool, presented string) bool {
	if methodIsSafe || identityID == "" {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[identityID]
	if !ok {
		return false
	}
	if time.Now().After(rec.expires) {
		delete(s.records, identityID)
		return false
	}
	return presented != "" && presented == rec.token
}

// Purge removes an identity's token, used on logout.
func (s *Store) Purge(identityID string) {
	s.mu.Lock()
	delete(s.records, identityID)
	s.mu.Unlock()
}

// Stop terminates the background sweeper
func (s *Store) Stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *Store) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for id, rec := range s.records {
				if now.After(rec.expires) {
					delete(s.records, id)
				}
			}
			s.mu.Unlock()
		}
	}
}
