package session

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/aplatt/steamrail/backend/internal/model/session"
)

// Store owns the token -> session mapping. All access goes through its API;
// there is no ambient shared state.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]session.Session
	now      func() time.Time
}

// NewStore bootstraps an empty in-memory session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]session.Session),
		now:      time.Now,
	}
}

// newToken returns 32 bytes of crypto/rand entropy, hex-encoded.
func newToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("session: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// Create mints a fresh anonymous session with an unguessable token.
func (s *Store) Create() session.Session {
	sess := session.Session{
		Token:    newToken(),
		LastSeen: s.now().UTC(),
	}

	s.mu.Lock()
	s.sessions[sess.Token] = sess
	s.mu.Unlock()

	return sess
}

// Resolve looks up a session by token.
func (s *Store) Resolve(token string) (session.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[token]
	return sess, ok
}

// Rotate replaces oldToken with a fresh one, carrying over any linked
// identity, and deletes the old entry so it never resolves again. An
// unrecognized token degrades to a fresh anonymous session: the protocol does
// not distinguish "resume" from "establish", so intent is inferred from
// whether the presented token is known.
func (s *Store) Rotate(oldToken string) session.Session {
	next := session.Session{
		Token:    newToken(),
		LastSeen: s.now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.sessions[oldToken]; ok {
		next.Identity = prev.Identity
		delete(s.sessions, oldToken)
	}
	s.sessions[next.Token] = next

	return next
}

// LinkIdentity attaches an external identity to the session referenced by
// token. Idempotent; reports whether the token resolved.
func (s *Store) LinkIdentity(token string, identity session.ExternalIdentity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return false
	}
	sess.Identity = &identity
	s.sessions[token] = sess
	return true
}

// Touch refreshes the session's last-seen time. Any inbound traffic counts as
// a liveness signal.
func (s *Store) Touch(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return
	}
	sess.LastSeen = s.now().UTC()
	s.sessions[token] = sess
}

// Discard removes a session outright. Used when a connection rebinds away
// from a token it minted at open.
func (s *Store) Discard(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ExpireIdle removes sessions whose last-seen exceeds ttl and whose token is
// not in the active set, returning how many were dropped. Sessions with a
// live connection are never expired.
func (s *Store) ExpireIdle(ttl time.Duration, active map[string]bool) int {
	cutoff := s.now().UTC().Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := 0
	for token, sess := range s.sessions {
		if active[token] {
			continue
		}
		if sess.LastSeen.Before(cutoff) {
			delete(s.sessions, token)
			dropped++
		}
	}
	return dropped
}
