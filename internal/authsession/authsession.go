// Package authsession implements a demo pubkey-challenge/session flow. It is
// a supplemented feature pulled from original_source's api.rs
// (auth_challenge/create_session) that spec.md's distillation dropped but
// that a complete implementation of this system still exposes: real
// signature verification is out of scope, the same demo-token shortcut the
// original took, clearly labeled as such.
package authsession

import (
	"sync"

	"github.com/google/uuid"
)

// Store issues and tracks auth challenges and sessions in memory.
type Store struct {
	mu         sync.Mutex
	challenges map[string]string // pubkey -> nonce
	sessions   map[string]string // token -> user id
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		challenges: make(map[string]string),
		sessions:   make(map[string]string),
	}
}

// Challenge issues a fresh nonce for pubkey to sign.
func (s *Store) Challenge(pubkey string) string {
	nonce := uuid.NewString()
	s.mu.Lock()
	s.challenges[pubkey] = nonce
	s.mu.Unlock()
	return nonce
}

// CreateSession issues a demo session token for pubkey. Signature
// verification against the issued challenge is not implemented — this
// mirrors the original's demo-token shortcut, not a production auth flow.
func (s *Store) CreateSession(pubkey string) string {
	token := "demo-token-for-" + pubkey

	s.mu.Lock()
	s.sessions[token] = pubkey
	delete(s.challenges, pubkey)
	s.mu.Unlock()

	return token
}

// UserFor resolves a session token back to the user id that created it.
func (s *Store) UserFor(token string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.sessions[token]
	return user, ok
}
