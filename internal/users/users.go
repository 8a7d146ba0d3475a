// Package users is an in-memory user registry: registration and status
// lookup. A supplemented feature pulled from original_source's api.rs
// (register_user/user_status), which kept its own TODO about eventually
// backing this with a real database — carried forward unchanged since
// SPEC_FULL.md keeps all core state in memory.
package users

import (
	"errors"
	"sync"
	"time"
)

// Status is a user's account state.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Record is one registered user.
type Record struct {
	ID           string
	PubKey       string
	Status       Status
	RegisteredAt time.Time
}

// ErrAlreadyRegistered is returned by Register for a user id already on file.
var ErrAlreadyRegistered = errors.New("users: user id already registered")

// ErrNotFound is returned when a user id has no record.
var ErrNotFound = errors.New("users: not found")

// Registry is an in-memory user store.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]*Record
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{byID: make(map[string]*Record)}
}

// Register creates a new user record keyed by user id.
func (r *Registry) Register(userID, pubkey string) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[userID]; exists {
		return Record{}, ErrAlreadyRegistered
	}

	rec := &Record{
		ID:           userID,
		PubKey:       pubkey,
		Status:       StatusActive,
		RegisteredAt: time.Now(),
	}
	r.byID[userID] = rec
	return *rec, nil
}

// Status returns a user's current record.
func (r *Registry) Status(userID string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[userID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return *rec, nil
}
