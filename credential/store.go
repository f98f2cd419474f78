package credential

import (
	"context"
	"errors"
	"sync"
)

// ErrEmptyCredential is returned by Save when the token is empty. An absent
// credential is expressed with Clear, never by storing "".
var ErrEmptyCredential = errors.New("empty credential")

// ErrStoreUnavailable wraps backend I/O failures.
var ErrStoreUnavailable = errors.New("credential store unavailable")

// Store holds at most one opaque credential.
//
// Each call completes its side effect before returning. Clear on an empty
// store is a no-op.
type Store interface {
	Save(ctx context.Context, token string) error
	Load(ctx context.Context) (token string, ok bool, err error)
	Clear(ctx context.Context) error
}

// MemoryStore keeps the credential in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
	set   bool
}

// NewMemoryStore returns an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// NewMemoryStoreWith returns a [MemoryStore] seeded with token.
func NewMemoryStoreWith(token string) *MemoryStore {
	s := &MemoryStore{}
	if token != "" {
		s.token = token
		s.set = true
	}
	return s
}

// Save replaces the held credential.
func (s *MemoryStore) Save(_ context.Context, token string) error {
	if token == "" {
		return ErrEmptyCredential
	}
	s.mu.Lock()
	s.token = token
	s.set = true
	s.mu.Unlock()
	return nil
}

// Load returns the held credential, if any.
func (s *MemoryStore) Load(context.Context) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.set, nil
}

// Clear forgets the held credential.
func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.set = false
	s.mu.Unlock()
	return nil
}
