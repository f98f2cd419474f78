package goSession

import (
	"time"

	"github.com/MrEthical07/goSession/api"
)

// Status is the session's trust state.
type Status uint8

const (
	// StatusBooting holds from construction until Initialize resolves.
	StatusBooting Status = iota
	// StatusAuthenticated means an identity and credential are held.
	StatusAuthenticated
	// StatusAnonymous is the unauthenticated terminal state.
	StatusAnonymous
)

func (s Status) String() string {
	switch s {
	case StatusBooting:
		return "booting"
	case StatusAuthenticated:
		return "authenticated"
	case StatusAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// Identity is the user profile the upstream returned for the credential.
// It is never modified after it is fetched.
type Identity struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
}

func identityFromUser(u api.User) *Identity {
	return &Identity{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

// Snapshot is the read-only session view handed to consumers. Identity is
// non-nil iff Status is StatusAuthenticated.
type Snapshot struct {
	Status   Status
	Identity *Identity
	// Version increases with every published transition.
	Version uint64
}

// Authenticated reports whether the snapshot holds an identity.
func (s Snapshot) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.Identity != nil
}

// InvalidationEvent is raised once when an authenticated session is ended
// by an upstream authorization rejection.
type InvalidationEvent struct {
	UserID     string
	EntryPath  string
	Method     string
	URL        string
	StatusCode int
	RequestID  string
	At         time.Time
}
