package goSession

import (
	"context"
	"sync"

	"github.com/MrEthical07/goSession/credential"
)

type invalidateOutcome uint8

const (
	// invalidateDisarmed: the latch was already consumed or never armed.
	invalidateDisarmed invalidateOutcome = iota
	// invalidateStale: the rejected credential is not the one the session holds.
	invalidateStale
	// invalidateApplied: this call consumed the latch and ended the session.
	invalidateApplied
)

// machine is the single writer of session state. Every transition, together
// with the credential store write that belongs to it, runs under mu, so
// readers only ever observe whole states and concurrent transitions apply in
// some serial order.
type machine struct {
	mu         sync.Mutex
	store      credential.Store
	status     Status
	identity   *Identity
	credential string
	version    uint64

	// armed is the invalidation latch. Entering Authenticated arms it; the
	// first accepted rejection, or a logout, disarms it.
	armed bool

	ready     chan struct{}
	readyOnce sync.Once

	subs    map[uint64]chan Snapshot
	nextSub uint64
}

func newMachine(store credential.Store) *machine {
	return &machine{
		store:  store,
		status: StatusBooting,
		ready:  make(chan struct{}),
		subs:   make(map[uint64]chan Snapshot),
	}
}

func (m *machine) snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *machine) snapshotLocked() Snapshot {
	return Snapshot{
		Status:   m.status,
		Identity: m.identity,
		Version:  m.version,
	}
}

// resolveBoot adopts the rehydrated identity. It is discarded when the
// session already left Booting through login, register, or logout.
func (m *machine) resolveBoot(identity *Identity, token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusBooting {
		return false
	}
	m.setAuthenticatedLocked(identity, token)
	return true
}

// failBoot clears the stored credential and resolves to Anonymous. The
// store is left alone when the session already left Booting, since it may
// now hold a credential from a newer login.
func (m *machine) failBoot(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusBooting {
		return false, nil
	}
	err := m.store.Clear(ctx)
	m.setAnonymousLocked()
	return true, err
}

// bootAnonymous resolves a boot that found no stored credential.
func (m *machine) bootAnonymous() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusBooting {
		return false
	}
	m.setAnonymousLocked()
	return true
}

// adopt persists token and enters Authenticated. When the store write fails
// the session is left exactly as it was.
func (m *machine) adopt(ctx context.Context, identity *Identity, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Save(ctx, token); err != nil {
		return err
	}
	m.setAuthenticatedLocked(identity, token)
	return nil
}

// reset clears the store and enters Anonymous from any state. The
// transition happens even when the store cannot be cleared.
func (m *machine) reset(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	userID := m.userIDLocked()
	err := m.store.Clear(ctx)
	m.setAnonymousLocked()
	return userID, err
}

// invalidate consumes the latch on behalf of a rejected request that was
// stamped with rejected. A rejection of a different credential is stale.
// An unstamped rejection ("") consumes the latch unless the store holds the
// session's credential again, in which case the request predates it.
func (m *machine) invalidate(ctx context.Context, rejected string) (invalidateOutcome, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.armed {
		return invalidateDisarmed, "", nil
	}
	switch {
	case rejected == "":
		if token, ok, err := m.store.Load(ctx); err == nil && ok && token == m.credential {
			return invalidateStale, m.userIDLocked(), nil
		}
	case rejected != m.credential:
		return invalidateStale, m.userIDLocked(), nil
	}

	userID := m.userIDLocked()
	err := m.store.Clear(ctx)
	m.setAnonymousLocked()
	return invalidateApplied, userID, err
}

func (m *machine) userIDLocked() string {
	if m.identity == nil {
		return ""
	}
	return m.identity.ID
}

func (m *machine) setAuthenticatedLocked(identity *Identity, token string) {
	m.status = StatusAuthenticated
	m.identity = identity
	m.credential = token
	m.armed = true
	m.publishLocked()
}

func (m *machine) setAnonymousLocked() {
	m.status = StatusAnonymous
	m.identity = nil
	m.credential = ""
	m.armed = false
	m.publishLocked()
}

func (m *machine) publishLocked() {
	m.version++
	m.readyOnce.Do(func() { close(m.ready) })

	snap := m.snapshotLocked()
	for _, ch := range m.subs {
		offerLatest(ch, snap)
	}
}

// offerLatest replaces whatever the subscriber has not consumed yet, so a
// slow reader sees the newest state rather than a backlog.
func offerLatest(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

func (m *machine) subscribe() (<-chan Snapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan Snapshot, 1)
	ch <- m.snapshotLocked()
	m.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if _, ok := m.subs[id]; !ok {
				return
			}
			delete(m.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

func (m *machine) closeSubscribers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
}
