package capture

import (
	"errors"
	"sync"
	"time"
)

// ErrSessionNotFound is returned for unknown, expired or already saved sessions
var ErrSessionNotFound = errors.New("capture session not found")

// DefaultSessionTTL is how long a reconciled session stays editable
const DefaultSessionTTL = 30 * time.Minute

type sessionEntry struct {
	scope   string
	session *Session
	expires time.Time
}

// SessionStore keeps reconciled sessions that can still be edited and
// saved. Entries expire after ttl.
type SessionStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]*sessionEntry
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*sessionEntry),
	}
}

// Put keeps s under scope. Only ready and no-amount sessions are kept;
// the others have nothing left to do.
func (st *SessionStore) Put(scope string, s *Session) {
	if s.State != StateReady && s.State != StateNoAmount {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	st.pruneLocked()
	st.entries[s.ID] = &sessionEntry{scope: scope, session: s, expires: st.now().Add(st.ttl)}
}

// Update runs fn on the session with the lock held. fn sees a copy; the
// stored session only changes when fn succeeds.
func (st *SessionStore) Update(scope, id string, fn func(*Session) error) (Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.pruneLocked()
	e, ok := st.entries[id]
	if !ok || e.scope != scope {
		return Session{}, ErrSessionNotFound
	}

	working := *e.session
	if err := fn(&working); err != nil {
		return *e.session, err
	}
	*e.session = working
	e.expires = st.now().Add(st.ttl)
	return working, nil
}

// Get returns a copy of the session
func (st *SessionStore) Get(scope, id string) (Session, error) {
	return st.Update(scope, id, func(*Session) error { return nil })
}

// Delete forgets a session
func (st *SessionStore) Delete(scope, id string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if e, ok := st.entries[id]; ok && e.scope == scope {
		delete(st.entries, id)
	}
}

// Len reports how many sessions are held
func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.entries)
}

func (st *SessionStore) pruneLocked() {
	now := st.now()
	for id, e := range st.entries {
		if now.After(e.expires) {
			delete(st.entries, id)
		}
	}
}
