package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry creates and retrieves sessions over a pluggable Store and
// serializes access per session. A stale or unknown explicit session id is
// not an error: it becomes a fresh session under that id, which keeps
// client retries idempotent.
type Registry struct {
	store Store
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock is reference-counted so the locks map shrinks back once the
// last holder releases.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewRegistry(store Store) (*Registry, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	return &Registry{
		store: store,
		now:   time.Now,
		locks: make(map[string]*sessionLock),
	}, nil
}

// ResolveID normalizes a caller-supplied session id, minting a fresh one
// when it is empty. Callers must resolve the id and Acquire its lock
// before loading the session, so a concurrent turn cannot hand them a
// snapshot that is about to go stale.
func (r *Registry) ResolveID(sessionID string) string {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return uuid.NewString()
	}
	return sessionID
}

// Acquire locks the named session for one turn. The returned func releases
// the lock and must be called on turn completion.
func (r *Registry) Acquire(sessionID string) func() {
	r.mu.Lock()
	lock, ok := r.locks[sessionID]
	if !ok {
		lock = &sessionLock{}
		r.locks[sessionID] = lock
	}
	lock.refs++
	r.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		r.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(r.locks, sessionID)
		}
		r.mu.Unlock()
	}
}

// GetOrCreate resolves an existing session or creates a new one. When
// sessionID is empty a fresh id is minted; when it is set but unknown, the
// session is created under the supplied id.
func (r *Registry) GetOrCreate(ctx context.Context, sessionID, userID string) (*Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID != "" {
		sess, err := r.store.Load(ctx, sessionID)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
	}

	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if strings.TrimSpace(userID) == "" {
		userID = "anon"
	}

	sess := New(sessionID, userID, r.now())
	if err := r.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// AppendTurn appends to the session history and persists.
func (r *Registry) AppendTurn(ctx context.Context, sess *Session, role, text string) error {
	if sess == nil {
		return ErrNilSession
	}
	sess.AppendTurn(role, text, r.now())
	return r.store.Save(ctx, sess)
}

// WriteState sets one state key and persists immediately, so tool side
// effects survive a later turn failure.
func (r *Registry) WriteState(ctx context.Context, sess *Session, key string, value any) error {
	if sess == nil {
		return ErrNilSession
	}
	if err := sess.WriteState(key, value, r.now()); err != nil {
		return err
	}
	return r.store.Save(ctx, sess)
}

// Save persists the session as-is.
func (r *Registry) Save(ctx context.Context, sess *Session) error {
	if sess == nil {
		return ErrNilSession
	}
	sess.Touch(r.now())
	return r.store.Save(ctx, sess)
}

// Load fetches a session without the create fallback.
func (r *Registry) Load(ctx context.Context, sessionID string) (*Session, error) {
	return r.store.Load(ctx, sessionID)
}
