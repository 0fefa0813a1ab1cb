package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"ncm-portal/internal/directory"
)

// SessionCookie is the name of the cookie carrying the opaque session token.
const SessionCookie = "ncm_session"

const (
	defaultSessionTTL  = 12 * time.Hour
	defaultSessionIdle = time.Hour
)

// Session is the server-side state for one authenticated browser session.
// The token in the cookie is an opaque random key into the store; identity
// data never leaves the server.
type Session struct {
	Account     string
	DisplayName string
	CreatedAt   time.Time
	LastSeen    time.Time
}

// Store abstracts session persistence so sessions can move to backing
// storage without touching the manager.
type Store interface {
	// Get retrieves a live session by token. Expired or idle-timed-out
	// sessions are reported as absent.
	Get(token string) (Session, bool)
	// Put creates or updates the session for token.
	Put(token string, session Session)
	// Delete removes the session for token. Unknown tokens are a no-op.
	Delete(token string)
}

// MemoryStore is the in-process Store implementation.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	ttl      time.Duration
	idle     time.Duration
	now      func() time.Time
}

// NewMemoryStore constructs a store. Non-positive durations fall back to the
// defaults.
func NewMemoryStore(ttl, idle time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	if idle <= 0 {
		idle = defaultSessionIdle
	}
	return &MemoryStore{
		sessions: make(map[string]Session),
		ttl:      ttl,
		idle:     idle,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Get retrieves a live session and refreshes its idle clock.
func (s *MemoryStore) Get(token string) (Session, bool) {
	if s == nil || token == "" {
		return Session{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[token]
	if !ok {
		return Session{}, false
	}
	now := s.now()
	if s.expired(session, now) {
		delete(s.sessions, token)
		return Session{}, false
	}
	session.LastSeen = now
	s.sessions[token] = session
	return session, true
}

// Put stores the session for token.
func (s *MemoryStore) Put(token string, session Session) {
	if s == nil || token == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = session
}

// Delete removes the session for token.
func (s *MemoryStore) Delete(token string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

// Sweep removes expired sessions. The manager's janitor calls it on a timer.
func (s *MemoryStore) Sweep() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for token, session := range s.sessions {
		if s.expired(session, now) {
			delete(s.sessions, token)
		}
	}
}

func (s *MemoryStore) expired(session Session, now time.Time) bool {
	if now.Sub(session.CreatedAt) > s.ttl {
		return true
	}
	if now.Sub(session.LastSeen) > s.idle {
		return true
	}
	return false
}

// Manager ties the session store to the cookie transport.
type Manager struct {
	store  Store
	secure bool
}

// NewManager constructs a session manager. secure marks cookies Secure and
// should be set whenever the portal is served over TLS.
func NewManager(store Store, secure bool) *Manager {
	return &Manager{store: store, secure: secure}
}

// Establish creates a session for identity and sets the cookie on w.
func (m *Manager) Establish(w http.ResponseWriter, identity *directory.Identity) (Session, error) {
	token, err := newToken()
	if err != nil {
		return Session{}, err
	}
	now := time.Now().UTC()
	session := Session{
		Account:     identity.AccountName,
		DisplayName: identity.DisplayName,
		CreatedAt:   now,
		LastSeen:    now,
	}
	m.store.Put(token, session)
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return session, nil
}

// Current returns the live session for the request, if any.
func (m *Manager) Current(r *http.Request) (Session, bool) {
	if m == nil || m.store == nil {
		return Session{}, false
	}
	cookie, err := r.Cookie(SessionCookie)
	if err != nil || cookie.Value == "" {
		return Session{}, false
	}
	return m.store.Get(cookie.Value)
}

// Destroy clears the session for the request. It is idempotent and succeeds
// when no session exists.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) {
	if m == nil || m.store == nil {
		return
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		m.store.Delete(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// StartJanitor sweeps the store until ctx is done.
func StartJanitor(ctx context.Context, store *MemoryStore, interval time.Duration) {
	if store == nil {
		return
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				store.Sweep()
			}
		}
	}()
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
