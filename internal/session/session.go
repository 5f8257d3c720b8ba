package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pavelanni/paperdash/internal/model"
	"github.com/pavelanni/paperdash/internal/store"
)

// TokenStore is the durable storage behind a Session.
type TokenStore interface {
	SaveToken(token, apiBase string) error
	LoadToken() (*store.SavedToken, error)
	ClearToken() error
}

// Session is the process-wide "am I signed in" state. Create one at
// startup, Load it, and hand it to whatever needs the token.
type Session struct {
	store TokenStore
	now   func() time.Time

	mu       sync.RWMutex
	token    string
	identity *model.Identity
	onClear  []func()
}

// New creates an empty session backed by st.
func New(st TokenStore) *Session {
	return &Session{store: st, now: time.Now}
}

// Load reads the stored token. An expired token is discarded.
func (s *Session) Load() error {
	saved, err := s.store.LoadToken()
	if err != nil {
		return fmt.Errorf("load token: %w", err)
	}
	if saved == nil {
		return nil
	}
	id := identityFromToken(saved.Token)
	if id.ExpiresAt != nil && !s.now().Before(*id.ExpiresAt) {
		slog.Info("stored token expired, discarding", "expired_at", id.ExpiresAt)
		return s.Clear()
	}

	s.mu.Lock()
	s.token = saved.Token
	s.identity = id
	s.mu.Unlock()
	return nil
}

// Set stores a freshly issued token.
func (s *Session) Set(token, apiBase string) error {
	if err := s.store.SaveToken(token, apiBase); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	s.mu.Lock()
	s.token = token
	s.identity = identityFromToken(token)
	s.mu.Unlock()
	return nil
}

// Clear forgets the token in memory and in storage, then runs the
// OnClear hooks.
func (s *Session) Clear() error {
	s.mu.Lock()
	s.token = ""
	s.identity = nil
	hooks := append([]func(){}, s.onClear...)
	s.mu.Unlock()

	err := s.store.ClearToken()
	for _, fn := range hooks {
		fn()
	}
	if err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}

// OnClear registers fn to run after every Clear.
func (s *Session) OnClear(fn func()) {
	s.mu.Lock()
	s.onClear = append(s.onClear, fn)
	s.mu.Unlock()
}

// HandleUnauthorized is meant for the API client's 401 hook.
func (s *Session) HandleUnauthorized() {
	slog.Warn("backend rejected the session token, signing out")
	if err := s.Clear(); err != nil {
		slog.Error("failed to clear session", "error", err)
	}
}

// Token returns the bearer token, or "" when signed out or expired.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.expiredLocked() {
		return ""
	}
	return s.token
}

// Authenticated reports whether a usable token is held.
func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

// Identity returns what the token says about the user, or nil.
func (s *Session) Identity() *model.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" || s.expiredLocked() {
		return nil
	}
	return s.identity
}

func (s *Session) expiredLocked() bool {
	return s.identity != nil && s.identity.ExpiresAt != nil && !s.now().Before(*s.identity.ExpiresAt)
}

// identityFromToken reads subject and expiry from a JWT without verifying
// it; the backend is the only party that can. Opaque tokens yield an
// identity with no expiry.
func identityFromToken(token string) *model.Identity {
	id := &model.Identity{}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return id
	}
	id.Subject = claims.Subject
	if claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time
		id.ExpiresAt = &exp
	}
	return id
}
