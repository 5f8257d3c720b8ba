package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"time"
)

// SavedToken is the persisted access token.
type SavedToken struct {
	Token   string
	APIBase string
	SavedAt time.Time
}

// SaveToken replaces the stored access token.
func (s *Store) SaveToken(token, apiBase string) error {
	now := time.Now()
	_, err := s.db.Exec(
		`INSERT INTO auth_tokens (id, token, api_base, saved_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET token = ?, api_base = ?, saved_at = ?`,
		token, apiBase, now, token, apiBase, now,
	)
	return err
}

// LoadToken returns the stored token, or nil if none is stored.
func (s *Store) LoadToken() (*SavedToken, error) {
	var t SavedToken
	err := s.db.QueryRow(
		`SELECT token, api_base, saved_at FROM auth_tokens WHERE id = 1`,
	).Scan(&t.Token, &t.APIBase, &t.SavedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ClearToken removes the stored token.
func (s *Store) ClearToken() error {
	_, err := s.db.Exec(`DELETE FROM auth_tokens WHERE id = 1`)
	return err
}

// BrowserSession binds a dashboard session cookie to the backend token
// the browser signed in with.
type BrowserSession struct {
	ID        string
	Token     string
	APIBase   string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// CreateBrowserSession stores token under a new random session id.
func (s *Store) CreateBrowserSession(token, apiBase string, expiresAt time.Time) (string, error) {
	id, err := generateSessionID()
	if err != nil {
		return "", err
	}
	_, err = s.db.Exec(
		`INSERT INTO browser_sessions (id, token, api_base, created_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
		id, token, apiBase, time.Now(), expiresAt,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetBrowserSession returns the session with the given id, or nil if it
// does not exist or has expired.
func (s *Store) GetBrowserSession(id string) (*BrowserSession, error) {
	var bs BrowserSession
	err := s.db.QueryRow(
		`SELECT id, token, api_base, created_at, expires_at FROM browser_sessions WHERE id = ?`, id,
	).Scan(&bs.ID, &bs.Token, &bs.APIBase, &bs.CreatedAt, &bs.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !time.Now().Before(bs.ExpiresAt) {
		_ = s.DeleteBrowserSession(id)
		return nil, nil
	}
	return &bs, nil
}

// DeleteBrowserSession removes a session.
func (s *Store) DeleteBrowserSession(id string) error {
	_, err := s.db.Exec(`DELETE FROM browser_sessions WHERE id = ?`, id)
	return err
}

// CleanupExpiredSessions removes all expired browser sessions.
func (s *Store) CleanupExpiredSessions() error {
	_, err := s.db.Exec(`DELETE FROM browser_sessions WHERE expires_at < ?`, time.Now())
	return err
}

func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
