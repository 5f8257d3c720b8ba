package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/paperdash/internal/model"
	"github.com/pavelanni/paperdash/internal/store"
)

// BrowserTTL caps a dashboard sign-in. A token that expires sooner ends
// the browser session with it.
const BrowserTTL = 24 * time.Hour

// ErrTokenExpired is returned by Start for a token that is already past
// its expiry.
var ErrTokenExpired = errors.New("token already expired")

// BrowserStore is the durable storage behind Browsers.
type BrowserStore interface {
	CreateBrowserSession(token, apiBase string, expiresAt time.Time) (string, error)
	GetBrowserSession(id string) (*store.BrowserSession, error)
	DeleteBrowserSession(id string) error
	CleanupExpiredSessions() error
}

// Browser is one signed-in dashboard visitor.
type Browser struct {
	ID       string
	Token    string
	Identity *model.Identity
}

// Browsers keeps one backend token per dashboard browser, keyed by the
// id in its session cookie. Signing one browser in or out never affects
// another, or the CLI's Session.
type Browsers struct {
	store BrowserStore
	now   func() time.Time
}

// NewBrowsers creates a manager backed by st.
func NewBrowsers(st BrowserStore) *Browsers {
	return &Browsers{store: st, now: time.Now}
}

// Start records a freshly issued token and returns the new browser
// session.
func (b *Browsers) Start(token, apiBase string) (*Browser, error) {
	id := identityFromToken(token)
	expires := b.now().Add(BrowserTTL)
	if id.ExpiresAt != nil && id.ExpiresAt.Before(expires) {
		expires = *id.ExpiresAt
	}
	if !b.now().Before(expires) {
		return nil, ErrTokenExpired
	}
	sid, err := b.store.CreateBrowserSession(token, apiBase, expires)
	if err != nil {
		return nil, fmt.Errorf("create browser session: %w", err)
	}
	return &Browser{ID: sid, Token: token, Identity: id}, nil
}

// Lookup returns the browser session for a cookie value, or nil when it
// is unknown or expired.
func (b *Browsers) Lookup(id string) (*Browser, error) {
	if id == "" {
		return nil, nil
	}
	bs, err := b.store.GetBrowserSession(id)
	if err != nil {
		return nil, fmt.Errorf("get browser session: %w", err)
	}
	if bs == nil {
		return nil, nil
	}
	return &Browser{ID: bs.ID, Token: bs.Token, Identity: identityFromToken(bs.Token)}, nil
}

// End forgets one browser session.
func (b *Browsers) End(id string) error {
	if id == "" {
		return nil
	}
	if err := b.store.DeleteBrowserSession(id); err != nil {
		return fmt.Errorf("delete browser session: %w", err)
	}
	return nil
}

// Cleanup drops every expired browser session.
func (b *Browsers) Cleanup() error {
	return b.store.CleanupExpiredSessions()
}
