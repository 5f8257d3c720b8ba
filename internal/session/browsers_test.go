package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/paperdash/internal/store"
)

func newTestBrowsers(t *testing.T) (*Browsers, *store.Store) {
	t.Helper()
	st, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewBrowsers(st), st
}

func TestBrowsersAreIndependent(t *testing.T) {
	b, st := newTestBrowsers(t)

	alice, err := b.Start(signedToken(t, "alice", time.Now().Add(time.Hour)), "http://backend/api")
	require.NoError(t, err)
	bob, err := b.Start("opaque-bob", "http://backend/api")
	require.NoError(t, err)
	assert.NotEqual(t, alice.ID, bob.ID)
	assert.Equal(t, "alice", alice.Identity.Subject)

	got, err := b.Lookup(bob.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "opaque-bob", got.Token)

	require.NoError(t, b.End(alice.ID))
	got, err = b.Lookup(alice.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	got, err = b.Lookup(bob.ID)
	require.NoError(t, err)
	assert.NotNil(t, got, "ending one browser must not end another")

	// The CLI token lives elsewhere and is untouched.
	saved, err := st.LoadToken()
	require.NoError(t, err)
	assert.Nil(t, saved)
}

func TestBrowserLookupUnknown(t *testing.T) {
	b, _ := newTestBrowsers(t)
	for _, id := range []string{"", "not-a-session"} {
		got, err := b.Lookup(id)
		require.NoError(t, err)
		assert.Nil(t, got)
	}
	assert.NoError(t, b.End(""))
}

func TestBrowserSessionFollowsTokenExpiry(t *testing.T) {
	b, _ := newTestBrowsers(t)

	_, err := b.Start(signedToken(t, "alice", time.Now().Add(-time.Minute)), "")
	assert.ErrorIs(t, err, ErrTokenExpired)

	short, err := b.Start(signedToken(t, "alice", time.Now().Add(time.Hour)), "")
	require.NoError(t, err)
	require.NotNil(t, short.Identity.ExpiresAt)

	// The token's expiry wins over the longer browser TTL.
	b.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = b.Start(signedToken(t, "alice", time.Now().Add(time.Hour)), "")
	assert.ErrorIs(t, err, ErrTokenExpired)
}
