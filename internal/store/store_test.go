package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pavelanni/paperdash/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTokenLifecycle(t *testing.T) {
	s := newTestStore(t)

	// Empty store has no token.
	tok, err := s.LoadToken()
	if err != nil {
		t.Fatalf("LoadToken: %v", err)
	}
	if tok != nil {
		t.Fatalf("expected no token, got %+v", tok)
	}

	if err := s.SaveToken("abc", "http://localhost:8000/api"); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	tok, err = s.LoadToken()
	if err != nil {
		t.Fatalf("LoadToken: %v", err)
	}
	if tok == nil || tok.Token != "abc" {
		t.Fatalf("expected token abc, got %+v", tok)
	}
	if tok.APIBase != "http://localhost:8000/api" {
		t.Errorf("expected api base to round trip, got %q", tok.APIBase)
	}

	// Saving again replaces, never duplicates.
	if err := s.SaveToken("def", ""); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	tok, _ = s.LoadToken()
	if tok.Token != "def" {
		t.Errorf("expected token def, got %q", tok.Token)
	}

	if err := s.ClearToken(); err != nil {
		t.Fatalf("ClearToken: %v", err)
	}
	tok, _ = s.LoadToken()
	if tok != nil {
		t.Errorf("expected token cleared, got %+v", tok)
	}

	// Clearing twice is fine.
	if err := s.ClearToken(); err != nil {
		t.Errorf("ClearToken on empty store: %v", err)
	}
}

func TestBrowserSessions(t *testing.T) {
	s := newTestStore(t)

	a, err := s.CreateBrowserSession("token-a", "http://localhost:8000/api", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("CreateBrowserSession: %v", err)
	}
	b, err := s.CreateBrowserSession("token-b", "", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("CreateBrowserSession: %v", err)
	}
	if a == b || len(a) != 64 {
		t.Fatalf("expected distinct 64-char ids, got %q and %q", a, b)
	}

	got, err := s.GetBrowserSession(a)
	if err != nil {
		t.Fatalf("GetBrowserSession: %v", err)
	}
	if got == nil || got.Token != "token-a" || got.APIBase != "http://localhost:8000/api" {
		t.Fatalf("unexpected session %+v", got)
	}

	if err := s.DeleteBrowserSession(a); err != nil {
		t.Fatalf("DeleteBrowserSession: %v", err)
	}
	if got, _ := s.GetBrowserSession(a); got != nil {
		t.Errorf("expected session a gone, got %+v", got)
	}
	// Other browsers are untouched.
	if got, _ := s.GetBrowserSession(b); got == nil || got.Token != "token-b" {
		t.Errorf("expected session b to survive, got %+v", got)
	}

	if got, _ := s.GetBrowserSession("unknown"); got != nil {
		t.Errorf("expected nil for unknown id, got %+v", got)
	}
}

func TestBrowserSessionExpiry(t *testing.T) {
	s := newTestStore(t)

	expired, err := s.CreateBrowserSession("old", "", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("CreateBrowserSession: %v", err)
	}
	live, err := s.CreateBrowserSession("new", "", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("CreateBrowserSession: %v", err)
	}
	if got, _ := s.GetBrowserSession(expired); got != nil {
		t.Errorf("expected expired session to be hidden, got %+v", got)
	}

	if err := s.CleanupExpiredSessions(); err != nil {
		t.Fatalf("CleanupExpiredSessions: %v", err)
	}
	if got, _ := s.GetBrowserSession(live); got == nil {
		t.Error("cleanup removed a live session")
	}
}

func TestValues(t *testing.T) {
	s := newTestStore(t)

	v, err := s.GetValue("missing")
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if v != "" {
		t.Errorf("expected empty value, got %q", v)
	}

	tests := []struct {
		key, value string
	}{
		{"theme", "dark"},
		{"theme", "light"},
		{"last_subject", "7"},
	}
	for _, tt := range tests {
		if err := s.SetValue(tt.key, tt.value); err != nil {
			t.Fatalf("SetValue(%q): %v", tt.key, err)
		}
		got, err := s.GetValue(tt.key)
		if err != nil {
			t.Fatalf("GetValue(%q): %v", tt.key, err)
		}
		if got != tt.value {
			t.Errorf("GetValue(%q) = %q, want %q", tt.key, got, tt.value)
		}
	}

	if err := s.DeleteValue("theme"); err != nil {
		t.Fatalf("DeleteValue: %v", err)
	}
	if got, _ := s.GetValue("theme"); got != "" {
		t.Errorf("expected theme deleted, got %q", got)
	}
}

func TestPreferences(t *testing.T) {
	s := newTestStore(t)

	p, err := s.GetPreferences()
	if err != nil {
		t.Fatalf("GetPreferences: %v", err)
	}
	if p.Distribution != model.DefaultDistribution() {
		t.Errorf("expected default distribution, got %+v", p.Distribution)
	}

	want := Preferences{
		Engine:       model.EngineHybrid,
		Distribution: model.Distribution{Easy: 20, Medium: 40, Hard: 40},
		Language:     "ru",
	}
	if err := s.SavePreferences(want); err != nil {
		t.Fatalf("SavePreferences: %v", err)
	}
	got, err := s.GetPreferences()
	if err != nil {
		t.Fatalf("GetPreferences: %v", err)
	}
	if got != want {
		t.Errorf("GetPreferences = %+v, want %+v", got, want)
	}
}

func TestPreferencesCorrupt(t *testing.T) {
	s := newTestStore(t)

	if err := s.SetValue(preferencesKey, "{not json"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	p, err := s.GetPreferences()
	if err != nil {
		t.Fatalf("GetPreferences: %v", err)
	}
	if p.Distribution != model.DefaultDistribution() {
		t.Errorf("expected defaults for corrupt value, got %+v", p)
	}

	if err := s.SetValue(preferencesKey, `{"engine":"llm","distribution":{"easy":90,"medium":90,"hard":90}}`); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	p, _ = s.GetPreferences()
	if p.Engine != model.EngineLLM {
		t.Errorf("expected engine kept, got %q", p.Engine)
	}
	if p.Distribution != model.DefaultDistribution() {
		t.Errorf("expected invalid distribution replaced, got %+v", p.Distribution)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paperdash.db")

	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.SaveToken("persisted", ""); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	s.Close()

	s, err = New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	tok, err := s.LoadToken()
	if err != nil {
		t.Fatalf("LoadToken: %v", err)
	}
	if tok == nil || tok.Token != "persisted" {
		t.Errorf("expected persisted token, got %+v", tok)
	}
}
