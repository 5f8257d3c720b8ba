package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pavelanni/paperdash/internal/model"
)

const preferencesKey = "preferences"

// Preferences are the UI choices remembered between runs.
type Preferences struct {
	Engine       model.Engine       `json:"engine,omitempty"`
	Distribution model.Distribution `json:"distribution"`
	Language     string             `json:"language,omitempty"`
}

// SetValue upserts a key-value pair in the local_storage table.
func (s *Store) SetValue(key, value string) error {
	now := time.Now()
	_, err := s.db.Exec(
		`INSERT INTO local_storage (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = ?`,
		key, value, now, value, now,
	)
	return err
}

// GetValue returns the value for a key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetValue(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM local_storage WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// DeleteValue removes a key. Missing keys are not an error.
func (s *Store) DeleteValue(key string) error {
	_, err := s.db.Exec(`DELETE FROM local_storage WHERE key = ?`, key)
	return err
}

// SavePreferences stores p as JSON under the preferences key.
func (s *Store) SavePreferences(p Preferences) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}
	return s.SetValue(preferencesKey, string(data))
}

// GetPreferences returns stored preferences, or defaults when nothing was
// saved yet or the stored value no longer parses.
func (s *Store) GetPreferences() (Preferences, error) {
	p := Preferences{Distribution: model.DefaultDistribution()}
	raw, err := s.GetValue(preferencesKey)
	if err != nil {
		return p, err
	}
	if raw == "" {
		return p, nil
	}
	var stored Preferences
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return p, nil
	}
	if stored.Distribution.Validate() != nil {
		stored.Distribution = p.Distribution
	}
	return stored, nil
}
