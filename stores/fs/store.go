// Package fs provides a file system-based credential store for sessionkeeper.
package fs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/panyam/sessionkeeper"
)

// Store keeps the session credential as a JSON file on the filesystem so it
// survives host restarts. Writes are batched in memory until Save.
type Store struct {
	mu       sync.Mutex
	path     string
	cred     *sessionkeeper.Credential
	modified bool
}

// sessionFile is the JSON structure stored on disk: the three well-known
// fields of the session.
type sessionFile struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Subject      string `json:"subject"`
}

// NewStore creates a file-backed store.
// If path is empty, defaults to ~/.config/<appName>/session.json
func NewStore(path string, appName string) (*Store, error) {
	if path == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("could not determine config directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
		if appName == "" {
			appName = "sessionkeeper"
		}
		path = filepath.Join(configDir, appName, "session.json")
	}

	store := &Store{path: path}

	if err := store.load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return store, nil
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var file sessionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse session file: %w", err)
	}

	s.cred = &sessionkeeper.Credential{
		AccessToken:  file.AccessToken,
		RefreshToken: file.RefreshToken,
		Subject:      file.Subject,
	}
	return nil
}

// Load returns the stored credential, or nil when the file is absent or any
// of the three fields is missing.
func (s *Store) Load() (*sessionkeeper.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cred.Complete() {
		return nil, nil
	}
	return s.cred.Clone(), nil
}

// Store replaces the in-memory credential. Call Save to persist.
func (s *Store) Store(cred *sessionkeeper.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cred = cred.Clone()
	s.modified = true
	return nil
}

// Clear removes the in-memory credential. Call Save to persist.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cred = nil
	s.modified = true
	return nil
}

// Save writes pending changes to disk. An empty credential removes the file
// so no stale tokens linger.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.modified {
		return nil
	}

	if s.cred == nil {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove session file: %w", err)
		}
		s.modified = false
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.MarshalIndent(sessionFile{
		AccessToken:  s.cred.AccessToken,
		RefreshToken: s.cred.RefreshToken,
		Subject:      s.cred.Subject,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session file: %w", err)
	}

	// Write via temp file + rename so readers never see a torn file.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	s.modified = false
	return nil
}
