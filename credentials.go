package sessionkeeper

import "sync"

// Credential is the authenticated session state: a short-lived access token,
// the longer-lived refresh token exchanged for new access tokens, and the
// subject (user-facing identifier, typically an email) the session belongs to.
//
// Access and refresh tokens are set or cleared together, and Subject is set
// whenever AccessToken is set. A credential missing any of the three fields
// is treated as "no session".
type Credential struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Subject      string `json:"subject"`
}

// Complete returns true if all three fields are present.
func (c *Credential) Complete() bool {
	return c != nil && c.AccessToken != "" && c.RefreshToken != "" && c.Subject != ""
}

// Clone returns a copy so callers never share the stored instance.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// CredentialStore is the single authoritative holder of the session
// credential. Every other component reads through it; only the refresh path
// and termination write to it.
type CredentialStore interface {
	// Load retrieves the current credential.
	// Returns nil, nil when no complete session exists.
	Load() (*Credential, error)

	// Store replaces the current credential.
	Store(cred *Credential) error

	// Clear removes the credential entirely.
	Clear() error

	// Save persists any pending changes (for stores that batch writes).
	Save() error
}

// MemoryStore is an in-memory CredentialStore for hosts without durable
// storage and for tests.
type MemoryStore struct {
	mu   sync.Mutex
	cred *Credential
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cred.Complete() {
		return nil, nil
	}
	return s.cred.Clone(), nil
}

func (s *MemoryStore) Store(cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = cred.Clone()
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = nil
	return nil
}

func (s *MemoryStore) Save() error {
	return nil
}
