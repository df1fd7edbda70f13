package auth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/hspbot/hspbot/errors"
)

const tokenStoreFile = "token-store.json"

// Store persists the credential as a flat JSON file.
// All mutations rewrite the whole file under a single writer lock.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a credential store rooted at the given data directory
func NewStore(dataDir string) *Store {
	return &Store{path: filepath.Join(dataDir, tokenStoreFile)}
}

// Path returns the backing file path
func (s *Store) Path() string {
	return s.path
}

// Load reads the stored credential. A missing store file yields an empty
// credential, not an error; callers check AccessToken to distinguish.
func (s *Store) Load() (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() (*Credential, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Credential{}, nil
		}
		return nil, errors.Wrap(err, "failed to read token store")
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, errors.Wrap(err, "failed to parse token store")
	}
	return &cred, nil
}

// Save writes the credential, creating the data directory if needed
func (s *Store) Save(cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create data directory")
	}

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal credential")
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return errors.Wrap(err, "failed to write token store")
	}
	return nil
}
