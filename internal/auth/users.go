package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrUserExists is returned by Register when the username is taken.
	ErrUserExists = errors.New("username already registered")
	// ErrInvalidCredentials is returned by Authenticate on any mismatch. It
	// is deliberately the same for unknown users and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid username or password")
)

type userRecord struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
}

// FileStore keeps user credentials in a JSON file, loaded once and rewritten
// on every registration. Suitable for the handful of accounts this service
// needs; a database would be overkill.
type FileStore struct {
	mu    sync.Mutex
	path  string
	users map[string]userRecord
}

// NewFileStore loads the user file at path, creating an empty store if the
// file does not exist yet.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:  path,
		users: make(map[string]userRecord),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading user store: %w", err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.users); err != nil {
		return nil, fmt.Errorf("parsing user store %s: %w", path, err)
	}
	return s, nil
}

// Register creates a new user with a bcrypt-hashed password.
func (s *FileStore) Register(username, password string) error {
	if username == "" || password == "" {
		return ErrInvalidCredentials
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[username]; ok {
		return ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	s.users[username] = userRecord{Username: username, PasswordHash: string(hash)}
	if err := s.persist(); err != nil {
		delete(s.users, username)
		return err
	}
	return nil
}

// Authenticate checks a username/password pair.
func (s *FileStore) Authenticate(username, password string) error {
	s.mu.Lock()
	rec, ok := s.users[username]
	s.mu.Unlock()

	if !ok {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// persist writes the store atomically via a sibling temp file. Caller holds
// the lock.
func (s *FileStore) persist() error {
	data, err := json.MarshalIndent(s.users, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding user store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating user store directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing user store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing user store: %w", err)
	}
	return nil
}
