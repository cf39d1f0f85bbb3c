package auth

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// CredentialStore keeps a username/password pair in the OS keyring for
// headless re-authentication. It uses a keyring service separate from the
// token store so clearing tokens never drops credentials and vice versa.
//
// Storing credentials is opt-in. They are cleared automatically when a
// replay login fails with an explicit credential rejection.
type CredentialStore struct {
	school string
}

// NewCredentialStore creates a credential store for the given school.
func NewCredentialStore(school string) *CredentialStore {
	return &CredentialStore{school: school}
}

func (s *CredentialStore) usernameKey() string {
	return fmt.Sprintf("%s:username", s.school)
}

func (s *CredentialStore) passwordKey() string {
	return fmt.Sprintf("%s:password", s.school)
}

// Store saves both halves of the credential pair.
func (s *CredentialStore) Store(username, password string) error {
	if username == "" || password == "" {
		return fmt.Errorf("username and password must both be non-empty")
	}
	if err := keyring.Set(credentialService, s.usernameKey(), username); err != nil {
		return fmt.Errorf("failed to store username in keyring: %w", err)
	}
	if err := keyring.Set(credentialService, s.passwordKey(), password); err != nil {
		// Roll back the username so we never hold half a pair.
		_ = keyring.Delete(credentialService, s.usernameKey())
		return fmt.Errorf("failed to store password in keyring: %w", err)
	}
	return nil
}

// Get returns the stored pair. The bool is false when either half is
// missing.
func (s *CredentialStore) Get() (username, password string, ok bool) {
	username, err := keyring.Get(credentialService, s.usernameKey())
	if err != nil || username == "" {
		return "", "", false
	}
	password, err = keyring.Get(credentialService, s.passwordKey())
	if err != nil || password == "" {
		return "", "", false
	}
	return username, password, true
}

// Has reports whether a complete credential pair is stored.
func (s *CredentialStore) Has() bool {
	_, _, ok := s.Get()
	return ok
}

// Clear removes both halves. Returns true if anything was removed;
// clearing an empty store is not an error.
func (s *CredentialStore) Clear() (bool, error) {
	cleared := false
	if err := keyring.Delete(credentialService, s.usernameKey()); err == nil {
		cleared = true
	} else if !errors.Is(err, keyring.ErrNotFound) {
		return cleared, fmt.Errorf("failed to clear username: %w", err)
	}
	if err := keyring.Delete(credentialService, s.passwordKey()); err == nil {
		cleared = true
	} else if !errors.Is(err, keyring.ErrNotFound) {
		return cleared, fmt.Errorf("failed to clear password: %w", err)
	}
	return cleared, nil
}
