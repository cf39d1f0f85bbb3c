package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zalando/go-keyring"
)

// Keyring namespaces. Tokens and credentials live in separate services so
// clearing one never touches the other.
const (
	tokenService      = "magctl"
	credentialService = "magctl-credentials"
)

// TokenStore persists tokens in the OS keyring, one entry per school.
type TokenStore struct {
	school string
}

// NewTokenStore creates a token store for the given school.
func NewTokenStore(school string) *TokenStore {
	return &TokenStore{school: school}
}

func (s *TokenStore) key() string {
	return fmt.Sprintf("%s:%s", tokenService, s.school)
}

// Save writes the token to the keyring, replacing any previous entry.
func (s *TokenStore) Save(tok *Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := keyring.Set(tokenService, s.key(), string(data)); err != nil {
		return fmt.Errorf("failed to store token in keyring: %w", err)
	}
	return nil
}

// Get returns the stored token, or nil if none is stored. A corrupt keyring
// payload is treated the same as an absent one; the caller re-authenticates
// either way.
func (s *TokenStore) Get() (*Token, error) {
	data, err := keyring.Get(tokenService, s.key())
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read token from keyring: %w", err)
	}
	var tok Token
	if err := json.Unmarshal([]byte(data), &tok); err != nil {
		return nil, nil
	}
	if tok.AccessToken == "" {
		return nil, nil
	}
	return &tok, nil
}

// GetValid returns the stored token only when it is present and not past
// its expiry buffer.
func (s *TokenStore) GetValid() (*Token, error) {
	tok, err := s.Get()
	if err != nil {
		return nil, err
	}
	if tok == nil || tok.IsExpired() {
		return nil, nil
	}
	return tok, nil
}

// Delete removes the stored token and reports whether an entry existed.
// Deleting an absent token is not an error.
func (s *TokenStore) Delete() (bool, error) {
	err := keyring.Delete(tokenService, s.key())
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete token from keyring: %w", err)
	}
	return true, nil
}

// IsExpiringSoon reports whether the stored token expires within the given
// window. Absent tokens and tokens without expiry report false.
func (s *TokenStore) IsExpiringSoon(window time.Duration) bool {
	tok, err := s.Get()
	if err != nil || tok == nil {
		return false
	}
	return tok.ExpiresWithin(window)
}

// TimeUntilExpiry returns the remaining lifetime of the stored token. The
// second result is false when no token is stored or it has no expiry.
func (s *TokenStore) TimeUntilExpiry() (time.Duration, bool) {
	tok, err := s.Get()
	if err != nil || tok == nil {
		return 0, false
	}
	return tok.TimeUntilExpiry()
}

// UpdatePerson stores the resolved person id and name on the current token.
// A no-op when no token is stored.
func (s *TokenStore) UpdatePerson(personID int64, personName string) error {
	tok, err := s.Get()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	tok.PersonID = &personID
	tok.PersonName = personName
	return s.Save(tok)
}
