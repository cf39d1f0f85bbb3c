// Package auth implements the Magister authentication subsystem: secure
// token and credential storage, the PKCE authorization flow, token refresh,
// and browser-based login strategies.
package auth

import "time"

// expiryBuffer is subtracted from a token's expiry when deciding whether it
// is still usable, so a token is retired before the server rejects it
// mid-request.
const expiryBuffer = 5 * time.Minute

// Token is an authenticated Magister session for one school.
type Token struct {
	AccessToken  string     `json:"access_token"`
	School       string     `json:"school"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	PersonID     *int64     `json:"person_id,omitempty"`
	PersonName   string     `json:"person_name,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// IsExpired reports whether the token is past its expiry buffer. A token
// without an expiry time never expires here; the server remains the
// authority for such tokens.
func (t *Token) IsExpired() bool {
	if t.ExpiresAt == nil {
		return false
	}
	return !time.Now().Before(t.ExpiresAt.Add(-expiryBuffer))
}

// HasRefreshToken reports whether the session can be extended without a
// fresh login.
func (t *Token) HasRefreshToken() bool {
	return t.RefreshToken != ""
}

// ExpiresWithin reports whether the token expires within d. Tokens without
// an expiry time never report as expiring.
func (t *Token) ExpiresWithin(d time.Duration) bool {
	if t.ExpiresAt == nil {
		return false
	}
	return !time.Now().Before(t.ExpiresAt.Add(-d))
}

// TimeUntilExpiry returns the remaining lifetime, clamped at zero. The
// second result is false when the token has no expiry time.
func (t *Token) TimeUntilExpiry() (time.Duration, bool) {
	if t.ExpiresAt == nil {
		return 0, false
	}
	remaining := time.Until(*t.ExpiresAt)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}
