package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/magister-tools/magctl/internal/logger"
)

// DefaultRefreshThreshold is how close to expiry a token must be before
// RefreshIfNeeded acts.
const DefaultRefreshThreshold = 15 * time.Minute

// Refresher extends a session with the refresh_token grant, avoiding a
// browser round trip.
type Refresher struct {
	school string
	store  *TokenStore
	log    *logger.Logger

	// TokenEndpoint and HTTPClient are overridable for tests.
	TokenEndpoint string
	HTTPClient    *http.Client
}

// NewRefresher creates a refresher backed by the given token store.
func NewRefresher(school string, store *TokenStore, log *logger.Logger) *Refresher {
	return &Refresher{
		school:        school,
		store:         store,
		log:           log,
		TokenEndpoint: TokenEndpoint,
		HTTPClient:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Refresh exchanges the stored refresh token for a new access token and
// saves the result. On failure the stored token is left untouched so the
// caller can fall back to a full login. Person info carries over from the
// old token; the identity does not change across a refresh.
func (r *Refresher) Refresh(ctx context.Context) (*Token, error) {
	current, err := r.store.Get()
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("cannot refresh: %w", ErrNotAuthenticated)
	}
	if !current.HasRefreshToken() {
		return nil, ErrNoRefreshToken
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", current.RefreshToken)
	form.Set("client_id", ClientID)

	resp, err := postTokenForm(ctx, r.HTTPClient, r.TokenEndpoint, form)
	if err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("no access_token in refresh response")
	}

	// Providers may rotate the refresh token; keep the old one when the
	// response omits it.
	refreshToken := resp.RefreshToken
	if refreshToken == "" {
		refreshToken = current.RefreshToken
	}

	lifetime := defaultRefreshLifetime
	if resp.ExpiresIn > 0 {
		lifetime = time.Duration(resp.ExpiresIn) * time.Second
	}
	expiresAt := time.Now().Add(lifetime)

	refreshed := &Token{
		AccessToken:  resp.AccessToken,
		School:       r.school,
		RefreshToken: refreshToken,
		PersonID:     current.PersonID,
		PersonName:   current.PersonName,
		ExpiresAt:    &expiresAt,
	}
	if err := r.store.Save(refreshed); err != nil {
		return nil, fmt.Errorf("failed to save refreshed token: %w", err)
	}

	r.log.Debug("token refreshed for %s, valid for %s", r.school, lifetime)
	return refreshed, nil
}

// RefreshIfNeeded refreshes only when the stored token expires within the
// threshold. It returns (nil, nil) when no refresh was needed or possible;
// a healthy token is not a reason to fail.
func (r *Refresher) RefreshIfNeeded(ctx context.Context, threshold time.Duration) (*Token, error) {
	if threshold <= 0 {
		threshold = DefaultRefreshThreshold
	}
	if !r.store.IsExpiringSoon(threshold) {
		return nil, nil
	}
	current, err := r.store.Get()
	if err != nil || current == nil || !current.HasRefreshToken() {
		r.log.WarningVerbose("token expiring but no refresh token available")
		return nil, nil
	}
	tok, err := r.Refresh(ctx)
	if err != nil {
		r.log.WarningVerbose("automatic token refresh failed: %v", err)
		return nil, nil
	}
	return tok, nil
}
