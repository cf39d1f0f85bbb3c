package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Defaults for token responses that omit expires_in.
const (
	defaultExchangeLifetime = time.Hour
	defaultRefreshLifetime  = 2 * time.Hour
)

// PKCEFlow runs the OAuth 2.0 authorization code flow with PKCE against the
// Magister identity provider. The mobile client's flow is the only one that
// returns refresh tokens, which is why this exists alongside the browser
// strategies.
//
// A flow value is single-use: the verifier and state are generated at
// construction and bound to one authorization round trip.
type PKCEFlow struct {
	school    string
	verifier  string
	challenge string
	state     string

	// TokenEndpoint and HTTPClient are overridable for tests.
	TokenEndpoint string
	HTTPClient    *http.Client
}

// NewPKCEFlow creates a flow for the given (already validated) school code.
func NewPKCEFlow(school string) (*PKCEFlow, error) {
	verifier, err := generateCodeVerifier()
	if err != nil {
		return nil, err
	}
	state, err := randomURLSafe(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}
	return &PKCEFlow{
		school:        school,
		verifier:      verifier,
		challenge:     generateCodeChallenge(verifier),
		state:         state,
		TokenEndpoint: TokenEndpoint,
		HTTPClient:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// generateCodeVerifier returns a random URL-safe verifier of 43-128
// characters as required by RFC 7636.
func generateCodeVerifier() (string, error) {
	verifier, err := randomURLSafe(64)
	if err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}
	if len(verifier) > 128 {
		verifier = verifier[:128]
	}
	return verifier, nil
}

// generateCodeChallenge derives the S256 challenge from a verifier.
func generateCodeChallenge(verifier string) string {
	digest := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(digest[:])
}

func randomURLSafe(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// AuthorizationURL returns the URL the user must visit to authenticate.
// The acr_values tenant hint routes the user straight to their school's
// login page.
func (f *PKCEFlow) AuthorizationURL() string {
	params := url.Values{}
	params.Set("client_id", ClientID)
	params.Set("redirect_uri", RedirectURI)
	params.Set("response_type", "code")
	params.Set("scope", strings.Join(Scopes, " "))
	params.Set("state", f.state)
	params.Set("code_challenge", f.challenge)
	params.Set("code_challenge_method", "S256")
	params.Set("acr_values", fmt.Sprintf("tenant:%s.magister.net", f.school))
	return AuthorizeEndpoint + "?" + params.Encode()
}

// ExtractCode pulls the authorization code out of the redirect URL the
// provider sent the user to (an m6loapp:// URL the user pastes back).
func (f *PKCEFlow) ExtractCode(redirectURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(redirectURL))
	if err != nil {
		return "", fmt.Errorf("invalid redirect URL: %w", err)
	}

	var params url.Values
	switch {
	case parsed.RawQuery != "":
		params, err = url.ParseQuery(parsed.RawQuery)
	case parsed.Fragment != "":
		params, err = url.ParseQuery(parsed.Fragment)
	default:
		return "", fmt.Errorf("no parameters found in redirect URL")
	}
	if err != nil {
		return "", fmt.Errorf("failed to parse redirect parameters: %w", err)
	}

	if errCode := params.Get("error"); errCode != "" {
		desc := params.Get("error_description")
		if desc == "" {
			desc = "unknown error"
		}
		return "", fmt.Errorf("authorization failed: %s - %s", errCode, desc)
	}

	// State check guards against CSRF and stale redirects. The provider
	// sometimes omits state on the mobile redirect, so an absent state is
	// accepted; only a present-but-different one is rejected.
	if state := params.Get("state"); state != "" && state != f.state {
		return "", fmt.Errorf("state mismatch in redirect URL")
	}

	code := params.Get("code")
	if code == "" {
		return "", fmt.Errorf("no authorization code in redirect URL")
	}
	return code, nil
}

// ExchangeCode trades the authorization code for tokens.
func (f *PKCEFlow) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", RedirectURI)
	form.Set("client_id", ClientID)
	form.Set("code_verifier", f.verifier)

	resp, err := postTokenForm(ctx, f.HTTPClient, f.TokenEndpoint, form)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("no access_token in token response")
	}

	lifetime := defaultExchangeLifetime
	if resp.ExpiresIn > 0 {
		lifetime = time.Duration(resp.ExpiresIn) * time.Second
	}
	expiresAt := time.Now().Add(lifetime)

	return &Token{
		AccessToken:  resp.AccessToken,
		School:       f.school,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    &expiresAt,
	}, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}

// postTokenForm posts a form to a token endpoint and decodes the response,
// surfacing the provider's error_description on failure.
func postTokenForm(ctx context.Context, client *http.Client, endpoint string, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var resp tokenResponse
	decodeErr := json.Unmarshal(body, &resp)

	if httpResp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("status %d", httpResp.StatusCode)
		if decodeErr == nil {
			if resp.ErrorDesc != "" {
				msg = resp.ErrorDesc
			} else if resp.Error != "" {
				msg = resp.Error
			}
		}
		return nil, fmt.Errorf("%s", msg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", decodeErr)
	}
	return &resp, nil
}
