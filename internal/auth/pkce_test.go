package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestGenerateCodeVerifier(t *testing.T) {
	validChars := regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

	for i := 0; i < 20; i++ {
		verifier, err := generateCodeVerifier()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(verifier) < 43 || len(verifier) > 128 {
			t.Errorf("verifier length %d outside 43-128", len(verifier))
		}
		if !validChars.MatchString(verifier) {
			t.Errorf("verifier contains invalid characters: %q", verifier)
		}
		if strings.Contains(verifier, "=") {
			t.Errorf("verifier must not be padded: %q", verifier)
		}
	}
}

func TestGenerateCodeVerifierUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		verifier, err := generateCodeVerifier()
		if err != nil {
			t.Fatal(err)
		}
		if seen[verifier] {
			t.Fatal("verifier repeated")
		}
		seen[verifier] = true
	}
}

func TestGenerateCodeChallenge(t *testing.T) {
	// Known-answer test from RFC 7636 appendix B.
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	want := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"

	if got := generateCodeChallenge(verifier); got != want {
		t.Errorf("challenge = %q, want %q", got, want)
	}
}

func TestAuthorizationURL(t *testing.T) {
	flow, err := NewPKCEFlow("demo")
	if err != nil {
		t.Fatal(err)
	}

	rawURL := flow.AuthorizationURL()
	if !strings.HasPrefix(rawURL, AuthorizeEndpoint+"?") {
		t.Fatalf("unexpected URL base: %s", rawURL)
	}

	for _, want := range []string{
		"client_id=M6LOAPP",
		"response_type=code",
		"code_challenge_method=S256",
		"offline_access",
		"acr_values=tenant%3Ademo.magister.net",
		"redirect_uri=m6loapp%3A%2F%2Foauth2redirect%2F",
	} {
		if !strings.Contains(rawURL, want) {
			t.Errorf("authorization URL missing %q:\n%s", want, rawURL)
		}
	}
}

func TestExtractCode(t *testing.T) {
	flow, err := NewPKCEFlow("demo")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name        string
		redirectURL string
		wantCode    string
		wantErr     string
	}{
		{
			name:        "code in query",
			redirectURL: "m6loapp://oauth2redirect/?code=abc123&state=" + flow.state,
			wantCode:    "abc123",
		},
		{
			name:        "code in fragment",
			redirectURL: "m6loapp://oauth2redirect/#code=frag456&state=" + flow.state,
			wantCode:    "frag456",
		},
		{
			name:        "code without state still accepted",
			redirectURL: "m6loapp://oauth2redirect/?code=nostate",
			wantCode:    "nostate",
		},
		{
			name:        "surrounding whitespace trimmed",
			redirectURL: "  m6loapp://oauth2redirect/?code=abc123&state=" + flow.state + "\n",
			wantCode:    "abc123",
		},
		{
			name:        "provider error surfaced",
			redirectURL: "m6loapp://oauth2redirect/?error=access_denied&error_description=User+cancelled",
			wantErr:     "access_denied",
		},
		{
			name:        "state mismatch rejected",
			redirectURL: "m6loapp://oauth2redirect/?code=abc123&state=wrong",
			wantErr:     "state mismatch",
		},
		{
			name:        "no parameters",
			redirectURL: "m6loapp://oauth2redirect/",
			wantErr:     "no parameters",
		},
		{
			name:        "missing code",
			redirectURL: "m6loapp://oauth2redirect/?state=" + flow.state,
			wantErr:     "no authorization code",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := flow.ExtractCode(tt.redirectURL)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q, got code %q", tt.wantErr, code)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error %q does not contain %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if code != tt.wantCode {
				t.Errorf("code = %q, want %q", code, tt.wantCode)
			}
		})
	}
}

func TestExchangeCode(t *testing.T) {
	var gotForm map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotForm = map[string]string{}
		for k := range r.PostForm {
			gotForm[k] = r.PostForm.Get(k)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "new-at",
			"refresh_token": "new-rt",
			"expires_in":    1800,
		})
	}))
	defer server.Close()

	flow, err := NewPKCEFlow("demo")
	if err != nil {
		t.Fatal(err)
	}
	flow.TokenEndpoint = server.URL

	tok, err := flow.ExchangeCode(context.Background(), "the-code")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if tok.AccessToken != "new-at" || tok.RefreshToken != "new-rt" || tok.School != "demo" {
		t.Errorf("unexpected token: %+v", tok)
	}
	if tok.ExpiresAt == nil {
		t.Fatal("expected expiry to be set")
	}
	remaining := time.Until(*tok.ExpiresAt)
	if remaining < 29*time.Minute || remaining > 30*time.Minute {
		t.Errorf("expiry %s not about 30 minutes out", remaining)
	}

	if gotForm["grant_type"] != "authorization_code" {
		t.Errorf("grant_type = %q", gotForm["grant_type"])
	}
	if gotForm["code"] != "the-code" {
		t.Errorf("code = %q", gotForm["code"])
	}
	if gotForm["client_id"] != ClientID {
		t.Errorf("client_id = %q", gotForm["client_id"])
	}
	if gotForm["code_verifier"] != flow.verifier {
		t.Error("code_verifier does not match the flow's verifier")
	}
	if gotForm["redirect_uri"] != RedirectURI {
		t.Errorf("redirect_uri = %q", gotForm["redirect_uri"])
	}
}

func TestExchangeCodeDefaultExpiry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "at"})
	}))
	defer server.Close()

	flow, err := NewPKCEFlow("demo")
	if err != nil {
		t.Fatal(err)
	}
	flow.TokenEndpoint = server.URL

	tok, err := flow.ExchangeCode(context.Background(), "code")
	if err != nil {
		t.Fatal(err)
	}
	remaining := time.Until(*tok.ExpiresAt)
	if remaining < 59*time.Minute || remaining > time.Hour {
		t.Errorf("default expiry %s not about one hour out", remaining)
	}
}

func TestExchangeCodeErrorSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "Authorization code is invalid or expired",
		})
	}))
	defer server.Close()

	flow, err := NewPKCEFlow("demo")
	if err != nil {
		t.Fatal(err)
	}
	flow.TokenEndpoint = server.URL

	_, err = flow.ExchangeCode(context.Background(), "stale")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Authorization code is invalid or expired") {
		t.Errorf("error should carry the provider's description, got %v", err)
	}
}

func TestExchangeCodeMissingAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"token_type": "Bearer"})
	}))
	defer server.Close()

	flow, err := NewPKCEFlow("demo")
	if err != nil {
		t.Fatal(err)
	}
	flow.TokenEndpoint = server.URL

	if _, err := flow.ExchangeCode(context.Background(), "code"); err == nil {
		t.Error("expected error when response lacks access_token")
	}
}
