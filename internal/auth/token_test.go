package auth

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTokenIsExpired(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name      string
		expiresAt *time.Time
		want      bool
	}{
		{
			name:      "no expiry never expires",
			expiresAt: nil,
			want:      false,
		},
		{
			name:      "far future not expired",
			expiresAt: timePtr(now.Add(time.Hour)),
			want:      false,
		},
		{
			name:      "already past expired",
			expiresAt: timePtr(now.Add(-time.Minute)),
			want:      true,
		},
		{
			name:      "inside five minute buffer counts as expired",
			expiresAt: timePtr(now.Add(3 * time.Minute)),
			want:      true,
		},
		{
			name:      "just outside buffer still valid",
			expiresAt: timePtr(now.Add(6 * time.Minute)),
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := &Token{AccessToken: "x", School: "demo", ExpiresAt: tt.expiresAt}
			if got := tok.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTokenExpiresWithin(t *testing.T) {
	now := time.Now()

	tok := &Token{AccessToken: "x", School: "demo", ExpiresAt: timePtr(now.Add(10 * time.Minute))}
	if !tok.ExpiresWithin(15 * time.Minute) {
		t.Error("expected token expiring in 10m to report ExpiresWithin(15m)")
	}
	if tok.ExpiresWithin(5 * time.Minute) {
		t.Error("expected token expiring in 10m to not report ExpiresWithin(5m)")
	}

	noExpiry := &Token{AccessToken: "x", School: "demo"}
	if noExpiry.ExpiresWithin(24 * time.Hour) {
		t.Error("token without expiry should never report as expiring")
	}
}

func TestTokenTimeUntilExpiry(t *testing.T) {
	now := time.Now()

	tok := &Token{AccessToken: "x", School: "demo", ExpiresAt: timePtr(now.Add(time.Hour))}
	remaining, ok := tok.TimeUntilExpiry()
	if !ok {
		t.Fatal("expected ok for token with expiry")
	}
	if remaining <= 59*time.Minute || remaining > time.Hour {
		t.Errorf("remaining = %s, want about an hour", remaining)
	}

	past := &Token{AccessToken: "x", School: "demo", ExpiresAt: timePtr(now.Add(-time.Hour))}
	remaining, ok = past.TimeUntilExpiry()
	if !ok {
		t.Fatal("expected ok for expired token with expiry")
	}
	if remaining != 0 {
		t.Errorf("remaining = %s, want clamp to zero", remaining)
	}

	if _, ok := (&Token{AccessToken: "x", School: "demo"}).TimeUntilExpiry(); ok {
		t.Error("expected no remaining time for token without expiry")
	}
}

func TestTokenJSONRoundTrip(t *testing.T) {
	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	personID := int64(4242)

	tests := []struct {
		name string
		tok  Token
	}{
		{
			name: "all fields set",
			tok: Token{
				AccessToken:  "at",
				School:       "demo",
				RefreshToken: "rt",
				PersonID:     &personID,
				PersonName:   "A. Student",
				ExpiresAt:    &expiry,
			},
		},
		{
			name: "only required fields",
			tok:  Token{AccessToken: "at", School: "demo"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(&tt.tok)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			var back Token
			if err := json.Unmarshal(data, &back); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if back.AccessToken != tt.tok.AccessToken || back.School != tt.tok.School ||
				back.RefreshToken != tt.tok.RefreshToken || back.PersonName != tt.tok.PersonName {
				t.Errorf("round trip mismatch: got %+v, want %+v", back, tt.tok)
			}
			if (back.PersonID == nil) != (tt.tok.PersonID == nil) {
				t.Error("person id presence changed across round trip")
			}
			if (back.ExpiresAt == nil) != (tt.tok.ExpiresAt == nil) {
				t.Error("expiry presence changed across round trip")
			}
			if back.ExpiresAt != nil && !back.ExpiresAt.Equal(*tt.tok.ExpiresAt) {
				t.Errorf("expiry changed: got %s, want %s", back.ExpiresAt, tt.tok.ExpiresAt)
			}
		})
	}
}

func TestTokenHasRefreshToken(t *testing.T) {
	if (&Token{AccessToken: "a", School: "s"}).HasRefreshToken() {
		t.Error("empty refresh token should report false")
	}
	if !(&Token{AccessToken: "a", School: "s", RefreshToken: "r"}).HasRefreshToken() {
		t.Error("expected true with refresh token present")
	}
}

func timePtr(t time.Time) *time.Time { return &t }
