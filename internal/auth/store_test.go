package auth

import (
	"testing"
	"time"

	"github.com/zalando/go-keyring"
)

func TestTokenStoreRoundTrip(t *testing.T) {
	keyring.MockInit()
	store := NewTokenStore("demo")

	expiry := time.Now().Add(time.Hour)
	tok := &Token{
		AccessToken:  "at",
		School:       "demo",
		RefreshToken: "rt",
		ExpiresAt:    &expiry,
	}
	if err := store.Save(tok); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected stored token")
	}
	if got.AccessToken != "at" || got.RefreshToken != "rt" || got.School != "demo" {
		t.Errorf("unexpected token: %+v", got)
	}
}

func TestTokenStoreAbsent(t *testing.T) {
	keyring.MockInit()
	store := NewTokenStore("nothing-here")

	got, err := store.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for absent token, got %+v", got)
	}
}

func TestTokenStoreCorruptPayload(t *testing.T) {
	keyring.MockInit()
	store := NewTokenStore("demo")

	if err := keyring.Set(tokenService, store.key(), "{not json"); err != nil {
		t.Fatal(err)
	}
	got, err := store.Get()
	if err != nil {
		t.Fatalf("corrupt payload should not error: %v", err)
	}
	if got != nil {
		t.Errorf("corrupt payload should read as absent, got %+v", got)
	}

	// Valid JSON without an access token is also treated as absent.
	if err := keyring.Set(tokenService, store.key(), `{"school":"demo"}`); err != nil {
		t.Fatal(err)
	}
	got, err = store.Get()
	if err != nil || got != nil {
		t.Errorf("payload without access token should read as absent, got %+v, err %v", got, err)
	}
}

func TestTokenStoreGetValid(t *testing.T) {
	keyring.MockInit()
	store := NewTokenStore("demo")

	expired := time.Now().Add(-time.Hour)
	if err := store.Save(&Token{AccessToken: "old", School: "demo", ExpiresAt: &expired}); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetValid()
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("expired token should not be returned by GetValid")
	}

	// The raw token remains retrievable for refresh flows.
	raw, err := store.Get()
	if err != nil || raw == nil {
		t.Fatalf("expected expired token via Get, got %+v, err %v", raw, err)
	}

	fresh := time.Now().Add(time.Hour)
	if err := store.Save(&Token{AccessToken: "new", School: "demo", ExpiresAt: &fresh}); err != nil {
		t.Fatal(err)
	}
	got, err = store.GetValid()
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.AccessToken != "new" {
		t.Errorf("expected fresh token, got %+v", got)
	}
}

func TestTokenStoreDelete(t *testing.T) {
	keyring.MockInit()
	store := NewTokenStore("demo")

	if err := store.Save(&Token{AccessToken: "at", School: "demo"}); err != nil {
		t.Fatal(err)
	}
	existed, err := store.Delete()
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !existed {
		t.Error("expected existed=true when a token was stored")
	}
	got, err := store.Get()
	if err != nil || got != nil {
		t.Errorf("expected token gone after delete, got %+v, err %v", got, err)
	}

	// Deleting again is not an error and reports no entry.
	existed, err = store.Delete()
	if err != nil {
		t.Errorf("deleting absent token should be a no-op, got %v", err)
	}
	if existed {
		t.Error("expected existed=false on empty store")
	}
}

func TestTokenStorePerSchoolIsolation(t *testing.T) {
	keyring.MockInit()
	a := NewTokenStore("school-a")
	b := NewTokenStore("school-b")

	if err := a.Save(&Token{AccessToken: "token-a", School: "school-a"}); err != nil {
		t.Fatal(err)
	}
	if err := b.Save(&Token{AccessToken: "token-b", School: "school-b"}); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Delete(); err != nil {
		t.Fatal(err)
	}

	got, err := b.Get()
	if err != nil || got == nil || got.AccessToken != "token-b" {
		t.Errorf("deleting school-a token must not touch school-b, got %+v, err %v", got, err)
	}
}

func TestTokenStoreIsExpiringSoon(t *testing.T) {
	keyring.MockInit()
	store := NewTokenStore("demo")

	if store.IsExpiringSoon(10 * time.Minute) {
		t.Error("absent token should not report as expiring")
	}

	soon := time.Now().Add(5 * time.Minute)
	if err := store.Save(&Token{AccessToken: "at", School: "demo", ExpiresAt: &soon}); err != nil {
		t.Fatal(err)
	}
	if !store.IsExpiringSoon(10 * time.Minute) {
		t.Error("token expiring in 5m should report as expiring within 10m")
	}
	if store.IsExpiringSoon(time.Minute) {
		t.Error("token expiring in 5m should not report as expiring within 1m")
	}

	if err := store.Save(&Token{AccessToken: "at", School: "demo"}); err != nil {
		t.Fatal(err)
	}
	if store.IsExpiringSoon(24 * time.Hour) {
		t.Error("token without expiry should never report as expiring")
	}
}

func TestTokenStoreUpdatePerson(t *testing.T) {
	keyring.MockInit()
	store := NewTokenStore("demo")

	// Updating with no stored token is a no-op.
	if err := store.UpdatePerson(1, "Nobody"); err != nil {
		t.Fatalf("update without token: %v", err)
	}

	if err := store.Save(&Token{AccessToken: "at", School: "demo", RefreshToken: "rt"}); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdatePerson(4242, "A. Student"); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get()
	if err != nil || got == nil {
		t.Fatalf("get: %+v, %v", got, err)
	}
	if got.PersonID == nil || *got.PersonID != 4242 || got.PersonName != "A. Student" {
		t.Errorf("person info not stored: %+v", got)
	}
	if got.AccessToken != "at" || got.RefreshToken != "rt" {
		t.Errorf("person update must not disturb tokens: %+v", got)
	}
}
