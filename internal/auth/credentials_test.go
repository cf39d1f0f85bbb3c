package auth

import (
	"testing"

	"github.com/zalando/go-keyring"
)

func TestCredentialStoreRoundTrip(t *testing.T) {
	keyring.MockInit()
	store := NewCredentialStore("demo")

	if store.Has() {
		t.Error("fresh store should have no credentials")
	}

	if err := store.Store("student@example.org", "hunter2"); err != nil {
		t.Fatalf("store: %v", err)
	}

	username, password, ok := store.Get()
	if !ok {
		t.Fatal("expected stored credentials")
	}
	if username != "student@example.org" || password != "hunter2" {
		t.Errorf("got %q/%q", username, password)
	}
	if !store.Has() {
		t.Error("Has should be true after Store")
	}
}

func TestCredentialStoreRejectsEmpty(t *testing.T) {
	keyring.MockInit()
	store := NewCredentialStore("demo")

	if err := store.Store("", "pw"); err == nil {
		t.Error("empty username should be rejected")
	}
	if err := store.Store("user", ""); err == nil {
		t.Error("empty password should be rejected")
	}
}

func TestCredentialStoreClear(t *testing.T) {
	keyring.MockInit()
	store := NewCredentialStore("demo")

	if err := store.Store("user", "pw"); err != nil {
		t.Fatal(err)
	}

	cleared, err := store.Clear()
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if !cleared {
		t.Error("expected cleared=true when credentials existed")
	}
	if store.Has() {
		t.Error("credentials should be gone after clear")
	}

	// Clearing an empty store is a quiet no-op.
	cleared, err = store.Clear()
	if err != nil {
		t.Fatalf("second clear: %v", err)
	}
	if cleared {
		t.Error("expected cleared=false on empty store")
	}
}

func TestCredentialStorePerSchoolIsolation(t *testing.T) {
	keyring.MockInit()
	a := NewCredentialStore("school-a")
	b := NewCredentialStore("school-b")

	if err := a.Store("user-a", "pw-a"); err != nil {
		t.Fatal(err)
	}
	if err := b.Store("user-b", "pw-b"); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Clear(); err != nil {
		t.Fatal(err)
	}

	username, _, ok := b.Get()
	if !ok || username != "user-b" {
		t.Errorf("clearing school-a must not touch school-b, got ok=%v username=%q", ok, username)
	}
}

func TestCredentialStoreSeparateFromTokens(t *testing.T) {
	keyring.MockInit()
	tokens := NewTokenStore("demo")
	creds := NewCredentialStore("demo")

	if err := tokens.Save(&Token{AccessToken: "at", School: "demo"}); err != nil {
		t.Fatal(err)
	}
	if err := creds.Store("user", "pw"); err != nil {
		t.Fatal(err)
	}

	if _, err := tokens.Delete(); err != nil {
		t.Fatal(err)
	}
	if !creds.Has() {
		t.Error("deleting the token must not clear credentials")
	}

	if _, err := creds.Clear(); err != nil {
		t.Fatal(err)
	}
	if err := creds.Store("user2", "pw2"); err != nil {
		t.Fatal(err)
	}
	if err := tokens.Save(&Token{AccessToken: "at2", School: "demo"}); err != nil {
		t.Fatal(err)
	}
	if _, err := creds.Clear(); err != nil {
		t.Fatal(err)
	}
	got, err := tokens.Get()
	if err != nil || got == nil || got.AccessToken != "at2" {
		t.Errorf("clearing credentials must not delete the token, got %+v, err %v", got, err)
	}
}
