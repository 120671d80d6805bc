package identity

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-signing-key"), 0)
	uid := uuid.New()

	tok, err := issuer.Issue(uid, "a@example.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	got, err := issuer.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got != uid {
		t.Errorf("Verify returned %s, want %s", got, uid)
	}
}

func TestTokenWrongKeyRejected(t *testing.T) {
	issuer := NewTokenIssuer([]byte("key-one"), 0)
	other := NewTokenIssuer([]byte("key-two"), 0)

	tok, err := issuer.Issue(uuid.New(), "a@example.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := other.Verify(tok); err == nil {
		t.Error("token signed with a different key verified")
	}
}

func TestTokenExpiryRejected(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-signing-key"), -time.Minute)
	tok, err := issuer.Issue(uuid.New(), "a@example.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := issuer.Verify(tok); err == nil {
		t.Error("expired token verified")
	}
}

func TestTokenGarbageRejected(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-signing-key"), 0)
	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := issuer.Verify(tok); err == nil {
			t.Errorf("Verify(%q) succeeded", tok)
		}
	}
}
