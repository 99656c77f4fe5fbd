package auth

import (
	"testing"
	"time"
)

func TestSessionAuthenticateAndLogout(t *testing.T) {
	s := &Session{ClientID: 1, Transport: "tcp", RemoteAddress: "127.0.0.1:1234"}
	if s.IsAuthenticated() {
		t.Fatalf("new session must start unauthenticated")
	}
	s.Authenticate(42)
	if !s.IsAuthenticated() || s.UserID() != 42 {
		t.Fatalf("expected authenticated session for user 42")
	}
	s.Logout()
	if s.IsAuthenticated() || s.UserID() != 0 {
		t.Fatalf("expected logout to clear authentication and user id")
	}
}

func TestRegistryOpenCloseCount(t *testing.T) {
	r := NewRegistry()
	s1 := r.Open("tcp", "10.0.0.1:1")
	s2 := r.Open("quic", "10.0.0.2:2")
	if s1.ClientID == s2.ClientID {
		t.Fatalf("expected distinct client ids")
	}
	if r.Count() != 2 {
		t.Fatalf("got count %d, want 2", r.Count())
	}
	r.Close(s1.ClientID)
	if r.Count() != 1 {
		t.Fatalf("got count %d, want 1 after close", r.Count())
	}
}

func TestTokenIssuerIssueAndVerify(t *testing.T) {
	iss := NewTokenIssuer("test-secret", time.Hour)
	token, err := iss.Issue(7)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	userID, err := iss.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if userID != 7 {
		t.Fatalf("got user id %d, want 7", userID)
	}
}

func TestTokenIssuerRejectsWrongSecret(t *testing.T) {
	iss := NewTokenIssuer("secret-a", time.Hour)
	token, err := iss.Issue(7)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	other := NewTokenIssuer("secret-b", time.Hour)
	if _, err := other.Verify(token); err == nil {
		t.Fatalf("expected verification failure with mismatched secret")
	}
}

func TestTokenIssuerRejectsExpiredToken(t *testing.T) {
	iss := NewTokenIssuer("test-secret", -time.Minute)
	token, err := iss.Issue(7)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := iss.Verify(token); err == nil {
		t.Fatalf("expected verification failure for an already-expired token")
	}
}
