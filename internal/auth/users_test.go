package auth

import (
	"testing"
	"time"

	"github.com/FairForge/brokerd/internal/protocol"
)

func fixedClock() time.Time { return time.Unix(1700000000, 0).UTC() }

func TestStoreCreateAndAuthenticate(t *testing.T) {
	s := NewStore(fixedClock)
	u, err := s.Create("alice", "hunter2", GlobalPermissions{ReadStreams: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.ID == 0 {
		t.Fatalf("expected non-zero id")
	}

	got, err := s.Authenticate("alice", "hunter2")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("got user %d, want %d", got.ID, u.ID)
	}
}

func TestStoreAuthenticateWrongPassword(t *testing.T) {
	s := NewStore(fixedClock)
	if _, err := s.Create("bob", "correct-horse", GlobalPermissions{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := s.Authenticate("bob", "wrong")
	if protocol.CodeOf(err) != protocol.CodeInvalidCredentials {
		t.Fatalf("got %v, want CodeInvalidCredentials", err)
	}
}

func TestStoreAuthenticateUnknownUser(t *testing.T) {
	s := NewStore(fixedClock)
	_, err := s.Authenticate("nobody", "whatever")
	if protocol.CodeOf(err) != protocol.CodeInvalidCredentials {
		t.Fatalf("got %v, want CodeInvalidCredentials (must not distinguish unknown-user from wrong-password)", err)
	}
}

func TestStoreCreateDuplicateUsername(t *testing.T) {
	s := NewStore(fixedClock)
	if _, err := s.Create("carol", "pw123456", GlobalPermissions{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := s.Create("carol", "other-pw", GlobalPermissions{})
	if err == nil {
		t.Fatalf("expected AlreadyExists error")
	}
}

func TestStoreCreateUsernameTooShort(t *testing.T) {
	s := NewStore(fixedClock)
	_, err := s.Create("ab", "pw123456", GlobalPermissions{})
	if protocol.CodeOf(err) != protocol.CodeNameTooShort {
		t.Fatalf("got %v, want CodeNameTooShort", err)
	}
}

func TestSeedRootOnlyOnce(t *testing.T) {
	s := NewStore(fixedClock)
	if err := s.SeedRoot(); err != nil {
		t.Fatalf("SeedRoot: %v", err)
	}
	if len(s.List()) != 1 {
		t.Fatalf("expected exactly one seeded user")
	}
	if err := s.SeedRoot(); err != nil {
		t.Fatalf("second SeedRoot: %v", err)
	}
	if len(s.List()) != 1 {
		t.Fatalf("SeedRoot must be a no-op once the store is non-empty")
	}
}

func TestStoreDeleteAndByID(t *testing.T) {
	s := NewStore(fixedClock)
	u, _ := s.Create("dave", "pw123456", GlobalPermissions{})
	if _, err := s.ByID(u.ID); err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if err := s.Delete(u.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.ByID(u.ID); protocol.CodeOf(err) != protocol.CodeResourceNotFound {
		t.Fatalf("expected NotFound after delete, got %v", err)
	}
}

func TestPermissionsCanPollOverridePrecedence(t *testing.T) {
	p := Permissions{
		Global: GlobalPermissions{PollMessages: false},
		Overrides: map[string]ResourceOverride{
			streamKey(1):        {PollMessages: true},
			topicKey(1, 2):      {PollMessages: false},
		},
	}
	if !p.CanPoll(1, 3) {
		t.Fatalf("expected stream-level override to grant poll on topic 3")
	}
	if p.CanPoll(1, 2) {
		t.Fatalf("expected topic-level override to deny poll on topic 2")
	}
	if p.CanPoll(9, 9) {
		t.Fatalf("expected global deny for an unrelated stream")
	}
}
