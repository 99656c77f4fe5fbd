package system

import (
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/brokerd/internal/config"
	"github.com/FairForge/brokerd/internal/ids"
	"github.com/FairForge/brokerd/internal/protocol"
)

func testClock() time.Time { return time.Unix(1700000000, 0).UTC() }

func newTestSystem(t *testing.T) *System {
	t.Helper()
	cfg := config.Default()
	cfg.SystemPath = filepath.Join(t.TempDir(), "data")
	s := New(cfg, testClock, zap.NewNop())
	if err := s.Boot(); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	return s
}

func TestBootSeedsRootUser(t *testing.T) {
	s := newTestSystem(t)
	if len(s.Users.List()) != 1 {
		t.Fatalf("expected root user seeded on first boot")
	}
	if _, err := s.Users.Authenticate("iggy", "iggy"); err != nil {
		t.Fatalf("expected default root credentials to authenticate: %v", err)
	}
}

func TestCreateAndDeleteStream(t *testing.T) {
	s := newTestSystem(t)
	st, err := s.CreateStream("orders")
	if err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
	if _, err := s.Stream(ids.Name("orders")); err != nil {
		t.Fatalf("Stream by name: %v", err)
	}
	if err := s.DeleteStream(st.ID); err != nil {
		t.Fatalf("DeleteStream: %v", err)
	}
	if _, err := s.Stream(ids.Name("orders")); protocol.CodeOf(err) != protocol.CodeResourceNotFound {
		t.Fatalf("expected ResourceNotFound after delete")
	}
}

func TestCreateStreamDuplicateNameFails(t *testing.T) {
	s := newTestSystem(t)
	if _, err := s.CreateStream("orders"); err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
	if _, err := s.CreateStream("orders"); err == nil {
		t.Fatalf("expected AlreadyExists for duplicate stream name")
	}
}

func TestBootRecoversExistingStreams(t *testing.T) {
	cfg := config.Default()
	cfg.SystemPath = filepath.Join(t.TempDir(), "data")

	s1 := New(cfg, testClock, zap.NewNop())
	if err := s1.Boot(); err != nil {
		t.Fatalf("first Boot: %v", err)
	}
	if _, err := s1.CreateStream("orders"); err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
	if err := s1.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	s2 := New(cfg, testClock, zap.NewNop())
	if err := s2.Boot(); err != nil {
		t.Fatalf("second Boot: %v", err)
	}
	if _, err := s2.Stream(ids.Name("orders")); err != nil {
		t.Fatalf("expected stream to be recovered after reboot: %v", err)
	}
}

func TestShutdownFlushesStreams(t *testing.T) {
	s := newTestSystem(t)
	if _, err := s.CreateStream("orders"); err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
	s.SpawnBackgroundTasks(time.Hour, time.Hour)
	if err := s.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
