package streaming

import (
	"testing"

	"go.uber.org/zap"

	"github.com/FairForge/brokerd/internal/ids"
	"github.com/FairForge/brokerd/internal/protocol"
)

func newTestStream(t *testing.T) *Stream {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStream(dir, 1, "events", DefaultPartitionConfig(), testClock, zap.NewNop())
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	return s
}

func TestStreamCreateTopicAndLookupByNameAndID(t *testing.T) {
	s := newTestStream(t)
	topic, err := s.CreateTopic("clicks", 2, 0, 0)
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	byID, err := s.Topic(ids.Numeric(topic.ID))
	if err != nil {
		t.Fatalf("Topic by id: %v", err)
	}
	if byID.ID != topic.ID {
		t.Fatalf("got topic %d, want %d", byID.ID, topic.ID)
	}

	byName, err := s.Topic(ids.Name("clicks"))
	if err != nil {
		t.Fatalf("Topic by name: %v", err)
	}
	if byName.ID != topic.ID {
		t.Fatalf("got topic %d by name, want %d", byName.ID, topic.ID)
	}
}

func TestStreamCreateTopicDuplicateNameFails(t *testing.T) {
	s := newTestStream(t)
	if _, err := s.CreateTopic("clicks", 1, 0, 0); err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	if _, err := s.CreateTopic("clicks", 1, 0, 0); err == nil {
		t.Fatalf("expected AlreadyExists for a duplicate topic name")
	}
}

func TestStreamDeleteTopicRemovesNameIndex(t *testing.T) {
	s := newTestStream(t)
	topic, err := s.CreateTopic("clicks", 1, 0, 0)
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	if err := s.DeleteTopic(topic.ID); err != nil {
		t.Fatalf("DeleteTopic: %v", err)
	}
	if _, err := s.Topic(ids.Name("clicks")); protocol.CodeOf(err) != protocol.CodeResourceNotFound {
		t.Fatalf("expected ResourceNotFound after delete, got %v", err)
	}
	if _, err := s.CreateTopic("clicks", 1, 0, 0); err != nil {
		t.Fatalf("expected topic name to be reusable after delete: %v", err)
	}
}

func TestStreamTopicsOrderedByID(t *testing.T) {
	s := newTestStream(t)
	if _, err := s.CreateTopic("b", 1, 0, 0); err != nil {
		t.Fatalf("CreateTopic b: %v", err)
	}
	if _, err := s.CreateTopic("a", 1, 0, 0); err != nil {
		t.Fatalf("CreateTopic a: %v", err)
	}
	topics := s.Topics()
	if len(topics) != 2 || topics[0].ID >= topics[1].ID {
		t.Fatalf("expected topics ordered by ascending id, got %+v", topics)
	}
}
