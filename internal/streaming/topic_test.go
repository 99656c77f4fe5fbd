package streaming

import (
	"testing"

	"go.uber.org/zap"

	"github.com/FairForge/brokerd/internal/protocol"
)

func newTestTopic(t *testing.T, partitionCount int) *Topic {
	t.Helper()
	dir := t.TempDir()
	topic, err := NewTopic(dir, 1, "orders", 1, partitionCount, DefaultPartitionConfig(), testClock, zap.NewNop())
	if err != nil {
		t.Fatalf("NewTopic: %v", err)
	}
	return topic
}

func TestNewTopicRejectsPartitionCountOutOfRange(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewTopic(dir, 1, "t", 1, 0, DefaultPartitionConfig(), testClock, zap.NewNop()); err == nil {
		t.Fatalf("expected error for partition count 0")
	}
	if _, err := NewTopic(dir, 1, "t", 1, 1001, DefaultPartitionConfig(), testClock, zap.NewNop()); err == nil {
		t.Fatalf("expected error for partition count 1001")
	}
}

func TestResolvePartitionDirect(t *testing.T) {
	topic := newTestTopic(t, 4)
	id, err := topic.ResolvePartition(Partitioning{Kind: protocol.PartitioningPartitionID, PartitionID: 3})
	if err != nil {
		t.Fatalf("ResolvePartition: %v", err)
	}
	if id != 3 {
		t.Fatalf("got partition %d, want 3", id)
	}
}

func TestResolvePartitionDirectMissing(t *testing.T) {
	topic := newTestTopic(t, 2)
	_, err := topic.ResolvePartition(Partitioning{Kind: protocol.PartitioningPartitionID, PartitionID: 99})
	if protocol.CodeOf(err) != protocol.CodePartitionNotFound {
		t.Fatalf("got %v, want PartitionNotFound for a missing partition id", err)
	}
}

func TestResolvePartitionBalancedRoundRobin(t *testing.T) {
	topic := newTestTopic(t, 3)
	seen := make(map[uint32]int)
	for i := 0; i < 9; i++ {
		id, err := topic.ResolvePartition(Partitioning{Kind: protocol.PartitioningBalanced})
		if err != nil {
			t.Fatalf("ResolvePartition: %v", err)
		}
		seen[id]++
	}
	for pid := uint32(1); pid <= 3; pid++ {
		if seen[pid] != 3 {
			t.Fatalf("partition %d got %d sends over 9 balanced resolutions, want 3 each", pid, seen[pid])
		}
	}
}

func TestResolvePartitionMessagesKeyIsDeterministic(t *testing.T) {
	topic := newTestTopic(t, 5)
	key := []byte("order-42")
	first, err := topic.ResolvePartition(Partitioning{Kind: protocol.PartitioningMessagesKey, Key: key})
	if err != nil {
		t.Fatalf("ResolvePartition: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := topic.ResolvePartition(Partitioning{Kind: protocol.PartitioningMessagesKey, Key: key})
		if err != nil {
			t.Fatalf("ResolvePartition: %v", err)
		}
		if again != first {
			t.Fatalf("same key routed to partition %d then %d", first, again)
		}
	}
}

func TestAddAndDeletePartitions(t *testing.T) {
	topic := newTestTopic(t, 2)
	if err := topic.AddPartitions(2); err != nil {
		t.Fatalf("AddPartitions: %v", err)
	}
	ids := topic.PartitionIDs()
	if len(ids) != 4 {
		t.Fatalf("got %d partitions, want 4", len(ids))
	}
	if err := topic.DeletePartitions(1); err != nil {
		t.Fatalf("DeletePartitions: %v", err)
	}
	ids = topic.PartitionIDs()
	if len(ids) != 3 {
		t.Fatalf("got %d partitions after delete, want 3", len(ids))
	}
	if _, err := topic.Partition(4); protocol.CodeOf(err) != protocol.CodeResourceNotFound {
		t.Fatalf("expected partition 4 (highest id) to be the one removed")
	}
}

func TestConsumerGroupRebalanceOnJoinAndLeave(t *testing.T) {
	topic := newTestTopic(t, 4)
	g, err := topic.JoinConsumerGroup(1, "workers", 10)
	if err != nil {
		t.Fatalf("JoinConsumerGroup: %v", err)
	}
	if _, err := topic.JoinConsumerGroup(1, "workers", 20); err != nil {
		t.Fatalf("second JoinConsumerGroup: %v", err)
	}

	if _, err := g.ResolveGroupPartition(10); err != nil {
		t.Fatalf("expected consumer 10 to hold a partition: %v", err)
	}
	if _, err := g.ResolveGroupPartition(20); err != nil {
		t.Fatalf("expected consumer 20 to hold a partition: %v", err)
	}

	if err := topic.LeaveConsumerGroup(1, 20); err != nil {
		t.Fatalf("LeaveConsumerGroup: %v", err)
	}
	if _, err := g.ResolveGroupPartition(20); protocol.CodeOf(err) != protocol.CodeConsumerNotAssigned {
		t.Fatalf("expected ConsumerNotAssigned for a consumer that left the group")
	}
}

func TestConsumerGroupDuplicateCreateFails(t *testing.T) {
	topic := newTestTopic(t, 1)
	if _, err := topic.CreateConsumerGroup(5, "g"); err != nil {
		t.Fatalf("CreateConsumerGroup: %v", err)
	}
	if _, err := topic.CreateConsumerGroup(5, "g2"); err == nil {
		t.Fatalf("expected AlreadyExists for a duplicate group id")
	}
}
