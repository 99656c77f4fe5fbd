package streaming

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/brokerd/internal/ids"
	"github.com/FairForge/brokerd/internal/protocol"
)

// Partitioning selects the target partition for a send request (§4.E).
type Partitioning struct {
	Kind        protocol.PartitioningKind
	PartitionID uint32
	Key         []byte
}

// ConsumerGroup divides a topic's partitions across its member consumers
// without overlap, rebalanced deterministically on join/leave.
type ConsumerGroup struct {
	ID      uint32
	Name    string
	TopicID uint32

	mu          sync.RWMutex
	members     map[uint32]struct{}          // consumer ids
	assignments map[uint32]uint32            // partition id -> consumer id
}

func newConsumerGroup(id uint32, name string, topicID uint32) *ConsumerGroup {
	return &ConsumerGroup{
		ID: id, Name: name, TopicID: topicID,
		members:     make(map[uint32]struct{}),
		assignments: make(map[uint32]uint32),
	}
}

// Topic owns a set of partitions, the partitioner counter, and its consumer
// groups. Partition add/remove and consumer-group topology changes take the
// topic's own lock; append/poll on an individual partition do not (§5).
type Topic struct {
	ID       uint32
	Name     string
	StreamID uint32

	MessageExpiryMicros uint64 // 0 = unbounded
	MaxTopicSizeBytes   uint64 // 0 = unbounded
	ReplicationFactor   uint8
	CreatedAt           uint64

	dir    string
	clock  func() time.Time
	logger *zap.Logger
	pCfg   PartitionConfig

	mu             sync.RWMutex
	partitions     map[uint32]*Partition
	nextPartition  uint32 // highest assigned partition id
	balancedCursor uint64 // round-robin counter, advanced atomically

	groups      map[uint32]*ConsumerGroup
	nextGroupID uint32
}

// NewTopic creates a topic directory with partitionCount fresh, empty
// partitions numbered 1..partitionCount.
func NewTopic(dir string, id uint32, name string, streamID uint32, partitionCount int, pCfg PartitionConfig, clock func() time.Time, logger *zap.Logger) (*Topic, error) {
	if partitionCount < 1 || partitionCount > 1000 {
		return nil, protocol.New(protocol.CodeMalformedPayload, fmt.Sprintf("partition count %d out of range [1,1000]", partitionCount))
	}
	if err := os.MkdirAll(filepath.Join(dir, "partitions"), 0o750); err != nil {
		return nil, protocol.Wrap(protocol.CodeCannotCreateDirectory, "create partitions directory", err)
	}
	t := &Topic{
		ID: id, Name: name, StreamID: streamID,
		ReplicationFactor: 1,
		CreatedAt:         ids.MicrosNow(clock()),
		dir:               dir,
		clock:             clock,
		logger:            logger,
		pCfg:              pCfg,
		partitions:        make(map[uint32]*Partition),
		groups:            make(map[uint32]*ConsumerGroup),
	}
	for i := 1; i <= partitionCount; i++ {
		p, err := NewPartition(t.partitionDir(uint32(i)), uint32(i), id, streamID, pCfg, clock, logger)
		if err != nil {
			return nil, err
		}
		t.partitions[uint32(i)] = p
		t.nextPartition = uint32(i)
	}
	return t, nil
}

// OpenTopic recovers an existing topic directory, reopening every partition
// subdirectory found under partitions/.
func OpenTopic(dir string, id uint32, name string, streamID uint32, pCfg PartitionConfig, clock func() time.Time, logger *zap.Logger) (*Topic, error) {
	t := &Topic{
		ID: id, Name: name, StreamID: streamID,
		ReplicationFactor: 1,
		dir:               dir,
		clock:             clock,
		logger:            logger,
		pCfg:              pCfg,
		partitions:        make(map[uint32]*Partition),
		groups:            make(map[uint32]*ConsumerGroup),
	}
	entries, err := os.ReadDir(filepath.Join(dir, "partitions"))
	if err != nil {
		return nil, protocol.Wrap(protocol.CodeIoError, "read partitions directory", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var pid uint32
		if _, err := fmt.Sscanf(e.Name(), "%d", &pid); err != nil {
			continue
		}
		p, err := OpenPartition(t.partitionDir(pid), pid, id, streamID, pCfg, clock, logger)
		if err != nil {
			return nil, err
		}
		t.partitions[pid] = p
		if pid > t.nextPartition {
			t.nextPartition = pid
		}
	}
	return t, nil
}

func (t *Topic) partitionDir(id uint32) string {
	return filepath.Join(t.dir, "partitions", fmt.Sprintf("%d", id))
}

// Partition returns the partition with the given id, or ResourceNotFound.
func (t *Topic) Partition(id uint32) (*Partition, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.partitions[id]
	if !ok {
		return nil, protocol.NotFound("partition", fmt.Sprintf("%d", id))
	}
	return p, nil
}

// PartitionIDs returns the sorted set of partition ids, a stable ordering
// every partitioner and rebalance computation relies on.
func (t *Topic) PartitionIDs() []uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sortedPartitionIDsLocked()
}

func (t *Topic) sortedPartitionIDsLocked() []uint32 {
	ids := make([]uint32, 0, len(t.partitions))
	for id := range t.partitions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ResolvePartition implements the three partitioning strategies of §4.E.
func (t *Topic) ResolvePartition(p Partitioning) (uint32, error) {
	switch p.Kind {
	case protocol.PartitioningPartitionID:
		if _, err := t.Partition(p.PartitionID); err != nil {
			return 0, protocol.New(protocol.CodePartitionNotFound, fmt.Sprintf("partition %d not found", p.PartitionID))
		}
		return p.PartitionID, nil
	case protocol.PartitioningMessagesKey:
		ids := t.PartitionIDs()
		if len(ids) == 0 {
			return 0, protocol.New(protocol.CodePartitionNotFound, "topic has no partitions")
		}
		h := fnv.New64a()
		_, _ = h.Write(p.Key)
		idx := h.Sum64() % uint64(len(ids))
		return ids[idx], nil
	case protocol.PartitioningBalanced:
		ids := t.PartitionIDs()
		if len(ids) == 0 {
			return 0, protocol.New(protocol.CodePartitionNotFound, "topic has no partitions")
		}
		n := atomic.AddUint64(&t.balancedCursor, 1) - 1
		return ids[n%uint64(len(ids))], nil
	default:
		return 0, protocol.New(protocol.CodeMalformedPayload, fmt.Sprintf("unknown partitioning kind %d", p.Kind))
	}
}

// AddPartitions appends n fresh partitions continuing the id sequence.
func (t *Topic) AddPartitions(n int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := 0; i < n; i++ {
		id := t.nextPartition + 1
		p, err := NewPartition(t.partitionDir(id), id, t.ID, t.StreamID, t.pCfg, t.clock, t.logger)
		if err != nil {
			return err
		}
		t.partitions[id] = p
		t.nextPartition = id
	}
	return nil
}

// DeletePartitions removes the n highest-id partitions: purge then unlink.
func (t *Topic) DeletePartitions(n int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := t.sortedPartitionIDsLocked()
	if n > len(ids) {
		n = len(ids)
	}
	for i := 0; i < n; i++ {
		id := ids[len(ids)-1-i]
		p := t.partitions[id]
		if err := p.Purge(); err != nil {
			return err
		}
		if err := os.RemoveAll(t.partitionDir(id)); err != nil {
			return protocol.Wrap(protocol.CodeIoError, "remove partition directory", err)
		}
		delete(t.partitions, id)
	}
	return nil
}

// CreateConsumerGroup registers an empty group, failing ResourceAlreadyExists
// if groupID is already taken.
func (t *Topic) CreateConsumerGroup(groupID uint32, name string) (*ConsumerGroup, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.groups[groupID]; exists {
		return nil, protocol.AlreadyExists("consumer_group", fmt.Sprintf("%d", groupID))
	}
	g := newConsumerGroup(groupID, name, t.ID)
	t.groups[groupID] = g
	if groupID > t.nextGroupID {
		t.nextGroupID = groupID
	}
	return g, nil
}

// DeleteConsumerGroup removes a group entirely.
func (t *Topic) DeleteConsumerGroup(groupID uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.groups[groupID]; !ok {
		return protocol.NotFound("consumer_group", fmt.Sprintf("%d", groupID))
	}
	delete(t.groups, groupID)
	return nil
}

// JoinConsumerGroup creates group on first join and adds consumerID as a
// member, then recomputes the full assignment (§4.E, §9 open question:
// every topology change is an atomic snapshot taken under this topic lock).
func (t *Topic) JoinConsumerGroup(groupID uint32, name string, consumerID uint32) (*ConsumerGroup, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.groups[groupID]
	if !ok {
		g = newConsumerGroup(groupID, name, t.ID)
		t.groups[groupID] = g
		if groupID > t.nextGroupID {
			t.nextGroupID = groupID
		}
	}
	g.members[consumerID] = struct{}{}
	t.rebalanceLocked(g)
	return g, nil
}

// LeaveConsumerGroup removes consumerID from group and rebalances the rest.
func (t *Topic) LeaveConsumerGroup(groupID, consumerID uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.groups[groupID]
	if !ok {
		return protocol.NotFound("consumer_group", fmt.Sprintf("%d", groupID))
	}
	delete(g.members, consumerID)
	t.rebalanceLocked(g)
	return nil
}

// rebalanceLocked assigns partitions (sorted by id) to members (sorted by
// id) round-robin. Called with t.mu held.
func (t *Topic) rebalanceLocked(g *ConsumerGroup) {
	g.mu.Lock()
	defer g.mu.Unlock()

	members := make([]uint32, 0, len(g.members))
	for id := range g.members {
		members = append(members, id)
	}
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })

	partitionIDs := t.sortedPartitionIDsLocked()
	assignments := make(map[uint32]uint32, len(partitionIDs))
	if len(members) > 0 {
		for i, pid := range partitionIDs {
			assignments[pid] = members[i%len(members)]
		}
	}
	g.assignments = assignments
}

// ResolveGroupPartition returns the partition assigned to consumerID within
// group, or ConsumerNotAssigned if it holds none.
func (g *ConsumerGroup) ResolveGroupPartition(consumerID uint32) (uint32, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for pid, cid := range g.assignments {
		if cid == consumerID {
			return pid, nil
		}
	}
	return 0, protocol.New(protocol.CodeConsumerNotAssigned, fmt.Sprintf("consumer %d holds no partition in group %d", consumerID, g.ID))
}

// ConsumerGroup returns a topic's consumer group by id.
func (t *Topic) ConsumerGroup(id uint32) (*ConsumerGroup, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	g, ok := t.groups[id]
	if !ok {
		return nil, protocol.NotFound("consumer_group", fmt.Sprintf("%d", id))
	}
	return g, nil
}

// Flush forces every partition's buffered batch to disk.
func (t *Topic) Flush() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, p := range t.partitions {
		if err := p.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// SweepRetention runs the retention sweep on every partition.
func (t *Topic) SweepRetention(nowMicros uint64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, p := range t.partitions {
		p.SweepRetention(nowMicros, t.MessageExpiryMicros, t.MaxTopicSizeBytes)
	}
}
