package streaming

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/brokerd/internal/ids"
	"github.com/FairForge/brokerd/internal/protocol"
)

// Stream is a thin namespace over topics; all mutation is authenticated one
// level up by the system permissioner, then delegates here unconditionally
// (§4.F).
type Stream struct {
	ID        uint32
	Name      string
	CreatedAt uint64

	dir    string
	clock  func() time.Time
	logger *zap.Logger
	pCfg   PartitionConfig

	mu          sync.RWMutex
	topics      map[uint32]*Topic
	nameToID    map[string]uint32
	nextTopicID uint32
}

// NewStream creates an empty stream directory.
func NewStream(dir string, id uint32, name string, pCfg PartitionConfig, clock func() time.Time, logger *zap.Logger) (*Stream, error) {
	if err := os.MkdirAll(filepath.Join(dir, "topics"), 0o750); err != nil {
		return nil, protocol.Wrap(protocol.CodeCannotCreateDirectory, "create topics directory", err)
	}
	return &Stream{
		ID: id, Name: name,
		CreatedAt: ids.MicrosNow(clock()),
		dir:       dir, clock: clock, logger: logger, pCfg: pCfg,
		topics:   make(map[uint32]*Topic),
		nameToID: make(map[string]uint32),
	}, nil
}

// OpenStream recovers an existing stream directory, reopening every topic
// subdirectory found under topics/.
func OpenStream(dir string, id uint32, name string, pCfg PartitionConfig, clock func() time.Time, logger *zap.Logger) (*Stream, error) {
	s := &Stream{
		ID: id, Name: name,
		dir: dir, clock: clock, logger: logger, pCfg: pCfg,
		topics:   make(map[uint32]*Topic),
		nameToID: make(map[string]uint32),
	}
	entries, err := os.ReadDir(filepath.Join(dir, "topics"))
	if err != nil {
		return nil, protocol.Wrap(protocol.CodeIoError, "read topics directory", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		tid, err := strconv.ParseUint(e.Name(), 10, 32)
		if err != nil {
			continue
		}
		topicName, err := readTopicName(filepath.Join(dir, "topics", e.Name()))
		if err != nil {
			return nil, err
		}
		t, err := OpenTopic(filepath.Join(dir, "topics", e.Name()), uint32(tid), topicName, id, pCfg, clock, logger)
		if err != nil {
			return nil, err
		}
		s.topics[uint32(tid)] = t
		s.nameToID[topicName] = uint32(tid)
		if uint32(tid) > s.nextTopicID {
			s.nextTopicID = uint32(tid)
		}
	}
	return s, nil
}

// readTopicName reads the plain-text topic name file written by CreateTopic.
// Kept as a small flat file rather than the length-prefixed .info record
// format (§6) until the system boot sequence needs the full record.
func readTopicName(topicDir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(topicDir, "name"))
	if err != nil {
		return "", protocol.Wrap(protocol.CodeIoError, "read topic name file", err)
	}
	return string(data), nil
}

// CreateTopic allocates the next topic id, creates its directory and
// partitions, and indexes it by name. Fails ResourceAlreadyExists if the
// name is already taken within this stream.
func (s *Stream) CreateTopic(name string, partitionCount int, messageExpiryMicros, maxTopicSizeBytes uint64) (*Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.nameToID[name]; exists {
		return nil, protocol.AlreadyExists("topic", name)
	}
	id := s.nextTopicID + 1
	dir := filepath.Join(s.dir, "topics", strconv.FormatUint(uint64(id), 10))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, protocol.Wrap(protocol.CodeCannotCreateDirectory, "create topic directory", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "name"), []byte(name), 0o640); err != nil {
		return nil, protocol.Wrap(protocol.CodeIoError, "write topic name file", err)
	}
	t, err := NewTopic(dir, id, name, s.ID, partitionCount, s.pCfg, s.clock, s.logger)
	if err != nil {
		return nil, err
	}
	t.MessageExpiryMicros = messageExpiryMicros
	t.MaxTopicSizeBytes = maxTopicSizeBytes
	s.topics[id] = t
	s.nameToID[name] = id
	s.nextTopicID = id
	return t, nil
}

// DeleteTopic removes a topic and every one of its partitions.
func (s *Stream) DeleteTopic(id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.topics[id]
	if !ok {
		return protocol.NotFound("topic", fmt.Sprintf("%d", id))
	}
	if err := t.DeletePartitions(len(t.PartitionIDs())); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(s.dir, "topics", strconv.FormatUint(uint64(id), 10))); err != nil {
		return protocol.Wrap(protocol.CodeIoError, "remove topic directory", err)
	}
	delete(s.topics, id)
	delete(s.nameToID, t.Name)
	return nil
}

// Topic resolves id either as a bare numeric id or, via the name index, as a
// named identifier.
func (s *Stream) Topic(id ids.Identifier) (*Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id.IsNumeric() {
		t, ok := s.topics[id.Number()]
		if !ok {
			return nil, protocol.NotFound("topic", id.String())
		}
		return t, nil
	}
	tid, ok := s.nameToID[id.NameValue()]
	if !ok {
		return nil, protocol.NotFound("topic", id.String())
	}
	return s.topics[tid], nil
}

// Topics returns every topic, ordered by id.
func (s *Stream) Topics() []*Topic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Topic, 0, len(s.topics))
	for _, t := range s.topics {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Flush forces every topic's partitions to flush their buffered batches.
func (s *Stream) Flush() error {
	for _, t := range s.Topics() {
		if err := t.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// SweepRetention runs the retention sweep across every topic.
func (s *Stream) SweepRetention(nowMicros uint64) {
	for _, t := range s.Topics() {
		t.SweepRetention(nowMicros)
	}
}
