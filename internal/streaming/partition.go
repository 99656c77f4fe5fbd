package streaming

import (
	"crypto/cipher"
	"crypto/rand"
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
	"github.com/FairForge/brokerd/internal/storage"
)

// FsyncPolicy controls when a partition's buffered writes are synced to
// disk (§6 system.partition config).
type FsyncPolicy string

const (
	FsyncNone       FsyncPolicy = "none"
	FsyncEveryFlush FsyncPolicy = "every_flush"
	FsyncEveryMs    FsyncPolicy = "every_ms"
)

// PartitionConfig holds the durability/rollover knobs a partition is built
// with, mirroring the system.segment and system.partition config sections.
type PartitionConfig struct {
	SegmentSizeThreshold     uint64 // bytes; default 1GiB
	SegmentMessagesThreshold uint64 // 0 = unbounded
	MessagesRequiredToSave   uint64 // default 10000
	BatchSizeBytesThreshold  uint64 // 0 = unbounded
	IndexEvery               int    // default 1 (index every message)
	Fsync                    FsyncPolicy

	// Cipher, when non-nil, is used to seal payloads before they are written
	// to a segment and open them after a read (§9, §6 system.encryption).
	// Checksums and on-disk size are computed over the sealed bytes.
	Cipher cipher.AEAD
}

// DefaultPartitionConfig returns the documented defaults (§4.C).
func DefaultPartitionConfig() PartitionConfig {
	return PartitionConfig{
		SegmentSizeThreshold:   1 << 30,
		MessagesRequiredToSave: 10000,
		IndexEvery:             1,
		Fsync:                  FsyncEveryFlush,
	}
}

// ConsumerIdentity names whose offset is being read or stored: either a bare
// consumer id, or a (group, consumer) pair for a consumer-group member.
type ConsumerIdentity struct {
	GroupID    uint32 // 0 when this is not a group member
	ConsumerID uint32
}

func (c ConsumerIdentity) isGroup() bool { return c.GroupID != 0 }

// Partition is the unit of serialization: append and poll on a single
// partition are linearized by its mutex, but partitions run fully in
// parallel with each other (§5).
type Partition struct {
	ID, TopicID, StreamID uint32
	CreatedAt             uint64

	mu sync.Mutex

	dir    string
	clock  func() time.Time
	logger *zap.Logger
	cfg    PartitionConfig

	segments []*storage.Segment // ordered; last is the writable one

	// unflushed holds messages appended to the active segment's bufio
	// writer but not yet flushed to the log file. A poll must merge these in
	// (readRange) since ReadRange only sees bytes the OS can read back; a
	// forced flush (messagesRequiredToSave/batchSizeBytesThreshold, §4.C) or
	// roll clears it once the writer is actually flushed.
	unflushed      []Message
	unflushedBytes uint64

	consumerOffsets      map[uint32]uint64
	consumerGroupOffsets map[ConsumerIdentity]uint64

	currentOffset uint64 // last appended offset; 0 messages means no offset assigned yet
	hasMessages   bool

	sizeBytes     uint64
	messagesCount uint64

	readOnly bool // set when a background error leaves the partition inconsistent
}

// NewPartition creates a brand-new, empty partition rooted at dir.
func NewPartition(dir string, id, topicID, streamID uint32, cfg PartitionConfig, clock func() time.Time, logger *zap.Logger) (*Partition, error) {
	if err := os.MkdirAll(filepath.Join(dir, "segments"), 0o750); err != nil {
		return nil, fmt.Errorf("streaming: create partition directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "offsets", "consumer_offsets"), 0o750); err != nil {
		return nil, fmt.Errorf("streaming: create offsets directory: %w", err)
	}
	seg, err := storage.CreateSegment(filepath.Join(dir, "segments"), 0, cfg.IndexEvery, logger)
	if err != nil {
		return nil, err
	}
	return &Partition{
		ID: id, TopicID: topicID, StreamID: streamID,
		CreatedAt:            ids.MicrosNow(clock()),
		dir:                  dir,
		clock:                clock,
		logger:               logger,
		cfg:                  cfg,
		segments:             []*storage.Segment{seg},
		consumerOffsets:      make(map[uint32]uint64),
		consumerGroupOffsets: make(map[ConsumerIdentity]uint64),
	}, nil
}

// OpenPartition recovers an existing partition directory: every segment
// subdirectory is opened (index loaded, log recovered per §4.C), and
// consumer offsets are reloaded from their files.
func OpenPartition(dir string, id, topicID, streamID uint32, cfg PartitionConfig, clock func() time.Time, logger *zap.Logger) (*Partition, error) {
	segRoot := filepath.Join(dir, "segments")
	entries, err := os.ReadDir(segRoot)
	if err != nil {
		return nil, fmt.Errorf("streaming: read segments directory: %w", err)
	}
	var starts []uint64
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		start, err := strconv.ParseUint(e.Name(), 10, 64)
		if err != nil {
			continue
		}
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	p := &Partition{
		ID: id, TopicID: topicID, StreamID: streamID,
		dir: dir, clock: clock, logger: logger, cfg: cfg,
		consumerOffsets:      make(map[uint32]uint64),
		consumerGroupOffsets: make(map[ConsumerIdentity]uint64),
	}

	for _, start := range starts {
		segDir := filepath.Join(segRoot, storage.SegmentDirName(start))
		seg, err := storage.OpenSegment(segDir, start, cfg.IndexEvery, logger)
		if err == storage.ErrSegmentLogMissing {
			logger.Warn("removing segment with missing log file", zap.String("dir", segDir))
			_ = os.RemoveAll(segDir)
			continue
		}
		if err != nil {
			return nil, err
		}
		p.segments = append(p.segments, seg)
	}
	if len(p.segments) == 0 {
		seg, err := storage.CreateSegment(segRoot, 0, cfg.IndexEvery, logger)
		if err != nil {
			return nil, err
		}
		p.segments = []*storage.Segment{seg}
	}

	for _, seg := range p.segments {
		p.sizeBytes += seg.SizeBytes
		p.messagesCount += seg.MessageCount
	}
	// The last segment holds the highest offset ever written; if it's
	// empty (a fresh roll with nothing appended since), fall back to the
	// previous segment's end offset.
	if last := p.segments[len(p.segments)-1]; last.MessageCount > 0 {
		p.currentOffset = last.EndOffset
		p.hasMessages = true
	} else if len(p.segments) > 1 {
		prev := p.segments[len(p.segments)-2]
		p.currentOffset = prev.EndOffset
		p.hasMessages = prev.MessageCount > 0
	}

	if err := p.loadConsumerOffsets(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Partition) activeSegment() *storage.Segment { return p.segments[len(p.segments)-1] }

// Append assigns monotonically increasing offsets to messages, stamps the
// current timestamp, computes the checksum, and writes them to the active
// segment, rolling to a new segment first if the active one is already over
// threshold (finish the in-flight batch into the old segment, then roll —
// the interleaving resolved in §9).
func (p *Partition) Append(messages []Message, maxTopicSize uint64) ([]Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.readOnly {
		return nil, protocol.New(protocol.CodeCorrupted, "partition is read-only after a background storage error")
	}

	for _, m := range messages {
		if len(m.Payload) < 1 || len(m.Payload) > MaxPayloadLen {
			return nil, protocol.New(protocol.CodeTooLargePayload, fmt.Sprintf("payload length %d out of bounds", len(m.Payload)))
		}
	}
	if maxTopicSize > 0 && p.sizeBytes >= maxTopicSize {
		return nil, protocol.New(protocol.CodePartitionFull, "topic size limit reached")
	}

	if p.activeSegment().ShouldRoll(p.cfg.SegmentSizeThreshold, p.cfg.SegmentMessagesThreshold) {
		if err := p.roll(); err != nil {
			return nil, err
		}
	}

	now := nowMicros(p.clock)
	appended := make([]Message, len(messages))
	for i, m := range messages {
		var offset uint64
		if p.hasMessages {
			offset = p.currentOffset + 1
		} else {
			offset = 0
		}
		m.Offset = offset
		m.Timestamp = now

		stored := m
		if p.cfg.Cipher != nil {
			sealed, err := p.sealPayload(m.Payload)
			if err != nil {
				return nil, err
			}
			stored.Payload = sealed
		}
		stored.Checksum = storage.ChecksumPayload(stored.Payload)

		if err := p.activeSegment().Append(stored.toRecord()); err != nil {
			return nil, protocol.Wrap(protocol.CodeIoError, "append to segment", err)
		}
		p.unflushed = append(p.unflushed, stored)
		p.unflushedBytes += uint64(frameApproxSize(stored))

		p.currentOffset = offset
		p.hasMessages = true
		p.sizeBytes += uint64(frameApproxSize(stored))
		p.messagesCount++
		m.Checksum = stored.Checksum
		appended[i] = m
	}

	if p.shouldForceFlushLocked() {
		if err := p.flushLocked(); err != nil {
			return nil, err
		}
	}

	// Soft cap (§9): the rollover check above runs before this batch, so a
	// single oversized batch can push the segment past the threshold; it
	// is only enforced again on the next append.
	return appended, nil
}

// shouldForceFlushLocked reports whether the unflushed batch has reached the
// configured count or byte threshold and must be pushed to disk now, rather
// than waiting for the next periodic flush tick (§4.C). Called with p.mu
// held.
func (p *Partition) shouldForceFlushLocked() bool {
	if p.cfg.MessagesRequiredToSave > 0 && uint64(len(p.unflushed)) >= p.cfg.MessagesRequiredToSave {
		return true
	}
	if p.cfg.BatchSizeBytesThreshold > 0 && p.unflushedBytes >= p.cfg.BatchSizeBytesThreshold {
		return true
	}
	return false
}

// flushLocked flushes the active segment's buffered writer (and, per the
// fsync policy, syncs it) and clears the in-memory unflushed batch now that
// every one of those messages is readable straight off disk. Called with
// p.mu held.
func (p *Partition) flushLocked() error {
	fsync := p.cfg.Fsync != FsyncNone
	if err := p.activeSegment().Flush(fsync); err != nil {
		p.readOnly = true
		return protocol.Wrap(protocol.CodeCorrupted, "flush left partition inconsistent", err)
	}
	p.unflushed = p.unflushed[:0]
	p.unflushedBytes = 0
	return nil
}

// sealPayload encrypts plaintext with the partition's cipher, prefixing a
// fresh random nonce (§9 AES-256-GCM).
func (p *Partition) sealPayload(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, p.cfg.Cipher.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, protocol.Wrap(protocol.CodeIoError, "generate encryption nonce", err)
	}
	return p.cfg.Cipher.Seal(nonce, nonce, plaintext, nil), nil
}

// openPayload reverses sealPayload: it splits off the leading nonce and
// authenticates/decrypts the remainder.
func (p *Partition) openPayload(sealed []byte) ([]byte, error) {
	nonceSize := p.cfg.Cipher.NonceSize()
	if len(sealed) < nonceSize {
		return nil, protocol.New(protocol.CodeCorrupted, "encrypted payload shorter than nonce")
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := p.cfg.Cipher.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, protocol.Wrap(protocol.CodeCorrupted, "decrypt payload", err)
	}
	return plaintext, nil
}

func frameApproxSize(m Message) int {
	return 8 + 8 + 16 + 4 + 4 + 4 + len(m.Payload) + ids.HeadersBlockSize(m.Headers)
}

// roll closes the active segment and opens a new one starting at the next
// offset. Called with p.mu held.
func (p *Partition) roll() error {
	active := p.activeSegment()
	if err := active.Close(); err != nil {
		return protocol.Wrap(protocol.CodeIoError, "close rolling segment", err)
	}
	nextStart := active.EndOffset + 1
	seg, err := storage.CreateSegment(filepath.Join(p.dir, "segments"), nextStart, p.cfg.IndexEvery, p.logger)
	if err != nil {
		return protocol.Wrap(protocol.CodeIoError, "create new segment", err)
	}
	p.segments = append(p.segments, seg)
	// active.Close() above already flushed every message written to it, so
	// the unflushed batch (all of which belonged to the now-sealed segment)
	// is durable on disk.
	p.unflushed = p.unflushed[:0]
	p.unflushedBytes = 0
	return nil
}

// Flush forces the active segment's buffered batch to disk, per the
// configured fsync policy.
func (p *Partition) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked()
}

// CurrentOffset returns the last appended offset and whether any message has
// ever been appended (an empty partition has no current offset).
func (p *Partition) CurrentOffset() (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentOffset, p.hasMessages
}

// Stats returns size/message-count snapshot values.
func (p *Partition) Stats() (sizeBytes, messagesCount uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sizeBytes, p.messagesCount
}
