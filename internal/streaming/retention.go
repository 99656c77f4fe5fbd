package streaming

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/FairForge/brokerd/internal/protocol"
	"github.com/FairForge/brokerd/internal/storage"
)

// Purge deletes every segment and resets the partition to empty. Used by
// topic partition deletion.
func (p *Partition) Purge() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, seg := range p.segments {
		_ = seg.Close()
	}
	segRoot := filepath.Join(p.dir, "segments")
	if err := os.RemoveAll(segRoot); err != nil {
		return protocol.Wrap(protocol.CodeIoError, "purge segments", err)
	}
	if err := os.MkdirAll(segRoot, 0o750); err != nil {
		return protocol.Wrap(protocol.CodeIoError, "recreate segments directory", err)
	}
	seg, err := storage.CreateSegment(segRoot, 0, p.cfg.IndexEvery, p.logger)
	if err != nil {
		return protocol.Wrap(protocol.CodeIoError, "create fresh segment", err)
	}
	p.segments = []*storage.Segment{seg}
	p.currentOffset = 0
	p.hasMessages = false
	p.sizeBytes = 0
	p.messagesCount = 0
	p.unflushed = p.unflushed[:0]
	p.unflushedBytes = 0
	return nil
}

// SweepRetention removes fully-expired closed segments (every message older
// than messageExpiryMicros, when non-zero) or evicts the oldest closed
// segments while the partition's size exceeds maxTopicSize. The active
// segment is never deleted (§4.D).
func (p *Partition) SweepRetention(nowMicros uint64, messageExpiryMicros uint64, maxTopicSize uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.segments) > 1 {
		oldest := p.segments[0]
		expired := messageExpiryMicros > 0 && segmentFullyExpired(oldest, nowMicros, messageExpiryMicros)
		overSize := maxTopicSize > 0 && p.sizeBytes > maxTopicSize
		if !expired && !overSize {
			break
		}
		if err := p.evictOldestSegment(); err != nil {
			p.logger.Error("retention sweep failed to evict segment",
				zap.Uint32("partition", p.ID), zap.Error(err))
			break
		}
	}
}

func segmentFullyExpired(seg *storage.Segment, now, expiry uint64) bool {
	entries := seg.TimeIndexSnapshot()
	if len(entries) == 0 {
		return false
	}
	newest := entries[len(entries)-1].TimestampMicros
	return now > newest && now-newest > expiry
}

// evictOldestSegment removes the oldest (already-closed) segment directory.
// Called with p.mu held and len(p.segments) > 1 so the active segment is
// never touched.
func (p *Partition) evictOldestSegment() error {
	oldest := p.segments[0]
	segDir := filepath.Join(p.dir, "segments")
	dirName := filepath.Join(segDir, storage.SegmentDirName(oldest.StartOffset))
	if err := os.RemoveAll(dirName); err != nil {
		return err
	}
	p.sizeBytes -= oldest.SizeBytes
	p.messagesCount -= oldest.MessageCount
	p.segments = p.segments[1:]
	return nil
}
