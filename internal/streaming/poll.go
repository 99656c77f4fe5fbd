package streaming

import (
	"github.com/FairForge/brokerd/internal/protocol"
	"github.com/FairForge/brokerd/internal/storage"
)

// PollKind mirrors protocol.PollKind but lives in the engine so callers that
// don't want a protocol dependency (tests, the HTTP mapping) can use it
// directly.
type PollKind = protocol.PollKind

const (
	PollOffset    = protocol.PollOffset
	PollFirst     = protocol.PollFirst
	PollLast      = protocol.PollLast
	PollNext      = protocol.PollNext
	PollTimestamp = protocol.PollTimestamp
)

// Poll resolves the requested offset/timestamp, reads up to count messages
// from that point, and — if autoCommit — stores the last returned offset
// under identity before returning.
func (p *Partition) Poll(kind PollKind, value uint64, count uint32, autoCommit bool, identity ConsumerIdentity) ([]Message, error) {
	p.mu.Lock()
	if p.readOnly {
		p.mu.Unlock()
		return nil, protocol.New(protocol.CodeCorrupted, "partition is read-only after a background storage error")
	}
	current, hasMessages := p.currentOffset, p.hasMessages
	p.mu.Unlock()

	if !hasMessages {
		return nil, nil
	}

	startOffset, err := p.resolveStartOffset(kind, value, identity)
	if err != nil {
		return nil, err
	}
	if startOffset > current {
		return nil, nil
	}

	records, err := p.readRange(startOffset, current, count)
	if err != nil {
		return nil, err
	}

	messages := make([]Message, len(records))
	for i, r := range records {
		msg := fromRecord(r)
		if p.cfg.Cipher != nil {
			plaintext, err := p.openPayload(msg.Payload)
			if err != nil {
				return nil, err
			}
			msg.Payload = plaintext
		}
		messages[i] = msg
	}

	if autoCommit && len(messages) > 0 {
		lastOffset := messages[len(messages)-1].Offset
		if err := p.StoreConsumerOffset(identity, lastOffset); err != nil {
			return nil, err
		}
	}
	return messages, nil
}

// resolveStartOffset implements the offset_kind semantics from §4.D.
func (p *Partition) resolveStartOffset(kind PollKind, value uint64, identity ConsumerIdentity) (uint64, error) {
	switch kind {
	case PollOffset:
		return value, nil
	case PollFirst:
		return p.firstOffset(), nil
	case PollLast:
		current, has := p.CurrentOffset()
		if !has {
			return 0, nil
		}
		return current, nil
	case PollNext:
		stored, ok := p.GetConsumerOffset(identity)
		if !ok {
			return 0, nil
		}
		return stored + 1, nil
	case PollTimestamp:
		return p.offsetByTimestamp(value), nil
	default:
		return 0, protocol.New(protocol.CodeMalformedPayload, "unknown poll kind")
	}
}

func (p *Partition) firstOffset() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.segments) == 0 {
		return 0
	}
	return p.segments[0].StartOffset
}

// offsetByTimestamp does an index-assisted binary search across segments for
// the first message with timestamp >= target.
func (p *Partition) offsetByTimestamp(target uint64) uint64 {
	p.mu.Lock()
	segs := append([]*storage.Segment(nil), p.segments...)
	p.mu.Unlock()

	for _, seg := range segs {
		if off, ok := seg.FindOffsetByTimestamp(target); ok {
			return off
		}
	}
	current, _ := p.CurrentOffset()
	return current + 1 // past the end: poll will return no messages
}

type segmentSpan struct {
	start, end uint64
	seg        *storage.Segment
}

// readRange collects up to count messages starting at startOffset, reading
// across however many segments the range spans, then fills in from the
// in-memory unflushed batch for any tail the log file doesn't contain yet
// (Append buffers into bufio and only flushes on a threshold, roll, or
// periodic tick — ReadRange alone would miss that tail entirely).
func (p *Partition) readRange(startOffset, endOffset uint64, count uint32) ([]storage.Record, error) {
	p.mu.Lock()
	spans := make([]segmentSpan, len(p.segments))
	for i, s := range p.segments {
		spans[i] = segmentSpan{start: s.StartOffset, end: s.EndOffset, seg: s}
	}
	unflushed := append([]Message(nil), p.unflushed...)
	p.mu.Unlock()

	var out []storage.Record
	for _, span := range spans {
		if uint32(len(out)) >= count {
			break
		}
		if span.end < startOffset || span.start > endOffset {
			continue
		}
		recs, err := span.seg.ReadRange(startOffset, endOffset)
		if err != nil {
			return nil, protocol.Wrap(protocol.CodeIoError, "read segment range", err)
		}
		for _, r := range recs {
			if uint32(len(out)) >= count {
				break
			}
			out = append(out, r)
		}
	}

	haveOffsets := make(map[uint64]struct{}, len(out))
	for _, r := range out {
		haveOffsets[r.Offset] = struct{}{}
	}
	for _, m := range unflushed {
		if uint32(len(out)) >= count {
			break
		}
		if m.Offset < startOffset || m.Offset > endOffset {
			continue
		}
		if _, ok := haveOffsets[m.Offset]; ok {
			continue
		}
		out = append(out, m.toRecord())
	}
	return out, nil
}
