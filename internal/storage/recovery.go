package storage

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// OpenSegment loads an existing segment directory, recovering from a crash
// if needed: the index is loaded into memory, the log is scanned for any
// trailing complete frames the index missed, and a trailing partial frame is
// truncated off the log (§4.C, §8 scenario 6). A segment whose index is
// present but whose log file is missing is reported via
// ErrSegmentLogMissing so the caller can remove it.
func OpenSegment(segDir string, startOffset uint64, indexEvery int, logger *zap.Logger) (*Segment, error) {
	logPath := filepath.Join(segDir, "log")
	if _, err := os.Stat(logPath); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSegmentLogMissing
		}
		return nil, fmt.Errorf("storage: stat log file: %w", err)
	}

	index, err := readIndexFile(filepath.Join(segDir, "index"))
	if err != nil {
		return nil, fmt.Errorf("storage: read index file: %w", err)
	}
	timeIndex, err := readTimeIndexFile(filepath.Join(segDir, "timeindex"))
	if err != nil {
		return nil, fmt.Errorf("storage: read time index file: %w", err)
	}

	logFile, err := os.OpenFile(logPath, os.O_RDWR, 0o640)
	if err != nil {
		return nil, fmt.Errorf("storage: open log file: %w", err)
	}

	s := &Segment{
		StartOffset:      startOffset,
		EndOffset:        startOffset - 1,
		dir:              segDir,
		logFile:          logFile,
		logger:           logger,
		indexEntries:     index,
		timeIndexEntries: timeIndex,
		indexEvery:       indexEvery,
	}
	if s.indexEvery <= 0 {
		s.indexEvery = 1
	}

	if err := s.recoverFromLog(); err != nil {
		logFile.Close()
		return nil, err
	}

	// Reopen for append; truncation (if any) happened in recoverFromLog.
	if err := s.logFile.Close(); err != nil {
		return nil, fmt.Errorf("storage: close log after recovery: %w", err)
	}
	logFile, err = os.OpenFile(logPath, os.O_RDWR|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("storage: reopen log file: %w", err)
	}
	s.logFile = logFile
	s.logWriter = bufio.NewWriter(logFile)

	return s, nil
}

// recoverFromLog scans the whole log from the start, parsing complete
// frames and truncating any trailing partial frame. This also rebuilds
// EndOffset, SizeBytes, and MessageCount regardless of what the index
// claimed, since the index is an optimization, not the source of truth. Any
// trailing frames past what the loaded index already covers are added to
// the in-memory (and persisted) index at the configured cadence, so a crash
// between an append and its next index write doesn't leave later reads
// falling back to a position-0 scan forever.
func (s *Segment) recoverFromLog() error {
	data, err := os.ReadFile(s.logPath())
	if err != nil {
		return fmt.Errorf("storage: read log for recovery: %w", err)
	}

	var lastIndexedRel int64 = -1
	if n := len(s.indexEntries); n > 0 {
		lastIndexedRel = int64(s.indexEntries[n-1].RelativeOffset)
	}

	pos := 0
	var lastOffset uint64
	var messageCount uint64
	haveMessage := false
	sinceIndex := 0
	indexExtended := false
	for pos < len(data) {
		rec, n, err := DecodeFrame(data[pos:])
		if err != nil {
			// Partial trailing frame: truncate the log at the last
			// complete frame boundary (invariant 6).
			break
		}
		relOffset := uint32(rec.Offset - s.StartOffset)
		if int64(relOffset) > lastIndexedRel {
			sinceIndex++
			if sinceIndex >= s.indexEvery {
				s.indexEntries = append(s.indexEntries, IndexEntry{RelativeOffset: relOffset, Position: uint32(pos)})
				s.timeIndexEntries = append(s.timeIndexEntries, TimeIndexEntry{RelativeOffset: relOffset, TimestampMicros: rec.Timestamp})
				sinceIndex = 0
				indexExtended = true
			}
		}
		lastOffset = rec.Offset
		messageCount++
		haveMessage = true
		pos += n
	}
	s.sinceIndex = sinceIndex

	if pos != len(data) {
		if err := os.Truncate(s.logPath(), int64(pos)); err != nil {
			return fmt.Errorf("storage: truncate partial trailing frame: %w", err)
		}
		if s.logger != nil {
			s.logger.Warn("truncated partial trailing frame during recovery",
				zap.String("segment", s.dir), zap.Int("valid_bytes", pos), zap.Int("total_bytes", len(data)))
		}
	}

	if indexExtended {
		if err := s.persistIndices(); err != nil {
			return err
		}
	}

	s.SizeBytes = uint64(pos)
	s.MessageCount = messageCount
	if haveMessage {
		s.EndOffset = lastOffset
	} else {
		s.EndOffset = s.StartOffset - 1
	}
	return nil
}

func readIndexFile(path string) ([]IndexEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []IndexEntry
	for pos := 0; pos+indexRecordLen <= len(data); pos += indexRecordLen {
		out = append(out, IndexEntry{
			RelativeOffset: binary.LittleEndian.Uint32(data[pos:]),
			Position:       binary.LittleEndian.Uint32(data[pos+4:]),
		})
	}
	return out, nil
}

func readTimeIndexFile(path string) ([]TimeIndexEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []TimeIndexEntry
	for pos := 0; pos+timeIndexRecordLen <= len(data); pos += timeIndexRecordLen {
		out = append(out, TimeIndexEntry{
			RelativeOffset:  binary.LittleEndian.Uint32(data[pos:]),
			TimestampMicros: binary.LittleEndian.Uint64(data[pos+4:]),
		})
	}
	return out, nil
}

// FindOffsetByTimestamp binary-searches the time index for the first
// message with timestamp >= target, returning the offset to seek a read
// from. Returns (0, false) when every entry predates target (caller should
// scan the whole segment) or the index is empty.
func (s *Segment) FindOffsetByTimestamp(target uint64) (uint64, bool) {
	entries := s.TimeIndexSnapshot()
	if len(entries) == 0 {
		return 0, false
	}
	lo, hi := 0, len(entries)
	for lo < hi {
		mid := (lo + hi) / 2
		if entries[mid].TimestampMicros < target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == len(entries) {
		return 0, false
	}
	return s.StartOffset + uint64(entries[lo].RelativeOffset), true
}

var _ io.Closer = (*Segment)(nil)
