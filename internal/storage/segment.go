package storage

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
)

const (
	indexRecordLen     = 4 + 4 // relative_offset u32 | log_position u32
	timeIndexRecordLen = 4 + 8 // relative_offset u32 | timestamp_micros u64
)

// IndexEntry is one (relative_offset, log_position) record.
type IndexEntry struct {
	RelativeOffset uint32
	Position       uint32
}

// TimeIndexEntry is one (relative_offset, timestamp_micros) record.
type TimeIndexEntry struct {
	RelativeOffset uint32
	TimestampMicros uint64
}

// Segment is one slice of a partition's log: a log file plus its offset and
// time indices. Exactly one segment per partition is writable at a time.
type Segment struct {
	mu sync.Mutex

	StartOffset uint64
	EndOffset   uint64 // inclusive of the last written message; StartOffset-1 when empty
	SizeBytes   uint64
	MessageCount uint64
	IsClosed    bool

	dir string

	indexEntries     []IndexEntry
	timeIndexEntries []TimeIndexEntry

	logFile  *os.File
	logWriter *bufio.Writer
	logger   *zap.Logger

	// indexEvery controls how often an (index, time-index) record is
	// appended: every N messages, default every message (§4.C).
	indexEvery int
	sinceIndex int
}

// SegmentDirName returns the directory name a segment starting at
// startOffset is stored under: the zero-padded offset itself (§6).
func SegmentDirName(startOffset uint64) string {
	return fmt.Sprintf("%020d", startOffset)
}

// CreateSegment creates a brand-new, writable segment rooted at dir/startOffset.
func CreateSegment(dir string, startOffset uint64, indexEvery int, logger *zap.Logger) (*Segment, error) {
	segDir := filepath.Join(dir, SegmentDirName(startOffset))
	if err := os.MkdirAll(segDir, 0o750); err != nil {
		return nil, fmt.Errorf("storage: create segment directory: %w", err)
	}
	if indexEvery <= 0 {
		indexEvery = 1
	}
	logFile, err := os.OpenFile(filepath.Join(segDir, "log"), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("storage: create log file: %w", err)
	}
	s := &Segment{
		StartOffset: startOffset,
		EndOffset:   startOffset - 1, // empty: no message written yet
		dir:         segDir,
		logFile:     logFile,
		logWriter:   bufio.NewWriter(logFile),
		logger:      logger,
		indexEvery:  indexEvery,
	}
	return s, nil
}

// logPath, indexPath, timeIndexPath return this segment's three file paths.
func (s *Segment) logPath() string       { return filepath.Join(s.dir, "log") }
func (s *Segment) indexPath() string     { return filepath.Join(s.dir, "index") }
func (s *Segment) timeIndexPath() string { return filepath.Join(s.dir, "timeindex") }

// Append writes one message frame to the log and, on the configured
// cadence, one index and one time-index record. Callers hold the owning
// partition's lock; Append additionally takes the segment's own mutex so a
// concurrent reader (which clones the index under this same mutex, see
// IndexSnapshot) never observes a half-updated index.
func (s *Segment) Append(rec Record) error {
	frame, err := EncodeFrame(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.IsClosed {
		return fmt.Errorf("storage: append to closed segment %d", s.StartOffset)
	}

	position := s.SizeBytes
	if _, err := s.logWriter.Write(frame); err != nil {
		return fmt.Errorf("storage: write log frame: %w", err)
	}

	relOffset := uint32(rec.Offset - s.StartOffset)
	s.sinceIndex++
	if s.sinceIndex >= s.indexEvery {
		s.indexEntries = append(s.indexEntries, IndexEntry{RelativeOffset: relOffset, Position: uint32(position)})
		s.timeIndexEntries = append(s.timeIndexEntries, TimeIndexEntry{RelativeOffset: relOffset, TimestampMicros: rec.Timestamp})
		s.sinceIndex = 0
	}

	s.EndOffset = rec.Offset
	s.SizeBytes += uint64(len(frame))
	s.MessageCount++
	return nil
}

// Flush forces buffered log writes (and, per fsyncPolicy, an fsync) to disk,
// and appends any pending index/time-index records.
func (s *Segment) Flush(fsync bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.logWriter.Flush(); err != nil {
		return fmt.Errorf("storage: flush log: %w", err)
	}
	if fsync {
		if err := s.logFile.Sync(); err != nil {
			return fmt.Errorf("storage: fsync log: %w", err)
		}
	}
	if err := s.persistIndices(); err != nil {
		return err
	}
	return nil
}

// persistIndices rewrites the index and time-index files from the in-memory
// slices. Called with s.mu held.
func (s *Segment) persistIndices() error {
	if err := writeIndexFile(s.indexPath(), s.indexEntries); err != nil {
		return err
	}
	if err := writeTimeIndexFile(s.timeIndexPath(), s.timeIndexEntries); err != nil {
		return err
	}
	return nil
}

// Close flushes and releases the segment's open file handle, marking it
// closed (sealed): no further appends are accepted.
func (s *Segment) Close() error {
	if err := s.Flush(true); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.IsClosed = true
	if s.logFile != nil {
		if err := s.logFile.Close(); err != nil {
			return fmt.Errorf("storage: close log file: %w", err)
		}
		s.logFile = nil
	}
	return nil
}

// ShouldRoll reports whether the segment has reached the size or message
// count threshold and should be sealed before the next append. Per the
// redesign note, the check is evaluated before appending a new message but
// does not retroactively shrink a message already written — an oversized
// single message can push a segment past the threshold (soft cap, §9).
func (s *Segment) ShouldRoll(sizeThreshold uint64, countThreshold uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sizeThreshold > 0 && s.SizeBytes >= sizeThreshold {
		return true
	}
	if countThreshold > 0 && s.MessageCount >= countThreshold {
		return true
	}
	return false
}

// IndexSnapshot returns a copy of the in-memory index entries. Readers clone
// under the segment's own mutex and scan without holding it (§5 copy-on-write).
func (s *Segment) IndexSnapshot() []IndexEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]IndexEntry, len(s.indexEntries))
	copy(out, s.indexEntries)
	return out
}

// TimeIndexSnapshot returns a copy of the in-memory time-index entries.
func (s *Segment) TimeIndexSnapshot() []TimeIndexEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TimeIndexEntry, len(s.timeIndexEntries))
	copy(out, s.timeIndexEntries)
	return out
}

// ReadRange returns messages with StartOffset<=offset<=endOffset found in
// this segment, in ascending order. It reads the log file independently of
// any open write handle (closed segments open lazily per read, §5).
func (s *Segment) ReadRange(startOffset, endOffset uint64) ([]Record, error) {
	index := s.IndexSnapshot()

	f, err := os.Open(s.logPath())
	if err != nil {
		return nil, fmt.Errorf("storage: open log for read: %w", err)
	}
	defer f.Close()

	position := findSeekPosition(index, s.StartOffset, startOffset)
	if _, err := f.Seek(int64(position), io.SeekStart); err != nil {
		return nil, fmt.Errorf("storage: seek log: %w", err)
	}

	var out []Record
	r := bufio.NewReader(f)
	for {
		rec, err := readOneFrame(r)
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		if rec.Offset > endOffset {
			break
		}
		if rec.Offset >= startOffset {
			out = append(out, *rec)
		}
	}
	return out, nil
}

// findSeekPosition binary-searches the index for the greatest
// (rel_offset, position) with rel_offset <= start-segStart, returning 0 (the
// start of the log) when the index is empty or start predates every entry.
func findSeekPosition(index []IndexEntry, segStart, start uint64) uint32 {
	if start <= segStart || len(index) == 0 {
		return 0
	}
	target := uint32(start - segStart)
	i := sort.Search(len(index), func(i int) bool { return index[i].RelativeOffset > target })
	if i == 0 {
		return 0
	}
	return index[i-1].Position
}

func readOneFrame(r *bufio.Reader) (*Record, error) {
	header := make([]byte, frameFixedLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	headersLen := binary.LittleEndian.Uint32(header[24:28])
	rest := make([]byte, headersLen+4)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, io.ErrUnexpectedEOF
	}
	payloadLen := binary.LittleEndian.Uint32(rest[headersLen:])
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, io.ErrUnexpectedEOF
	}
	full := make([]byte, 0, len(header)+len(rest)+len(payload))
	full = append(full, header...)
	full = append(full, rest...)
	full = append(full, payload...)
	rec, _, err := DecodeFrame(full)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func writeIndexFile(path string, entries []IndexEntry) error {
	buf := make([]byte, 0, len(entries)*indexRecordLen)
	for _, e := range entries {
		buf = appendU32(buf, e.RelativeOffset)
		buf = appendU32(buf, e.Position)
	}
	return os.WriteFile(path, buf, 0o640)
}

func writeTimeIndexFile(path string, entries []TimeIndexEntry) error {
	buf := make([]byte, 0, len(entries)*timeIndexRecordLen)
	for _, e := range entries {
		buf = appendU32(buf, e.RelativeOffset)
		buf = appendU64(buf, e.TimestampMicros)
	}
	return os.WriteFile(path, buf, 0o640)
}
