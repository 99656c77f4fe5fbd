package storage

import "errors"

// errShortFrame signals a partial trailing frame during a decode attempt;
// the recovery path uses it to find the truncation point rather than
// treating it as a hard failure.
var errShortFrame = errors.New("storage: short frame")

// ErrSegmentLogMissing is returned by OpenSegment when an index file exists
// but its log file does not; the caller treats the segment as empty.
var ErrSegmentLogMissing = errors.New("storage: segment log file missing")
