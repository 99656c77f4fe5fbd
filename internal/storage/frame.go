// Package storage implements the on-disk segment layout: the log, index,
// and time-index files that back a partition, crash-safe append, and
// range/timestamp reads.
package storage

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/FairForge/brokerd/internal/ids"
)

// Record is one message as stored in a segment's log file.
type Record struct {
	Offset    uint64
	Timestamp uint64
	IDHi      uint64
	IDLo      uint64
	Checksum  uint32
	Headers   map[ids.HeaderKey]ids.HeaderValue
	Payload   []byte
}

// frameFixedLen is the size of every fixed-width field preceding the
// variable-length headers/payload blocks:
// offset(8) + timestamp(8) + id(16) + checksum(4) + headers_len(4) + payload_len(4)
const frameFixedLen = 8 + 8 + 16 + 4 + 4 + 4

// EncodeFrame serializes one message frame:
// u64 offset | u64 timestamp | u128 id | u32 checksum | u32 headers_len | headers | u32 payload_len | payload
func EncodeFrame(r Record) ([]byte, error) {
	headerBytes, err := ids.EncodeHeaders(r.Headers)
	if err != nil {
		return nil, fmt.Errorf("storage: encode headers: %w", err)
	}
	buf := make([]byte, 0, frameFixedLen+len(headerBytes)+len(r.Payload))
	buf = appendU64(buf, r.Offset)
	buf = appendU64(buf, r.Timestamp)
	buf = appendU64(buf, r.IDHi)
	buf = appendU64(buf, r.IDLo)
	buf = appendU32(buf, r.Checksum)
	buf = appendU32(buf, uint32(len(headerBytes)))
	buf = append(buf, headerBytes...)
	buf = appendU32(buf, uint32(len(r.Payload)))
	buf = append(buf, r.Payload...)
	return buf, nil
}

// ChecksumPayload computes the CRC32 (IEEE) checksum of a message payload.
func ChecksumPayload(payload []byte) uint32 {
	return crc32.ChecksumIEEE(payload)
}

// DecodeFrame parses one frame from the front of data, returning the record
// and the number of bytes consumed. It returns (nil, 0, errShortFrame) when
// data holds a partial trailing frame, which the recovery path uses to find
// the truncation point.
func DecodeFrame(data []byte) (*Record, int, error) {
	if len(data) < frameFixedLen {
		return nil, 0, errShortFrame
	}
	pos := 0
	offset := binary.LittleEndian.Uint64(data[pos:])
	pos += 8
	timestamp := binary.LittleEndian.Uint64(data[pos:])
	pos += 8
	idHi := binary.LittleEndian.Uint64(data[pos:])
	pos += 8
	idLo := binary.LittleEndian.Uint64(data[pos:])
	pos += 8
	checksum := binary.LittleEndian.Uint32(data[pos:])
	pos += 4
	headersLen := int(binary.LittleEndian.Uint32(data[pos:]))
	pos += 4
	if pos+headersLen > len(data) {
		return nil, 0, errShortFrame
	}
	headerBytes := data[pos : pos+headersLen]
	pos += headersLen
	if pos+4 > len(data) {
		return nil, 0, errShortFrame
	}
	payloadLen := int(binary.LittleEndian.Uint32(data[pos:]))
	pos += 4
	if pos+payloadLen > len(data) {
		return nil, 0, errShortFrame
	}
	payload := make([]byte, payloadLen)
	copy(payload, data[pos:pos+payloadLen])
	pos += payloadLen

	headers, err := ids.DecodeHeaders(headerBytes)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: decode headers: %w", err)
	}

	return &Record{
		Offset: offset, Timestamp: timestamp, IDHi: idHi, IDLo: idLo,
		Checksum: checksum, Headers: headers, Payload: payload,
	}, pos, nil
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}
