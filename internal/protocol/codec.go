package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/FairForge/brokerd/internal/ids"
)

// WireMessage is the on-wire shape of a message, shared by SendMessages and
// PollMessages payloads. It intentionally mirrors streaming.Message's fields
// rather than importing that package, keeping protocol free of engine
// dependencies so it can be unit tested in isolation.
type WireMessage struct {
	Offset    uint64
	Timestamp uint64
	IDHi      uint64 // high 64 bits of the u128 message id
	IDLo      uint64 // low 64 bits
	Checksum  uint32
	Headers   map[ids.HeaderKey]ids.HeaderValue
	Payload   []byte
}

// PartitioningKind selects how a send request's target partition is chosen.
type PartitioningKind uint8

const (
	PartitioningBalanced     PartitioningKind = 1
	PartitioningPartitionID  PartitioningKind = 2
	PartitioningMessagesKey  PartitioningKind = 3
)

// SendMessagesRequest is the decoded payload of a SendMessages command.
type SendMessagesRequest struct {
	StreamID      ids.Identifier
	TopicID       ids.Identifier
	Partitioning  PartitioningKind
	PartitionID   uint32 // valid when Partitioning == PartitioningPartitionID
	MessagesKey   []byte // valid when Partitioning == PartitioningMessagesKey
	Messages      []WireMessage
}

// EncodeSendMessagesRequest serializes a send request.
func EncodeSendMessagesRequest(req *SendMessagesRequest) ([]byte, error) {
	var buf []byte
	buf = append(buf, req.StreamID.Encode()...)
	buf = append(buf, req.TopicID.Encode()...)
	buf = append(buf, byte(req.Partitioning))

	switch req.Partitioning {
	case PartitioningPartitionID:
		buf = appendU32(buf, req.PartitionID)
	case PartitioningMessagesKey:
		if len(req.MessagesKey) > 255 {
			return nil, New(CodeMalformedPayload, "messages key longer than 255 bytes")
		}
		buf = append(buf, byte(len(req.MessagesKey)))
		buf = append(buf, req.MessagesKey...)
	case PartitioningBalanced:
		// no extra fields
	default:
		return nil, New(CodeMalformedPayload, fmt.Sprintf("unknown partitioning kind %d", req.Partitioning))
	}

	buf = appendU32(buf, uint32(len(req.Messages)))
	for _, m := range req.Messages {
		encoded, err := encodeWireMessageForSend(m)
		if err != nil {
			return nil, err
		}
		buf = append(buf, encoded...)
	}
	return buf, nil
}

func encodeWireMessageForSend(m WireMessage) ([]byte, error) {
	headerBytes, err := encodeHeaders(m.Headers)
	if err != nil {
		return nil, err
	}
	if len(headerBytes) > ids.MaxHeadersBlockLen {
		return nil, New(CodeTooLargePayload, "headers block exceeds 64KiB")
	}
	var buf []byte
	buf = appendU64(buf, m.IDHi)
	buf = appendU64(buf, m.IDLo)
	buf = appendU32(buf, uint32(len(headerBytes)))
	buf = append(buf, headerBytes...)
	buf = appendU32(buf, uint32(len(m.Payload)))
	buf = append(buf, m.Payload...)
	return buf, nil
}

// DecodeSendMessagesRequest parses a SendMessages payload.
func DecodeSendMessagesRequest(data []byte) (*SendMessagesRequest, error) {
	r := &reader{data: data}
	streamID, err := r.identifier()
	if err != nil {
		return nil, err
	}
	topicID, err := r.identifier()
	if err != nil {
		return nil, err
	}
	kindByte, err := r.u8()
	if err != nil {
		return nil, err
	}
	req := &SendMessagesRequest{StreamID: streamID, TopicID: topicID, Partitioning: PartitioningKind(kindByte)}

	switch req.Partitioning {
	case PartitioningPartitionID:
		v, err := r.u32()
		if err != nil {
			return nil, err
		}
		req.PartitionID = v
	case PartitioningMessagesKey:
		keyLen, err := r.u8()
		if err != nil {
			return nil, err
		}
		key, err := r.bytes(int(keyLen))
		if err != nil {
			return nil, err
		}
		req.MessagesKey = key
	case PartitioningBalanced:
	default:
		return nil, New(CodeMalformedPayload, fmt.Sprintf("unknown partitioning kind %d", req.Partitioning))
	}

	count, err := r.u32()
	if err != nil {
		return nil, err
	}
	req.Messages = make([]WireMessage, 0, count)
	for i := uint32(0); i < count; i++ {
		msg, err := r.messageForSend()
		if err != nil {
			return nil, err
		}
		req.Messages = append(req.Messages, msg)
	}
	return req, nil
}

// PollKind selects which message(s) a poll resolves to.
type PollKind uint8

const (
	PollOffset    PollKind = 1
	PollFirst     PollKind = 2
	PollLast      PollKind = 3
	PollNext      PollKind = 4
	PollTimestamp PollKind = 5
)

// ConsumerKind distinguishes a single consumer from a consumer-group member.
type ConsumerKind uint8

const (
	ConsumerSingle ConsumerKind = 1
	ConsumerGroup  ConsumerKind = 2
)

// PollMessagesRequest is the decoded payload of a PollMessages command.
type PollMessagesRequest struct {
	StreamID     ids.Identifier
	TopicID      ids.Identifier
	PartitionID  uint32
	ConsumerKind ConsumerKind
	ConsumerID   uint32
	Kind         PollKind
	Value        uint64 // offset or timestamp, depending on Kind
	Count        uint32
	AutoCommit   bool
}

// EncodePollMessagesRequest serializes a poll request.
func EncodePollMessagesRequest(req *PollMessagesRequest) []byte {
	var buf []byte
	buf = append(buf, req.StreamID.Encode()...)
	buf = append(buf, req.TopicID.Encode()...)
	buf = appendU32(buf, req.PartitionID)
	buf = append(buf, byte(req.ConsumerKind))
	buf = appendU32(buf, req.ConsumerID)
	buf = append(buf, byte(req.Kind))
	buf = appendU64(buf, req.Value)
	buf = appendU32(buf, req.Count)
	if req.AutoCommit {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

// DecodePollMessagesRequest parses a PollMessages payload.
func DecodePollMessagesRequest(data []byte) (*PollMessagesRequest, error) {
	r := &reader{data: data}
	streamID, err := r.identifier()
	if err != nil {
		return nil, err
	}
	topicID, err := r.identifier()
	if err != nil {
		return nil, err
	}
	partitionID, err := r.u32()
	if err != nil {
		return nil, err
	}
	consumerKind, err := r.u8()
	if err != nil {
		return nil, err
	}
	consumerID, err := r.u32()
	if err != nil {
		return nil, err
	}
	kind, err := r.u8()
	if err != nil {
		return nil, err
	}
	value, err := r.u64()
	if err != nil {
		return nil, err
	}
	count, err := r.u32()
	if err != nil {
		return nil, err
	}
	autoCommitByte, err := r.u8()
	if err != nil {
		return nil, err
	}
	return &PollMessagesRequest{
		StreamID:     streamID,
		TopicID:      topicID,
		PartitionID:  partitionID,
		ConsumerKind: ConsumerKind(consumerKind),
		ConsumerID:   consumerID,
		Kind:         PollKind(kind),
		Value:        value,
		Count:        count,
		AutoCommit:   autoCommitByte != 0,
	}, nil
}

// EncodePollMessagesResponse serializes polled messages.
func EncodePollMessagesResponse(messages []WireMessage) ([]byte, error) {
	var buf []byte
	buf = appendU32(buf, uint32(len(messages)))
	for _, m := range messages {
		headerBytes, err := encodeHeaders(m.Headers)
		if err != nil {
			return nil, err
		}
		buf = appendU64(buf, m.Offset)
		buf = appendU64(buf, m.Timestamp)
		buf = appendU64(buf, m.IDHi)
		buf = appendU64(buf, m.IDLo)
		buf = appendU32(buf, m.Checksum)
		buf = appendU32(buf, uint32(len(headerBytes)))
		buf = append(buf, headerBytes...)
		buf = appendU32(buf, uint32(len(m.Payload)))
		buf = append(buf, m.Payload...)
	}
	return buf, nil
}

// DecodePollMessagesResponse parses a poll response payload (used by
// integration tests and in-process clients).
func DecodePollMessagesResponse(data []byte) ([]WireMessage, error) {
	r := &reader{data: data}
	count, err := r.u32()
	if err != nil {
		return nil, err
	}
	out := make([]WireMessage, 0, count)
	for i := uint32(0); i < count; i++ {
		offset, err := r.u64()
		if err != nil {
			return nil, err
		}
		ts, err := r.u64()
		if err != nil {
			return nil, err
		}
		idHi, err := r.u64()
		if err != nil {
			return nil, err
		}
		idLo, err := r.u64()
		if err != nil {
			return nil, err
		}
		checksum, err := r.u32()
		if err != nil {
			return nil, err
		}
		headerLen, err := r.u32()
		if err != nil {
			return nil, err
		}
		headerBytes, err := r.bytes(int(headerLen))
		if err != nil {
			return nil, err
		}
		headers, err := decodeHeaders(headerBytes)
		if err != nil {
			return nil, err
		}
		payloadLen, err := r.u32()
		if err != nil {
			return nil, err
		}
		payload, err := r.bytes(int(payloadLen))
		if err != nil {
			return nil, err
		}
		out = append(out, WireMessage{
			Offset: offset, Timestamp: ts, IDHi: idHi, IDLo: idLo,
			Checksum: checksum, Headers: headers, Payload: payload,
		})
	}
	return out, nil
}

// --- shared encode/decode helpers ---

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

func encodeHeaders(headers map[ids.HeaderKey]ids.HeaderValue) ([]byte, error) {
	b, err := ids.EncodeHeaders(headers)
	if err != nil {
		return nil, Wrap(CodeMalformedPayload, "invalid header key", err)
	}
	return b, nil
}

func decodeHeaders(data []byte) (map[ids.HeaderKey]ids.HeaderValue, error) {
	h, err := ids.DecodeHeaders(data)
	if err != nil {
		return nil, Wrap(CodeMalformedPayload, "invalid headers block", err)
	}
	return h, nil
}

// reader is a small cursor over a byte slice used by the per-command
// decoders; it never panics on truncated input, returning MalformedPayload
// instead.
type reader struct {
	data []byte
	pos  int
}

func (r *reader) need(n int) error {
	if r.pos+n > len(r.data) {
		return New(CodeMalformedPayload, "unexpected end of payload")
	}
	return nil
}

func (r *reader) u8() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	if err := r.need(n); err != nil {
		return nil, err
	}
	v := r.data[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

func (r *reader) identifier() (ids.Identifier, error) {
	if err := r.need(2); err != nil {
		return ids.Identifier{}, err
	}
	id, n, err := ids.Decode(r.data[r.pos:])
	if err != nil {
		return ids.Identifier{}, Wrap(CodeMalformedPayload, "invalid identifier", err)
	}
	r.pos += n
	return id, nil
}

func (r *reader) messageForSend() (WireMessage, error) {
	idHi, err := r.u64()
	if err != nil {
		return WireMessage{}, err
	}
	idLo, err := r.u64()
	if err != nil {
		return WireMessage{}, err
	}
	headerLen, err := r.u32()
	if err != nil {
		return WireMessage{}, err
	}
	headerBytes, err := r.bytes(int(headerLen))
	if err != nil {
		return WireMessage{}, err
	}
	headers, err := decodeHeaders(headerBytes)
	if err != nil {
		return WireMessage{}, err
	}
	payloadLen, err := r.u32()
	if err != nil {
		return WireMessage{}, err
	}
	payload, err := r.bytes(int(payloadLen))
	if err != nil {
		return WireMessage{}, err
	}
	return WireMessage{IDHi: idHi, IDLo: idLo, Headers: headers, Payload: payload}, nil
}
