package protocol

import (
	"bytes"
	"testing"

	"github.com/FairForge/brokerd/internal/ids"
)

func TestSendMessagesRoundTrip(t *testing.T) {
	req := &SendMessagesRequest{
		StreamID:     ids.Numeric(1),
		TopicID:      ids.Numeric(1),
		Partitioning: PartitioningMessagesKey,
		MessagesKey:  []byte{0x01},
		Messages: []WireMessage{
			{Payload: []byte("m1"), Headers: map[ids.HeaderKey]ids.HeaderValue{"k": ids.NewStringHeader("v")}},
			{Payload: []byte("m2")},
		},
	}
	encoded, err := EncodeSendMessagesRequest(req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeSendMessagesRequest(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Partitioning != PartitioningMessagesKey || !bytes.Equal(decoded.MessagesKey, req.MessagesKey) {
		t.Fatalf("partitioning mismatch: %+v", decoded)
	}
	if len(decoded.Messages) != 2 || string(decoded.Messages[0].Payload) != "m1" || string(decoded.Messages[1].Payload) != "m2" {
		t.Fatalf("messages mismatch: %+v", decoded.Messages)
	}
	v, err := decoded.Messages[0].Headers["k"].AsString()
	if err != nil || v != "v" {
		t.Fatalf("header mismatch: %v %v", v, err)
	}
}

func TestPollMessagesRoundTrip(t *testing.T) {
	req := &PollMessagesRequest{
		StreamID: ids.Name("s"), TopicID: ids.Name("t"), PartitionID: 1,
		ConsumerKind: ConsumerSingle, ConsumerID: 42,
		Kind: PollNext, Count: 10, AutoCommit: true,
	}
	encoded := EncodePollMessagesRequest(req)
	decoded, err := DecodePollMessagesRequest(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ConsumerID != 42 || decoded.Kind != PollNext || !decoded.AutoCommit || decoded.Count != 10 {
		t.Fatalf("mismatch: %+v", decoded)
	}
	if decoded.StreamID.NameValue() != "s" || decoded.TopicID.NameValue() != "t" {
		t.Fatalf("identifier mismatch: %+v", decoded)
	}
}

func TestPollMessagesResponseRoundTrip(t *testing.T) {
	msgs := []WireMessage{
		{Offset: 0, Timestamp: 100, Checksum: 42, Payload: []byte("hello")},
		{Offset: 1, Timestamp: 200, Checksum: 43, Payload: []byte("world")},
	}
	encoded, err := EncodePollMessagesResponse(msgs)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodePollMessagesResponse(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 2 || decoded[0].Offset != 0 || decoded[1].Offset != 1 {
		t.Fatalf("mismatch: %+v", decoded)
	}
	if string(decoded[0].Payload) != "hello" || string(decoded[1].Payload) != "world" {
		t.Fatalf("payload mismatch: %+v", decoded)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello world")
	total := uint32(4 + len(payload))
	header := make([]byte, 8)
	header[0] = byte(total)
	header[4] = byte(CommandPing)
	buf.Write(header)
	buf.Write(payload)

	frame, err := ReadRequestFrame(&buf, MaxFramePayload)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if frame.CommandCode != CommandPing || !bytes.Equal(frame.Payload, payload) {
		t.Fatalf("mismatch: %+v", frame)
	}
}

func TestReadRequestFrameRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	header := make([]byte, 8)
	header[0] = 255 // total_length = 255, payload = 251 bytes
	buf.Write(header)
	if _, err := ReadRequestFrame(&buf, 10); CodeOf(err) != CodeTooLargePayload {
		t.Fatalf("expected TooLargePayload, got %v", err)
	}
}

func TestWriteResponseFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResponseFrame(&buf, OKResponse([]byte("ok"))); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := buf.Bytes()
	if len(got) != 8+2 {
		t.Fatalf("unexpected length %d", len(got))
	}
}
