package streaming

import (
	"crypto/aes"
	"crypto/cipher"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/brokerd/internal/protocol"
)

func testClock() time.Time { return time.Unix(1700000000, 0).UTC() }

func newTestPartition(t *testing.T, cfg PartitionConfig) *Partition {
	t.Helper()
	dir := t.TempDir()
	p, err := NewPartition(dir, 1, 1, 1, cfg, testClock, zap.NewNop())
	if err != nil {
		t.Fatalf("NewPartition: %v", err)
	}
	return p
}

func TestPartitionAppendAssignsContiguousOffsets(t *testing.T) {
	p := newTestPartition(t, DefaultPartitionConfig())
	msgs := []Message{{Payload: []byte("one")}, {Payload: []byte("two")}, {Payload: []byte("three")}}
	appended, err := p.Append(msgs, 0)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	for i, m := range appended {
		if m.Offset != uint64(i) {
			t.Fatalf("message %d got offset %d, want %d", i, m.Offset, i)
		}
	}
	offset, has := p.CurrentOffset()
	if !has || offset != 2 {
		t.Fatalf("got current offset %d (has=%v), want 2", offset, has)
	}
}

func TestPartitionAppendContinuesAcrossCalls(t *testing.T) {
	p := newTestPartition(t, DefaultPartitionConfig())
	if _, err := p.Append([]Message{{Payload: []byte("a")}}, 0); err != nil {
		t.Fatalf("Append 1: %v", err)
	}
	second, err := p.Append([]Message{{Payload: []byte("b")}}, 0)
	if err != nil {
		t.Fatalf("Append 2: %v", err)
	}
	if second[0].Offset != 1 {
		t.Fatalf("got offset %d, want 1", second[0].Offset)
	}
}

func TestPartitionAppendRejectsEmptyPayload(t *testing.T) {
	p := newTestPartition(t, DefaultPartitionConfig())
	_, err := p.Append([]Message{{Payload: nil}}, 0)
	if protocol.CodeOf(err) != protocol.CodeTooLargePayload {
		t.Fatalf("got %v, want CodeTooLargePayload for empty payload", err)
	}
}

func TestPartitionAppendRejectsOversizedPayload(t *testing.T) {
	p := newTestPartition(t, DefaultPartitionConfig())
	_, err := p.Append([]Message{{Payload: make([]byte, MaxPayloadLen+1)}}, 0)
	if protocol.CodeOf(err) != protocol.CodeTooLargePayload {
		t.Fatalf("got %v, want CodeTooLargePayload for oversized payload", err)
	}
}

func TestPartitionAppendRejectsOverTopicSizeLimit(t *testing.T) {
	p := newTestPartition(t, DefaultPartitionConfig())
	if _, err := p.Append([]Message{{Payload: []byte("abcdef")}}, 0); err != nil {
		t.Fatalf("Append: %v", err)
	}
	size, _ := p.Stats()
	_, err := p.Append([]Message{{Payload: []byte("g")}}, size)
	if protocol.CodeOf(err) != protocol.CodePartitionFull {
		t.Fatalf("got %v, want CodePartitionFull once size limit is reached", err)
	}
}

func TestPartitionFlushThenAppend(t *testing.T) {
	p := newTestPartition(t, DefaultPartitionConfig())
	if _, err := p.Append([]Message{{Payload: []byte("x")}}, 0); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := p.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if _, err := p.Append([]Message{{Payload: []byte("y")}}, 0); err != nil {
		t.Fatalf("Append after flush: %v", err)
	}
}

func TestPartitionReadOnlyRejectsAppend(t *testing.T) {
	p := newTestPartition(t, DefaultPartitionConfig())
	p.mu.Lock()
	p.readOnly = true
	p.mu.Unlock()
	_, err := p.Append([]Message{{Payload: []byte("z")}}, 0)
	if protocol.CodeOf(err) != protocol.CodeCorrupted {
		t.Fatalf("got %v, want CodeCorrupted for a read-only partition", err)
	}
}

func TestPartitionPollSeesUnflushedAppend(t *testing.T) {
	p := newTestPartition(t, DefaultPartitionConfig())
	if _, err := p.Append([]Message{{Payload: []byte("hello")}}, 0); err != nil {
		t.Fatalf("Append: %v", err)
	}
	messages, err := p.Poll(PollFirst, 0, 10, false, ConsumerIdentity{})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(messages) != 1 || string(messages[0].Payload) != "hello" {
		t.Fatalf("got %+v, want one message \"hello\" without an explicit Flush first", messages)
	}
}

func TestPartitionForcedFlushOnMessageCountThreshold(t *testing.T) {
	cfg := DefaultPartitionConfig()
	cfg.MessagesRequiredToSave = 2
	p := newTestPartition(t, cfg)

	if _, err := p.Append([]Message{{Payload: []byte("a")}}, 0); err != nil {
		t.Fatalf("Append 1: %v", err)
	}
	p.mu.Lock()
	pending := len(p.unflushed)
	p.mu.Unlock()
	if pending != 1 {
		t.Fatalf("got %d unflushed messages after first append, want 1", pending)
	}

	if _, err := p.Append([]Message{{Payload: []byte("b")}}, 0); err != nil {
		t.Fatalf("Append 2: %v", err)
	}
	p.mu.Lock()
	pending = len(p.unflushed)
	p.mu.Unlock()
	if pending != 0 {
		t.Fatalf("got %d unflushed messages after reaching MessagesRequiredToSave, want 0 (forced flush)", pending)
	}
}

func newTestCipher(t *testing.T) cipher.AEAD {
	t.Helper()
	block, err := aes.NewCipher(make([]byte, 32))
	if err != nil {
		t.Fatalf("aes.NewCipher: %v", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		t.Fatalf("cipher.NewGCM: %v", err)
	}
	return gcm
}

func TestPartitionEncryptsPayloadAndDecryptsOnPoll(t *testing.T) {
	cfg := DefaultPartitionConfig()
	cfg.Cipher = newTestCipher(t)
	p := newTestPartition(t, cfg)

	if _, err := p.Append([]Message{{Payload: []byte("secret")}}, 0); err != nil {
		t.Fatalf("Append: %v", err)
	}

	p.mu.Lock()
	sealed := p.unflushed[0].Payload
	p.mu.Unlock()
	if string(sealed) == "secret" {
		t.Fatalf("expected stored payload to be sealed, got plaintext")
	}

	messages, err := p.Poll(PollFirst, 0, 10, false, ConsumerIdentity{})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(messages) != 1 || string(messages[0].Payload) != "secret" {
		t.Fatalf("got %+v, want decrypted payload \"secret\"", messages)
	}
}
