// Package streaming implements the hierarchical streaming engine: streams,
// topics, partitions, and the append/poll hot path. It is the core
// specified by the design: ordering guarantees per partition, concurrent
// mutation, and the consumer-offset/consumer-group machinery.
package streaming

import (
	"time"

	"github.com/FairForge/brokerd/internal/ids"
	"github.com/FairForge/brokerd/internal/storage"
)

// Message is the engine's in-memory representation of one stream message.
type Message struct {
	Offset    uint64
	Timestamp uint64 // microseconds since Unix epoch
	IDHi      uint64
	IDLo      uint64
	Checksum  uint32
	Headers   map[ids.HeaderKey]ids.HeaderValue
	Payload   []byte
}

// MaxPayloadLen is the largest payload a single message may carry, leaving
// room for frame overhead within the 1MiB wire limit.
const MaxPayloadLen = 1*1024*1024 - 256

// toRecord converts a Message to the storage-layer Record shape.
func (m Message) toRecord() storage.Record {
	return storage.Record{
		Offset: m.Offset, Timestamp: m.Timestamp, IDHi: m.IDHi, IDLo: m.IDLo,
		Checksum: m.Checksum, Headers: m.Headers, Payload: m.Payload,
	}
}

func fromRecord(r storage.Record) Message {
	return Message{
		Offset: r.Offset, Timestamp: r.Timestamp, IDHi: r.IDHi, IDLo: r.IDLo,
		Checksum: r.Checksum, Headers: r.Headers, Payload: r.Payload,
	}
}

func nowMicros(clock func() time.Time) uint64 {
	return ids.MicrosNow(clock())
}
