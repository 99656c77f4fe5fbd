package streaming

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/FairForge/brokerd/internal/protocol"
)

// StoreConsumerOffset persists offset under identity. Offset is monotonic
// per identity only in the sense that lower values are still accepted — an
// explicit rewind is allowed (§4.D) — but every call is written durably.
func (p *Partition) StoreConsumerOffset(identity ConsumerIdentity, offset uint64) error {
	p.mu.Lock()
	if identity.isGroup() {
		p.consumerGroupOffsets[identity] = offset
	} else {
		p.consumerOffsets[identity.ConsumerID] = offset
	}
	p.mu.Unlock()

	path := p.offsetFilePath(identity)
	if err := os.WriteFile(path, []byte(strconv.FormatUint(offset, 10)), 0o640); err != nil {
		return protocol.Wrap(protocol.CodeIoError, "persist consumer offset", err)
	}
	return nil
}

// GetConsumerOffset returns the stored offset for identity, if any.
func (p *Partition) GetConsumerOffset(identity ConsumerIdentity) (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if identity.isGroup() {
		v, ok := p.consumerGroupOffsets[identity]
		return v, ok
	}
	v, ok := p.consumerOffsets[identity.ConsumerID]
	return v, ok
}

func (p *Partition) offsetFilePath(identity ConsumerIdentity) string {
	dir := filepath.Join(p.dir, "offsets", "consumer_offsets")
	if identity.isGroup() {
		return filepath.Join(dir, fmt.Sprintf("group-%d-%d", identity.GroupID, identity.ConsumerID))
	}
	return filepath.Join(dir, strconv.FormatUint(uint64(identity.ConsumerID), 10))
}

// loadConsumerOffsets reloads every persisted offset file on recovery.
func (p *Partition) loadConsumerOffsets() error {
	dir := filepath.Join(p.dir, "offsets", "consumer_offsets")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("streaming: read consumer offsets directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return fmt.Errorf("streaming: read consumer offset file %s: %w", e.Name(), err)
		}
		offset, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
		if err != nil {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "group-") {
			parts := strings.Split(strings.TrimPrefix(name, "group-"), "-")
			if len(parts) != 2 {
				continue
			}
			groupID, err1 := strconv.ParseUint(parts[0], 10, 32)
			consumerID, err2 := strconv.ParseUint(parts[1], 10, 32)
			if err1 != nil || err2 != nil {
				continue
			}
			p.consumerGroupOffsets[ConsumerIdentity{GroupID: uint32(groupID), ConsumerID: uint32(consumerID)}] = offset
		} else {
			consumerID, err := strconv.ParseUint(name, 10, 32)
			if err != nil {
				continue
			}
			p.consumerOffsets[uint32(consumerID)] = offset
		}
	}
	return nil
}
