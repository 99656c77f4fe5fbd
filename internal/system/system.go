// Package system implements the top-level engine: the streams map, user
// store, session registry, and the boot/shutdown sequence that ties the
// streaming engine to a storage root (§4.G). System-level state is guarded
// by one reader-writer lock per §5: reads take shared, mutations that touch
// the streams map take exclusive; per-partition work runs under the finer
// lock inside streaming.Partition.
package system

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/brokerd/internal/auth"
	"github.com/FairForge/brokerd/internal/config"
	"github.com/FairForge/brokerd/internal/ids"
	"github.com/FairForge/brokerd/internal/metrics"
	"github.com/FairForge/brokerd/internal/protocol"
	"github.com/FairForge/brokerd/internal/streaming"
)

// System is the engine root: every wire command eventually reaches one of
// its methods by way of the command dispatcher.
type System struct {
	cfg    *config.Config
	clock  func() time.Time
	logger *zap.Logger

	Users    *auth.Store
	Sessions *auth.Registry
	Metrics  *metrics.Registry

	mu         sync.RWMutex
	streams    map[uint32]*streaming.Stream
	nameToID   map[string]uint32
	nextStream uint32

	pCfg streaming.PartitionConfig

	stopFlush     chan struct{}
	flushWG       sync.WaitGroup
}

// New wires a System to its storage root without performing recovery; call
// Boot to load or initialize on-disk state.
func New(cfg *config.Config, clock func() time.Time, logger *zap.Logger) *System {
	return &System{
		cfg:      cfg,
		clock:    clock,
		logger:   logger,
		Users:    auth.NewStore(clock),
		Sessions: auth.NewRegistry(),
		Metrics:  metrics.NewRegistry(),
		streams:  make(map[uint32]*streaming.Stream),
		nameToID: make(map[string]uint32),
		pCfg:     partitionConfigFromSystem(cfg, logger),
	}
}

func partitionConfigFromSystem(cfg *config.Config, logger *zap.Logger) streaming.PartitionConfig {
	pCfg := streaming.DefaultPartitionConfig()
	if cfg.System.Segment.SizeBytesThreshold != "" {
		if v, err := ids.ParseByteSize(cfg.System.Segment.SizeBytesThreshold); err == nil {
			pCfg.SegmentSizeThreshold = uint64(v)
		}
	}
	pCfg.SegmentMessagesThreshold = cfg.System.Segment.MessagesCountThreshold
	if cfg.System.Partition.MessagesRequiredToSave > 0 {
		pCfg.MessagesRequiredToSave = cfg.System.Partition.MessagesRequiredToSave
	}
	switch streaming.FsyncPolicy(cfg.System.Partition.EnforceFsync) {
	case streaming.FsyncNone, streaming.FsyncEveryFlush, streaming.FsyncEveryMs:
		pCfg.Fsync = streaming.FsyncPolicy(cfg.System.Partition.EnforceFsync)
	}
	pCfg.Cipher = buildCipher(cfg.System.Encryption, logger)
	return pCfg
}

// buildCipher constructs the AES-256-GCM AEAD used to seal payloads at rest
// (§9, §6 system.encryption). A disabled or malformed configuration runs
// without payload encryption rather than failing boot.
func buildCipher(ec config.EncryptionConfig, logger *zap.Logger) cipher.AEAD {
	if !ec.Enabled {
		return nil
	}
	key, err := base64.StdEncoding.DecodeString(ec.Key)
	if err != nil || len(key) != 32 {
		logger.Error("system.encryption.key must be a base64-encoded 32-byte key; running without payload encryption", zap.Error(err))
		return nil
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		logger.Error("failed to construct AES cipher; running without payload encryption", zap.Error(err))
		return nil
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		logger.Error("failed to construct AES-GCM; running without payload encryption", zap.Error(err))
		return nil
	}
	return gcm
}

// Boot performs the documented boot sequence (§4.G):
//  1. config is already loaded by the caller;
//  2. open the storage root;
//  3. seed the root user into the in-memory user store (users are not
//     read from or written to disk);
//  4. enumerate stream/topic/partition/segment directories for recovery.
// Listener binding and periodic task spawning are steps the caller (main)
// performs once Boot returns, since they depend on constructed listeners.
func (s *System) Boot() error {
	root := s.cfg.SystemPath
	if err := os.MkdirAll(filepath.Join(root, "streams"), 0o750); err != nil {
		return protocol.Wrap(protocol.CodeCannotCreateDirectory, "create streams root", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "users"), 0o750); err != nil {
		return protocol.Wrap(protocol.CodeCannotCreateDirectory, "create users root", err)
	}
	if err := s.Users.SeedRoot(); err != nil {
		return err
	}

	entries, err := os.ReadDir(filepath.Join(root, "streams"))
	if err != nil {
		return protocol.Wrap(protocol.CodeIoError, "read streams root", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := strconv.ParseUint(e.Name(), 10, 32)
		if err != nil {
			continue
		}
		dir := filepath.Join(root, "streams", e.Name())
		name, err := readStreamName(dir)
		if err != nil {
			return err
		}
		st, err := streaming.OpenStream(dir, uint32(id), name, s.pCfg, s.clock, s.logger)
		if err != nil {
			return err
		}
		s.streams[uint32(id)] = st
		s.nameToID[name] = uint32(id)
		if uint32(id) > s.nextStream {
			s.nextStream = uint32(id)
		}
	}
	s.logger.Info("system boot recovered streams", zap.Int("count", len(s.streams)))
	return nil
}

func readStreamName(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, "name"))
	if err != nil {
		return "", protocol.Wrap(protocol.CodeIoError, "read stream name file", err)
	}
	return string(data), nil
}

// CreateStream allocates the next stream id, creates its directory, and
// indexes it by name.
func (s *System) CreateStream(name string) (*streaming.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.nameToID[name]; exists {
		return nil, protocol.AlreadyExists("stream", name)
	}
	id := s.nextStream + 1
	dir := filepath.Join(s.cfg.SystemPath, "streams", strconv.FormatUint(uint64(id), 10))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, protocol.Wrap(protocol.CodeCannotCreateDirectory, "create stream directory", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "name"), []byte(name), 0o640); err != nil {
		return nil, protocol.Wrap(protocol.CodeIoError, "write stream name file", err)
	}
	st, err := streaming.NewStream(dir, id, name, s.pCfg, s.clock, s.logger)
	if err != nil {
		return nil, err
	}
	s.streams[id] = st
	s.nameToID[name] = id
	s.nextStream = id
	return st, nil
}

// DeleteStream cascades delete over every topic in the stream (§4.F).
func (s *System) DeleteStream(id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[id]
	if !ok {
		return protocol.NotFound("stream", fmt.Sprintf("%d", id))
	}
	for _, t := range st.Topics() {
		if err := st.DeleteTopic(t.ID); err != nil {
			return err
		}
	}
	if err := os.RemoveAll(filepath.Join(s.cfg.SystemPath, "streams", strconv.FormatUint(uint64(id), 10))); err != nil {
		return protocol.Wrap(protocol.CodeIoError, "remove stream directory", err)
	}
	delete(s.streams, id)
	delete(s.nameToID, st.Name)
	return nil
}

// Stream resolves id either as a bare numeric id or, via the name index, as
// a named identifier.
func (s *System) Stream(id ids.Identifier) (*streaming.Stream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id.IsNumeric() {
		st, ok := s.streams[id.Number()]
		if !ok {
			return nil, protocol.NotFound("stream", id.String())
		}
		return st, nil
	}
	sid, ok := s.nameToID[id.NameValue()]
	if !ok {
		return nil, protocol.NotFound("stream", id.String())
	}
	return s.streams[sid], nil
}

// Streams returns every stream ordered by id.
func (s *System) Streams() []*streaming.Stream {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*streaming.Stream, 0, len(s.streams))
	for _, st := range s.streams {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SpawnBackgroundTasks starts the periodic flush and retention-sweep tasks
// (§4.G step 6); no periodic metrics task is started. Call Shutdown to stop
// them.
func (s *System) SpawnBackgroundTasks(flushInterval, retentionInterval time.Duration) {
	s.stopFlush = make(chan struct{})
	s.flushWG.Add(2)
	go s.runTicker(flushInterval, s.flushAll, "flush")
	go s.runTicker(retentionInterval, s.sweepRetention, "retention")
}

func (s *System) runTicker(interval time.Duration, fn func(), name string) {
	defer s.flushWG.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopFlush:
			return
		case <-ticker.C:
			fn()
			s.logger.Debug("periodic task ran", zap.String("task", name))
		}
	}
}

func (s *System) flushAll() {
	for _, st := range s.Streams() {
		if err := st.Flush(); err != nil {
			s.logger.Error("periodic flush failed", zap.Error(err))
		}
	}
}

func (s *System) sweepRetention() {
	now := ids.MicrosNow(s.clock())
	for _, st := range s.Streams() {
		st.SweepRetention(now)
	}
}

// Shutdown stops accepting background work, flushes every partition's
// buffered batch, and waits for the periodic tasks to exit (§4.G).
func (s *System) Shutdown() error {
	if s.stopFlush != nil {
		close(s.stopFlush)
		s.flushWG.Wait()
	}
	for _, st := range s.Streams() {
		if err := st.Flush(); err != nil {
			return err
		}
	}
	return nil
}
