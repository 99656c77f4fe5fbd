// Package config loads the broker's YAML configuration file and applies
// environment-variable overrides, mirroring the layered load vaultaire's
// internal/config package does for its YAML config (§6 of the design).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level broker configuration.
type Config struct {
	SystemPath string       `yaml:"system_path"`
	TCP        TCPConfig    `yaml:"tcp"`
	QUIC       QUICConfig   `yaml:"quic"`
	HTTP       HTTPConfig   `yaml:"http"`
	System     SystemConfig `yaml:"system"`
}

// TCPConfig controls the raw-TCP listener.
type TCPConfig struct {
	Enabled bool      `yaml:"enabled"`
	Address string    `yaml:"address"`
	TLS     TLSConfig `yaml:"tls"`
}

// TLSConfig is shared by any listener that can terminate TLS.
type TLSConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Certificate string `yaml:"certificate"`
	Domain      string `yaml:"domain"`
}

// QUICConfig controls the QUIC listener and its transport parameters.
type QUICConfig struct {
	Enabled                  bool          `yaml:"enabled"`
	Address                  string        `yaml:"address"`
	MaxConcurrentBidiStreams int64         `yaml:"max_concurrent_bidi_streams"`
	SendWindow               uint64        `yaml:"send_window"`
	ReceiveWindow            uint64        `yaml:"receive_window"`
	KeepAliveInterval        time.Duration `yaml:"keep_alive_interval"`
	MaxIdleTimeout           time.Duration `yaml:"max_idle_timeout"`
	InitialMTU               uint16        `yaml:"initial_mtu"`
	DatagramSendBufferSize   int           `yaml:"datagram_send_buffer_size"`
}

// HTTPConfig controls the REST/JSON listener.
type HTTPConfig struct {
	Enabled bool      `yaml:"enabled"`
	Address string    `yaml:"address"`
	CORS    bool      `yaml:"cors"`
	JWT     JWTConfig `yaml:"jwt"`
}

// JWTConfig controls personal-access-token signing for the HTTP surface.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// SystemConfig groups the engine's storage, durability, and retention knobs.
type SystemConfig struct {
	Segment    SegmentConfig    `yaml:"segment"`
	Partition  PartitionConfig  `yaml:"partition"`
	Retention  RetentionConfig  `yaml:"retention"`
	Encryption EncryptionConfig `yaml:"encryption"`
}

// SegmentConfig sets the thresholds at which a partition's active segment
// rolls (§4.C).
type SegmentConfig struct {
	SizeBytesThreshold     string `yaml:"size_bytes_threshold"`
	MessagesCountThreshold uint64 `yaml:"messages_count_threshold"`
}

// PartitionConfig sets batching and fsync behavior for partition writes.
type PartitionConfig struct {
	MessagesRequiredToSave uint64 `yaml:"messages_required_to_save"`
	EnforceFsync           string `yaml:"enforce_fsync"` // none | every_flush | every_ms
}

// RetentionConfig bounds how long/how much data a topic keeps on disk.
type RetentionConfig struct {
	MessageExpiry string `yaml:"message_expiry"` // duration string, "" = unbounded
	MaxTopicSize  string `yaml:"max_topic_size"`  // byte-size string, "" = unbounded
}

// EncryptionConfig enables at-rest AES-256-GCM payload encryption (§9).
type EncryptionConfig struct {
	Enabled bool   `yaml:"enabled"`
	Key     string `yaml:"key"` // base64-encoded 32-byte key
}

// Default returns the documented default configuration (§4.C, §6).
func Default() *Config {
	return &Config{
		SystemPath: "local_data",
		TCP:        TCPConfig{Enabled: true, Address: "0.0.0.0:8090"},
		QUIC: QUICConfig{
			Enabled: true, Address: "0.0.0.0:8080",
			MaxConcurrentBidiStreams: 100,
			SendWindow:               1 << 20,
			ReceiveWindow:            1 << 20,
			KeepAliveInterval:        5 * time.Second,
			MaxIdleTimeout:           30 * time.Second,
			InitialMTU:               1200,
			DatagramSendBufferSize:   65536,
		},
		HTTP: HTTPConfig{
			Enabled: true, Address: "0.0.0.0:3000",
			JWT: JWTConfig{Secret: "change-me-in-production", Expiry: 24 * time.Hour},
		},
		System: SystemConfig{
			Segment:   SegmentConfig{SizeBytesThreshold: "1GiB"},
			Partition: PartitionConfig{MessagesRequiredToSave: 10000, EnforceFsync: "every_flush"},
		},
	}
}

// Load reads path (when non-empty and present) over the documented
// defaults, then applies IGGY_<section>_<key> environment overrides, the
// same two-step precedence vaultaire's config.LoadFromEnv applies on top of
// its YAML defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides mirrors vaultaire's LoadFromEnv: a small, explicit list
// of recognized environment variables, not a reflection-based walk.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("IGGY_SYSTEM_PATH"); v != "" {
		cfg.SystemPath = v
	}
	if v := os.Getenv("IGGY_TCP_ADDRESS"); v != "" {
		cfg.TCP.Address = v
	}
	if v := os.Getenv("IGGY_HTTP_ADDRESS"); v != "" {
		cfg.HTTP.Address = v
	}
	if v := os.Getenv("IGGY_QUIC_ADDRESS"); v != "" {
		cfg.QUIC.Address = v
	}
}
