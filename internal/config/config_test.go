package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	if cfg.TCP.Address != want.TCP.Address || cfg.HTTP.Address != want.HTTP.Address {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SystemPath != "local_data" {
		t.Fatalf("got system path %q, want local_data", cfg.SystemPath)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brokerd.yaml")
	contents := "tcp:\n  enabled: true\n  address: \"0.0.0.0:9999\"\nhttp:\n  enabled: false\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TCP.Address != "0.0.0.0:9999" {
		t.Fatalf("got tcp address %q, want 0.0.0.0:9999", cfg.TCP.Address)
	}
	if cfg.HTTP.Enabled {
		t.Fatalf("expected http.enabled to be overridden to false")
	}
}

func TestLoadEnvOverridesTakePrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brokerd.yaml")
	if err := os.WriteFile(path, []byte("tcp:\n  address: \"0.0.0.0:1111\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("IGGY_TCP_ADDRESS", "0.0.0.0:2222")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TCP.Address != "0.0.0.0:2222" {
		t.Fatalf("got tcp address %q, want env override 0.0.0.0:2222", cfg.TCP.Address)
	}
}

func TestLoadMalformedYAMLReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brokerd.yaml")
	if err := os.WriteFile(path, []byte("tcp: [this is not a mapping"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error for malformed YAML")
	}
}
