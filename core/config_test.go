package core_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/omriShneor/rustdex/core"
	"github.com/omriShneor/rustdex/errors"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := core.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *core.Config)
	}{
		{"zero segment size", func(c *core.Config) { c.MaxSegmentSize = 0 }},
		{"batched sync without interval", func(c *core.Config) { c.SyncOnWrite = false; c.SyncInterval = 0 }},
		{"zero key size", func(c *core.Config) { c.MaxKeySize = 0 }},
		{"negative value size", func(c *core.Config) { c.MaxValueSize = -1 }},
		{"record size overflow", func(c *core.Config) { c.MaxKeySize = math.MaxUint32 / 2; c.MaxValueSize = math.MaxUint32 / 2 }},
		{"threshold above one", func(c *core.Config) { c.AutoCompact.Threshold = 1.5 }},
		{"zero threshold", func(c *core.Config) { c.AutoCompact.Threshold = 0 }},
		{"zero compact interval", func(c *core.Config) { c.AutoCompact.Interval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := core.DefaultConfig()
			tt.modify(&cfg)
			if err := cfg.Validate(); !errors.Is(errors.Invalid, err) {
				t.Errorf("expected invalid config error, got %v", err)
			}
		})
	}

	// Auto-compaction settings are ignored when it is off.
	cfg := core.DefaultConfig()
	cfg.AutoCompact.Enabled = false
	cfg.AutoCompact.Threshold = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled auto-compaction settings were validated: %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bitcask.yaml")
	data := `
max_segment_size: 1048576
sync_on_write: false
sync_interval: 250ms
auto_compact:
  threshold: 0.25
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := core.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	def := core.DefaultConfig()
	if cfg.MaxSegmentSize != 1048576 || cfg.SyncOnWrite || cfg.SyncInterval != 250*time.Millisecond {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.AutoCompact.Threshold != 0.25 {
		t.Errorf("threshold = %v, want 0.25", cfg.AutoCompact.Threshold)
	}
	if cfg.AutoCompact.Enabled != def.AutoCompact.Enabled || cfg.MaxKeySize != def.MaxKeySize || !cfg.WriteHints {
		t.Errorf("settings absent from the file lost their defaults: %+v", cfg)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := core.LoadConfig(filepath.Join(dir, "missing.yaml")); !errors.Is(errors.NotExist, err) {
		t.Errorf("expected not-exist error, got %v", err)
	}

	unknown := filepath.Join(dir, "unknown.yaml")
	os.WriteFile(unknown, []byte("max_segment_bytes: 10\n"), 0644)
	if _, err := core.LoadConfig(unknown); !errors.Is(errors.Invalid, err) {
		t.Errorf("expected invalid error for unknown field, got %v", err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("max_segment_size: -1\n"), 0644)
	if _, err := core.LoadConfig(bad); !errors.Is(errors.Invalid, err) {
		t.Errorf("expected invalid error for bad value, got %v", err)
	}
}
