package core

import (
	"math"
	"os"
	"time"

	"github.com/phuslu/log"
	yaml "gopkg.in/yaml.v2"

	"github.com/omriShneor/rustdex/errors"
	"github.com/omriShneor/rustdex/internal/record"
)

// Config controls an engine instance.
type Config struct {
	// MaxSegmentSize is the size in bytes at which the active segment is
	// sealed and a new one started.
	MaxSegmentSize int64 `yaml:"max_segment_size"`

	// SyncOnWrite forces a durability barrier before every Put and Delete
	// returns. When false, writes are synced every SyncInterval.
	SyncOnWrite  bool          `yaml:"sync_on_write"`
	SyncInterval time.Duration `yaml:"sync_interval"`

	// WriteHints enables hint files for sealed segments.
	WriteHints bool `yaml:"write_hints"`

	MaxKeySize   int `yaml:"max_key_size"`
	MaxValueSize int `yaml:"max_value_size"`

	AutoCompact AutoCompactConfig `yaml:"auto_compact"`

	// Logger receives engine events. Nil selects log.DefaultLogger.
	Logger *log.Logger `yaml:"-"`
}

// AutoCompactConfig controls background compaction.
type AutoCompactConfig struct {
	Enabled bool `yaml:"enabled"`

	// Threshold is the fraction of on-disk bytes that are obsolete
	// (superseded values plus tombstones) at which a merge is started.
	Threshold float64 `yaml:"threshold"`

	// MinBytes is the total on-disk size below which no merge is started.
	MinBytes int64 `yaml:"min_bytes"`

	// Interval is how often the ratio is checked.
	Interval time.Duration `yaml:"interval"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		MaxSegmentSize: DefaultDataFileSizeMB * OneMegabyte,
		SyncOnWrite:    true,
		SyncInterval:   DefaultSyncInterval,
		WriteHints:     true,
		MaxKeySize:     DefaultMaxKeySize,
		MaxValueSize:   DefaultMaxValueSize,
		AutoCompact: AutoCompactConfig{
			Enabled:   true,
			Threshold: DefaultGarbageRatio,
			MinBytes:  DefaultMinTotalSizeForMergeMB * OneMegabyte,
			Interval:  DefaultCompactCheckInterval,
		},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	const op = "core.Config.Validate"

	switch {
	case c.MaxSegmentSize <= 0:
		return errors.E(op, errors.Invalid, errors.Errorf("max_segment_size must be positive, got %d", c.MaxSegmentSize))
	case !c.SyncOnWrite && c.SyncInterval <= 0:
		return errors.E(op, errors.Invalid, errors.Errorf("sync_interval must be positive when sync_on_write is off, got %v", c.SyncInterval))
	case c.MaxKeySize <= 0 || int64(c.MaxKeySize) >= math.MaxUint32:
		return errors.E(op, errors.Invalid, errors.Errorf("max_key_size out of range: %d", c.MaxKeySize))
	case c.MaxValueSize < 0 || int64(c.MaxValueSize) >= math.MaxUint32:
		return errors.E(op, errors.Invalid, errors.Errorf("max_value_size out of range: %d", c.MaxValueSize))
	case int64(c.MaxKeySize)+int64(c.MaxValueSize)+record.DiskRecordHeaderSizeBytes >= math.MaxUint32:
		return errors.E(op, errors.Invalid, errors.Errorf("max_key_size + max_value_size too large for one record: %d + %d", c.MaxKeySize, c.MaxValueSize))
	}

	if c.AutoCompact.Enabled {
		switch {
		case c.AutoCompact.Threshold <= 0 || c.AutoCompact.Threshold > 1:
			return errors.E(op, errors.Invalid, errors.Errorf("auto_compact.threshold must be in (0, 1], got %v", c.AutoCompact.Threshold))
		case c.AutoCompact.Interval <= 0:
			return errors.E(op, errors.Invalid, errors.Errorf("auto_compact.interval must be positive, got %v", c.AutoCompact.Interval))
		case c.AutoCompact.MinBytes < 0:
			return errors.E(op, errors.Invalid, errors.Errorf("auto_compact.min_bytes must not be negative, got %d", c.AutoCompact.MinBytes))
		}
	}

	return nil
}

// LoadConfig reads a YAML configuration file. Settings absent from the file
// keep their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	const op = "core.LoadConfig"

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, errors.E(op, errors.NotExist, err)
		}
		return cfg, errors.E(op, errors.IO, err)
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, errors.E(op, errors.Invalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.E(op, err)
	}
	return cfg, nil
}
