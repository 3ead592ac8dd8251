package config

import (
	"bytes"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

const (
	DefaultMaxActiveBindings uint32 = 128
	DefaultStagingBufferSize uint64 = 1 << 25
	DefaultStagingCount      int    = 2
	DefaultIdleTrim                 = 5 * time.Second
)

// Duration is a time.Duration written as a string ("5s", "250ms") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

type VulkanConfig struct {
	ApplicationName  string `toml:"application_name"`
	EnableValidation bool   `toml:"enable_validation"`
}

// LimitsConfig caps descriptor usage. A zero dynamic buffer limit means
// the device limit is used.
type LimitsConfig struct {
	MaxActiveBindings        uint32 `toml:"max_active_bindings"`
	MaxUniformBuffersDynamic uint32 `toml:"max_uniform_buffers_dynamic"`
	MaxStorageBuffersDynamic uint32 `toml:"max_storage_buffers_dynamic"`
}

type StagingConfig struct {
	BufferSize  uint64 `toml:"buffer_size"`
	BufferCount int    `toml:"buffer_count"`
	// IdleTrim is how long the staging pool may stay unused before its
	// buffers are released. Zero disables trimming.
	IdleTrim Duration `toml:"idle_trim"`
}

type Config struct {
	Logging LoggingConfig `toml:"logging"`
	Vulkan  VulkanConfig  `toml:"vulkan"`
	Limits  LimitsConfig  `toml:"limits"`
	Staging StagingConfig `toml:"staging"`
}

func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level: "info",
		},
		Vulkan: VulkanConfig{
			ApplicationName: "vkbridge",
		},
		Limits: LimitsConfig{
			MaxActiveBindings: DefaultMaxActiveBindings,
		},
		Staging: StagingConfig{
			BufferSize:  DefaultStagingBufferSize,
			BufferCount: DefaultStagingCount,
			IdleTrim:    Duration{DefaultIdleTrim},
		},
	}
}

// Load reads and validates the TOML file at path. Keys missing from the
// file keep their default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()

	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, errors.Errorf("unknown configuration keys:\n%s", strict.String())
		}
		var decodeErr *toml.DecodeError
		if errors.As(err, &decodeErr) {
			row, col := decodeErr.Position()
			return nil, errors.Errorf("invalid configuration at line %d, column %d: %s", row, col, decodeErr.Error())
		}
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(c.Logging.Level))); err != nil {
		return errors.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}
	if c.Vulkan.ApplicationName == "" {
		return errors.New("vulkan.application_name must not be empty")
	}
	if c.Limits.MaxActiveBindings == 0 {
		return errors.New("limits.max_active_bindings must be positive")
	}
	if c.Staging.BufferSize == 0 {
		return errors.New("staging.buffer_size must be positive")
	}
	if c.Staging.BufferCount < 1 {
		return errors.Errorf("staging.buffer_count must be at least 1, got %d", c.Staging.BufferCount)
	}
	if c.Staging.IdleTrim.Duration < 0 {
		return errors.Errorf("staging.idle_trim must not be negative, got %s", c.Staging.IdleTrim.Duration)
	}
	return nil
}

// Marshal encodes the configuration back to TOML.
func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}
