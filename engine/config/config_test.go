package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Limits.MaxActiveBindings != 128 {
		t.Errorf("MaxActiveBindings = %d, want 128", cfg.Limits.MaxActiveBindings)
	}
	if cfg.Staging.BufferSize != 32<<20 {
		t.Errorf("BufferSize = %d, want %d", cfg.Staging.BufferSize, 32<<20)
	}
	if cfg.Staging.BufferCount != 2 {
		t.Errorf("BufferCount = %d, want 2", cfg.Staging.BufferCount)
	}
	if cfg.Staging.IdleTrim.Duration != 5*time.Second {
		t.Errorf("IdleTrim = %s, want 5s", cfg.Staging.IdleTrim.Duration)
	}
}

func TestParse(t *testing.T) {
	data := []byte(`
[logging]
level = "debug"

[limits]
max_uniform_buffers_dynamic = 8

[staging]
buffer_size = 4096
idle_trim = "250ms"
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Limits.MaxUniformBuffersDynamic != 8 {
		t.Errorf("MaxUniformBuffersDynamic = %d, want 8", cfg.Limits.MaxUniformBuffersDynamic)
	}
	if cfg.Staging.BufferSize != 4096 {
		t.Errorf("BufferSize = %d, want 4096", cfg.Staging.BufferSize)
	}
	if cfg.Staging.IdleTrim.Duration != 250*time.Millisecond {
		t.Errorf("IdleTrim = %s, want 250ms", cfg.Staging.IdleTrim.Duration)
	}
	// untouched keys keep their defaults
	if cfg.Staging.BufferCount != DefaultStagingCount {
		t.Errorf("BufferCount = %d, want %d", cfg.Staging.BufferCount, DefaultStagingCount)
	}
	if cfg.Vulkan.ApplicationName != "vkbridge" {
		t.Errorf("ApplicationName = %q, want vkbridge", cfg.Vulkan.ApplicationName)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"unknown key", "[staging]\nbuffer_sizes = 1\n", "unknown configuration keys"},
		{"bad level", "[logging]\nlevel = \"loud\"\n", "logging.level"},
		{"zero bindings", "[limits]\nmax_active_bindings = 0\n", "max_active_bindings"},
		{"zero buffer size", "[staging]\nbuffer_size = 0\n", "buffer_size"},
		{"zero buffer count", "[staging]\nbuffer_count = 0\n", "buffer_count"},
		{"negative idle trim", "[staging]\nidle_trim = \"-1s\"\n", "idle_trim"},
		{"bad duration", "[staging]\nidle_trim = \"soon\"\n", ""},
		{"syntax", "[staging\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if err == nil {
				t.Fatal("Parse() succeeded, want error")
			}
			if tt.wantErr != "" && !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Parse() error = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vkbridge.toml")
	if err := os.WriteFile(path, []byte("[staging]\nbuffer_count = 4\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Staging.BufferCount != 4 {
		t.Errorf("BufferCount = %d, want 4", cfg.Staging.BufferCount)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Load() of a missing file succeeded")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Staging.IdleTrim = Duration{time.Minute}
	data, err := cfg.Marshal()
	if err != nil {
		t.Fatalf("Marshal() = %v", err)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse(Marshal()) = %v\n%s", err, data)
	}
	if *got != *cfg {
		t.Errorf("round trip = %+v, want %+v", got, cfg)
	}
}
