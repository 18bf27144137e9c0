package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matzehuels/sweeptower/pkg/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sweeptower.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Sweep.EagerLimit != 32000 {
		t.Errorf("EagerLimit = %d, want 32000", cfg.Sweep.EagerLimit)
	}
	if !cfg.Sweep.AllowCycles {
		t.Error("AllowCycles should default to true")
	}
	if got := cfg.Problem.Partitions(); got != 4 {
		t.Errorf("Partitions() = %d, want 4", got)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[sweep]
eager_limit = 1024
allow_cycles = false

[problem]
nx = 8
px = 4
py = 1

[cache]
backend = "none"
ttl = "90m"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sweep.EagerLimit != 1024 {
		t.Errorf("EagerLimit = %d, want 1024", cfg.Sweep.EagerLimit)
	}
	if cfg.Sweep.AllowCycles {
		t.Error("AllowCycles should be false")
	}
	if cfg.Problem.NX != 8 || cfg.Problem.NY != 16 {
		t.Errorf("grid = %dx%d, want 8x16", cfg.Problem.NX, cfg.Problem.NY)
	}
	if cfg.Cache.Backend != CacheNone {
		t.Errorf("Backend = %q", cfg.Cache.Backend)
	}
	if cfg.Cache.TTL != 90*time.Minute {
		t.Errorf("TTL = %v, want 90m", cfg.Cache.TTL)
	}
	if cfg.Sweep.Tolerance != 1e-12 {
		t.Errorf("Tolerance = %g, want default", cfg.Sweep.Tolerance)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"syntax", "[sweep\neager_limit = 1"},
		{"unknown key", "[sweep]\neager_limt = 10"},
		{"bad value", "[problem]\ngroups = 0"},
		{"bad transport", "[transport]\nkind = \"mpi\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if !errors.Is(err, errors.ErrCodeInvalidConfig) {
				t.Errorf("Load() error = %v, want INVALID_CONFIG", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("Load() error = %v, want INVALID_CONFIG", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"default", func(*Config) {}, true},
		{"zero eager", func(c *Config) { c.Sweep.EagerLimit = 0 }, false},
		{"tag base on exchange tag", func(c *Config) { c.Sweep.TagBase = 999 }, false},
		{"tag base below exchange tag", func(c *Config) { c.Sweep.TagBase = 10 }, false},
		{"tag base above exchange tag", func(c *Config) { c.Sweep.TagBase = 1000 }, true},
		{"negative max messages", func(c *Config) { c.Sweep.MaxMessages = -1 }, false},
		{"too many partitions", func(c *Config) { c.Problem.PX = 32 }, false},
		{"attenuation one", func(c *Config) { c.Problem.Attenuation = 1 }, false},
		{"zero epsilon", func(c *Config) { c.Problem.Epsilon = 0 }, false},
		{"redis transport", func(c *Config) { c.Transport.Kind = TransportRedis }, true},
		{"redis rank out of range", func(c *Config) {
			c.Transport.Kind = TransportRedis
			c.Transport.Rank = 4
		}, false},
		{"redis size mismatch", func(c *Config) {
			c.Transport.Kind = TransportRedis
			c.Transport.Size = 3
		}, false},
		{"unknown cache", func(c *Config) { c.Cache.Backend = "s3" }, false},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.ok && !errors.Is(err, errors.ErrCodeInvalidConfig) {
				t.Errorf("Validate() = %v, want INVALID_CONFIG", err)
			}
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Problem.NX = 12
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	loaded, err := Load(writeConfig(t, string(data)))
	if err != nil {
		t.Fatalf("Load(Encode()): %v", err)
	}
	if loaded != cfg {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", loaded, cfg)
	}
}
