// Package config loads sweeptower run configuration from TOML.
//
// A configuration file has five sections. Every key is optional; missing
// keys keep the values from [Default].
//
//	[sweep]
//	eager_limit  = 32000   # bytes per message chunk
//	allow_cycles = true
//	max_messages = 0       # 0 derives the tag stride from the largest angle set
//	tolerance    = 1e-12
//	tag_base     = 1000    # sweep tags start here, above the face exchange tag 999
//
//	[problem]
//	nx = 16
//	ny = 16
//	px = 2
//	py = 2
//	groups            = 1
//	angles_per_octant = 2
//	angles_per_set    = 2
//	iterations        = 10
//	epsilon           = 1e-8
//	source            = 1.0
//	attenuation       = 0.5
//
//	[transport]
//	kind       = "local"   # local | redis
//	redis_addr = "localhost:6379"
//
//	[cache]
//	backend = "file"       # none | file | redis
//	ttl     = "24h"
//
//	[log]
//	level = "info"
package config

import (
	"bytes"
	"os"
	"slices"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/sweeptower/pkg/errors"
	"github.com/matzehuels/sweeptower/pkg/fluds"
)

// Config is the full run configuration.
type Config struct {
	Sweep     SweepConfig     `toml:"sweep"`
	Problem   ProblemConfig   `toml:"problem"`
	Transport TransportConfig `toml:"transport"`
	Cache     CacheConfig     `toml:"cache"`
	Log       LogConfig       `toml:"log"`
}

// SweepConfig holds scheduler and message-layout settings.
type SweepConfig struct {
	EagerLimit  int     `toml:"eager_limit"`
	AllowCycles bool    `toml:"allow_cycles"`
	MaxMessages int     `toml:"max_messages"`
	Tolerance   float64 `toml:"tolerance"`
	TagBase     int     `toml:"tag_base"`
}

// ProblemConfig describes the built-in demo problem: an nx*ny orthogonal
// grid split into px*py partitions, swept with a product quadrature.
type ProblemConfig struct {
	NX              int     `toml:"nx"`
	NY              int     `toml:"ny"`
	PX              int     `toml:"px"`
	PY              int     `toml:"py"`
	Groups          int     `toml:"groups"`
	AnglesPerOctant int     `toml:"angles_per_octant"`
	AnglesPerSet    int     `toml:"angles_per_set"`
	Iterations      int     `toml:"iterations"`
	Epsilon         float64 `toml:"epsilon"`
	Source          float64 `toml:"source"`
	Attenuation     float64 `toml:"attenuation"`
}

// Partitions returns px*py.
func (p ProblemConfig) Partitions() int { return p.PX * p.PY }

// TransportConfig selects how partitions exchange messages.
type TransportConfig struct {
	Kind      string `toml:"kind"`
	RedisAddr string `toml:"redis_addr"`
	Session   string `toml:"session"`
	Rank      int    `toml:"rank"`
	Size      int    `toml:"size"`
}

// CacheConfig selects the plan cache backend.
type CacheConfig struct {
	Backend   string        `toml:"backend"`
	Dir       string        `toml:"dir"`
	RedisAddr string        `toml:"redis_addr"`
	TTL       time.Duration `toml:"ttl"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// Transport kinds.
const (
	TransportLocal = "local"
	TransportRedis = "redis"
)

// Cache backends.
const (
	CacheNone  = "none"
	CacheFile  = "file"
	CacheRedis = "redis"
)

var (
	transportKinds = []string{TransportLocal, TransportRedis}
	cacheBackends  = []string{CacheNone, CacheFile, CacheRedis}
	logLevels      = []string{"debug", "info", "warn", "error"}
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Sweep: SweepConfig{
			EagerLimit:  32000,
			AllowCycles: true,
			Tolerance:   1e-12,
			TagBase:     1000,
		},
		Problem: ProblemConfig{
			NX:              16,
			NY:              16,
			PX:              2,
			PY:              2,
			Groups:          1,
			AnglesPerOctant: 2,
			AnglesPerSet:    2,
			Iterations:      10,
			Epsilon:         1e-8,
			Source:          1.0,
			Attenuation:     0.5,
		},
		Transport: TransportConfig{
			Kind:      TransportLocal,
			RedisAddr: "localhost:6379",
		},
		Cache: CacheConfig{
			Backend:   CacheFile,
			RedisAddr: "localhost:6379",
			TTL:       24 * time.Hour,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads a TOML file on top of [Default] and validates the result.
// Unknown keys are rejected so typos do not silently fall back to defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read config")
	}
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return cfg, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, errors.New(errors.ErrCodeInvalidConfig, "unknown key %q in %s", undecoded[0].String(), path)
	}
	return cfg, cfg.Validate()
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	positives := []struct {
		name string
		v    int
	}{
		{"sweep.eager_limit", c.Sweep.EagerLimit},
		{"sweep.tag_base", c.Sweep.TagBase},
		{"problem.nx", c.Problem.NX},
		{"problem.ny", c.Problem.NY},
		{"problem.px", c.Problem.PX},
		{"problem.py", c.Problem.PY},
		{"problem.groups", c.Problem.Groups},
		{"problem.angles_per_octant", c.Problem.AnglesPerOctant},
		{"problem.angles_per_set", c.Problem.AnglesPerSet},
		{"problem.iterations", c.Problem.Iterations},
	}
	for _, p := range positives {
		if err := errors.ValidatePositive(p.name, p.v); err != nil {
			return err
		}
	}

	if c.Sweep.TagBase <= fluds.DefaultExchangeTag {
		return errors.New(errors.ErrCodeInvalidConfig,
			"sweep.tag_base must be above the face exchange tag %d, got %d", fluds.DefaultExchangeTag, c.Sweep.TagBase)
	}
	if c.Sweep.MaxMessages < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "sweep.max_messages must not be negative")
	}
	if c.Sweep.Tolerance < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "sweep.tolerance must not be negative")
	}
	if c.Problem.PX > c.Problem.NX || c.Problem.PY > c.Problem.NY {
		return errors.New(errors.ErrCodeInvalidConfig, "more partitions (%dx%d) than cells (%dx%d)",
			c.Problem.PX, c.Problem.PY, c.Problem.NX, c.Problem.NY)
	}
	if c.Problem.Epsilon <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "problem.epsilon must be positive")
	}
	if c.Problem.Attenuation < 0 || c.Problem.Attenuation >= 1 {
		return errors.New(errors.ErrCodeInvalidConfig, "problem.attenuation must be in [0,1), got %g", c.Problem.Attenuation)
	}

	if !slices.Contains(transportKinds, c.Transport.Kind) {
		return errors.New(errors.ErrCodeInvalidConfig, "transport.kind must be one of %v, got %q", transportKinds, c.Transport.Kind)
	}
	if c.Transport.Kind == TransportRedis {
		if c.Transport.RedisAddr == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "transport.redis_addr is required for redis transport")
		}
		if c.Transport.Size != 0 && c.Transport.Size != c.Problem.Partitions() {
			return errors.New(errors.ErrCodeInvalidConfig, "transport.size %d does not match %d partitions",
				c.Transport.Size, c.Problem.Partitions())
		}
		if c.Transport.Rank < 0 || c.Transport.Rank >= c.Problem.Partitions() {
			return errors.New(errors.ErrCodeInvalidConfig, "transport.rank %d out of range", c.Transport.Rank)
		}
	}

	if !slices.Contains(cacheBackends, c.Cache.Backend) {
		return errors.New(errors.ErrCodeInvalidConfig, "cache.backend must be one of %v, got %q", cacheBackends, c.Cache.Backend)
	}
	if c.Cache.Backend == CacheRedis && c.Cache.RedisAddr == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "cache.redis_addr is required for redis cache")
	}
	if c.Cache.TTL < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "cache.ttl must not be negative")
	}

	if !slices.Contains(logLevels, c.Log.Level) {
		return errors.New(errors.ErrCodeInvalidConfig, "log.level must be one of %v, got %q", logLevels, c.Log.Level)
	}
	return nil
}

// Encode writes c as TOML, used by `sweeptower config` to print the
// effective configuration.
func (c Config) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
