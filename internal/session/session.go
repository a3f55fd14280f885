// Package session resolves the kernel's operating configuration: retry
// budgets, checkpoint/compaction intervals, lock timeouts, and the
// Iceberg-compatibility version a table should target. Precedence is
// flags (set by the caller) over environment variables over a project
// config.yaml over built-in defaults, matching the layered configuration
// the teacher's cmd/bd root command applies before any command runs.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/deltakernel/txncore/internal/icebergcompat"
)

const envPrefix = "DELTAKERNEL"

// Defaults mirror the constants the rest of the module otherwise leaves
// implicit in test fixtures.
const (
	DefaultMaxRetries             = 10
	DefaultCheckpointInterval     = 10
	DefaultLogCompactionInterval  = 0 // disabled unless explicitly configured
	DefaultLockTimeout            = 10 * time.Second
)

// Config is the resolved, immutable configuration for one kernel session.
type Config struct {
	MaxRetries            int
	CheckpointInterval    int
	LogCompactionInterval int
	LockTimeout           time.Duration
	IcebergCompatVersion  icebergcompat.Version
	EngineInfo            string
}

// fileConfig is the subset of a project's .deltakernel/config.yaml that is
// read directly with yaml.v3, bypassing viper, for callers that need a
// config snapshot before a full session is initialized (mirrors the
// teacher's LocalConfig / LoadLocalConfig split).
type fileConfig struct {
	MaxRetries            int    `yaml:"max-retries"`
	CheckpointInterval    int    `yaml:"checkpoint-interval"`
	LogCompactionInterval int    `yaml:"log-compaction-interval"`
	LockTimeoutSeconds    int    `yaml:"lock-timeout-seconds"`
	IcebergCompatVersion  string `yaml:"iceberg-compat-version"`
	EngineInfo            string `yaml:"engine-info"`
}

// loadFileConfig reads <dir>/.deltakernel/config.yaml directly. A missing
// or unparsable file yields a zero-value fileConfig rather than an error,
// since every field has a well-defined fallback in Resolve.
func loadFileConfig(dir string) fileConfig {
	path := filepath.Join(dir, ".deltakernel", "config.yaml")
	data, err := os.ReadFile(path) // #nosec G304 -- path built from a caller-supplied project directory
	if err != nil {
		return fileConfig{}
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fileConfig{}
	}
	return cfg
}

// Overrides carries the values a caller sets explicitly (flags, API
// arguments). A zero value for int/duration fields means "not set, defer
// to the next layer"; Version is a pointer for the same reason.
type Overrides struct {
	MaxRetries            int
	CheckpointInterval    int
	LogCompactionInterval int
	LockTimeout           time.Duration
	IcebergCompatVersion  *icebergcompat.Version
	EngineInfo            string
}

// Resolve builds a Config for projectDir, applying overrides over
// environment variables over config.yaml over built-in defaults.
func Resolve(projectDir string, overrides Overrides) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("max-retries", DefaultMaxRetries)
	v.SetDefault("checkpoint-interval", DefaultCheckpointInterval)
	v.SetDefault("log-compaction-interval", DefaultLogCompactionInterval)
	v.SetDefault("lock-timeout-seconds", int(DefaultLockTimeout.Seconds()))
	v.SetDefault("iceberg-compat-version", "")
	v.SetDefault("engine-info", "deltakernel")

	file := loadFileConfig(projectDir)
	if file.MaxRetries > 0 {
		v.SetDefault("max-retries", file.MaxRetries)
	}
	if file.CheckpointInterval > 0 {
		v.SetDefault("checkpoint-interval", file.CheckpointInterval)
	}
	if file.LogCompactionInterval > 0 {
		v.SetDefault("log-compaction-interval", file.LogCompactionInterval)
	}
	if file.LockTimeoutSeconds > 0 {
		v.SetDefault("lock-timeout-seconds", file.LockTimeoutSeconds)
	}
	if file.IcebergCompatVersion != "" {
		v.SetDefault("iceberg-compat-version", file.IcebergCompatVersion)
	}
	if file.EngineInfo != "" {
		v.SetDefault("engine-info", file.EngineInfo)
	}

	cfg := Config{
		MaxRetries:            v.GetInt("max-retries"),
		CheckpointInterval:    v.GetInt("checkpoint-interval"),
		LogCompactionInterval: v.GetInt("log-compaction-interval"),
		LockTimeout:           time.Duration(v.GetInt("lock-timeout-seconds")) * time.Second,
		EngineInfo:            v.GetString("engine-info"),
	}

	if raw := v.GetString("iceberg-compat-version"); raw != "" {
		ver, err := parseIcebergVersion(raw)
		if err != nil {
			return Config{}, err
		}
		cfg.IcebergCompatVersion = ver
	}

	if overrides.MaxRetries > 0 {
		cfg.MaxRetries = overrides.MaxRetries
	}
	if overrides.CheckpointInterval > 0 {
		cfg.CheckpointInterval = overrides.CheckpointInterval
	}
	if overrides.LogCompactionInterval > 0 {
		cfg.LogCompactionInterval = overrides.LogCompactionInterval
	}
	if overrides.LockTimeout > 0 {
		cfg.LockTimeout = overrides.LockTimeout
	}
	if overrides.IcebergCompatVersion != nil {
		cfg.IcebergCompatVersion = *overrides.IcebergCompatVersion
	}
	if overrides.EngineInfo != "" {
		cfg.EngineInfo = overrides.EngineInfo
	}

	return cfg, nil
}

func parseIcebergVersion(raw string) (icebergcompat.Version, error) {
	for _, v := range icebergcompat.AllVersions() {
		if string(v) == raw {
			return v, nil
		}
	}
	return "", fmt.Errorf("session: unrecognized iceberg-compat-version %q", raw)
}
