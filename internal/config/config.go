// Package config loads and validates the configuration contract of
// spec.md §6: include/exclude/track_constructors patterns,
// filter_direct_only, push_interval, and the trie/interner limits, read
// once at process startup — re-reading mid-process is explicitly out of
// scope, so there is no watcher here (see DESIGN.md for the teacher's
// fsnotify-based hot-reload package and why it has no home in this
// component).
//
// Grounded on the teacher's internal/config.LoadConfig +
// applyDefaults/applyEnvironmentOverrides/ValidateConfig pipeline: load a
// YAML file if one was given, fill in defaults, let environment variables
// override either, then validate before the caller proceeds.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"flowtraced/pkg/errors"
	"flowtraced/pkg/flowtypes"
)

// LoadConfig reads configFile (if non-empty), applies defaults, applies
// environment overrides, and validates the result. An unreadable or
// unparseable file is a warning, not a fatal error — exactly the
// teacher's posture, since default-filled zero config is still a valid
// starting point.
func LoadConfig(configFile string) (*flowtypes.Config, error) {
	cfg := &flowtypes.Config{}

	if configFile != "" {
		if err := loadFile(configFile, cfg); err != nil {
			fmt.Printf("warning: failed to load config file %s: %v\n", configFile, err)
		}
	}

	applyDefaults(cfg)
	applyEnvironmentOverrides(cfg)

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(filename string, cfg *flowtypes.Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// applyDefaults fills in the spec's documented defaults (spec.md §3/§4)
// for every field left at its zero value.
func applyDefaults(cfg *flowtypes.Config) {
	if cfg.NodeLimit == 0 {
		cfg.NodeLimit = 1_000_000
	}
	if cfg.DepthLimit == 0 {
		cfg.DepthLimit = 100
	}
	if cfg.InternerCapacity == 0 {
		cfg.InternerCapacity = 65536
	}
	if cfg.QueueCapacity == 0 {
		cfg.QueueCapacity = 4096
	}
	if cfg.DrainInterval == 0 {
		cfg.DrainInterval = 100
	}
	if cfg.PushInterval == 0 {
		cfg.PushInterval = 60 * time.Second
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8402
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.HostMonitor.Interval == 0 {
		cfg.HostMonitor.Interval = 30 * time.Second
	}
	if cfg.Handlers.File != nil && cfg.Handlers.File.Compression == "" {
		cfg.Handlers.File.Compression = "none"
	}
}

// applyEnvironmentOverrides lets a handful of operationally hot knobs be
// overridden without editing the YAML file, matching the teacher's
// SSW_* environment variable convention (here FLOWTRACED_*).
func applyEnvironmentOverrides(cfg *flowtypes.Config) {
	cfg.LogLevel = getEnvString("FLOWTRACED_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvString("FLOWTRACED_LOG_FORMAT", cfg.LogFormat)
	cfg.FilterDirectOnly = getEnvBool("FLOWTRACED_FILTER_DIRECT_ONLY", cfg.FilterDirectOnly)
	cfg.PushInterval = getEnvDuration("FLOWTRACED_PUSH_INTERVAL", cfg.PushInterval)
	cfg.NodeLimit = getEnvInt("FLOWTRACED_NODE_LIMIT", cfg.NodeLimit)
	cfg.Server.Port = getEnvInt("FLOWTRACED_SERVER_PORT", cfg.Server.Port)
	cfg.Server.Enabled = getEnvBool("FLOWTRACED_SERVER_ENABLED", cfg.Server.Enabled)
}

func getEnvString(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

// ValidateConfig runs every validation rule and returns a single
// aggregated error if any failed.
func ValidateConfig(cfg *flowtypes.Config) error {
	v := &validator{cfg: cfg}
	v.validateLimits()
	v.validateServer()
	v.validateHandlers()
	return v.result()
}

type validator struct {
	cfg    *flowtypes.Config
	issues []string
}

func (v *validator) addError(operation, message string) {
	v.issues = append(v.issues, fmt.Sprintf("%s: %s", operation, message))
}

func (v *validator) validateLimits() {
	if v.cfg.NodeLimit <= 0 {
		v.addError("validate_node_limit", "node_limit must be positive")
	}
	if v.cfg.DepthLimit <= 0 {
		v.addError("validate_depth_limit", "depth_limit must be positive")
	}
	if v.cfg.InternerCapacity <= 0 {
		v.addError("validate_interner_capacity", "interner_capacity must be positive")
	}
	if v.cfg.PushInterval <= 0 {
		v.addError("validate_push_interval", "push_interval must be positive")
	}
}

func (v *validator) validateServer() {
	if !v.cfg.Server.Enabled {
		return
	}
	if v.cfg.Server.Port <= 0 || v.cfg.Server.Port > 65535 {
		v.addError("validate_server_port", "server.port must be between 1 and 65535")
	}
}

func (v *validator) validateHandlers() {
	if k := v.cfg.Handlers.Kafka; k != nil && k.Enabled {
		if len(k.Brokers) == 0 {
			v.addError("validate_kafka_brokers", "handlers.kafka.brokers must not be empty when enabled")
		}
		if k.Topic == "" {
			v.addError("validate_kafka_topic", "handlers.kafka.topic must not be empty when enabled")
		}
	}
	if f := v.cfg.Handlers.File; f != nil && f.Enabled {
		if f.Path == "" {
			v.addError("validate_file_path", "handlers.file.path must not be empty when enabled")
		}
		switch strings.ToLower(f.Compression) {
		case "", "none", "gzip", "zstd", "lz4", "snappy":
		default:
			v.addError("validate_file_compression", "handlers.file.compression must be one of none|gzip|zstd|lz4|snappy")
		}
	}
}

func (v *validator) result() error {
	if len(v.issues) == 0 {
		return nil
	}
	err := errors.New(errors.CodeConfigValidation, "config", "validate", strings.Join(v.issues, "; "))
	return err
}
