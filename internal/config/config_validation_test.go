package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowtraced/pkg/flowtypes"
)

func validConfig() *flowtypes.Config {
	cfg := &flowtypes.Config{}
	applyDefaults(cfg)
	return cfg
}

func TestValidateConfigAcceptsDefaults(t *testing.T) {
	assert.NoError(t, ValidateConfig(validConfig()))
}

func TestValidateConfigRejectsNonPositiveLimits(t *testing.T) {
	cfg := validConfig()
	cfg.NodeLimit = 0
	cfg.DepthLimit = -1
	cfg.InternerCapacity = 0
	cfg.PushInterval = 0

	err := ValidateConfig(cfg)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "node_limit")
	assert.Contains(t, msg, "depth_limit")
	assert.Contains(t, msg, "interner_capacity")
	assert.Contains(t, msg, "push_interval")
}

func TestValidateConfigRejectsBadServerPortOnlyWhenEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Enabled = false
	cfg.Server.Port = -1
	assert.NoError(t, ValidateConfig(cfg), "a disabled server's port is irrelevant")

	cfg.Server.Enabled = true
	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidateConfigRejectsKafkaHandlerMissingBrokersOrTopic(t *testing.T) {
	cfg := validConfig()
	cfg.Handlers.Kafka = &flowtypes.KafkaHandlerConfig{Enabled: true}

	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handlers.kafka.brokers")
	assert.Contains(t, err.Error(), "handlers.kafka.topic")
}

func TestValidateConfigAcceptsKafkaHandlerWithBrokersAndTopic(t *testing.T) {
	cfg := validConfig()
	cfg.Handlers.Kafka = &flowtypes.KafkaHandlerConfig{
		Enabled: true,
		Brokers: []string{"localhost:9092"},
		Topic:   "flowtraced.leaks",
	}
	assert.NoError(t, ValidateConfig(cfg))
}

func TestValidateConfigRejectsFileHandlerMissingPath(t *testing.T) {
	cfg := validConfig()
	cfg.Handlers.File = &flowtypes.FileHandlerConfig{Enabled: true}

	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handlers.file.path")
}

func TestValidateConfigRejectsUnknownFileCompression(t *testing.T) {
	cfg := validConfig()
	cfg.Handlers.File = &flowtypes.FileHandlerConfig{Enabled: true, Path: "/tmp/flows.jsonl", Compression: "bzip2"}

	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handlers.file.compression")
}

func TestValidateConfigAcceptsEveryKnownCompressionAlgorithm(t *testing.T) {
	for _, algo := range []string{"none", "gzip", "zstd", "lz4", "snappy", ""} {
		cfg := validConfig()
		cfg.Handlers.File = &flowtypes.FileHandlerConfig{Enabled: true, Path: "/tmp/flows.jsonl", Compression: algo}
		assert.NoError(t, ValidateConfig(cfg), "compression %q should be accepted", algo)
	}
}
