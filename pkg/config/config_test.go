package config

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadClientConfigDefaults(t *testing.T) {
	cfg, err := LoadClientConfig()
	require.NoError(t, err)

	require.Len(t, cfg.Clusters, 1)
	assert.Equal(t, DefaultClusterID, cfg.Clusters[0].ID)
	assert.Equal(t, 1, cfg.Clusters[0].Weight)
	assert.Equal(t, NodeConfig{Host: "localhost", Port: 8888}, cfg.Clusters[0].Servers[0])
	assert.Equal(t, DefaultVirtualNodes, cfg.VirtualNodes)
	assert.Equal(t, DefaultHashFunction, cfg.HashFunction)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadClientConfigFromEnv(t *testing.T) {
	t.Setenv("SHARDKV_SERVERS", "10.0.0.1:8888, 10.0.0.2:9999")
	t.Setenv("SHARDKV_PASSWORD", "secret")
	t.Setenv("SHARDKV_VIRTUAL_NODES", "64")
	t.Setenv("SHARDKV_HASH", "murmur3")
	t.Setenv("SHARDKV_MAX_TOTAL", "4")
	t.Setenv("SHARDKV_CONNECT_TIMEOUT", "2s")
	t.Setenv("SHARDKV_LOG_LEVEL", "debug")

	cfg, err := LoadClientConfig()
	require.NoError(t, err)

	require.Len(t, cfg.Clusters, 1)
	servers := cfg.Clusters[0].Servers
	require.Len(t, servers, 2)
	assert.Equal(t, "10.0.0.1", servers[0].Host)
	assert.Equal(t, 9999, servers[1].Port)
	for _, s := range servers {
		assert.Equal(t, "secret", s.Password)
		assert.Equal(t, 4, s.MaxTotal)
		assert.Equal(t, 2*time.Second, s.ConnectTimeout)
	}
	assert.Equal(t, 64, cfg.VirtualNodes)
	assert.Equal(t, "murmur3", cfg.HashFunction)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadClientConfigRejectsBadAddress(t *testing.T) {
	t.Setenv("SHARDKV_SERVERS", "no-port")
	_, err := LoadClientConfig()
	assert.Error(t, err)
}

func TestLoadFileYAML(t *testing.T) {
	path := writeFile(t, "topology.yaml", `
virtual_nodes: 100
hash_function: sha256
clusters:
  - id: users
    weight: 2
    servers:
      - host: 10.0.0.1
        port: 8888
        read_timeout: 3s
      - host: 10.0.0.2
        port: 8888
  - id: orders
    servers:
      - {host: 10.0.1.1, port: 8888, password: s3cret, max_total: 20, max_idle: 5}
logging:
  level: warn
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	require.Len(t, cfg.Clusters, 2)
	assert.Equal(t, "users", cfg.Clusters[0].ID)
	assert.Equal(t, 2, cfg.Clusters[0].Weight)
	assert.Equal(t, 3*time.Second, cfg.Clusters[0].Servers[0].ReadTimeout)
	assert.Equal(t, 1, cfg.Clusters[1].Weight)
	assert.Equal(t, "s3cret", cfg.Clusters[1].Servers[0].Password)
	assert.Equal(t, 100, cfg.VirtualNodes)
	assert.Equal(t, "warn", cfg.Logging.Level)

	ccs := cfg.ClusterConfigs()
	require.Len(t, ccs, 2)
	assert.Equal(t, "10.0.0.2:8888", ccs[0].Servers[1].Address())
	assert.Equal(t, 20, ccs[1].Servers[0].MaxTotal)
	assert.Equal(t, 5, ccs[1].Servers[0].MaxIdle)

	fn, err := cfg.HashFunc()
	require.NoError(t, err)
	assert.NotNil(t, fn)
}

func TestLoadFileTOML(t *testing.T) {
	path := writeFile(t, "topology.toml", `
virtual_nodes = 50

[[clusters]]
id = "a"
weight = 3

[[clusters.servers]]
host = "127.0.0.1"
port = 8888
connect_timeout = "1s"

[[clusters]]
id = "b"

[[clusters.servers]]
host = "127.0.0.1"
port = 8889
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	require.Len(t, cfg.Clusters, 2)
	assert.Equal(t, 3, cfg.Clusters[0].Weight)
	assert.Equal(t, time.Second, cfg.Clusters[0].Servers[0].ConnectTimeout)
	assert.Equal(t, 8889, cfg.Clusters[1].Servers[0].Port)
	assert.Equal(t, 50, cfg.VirtualNodes)
	assert.Equal(t, DefaultHashFunction, cfg.HashFunction)
}

func TestLoadFileEnvOverridesTopology(t *testing.T) {
	path := writeFile(t, "topology.yml", `
clusters:
  - id: a
    servers:
      - {host: 10.0.0.1, port: 8888}
`)
	t.Setenv("SHARDKV_SERVERS", "127.0.0.1:7000")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, cfg.Clusters, 1)
	assert.Equal(t, DefaultClusterID, cfg.Clusters[0].ID)
	assert.Equal(t, 7000, cfg.Clusters[0].Servers[0].Port)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadFile(writeFile(t, "topology.json", `{}`))
	assert.Error(t, err)

	_, err = LoadFile(writeFile(t, "topology.yaml", "clusters: [unterminated"))
	assert.Error(t, err)

	_, err = LoadFile(writeFile(t, "topology.yaml", "clusters: []"))
	assert.Error(t, err)
}

func TestClientConfigValidate(t *testing.T) {
	valid := func() *ClientConfig {
		return &ClientConfig{
			Clusters: []ClusterConfig{
				{ID: "a", Weight: 1, Servers: []NodeConfig{{Host: "h", Port: 1}}},
				{ID: "b", Weight: 1, Servers: []NodeConfig{{Host: "h", Port: 2}}},
			},
			VirtualNodes: 10,
			HashFunction: "xxhash",
			Logging:      LoggingConfig{Level: "info"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*ClientConfig)
		wantErr bool
	}{
		{"valid", func(*ClientConfig) {}, false},
		{"no clusters", func(c *ClientConfig) { c.Clusters = nil }, true},
		{"empty cluster", func(c *ClientConfig) { c.Clusters[0].Servers = nil }, true},
		{"duplicate id", func(c *ClientConfig) { c.Clusters[1].ID = "a" }, true},
		{"bad weight", func(c *ClientConfig) { c.Clusters[0].Weight = -1 }, true},
		{"bad port", func(c *ClientConfig) { c.Clusters[0].Servers[0].Port = 0 }, true},
		{"bad vnodes", func(c *ClientConfig) { c.VirtualNodes = 0 }, true},
		{"bad hash", func(c *ClientConfig) { c.HashFunction = "md5" }, true},
		{"bad level", func(c *ClientConfig) { c.Logging.Level = "verbose" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseServerFlags(t *testing.T) {
	t.Setenv("SHARDKV_PORT", "7000")
	t.Setenv("SHARDKV_PASSWORD", "envpass")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cfg, err := ParseServerFlags(fs, []string{"-port", "7001", "-read-timeout", "1m", "-log-level", "debug"})
	require.NoError(t, err)

	assert.Equal(t, 7001, cfg.Port, "flags win over env")
	assert.Equal(t, "envpass", cfg.Password)
	assert.Equal(t, time.Minute, cfg.ReadTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "0.0.0.0:7001", cfg.Address())
	assert.NoError(t, cfg.Validate())
}

func TestServerConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ServerConfig)
		wantErr bool
	}{
		{"defaults", func(*ServerConfig) {}, false},
		{"ephemeral port", func(c *ServerConfig) { c.Port = 0 }, false},
		{"bad port", func(c *ServerConfig) { c.Port = 70000 }, true},
		{"bad max conns", func(c *ServerConfig) { c.MaxConns = 0 }, true},
		{"bad read timeout", func(c *ServerConfig) { c.ReadTimeout = 0 }, true},
		{"bad write timeout", func(c *ServerConfig) { c.WriteTimeout = -time.Second }, true},
		{"bad log level", func(c *ServerConfig) { c.LogLevel = "trace" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultServerConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LoggingConfig{Level: "warn"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	logger, err = NewLogger(LoggingConfig{Level: "debug", Development: true})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	_, err = NewLogger(LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}
