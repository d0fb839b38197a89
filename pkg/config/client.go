package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/shardkv/shardkv/pkg/cluster"
	"github.com/shardkv/shardkv/pkg/hash"
)

// Default client settings.
const (
	DefaultClientAddress = "localhost:8888"
	DefaultClusterID     = "default"
	DefaultVirtualNodes  = hash.DefaultVirtualNodes
	DefaultHashFunction  = "xxhash"
)

// NodeConfig describes one server of a cluster. Zero durations and limits
// fall back to the cluster package defaults.
type NodeConfig struct {
	Host           string        `yaml:"host" toml:"host"`
	Port           int           `yaml:"port" toml:"port"`
	Password       string        `yaml:"password" toml:"password"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" toml:"connect_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" toml:"write_timeout"`
	BorrowTimeout  time.Duration `yaml:"borrow_timeout" toml:"borrow_timeout"`
	MaxTotal       int           `yaml:"max_total" toml:"max_total"`
	MaxIdle        int           `yaml:"max_idle" toml:"max_idle"`
}

// ClusterConfig describes one shard: its ring weight and its servers in
// failover order.
type ClusterConfig struct {
	ID      string       `yaml:"id" toml:"id"`
	Weight  int          `yaml:"weight" toml:"weight"`
	Servers []NodeConfig `yaml:"servers" toml:"servers"`
}

// LoggingConfig selects the zap logger built by NewLogger.
type LoggingConfig struct {
	Level       string `yaml:"level" toml:"level"`
	Development bool   `yaml:"development" toml:"development"`
}

// MetricsConfig enables Prometheus collection in the client.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
}

// ClientConfig is a complete client topology.
//
// Configuration sources (in order of precedence):
//  1. Environment variables: SHARDKV_SERVERS, SHARDKV_PASSWORD, etc.
//  2. A topology file passed to LoadFile
//  3. Default values
//
// Example topology file:
//
//	virtual_nodes: 150
//	hash_function: xxhash
//	clusters:
//	  - id: users
//	    weight: 2
//	    servers:
//	      - {host: 10.0.0.1, port: 8888}
//	      - {host: 10.0.0.2, port: 8888}
//	  - id: orders
//	    servers:
//	      - {host: 10.0.1.1, port: 8888, password: s3cret}
type ClientConfig struct {
	Clusters     []ClusterConfig `yaml:"clusters" toml:"clusters"`
	VirtualNodes int             `yaml:"virtual_nodes" toml:"virtual_nodes"`
	HashFunction string          `yaml:"hash_function" toml:"hash_function"`
	Logging      LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics      MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

// LoadClientConfig creates a single-cluster ClientConfig from environment
// variables and defaults.
//
// Environment variables:
//
//	SHARDKV_SERVERS: Comma-separated host:port list forming one cluster, in failover order
//	SHARDKV_PASSWORD: Password for servers that do not set one
//	SHARDKV_VIRTUAL_NODES: Virtual nodes per unit of weight
//	SHARDKV_HASH: Ring hash function (xxhash, murmur3, sha256)
//	SHARDKV_MAX_TOTAL: Connection limit for servers that do not set one
//	SHARDKV_CONNECT_TIMEOUT: Connect timeout for servers that do not set one
//	SHARDKV_LOG_LEVEL: Log level
//
// Example:
//
//	os.Setenv("SHARDKV_SERVERS", "10.0.0.1:8888,10.0.0.2:8888")
//	cfg, err := config.LoadClientConfig()
func LoadClientConfig() (*ClientConfig, error) {
	cfg := &ClientConfig{}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if len(cfg.Clusters) == 0 {
		node, err := ParseNode(DefaultClientAddress)
		if err != nil {
			return nil, err
		}
		cfg.Clusters = []ClusterConfig{{ID: DefaultClusterID, Servers: []NodeConfig{node}}}
		cfg.applyNodeEnv()
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile reads a topology from a .yaml, .yml or .toml file, applies
// defaults and environment overrides, and validates the result.
func LoadFile(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &ClientConfig{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q", ext)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv applies the SHARDKV_* overrides. SHARDKV_SERVERS replaces the
// whole topology with a single cluster.
func (c *ClientConfig) applyEnv() error {
	if servers := getenv("SERVERS"); servers != "" {
		var nodes []NodeConfig
		for _, addr := range strings.Split(servers, ",") {
			addr = strings.TrimSpace(addr)
			if addr == "" {
				continue
			}
			node, err := ParseNode(addr)
			if err != nil {
				return err
			}
			nodes = append(nodes, node)
		}
		c.Clusters = []ClusterConfig{{ID: DefaultClusterID, Servers: nodes}}
	}

	if virtualNodes := getenv("VIRTUAL_NODES"); virtualNodes != "" {
		if vn, err := strconv.Atoi(virtualNodes); err == nil {
			c.VirtualNodes = vn
		}
	}
	if fn := getenv("HASH"); fn != "" {
		c.HashFunction = fn
	}
	if level := getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	c.applyNodeEnv()
	return nil
}

// applyNodeEnv fills per-server fields that the topology left unset.
func (c *ClientConfig) applyNodeEnv() {
	password := getenv("PASSWORD")
	var maxTotal int
	if v := getenv("MAX_TOTAL"); v != "" {
		if mt, err := strconv.Atoi(v); err == nil {
			maxTotal = mt
		}
	}
	var connectTimeout time.Duration
	if v := getenv("CONNECT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			connectTimeout = d
		}
	}

	for i := range c.Clusters {
		for j := range c.Clusters[i].Servers {
			node := &c.Clusters[i].Servers[j]
			if node.Password == "" {
				node.Password = password
			}
			if node.MaxTotal == 0 {
				node.MaxTotal = maxTotal
			}
			if node.ConnectTimeout == 0 {
				node.ConnectTimeout = connectTimeout
			}
		}
	}
}

// ApplyDefaults fills unset ring, logging and weight settings.
func (c *ClientConfig) ApplyDefaults() {
	if c.VirtualNodes == 0 {
		c.VirtualNodes = DefaultVirtualNodes
	}
	if c.HashFunction == "" {
		c.HashFunction = DefaultHashFunction
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	for i := range c.Clusters {
		if c.Clusters[i].Weight == 0 {
			c.Clusters[i].Weight = 1
		}
	}
}

// Validate checks the topology.
//
// Validation rules:
//   - At least one cluster, each with at least one server
//   - Cluster IDs are unique
//   - Ports are in range and limits are not negative
//   - Weights and VirtualNodes are positive
//   - HashFunction and Logging.Level are known names
func (c *ClientConfig) Validate() error {
	if len(c.Clusters) == 0 {
		return fmt.Errorf("at least one cluster must be specified")
	}

	ids := make(map[string]bool, len(c.Clusters))
	for i, cc := range c.Clusters {
		if len(cc.Servers) == 0 {
			return fmt.Errorf("cluster %d (%q) has no servers", i, cc.ID)
		}
		if cc.Weight < 1 {
			return fmt.Errorf("cluster %q weight must be positive: %d", cc.ID, cc.Weight)
		}
		id := cc.ID
		if id == "" {
			id = clusterAddrs(cc)
		}
		if ids[id] {
			return fmt.Errorf("duplicate cluster id %q", id)
		}
		ids[id] = true

		for _, node := range cc.Servers {
			if err := node.Server().Validate(); err != nil {
				return fmt.Errorf("cluster %q: %w", id, err)
			}
		}
	}

	if c.VirtualNodes < 1 {
		return fmt.Errorf("virtual nodes must be positive: %d", c.VirtualNodes)
	}
	if _, err := hash.FuncByName(c.HashFunction); err != nil {
		return err
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	return nil
}

// ClusterConfigs converts the topology into cluster.Config values in
// declared order.
func (c *ClientConfig) ClusterConfigs() []cluster.Config {
	out := make([]cluster.Config, len(c.Clusters))
	for i, cc := range c.Clusters {
		out[i] = cc.ClusterConfig()
	}
	return out
}

// HashFunc returns the configured ring hash.
func (c *ClientConfig) HashFunc() (hash.Func, error) {
	return hash.FuncByName(c.HashFunction)
}

// ClusterConfig converts cc into a cluster.Config.
func (cc ClusterConfig) ClusterConfig() cluster.Config {
	servers := make([]cluster.Server, len(cc.Servers))
	for i, node := range cc.Servers {
		servers[i] = node.Server()
	}
	return cluster.Config{ID: cc.ID, Weight: cc.Weight, Servers: servers}
}

// Server converts n into a cluster.Server.
func (n NodeConfig) Server() cluster.Server {
	return cluster.Server{
		Host:           n.Host,
		Port:           n.Port,
		Password:       n.Password,
		ConnectTimeout: n.ConnectTimeout,
		ReadTimeout:    n.ReadTimeout,
		WriteTimeout:   n.WriteTimeout,
		BorrowTimeout:  n.BorrowTimeout,
		MaxTotal:       n.MaxTotal,
		MaxIdle:        n.MaxIdle,
	}
}

// ParseNode parses a host:port address into a NodeConfig.
func ParseNode(addr string) (NodeConfig, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return NodeConfig{}, fmt.Errorf("invalid server address %q: %w", addr, err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return NodeConfig{}, fmt.Errorf("invalid port in server address %q", addr)
	}
	return NodeConfig{Host: host, Port: p}, nil
}

func clusterAddrs(cc ClusterConfig) string {
	addrs := make([]string, len(cc.Servers))
	for i, node := range cc.Servers {
		addrs[i] = node.Server().Address()
	}
	return strings.Join(addrs, ",")
}
