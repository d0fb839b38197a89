// Package config provides configuration for the shardkv client and the
// development server.
//
// Values come from several sources with the following precedence:
//  1. Command-line flags (dev server only, highest priority)
//  2. Environment variables
//  3. A YAML or TOML topology file (client only)
//  4. Default values (lowest priority)
//
// Client configuration describes the topology: an ordered list of clusters,
// each an ordered list of failover-equivalent servers, plus ring and
// logging settings.
//
// Example client usage:
//
//	cfg, err := config.LoadFile("topology.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	c, err := client.NewFromConfig(cfg)
//
// Example server usage:
//
//	cfg := config.LoadServerConfig()
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
//
// Environment variables are prefixed with "SHARDKV_" and use uppercase
// names. For example, the dev server port can be set with SHARDKV_PORT=8888.
package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// Default dev server settings.
const (
	DefaultServerPort         = 8888
	DefaultMaxConnections     = 1000
	DefaultServerReadTimeout  = 5 * time.Minute
	DefaultServerWriteTimeout = 10 * time.Second
	DefaultCleanupInterval    = time.Second
)

// EnvPrefix prefixes every environment variable the package reads.
const EnvPrefix = "SHARDKV_"

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// ServerConfig holds the options of a development server instance.
//
// Configuration sources (in order of precedence):
//  1. Command-line flags: -port, -host, -password, etc.
//  2. Environment variables: SHARDKV_PORT, SHARDKV_HOST, SHARDKV_PASSWORD, etc.
//  3. Default values
type ServerConfig struct {
	Host            string        // Host address to bind to (default: "0.0.0.0")
	Port            int           // TCP port to listen on (default: 8888)
	Password        string        // Required auth password; empty disables auth
	MaxConns        int           // Maximum concurrent connections (default: 1000)
	ReadTimeout     time.Duration // Idle read timeout per connection (default: 5m)
	WriteTimeout    time.Duration // Write timeout per response (default: 10s)
	CleanupInterval time.Duration // Expired key sweep interval (default: 1s)
	LogLevel        string        // debug, info, warn, error (default: "info")
	MetricsAddr     string        // Address for the /metrics endpoint; empty disables it
}

// DefaultServerConfig returns a ServerConfig with every default applied.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:            "0.0.0.0",
		Port:            DefaultServerPort,
		MaxConns:        DefaultMaxConnections,
		ReadTimeout:     DefaultServerReadTimeout,
		WriteTimeout:    DefaultServerWriteTimeout,
		CleanupInterval: DefaultCleanupInterval,
		LogLevel:        "info",
	}
}

// LoadServerConfig builds a ServerConfig from the process flags and
// environment.
//
// Command-line flags:
//
//	-port: Server port (default: 8888)
//	-host: Server host (default: "0.0.0.0")
//	-password: Require this password via auth
//	-max-conns: Maximum connections (default: 1000)
//	-read-timeout: Idle read timeout (default: 5m)
//	-write-timeout: Write timeout (default: 10s)
//	-log-level: Log level (default: "info")
//	-metrics-addr: Prometheus listen address (default: disabled)
//
// Environment variables:
//
//	SHARDKV_PORT, SHARDKV_HOST, SHARDKV_PASSWORD, SHARDKV_MAX_CONNS,
//	SHARDKV_LOG_LEVEL, SHARDKV_METRICS_ADDR
func LoadServerConfig() *ServerConfig {
	cfg, err := ParseServerFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		// flag.CommandLine exits on parse errors itself.
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return cfg
}

// ParseServerFlags is LoadServerConfig over an explicit flag set and
// argument list. Environment variables are applied first so that flags
// given on the command line win.
func ParseServerFlags(fs *flag.FlagSet, args []string) (*ServerConfig, error) {
	cfg := DefaultServerConfig()
	cfg.applyEnv()

	fs.IntVar(&cfg.Port, "port", cfg.Port, "Server port")
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Server host")
	fs.StringVar(&cfg.Password, "password", cfg.Password, "Require clients to authenticate with this password")
	fs.IntVar(&cfg.MaxConns, "max-conns", cfg.MaxConns, "Maximum concurrent connections")
	fs.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "Idle read timeout")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "Write timeout")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ServerConfig) applyEnv() {
	if port := getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Port = p
		}
	}
	if host := getenv("HOST"); host != "" {
		c.Host = host
	}
	if password := getenv("PASSWORD"); password != "" {
		c.Password = password
	}
	if maxConns := getenv("MAX_CONNS"); maxConns != "" {
		if mc, err := strconv.Atoi(maxConns); err == nil {
			c.MaxConns = mc
		}
	}
	if level := getenv("LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
	if addr := getenv("METRICS_ADDR"); addr != "" {
		c.MetricsAddr = addr
	}
}

// Address returns the host:port the server listens on.
func (c *ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate checks the ServerConfig. Port 0 is allowed and picks a free port.
func (c *ServerConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.MaxConns < 1 {
		return fmt.Errorf("max connections must be positive: %d", c.MaxConns)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive: %s", c.ReadTimeout)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive: %s", c.WriteTimeout)
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup interval must be positive: %s", c.CleanupInterval)
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}
	return nil
}

func getenv(name string) string {
	return os.Getenv(EnvPrefix + name)
}
