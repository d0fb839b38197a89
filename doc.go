// Package shardkv is a sharding client runtime for block-protocol key-value
// servers.
//
// A deployment is a set of clusters. Each cluster is an ordered list of
// servers holding the same data: the first healthy server serves every
// request and the rest are standbys. Keys are spread over clusters with a
// weighted consistent hash ring, so adding or removing a cluster only moves
// the keys that cluster gains or loses.
//
// # Components
//
//   - pkg/protocol: block framing, request encoding and typed responses
//   - pkg/cluster: per-server connection pools, authentication and ordered
//     failover inside a cluster
//   - pkg/hash: the weighted consistent hash ring
//   - pkg/client: routing, multi-key fan-out and the typed command API
//   - pkg/config: topology files, environment overrides and logging
//   - pkg/metrics: Prometheus collectors for requests, failovers and pools
//   - pkg/cache and internal/server: an in-memory development server that
//     speaks the same protocol
//
// # Quick Start
//
// Development server:
//
//	go run ./cmd/server -port 8888
//
// Client:
//
//	import "github.com/shardkv/shardkv/pkg/client"
//
//	cfg, err := config.LoadFile("topology.yaml")
//	c, err := client.NewFromConfig(cfg)
//	defer c.Close()
//
//	err = c.Set(ctx, "user:123", "john_doe")
//	value, found, err := c.Get(ctx, "user:123")
//
//	_, err = c.HSet(ctx, "user:123:profile", "name", "John Doe")
//	profile, err := c.HGetAllMap(ctx, "user:123:profile")
//
//	err = c.ZSet(ctx, "leaderboard", "alice", 42)
//	top, err := c.ZRRange(ctx, "leaderboard", 0, 10)
//
//	_, err = c.QPushBack(ctx, "tasks", "task1", "task2")
//	tasks, err := c.QPopFront(ctx, "tasks", 10)
//
// # Error Handling
//
// Only transport failures move a request to the next server of a cluster.
// Server error statuses, malformed responses, authentication failures and
// pool exhaustion are returned to the caller at once. When every server of
// a cluster has failed the caller gets a ClusterUnavailableError wrapping
// the last failure. A not_found status is not an error: typed getters
// report it with a found flag.
//
// # Configuration
//
// Topologies are read from YAML or TOML files:
//
//	clusters:
//	  - id: east
//	    servers:
//	      - {host: 10.0.0.1, port: 8888, password: secret}
//	      - {host: 10.0.0.2, port: 8888, password: secret}
//	  - id: west
//	    weight: 2
//	    servers:
//	      - {host: 10.0.1.1, port: 8888}
//	virtual_nodes: 160
//	hash_function: xxhash
//
// SHARDKV_SERVERS replaces the topology with a single cluster, which is
// convenient for local use:
//
//	SHARDKV_SERVERS=localhost:8888 shardctl exec get user:123
package shardkv
