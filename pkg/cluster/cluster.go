// Package cluster manages connections to the servers of one shard.
//
// A Cluster is an ordered list of equivalent servers. Each request is tried
// against the members in declared order: the first member takes all the
// traffic while it is healthy and later members are only used when the
// ones before them fail at the transport level.
//
// Failure handling:
//   - Connect refused, timeouts and mid-stream I/O errors discard the
//     connection and move on to the next member.
//   - A server that answered with error, fail or client_error understood
//     the request and rejected it. The connection goes back to the pool and
//     the ServerError is returned without trying other members, so a write
//     is never applied twice.
//   - Malformed framing is returned immediately as a ProtocolError; the
//     connection is discarded because the stream can no longer be trusted.
//   - Authentication failures and pool exhaustion are returned immediately.
//
// Example usage:
//
//	c, err := cluster.New(cluster.Config{
//		ID: "users",
//		Servers: []cluster.Server{
//			{Host: "10.0.0.1", Port: 8888},
//			{Host: "10.0.0.2", Port: 8888},
//		},
//	})
//	resp, err := c.Execute(ctx, "get", "user:123")
package cluster

import (
	"context"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	kverrors "github.com/shardkv/shardkv/pkg/errors"
	"github.com/shardkv/shardkv/pkg/metrics"
	"github.com/shardkv/shardkv/pkg/protocol"
)

// Config describes a cluster. ID defaults to the comma-joined member
// addresses and Weight to 1.
type Config struct {
	ID      string
	Weight  int
	Servers []Server
}

// Cluster is an immutable, ordered set of failover-equivalent servers,
// each with its own connection pool.
type Cluster struct {
	id      string
	weight  int
	pools   []*Pool
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New validates cfg and creates one pool per server.
func New(cfg Config, opts ...Option) (*Cluster, error) {
	if len(cfg.Servers) == 0 {
		return nil, kverrors.Precondition("", "", "cluster %q has no servers", cfg.ID)
	}

	addrs := make([]string, 0, len(cfg.Servers))
	seen := make(map[string]bool, len(cfg.Servers))
	for _, srv := range cfg.Servers {
		if err := srv.Validate(); err != nil {
			return nil, kverrors.Precondition("", "", "cluster %q: %v", cfg.ID, err)
		}
		if seen[srv.Address()] {
			return nil, kverrors.Precondition("", "", "cluster %q lists %s twice", cfg.ID, srv.Address())
		}
		seen[srv.Address()] = true
		addrs = append(addrs, srv.Address())
	}

	id := cfg.ID
	if id == "" {
		id = strings.Join(addrs, ",")
	}
	weight := cfg.Weight
	if weight <= 0 {
		weight = 1
	}

	o := buildOptions(opts)
	c := &Cluster{
		id:      id,
		weight:  weight,
		logger:  o.logger.With(zap.String("cluster", id)),
		metrics: o.metrics,
	}
	for _, srv := range cfg.Servers {
		c.pools = append(c.pools, NewPool(srv, opts...))
	}
	return c, nil
}

// ID returns the cluster identity used on the hash ring.
func (c *Cluster) ID() string {
	return c.id
}

// Weight returns the ring weight.
func (c *Cluster) Weight() int {
	return c.weight
}

// Servers returns the members in failover order, with defaults applied.
func (c *Cluster) Servers() []Server {
	out := make([]Server, len(c.pools))
	for i, p := range c.pools {
		out[i] = p.Server()
	}
	return out
}

// Execute runs one request against the cluster, failing over across
// members on transport errors only.
//
// It returns the response for ok and not_found statuses, a ServerError
// for error, fail and client_error, and a ClusterUnavailableError wrapping
// the last transport failure when every member failed.
func (c *Cluster) Execute(ctx context.Context, verb string, args ...interface{}) (*protocol.Response, error) {
	data, err := protocol.Encode(verb, args...)
	if err != nil {
		return nil, err
	}

	var lastErr error

	for i, pool := range c.pools {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		conn, err := pool.Borrow(ctx)
		if err != nil {
			if !kverrors.IsTransport(err) {
				return nil, err
			}
			lastErr = err
			c.failover(i, verb, err)
			continue
		}

		resp, err := conn.roundTrip(ctx, verb, data)
		if err != nil {
			if kverrors.IsTransport(err) {
				pool.Discard(conn)
				lastErr = err
				c.failover(i, verb, err)
				continue
			}
			pool.Release(conn)
			return nil, err
		}
		pool.Release(conn)

		if err := resp.Err(verb, shardKey(args)); err != nil {
			return nil, err
		}
		return resp, nil
	}

	return nil, &kverrors.ClusterUnavailableError{
		Cluster: c.id,
		Verb:    verb,
		Key:     shardKey(args),
		Tried:   len(c.pools),
		Last:    lastErr,
	}
}

// Close closes every member pool.
func (c *Cluster) Close() error {
	var err error
	for _, p := range c.pools {
		err = multierr.Append(err, p.Close())
	}
	return err
}

// Stats returns pool statistics keyed by server address.
func (c *Cluster) Stats() map[string]PoolStats {
	out := make(map[string]PoolStats, len(c.pools))
	for _, p := range c.pools {
		out[p.Server().Address()] = p.Stats()
	}
	return out
}

func (c *Cluster) failover(i int, verb string, err error) {
	if i == len(c.pools)-1 {
		c.logger.Warn("Last cluster member failed",
			zap.String("server", c.pools[i].Server().Address()),
			zap.String("verb", verb),
			zap.Error(err))
		return
	}
	c.metrics.Failover(c.id)
	c.logger.Warn("Cluster member failed, trying next",
		zap.String("server", c.pools[i].Server().Address()),
		zap.String("next", c.pools[i+1].Server().Address()),
		zap.String("verb", verb),
		zap.Error(err))
}

func shardKey(args []interface{}) string {
	if len(args) == 0 {
		return ""
	}
	key, err := protocol.ArgString(args[0])
	if err != nil {
		return ""
	}
	return key
}
