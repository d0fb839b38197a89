// Package client is the sharding client for block-protocol key-value
// servers.
//
// A Client owns a set of clusters placed on a weighted consistent hash
// ring. Every command is routed by its first argument: the key is hashed,
// the owning cluster is found on the ring, and the request is executed
// against that cluster with failover across its servers. Commands that do
// not address a single key (dbsize, info, keys, scan, the *list verbs) go
// to the first declared cluster.
//
// Key Features:
//   - Weighted consistent hashing across clusters
//   - Ordered failover inside a cluster, on transport errors only
//   - Bounded connection pool per server with authentication
//   - Typed command methods for strings, hashes, sorted sets and queues
//   - Topology changes at runtime without blocking requests
//   - Safe for concurrent use
//
// Basic Usage:
//
//	c, err := client.NewSingle(cluster.Server{Host: "localhost", Port: 8888})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer c.Close()
//
//	err = c.Set(ctx, "user:123", "john_doe")
//	name, found, err := c.Get(ctx, "user:123")
//
//	_, err = c.HSet(ctx, "user:123:profile", "email", "john@example.com")
//	profile, err := c.HGetAllMap(ctx, "user:123:profile")
//
//	_, err = c.QPushBack(ctx, "tasks", "task1", "task2")
//	tasks, err := c.QPopFront(ctx, "tasks", 10)
//
// Sharded Configuration:
//
//	cfg, err := config.LoadFile("topology.yaml")
//	c, err := client.NewFromConfig(cfg)
//
// Absent values are reported through a found flag or an empty slice, never
// as an error. Failures are typed; see package errors.
package client

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/shardkv/shardkv/pkg/cluster"
	"github.com/shardkv/shardkv/pkg/config"
	kverrors "github.com/shardkv/shardkv/pkg/errors"
	"github.com/shardkv/shardkv/pkg/hash"
	"github.com/shardkv/shardkv/pkg/metrics"
	"github.com/shardkv/shardkv/pkg/protocol"
)

// keylessVerbs address a key range or the whole server rather than one key,
// so their first argument is not a shard key.
var keylessVerbs = map[string]bool{
	"dbsize": true,
	"info":   true,
	"ping":   true,
	"keys":   true,
	"rkeys":  true,
	"scan":   true,
	"rscan":  true,
	"zlist":  true,
	"zrlist": true,
	"qlist":  true,
	"qrlist": true,
	"hlist":  true,
	"hrlist": true,
}

// topology is an immutable snapshot of the cluster set. Requests load it
// once and route against it; changes publish a new snapshot.
type topology struct {
	ring     *hash.Ring
	clusters map[string]*cluster.Cluster
	order    []*cluster.Cluster
}

func (t *topology) route(verb string, args []interface{}) (*cluster.Cluster, error) {
	if len(t.order) == 0 {
		return nil, kverrors.ErrEmptyRing
	}
	if len(args) == 0 || keylessVerbs[verb] {
		return t.order[0], nil
	}

	key, err := protocol.ArgString(args[0])
	if err != nil {
		return nil, kverrors.Precondition(verb, "", "invalid key: %v", err)
	}
	id, ok := t.ring.Locate(key)
	if !ok {
		return nil, kverrors.ErrEmptyRing
	}
	return t.clusters[id], nil
}

// Client dispatches commands to the cluster that owns their key.
type Client struct {
	topo    atomic.Pointer[topology]
	mu      sync.Mutex
	closed  atomic.Bool
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates a Client over already-built clusters. The first cluster is
// the default route for keyless commands. Cluster IDs must be unique.
func New(clusters []*cluster.Cluster, opts ...Option) (*Client, error) {
	if len(clusters) == 0 {
		return nil, kverrors.Precondition("", "", "at least one cluster is required")
	}

	o := buildOptions(opts)
	c := &Client{logger: o.logger, metrics: o.metrics}

	nodes := make([]hash.Node, 0, len(clusters))
	t := &topology{clusters: make(map[string]*cluster.Cluster, len(clusters))}
	for _, cl := range clusters {
		if _, dup := t.clusters[cl.ID()]; dup {
			return nil, kverrors.Precondition("", "", "duplicate cluster id %q", cl.ID())
		}
		t.clusters[cl.ID()] = cl
		t.order = append(t.order, cl)
		nodes = append(nodes, hash.Node{ID: cl.ID(), Weight: cl.Weight()})
	}
	t.ring = hash.Build(nodes, o.ringOptions()...)
	c.topo.Store(t)

	c.logger.Info("Client created",
		zap.Int("clusters", len(clusters)),
		zap.Any("ring", t.ring.Stats()))
	return c, nil
}

// NewFromConfig builds every cluster described by cfg and creates a Client
// over them. Unset fields of cfg are filled with defaults. Ring settings
// from cfg apply unless overridden by opts.
func NewFromConfig(cfg *config.ClientConfig, opts ...Option) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fn, err := cfg.HashFunc()
	if err != nil {
		return nil, err
	}

	base := []Option{WithVirtualNodes(cfg.VirtualNodes), WithHashFunc(fn)}
	if cfg.Metrics.Enabled {
		base = append(base, WithMetrics(metrics.Default()))
	}
	o := buildOptions(append(base, opts...))

	clusters := make([]*cluster.Cluster, 0, len(cfg.Clusters))
	for _, cc := range cfg.ClusterConfigs() {
		cl, err := cluster.New(cc, o.clusterOptions()...)
		if err != nil {
			closeAll(clusters)
			return nil, err
		}
		clusters = append(clusters, cl)
	}

	c, err := New(clusters, append(base, opts...)...)
	if err != nil {
		closeAll(clusters)
		return nil, err
	}
	return c, nil
}

// NewSingle creates a Client over one cluster holding one server.
func NewSingle(srv cluster.Server, opts ...Option) (*Client, error) {
	o := buildOptions(opts)
	cl, err := cluster.New(cluster.Config{Servers: []cluster.Server{srv}}, o.clusterOptions()...)
	if err != nil {
		return nil, err
	}
	c, err := New([]*cluster.Cluster{cl}, opts...)
	if err != nil {
		_ = cl.Close()
		return nil, err
	}
	return c, nil
}

// Execute sends verb with args to the cluster owning args[0] and returns
// the response. ok and not_found responses are returned as-is; every other
// outcome is a typed error.
func (c *Client) Execute(ctx context.Context, verb string, args ...interface{}) (*protocol.Response, error) {
	return c.execute(ctx, verb, args)
}

// ExecuteWrite is Execute for commands that modify data. Routing and
// failover are identical.
func (c *Client) ExecuteWrite(ctx context.Context, verb string, args ...interface{}) (*protocol.Response, error) {
	return c.execute(ctx, verb, args)
}

func (c *Client) execute(ctx context.Context, verb string, args []interface{}) (*protocol.Response, error) {
	if c.closed.Load() {
		return nil, kverrors.ErrClientClosed
	}

	start := time.Now()
	resp, err := c.dispatch(ctx, verb, args)
	c.metrics.ObserveRequest(verb, outcome(resp, err), time.Since(start))
	if err != nil {
		c.logger.Debug("Request failed", zap.String("verb", verb), zap.Error(err))
	}
	return resp, err
}

func (c *Client) dispatch(ctx context.Context, verb string, args []interface{}) (*protocol.Response, error) {
	if verb == "" {
		return nil, kverrors.Precondition("", "", "empty verb")
	}
	for i, arg := range args {
		if protocol.IsNil(arg) {
			key, _ := firstKey(args)
			return nil, kverrors.Precondition(verb, key, "argument %d is nil", i)
		}
	}

	cl, err := c.topo.Load().route(verb, args)
	if err != nil {
		return nil, err
	}
	return cl.Execute(ctx, verb, args...)
}

// Locate returns the ID of the cluster that owns key.
func (c *Client) Locate(key string) (string, error) {
	if c.closed.Load() {
		return "", kverrors.ErrClientClosed
	}
	id, ok := c.topo.Load().ring.Locate(key)
	if !ok {
		return "", kverrors.ErrEmptyRing
	}
	return id, nil
}

// Clusters returns the current clusters in declared order.
func (c *Client) Clusters() []*cluster.Cluster {
	t := c.topo.Load()
	out := make([]*cluster.Cluster, len(t.order))
	copy(out, t.order)
	return out
}

// RingStats describes the current ring.
func (c *Client) RingStats() map[string]interface{} {
	return c.topo.Load().ring.Stats()
}

// AddCluster places cl on the ring. Keys move only from existing clusters
// to cl. Requests already in flight finish on the previous topology.
func (c *Client) AddCluster(cl *cluster.Cluster) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return kverrors.ErrClientClosed
	}

	old := c.topo.Load()
	if _, dup := old.clusters[cl.ID()]; dup {
		return kverrors.Precondition("", "", "duplicate cluster id %q", cl.ID())
	}

	t := &topology{
		ring:     old.ring.With(hash.Node{ID: cl.ID(), Weight: cl.Weight()}),
		clusters: make(map[string]*cluster.Cluster, len(old.clusters)+1),
		order:    append(append([]*cluster.Cluster(nil), old.order...), cl),
	}
	for id, existing := range old.clusters {
		t.clusters[id] = existing
	}
	t.clusters[cl.ID()] = cl
	c.topo.Store(t)

	c.logger.Info("Cluster added", zap.String("cluster", cl.ID()), zap.Int("weight", cl.Weight()))
	return nil
}

// RemoveCluster takes the cluster off the ring and closes it. Its keys move
// to the remaining clusters; keys owned by other clusters do not move. The
// last cluster cannot be removed.
func (c *Client) RemoveCluster(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return kverrors.ErrClientClosed
	}

	old := c.topo.Load()
	removed, ok := old.clusters[id]
	if !ok {
		return kverrors.Precondition("", "", "unknown cluster id %q", id)
	}
	if len(old.order) == 1 {
		return kverrors.Precondition("", "", "cannot remove the last cluster %q", id)
	}

	t := &topology{
		ring:     old.ring.Without(id),
		clusters: make(map[string]*cluster.Cluster, len(old.clusters)-1),
	}
	for _, cl := range old.order {
		if cl.ID() != id {
			t.order = append(t.order, cl)
			t.clusters[cl.ID()] = cl
		}
	}
	c.topo.Store(t)

	c.logger.Info("Cluster removed", zap.String("cluster", id))
	return removed.Close()
}

// Close closes every cluster. Requests made after Close fail with
// ErrClientClosed; closing again is a no-op.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	for _, cl := range c.topo.Load().order {
		err = multierr.Append(err, cl.Close())
	}
	c.logger.Info("Client closed")
	return err
}

func closeAll(clusters []*cluster.Cluster) {
	for _, cl := range clusters {
		_ = cl.Close()
	}
}

func firstKey(args []interface{}) (string, bool) {
	if len(args) == 0 {
		return "", false
	}
	key, err := protocol.ArgString(args[0])
	return key, err == nil
}

func outcome(resp *protocol.Response, err error) string {
	if err == nil {
		if resp.NotFound() {
			return "not_found"
		}
		return "ok"
	}

	var (
		se *kverrors.ServerError
		cu *kverrors.ClusterUnavailableError
		pe *kverrors.PoolExhaustedError
	)
	switch {
	case stderrors.As(err, &se):
		return "server_error"
	case kverrors.IsPrecondition(err):
		return "precondition"
	case stderrors.As(err, &cu):
		return "unavailable"
	case stderrors.As(err, &pe):
		return "exhausted"
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
