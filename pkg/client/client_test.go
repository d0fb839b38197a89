package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shardkv/shardkv/internal/server"
	"github.com/shardkv/shardkv/pkg/cluster"
	"github.com/shardkv/shardkv/pkg/config"
	kverrors "github.com/shardkv/shardkv/pkg/errors"
	"github.com/shardkv/shardkv/pkg/metrics"
	"github.com/shardkv/shardkv/pkg/protocol"
)

// startServer runs a development server on a loopback port and returns a
// cluster member pointing at it.
func startServer(t *testing.T, password string) cluster.Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	cfg := config.DefaultServerConfig()
	cfg.Password = password
	cfg.CleanupInterval = 0
	srv := server.New(cfg, server.WithLogger(zaptest.NewLogger(t)))
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()
	t.Cleanup(func() {
		_ = srv.Stop()
		<-done
	})

	return cluster.Server{
		Host:           "127.0.0.1",
		Port:           ln.Addr().(*net.TCPAddr).Port,
		Password:       password,
		ConnectTimeout: time.Second,
	}
}

// deadServer returns a member whose port refuses connections.
func deadServer(t *testing.T) cluster.Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return cluster.Server{Host: "127.0.0.1", Port: port, ConnectTimeout: time.Second}
}

func newCluster(t *testing.T, id string, servers ...cluster.Server) *cluster.Cluster {
	t.Helper()
	cl, err := cluster.New(cluster.Config{ID: id, Servers: servers})
	require.NoError(t, err)
	return cl
}

func newClient(t *testing.T, clusters []*cluster.Cluster, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	c, err := New(clusters, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newSingle(t *testing.T, srv cluster.Server) *Client {
	t.Helper()
	c, err := NewSingle(srv, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func clusterByID(t *testing.T, c *Client, id string) *cluster.Cluster {
	t.Helper()
	for _, cl := range c.Clusters() {
		if cl.ID() == id {
			return cl
		}
	}
	t.Fatalf("no cluster %q", id)
	return nil
}

func TestClientStrings(t *testing.T) {
	ctx := context.Background()
	c := newSingle(t, startServer(t, ""))

	require.NoError(t, c.Set(ctx, "a", 1))
	v, found, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1", v)

	_, found, err = c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	n, err := c.Incr(ctx, "a", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	ok, err := c.SetNX(ctx, "a", "x")
	require.NoError(t, err)
	assert.False(t, ok)

	old, found, err := c.GetSet(ctx, "a", "z")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "5", old)

	require.NoError(t, c.SetX(ctx, "session", "s", 60))
	ttl, err := c.TTL(ctx, "session")
	require.NoError(t, err)
	assert.Equal(t, int64(60), ttl)

	prev, err := c.SetBit(ctx, "bits", 3, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, prev)
	bit, err := c.GetBit(ctx, "bits", 3)
	require.NoError(t, err)
	assert.Equal(t, 1, bit)
	count, err := c.BitCount(ctx, "bits", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, c.Del(ctx, "a"))
	exists, err := c.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = c.Incr(ctx, "session", 1)
	var se *kverrors.ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "error", se.Status)
}

func TestClientPreconditions(t *testing.T) {
	ctx := context.Background()
	srv := startServer(t, "")
	c := newSingle(t, srv)

	assert.True(t, kverrors.IsPrecondition(c.Set(ctx, "a", nil)))
	assert.True(t, kverrors.IsPrecondition(c.Set(ctx, "", "v")))

	_, err := c.Execute(ctx, "set", "a", []byte(nil))
	assert.True(t, kverrors.IsPrecondition(err))
	_, err = c.Execute(ctx, "")
	assert.True(t, kverrors.IsPrecondition(err))
	_, err = c.Execute(ctx, "set", "a", (*strings.Builder)(nil))
	assert.True(t, kverrors.IsPrecondition(err))
	assert.True(t, kverrors.IsPrecondition(c.Set(ctx, "a", (*strings.Builder)(nil))))

	err = c.SetX(ctx, "a", "v", 0)
	assert.True(t, kverrors.IsPrecondition(err))
	_, err = c.SetBit(ctx, "a", MaxBitOffset+1, 1)
	assert.True(t, kverrors.IsPrecondition(err))
	assert.True(t, kverrors.IsPrecondition(c.MultiSet(ctx, "a", "1", "b")))

	// Nothing above reached the server.
	n, err := c.DBSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestClientMultiKeyFanOut(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, []*cluster.Cluster{
		newCluster(t, "c1", startServer(t, "")),
		newCluster(t, "c2", startServer(t, "")),
	})

	var keys, flat []string
	for i := 0; i < 40; i++ {
		k := fmt.Sprintf("key:%d", i)
		keys = append(keys, k)
		flat = append(flat, k, "v"+k)
	}
	require.NoError(t, c.MultiSet(ctx, flat...))

	owners := map[string]int{}
	for _, k := range keys {
		owner, err := c.Locate(k)
		require.NoError(t, err)
		owners[owner]++

		for _, cl := range c.Clusters() {
			resp, err := cl.Execute(ctx, "get", k)
			require.NoError(t, err)
			assert.Equal(t, cl.ID() == owner, resp.OK(), "key %s on %s", k, cl.ID())
		}
	}
	assert.Len(t, owners, 2)

	got, err := c.MultiGet(ctx, append([]string{"missing"}, keys...)...)
	require.NoError(t, err)
	require.Len(t, got, len(keys))
	for i, kv := range got {
		assert.Equal(t, keys[i], kv.Key)
		assert.Equal(t, "v"+keys[i], kv.Value)
	}

	require.NoError(t, c.MultiDel(ctx, keys...))
	got, err = c.MultiGet(ctx, keys...)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClientKeylessCommandsUseFirstCluster(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, []*cluster.Cluster{
		newCluster(t, "first", startServer(t, "")),
		newCluster(t, "second", startServer(t, "")),
	})

	_, err := clusterByID(t, c, "second").Execute(ctx, "set", "x", "1")
	require.NoError(t, err)

	n, err := c.DBSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	keys, err := c.Keys(ctx, "", "", 10)
	require.NoError(t, err)
	assert.Empty(t, keys)

	err = c.ScanPrefix(ctx, "", 10, func(kv protocol.KeyValue) error {
		t.Errorf("unexpected key %q from the default cluster", kv.Key)
		return nil
	})
	require.NoError(t, err)

	resp, err := c.Execute(ctx, "ping")
	require.NoError(t, err)
	assert.True(t, resp.OK())
}

func TestClientTopologyChanges(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, []*cluster.Cluster{newCluster(t, "c1", startServer(t, ""))})

	var keys []string
	for i := 0; i < 200; i++ {
		k := fmt.Sprintf("user:%d", i)
		keys = append(keys, k)
		require.NoError(t, c.Set(ctx, k, i))
	}

	require.NoError(t, c.AddCluster(newCluster(t, "c2", startServer(t, ""))))
	moved := 0
	for _, k := range keys {
		owner, err := c.Locate(k)
		require.NoError(t, err)
		if owner == "c2" {
			moved++
			continue
		}
		assert.Equal(t, "c1", owner)
		_, found, err := c.Get(ctx, k)
		require.NoError(t, err)
		assert.True(t, found, k)
	}
	assert.Greater(t, moved, 0)
	assert.Less(t, moved, len(keys))

	dup := newCluster(t, "c1", startServer(t, ""))
	assert.True(t, kverrors.IsPrecondition(c.AddCluster(dup)))
	require.NoError(t, dup.Close())

	require.NoError(t, c.RemoveCluster("c2"))
	for _, k := range keys {
		owner, err := c.Locate(k)
		require.NoError(t, err)
		assert.Equal(t, "c1", owner)
	}

	assert.True(t, kverrors.IsPrecondition(c.RemoveCluster("c2")))
	assert.True(t, kverrors.IsPrecondition(c.RemoveCluster("c1")))
	assert.Len(t, c.Clusters(), 1)
}

func TestClientFailsOverToStandby(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	cl, err := cluster.New(cluster.Config{
		ID:      "c1",
		Servers: []cluster.Server{deadServer(t), startServer(t, "")},
	}, cluster.WithMetrics(m))
	require.NoError(t, err)
	c := newClient(t, []*cluster.Cluster{cl}, WithMetrics(m))

	require.NoError(t, c.Set(ctx, "a", "1"))
	v, _, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.FailoversTotal.WithLabelValues("c1")), 1.0)
}

func TestClientClusterUnavailable(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, []*cluster.Cluster{newCluster(t, "c1", deadServer(t), deadServer(t))})

	_, _, err := c.Get(ctx, "a")
	var cu *kverrors.ClusterUnavailableError
	require.ErrorAs(t, err, &cu)
	assert.True(t, kverrors.IsTransport(cu.Last))
}

func TestClientAuthentication(t *testing.T) {
	ctx := context.Background()
	srv := startServer(t, "secret")

	c := newSingle(t, srv)
	require.NoError(t, c.Set(ctx, "a", "1"))

	srv.Password = "wrong"
	bad := newSingle(t, srv)
	_, _, err := bad.Get(ctx, "a")
	var ae *kverrors.AuthenticationError
	assert.ErrorAs(t, err, &ae)

	var cu *kverrors.ClusterUnavailableError
	assert.False(t, errors.As(err, &cu))
}

func TestClientClosed(t *testing.T) {
	ctx := context.Background()
	c, err := NewSingle(startServer(t, ""))
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, _, err = c.Get(ctx, "a")
	assert.ErrorIs(t, err, kverrors.ErrClientClosed)
	_, err = c.Locate("a")
	assert.ErrorIs(t, err, kverrors.ErrClientClosed)
	assert.ErrorIs(t, c.RemoveCluster("default"), kverrors.ErrClientClosed)
}

func TestClientRequestMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	c, err := NewSingle(startServer(t, ""), WithMetrics(m))
	require.NoError(t, err)
	defer c.Close()

	_, _, err = c.Get(ctx, "missing")
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, "a", "1"))
	_ = c.Set(ctx, "a", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("get", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("set", "ok")))
}

func TestClientScanPrefix(t *testing.T) {
	ctx := context.Background()
	c := newSingle(t, startServer(t, ""))

	for _, k := range []string{"user:1", "user:2", "user:3", "user:4", "user:5", "other", "usez"} {
		require.NoError(t, c.Set(ctx, k, k))
	}

	var seen []string
	err := c.ScanPrefix(ctx, "user:", 2, func(kv protocol.KeyValue) error {
		seen = append(seen, kv.Key)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"user:1", "user:2", "user:3", "user:4", "user:5"}, seen)

	stop := errors.New("stop")
	err = c.ScanPrefix(ctx, "user:", 2, func(protocol.KeyValue) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestClientHashes(t *testing.T) {
	ctx := context.Background()
	c := newSingle(t, startServer(t, ""))

	added, err := c.HSet(ctx, "h", "name", "alice")
	require.NoError(t, err)
	assert.True(t, added)
	require.NoError(t, c.MultiHSet(ctx, "h", "email", "a@example.com", "age", "30"))

	all, err := c.HGetAllMap(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"name": "alice", "email": "a@example.com", "age": "30"}, all)

	size, err := c.HSize(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, 3, size)

	n, err := c.HIncr(ctx, "h", "age", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(31), n)

	_, found, err := c.HGet(ctx, "h", "missing")
	require.NoError(t, err)
	assert.False(t, found)

	names, err := c.HList(ctx, "", "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"h"}, names)
}

func TestClientSortedSets(t *testing.T) {
	ctx := context.Background()
	c := newSingle(t, startServer(t, ""))

	require.NoError(t, c.MultiZSet(ctx, "board", []protocol.IDScore{
		{ID: "alice", Score: 42},
		{ID: "bob", Score: 17},
		{ID: "carol", Score: 99},
	}))

	top, err := c.ZRRange(ctx, "board", 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []protocol.IDScore{{ID: "carol", Score: 99}, {ID: "alice", Score: 42}}, top)

	rank, found, err := c.ZRank(ctx, "board", "alice")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(1), rank)

	_, found, err = c.ZRank(ctx, "board", "nobody")
	require.NoError(t, err)
	assert.False(t, found)

	all, err := c.ZScan(ctx, "board", "", MinScore, MaxScore, 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	upper, err := c.ZScan(ctx, "board", "", 40, MaxScore, 10)
	require.NoError(t, err)
	assert.Equal(t, []protocol.IDScore{{ID: "alice", Score: 42}, {ID: "carol", Score: 99}}, upper)

	avg, err := c.ZAvg(ctx, "board", MinScore, MaxScore)
	require.NoError(t, err)
	assert.InDelta(t, 158.0/3.0, avg, 1e-9)

	score, found, err := c.ZGet(ctx, "board", "bob")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(17), score)
}

func TestClientQueues(t *testing.T) {
	ctx := context.Background()
	c := newSingle(t, startServer(t, ""))

	size, err := c.QPushBack(ctx, "jobs", "a", "b", "c", "d", "e")
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	front, found, err := c.QFront(ctx, "jobs")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "a", front)

	var drained []string
	err = c.QPopAllFront(ctx, "jobs", 2, func(v string) error {
		drained = append(drained, v)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, drained)

	size, err = c.QSize(ctx, "jobs")
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)
}

func TestNewFromConfig(t *testing.T) {
	ctx := context.Background()
	a, b := startServer(t, ""), startServer(t, "")

	cfg := &config.ClientConfig{
		Clusters: []config.ClusterConfig{
			{ID: "east", Servers: []config.NodeConfig{{Host: a.Host, Port: a.Port}}},
			{ID: "west", Weight: 2, Servers: []config.NodeConfig{{Host: b.Host, Port: b.Port}}},
		},
	}
	c, err := NewFromConfig(cfg, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, config.DefaultVirtualNodes, cfg.VirtualNodes)
	require.Len(t, c.Clusters(), 2)
	assert.Equal(t, "east", c.Clusters()[0].ID())
	assert.Equal(t, 2, c.Clusters()[1].Weight())

	require.NoError(t, c.Set(ctx, "k", "v"))
	v, _, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestNewRejectsBadTopology(t *testing.T) {
	_, err := New(nil)
	assert.True(t, kverrors.IsPrecondition(err))

	srv := deadServer(t)
	one := newCluster(t, "same", srv)
	two := newCluster(t, "same", srv)
	defer one.Close()
	defer two.Close()
	_, err = New([]*cluster.Cluster{one, two})
	assert.True(t, kverrors.IsPrecondition(err))
}
