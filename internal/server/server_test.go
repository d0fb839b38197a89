package server

import (
	"bufio"
	"math"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shardkv/shardkv/pkg/config"
	"github.com/shardkv/shardkv/pkg/metrics"
	"github.com/shardkv/shardkv/pkg/protocol"
)

func startServer(t *testing.T, cfg *config.ServerConfig, opts ...Option) (*Server, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	srv := New(cfg, opts...)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()
	t.Cleanup(func() {
		assert.NoError(t, srv.Stop())
		assert.NoError(t, <-done)
	})
	return srv, ln.Addr().String()
}

type testConn struct {
	net.Conn
	r *bufio.Reader
}

func dial(t *testing.T, addr string) *testConn {
	t.Helper()
	nc, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = nc.Close() })
	return &testConn{Conn: nc, r: bufio.NewReader(nc)}
}

func (c *testConn) do(t *testing.T, verb string, args ...interface{}) *protocol.Response {
	t.Helper()
	require.NoError(t, c.SetDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, protocol.WriteRequest(c, verb, args...))
	resp, err := protocol.ReadResponse(c.r)
	require.NoError(t, err)
	return resp
}

func text(t *testing.T, resp *protocol.Response) string {
	t.Helper()
	s, ok := resp.Text()
	require.True(t, ok, "status %s", resp.Status)
	return s
}

func testConfig() *config.ServerConfig {
	cfg := config.DefaultServerConfig()
	cfg.CleanupInterval = 0
	return cfg
}

func TestServerStrings(t *testing.T) {
	_, addr := startServer(t, testConfig())
	c := dial(t, addr)

	assert.True(t, c.do(t, "ping").OK())
	assert.True(t, c.do(t, "set", "a", "1").OK())
	assert.Equal(t, "1", text(t, c.do(t, "get", "a")))
	assert.True(t, c.do(t, "get", "missing").NotFound())

	assert.Equal(t, "11", text(t, c.do(t, "incr", "a", 10)))
	assert.Equal(t, "12", text(t, c.do(t, "incr", "a")))
	assert.Equal(t, "1", text(t, c.do(t, "exists", "a")))

	assert.True(t, c.do(t, "setx", "t", "v", 30).OK())
	assert.Equal(t, "30", text(t, c.do(t, "ttl", "t")))

	assert.True(t, c.do(t, "set", "s", "abc").OK())
	resp := c.do(t, "incr", "s")
	assert.Equal(t, protocol.StatusError, resp.Status)

	resp = c.do(t, "multi_get", "a", "missing", "s")
	pairs, err := resp.KeyValues()
	require.NoError(t, err)
	assert.Equal(t, []protocol.KeyValue{{Key: "a", Value: "12"}, {Key: "s", Value: "abc"}}, pairs)

	assert.Equal(t, []string{"a", "s", "t"}, c.do(t, "keys", "", "", 10).Strings())
	assert.Equal(t, "3", text(t, c.do(t, "dbsize")))
}

func TestServerSortedSetBounds(t *testing.T) {
	_, addr := startServer(t, testConfig())
	c := dial(t, addr)

	require.True(t, c.do(t, "multi_zset", "z", "a", 3, "b", 1, "c", 2).OK())

	members, err := c.do(t, "zscan", "z", "", "", "", 10).IDScores()
	require.NoError(t, err)
	assert.Equal(t, []protocol.IDScore{{ID: "b", Score: 1}, {ID: "c", Score: 2}, {ID: "a", Score: 3}}, members)

	members, err = c.do(t, "zrscan", "z", "", 2, "", 10).IDScores()
	require.NoError(t, err)
	assert.Equal(t, []protocol.IDScore{{ID: "c", Score: 2}, {ID: "b", Score: 1}}, members)

	assert.Equal(t, []string{"c", "a"}, c.do(t, "zkeys", "z", "", 2, "", 10).Strings())
	assert.Equal(t, "2", text(t, c.do(t, "zavg", "z", "", "")))
	assert.Equal(t, "-1", text(t, c.do(t, "zrank", "z", "missing")))
	assert.True(t, c.do(t, "zget", "z", "missing").NotFound())
}

func TestServerQueues(t *testing.T) {
	_, addr := startServer(t, testConfig())
	c := dial(t, addr)

	assert.Equal(t, "3", text(t, c.do(t, "qpush_back", "q", "a", "b", "c")))
	assert.Equal(t, []string{"a", "b"}, c.do(t, "qpop_front", "q", 2).Strings())
	assert.Equal(t, []string{"c"}, c.do(t, "qpop_front", "q").Strings())

	resp := c.do(t, "qpop_front", "q", 5)
	assert.True(t, resp.OK())
	assert.Empty(t, resp.Strings())

	assert.Equal(t, protocol.StatusError, c.do(t, "qset", "q", 0, "x").Status)
}

func TestServerRejectsBadCommands(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	_, addr := startServer(t, testConfig(), WithMetrics(m))
	c := dial(t, addr)

	resp := c.do(t, "nosuchverb", "a")
	assert.Equal(t, protocol.StatusClientError, resp.Status)

	resp = c.do(t, "set", "a")
	assert.Equal(t, protocol.StatusClientError, resp.Status)

	resp = c.do(t, "getbit", "a", "x")
	assert.Equal(t, protocol.StatusClientError, resp.Status)

	assert.True(t, c.do(t, "set", "a", "1").OK())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ServerCommands.WithLabelValues("set", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ServerCommands.WithLabelValues("set", "client_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ServerCommands.WithLabelValues("unknown", "client_error")))
}

func TestServerHugeArguments(t *testing.T) {
	_, addr := startServer(t, testConfig())
	c := dial(t, addr)

	resp := c.do(t, "setbit", "b", int64(math.MaxInt64-7), 1)
	assert.Equal(t, protocol.StatusClientError, resp.Status)
	resp = c.do(t, "setbit", "b", 1<<30, 1)
	assert.Equal(t, protocol.StatusClientError, resp.Status)
	assert.Equal(t, "0", text(t, c.do(t, "setbit", "b", 1<<30-1, 1)))
	assert.Equal(t, "1", text(t, c.do(t, "getbit", "b", 1<<30-1)))

	require.Equal(t, "3", text(t, c.do(t, "qpush_back", "q", "a", "b", "c")))
	assert.Equal(t, []string{"b", "c"}, c.do(t, "qrange", "q", 1, int64(math.MaxInt64)).Strings())
	assert.Equal(t, []string{"a", "b", "c"}, c.do(t, "qslice", "q", int64(math.MinInt64), int64(math.MaxInt64)).Strings())

	require.True(t, c.do(t, "set", "s", "hello").OK())
	assert.Equal(t, "ello", text(t, c.do(t, "substr", "s", 1, int64(math.MaxInt64))))

	// The connection is still served.
	assert.True(t, c.do(t, "ping").OK())
}

func TestServerRecoversFromHandlerPanic(t *testing.T) {
	srv := New(testConfig(), WithLogger(zaptest.NewLogger(t)))
	t.Cleanup(func() { _ = srv.Stop() })
	srv.handlers["boom"] = handler{fn: func(argList) (reply, error) {
		panic("boom")
	}}

	rep := srv.dispatch(&session{authed: true}, "boom", nil)
	assert.Equal(t, protocol.StatusError, rep.status)

	rep = srv.dispatch(&session{authed: true}, "ping", nil)
	assert.Equal(t, protocol.StatusOK, rep.status)
}

func TestServerMalformedRequestClosesConnection(t *testing.T) {
	_, addr := startServer(t, testConfig())
	c := dial(t, addr)

	require.NoError(t, c.SetDeadline(time.Now().Add(2*time.Second)))
	_, err := c.Write([]byte("abc\nset\n\n"))
	require.NoError(t, err)

	resp, err := protocol.ReadResponse(c.r)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusClientError, resp.Status)

	_, err = c.r.ReadByte()
	assert.Error(t, err)
}

func TestServerAuthentication(t *testing.T) {
	cfg := testConfig()
	cfg.Password = "secret"
	_, addr := startServer(t, cfg)
	c := dial(t, addr)

	resp := c.do(t, "get", "a")
	assert.Equal(t, protocol.StatusError, resp.Status)
	assert.Equal(t, "noauth authentication required", resp.Join(" "))

	resp = c.do(t, "auth", "wrong")
	assert.Equal(t, protocol.StatusError, resp.Status)

	assert.True(t, c.do(t, "auth", "secret").OK())
	assert.True(t, c.do(t, "get", "a").NotFound())
}

func TestServerConnectionLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConns = 1
	_, addr := startServer(t, cfg)

	first := dial(t, addr)
	require.True(t, first.do(t, "ping").OK())

	second := dial(t, addr)
	require.NoError(t, second.SetDeadline(time.Now().Add(2*time.Second)))
	resp, err := protocol.ReadResponse(second.r)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusError, resp.Status)
	assert.Equal(t, "too many connections", resp.Join(" "))
}

func TestServerStopClosesConnections(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := New(testConfig())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	c := dial(t, ln.Addr().String())
	require.True(t, c.do(t, "ping").OK())
	assert.Equal(t, ln.Addr().String(), srv.Addr().String())

	require.NoError(t, srv.Stop())
	require.NoError(t, <-done)
	require.NoError(t, srv.Stop())

	_, err = c.r.ReadByte()
	assert.Error(t, err)
}

func TestServerInfo(t *testing.T) {
	_, addr := startServer(t, testConfig())
	c := dial(t, addr)

	info := c.do(t, "info").Strings()
	require.NotEmpty(t, info)
	assert.Equal(t, "version", info[0])
	assert.Equal(t, Version, info[1])
}
