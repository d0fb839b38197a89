package cluster

import (
	"bufio"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shardkv/shardkv/pkg/protocol"
)

type handlerFunc func(verb string, args [][]byte) (protocol.Status, [][]byte)

// fakeServer speaks the block protocol on a loopback port and answers every
// request with handler. A nil handler closes the connection instead of
// replying.
type fakeServer struct {
	ln       net.Listener
	handler  handlerFunc
	requests atomic.Int64
	accepted atomic.Int64

	mu    sync.Mutex
	conns []net.Conn
	wg    sync.WaitGroup
}

func newFakeServer(t *testing.T, handler handlerFunc) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeServer{ln: ln, handler: handler}
	s.wg.Add(1)
	go s.acceptLoop()
	t.Cleanup(s.close)
	return s
}

func (s *fakeServer) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.accepted.Add(1)
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *fakeServer) serve(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	rd := bufio.NewReader(conn)
	for {
		verb, args, err := protocol.ReadRequest(rd)
		if err != nil {
			return
		}
		s.requests.Add(1)
		if s.handler == nil {
			return
		}
		status, blocks := s.handler(verb, args)
		if err := protocol.WriteResponse(conn, status, blocks...); err != nil {
			return
		}
	}
}

func (s *fakeServer) close() {
	_ = s.ln.Close()
	s.mu.Lock()
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *fakeServer) server() Server {
	host, port, _ := net.SplitHostPort(s.ln.Addr().String())
	p, _ := strconv.Atoi(port)
	return Server{Host: host, Port: p}
}

// deadServer returns a Server on a port nothing listens on.
func deadServer(t *testing.T) Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	host, port, _ := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, ln.Close())
	p, _ := strconv.Atoi(port)
	return Server{Host: host, Port: p}
}

func echoHandler(verb string, args [][]byte) (protocol.Status, [][]byte) {
	switch verb {
	case "get":
		if len(args) > 0 && string(args[0]) == "missing" {
			return protocol.StatusNotFound, nil
		}
		return protocol.StatusOK, [][]byte{[]byte("value-of-" + string(args[0]))}
	case "bad":
		return protocol.StatusError, [][]byte{[]byte("bad"), []byte("request")}
	default:
		return protocol.StatusOK, [][]byte{[]byte("1")}
	}
}
