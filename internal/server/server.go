// Package server implements the development server: a block-protocol TCP
// front end over the in-memory cache.
//
// It speaks the same wire format as the production servers the client
// shards across, which makes it suitable for local development and for
// end-to-end tests of the client. Each connection is served by its own
// goroutine. When a password is configured every connection must send
// "auth" before any other command.
//
// Example usage:
//
//	cfg := config.DefaultServerConfig()
//	srv := server.New(cfg, server.WithLogger(logger))
//	go func() {
//		if err := srv.Start(); err != nil {
//			logger.Fatal("server failed", zap.Error(err))
//		}
//	}()
//	defer srv.Stop()
package server

import (
	"bufio"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/shardkv/shardkv/pkg/cache"
	"github.com/shardkv/shardkv/pkg/config"
	kverrors "github.com/shardkv/shardkv/pkg/errors"
	"github.com/shardkv/shardkv/pkg/metrics"
	"github.com/shardkv/shardkv/pkg/protocol"
)

// Server serves one cache over the block protocol.
type Server struct {
	cfg      *config.ServerConfig
	cache    *cache.Cache
	logger   *zap.Logger
	metrics  *metrics.Metrics
	slots    *semaphore.Weighted
	handlers map[string]handler
	started  time.Time

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records per-command counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates a Server for cfg. Nothing listens until Start or Serve is
// called.
func New(cfg *config.ServerConfig, opts ...Option) *Server {
	if cfg == nil {
		cfg = config.DefaultServerConfig()
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = config.DefaultMaxConnections
	}

	s := &Server{
		cfg:     cfg,
		cache:   cache.New(cfg.CleanupInterval),
		logger:  zap.NewNop(),
		slots:   semaphore.NewWeighted(int64(maxConns)),
		conns:   make(map[net.Conn]struct{}),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handlers = s.commandTable()
	return s
}

// Start listens on the configured address and serves until Stop is
// called.
func (s *Server) Start() error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), "tcp", s.cfg.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address(), err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Stop is called. It returns nil
// after a clean stop.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return errors.New("server stopped")
	}
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("Server listening",
		zap.String("address", ln.Addr().String()),
		zap.Bool("auth", s.cfg.Password != ""))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.stopping() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("Failed to accept connection", zap.Error(err))
			continue
		}

		if !s.slots.TryAcquire(1) {
			s.logger.Warn("Connection limit reached", zap.String("remote", conn.RemoteAddr().String()))
			_ = protocol.WriteResponse(conn, protocol.StatusError, []byte("too many connections"))
			_ = conn.Close()
			continue
		}
		if !s.track(conn) {
			s.slots.Release(1)
			_ = conn.Close()
			return nil
		}
		go s.handleConnection(conn)
	}
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every open connection, waits for the
// connection goroutines to exit and stops the cache sweep.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var err error
	if s.listener != nil {
		if lerr := s.listener.Close(); lerr != nil && !errors.Is(lerr, net.ErrClosed) {
			err = multierr.Append(err, lerr)
		}
	}
	for conn := range s.conns {
		if cerr := conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.cache.Close()
	s.logger.Info("Server stopped")
	return err
}

func (s *Server) stopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// session is the per-connection state.
type session struct {
	authed bool
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer s.slots.Release(1)
	defer s.untrack(conn)
	defer func() {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Debug("Error closing connection", zap.Error(err))
		}
	}()

	remote := conn.RemoteAddr().String()
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	sess := &session{authed: s.cfg.Password == ""}

	for {
		if s.cfg.ReadTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
				return
			}
		}

		verb, args, err := protocol.ReadRequest(r)
		if err != nil {
			var perr *kverrors.ProtocolError
			switch {
			case errors.As(err, &perr):
				s.logger.Warn("Malformed request", zap.String("remote", remote), zap.Error(err))
				_ = s.write(conn, w, reply{status: protocol.StatusClientError, blocks: [][]byte{[]byte(perr.Reason)}})
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			default:
				s.logger.Debug("Failed to read request", zap.String("remote", remote), zap.Error(err))
			}
			return
		}

		rep := s.dispatch(sess, verb, args)
		if err := s.write(conn, w, rep); err != nil {
			s.logger.Debug("Failed to write response", zap.String("remote", remote), zap.Error(err))
			return
		}
	}
}

func (s *Server) write(conn net.Conn, w *bufio.Writer, rep reply) error {
	if s.cfg.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
			return err
		}
	}
	if err := protocol.WriteResponse(w, rep.status, rep.blocks...); err != nil {
		return err
	}
	return w.Flush()
}

func (s *Server) dispatch(sess *session, verb string, args [][]byte) reply {
	if verb == "auth" {
		return s.auth(sess, args)
	}
	if !sess.authed {
		s.metrics.ServerCommand(verb, "noauth")
		return errorReply("noauth", "authentication required")
	}

	h, ok := s.handlers[verb]
	if !ok {
		s.metrics.ServerCommand("unknown", string(protocol.StatusClientError))
		return clientError("Unknown Command: %s", verb)
	}

	var rep reply
	if len(args) < h.arity {
		rep = clientError("wrong number of arguments for %s", verb)
	} else {
		rep = s.run(h, verb, args)
	}
	s.metrics.ServerCommand(verb, string(rep.status))
	if rep.status.Failed() {
		s.logger.Debug("Command failed",
			zap.String("verb", verb),
			zap.String("status", string(rep.status)))
	}
	return rep
}

// run calls the handler and turns a panic into an error reply.
func (s *Server) run(h handler, verb string, args [][]byte) (rep reply) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Command panicked",
				zap.String("verb", verb),
				zap.Any("panic", r))
			rep = errorReply("internal error")
		}
	}()

	r, err := h.fn(argList(args))
	if err != nil {
		return clientError("%v", err)
	}
	return r
}

func (s *Server) auth(sess *session, args [][]byte) reply {
	if len(args) != 1 {
		return clientError("wrong number of arguments for auth")
	}
	if s.cfg.Password == "" {
		sess.authed = true
		return okReply("1")
	}
	if subtle.ConstantTimeCompare(args[0], []byte(s.cfg.Password)) != 1 {
		s.metrics.ServerCommand("auth", string(protocol.StatusError))
		return errorReply("invalid password")
	}
	sess.authed = true
	s.metrics.ServerCommand("auth", string(protocol.StatusOK))
	return okReply("1")
}
