package cluster

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	kverrors "github.com/shardkv/shardkv/pkg/errors"
	"github.com/shardkv/shardkv/pkg/metrics"
)

// PoolStats is a point-in-time view of a pool.
type PoolStats struct {
	Idle     int
	Active   int
	MaxTotal int
}

// Pool is a bounded set of connections to one server.
//
// At most MaxTotal connections are borrowed at once; Borrow waits for a
// slot up to the server's BorrowTimeout. Released connections go back to a
// LIFO idle list capped at MaxIdle. Connections are only validated by use:
// a connection that fails is discarded by its borrower and never returns
// to the idle list.
type Pool struct {
	server  Server
	slots   *semaphore.Weighted
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	idle   []*Conn
	active int
	closed bool
}

// NewPool creates an empty pool for srv. Connections are dialed on demand.
func NewPool(srv Server, opts ...Option) *Pool {
	o := buildOptions(opts)
	srv = srv.withDefaults()
	return &Pool{
		server:  srv,
		slots:   semaphore.NewWeighted(int64(srv.MaxTotal)),
		logger:  o.logger.With(zap.String("server", srv.Address())),
		metrics: o.metrics,
	}
}

// Server returns the server this pool connects to, with defaults applied.
func (p *Pool) Server() Server {
	return p.server
}

// Borrow returns an idle connection or dials a new one.
//
// It blocks while MaxTotal connections are out, failing with a
// PoolExhaustedError once BorrowTimeout elapses. If ctx ends first its
// error is returned instead. A new connection is authenticated before it
// is handed out.
func (p *Pool) Borrow(ctx context.Context) (*Conn, error) {
	addr := p.server.Address()
	if p.isClosed() {
		return nil, kverrors.ErrPoolClosed
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.server.BorrowTimeout)
	defer cancel()

	start := time.Now()
	if err := p.slots.Acquire(waitCtx, 1); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		p.metrics.Borrow(addr, "exhausted")
		p.logger.Debug("Connection pool exhausted", zap.Duration("waited", time.Since(start)))
		return nil, &kverrors.PoolExhaustedError{Addr: addr, Waited: time.Since(start), MaxConn: p.server.MaxTotal}
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.slots.Release(1)
		return nil, kverrors.ErrPoolClosed
	}
	p.active++
	if n := len(p.idle); n > 0 {
		conn := p.idle[n-1]
		p.idle[n-1] = nil
		p.idle = p.idle[:n-1]
		p.publishLocked()
		p.mu.Unlock()
		p.metrics.Borrow(addr, "reused")
		return conn, nil
	}
	p.publishLocked()
	p.mu.Unlock()

	conn, err := Dial(ctx, p.server)
	if err != nil {
		p.giveBack()
		p.metrics.Borrow(addr, "failed")
		p.logger.Debug("Failed to open connection", zap.Error(err))
		return nil, err
	}

	p.metrics.Borrow(addr, "dialed")
	p.logger.Debug("Opened connection")
	return conn, nil
}

// Release returns a healthy connection to the idle list. A broken
// connection is discarded instead.
func (p *Pool) Release(conn *Conn) {
	if conn == nil {
		return
	}
	if conn.Broken() {
		p.Discard(conn)
		return
	}

	p.mu.Lock()
	p.active--
	if p.closed || len(p.idle) >= p.server.MaxIdle {
		p.publishLocked()
		p.mu.Unlock()
		p.slots.Release(1)
		p.closeConn(conn)
		return
	}
	p.idle = append(p.idle, conn)
	p.publishLocked()
	p.mu.Unlock()
	p.slots.Release(1)
}

// Discard closes a borrowed connection and frees its slot.
func (p *Pool) Discard(conn *Conn) {
	if conn == nil {
		return
	}
	p.closeConn(conn)
	p.giveBack()
}

// Close closes every idle connection. Borrowed connections are closed
// when they are released. Borrow fails with ErrPoolClosed afterwards.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.publishLocked()
	p.mu.Unlock()

	var err error
	for _, conn := range idle {
		err = multierr.Append(err, conn.Close())
	}
	return err
}

// Stats returns the current idle and active counts.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{Idle: len(p.idle), Active: p.active, MaxTotal: p.server.MaxTotal}
}

func (p *Pool) giveBack() {
	p.mu.Lock()
	p.active--
	p.publishLocked()
	p.mu.Unlock()
	p.slots.Release(1)
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Pool) closeConn(conn *Conn) {
	if err := conn.Close(); err != nil {
		p.logger.Debug("Error closing connection", zap.Error(err))
	}
}

func (p *Pool) publishLocked() {
	p.metrics.PoolState(p.server.Address(), len(p.idle), p.active)
}
