package cluster

import (
	"bufio"
	"context"
	stderrors "errors"
	"net"
	"time"

	kverrors "github.com/shardkv/shardkv/pkg/errors"
	"github.com/shardkv/shardkv/pkg/protocol"
)

const readBufferSize = 16 << 10

var errBroken = stderrors.New("connection already failed")

// Conn is one socket to one server. It is used by a single request at a
// time and is never reused once broken.
type Conn struct {
	addr         string
	nc           net.Conn
	rd           *bufio.Reader
	readTimeout  time.Duration
	writeTimeout time.Duration
	broken       bool
	createdAt    time.Time
}

// Dial connects to srv and, when srv has a password, authenticates before
// returning. Connect failures are TransportErrors; a rejected password is
// an AuthenticationError.
func Dial(ctx context.Context, srv Server) (*Conn, error) {
	srv = srv.withDefaults()

	dialer := &net.Dialer{Timeout: srv.ConnectTimeout}
	nc, err := dialer.DialContext(ctx, "tcp", srv.Address())
	if err != nil {
		return nil, &kverrors.TransportError{Addr: srv.Address(), Op: "dial", Err: err}
	}

	c := &Conn{
		addr:         srv.Address(),
		nc:           nc,
		rd:           bufio.NewReaderSize(nc, readBufferSize),
		readTimeout:  srv.ReadTimeout,
		writeTimeout: srv.WriteTimeout,
		createdAt:    time.Now(),
	}

	if srv.Password != "" {
		if err := c.authenticate(ctx, srv.Password); err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	return c, nil
}

func (c *Conn) authenticate(ctx context.Context, password string) error {
	resp, err := c.Do(ctx, "auth", password)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return &kverrors.AuthenticationError{Addr: c.addr, Status: string(resp.Status), Message: resp.Join(" ")}
	}
	return nil
}

// Do sends one request and reads its response.
//
// An argument that cannot be encoded fails before anything is written and
// leaves the connection usable. Any I/O failure, including a deadline,
// marks the connection broken and returns a TransportError. Malformed
// framing also marks it broken, since the stream position is lost, but is
// returned as a ProtocolError. Canceling ctx interrupts the round trip and
// returns ctx.Err().
func (c *Conn) Do(ctx context.Context, verb string, args ...interface{}) (*protocol.Response, error) {
	data, err := protocol.Encode(verb, args...)
	if err != nil {
		return nil, err
	}
	return c.roundTrip(ctx, verb, data)
}

// roundTrip writes an encoded request and reads one response.
func (c *Conn) roundTrip(ctx context.Context, verb string, data []byte) (*protocol.Response, error) {
	if c.broken {
		return nil, &kverrors.TransportError{Addr: c.addr, Op: "write", Err: errBroken}
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.nc.SetDeadline(time.Now())
	})
	resp, err := c.exchange(ctx, verb, data)
	if !stop() {
		// The socket deadline may have been moved to the past; the
		// connection cannot be handed out again.
		c.broken = true
	}
	if err != nil && ctx.Err() != nil {
		c.broken = true
		return nil, ctx.Err()
	}
	return resp, err
}

// exchange checks ctx after each deadline is set, since a cancel that fired
// just before would otherwise be overwritten.
func (c *Conn) exchange(ctx context.Context, verb string, data []byte) (*protocol.Response, error) {
	if err := c.nc.SetWriteDeadline(deadline(ctx, c.writeTimeout)); err != nil {
		return nil, c.fail("write", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := c.nc.Write(data); err != nil {
		return nil, c.fail("write", err)
	}

	if err := c.nc.SetReadDeadline(deadline(ctx, c.readTimeout)); err != nil {
		return nil, c.fail("read", err)
	}
	if err := ctx.Err(); err != nil {
		c.broken = true
		return nil, err
	}
	resp, err := protocol.ReadResponse(c.rd)
	if err != nil {
		var pe *kverrors.ProtocolError
		if stderrors.As(err, &pe) {
			c.broken = true
			pe.Verb = verb
			return nil, pe
		}
		return nil, c.fail("read", err)
	}
	return resp, nil
}

// Broken reports whether the connection has failed and must be discarded.
func (c *Conn) Broken() bool {
	return c.broken
}

// Addr returns the address of the server the connection belongs to.
func (c *Conn) Addr() string {
	return c.addr
}

// Close closes the socket. The connection is broken afterwards.
func (c *Conn) Close() error {
	c.broken = true
	return c.nc.Close()
}

func (c *Conn) fail(op string, err error) error {
	c.broken = true
	return &kverrors.TransportError{Addr: c.addr, Op: op, Err: err}
}

// deadline picks the earlier of the context deadline and now+timeout.
func deadline(ctx context.Context, timeout time.Duration) time.Time {
	d := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}
