// Package errors defines the failure taxonomy shared by the codec, the
// connection pool, the cluster failover loop and the client dispatcher.
//
// Every failure is a concrete type that can be matched with errors.As:
//
//	var se *errors.ServerError
//	if stderrors.As(err, &se) {
//		log.Printf("server rejected %s: %s", se.Verb, se.Message)
//	}
//
// Only TransportError is considered retryable; the cluster layer fails over
// to the next member on it and propagates everything else unchanged.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

var (
	// ErrClientClosed is returned by every client call made after Close.
	ErrClientClosed = stderrors.New("shardkv: client is closed")

	// ErrPoolClosed is returned by Borrow once the pool has been closed.
	ErrPoolClosed = stderrors.New("shardkv: connection pool is closed")

	// ErrEmptyRing is returned when a key is resolved against a ring with no clusters.
	ErrEmptyRing = stderrors.New("shardkv: hash ring has no clusters")
)

// PreconditionError reports an invalid local argument. The request it
// belongs to is never sent over the wire.
type PreconditionError struct {
	Verb   string
	Key    string
	Reason string
}

func (e *PreconditionError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %q: %s", e.Verb, e.Key, e.Reason)
	}
	if e.Verb != "" {
		return fmt.Sprintf("%s: %s", e.Verb, e.Reason)
	}
	return e.Reason
}

// Precondition creates a PreconditionError.
func Precondition(verb, key, format string, args ...interface{}) *PreconditionError {
	return &PreconditionError{Verb: verb, Key: key, Reason: fmt.Sprintf(format, args...)}
}

// AuthenticationError reports a rejected auth handshake.
type AuthenticationError struct {
	Addr    string
	Status  string
	Message string
}

func (e *AuthenticationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("authentication with %s failed: %s: %s", e.Addr, e.Status, e.Message)
	}
	return fmt.Sprintf("authentication with %s failed: %s", e.Addr, e.Status)
}

// ProtocolError reports a malformed frame or a response whose shape does
// not match what the caller asked for.
type ProtocolError struct {
	Verb   string
	Reason string
}

func (e *ProtocolError) Error() string {
	if e.Verb != "" {
		return fmt.Sprintf("protocol error on %s: %s", e.Verb, e.Reason)
	}
	return "protocol error: " + e.Reason
}

// Protocol creates a ProtocolError.
func Protocol(format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// ServerError carries a non-ok status returned by a server together with
// the server's message verbatim.
type ServerError struct {
	Verb    string
	Key     string
	Status  string
	Message string
}

func (e *ServerError) Error() string {
	target := e.Verb
	if e.Key != "" {
		target = fmt.Sprintf("%s %q", e.Verb, e.Key)
	}
	if e.Message == "" {
		return fmt.Sprintf("%s: server replied %s", target, e.Status)
	}
	return fmt.Sprintf("%s: server replied %s: %s", target, e.Status, e.Message)
}

// PoolExhaustedError reports that no connection became available within
// the borrow timeout.
type PoolExhaustedError struct {
	Addr    string
	Waited  time.Duration
	MaxConn int
}

func (e *PoolExhaustedError) Error() string {
	return fmt.Sprintf("connection pool for %s exhausted: no connection within %s (max %d)", e.Addr, e.Waited, e.MaxConn)
}

// TransportError reports a dial, read or write failure against one server.
// It is the only failure the cluster layer fails over on.
type TransportError struct {
	Addr string
	Op   string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ClusterUnavailableError reports that every member of a cluster failed at
// the transport level. Last is the failure of the final member tried.
type ClusterUnavailableError struct {
	Cluster string
	Verb    string
	Key     string
	Tried   int
	Last    error
}

func (e *ClusterUnavailableError) Error() string {
	return fmt.Sprintf("cluster %s unavailable for %s %q after %d servers: %v", e.Cluster, e.Verb, e.Key, e.Tried, e.Last)
}

func (e *ClusterUnavailableError) Unwrap() error {
	return e.Last
}

// IsTransport reports whether err is, or wraps, a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return stderrors.As(err, &te)
}

// IsPrecondition reports whether err is, or wraps, a PreconditionError.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return stderrors.As(err, &pe)
}
