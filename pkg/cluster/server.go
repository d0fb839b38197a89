package cluster

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Default server settings, applied to zero fields.
const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultReadTimeout    = 30 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
	DefaultMaxTotal       = 10
)

// Server describes one physical server. Its identity is Address().
//
// Zero durations and limits are replaced by the defaults above; a zero
// MaxIdle means MaxTotal and a zero BorrowTimeout means ConnectTimeout.
type Server struct {
	Host           string
	Port           int
	Password       string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	BorrowTimeout  time.Duration
	MaxTotal       int
	MaxIdle        int
}

// Address returns host:port.
func (s Server) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// String returns the address; the password is never printed.
func (s Server) String() string {
	return s.Address()
}

// Validate checks the fields that have no usable default.
func (s Server) Validate() error {
	if s.Host == "" {
		return fmt.Errorf("server host is required")
	}
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("invalid port for %s: %d", s.Host, s.Port)
	}
	if s.MaxTotal < 0 || s.MaxIdle < 0 {
		return fmt.Errorf("connection limits for %s must not be negative", s.Address())
	}
	if s.MaxIdle > 0 && s.MaxTotal > 0 && s.MaxIdle > s.MaxTotal {
		return fmt.Errorf("max idle (%d) exceeds max total (%d) for %s", s.MaxIdle, s.MaxTotal, s.Address())
	}
	return nil
}

func (s Server) withDefaults() Server {
	if s.ConnectTimeout <= 0 {
		s.ConnectTimeout = DefaultConnectTimeout
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.MaxTotal <= 0 {
		s.MaxTotal = DefaultMaxTotal
	}
	if s.MaxIdle <= 0 || s.MaxIdle > s.MaxTotal {
		s.MaxIdle = s.MaxTotal
	}
	if s.BorrowTimeout <= 0 {
		s.BorrowTimeout = s.ConnectTimeout
	}
	return s
}
