package client

import (
	"go.uber.org/zap"

	"github.com/shardkv/shardkv/pkg/cluster"
	"github.com/shardkv/shardkv/pkg/hash"
	"github.com/shardkv/shardkv/pkg/metrics"
)

type options struct {
	logger       *zap.Logger
	metrics      *metrics.Metrics
	virtualNodes int
	hashFunc     hash.Func
}

// Option configures a Client.
type Option func(*options)

// WithLogger sets the logger used by the client and by the clusters it
// builds itself. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records request, failover and pool metrics into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithVirtualNodes sets the ring's virtual nodes per unit of weight.
func WithVirtualNodes(n int) Option {
	return func(o *options) {
		o.virtualNodes = n
	}
}

// WithHashFunc sets the ring hash function.
func WithHashFunc(fn hash.Func) Option {
	return func(o *options) {
		o.hashFunc = fn
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) ringOptions() []hash.Option {
	var out []hash.Option
	if o.virtualNodes > 0 {
		out = append(out, hash.WithVirtualNodes(o.virtualNodes))
	}
	if o.hashFunc != nil {
		out = append(out, hash.WithHashFunc(o.hashFunc))
	}
	return out
}

func (o options) clusterOptions() []cluster.Option {
	return []cluster.Option{cluster.WithLogger(o.logger), cluster.WithMetrics(o.metrics)}
}
