package cluster

import (
	"go.uber.org/zap"

	"github.com/shardkv/shardkv/pkg/metrics"
)

type options struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures pools and clusters.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink. The default records nothing.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
