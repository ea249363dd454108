package shmem

import (
	"os"

	"go.opentelemetry.io/otel/metric"
)

const (
	// DefaultSegmentPerm is the mode of the shared memory object.
	DefaultSegmentPerm os.FileMode = 0o660
	// DefaultSemaphorePerm is the mode of both semaphores.
	DefaultSemaphorePerm os.FileMode = 0o666
)

type options struct {
	meterProvider metric.MeterProvider
	segmentPerm   os.FileMode
	semPerm       os.FileMode
}

// Option configures Create and Open.
type Option func(*options)

// WithMeterProvider sets where the handle's metrics are reported. Without it
// the global OpenTelemetry provider is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// WithSegmentPerm sets the permission bits of a newly created segment.
// Ignored by Open.
func WithSegmentPerm(perm os.FileMode) Option {
	return func(o *options) {
		o.segmentPerm = perm.Perm()
	}
}

// WithSemaphorePerm sets the permission bits of newly created semaphores.
// Ignored by Open.
func WithSemaphorePerm(perm os.FileMode) Option {
	return func(o *options) {
		o.semPerm = perm.Perm()
	}
}

func buildOptions(opts []Option) options {
	o := options{
		segmentPerm: DefaultSegmentPerm,
		semPerm:     DefaultSemaphorePerm,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
