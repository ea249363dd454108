// Package telemetry counts queue traffic for one handle and mirrors the counts
// into OpenTelemetry instruments.
package telemetry

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/sys/cpu"
)

// ScopeName is the instrumentation scope used for the meter.
const ScopeName = "github.com/smqueue/shmem"

// Snapshot is a point-in-time copy of a Recorder's counters.
type Snapshot struct {
	Pushes    uint64 // admitted messages, including ones that evicted
	Evictions uint64 // pushes that dropped the oldest message
	Rejected  uint64 // pushes refused because the write slot was borrowed
	Pops      uint64 // copying reads (Pop and TryPop)
	Borrows   uint64
	Commits   uint64
}

// counters are written by producers and consumers on different goroutines,
// so each sits on its own cache line.
type counters struct {
	pushes    atomic.Uint64
	_         cpu.CacheLinePad
	evictions atomic.Uint64
	_         cpu.CacheLinePad
	rejected  atomic.Uint64
	_         cpu.CacheLinePad
	pops      atomic.Uint64
	_         cpu.CacheLinePad
	borrows   atomic.Uint64
	_         cpu.CacheLinePad
	commits   atomic.Uint64
}

// Recorder records traffic for one queue handle.
type Recorder struct {
	local counters
	attrs metric.MeasurementOption

	pushes    metric.Int64Counter
	evictions metric.Int64Counter
	rejected  metric.Int64Counter
	pops      metric.Int64Counter
	borrows   metric.Int64Counter
	commits   metric.Int64Counter
}

// NewRecorder creates a Recorder whose instruments come from mp. A nil mp uses
// the global provider, which is a no-op until the application installs one.
func NewRecorder(mp metric.MeterProvider, queue string) *Recorder {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(ScopeName)
	return &Recorder{
		attrs:     metric.WithAttributeSet(attribute.NewSet(attribute.String("queue", queue))),
		pushes:    counter(meter, "shmem.queue.pushes", "Messages admitted by Push."),
		evictions: counter(meter, "shmem.queue.evictions", "Oldest messages dropped to admit a new one."),
		rejected:  counter(meter, "shmem.queue.rejected", "Pushes refused because the write slot was borrowed."),
		pops:      counter(meter, "shmem.queue.pops", "Messages copied out by Pop or TryPop."),
		borrows:   counter(meter, "shmem.queue.borrows", "Slots handed out by Borrow."),
		commits:   counter(meter, "shmem.queue.commits", "Borrowed slots released."),
	}
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit("{message}"))
	if err != nil {
		otel.Handle(err)
		c, _ = noop.Meter{}.Int64Counter(name)
	}
	return c
}

// Push records an admitted message.
func (r *Recorder) Push(evicted bool) {
	r.local.pushes.Add(1)
	r.pushes.Add(context.Background(), 1, r.attrs)
	if evicted {
		r.local.evictions.Add(1)
		r.evictions.Add(context.Background(), 1, r.attrs)
	}
}

// Reject records a push refused by backpressure.
func (r *Recorder) Reject() {
	r.local.rejected.Add(1)
	r.rejected.Add(context.Background(), 1, r.attrs)
}

// Pop records a copying read.
func (r *Recorder) Pop() {
	r.local.pops.Add(1)
	r.pops.Add(context.Background(), 1, r.attrs)
}

// Borrow records a zero-copy claim.
func (r *Recorder) Borrow() {
	r.local.borrows.Add(1)
	r.borrows.Add(context.Background(), 1, r.attrs)
}

// Commit records the release of a borrowed slot.
func (r *Recorder) Commit() {
	r.local.commits.Add(1)
	r.commits.Add(context.Background(), 1, r.attrs)
}

// Snapshot returns the current counter values.
func (r *Recorder) Snapshot() Snapshot {
	return Snapshot{
		Pushes:    r.local.pushes.Load(),
		Evictions: r.local.evictions.Load(),
		Rejected:  r.local.rejected.Load(),
		Pops:      r.local.pops.Load(),
		Borrows:   r.local.borrows.Load(),
		Commits:   r.local.commits.Load(),
	}
}

// Add returns the element-wise sum of two snapshots.
func (s Snapshot) Add(o Snapshot) Snapshot {
	return Snapshot{
		Pushes:    s.Pushes + o.Pushes,
		Evictions: s.Evictions + o.Evictions,
		Rejected:  s.Rejected + o.Rejected,
		Pops:      s.Pops + o.Pops,
		Borrows:   s.Borrows + o.Borrows,
		Commits:   s.Commits + o.Commits,
	}
}
