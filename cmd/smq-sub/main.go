// Package main implements the example subscriber.
//
// It attaches to a queue created by smq-pub and reads messages with one of
// the three read paths, reporting latency and sequence gaps.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/smqueue/shmem"
	"github.com/smqueue/shmem/internal/msghdr"
)

var (
	name  = flag.String("name", "/my_queue_example_2", "Queue name")
	mode  = flag.String("mode", "try", "Read path: try, pop or borrow")
	sleep = flag.Duration("sleep", 100*time.Microsecond, "Sleep between empty polls (try and borrow modes)")
)

const (
	emaAlpha    = 0.1
	statsPeriod = 10 * time.Second
	maxLatency  = 10 * time.Second
)

// stats tracks what the subscriber has seen so far.
type stats struct {
	loops    uint64
	received uint64
	gaps     uint64
	lost     uint64
	lastSeq  uint64
	ema      float64
	since    time.Time
}

// observe records one message. Latency samples outside [0, maxLatency] come
// from unsynchronized clocks or stale slots and stay out of the average.
func (s *stats) observe(h msghdr.Header) {
	if s.lastSeq != 0 && h.Seq != s.lastSeq+1 {
		s.gaps++
		if h.Seq > s.lastSeq {
			s.lost += h.Seq - s.lastSeq - 1
		}
		fmt.Printf("Gap: expected #%d, got #%d\n", s.lastSeq+1, h.Seq)
	}
	s.lastSeq = h.Seq

	elapsed := time.Since(h.Sent)
	if elapsed < 0 || elapsed > maxLatency {
		fmt.Printf("Suspicious latency %v for #%d, ignoring\n", elapsed, h.Seq)
		return
	}
	s.received++
	latency := float64(elapsed.Microseconds())
	if s.received == 1 {
		s.ema = latency
	} else {
		s.ema = emaAlpha*latency + (1-emaAlpha)*s.ema
	}
	fmt.Printf("Received #%d, latency %.0fus (avg %.0fus)\n", h.Seq, latency, s.ema)
}

func (s *stats) report() {
	elapsed := time.Since(s.since).Seconds()
	fmt.Printf("Stats: %d loops (%.0f/s), %d received, %d gaps, %d lost, avg latency %.0fus\n",
		s.loops, float64(s.loops)/elapsed, s.received, s.gaps, s.lost, s.ema)
}

func main() {
	flag.Parse()

	read, ok := readers[*mode]
	if !ok {
		fmt.Printf("Unknown mode %q (want try, pop or borrow)\n", *mode)
		os.Exit(2)
	}

	q, err := shmem.Open(*name)
	if err != nil {
		fmt.Printf("Failed to open queue: %v\n", err)
		os.Exit(1)
	}
	defer q.Close()

	fmt.Printf("Subscribed to %s (%d x %d bytes), mode %s\n", *name, q.MaxElements(), q.ElementSize(), *mode)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	var stopping atomic.Bool
	go func() {
		<-c
		fmt.Println("\nShutting down...")
		if *mode == "pop" {
			// Pop has no cancellation.
			os.Exit(0)
		}
		stopping.Store(true)
	}()

	st := &stats{since: time.Now()}
	nextReport := st.since.Add(statsPeriod)
	r := &reader{q: q, buf: make([]byte, q.ElementSize()), wait: shmem.NewWaitStrategy()}

	for !stopping.Load() {
		st.loops++
		h, got, err := read(r)
		if err != nil {
			fmt.Printf("Read failed: %v\n", err)
			os.Exit(1)
		}
		if got {
			st.observe(h)
		}
		if now := time.Now(); now.After(nextReport) {
			st.report()
			nextReport = now.Add(statsPeriod)
		}
	}
	st.report()
}

type reader struct {
	q    *shmem.Queue
	buf  []byte
	wait *shmem.WaitStrategy
}

var readers = map[string]func(*reader) (msghdr.Header, bool, error){
	"try":    (*reader).try,
	"pop":    (*reader).pop,
	"borrow": (*reader).borrow,
}

func (r *reader) try() (msghdr.Header, bool, error) {
	ok, err := r.wait.PollPop(r.q, r.buf, *sleep)
	if err != nil || !ok {
		return msghdr.Header{}, false, err
	}
	return parse(r.buf)
}

func (r *reader) pop() (msghdr.Header, bool, error) {
	if err := r.q.Pop(r.buf); err != nil {
		return msghdr.Header{}, false, err
	}
	return parse(r.buf)
}

func (r *reader) borrow() (msghdr.Header, bool, error) {
	lease, ok := r.wait.PollBorrow(r.q, *sleep)
	if !ok {
		return msghdr.Header{}, false, nil
	}
	h, got, err := parse(lease.Bytes())
	if rerr := lease.Release(); rerr != nil {
		return msghdr.Header{}, false, rerr
	}
	return h, got, err
}

// parse reads the header, reporting and skipping messages that carry none.
func parse(buf []byte) (msghdr.Header, bool, error) {
	h, err := msghdr.Parse(buf)
	if err != nil {
		fmt.Printf("Skipping message: %v\n", err)
		return msghdr.Header{}, false, nil
	}
	return h, true, nil
}
