// Package main implements a load generator for the queue.
//
// It runs producers and consumers on separate handles for a fixed duration,
// then prints throughput and checks that every pushed message was either
// popped, evicted or is still queued.
package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/smqueue/shmem"
)

var (
	name      = flag.String("name", "/smq_bench", "Queue name")
	producers = flag.Int("producers", 2, "Number of producer goroutines")
	consumers = flag.Int("consumers", 2, "Number of consumer goroutines")
	duration  = flag.Duration("duration", 5*time.Second, "Benchmark duration")
	elements  = flag.Uint64("elements", 1024, "Number of slots")
	size      = flag.Uint64("size", 256, "Slot size in bytes")
	borrow    = flag.Bool("borrow", false, "Consume with Borrow instead of TryPop")
)

func main() {
	flag.Parse()

	if *size < 8 {
		fmt.Println("Slot size must be at least 8 bytes")
		os.Exit(1)
	}
	if err := shmem.Destroy(*name); err != nil {
		fmt.Printf("Failed to remove stale queue: %v\n", err)
		os.Exit(1)
	}
	owner, err := shmem.Create(*name, *elements, *size)
	if err != nil {
		fmt.Printf("Failed to create queue: %v\n", err)
		os.Exit(1)
	}
	defer shmem.Destroy(*name)
	defer owner.Close()

	fmt.Printf("Running %d producers, %d consumers on %d x %d bytes for %v...\n",
		*producers, *consumers, *elements, *size, *duration)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, stop := context.WithTimeout(ctx, *duration)
	defer stop()

	handles := make([]*shmem.Queue, 0, *producers+*consumers)
	open := func() *shmem.Queue {
		q, err := shmem.Open(*name)
		if err != nil {
			fmt.Printf("Failed to open queue: %v\n", err)
			os.Exit(1)
		}
		handles = append(handles, q)
		return q
	}

	var producing, consuming errgroup.Group

	for i := 0; i < *producers; i++ {
		q := open()
		producing.Go(func() error { return produce(ctx, q) })
	}
	done := make(chan struct{})
	for i := 0; i < *consumers; i++ {
		q := open()
		consuming.Go(func() error { return consume(done, q) })
	}

	start := time.Now()
	perr := producing.Wait()
	close(done)
	cerr := consuming.Wait()
	elapsed := time.Since(start)

	var total shmem.Stats
	for _, q := range handles {
		total = total.Add(q.Stats())
		q.Close()
	}
	if err := errors.Join(perr, cerr); err != nil {
		fmt.Printf("Benchmark failed: %v\n", err)
		os.Exit(1)
	}

	remaining, err := owner.Len()
	if err != nil {
		fmt.Printf("Failed to read queue length: %v\n", err)
		os.Exit(1)
	}

	secs := elapsed.Seconds()
	fmt.Printf("Elapsed:    %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Pushes:     %d (%.0f msg/s, %.1f MiB/s)\n", total.Pushes, float64(total.Pushes)/secs,
		float64(total.Pushes)*float64(*size)/secs/(1<<20))
	consumed := total.Pops + total.Borrows
	fmt.Printf("Consumed:   %d (%.0f msg/s)\n", consumed, float64(consumed)/secs)
	fmt.Printf("Evictions:  %d\n", total.Evictions)
	fmt.Printf("Rejected:   %d\n", total.Rejected)
	fmt.Printf("Remaining:  %d\n", remaining)

	if consumed+total.Evictions+remaining != total.Pushes {
		fmt.Printf("Invariant violated: consumed %d + evicted %d + remaining %d != pushed %d\n",
			consumed, total.Evictions, remaining, total.Pushes)
		os.Exit(1)
	}
	fmt.Println("Invariant holds.")
}

func produce(ctx context.Context, q *shmem.Queue) error {
	buf := make([]byte, q.ElementSize())
	for seq := uint64(1); ctx.Err() == nil; seq++ {
		binary.LittleEndian.PutUint64(buf, seq)
		if _, err := q.Push(buf); err != nil && !errors.Is(err, shmem.ErrSlotBorrowed) {
			return err
		}
	}
	return nil
}

// consume drains q until done is closed and the queue is empty.
func consume(done <-chan struct{}, q *shmem.Queue) error {
	buf := make([]byte, q.ElementSize())
	for {
		var got bool
		if *borrow {
			var lease *shmem.Lease
			if lease, got = q.Borrow(); got {
				if err := lease.Release(); err != nil {
					return err
				}
			}
		} else {
			var err error
			if got, err = q.TryPop(buf); err != nil {
				return err
			}
		}
		if got {
			continue
		}
		select {
		case <-done:
			return nil
		default:
			runtime.Gosched()
		}
	}
}
