// Package main implements the example publisher.
//
// It creates the queue, then pushes one message per tick. Each message is a
// random payload with a "Message #<seq> <unix-micros>" header at the front,
// which smq-sub uses to measure latency and detect drops.
package main

import (
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smqueue/shmem"
	"github.com/smqueue/shmem/internal/msghdr"
)

var (
	name     = flag.String("name", "/my_queue_example_2", "Queue name")
	elements = flag.Uint64("elements", 10, "Number of slots")
	size     = flag.Uint64("size", 10*1024*1024, "Slot size in bytes")
	delay    = flag.Duration("delay", time.Millisecond, "Delay between messages")
	cleanup  = flag.Bool("cleanup", false, "Destroy the queue and exit")
)

func main() {
	flag.Parse()

	if *cleanup {
		if err := shmem.Destroy(*name); err != nil {
			fmt.Printf("Failed to destroy %s: %v\n", *name, err)
			os.Exit(1)
		}
		fmt.Printf("Destroyed %s\n", *name)
		return
	}
	if *size < msghdr.Size {
		fmt.Printf("Slot size must be at least %d bytes\n", msghdr.Size)
		os.Exit(1)
	}

	// A previous run that was killed leaves its objects behind.
	if err := shmem.Destroy(*name); err != nil {
		fmt.Printf("Failed to remove stale queue: %v\n", err)
		os.Exit(1)
	}
	q, err := shmem.Create(*name, *elements, *size)
	if err != nil {
		fmt.Printf("Failed to create queue: %v\n", err)
		os.Exit(1)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	payload := make([]byte, *size)
	if _, err := rand.Read(payload); err != nil {
		fmt.Printf("Failed to generate payload: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Publishing to %s (%d x %d bytes) every %v\n", *name, *elements, *size, *delay)

	ticker := time.NewTicker(*delay)
	defer ticker.Stop()

	for seq := uint64(1); ; {
		select {
		case <-stop:
			fmt.Println("\nShutting down...")
			q.Close()
			if err := shmem.Destroy(*name); err != nil {
				fmt.Printf("Failed to destroy queue: %v\n", err)
				os.Exit(1)
			}
			return
		case <-ticker.C:
		}

		if _, err := msghdr.Put(payload, msghdr.Header{Seq: seq, Sent: time.Now()}); err != nil {
			fmt.Printf("Failed to write header: %v\n", err)
			os.Exit(1)
		}
		ok, err := q.Push(payload)
		switch {
		case errors.Is(err, shmem.ErrSlotBorrowed):
			// Retried on the next tick with the same sequence number.
			fmt.Println("Publish deferred (slot borrowed)")
			continue
		case err != nil:
			fmt.Printf("Failed to publish: %v\n", err)
			os.Exit(1)
		case ok:
			fmt.Println("Published")
		default:
			fmt.Println("Published (with drop)")
		}
		seq++
	}
}
