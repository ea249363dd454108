package main

import (
	"testing"
	"time"

	"github.com/smqueue/shmem/internal/msghdr"
)

func TestObserveSkipsImplausibleLatency(t *testing.T) {
	st := &stats{since: time.Now()}

	st.observe(msghdr.Header{Seq: 1, Sent: time.Now().Add(-2 * time.Millisecond)})
	if st.received != 1 {
		t.Fatalf("received = %d, want 1", st.received)
	}
	avg := st.ema

	st.observe(msghdr.Header{Seq: 2, Sent: time.Now().Add(time.Hour)})
	st.observe(msghdr.Header{Seq: 3, Sent: time.Now().Add(-time.Minute)})
	if st.received != 1 {
		t.Fatalf("received = %d after implausible samples, want 1", st.received)
	}
	if st.ema != avg {
		t.Fatalf("average moved from %.0f to %.0f on implausible samples", avg, st.ema)
	}
	if st.gaps != 0 || st.lastSeq != 3 {
		t.Fatalf("gaps = %d, lastSeq = %d; skipped samples must still advance the sequence", st.gaps, st.lastSeq)
	}
}

func TestObserveCountsGaps(t *testing.T) {
	st := &stats{since: time.Now()}
	now := time.Now()

	for _, seq := range []uint64{1, 2, 5, 6} {
		st.observe(msghdr.Header{Seq: seq, Sent: now})
	}
	if st.gaps != 1 || st.lost != 2 {
		t.Fatalf("gaps = %d, lost = %d; want 1, 2", st.gaps, st.lost)
	}
}
