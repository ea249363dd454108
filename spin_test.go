package shmem

import "testing"

func TestWaitStrategyAdapts(t *testing.T) {
	w := NewWaitStrategy()
	start := w.CurrentLimit

	slept := 0
	if !w.Wait(func() bool { return true }, func() { slept++ }) {
		t.Fatal("Wait with a true condition returned false")
	}
	if slept != 0 {
		t.Fatal("Wait slept although the condition held")
	}
	if w.CurrentLimit != start+w.IncStep {
		t.Fatalf("limit after success = %d, want %d", w.CurrentLimit, start+w.IncStep)
	}

	calls := 0
	if w.Wait(func() bool { calls++; return false }, func() { slept++ }) {
		t.Fatal("Wait with a false condition returned true")
	}
	if slept != 1 {
		t.Fatalf("sleepAction ran %d times, want 1", slept)
	}
	if calls != int(start+w.IncStep)+1 {
		t.Fatalf("condition checked %d times, want %d", calls, start+w.IncStep+1)
	}
	if w.CurrentLimit != start+w.IncStep-w.DecStep {
		t.Fatalf("limit after failure = %d", w.CurrentLimit)
	}
}

func TestWaitStrategyClamps(t *testing.T) {
	w := NewWaitStrategy()

	w.CurrentLimit = w.MaxSpin
	w.Wait(func() bool { return true }, func() {})
	if w.CurrentLimit != w.MaxSpin {
		t.Fatalf("limit grew past MaxSpin: %d", w.CurrentLimit)
	}

	w.CurrentLimit = w.MinSpin
	w.Wait(func() bool { return false }, func() {})
	if w.CurrentLimit != w.MinSpin {
		t.Fatalf("limit shrank below MinSpin: %d", w.CurrentLimit)
	}
}

func TestWaitStrategySucceedsAfterSleep(t *testing.T) {
	w := NewWaitStrategy()
	ready := false
	if !w.Wait(func() bool { return ready }, func() { ready = true }) {
		t.Fatal("condition that became true during sleep was not reported")
	}
}
