package preview

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type applied struct {
	mu      sync.Mutex
	results []string
	errs    []error
	starts  []bool
}

func (a *applied) handler() Handler[string, string] {
	return Handler[string, string]{
		OnStart: func(_ uint64, _ string, showLoader bool) {
			a.mu.Lock()
			a.starts = append(a.starts, showLoader)
			a.mu.Unlock()
		},
		OnResult: func(_ uint64, _ string, r string) {
			a.mu.Lock()
			a.results = append(a.results, r)
			a.mu.Unlock()
		},
		OnError: func(_ uint64, _ string, err error) {
			a.mu.Lock()
			a.errs = append(a.errs, err)
			a.mu.Unlock()
		},
	}
}

func (a *applied) snapshot() ([]string, []error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.results...), append([]error(nil), a.errs...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestLateResponseForOlderRequestIsDropped(t *testing.T) {
	releaseFirst := make(chan struct{})
	firstReturned := make(chan struct{})
	fetch := func(_ context.Context, p string) (string, error) {
		if p == "r1" {
			// Ignores cancellation and resolves late.
			<-releaseFirst
			defer close(firstReturned)
			return "result-r1", nil
		}
		return "result-r2", nil
	}

	a := &applied{}
	c := New("test", fetch, a.handler())
	defer c.Close()

	c.Request("r1", Options{ShowLoader: true})
	c.Request("r2", Options{ShowLoader: true})

	waitFor(t, func() bool {
		got, _ := a.snapshot()
		return len(got) == 1
	})
	close(releaseFirst)
	<-firstReturned
	// Let the dropped response pass through delivery.
	c.deliver.Lock()
	c.deliver.Unlock()

	got, errs := a.snapshot()
	if len(got) != 1 || got[0] != "result-r2" {
		t.Fatalf("applied = %q; want only result-r2", got)
	}
	if len(errs) != 0 {
		t.Fatalf("errors = %v; want none", errs)
	}
	if got, want := c.Latest(), uint64(2); got != want {
		t.Fatalf("Latest() = %d; want %d", got, want)
	}
}

func TestDebouncedRequestsCollapse(t *testing.T) {
	var calls atomic.Int32
	var last atomic.Value
	fetch := func(_ context.Context, p string) (string, error) {
		calls.Add(1)
		last.Store(p)
		return p, nil
	}

	a := &applied{}
	c := New("test", fetch, a.handler())
	defer c.Close()

	for _, p := range []string{"BTC", "BTC,ETH", "BTC,ETH,XRP", "ETH,XRP", "XRP"} {
		c.Request(p, Options{Debounce: 40 * time.Millisecond})
		time.Sleep(5 * time.Millisecond)
	}
	waitFor(t, func() bool {
		got, _ := a.snapshot()
		return len(got) == 1
	})
	time.Sleep(60 * time.Millisecond)

	if got := calls.Load(); got != 1 {
		t.Fatalf("fetch calls = %d; want 1", got)
	}
	if got := last.Load().(string); got != "XRP" {
		t.Fatalf("fetched params = %q; want XRP", got)
	}
	a.mu.Lock()
	starts := append([]bool(nil), a.starts...)
	a.mu.Unlock()
	if len(starts) != 1 || starts[0] {
		t.Fatalf("starts = %v; want one start without loader", starts)
	}
}

func TestNewRequestCancelsInFlight(t *testing.T) {
	canceled := make(chan struct{})
	fetch := func(ctx context.Context, p string) (string, error) {
		if p == "slow" {
			<-ctx.Done()
			close(canceled)
			return "", ctx.Err()
		}
		return p, nil
	}

	a := &applied{}
	c := New("test", fetch, a.handler())
	defer c.Close()

	c.Request("slow", Options{ShowLoader: true})
	c.Request("fast", Options{ShowLoader: true})

	select {
	case <-canceled:
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight request was not cancelled")
	}
	waitFor(t, func() bool {
		got, _ := a.snapshot()
		return len(got) == 1
	})
	if _, errs := a.snapshot(); len(errs) != 0 {
		t.Fatalf("errors = %v; cancellation must not surface", errs)
	}
}

func TestImmediateRequestReplacesPendingDebounce(t *testing.T) {
	var calls atomic.Int32
	fetch := func(_ context.Context, p string) (string, error) {
		calls.Add(1)
		return p, nil
	}
	a := &applied{}
	c := New("test", fetch, a.handler())
	defer c.Close()

	c.Request("debounced", Options{Debounce: 30 * time.Millisecond})
	c.Request("now", Options{ShowLoader: true})
	time.Sleep(80 * time.Millisecond)

	got, _ := a.snapshot()
	if len(got) != 1 || got[0] != "now" {
		t.Fatalf("applied = %q; want only now", got)
	}
	if calls.Load() != 1 {
		t.Fatalf("fetch calls = %d; want 1", calls.Load())
	}
}

func TestErrorsAreDelivered(t *testing.T) {
	boom := errors.New("HTTP 502")
	fetch := func(context.Context, string) (string, error) { return "", boom }
	a := &applied{}
	c := New("test", fetch, a.handler())
	defer c.Close()

	c.Request("x", Options{})
	waitFor(t, func() bool {
		_, errs := a.snapshot()
		return len(errs) == 1
	})
	if _, errs := a.snapshot(); !errors.Is(errs[0], boom) {
		t.Fatalf("error = %v; want %v", errs[0], boom)
	}
	if c.Busy() {
		t.Fatal("Busy() = true after completion")
	}
}

func TestCloseStopsDelivery(t *testing.T) {
	started := make(chan struct{})
	fetch := func(ctx context.Context, _ string) (string, error) {
		close(started)
		<-ctx.Done()
		return "late", nil
	}
	a := &applied{}
	c := New("test", fetch, a.handler())

	c.Request("x", Options{})
	<-started
	c.Close()
	c.Request("y", Options{})

	got, errs := a.snapshot()
	if len(got) != 0 || len(errs) != 0 {
		t.Fatalf("delivered after Close(): results=%q errs=%v", got, errs)
	}
}
