package kvstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestStoreSetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "kv.db"))

	if _, ok, err := s.Get(ctx, "eglc.theme"); err != nil || ok {
		t.Fatalf("Get() on empty store = ok=%v err=%v; want ok=false err=nil", ok, err)
	}
	if err := s.Set(ctx, "eglc.theme", "dark"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Set(ctx, "eglc.theme", "light"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, ok, err := s.Get(ctx, "eglc.theme")
	if err != nil || !ok {
		t.Fatalf("Get() = ok=%v err=%v; want value", ok, err)
	}
	if got != "light" {
		t.Fatalf("Get() = %q; want %q", got, "light")
	}

	if err := s.Delete(ctx, "eglc.theme"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := s.Get(ctx, "eglc.theme"); ok {
		t.Fatal("Get() after Delete() still finds key")
	}
}

func TestStoreClosedReturnsErrClosed(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "kv.db"))
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Set(context.Background(), "k", "v"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Set() after Close() = %v; want ErrClosed", err)
	}
}

func TestWatchDeliversOtherStoresWritesOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	a := openTestStore(t, path)
	b := openTestStore(t, path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Change, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Watch(ctx, 20*time.Millisecond, func(c Change) { got <- c })
	}()

	// Give the watcher time to seed its starting revision.
	time.Sleep(60 * time.Millisecond)

	if err := b.Set(ctx, "own", "ignored"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := a.Set(ctx, "eglc.auth.token", "tok"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := a.Delete(ctx, "eglc.auth.token"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	var changes []Change
	timeout := time.After(2 * time.Second)
	sawDelete := false
	for !sawDelete {
		select {
		case c := <-got:
			changes = append(changes, c)
			sawDelete = c.Key == "eglc.auth.token" && c.Deleted
		case <-timeout:
			t.Fatalf("timed out waiting for deletion; got %+v", changes)
		}
	}
	cancel()
	<-done

	// A set followed by a delete may collapse into one tombstone when both
	// land inside one poll interval.
	for _, c := range changes {
		if c.Key == "own" {
			t.Fatalf("watcher delivered its own write: %+v", c)
		}
		if c.Origin != a.Origin() {
			t.Fatalf("change origin = %q; want %q", c.Origin, a.Origin())
		}
	}
}
