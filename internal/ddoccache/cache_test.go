// internal/ddoccache/cache_test.go
//
// Scenario tests for the design-document cache core.
//
// Context
// -------
// Each test drives a real Cache with goroutines and channels rather than
// mocking the actor internals — the actor/coordinator pair only makes sense
// exercised end-to-end.  fakeOps stands in for a KeyOps-backed shard store;
// its Recover call count and configurable latency/failure let each test
// assert on spec.md §8's required scenarios directly.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.

package ddoccache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeOps is a KeyOps whose Recover behavior is fully scriptable: fixed
// delay, a fail-N-times-then-succeed counter, and a call counter tests
// assert on directly.
type fakeOps struct {
	dbname string
	ddocid string

	mu       sync.Mutex
	calls    int
	delay    time.Duration
	failN    int // Recover fails this many times before succeeding
	value    func(call int) Value
}

func (f *fakeOps) DBName(arg any) string { return f.dbname }
func (f *fakeOps) DDocID(arg any) string { return f.ddocid }

func (f *fakeOps) Recover(ctx context.Context, arg any) (Value, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	fail := call <= f.failN
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, fmt.Errorf("fakeOps: induced failure on call %d", call)
	}
	if f.value != nil {
		return f.value(call), nil
	}
	return call, nil
}

func (f *fakeOps) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestCache(t *testing.T, reg *Registry, opts ...Option) (*Cache, func()) {
	t.Helper()
	c := New(reg, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	return c, func() {
		cancel()
		_ = c.Close(context.Background())
	}
}

func TestOpen_MissThenHit(t *testing.T) {
	reg := NewRegistry()
	ops := &fakeOps{dbname: "db1", ddocid: NoDDocID}
	reg.Register("doc", ops)

	c, stop := newTestCache(t, reg)
	defer stop()

	key := Key{Tag: "doc", Arg: "k1"}

	v, err := c.Open(context.Background(), key)
	if err != nil {
		t.Fatalf("first Open error: %v", err)
	}
	if v != 1 {
		t.Fatalf("first Open value = %v, want 1", v)
	}

	v, err = c.Open(context.Background(), key)
	if err != nil {
		t.Fatalf("second Open error: %v", err)
	}
	if v != 1 {
		t.Fatalf("second Open should be a cache hit returning 1, got %v", v)
	}
	if got := ops.callCount(); got != 1 {
		t.Fatalf("Recover called %d times, want exactly 1", got)
	}
}

func TestOpen_ConcurrentMissesCoalesce(t *testing.T) {
	reg := NewRegistry()
	ops := &fakeOps{dbname: "db1", ddocid: NoDDocID, delay: 30 * time.Millisecond}
	reg.Register("doc", ops)

	c, stop := newTestCache(t, reg)
	defer stop()

	key := Key{Tag: "doc", Arg: "k1"}

	const n = 100
	var wg sync.WaitGroup
	var errCount atomic.Int64
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Open(context.Background(), key); err != nil {
				errCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if errCount.Load() != 0 {
		t.Fatalf("%d of %d concurrent opens errored", errCount.Load(), n)
	}
	if got := ops.callCount(); got != 1 {
		t.Fatalf("Recover called %d times for %d concurrent misses, want exactly 1", got, n)
	}
}

func TestLRU_EvictsOldestOnFullCache(t *testing.T) {
	reg := NewRegistry()
	ops := &fakeOps{dbname: "db1", ddocid: NoDDocID}
	reg.Register("doc", ops)

	var evicted []string
	var mu sync.Mutex
	obs := func(ev Event) {
		if ev.Kind == EventRemoved {
			mu.Lock()
			evicted = append(evicted, ev.Key.String())
			mu.Unlock()
		}
	}

	c, stop := newTestCache(t, reg, WithMaxSize(func() int { return 2 }), WithObserver(obs))
	defer stop()

	k1 := Key{Tag: "doc", Arg: "k1"}
	k2 := Key{Tag: "doc", Arg: "k2"}
	k3 := Key{Tag: "doc", Arg: "k3"}

	if _, err := c.Open(context.Background(), k1); err != nil {
		t.Fatalf("open k1: %v", err)
	}
	if _, err := c.Open(context.Background(), k2); err != nil {
		t.Fatalf("open k2: %v", err)
	}
	if _, err := c.Open(context.Background(), k3); err != nil {
		t.Fatalf("open k3: %v", err)
	}

	// Give the coordinator a moment to process the eviction triggered by
	// k3's admission before inspecting state.
	time.Sleep(50 * time.Millisecond)

	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 after evicting the oldest entry", c.Len())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(evicted) != 1 || evicted[0] != k1.String() {
		t.Fatalf("expected k1 evicted, got %v", evicted)
	}
}

func TestRefresh_TimerRefetches(t *testing.T) {
	reg := NewRegistry()
	ops := &fakeOps{dbname: "db1", ddocid: NoDDocID}
	reg.Register("doc", ops)

	c, stop := newTestCache(t, reg,
		WithMaxSize(func() int { return 1 }),
		WithRefreshInterval(func() time.Duration { return 30 * time.Millisecond }),
	)
	defer stop()

	key := Key{Tag: "doc", Arg: "k1"}
	if _, err := c.Open(context.Background(), key); err != nil {
		t.Fatalf("open: %v", err)
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	for ops.callCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := ops.callCount(); got < 2 {
		t.Fatalf("Recover called %d times, want at least 2 (initial + refresh)", got)
	}
}

func TestEvictDatabase_RemovesAllDDocsOfDB(t *testing.T) {
	reg := NewRegistry()
	opsA := &fakeOps{dbname: "accounts", ddocid: "views"}
	opsB := &fakeOps{dbname: "accounts", ddocid: "validation"}
	opsOther := &fakeOps{dbname: "billing", ddocid: "views"}
	reg.Register("viewsA", opsA)
	reg.Register("viewsB", opsB)
	reg.Register("other", opsOther)

	var removed atomic.Int64
	obs := func(ev Event) {
		if ev.Kind == EventRemoved {
			removed.Add(1)
		}
	}

	c, stop := newTestCache(t, reg, WithObserver(obs))
	defer stop()

	keyA := Key{Tag: "viewsA", Arg: "accounts/views"}
	keyB := Key{Tag: "viewsB", Arg: "accounts/validation"}
	keyOther := Key{Tag: "other", Arg: "billing/views"}

	for _, k := range []Key{keyA, keyB, keyOther} {
		if _, err := c.Open(context.Background(), k); err != nil {
			t.Fatalf("open %v: %v", k, err)
		}
	}

	c.EvictDatabase(context.Background(), "accounts")

	deadline := time.Now().Add(500 * time.Millisecond)
	for removed.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := removed.Load(); got != 2 {
		t.Fatalf("removed events = %d, want 2 (both accounts ddocs)", got)
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (only billing/views left)", c.Len())
	}
}

func TestOpen_ZeroMaxSizeAlwaysRecoversDirectly(t *testing.T) {
	reg := NewRegistry()
	ops := &fakeOps{dbname: "db1", ddocid: NoDDocID}
	reg.Register("doc", ops)

	var fullEvents atomic.Int64
	obs := func(ev Event) {
		if ev.Kind == EventFull {
			fullEvents.Add(1)
		}
	}

	c, stop := newTestCache(t, reg, WithMaxSize(func() int { return 0 }), WithObserver(obs))
	defer stop()

	key := Key{Tag: "doc", Arg: "k1"}
	for i := 0; i < 3; i++ {
		if _, err := c.Open(context.Background(), key); err != nil {
			t.Fatalf("open #%d: %v", i, err)
		}
	}

	if c.Len() != 0 {
		t.Fatalf("Len() = %d, want 0: max_size=0 must never create an entry actor", c.Len())
	}
	if got := ops.callCount(); got != 3 {
		t.Fatalf("Recover called %d times, want 3 direct recovers (one per Open)", got)
	}
}

func TestOpen_RecoverFailurePropagatesAndAllowsRetry(t *testing.T) {
	reg := NewRegistry()
	// The delay keeps the first Open buffered as a waiter before the failure
	// lands; an Open arriving after the actor has exited would fall back to a
	// direct recover instead.
	ops := &fakeOps{dbname: "db1", ddocid: NoDDocID, failN: 1, delay: 20 * time.Millisecond}
	reg.Register("doc", ops)

	c, stop := newTestCache(t, reg)
	defer stop()

	key := Key{Tag: "doc", Arg: "k1"}

	if _, err := c.Open(context.Background(), key); err == nil {
		t.Fatalf("expected first Open to surface the induced failure")
	}

	// The failed entry actor terminates; a subsequent Open must succeed via
	// a fresh actor rather than being stuck behind a dead one.
	deadline := time.Now().Add(500 * time.Millisecond)
	var v Value
	var err error
	for time.Now().Before(deadline) {
		v, err = c.Open(context.Background(), key)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("retry after failure never succeeded: %v", err)
	}
	if v != 2 {
		t.Fatalf("retry value = %v, want 2 (second Recover call)", v)
	}
}
