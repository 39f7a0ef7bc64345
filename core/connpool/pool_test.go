package connpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/searchktools/fastclient/core/model"
	"github.com/searchktools/fastclient/core/transport"
)

// fakeTransport is an in-memory Transport stand-in for pool-logic tests
// that don't need real socket framing.
type fakeTransport struct {
	id     uint64
	origin model.Origin
}

var fakeIDs atomic.Uint64

func newFakeTransport(origin model.Origin) transport.Transport {
	return &fakeTransport{id: fakeIDs.Add(1), origin: origin}
}

func (f *fakeTransport) ID() uint64           { return f.id }
func (f *fakeTransport) Origin() model.Origin { return f.origin }
func (f *fakeTransport) IsAlive() bool        { return true }
func (f *fakeTransport) Broken() bool         { return false }
func (f *fakeTransport) Close() error         { return nil }
func (f *fakeTransport) Send(ctx context.Context, req *model.Request) (*model.Response, error) {
	return &model.Response{StatusCode: 200, Header: model.NewHeader()}, nil
}

// testSem is a globalSlots backed by a real semaphore, large enough that
// these HostPool-level tests never hit the global ceiling.
type testSem struct {
	sem *semaphore.Weighted
}

func newTestSem() *testSem {
	return &testSem{sem: semaphore.NewWeighted(1 << 20)}
}

func (s *testSem) acquire(ctx context.Context) error { return s.sem.Acquire(ctx, 1) }
func (s *testSem) release()                          { s.sem.Release(1) }
func (s *testSem) releaseReserved()                   { s.sem.Release(1) }
func (s *testSem) onOpened()                          {}

// newTestHostPool builds a HostPool whose Transport creation is a fake,
// avoiding any real dialing, and counts how many were opened.
func newTestHostPool(perHost int, opened *atomic.Int64) *HostPool {
	origin := model.Origin{Scheme: "http", Host: "h", Port: 80}
	hp := newHostPool(origin, Limits{PerHostMax: perHost}, nil, newTestSem())
	hp.openTransport = func(ctx context.Context) (transport.Transport, error) {
		opened.Add(1)
		return newFakeTransport(origin), nil
	}
	return hp
}

func TestCheckoutReusesIdleConnection(t *testing.T) {
	var opened atomic.Int64
	hp := newTestHostPool(2, &opened)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		conn, err := hp.Checkout(ctx)
		if err != nil {
			t.Fatalf("checkout %d: %v", i, err)
		}
		hp.Checkin(conn, Reusable)
	}

	if opened.Load() != 1 {
		t.Fatalf("expected exactly 1 connection opened, got %d", opened.Load())
	}
	idle, inUse, waiters := hp.Size()
	if idle != 1 || inUse != 0 || waiters != 0 {
		t.Fatalf("unexpected pool shape: idle=%d inUse=%d waiters=%d", idle, inUse, waiters)
	}
}

func TestCheckoutEnforcesPerHostMaxAndFIFO(t *testing.T) {
	var opened atomic.Int64
	hp := newTestHostPool(2, &opened)
	ctx := context.Background()

	c1, err := hp.Checkout(ctx)
	if err != nil {
		t.Fatal(err)
	}
	c2, err := hp.Checkout(ctx)
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	order := make([]int, 0, 3)
	var wg sync.WaitGroup
	for i := 1; i <= 3; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := hp.Checkout(context.Background())
			if err != nil {
				t.Errorf("waiter %d: %v", i, err)
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			hp.Checkin(conn, Reusable)
		}()
		time.Sleep(5 * time.Millisecond) // register waiters roughly in order
	}

	time.Sleep(10 * time.Millisecond)
	_, _, waiters := hp.Size()
	if waiters == 0 {
		t.Fatal("expected at least one registered waiter while both slots are held")
	}

	hp.Checkin(c1, Reusable)
	hp.Checkin(c2, Reusable)
	wg.Wait()

	if opened.Load() != 2 {
		t.Fatalf("expected exactly 2 connections ever opened, got %d", opened.Load())
	}

	// Spec §8 property 3: waiters are served FIFO. Each waiter registers
	// 5ms apart and only releases its slot 5ms after checkout, so the
	// registration order above is also the service order.
	mu.Lock()
	got := append([]int(nil), order...)
	mu.Unlock()
	want := []int{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("expected %d waiters served, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected FIFO service order %v, got %v", want, got)
		}
	}
}

func TestCheckinBrokenDecrementsCount(t *testing.T) {
	var opened atomic.Int64
	hp := newTestHostPool(1, &opened)
	ctx := context.Background()

	conn, err := hp.Checkout(ctx)
	if err != nil {
		t.Fatal(err)
	}
	hp.Checkin(conn, BrokenDisposition)

	conn2, err := hp.Checkout(ctx)
	if err != nil {
		t.Fatal(err)
	}
	hp.Checkin(conn2, Reusable)

	if opened.Load() != 2 {
		t.Fatalf("expected a replacement connection to be opened, got %d total opens", opened.Load())
	}
}

func TestEvictStaleClosesOldIdleConnections(t *testing.T) {
	var opened atomic.Int64
	hp := newTestHostPool(2, &opened)
	ctx := context.Background()

	conn, err := hp.Checkout(ctx)
	if err != nil {
		t.Fatal(err)
	}
	hp.Checkin(conn, Reusable)
	conn.lastUsedAt = time.Now().Add(-time.Hour)

	evicted := hp.EvictStale(time.Minute, 0)
	if evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}
	idle, _, _ := hp.Size()
	if idle != 0 {
		t.Fatalf("expected idle queue empty after eviction, got %d", idle)
	}
}

func TestCheckoutDeadlineExceededSurfacesPoolExhausted(t *testing.T) {
	var opened atomic.Int64
	hp := newTestHostPool(1, &opened)

	conn, err := hp.Checkout(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer hp.Checkin(conn, Reusable)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = hp.Checkout(ctx)
	if err == nil {
		t.Fatal("expected checkout to fail once the deadline elapses")
	}
	if !errors.Is(err, model.ErrPoolExhausted) {
		t.Fatalf("expected PoolExhausted, got %v", err)
	}
}
