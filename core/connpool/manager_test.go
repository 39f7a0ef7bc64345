package connpool

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/searchktools/fastclient/core/model"
)

func pipeDial() (func(ctx context.Context, origin model.Origin) (net.Conn, error), func()) {
	var conns []net.Conn
	dial := func(ctx context.Context, origin model.Origin) (net.Conn, error) {
		client, server := net.Pipe()
		conns = append(conns, server)
		go func() {
			buf := make([]byte, 4096)
			for {
				if _, err := server.Read(buf); err != nil {
					return
				}
			}
		}()
		return client, nil
	}
	cleanup := func() {
		for _, c := range conns {
			c.Close()
		}
	}
	return dial, cleanup
}

func TestPoolManagerEnforcesGlobalCeiling(t *testing.T) {
	dial, cleanup := pipeDial()
	defer cleanup()

	pm := NewPoolManager(Config{
		MaxConnections:        2,
		MaxConnectionsPerHost: 10,
		Dial:                  dial,
	})
	defer pm.Shutdown()

	o1 := model.Origin{Scheme: "http", Host: "a", Port: 80}
	o2 := model.Origin{Scheme: "http", Host: "b", Port: 80}

	req1 := &model.Request{Method: model.MethodGET, Target: "/", Origin: o1, Header: model.NewHeader()}
	req2 := &model.Request{Method: model.MethodGET, Target: "/", Origin: o2, Header: model.NewHeader()}
	req3 := &model.Request{Method: model.MethodGET, Target: "/", Origin: o1, Header: model.NewHeader()}

	c1, err := pm.Acquire(context.Background(), req1)
	if err != nil {
		t.Fatalf("acquire 1: %v", err)
	}
	c2, err := pm.Acquire(context.Background(), req2)
	if err != nil {
		t.Fatalf("acquire 2: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := pm.Acquire(ctx, req3); err == nil {
		t.Fatal("expected the global ceiling to block a third connection")
	}

	pm.Release(c1, Reusable)
	conn3, err := pm.Acquire(context.Background(), req3)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}

	stats := pm.Stats()
	if stats.Opened < 2 {
		t.Fatalf("expected at least 2 opens recorded, got %d", stats.Opened)
	}

	pm.Release(c2, Reusable)
	pm.Release(conn3, Reusable)
}

func TestPoolManagerReaperEvictsIdleConnections(t *testing.T) {
	dial, cleanup := pipeDial()
	defer cleanup()

	pm := NewPoolManager(Config{
		MaxConnections:        4,
		MaxConnectionsPerHost: 4,
		IdleTimeout:           10 * time.Millisecond,
		ReaperInterval:        5 * time.Millisecond,
		Dial:                  dial,
	})
	defer pm.Shutdown()

	origin := model.Origin{Scheme: "http", Host: "a", Port: 80}
	req := &model.Request{Method: model.MethodGET, Target: "/", Origin: origin, Header: model.NewHeader()}

	conn, err := pm.Acquire(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	pm.Release(conn, Reusable)

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		stats := pm.Stats()
		if o, ok := stats.Origins[origin.String()]; ok && o.Idle == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected the reaper to evict the idle connection within the deadline")
}
