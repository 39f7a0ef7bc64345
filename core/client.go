// Package core wires the pooling, retry and execution components (4.A–4.E)
// into the single Client surface spec §6 exposes to callers: Execute,
// Shutdown, and a pool statistics snapshot.
package core

import (
	"context"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/searchktools/fastclient/config"
	"github.com/searchktools/fastclient/core/connpool"
	"github.com/searchktools/fastclient/core/executor"
	"github.com/searchktools/fastclient/core/model"
	"github.com/searchktools/fastclient/core/observability"
	"github.com/searchktools/fastclient/core/pools"
	"github.com/searchktools/fastclient/core/retry"
)

// Client is the pooled, retrying HTTP/1.1 client spec §2 describes:
// Execute turns one Request into a Response (or a terminal *model.
// ClientError) by routing it through a PoolManager, RetryEngine and
// Executor built from cfg.
type Client struct {
	logger  *log.Logger
	pool    *connpool.PoolManager
	engine  *retry.Engine
	exec    *executor.Executor
	monitor *observability.PerformanceMonitor
	dispatch *pools.DispatchPool

	mu       sync.RWMutex
	closed   bool
	inFlight sync.WaitGroup
}

// New builds a Client from cfg, starting its idle reaper and performance
// monitor. Callers own the returned Client and must call Shutdown when
// done with it.
func New(cfg config.Config, opts ...executor.Option) *Client {
	if cfg.GCProfile != nil {
		pools.ApplyGCConfig(*cfg.GCProfile)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	pool := connpool.NewPoolManager(connpool.Config{
		MaxConnections:        cfg.MaxConnections,
		MaxConnectionsPerHost: cfg.MaxConnectionsPerHost,
		IdleTimeout:           cfg.IdleTimeout,
		MaxAge:                cfg.MaxAge,
		MaxRequestsPerConn:    cfg.MaxRequestsPerConn,
		ReaperInterval:        cfg.ReaperInterval,
		Dial:                  cfg.Dial,
	})
	engine := retry.NewEngine(cfg.RetryPolicy)
	monitor := observability.NewPerformanceMonitor()
	dispatch := pools.NewWorkerPool(0)

	execOpts := append([]executor.Option{
		executor.WithMonitor(monitor),
		executor.WithDispatch(dispatch),
		executor.WithLogger(logger),
	}, opts...)

	c := &Client{
		logger:   logger,
		pool:     pool,
		engine:   engine,
		exec:     executor.New(pool, engine, execOpts...),
		monitor:  monitor,
		dispatch: dispatch,
	}
	logger.Printf("🚀 fastclient ready: max-connections=%d max-per-host=%d", cfg.MaxConnections, cfg.MaxConnectionsPerHost)
	return c
}

// Execute is the single entry point spec §6 names: Client.execute(Request)
// → Response. Once Shutdown has started, Execute fails immediately with
// ErrClientClosed rather than being admitted into the attempt loop.
func (c *Client) Execute(ctx context.Context, req *model.Request) (*model.Response, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, &model.ClientError{Kind: model.ErrClientClosed, Err: fmt.Errorf("client is shut down")}
	}
	c.inFlight.Add(1)
	c.mu.RUnlock()
	defer c.inFlight.Done()

	return c.exec.Execute(ctx, req)
}

// Shutdown drains in-flight requests up to ctx's deadline, then closes
// every pooled Connection; any Execute call after Shutdown begins fails
// immediately (spec §6 "Client.shutdown"). It is safe to call more than
// once.
func (c *Client) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		done := make(chan struct{})
		go func() {
			c.inFlight.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-gctx.Done():
			return gctx.Err()
		}
	})

	err := g.Wait()
	if err != nil {
		c.logger.Printf("⚠️  shutdown grace period elapsed with requests still in flight: %v", err)
	}

	c.pool.Shutdown()
	c.dispatch.Close()
	c.monitor.Close()
	c.logger.Printf("🛑 fastclient shut down")
	return err
}

// Stats returns the pool statistics snapshot spec §6 names: per-origin
// {idle, in-use, waiters} plus the global {opened, closed, in-use}
// counters.
func (c *Client) Stats() connpool.Stats {
	return c.pool.Stats()
}
