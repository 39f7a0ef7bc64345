/*
Package fastclient provides a pooled, retrying HTTP/1.1 client for Go,
built around hand-rolled wire framing and epoll/kqueue-backed connection
liveness checks rather than net/http's RoundTripper stack.

Features

  - Per-origin connection pooling: MRU idle reuse, FIFO waiters, a global
    ceiling enforced with a weighted semaphore.
  - Hand-rolled HTTP/1.1 framing: Content-Length, chunked transfer-encoding,
    and Connection: close, without net/http in the hot path.
  - Retry with classification: outcomes are classified into categories
    (transient, timeout, protocol, client, server, rate-limit) and decided
    against an idempotency- and budget-aware policy, honoring Retry-After.
  - Exponential and decorrelated-jitter backoff strategies.
  - An observer hook for a full retry audit trail, dispatched off the
    attempt's hot path through a work-stealing worker pool.
  - Pool statistics snapshot with JSON and human-readable rendering.

Quick Start

Basic usage example:

	package main

	import (
	    "context"
	    "fmt"
	    "time"

	    "github.com/searchktools/fastclient/config"
	    "github.com/searchktools/fastclient/core"
	    "github.com/searchktools/fastclient/core/model"
	)

	func main() {
	    cfg := config.New(config.WithMaxConnectionsPerHost(4))
	    client := core.New(cfg)
	    defer client.Shutdown(context.Background())

	    req := &model.Request{
	        Method: model.MethodGET,
	        Target: "/",
	        Origin: model.Origin{Scheme: "https", Host: "example.com", Port: 443},
	        Header: model.NewHeader(),
	        Timeout: 5 * time.Second,
	    }

	    resp, err := client.Execute(context.Background(), req)
	    if err != nil {
	        panic(err)
	    }
	    defer resp.Body.Close()
	    fmt.Println(resp.StatusCode)
	}

Modules

The module is organized into several packages:

  - app: client lifecycle management (signal-driven shutdown)
  - config: functional-options configuration surface
  - core: the Client entry point (Execute, Shutdown, Stats)
  - core/model: the wire-agnostic data model (Request, Response, Origin, Outcome)
  - core/transport: one HTTP/1.1 connection's framing (4.A)
  - core/connpool: HostPool and PoolManager, the pooling layer (4.B, 4.C)
  - core/retry: outcome classification and backoff (4.D)
  - core/executor: the per-request attempt loop (4.E)
  - core/poller: epoll/kqueue connection-liveness probing
  - core/pools: object and buffer pooling, GC tuning, the observer-hook dispatcher
  - core/observability: per-origin latency and error metrics

Non-goals

Response body caching, content negotiation, cookie jars, proxy
authentication, HTTP/2 multiplexing, and file-based persistence are out of
scope; see the package-level docs under core/ for the full design.
*/
package fastclient
