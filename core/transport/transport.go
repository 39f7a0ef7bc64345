// Package transport implements spec component 4.A: a single HTTP/1.1
// connection capable of sending one request and parsing its response.
// It is the lowest layer of the client stack — connpool wraps it with
// pooling bookkeeping, executor drives it through an attempt.
package transport

import (
	"context"
	"crypto/tls"
	"net"
	"sync/atomic"
	"time"

	"github.com/searchktools/fastclient/core/model"
)

// Transport is the abstract capability set over one connection: write a
// request head and body, await the response head, stream the body, and
// probe liveness. Implementations are not safe for concurrent use — a
// Transport serves exactly one in-flight request at a time.
type Transport interface {
	// ID returns a value unique to this Transport instance, used by
	// Attempt bookkeeping without exposing the Transport itself.
	ID() uint64
	// Origin reports the origin this Transport is connected to.
	Origin() model.Origin
	// Send writes the request head and body, then reads and returns the
	// response head. The returned Response's Body must be fully read (or
	// Discarded) before the Transport may be reused.
	Send(ctx context.Context, req *model.Request) (*model.Response, error)
	// IsAlive is a best-effort, non-blocking liveness probe. False means
	// definitely dead; true is advisory only.
	IsAlive() bool
	// Broken reports whether a prior Send or body drain poisoned this
	// Transport (partial body consumption, peer Connection: close). A
	// Connection holding a broken Transport must be released Broken
	// rather than returned to its HostPool's idle queue.
	Broken() bool
	// Close tears down the underlying connection.
	Close() error
}

var nextID atomic.Uint64

// DialFunc opens a new raw network connection to origin. The default
// implementation (Dial) is the one "TLS connector" collaborator the
// spec names; callers may substitute their own (e.g. for test fakes).
type DialFunc func(ctx context.Context, origin model.Origin) (net.Conn, error)

// Dial opens a plain or TLS connection depending on origin.Scheme. It is
// the default DialFunc used when none is configured.
func Dial(ctx context.Context, origin model.Origin) (net.Conn, error) {
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", origin.String())
	if err != nil {
		return nil, err
	}

	if !origin.IsTLS() {
		return raw, nil
	}

	tlsConn := tls.Client(raw, &tls.Config{ServerName: origin.Host, MinVersion: tls.VersionTLS12})
	if deadline, ok := ctx.Deadline(); ok {
		_ = raw.SetDeadline(deadline)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, err
	}
	_ = raw.SetDeadline(time.Time{})
	return tlsConn, nil
}

// Open dials origin and wraps the resulting connection as a Transport.
func Open(ctx context.Context, origin model.Origin, dial DialFunc) (Transport, error) {
	if dial == nil {
		dial = Dial
	}
	conn, err := dial(ctx, origin)
	if err != nil {
		return nil, err
	}

	raw := conn
	if tc, ok := conn.(*tls.Conn); ok {
		raw = tc.NetConn()
	}

	return &connTransport{
		id:     nextID.Add(1),
		origin: origin,
		conn:   conn,
		raw:    raw,
	}, nil
}
