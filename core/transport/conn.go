package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/http/httpguts"

	"github.com/searchktools/fastclient/core/model"
	"github.com/searchktools/fastclient/core/poller"
	"github.com/searchktools/fastclient/core/pools"
)

// connTransport is the default Transport implementation: one TCP or
// TLS-over-TCP connection framed as HTTP/1.1.
type connTransport struct {
	id     uint64
	origin model.Origin
	conn   net.Conn
	raw    net.Conn // the un-wrapped TCP conn, for the liveness probe
	reader *bufio.Reader

	broken bool
}

func (c *connTransport) ID() uint64           { return c.id }
func (c *connTransport) Origin() model.Origin { return c.origin }

func (c *connTransport) Close() error {
	return c.conn.Close()
}

func (c *connTransport) Broken() bool {
	return c.broken
}

// Send writes the request head and body, then parses and returns the
// response head. See encodeHead and parseResponse for the framing rules.
func (c *connTransport) Send(ctx context.Context, req *model.Request) (*model.Response, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetDeadline(deadline); err != nil {
			return nil, fmt.Errorf("%w: set deadline: %v", model.ErrNetwork, err)
		}
	} else {
		_ = c.conn.SetDeadline(time.Time{})
	}

	if err := validateHeaders(req.Header); err != nil {
		return nil, err
	}

	head := pools.AcquireBuffer(512)
	defer pools.ReleaseBuffer(head)
	*head = encodeHead(*head, req)

	if _, err := c.conn.Write(*head); err != nil {
		return nil, fmt.Errorf("%w: write head: %v", model.ErrNetwork, err)
	}

	if req.HasBody() {
		if _, err := writeBody(c.conn, req.Body); err != nil {
			return nil, fmt.Errorf("%w: write body: %v", model.ErrNetwork, err)
		}
	}

	if c.reader == nil {
		c.reader = bufio.NewReaderSize(c.conn, 4096)
	}

	resp, connClose, err := parseResponse(c.reader)
	if err != nil {
		c.broken = true
		return nil, err
	}
	if hasNoWireBody(req.Method, resp) {
		// No body follows regardless of framing headers (RFC 7230 §3.3.3):
		// the absence of a usable Content-Length never means read-until-close.
		connClose = strings.EqualFold(resp.Header.Get("Connection"), "close")
	}

	resp.Body = newBodyReader(c, req.Method, resp, connClose)
	return resp, nil
}

// IsAlive performs a non-blocking readability peek on the underlying
// socket: readable-with-no-pending-request means the peer sent
// unsolicited bytes or closed, either of which makes the connection
// unsafe to reuse, so IsAlive returns false in that case too.
func (c *connTransport) IsAlive() bool {
	if c.broken {
		return false
	}

	sc, ok := c.raw.(syscall.Conn)
	if !ok {
		return true
	}
	rawConn, err := sc.SyscallConn()
	if err != nil {
		return true
	}

	readable := false
	probeErr := rawConn.Read(func(fd uintptr) bool {
		ok, err := poller.IsReadable(int(fd))
		readable = ok && err == nil
		return true
	})
	if probeErr != nil {
		return true
	}
	// Readable while idle means either EOF or unexpected bytes: dead.
	return !readable
}

// validateHeaders rejects header names/values that would corrupt the
// wire framing if written verbatim. Canonicalization itself is an
// excluded collaborator (spec §6); this is just the wire-safety check a
// Transport owes its own socket.
func validateHeaders(h *model.Header) error {
	if h == nil {
		return nil
	}
	var badKey, badValue string
	h.Each(func(key, value string) {
		if badKey != "" {
			return
		}
		if !httpguts.ValidHeaderFieldName(key) {
			badKey = key
			return
		}
		if !httpguts.ValidHeaderFieldValue(value) {
			badValue = value
		}
	})
	if badKey != "" {
		return fmt.Errorf("%w: invalid header name %q", model.ErrProtocol, badKey)
	}
	if badValue != "" {
		return fmt.Errorf("%w: invalid header value %q", model.ErrProtocol, badValue)
	}
	return nil
}

// encodeHead appends the HTTP/1.1 request line and headers for req onto
// buf and returns the extended slice. Host and Connection are injected
// automatically, plus Content-Length or Transfer-Encoding: chunked for a
// request with a body; everything else comes from req.Header.
func encodeHead(buf []byte, req *model.Request) []byte {
	buf = append(buf, req.Method...)
	buf = append(buf, ' ')
	buf = append(buf, req.Target...)
	buf = append(buf, " HTTP/1.1\r\n"...)

	buf = appendHeaderLine(buf, "Host", req.Origin.Host)

	hasConnection := false
	hasContentLength := false
	if req.Header != nil {
		req.Header.Each(func(key, value string) {
			if strings.EqualFold(key, "Host") {
				return
			}
			if strings.EqualFold(key, "Connection") {
				hasConnection = true
			}
			if strings.EqualFold(key, "Content-Length") {
				hasContentLength = true
			}
			buf = appendHeaderLine(buf, key, value)
		})
	}

	if !hasConnection {
		buf = appendHeaderLine(buf, "Connection", "keep-alive")
	}
	if req.HasBody() && !hasContentLength {
		if req.Body.ContentLength >= 0 {
			buf = appendHeaderLine(buf, "Content-Length", strconv.FormatInt(req.Body.ContentLength, 10))
		} else {
			buf = appendHeaderLine(buf, "Transfer-Encoding", "chunked")
		}
	}

	buf = append(buf, "\r\n"...)
	return buf
}

func appendHeaderLine(buf []byte, key, value string) []byte {
	buf = append(buf, key...)
	buf = append(buf, ':', ' ')
	buf = append(buf, value...)
	buf = append(buf, "\r\n"...)
	return buf
}

func writeBody(w net.Conn, body *model.Body) (int64, error) {
	if body.ContentLength < 0 {
		return writeChunkedBody(w, body.Reader)
	}

	buf := pools.GetBytes(32 * 1024)
	defer pools.PutBytes(buf)

	var total int64
	for {
		n, rerr := body.Reader.Read(buf)
		if n > 0 {
			wn, werr := w.Write(buf[:n])
			total += int64(wn)
			if werr != nil {
				return total, werr
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return total, nil
			}
			return total, rerr
		}
	}
}

func writeChunkedBody(w net.Conn, r io.Reader) (int64, error) {
	buf := pools.GetBytes(32 * 1024)
	defer pools.PutBytes(buf)

	var total int64
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			header := strconv.FormatInt(int64(n), 16) + "\r\n"
			if _, err := w.Write([]byte(header)); err != nil {
				return total, err
			}
			wn, werr := w.Write(buf[:n])
			total += int64(wn)
			if werr != nil {
				return total, werr
			}
			if _, err := w.Write([]byte("\r\n")); err != nil {
				return total, err
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				_, err := w.Write([]byte("0\r\n\r\n"))
				return total, err
			}
			return total, rerr
		}
	}
}
