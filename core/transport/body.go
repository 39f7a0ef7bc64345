package transport

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/searchktools/fastclient/core/model"
)

// parseResponse reads one HTTP/1.1 response head from r: the status line
// and headers, stopping at the blank line that precedes the body.
// connClose reports whether the response itself (or the absence of any
// framing header) means the connection cannot be reused after this body.
func parseResponse(r *bufio.Reader) (*model.Response, bool, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, true, fmt.Errorf("%w: read status line: %v", model.ErrNetwork, err)
	}
	if line == "" {
		return nil, true, fmt.Errorf("%w: empty status line", model.ErrProtocol)
	}

	proto, rest, ok := cutSpace(line)
	if !ok {
		return nil, true, fmt.Errorf("%w: malformed status line %q", model.ErrProtocol, line)
	}
	codeStr, _, _ := cutSpace(rest)
	code, err := strconv.Atoi(codeStr)
	if err != nil || code < 100 || code > 599 {
		return nil, true, fmt.Errorf("%w: malformed status code in %q", model.ErrProtocol, line)
	}

	header := model.NewHeader()
	for {
		hline, err := readLine(r)
		if err != nil {
			return nil, true, fmt.Errorf("%w: read headers: %v", model.ErrNetwork, err)
		}
		if hline == "" {
			break
		}
		colon := strings.IndexByte(hline, ':')
		if colon <= 0 {
			return nil, true, fmt.Errorf("%w: malformed header line %q", model.ErrProtocol, hline)
		}
		key := strings.TrimSpace(hline[:colon])
		value := strings.TrimSpace(hline[colon+1:])
		header.Add(key, value)
	}

	connClose := strings.EqualFold(header.Get("Connection"), "close")
	_, hasCL := contentLength(header)
	isChunked := strings.EqualFold(header.Get("Transfer-Encoding"), "chunked")
	if !hasCL && !isChunked {
		connClose = true
	}

	resp := &model.Response{
		StatusCode: code,
		Proto:      proto,
		Header:     header,
	}
	return resp, connClose, nil
}

func contentLength(h *model.Header) (int64, bool) {
	v := h.Get("Content-Length")
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// readLine reads one CRLF- or LF-terminated line, trimming the terminator.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func cutSpace(s string) (string, string, bool) {
	idx := strings.IndexByte(s, ' ')
	if idx == -1 {
		return s, "", false
	}
	return s[:idx], s[idx+1:], true
}

// bodyReader is the Response.Body handle: it frames the wire bytes
// according to Content-Length, chunked transfer-encoding, or
// read-until-close, and marks the owning Transport Broken if the caller
// abandons it without fully draining (spec §4.A, §4.E step d).
type bodyReader struct {
	c         *connTransport
	src       io.Reader
	connClose bool
	drained   bool
	err       error
}

// hasNoWireBody reports whether method/resp is one of the RFC 7230 cases
// where a response carries no body on the wire even if Content-Length is
// present: a HEAD request's response, and 204/304 responses. Getting this
// wrong on a reused connection means the next response's bytes get
// misread as this one's body.
func hasNoWireBody(method model.Method, resp *model.Response) bool {
	if method == model.MethodHEAD {
		return true
	}
	return resp.StatusCode == 204 || resp.StatusCode == 304
}

func newBodyReader(c *connTransport, method model.Method, resp *model.Response, connClose bool) *bodyReader {
	var src io.Reader
	if hasNoWireBody(method, resp) {
		src = io.LimitReader(strings.NewReader(""), 0)
	} else if n, ok := contentLength(resp.Header); ok {
		if n == 0 {
			src = io.LimitReader(strings.NewReader(""), 0)
		} else {
			src = io.LimitReader(c.reader, n)
		}
	} else if strings.EqualFold(resp.Header.Get("Transfer-Encoding"), "chunked") {
		src = &chunkedReader{r: c.reader}
	} else {
		src = c.reader // read until connection close
	}

	return &bodyReader{c: c, src: src, connClose: connClose}
}

func (b *bodyReader) Read(p []byte) (int, error) {
	if b.err != nil {
		return 0, b.err
	}
	n, err := b.src.Read(p)
	if err != nil {
		b.err = err
		if err == io.EOF {
			b.drained = true
			if b.connClose {
				b.c.broken = true
			}
		} else {
			b.c.broken = true
		}
	}
	return n, err
}

// Close implements io.Closer. A body that was not fully drained poisons
// the Transport per spec §4.A: "partially-consumed bodies poison the
// Transport".
func (b *bodyReader) Close() error {
	if !b.drained {
		b.c.broken = true
	}
	return nil
}

// chunkedReader decodes HTTP/1.1 chunked transfer-encoding.
type chunkedReader struct {
	r         *bufio.Reader
	remaining int64
	done      bool
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if c.done {
		return 0, io.EOF
	}

	if c.remaining == 0 {
		line, err := readLine(c.r)
		if err != nil {
			return 0, fmt.Errorf("%w: read chunk size: %v", model.ErrProtocol, err)
		}
		if semi := strings.IndexByte(line, ';'); semi != -1 {
			line = line[:semi]
		}
		size, err := strconv.ParseInt(strings.TrimSpace(line), 16, 64)
		if err != nil || size < 0 {
			return 0, fmt.Errorf("%w: malformed chunk size %q", model.ErrProtocol, line)
		}
		if size == 0 {
			// trailing headers, terminated by a blank line
			for {
				trailer, err := readLine(c.r)
				if err != nil {
					return 0, fmt.Errorf("%w: read chunk trailer: %v", model.ErrProtocol, err)
				}
				if trailer == "" {
					break
				}
			}
			c.done = true
			return 0, io.EOF
		}
		c.remaining = size
	}

	if int64(len(p)) > c.remaining {
		p = p[:c.remaining]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	if err != nil && err != io.EOF {
		return n, err
	}
	if c.remaining == 0 {
		// consume the trailing CRLF after the chunk data
		if _, err := readLine(c.r); err != nil {
			return n, fmt.Errorf("%w: read chunk terminator: %v", model.ErrProtocol, err)
		}
	}
	return n, nil
}
