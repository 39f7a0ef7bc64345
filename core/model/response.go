package model

import "io"

// Response is what a successful attempt hands back to the caller. Body is
// the body handle described in spec §9's design notes: it must be fully
// read or explicitly discarded (via Close) before the owning connection
// can be reused. Closing without draining marks the connection Broken;
// the concrete type backing Body enforces that, not this struct.
type Response struct {
	StatusCode int
	Proto      string
	Header     *Header
	Body       io.ReadCloser
}

// Discard reads and throws away the remainder of the body, then closes
// it. Equivalent to io.Copy(io.Discard, r.Body) followed by r.Body.Close,
// provided as a convenience since draining is such a common caller need.
func (r *Response) Discard() error {
	if r.Body == nil {
		return nil
	}
	_, copyErr := io.Copy(io.Discard, r.Body)
	closeErr := r.Body.Close()
	if copyErr != nil {
		return copyErr
	}
	return closeErr
}
